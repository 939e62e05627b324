// Package streams manages named, persisted audio stream definitions on top
// of a backend context.
package streams

import (
	"fmt"
	"time"

	"github.com/smazurov/audionode/internal/backend"
	"github.com/smazurov/audionode/internal/device"
	"github.com/smazurov/audionode/internal/layout"
)

const (
	defaultRate     = 48000
	defaultChannels = 2
)

// Direction of a stream definition.
const (
	DirectionOutput = "output"
	DirectionInput  = "input"
	DirectionDuplex = "duplex"
)

// StreamSpec is the persisted definition of one stream.
type StreamSpec struct {
	ID        string `toml:"id" json:"id"`
	Name      string `toml:"name" json:"name"`
	Direction string `toml:"direction" json:"direction"`

	// Device references: empty or "default" follows the default device,
	// "system" follows it as the system default, anything else is a
	// numeric handle, a device UID (hw:C,D on ALSA) or a device name.
	OutputDevice string `toml:"output_device,omitempty" json:"output_device,omitempty"`
	InputDevice  string `toml:"input_device,omitempty" json:"input_device,omitempty"`

	Rate          uint32   `toml:"rate,omitempty" json:"rate,omitempty"`
	Channels      uint32   `toml:"channels,omitempty" json:"channels,omitempty"`
	Layout        string   `toml:"layout,omitempty" json:"layout,omitempty"`
	Format        string   `toml:"format,omitempty" json:"format,omitempty"`
	LatencyFrames uint32   `toml:"latency_frames,omitempty" json:"latency_frames,omitempty"`
	ToneHz        float64  `toml:"tone_hz,omitempty" json:"tone_hz,omitempty"`
	Volume        *float32 `toml:"volume,omitempty" json:"volume,omitempty"`

	// PinDevice keeps the stream on its device when the default changes
	// and fails it when the device disappears.
	PinDevice bool `toml:"pin_device,omitempty" json:"pin_device,omitempty"`
	Autostart bool `toml:"autostart" json:"autostart"`

	CreatedAt time.Time `toml:"created_at" json:"created_at"`
	UpdatedAt time.Time `toml:"updated_at" json:"updated_at"`
}

func (s StreamSpec) hasOutput() bool {
	return s.Direction == DirectionOutput || s.Direction == DirectionDuplex
}

func (s StreamSpec) hasInput() bool {
	return s.Direction == DirectionInput || s.Direction == DirectionDuplex
}

// normalize fills defaults and validates the definition.
func (s *StreamSpec) normalize() error {
	if s.Direction == "" {
		s.Direction = DirectionOutput
	}
	switch s.Direction {
	case DirectionOutput, DirectionInput, DirectionDuplex:
	default:
		return NewStreamError(ErrCodeInvalidParams, fmt.Sprintf("unknown direction %q", s.Direction), nil)
	}
	if s.Rate == 0 {
		s.Rate = defaultRate
	}
	if s.Format == "" {
		s.Format = device.FormatF32NE.String()
	}
	if s.Channels == 0 {
		s.Channels = defaultChannels
		if s.Layout != "" {
			if l, err := layout.Parse(s.Layout); err == nil && l != layout.Undefined {
				s.Channels = uint32(l.Channels())
			}
		}
	}
	if s.ToneHz < 0 || s.ToneHz*2 >= float64(s.Rate) {
		return NewStreamError(ErrCodeInvalidParams, fmt.Sprintf("tone %.1f Hz is outside 0..%d Hz", s.ToneHz, s.Rate/2), nil)
	}
	if s.Volume != nil && (*s.Volume < 0 || *s.Volume > 1) {
		return NewStreamError(ErrCodeInvalidParams, fmt.Sprintf("volume %v out of range", *s.Volume), nil)
	}
	if s.Name == "" {
		s.Name = s.ID
	}
	_, err := s.params()
	return err
}

// params converts the definition into backend stream parameters.
func (s StreamSpec) params() (backend.StreamParams, error) {
	format, ok := device.ParseFormat(s.Format)
	if !ok {
		return backend.StreamParams{}, NewStreamError(ErrCodeInvalidParams, fmt.Sprintf("unknown sample format %q", s.Format), nil)
	}
	l := layout.Undefined
	if s.Layout != "" {
		parsed, err := layout.Parse(s.Layout)
		if err != nil {
			return backend.StreamParams{}, NewStreamError(ErrCodeInvalidParams, "bad layout", err)
		}
		l = parsed
	}
	if l != layout.Undefined && uint32(l.Channels()) != s.Channels {
		return backend.StreamParams{}, NewStreamError(ErrCodeInvalidParams,
			fmt.Sprintf("layout %s has %d channels, stream has %d", l, l.Channels(), s.Channels), nil)
	}

	p := backend.StreamParams{
		Format:   format,
		Rate:     s.Rate,
		Channels: s.Channels,
		Layout:   l,
	}
	if s.PinDevice {
		p.Prefs |= backend.PrefDisableDeviceSwitching
	}
	return p, nil
}
