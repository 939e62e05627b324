package backend

import (
	"fmt"
	"strings"

	"github.com/smazurov/audionode/internal/device"
	"github.com/smazurov/audionode/internal/hal"
	"github.com/smazurov/audionode/internal/layout"
)

// StreamPrefs are direction-agnostic stream preferences.
type StreamPrefs int

const (
	PrefNone                   StreamPrefs = 0
	PrefLoopback               StreamPrefs = 1 << 0
	PrefDisableDeviceSwitching StreamPrefs = 1 << 1
	PrefVoice                  StreamPrefs = 1 << 2
	PrefRaw                    StreamPrefs = 1 << 3
)

// StreamParams describes one direction of a stream.
type StreamParams struct {
	Format   device.Format
	Rate     uint32
	Channels uint32
	Layout   layout.Layout
	Prefs    StreamPrefs
}

func (p StreamParams) validate() error {
	if p.Format.BytesPerSample() == 0 {
		return NewError(ErrCodeInvalidParams, fmt.Sprintf("unsupported sample format %s", p.Format), nil)
	}
	if p.Rate == 0 {
		return NewError(ErrCodeInvalidParams, "sample rate must be positive", nil)
	}
	if p.Channels == 0 {
		return NewError(ErrCodeInvalidParams, "channel count must be positive", nil)
	}
	if p.Layout != layout.Undefined && uint32(p.Layout.Channels()) != p.Channels {
		return NewError(ErrCodeInvalidParams,
			fmt.Sprintf("layout %s has %d channels, stream has %d", p.Layout, p.Layout.Channels(), p.Channels), nil)
	}
	if p.Prefs&PrefLoopback != 0 {
		return NewError(ErrCodeInvalidParams, "loopback streams are not supported", nil)
	}
	return nil
}

// DeviceFlags describe how a stream side selected its device.
type DeviceFlags int

const (
	FlagInput              DeviceFlags = 1 << 0
	FlagOutput             DeviceFlags = 1 << 1
	FlagSelectedDefault    DeviceFlags = 1 << 2
	FlagSystemDefault      DeviceFlags = 1 << 3
	FlagDisconnectedPinned DeviceFlags = 1 << 4
)

func (f DeviceFlags) String() string {
	var parts []string
	for _, one := range []struct {
		flag DeviceFlags
		name string
	}{
		{FlagInput, "input"},
		{FlagOutput, "output"},
		{FlagSelectedDefault, "selected-default"},
		{FlagSystemDefault, "system-default"},
		{FlagDisconnectedPinned, "disconnected-pinned"},
	} {
		if f&one.flag != 0 {
			parts = append(parts, one.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

func sideFlag(scope hal.Scope) DeviceFlags {
	if scope == hal.ScopeInput {
		return FlagInput
	}
	return FlagOutput
}

// ResolvedDevice is the hardware device a stream side is bound to.
type ResolvedDevice struct {
	ID    hal.ObjectID
	Flags DeviceFlags
}

// FollowsDefault reports whether the side tracks the system default.
func (d ResolvedDevice) FollowsDefault() bool {
	return d.Flags&(FlagSelectedDefault|FlagSystemDefault) != 0
}

// StreamState is the lifecycle state of a stream.
type StreamState int

const (
	StateUninitialized StreamState = iota
	StateInitialized
	StateStarted
	StateStopped
)

func (s StreamState) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	default:
		return "uninitialized"
	}
}

// StateChange is reported to the state callback.
type StateChange int

const (
	StateChangeStarted StateChange = iota
	StateChangeStopped
	StateChangeDrained
	StateChangeError
)

func (s StateChange) String() string {
	switch s {
	case StateChangeStarted:
		return "started"
	case StateChangeStopped:
		return "stopped"
	case StateChangeDrained:
		return "drained"
	default:
		return "error"
	}
}
