//go:build cgo

package malgohal

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/go-audio/audio"

	"github.com/smazurov/audionode/internal/backend"
	"github.com/smazurov/audionode/internal/hal"
)

// New initializes a miniaudio context, scans the devices and starts
// polling for changes.
func New(cfg Config) (*Service, error) {
	s := newService(nil)
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		s.logger.Debug("miniaudio", "message", message)
	})
	if err != nil {
		s.dispatch.Stop()
		return nil, hal.NewError(hal.ErrCodeUnspecified, "init miniaudio context", err)
	}
	s.scan = func() (snapshot, error) { return scanContext(mctx) }
	s.closer = func() {
		_ = mctx.Uninit()
		mctx.Free()
	}
	s.engine = mctx

	if err := s.Refresh(); err != nil {
		s.Close()
		return nil, err
	}
	s.startPolling(cfg.PollInterval)
	return s, nil
}

func scanContext(mctx *malgo.AllocatedContext) (snapshot, error) {
	var snap snapshot
	for _, kind := range []malgo.DeviceType{malgo.Playback, malgo.Capture} {
		infos, err := mctx.Devices(kind)
		if err != nil {
			return snapshot{}, hal.NewError(hal.ErrCodeUnspecified, "list miniaudio devices", err)
		}
		entries := make([]entry, 0, len(infos))
		for _, info := range infos {
			full, err := mctx.DeviceInfo(kind, info.ID, malgo.Shared)
			if err != nil {
				full = info
			}
			entries = append(entries, newEntry(full))
		}
		if kind == malgo.Playback {
			snap.playback = entries
		} else {
			snap.capture = entries
		}
	}
	return snap, nil
}

func newEntry(info malgo.DeviceInfo) entry {
	e := entry{
		key:       info.ID.String(),
		name:      info.Name(),
		isDefault: info.IsDefault == 1,
		native:    info.ID,
	}
	for i := range min(int(info.FormatCount), len(info.Formats)) {
		f := info.Formats[i]
		e.channels = max(e.channels, f.Channels)
		if f.SampleRate == 0 {
			continue
		}
		if e.minRate == 0 || f.SampleRate < e.minRate {
			e.minRate = f.SampleRate
		}
		e.maxRate = max(e.maxRate, f.SampleRate)
	}
	if e.channels == 0 {
		// Backends that report no native formats accept any channel count;
		// stereo is what miniaudio opens by default.
		e.channels = 2
	}
	return e
}

// Renderer opens miniaudio devices as render units.
type Renderer struct {
	svc *Service
}

// NewRenderer creates a renderer for devices of svc.
func NewRenderer(svc *Service) *Renderer {
	return &Renderer{svc: svc}
}

// Open implements backend.Renderer.
func (r *Renderer) Open(cfg backend.UnitConfig) (backend.RenderUnit, error) {
	mctx, ok := r.svc.engine.(*malgo.AllocatedContext)
	if !ok {
		return nil, hal.NewError(hal.ErrCodeUnsupported, "malgo renderer without a miniaudio context", nil)
	}

	kind := malgo.Playback
	switch {
	case cfg.Input != nil && cfg.Output != nil:
		kind = malgo.Duplex
	case cfg.Input != nil:
		kind = malgo.Capture
	}
	dc := malgo.DefaultDeviceConfig(kind)
	dc.SampleRate = cfg.Rate()
	dc.PeriodSizeInFrames = uint32(cfg.Frames())

	var ids []*malgo.DeviceID
	if cfg.Output != nil {
		id, err := r.deviceID(cfg.Output.Device, hal.ScopeOutput)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		dc.Playback.Format = malgo.FormatF32
		dc.Playback.Channels = cfg.Output.Params.Channels
		dc.Playback.DeviceID = id.Pointer()
	}
	if cfg.Input != nil {
		id, err := r.deviceID(cfg.Input.Device, hal.ScopeInput)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		dc.Capture.Format = malgo.FormatF32
		dc.Capture.Channels = cfg.Input.Params.Channels
		dc.Capture.DeviceID = id.Pointer()
	}

	u := &unit{
		cfg:    cfg,
		ids:    ids,
		input:  backend.NewBuffer(cfg.Input, cfg.Frames()),
		output: backend.NewBuffer(cfg.Output, cfg.Frames()),
	}
	dev, err := malgo.InitDevice(mctx.Context, dc, malgo.DeviceCallbacks{Data: u.onData})
	if err != nil {
		return nil, hal.NewError(hal.ErrCodeUnspecified, "init miniaudio device", err)
	}
	u.dev = dev
	r.svc.logger.Debug("malgo unit opened", "stream_id", cfg.StreamID, "rate", dc.SampleRate, "period", dc.PeriodSizeInFrames)
	return u, nil
}

func (r *Renderer) deviceID(id hal.ObjectID, scope hal.Scope) (*malgo.DeviceID, error) {
	native, err := r.svc.native(id, scope)
	if err != nil {
		return nil, err
	}
	mid, ok := native.(malgo.DeviceID)
	if !ok {
		return nil, hal.NewError(hal.ErrCodeBadObject, fmt.Sprintf("object %s is not a miniaudio device", id), nil)
	}
	return &mid, nil
}

type unit struct {
	cfg    backend.UnitConfig
	dev    *malgo.Device
	ids    []*malgo.DeviceID // kept alive while the device references them
	input  *audio.Float32Buffer
	output *audio.Float32Buffer

	mu     sync.Mutex
	closed bool
}

// onData runs on the miniaudio device thread.
func (u *unit) onData(out, in []byte, frames uint32) {
	n := int(frames)
	input := u.input
	if input != nil {
		input = resize(input, n)
		for i := range input.Data {
			input.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(in[i*4:]))
		}
	}
	output := u.output
	if output != nil {
		output = resize(output, n)
		clear(output.Data)
	}

	u.cfg.Render(input, output, n)

	if output != nil {
		for i, v := range output.Data {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
		}
	}
}

// resize grows buf when miniaudio hands over more frames than the
// configured period.
func resize(buf *audio.Float32Buffer, frames int) *audio.Float32Buffer {
	need := frames * buf.Format.NumChannels
	if cap(buf.Data) < need {
		buf.Data = make([]float32, need)
	}
	buf.Data = buf.Data[:need]
	return buf
}

func (u *unit) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return backend.ErrClosed
	}
	return u.dev.Start()
}

func (u *unit) Stop() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed || !u.dev.IsStarted() {
		return nil
	}
	return u.dev.Stop()
}

func (u *unit) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true
	u.dev.Uninit()
	return nil
}
