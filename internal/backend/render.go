package backend

import (
	"context"
	"sync"
	"time"

	"github.com/go-audio/audio"

	"github.com/smazurov/audionode/internal/hal"
)

const defaultBufferFrames = 512

// RenderFunc exchanges one period of interleaved PCM with a stream. input
// is nil for output-only streams and output is nil for input-only streams.
// It returns the number of frames produced; fewer than frames means the
// stream has drained.
type RenderFunc func(input, output *audio.Float32Buffer, frames int) int

// UnitSide is one direction of a render unit.
type UnitSide struct {
	Device       hal.ObjectID
	Params       StreamParams
	HardwareRate float64
	Labels       []hal.ChannelLabel
}

// UnitConfig describes the render unit a stream needs.
type UnitConfig struct {
	StreamID     string
	Input        *UnitSide
	Output       *UnitSide
	BufferFrames uint32
	Render       RenderFunc
}

// Rate returns the stream rate the unit is paced at.
func (c UnitConfig) Rate() uint32 {
	if c.Output != nil {
		return c.Output.Params.Rate
	}
	if c.Input != nil {
		return c.Input.Params.Rate
	}
	return 0
}

// Frames returns the period size in frames.
func (c UnitConfig) Frames() int {
	if c.BufferFrames == 0 {
		return defaultBufferFrames
	}
	return int(c.BufferFrames)
}

// RenderUnit drives the render function of one stream.
type RenderUnit interface {
	Start() error
	Stop() error
	Close() error
}

// Renderer opens render units.
type Renderer interface {
	Open(cfg UnitConfig) (RenderUnit, error)
}

// NewBuffer allocates an interleaved buffer for frames of side.
func NewBuffer(side *UnitSide, frames int) *audio.Float32Buffer {
	if side == nil {
		return nil
	}
	ch := int(side.Params.Channels)
	return &audio.Float32Buffer{
		Format: &audio.Format{
			NumChannels: ch,
			SampleRate:  int(side.Params.Rate),
		},
		Data:           make([]float32, frames*ch),
		SourceBitDepth: 32,
	}
}

// ClockRenderer opens units that call the render function on a ticker, at
// the pace real hardware would, and discard the output.
type ClockRenderer struct{}

// NewClockRenderer creates a clock renderer.
func NewClockRenderer() *ClockRenderer {
	return &ClockRenderer{}
}

// Open implements Renderer.
func (r *ClockRenderer) Open(cfg UnitConfig) (RenderUnit, error) {
	rate := cfg.Rate()
	if rate == 0 {
		return nil, NewError(ErrCodeInvalidParams, "render unit without a rate", nil)
	}
	frames := cfg.Frames()
	return &clockUnit{
		cfg:    cfg,
		frames: frames,
		period: time.Duration(frames) * time.Second / time.Duration(rate),
		input:  NewBuffer(cfg.Input, frames),
		output: NewBuffer(cfg.Output, frames),
	}, nil
}

type clockUnit struct {
	cfg    UnitConfig
	frames int
	period time.Duration
	input  *audio.Float32Buffer
	output *audio.Float32Buffer

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

func (u *clockUnit) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return ErrClosed
	}
	if u.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	u.cancel = cancel
	u.done = make(chan struct{})
	go u.run(ctx, u.done)
	return nil
}

func (u *clockUnit) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(u.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if u.input != nil {
				clear(u.input.Data)
			}
			if u.output != nil {
				clear(u.output.Data)
			}
			u.cfg.Render(u.input, u.output, u.frames)
		}
	}
}

func (u *clockUnit) Stop() error {
	u.mu.Lock()
	cancel, done := u.cancel, u.done
	u.cancel, u.done = nil, nil
	u.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

func (u *clockUnit) Close() error {
	if err := u.Stop(); err != nil {
		return err
	}
	u.mu.Lock()
	u.closed = true
	u.mu.Unlock()
	return nil
}
