package backend

import (
	"sync"
	"testing"
	"time"

	"github.com/go-audio/audio"

	"github.com/smazurov/audionode/internal/device"
	"github.com/smazurov/audionode/internal/hal"
	"github.com/smazurov/audionode/internal/hal/simhal"
	"github.com/smazurov/audionode/internal/layout"
)

const (
	speakers   hal.ObjectID = 0x101
	mic        hal.ObjectID = 0x102
	headphones hal.ObjectID = 0x103
)

func newService(t *testing.T) *simhal.Service {
	t.Helper()
	svc := simhal.New(
		simhal.Device{ID: speakers, Name: "Speakers", OutputChannels: 2, SampleRate: 48000, MinBuffer: 64, MaxBuffer: 4096},
		simhal.Device{ID: mic, Name: "Mic", InputChannels: 1, SampleRate: 44100, MinBuffer: 32, MaxBuffer: 2048},
		simhal.Device{ID: headphones, Name: "Headphones", OutputChannels: 2, SampleRate: 44100, MinBuffer: 128, MaxBuffer: 2048},
	)
	t.Cleanup(func() { svc.Close() })
	return svc
}

// manualRenderer hands out units that only render when a test pumps them.
type manualRenderer struct {
	mu    sync.Mutex
	units []*manualUnit
}

func (r *manualRenderer) Open(cfg UnitConfig) (RenderUnit, error) {
	u := &manualUnit{cfg: cfg}
	r.mu.Lock()
	r.units = append(r.units, u)
	r.mu.Unlock()
	return u, nil
}

func (r *manualRenderer) last() *manualUnit {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.units) == 0 {
		return nil
	}
	return r.units[len(r.units)-1]
}

func (r *manualRenderer) opened() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.units)
}

type manualUnit struct {
	cfg UnitConfig

	mu      sync.Mutex
	started bool
	closed  bool
}

func (u *manualUnit) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return ErrClosed
	}
	u.started = true
	return nil
}

func (u *manualUnit) Stop() error {
	u.mu.Lock()
	u.started = false
	u.mu.Unlock()
	return nil
}

func (u *manualUnit) Close() error {
	u.mu.Lock()
	u.started = false
	u.closed = true
	u.mu.Unlock()
	return nil
}

func (u *manualUnit) running() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.started
}

// pump runs one period and returns the output buffer.
func (u *manualUnit) pump(frames int) (*audio.Float32Buffer, int) {
	in := NewBuffer(u.cfg.Input, frames)
	out := NewBuffer(u.cfg.Output, frames)
	n := u.cfg.Render(in, out, frames)
	return out, n
}

func newContext(t *testing.T, svc hal.Service, opts Options) *Context {
	t.Helper()
	c, err := New(svc, opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		for _, s := range c.Streams() {
			s.Destroy()
		}
		c.Close()
	})
	return c
}

func stereoOut() *StreamParams {
	return &StreamParams{Format: device.FormatF32NE, Rate: 48000, Channels: 2}
}

func monoIn() *StreamParams {
	return &StreamParams{Format: device.FormatS16NE, Rate: 48000, Channels: 1, Layout: layout.Mono}
}

func silence(_, _ *audio.Float32Buffer, frames int) int {
	return frames
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
