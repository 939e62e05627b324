// Package wavtap renders stream output into WAV files.
package wavtap

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/smazurov/audionode/internal/backend"
	"github.com/smazurov/audionode/internal/logging"
)

const bitDepth = 16

// Renderer opens render units that write the output side of a stream to
// a 16-bit PCM WAV file, paced like real hardware.
type Renderer struct {
	path   string
	clock  *backend.ClockRenderer
	logger logging.Logger

	mu     sync.Mutex
	opened int
}

// New creates a renderer writing to path. A stream that is reinitialized
// opens a new unit; later units write to numbered siblings of path.
func New(path string) *Renderer {
	return &Renderer{
		path:   path,
		clock:  backend.NewClockRenderer(),
		logger: logging.GetLogger("wavtap"),
	}
}

func (r *Renderer) nextPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.opened
	r.opened++
	if n == 0 {
		return r.path
	}
	ext := filepath.Ext(r.path)
	return fmt.Sprintf("%s.%d%s", strings.TrimSuffix(r.path, ext), n, ext)
}

// Open implements backend.Renderer.
func (r *Renderer) Open(cfg backend.UnitConfig) (backend.RenderUnit, error) {
	if cfg.Output == nil {
		return nil, backend.NewError(backend.ErrCodeInvalidParams, "wav tap needs an output side", nil)
	}

	path := r.nextPath()
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create wav file: %w", err)
	}

	channels := int(cfg.Output.Params.Channels)
	rate := int(cfg.Output.Params.Rate)
	u := &unit{
		path:    path,
		file:    f,
		encoder: wav.NewEncoder(f, rate, bitDepth, channels, 1),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
			SourceBitDepth: bitDepth,
		},
		logger: r.logger,
	}

	render := cfg.Render
	cfg.Render = func(input, output *audio.Float32Buffer, frames int) int {
		n := render(input, output, frames)
		u.write(output, n)
		return n
	}
	clock, err := r.clock.Open(cfg)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	u.clock = clock

	r.logger.Debug("WAV tap opened", "stream_id", cfg.StreamID, "path", path, "rate", rate, "channels", channels)
	return u, nil
}

type unit struct {
	path    string
	file    *os.File
	encoder *wav.Encoder
	buf     *audio.IntBuffer
	clock   backend.RenderUnit
	logger  logging.Logger

	frames atomic.Int64
	err    atomic.Pointer[error]
	once   sync.Once
}

// write runs on the clock goroutine only.
func (u *unit) write(output *audio.Float32Buffer, frames int) {
	if output == nil || frames == 0 || u.err.Load() != nil {
		return
	}
	samples := output.Data[:frames*output.Format.NumChannels]
	if cap(u.buf.Data) < len(samples) {
		u.buf.Data = make([]int, len(samples))
	}
	u.buf.Data = u.buf.Data[:len(samples)]
	for i, v := range samples {
		u.buf.Data[i] = toInt16(v)
	}
	if err := u.encoder.Write(u.buf); err != nil {
		u.err.Store(&err)
		u.logger.Error("WAV write failed", "path", u.path, "error", err)
		return
	}
	u.frames.Add(int64(frames))
}

func toInt16(v float32) int {
	v = max(-1, min(1, v))
	return int(math.Round(float64(v) * math.MaxInt16))
}

// Frames returns the number of frames written so far.
func (u *unit) Frames() int64 {
	return u.frames.Load()
}

func (u *unit) Start() error {
	return u.clock.Start()
}

func (u *unit) Stop() error {
	return u.clock.Stop()
}

// Close stops rendering and finalizes the WAV header.
func (u *unit) Close() error {
	var err error
	u.once.Do(func() {
		if cerr := u.clock.Close(); cerr != nil {
			err = cerr
		}
		if cerr := u.encoder.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("finalize wav: %w", cerr)
		}
		if cerr := u.file.Close(); cerr != nil && err == nil {
			err = cerr
		}
		u.logger.Debug("WAV tap closed", "path", u.path, "frames", u.frames.Load())
	})
	return err
}
