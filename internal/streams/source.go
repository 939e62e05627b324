package streams

import (
	"math"
	"sync/atomic"

	"github.com/go-audio/audio"
)

const toneAmplitude = 0.25

// Tone is a sine generator for output streams. It writes the same sample
// to every channel. A positive frame limit drains the stream after that
// many frames.
type Tone struct {
	freq  float64
	phase float64
	limit int64
	done  atomic.Int64
}

// NewTone creates a generator at freq Hz. limit 0 plays forever. A zero
// freq produces silence.
func NewTone(freq float64, limit int64) *Tone {
	return &Tone{freq: freq, limit: limit}
}

// Frames returns how many frames were generated.
func (t *Tone) Frames() int64 {
	return t.done.Load()
}

// Render implements backend.DataCallback. It runs on one render goroutine
// at a time.
func (t *Tone) Render(input, output *audio.Float32Buffer, frames int) int {
	if output == nil || output.Format == nil {
		return frames
	}
	n := frames
	if t.limit > 0 {
		n = int(min(int64(frames), max(t.limit-t.done.Load(), 0)))
	}

	ch := output.Format.NumChannels
	step := 2 * math.Pi * t.freq / float64(output.Format.SampleRate)
	for i := range n {
		v := float32(0)
		if t.freq > 0 {
			v = float32(toneAmplitude * math.Sin(t.phase))
			t.phase = math.Mod(t.phase+step, 2*math.Pi)
		}
		frame := output.Data[i*ch : (i+1)*ch]
		for c := range frame {
			frame[c] = v
		}
	}
	t.done.Add(int64(n))
	return n
}

// Meter consumes input and tracks the peak absolute sample value. Output,
// when present, is left silent.
type Meter struct {
	peak   atomic.Uint32
	frames atomic.Int64
}

// NewMeter creates an input meter.
func NewMeter() *Meter {
	return &Meter{}
}

// Peak returns the loudest sample seen since the last Reset.
func (m *Meter) Peak() float32 {
	return math.Float32frombits(m.peak.Load())
}

// Frames returns how many input frames were consumed.
func (m *Meter) Frames() int64 {
	return m.frames.Load()
}

// Reset clears the peak.
func (m *Meter) Reset() {
	m.peak.Store(0)
}

// Render implements backend.DataCallback.
func (m *Meter) Render(input, output *audio.Float32Buffer, frames int) int {
	if output != nil {
		clear(output.Data)
	}
	if input == nil || input.Format == nil {
		return frames
	}

	peak := m.Peak()
	for _, v := range input.Data[:frames*input.Format.NumChannels] {
		if a := float32(math.Abs(float64(v))); a > peak {
			peak = a
		}
	}
	m.peak.Store(math.Float32bits(peak))
	m.frames.Add(int64(frames))
	return frames
}
