package backend

import (
	"cmp"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/google/uuid"

	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/hal"
	"github.com/smazurov/audionode/internal/layout"
	"github.com/smazurov/audionode/internal/listener"
	"github.com/smazurov/audionode/internal/logging"
	"github.com/smazurov/audionode/internal/metrics"
	"github.com/smazurov/audionode/internal/resample"
)

// DataCallback exchanges interleaved PCM with the application. It returns
// the number of frames written to output (or consumed from input for an
// input-only stream). Returning fewer than frames drains the stream.
type DataCallback func(input, output *audio.Float32Buffer, frames int) int

// StateCallback receives stream state changes.
type StateCallback func(StateChange)

// StreamOptions open a stream. At least one of Input and Output is set.
// A device of hal.ObjectUnknown follows the system default.
type StreamOptions struct {
	// ID names the stream. Empty assigns a random UUID.
	ID   string
	Name string

	Input       *StreamParams
	InputDevice hal.ObjectID

	Output       *StreamParams
	OutputDevice hal.ObjectID

	LatencyFrames uint32

	Data  DataCallback
	State StateCallback
}

// CurrentDevice reports the devices a stream is bound to.
type CurrentDevice struct {
	Input  *ResolvedDevice
	Output *ResolvedDevice
}

type streamSide struct {
	scope     hal.Scope
	requested hal.ObjectID
	device    ResolvedDevice
	params    StreamParams
	hwRate    float64
	hwLayout  layout.Layout
	labels    []hal.ChannelLabel
}

func (sd *streamSide) unitSide() *UnitSide {
	if sd == nil {
		return nil
	}
	return &UnitSide{
		Device:       sd.device.ID,
		Params:       sd.params,
		HardwareRate: sd.hwRate,
		Labels:       sd.labels,
	}
}

// Stream is an open audio stream.
type Stream struct {
	ID      string
	Name    string
	ctx     *Context
	created time.Time
	logger  logging.Logger

	dataCB  DataCallback
	stateCB StateCallback

	mu            sync.Mutex
	state         StreamState
	input         *streamSide
	output        *streamSide
	prefs         StreamPrefs
	latencyFrames uint32
	requestedLat  uint32
	unit          RenderUnit
	listeners     []*listener.Listener
	deviceChanged func()

	// switchMu guards reinitDone against Destroy.
	switchMu   sync.Mutex
	reinitDone chan struct{}

	switching atomic.Bool
	destroyed atomic.Bool
	drained   atomic.Bool
	position  atomic.Uint64
	volume    atomic.Uint32
	panning   atomic.Uint32
	coalesced atomic.Uint64
	reinits   atomic.Uint64
}

// NewStream opens a stream. It resolves devices, negotiates the channel
// layout, opens a render unit and installs device-change listeners.
func (c *Context) NewStream(opts StreamOptions) (*Stream, error) {
	if opts.Input == nil && opts.Output == nil {
		return nil, NewError(ErrCodeInvalidParams, "stream needs an input or an output", nil)
	}
	if opts.Data == nil {
		return nil, NewError(ErrCodeInvalidParams, "data callback is required", nil)
	}
	var prefs StreamPrefs
	for _, p := range []*StreamParams{opts.Input, opts.Output} {
		if p == nil {
			continue
		}
		if err := p.validate(); err != nil {
			return nil, err
		}
		prefs |= p.Prefs
	}

	s := &Stream{
		ID:           cmp.Or(opts.ID, uuid.NewString()),
		Name:         opts.Name,
		ctx:          c,
		created:      time.Now(),
		logger:       logging.GetLogger("streams"),
		dataCB:       opts.Data,
		stateCB:      opts.State,
		prefs:        prefs,
		requestedLat: opts.LatencyFrames,
	}
	s.volume.Store(math.Float32bits(1))
	if opts.Input != nil {
		s.input = &streamSide{scope: hal.ScopeInput, requested: opts.InputDevice, params: *opts.Input}
	}
	if opts.Output != nil {
		s.output = &streamSide{scope: hal.ScopeOutput, requested: opts.OutputDevice, params: *opts.Output}
	}

	s.mu.Lock()
	err := s.setupLocked(false)
	if err == nil {
		s.state = StateInitialized
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if err := c.addStream(s); err != nil {
		s.mu.Lock()
		s.teardownLocked()
		s.mu.Unlock()
		return nil, err
	}
	if c.state.IncrementActiveStreams() == 1 {
		c.state.SetGlobalLatency(s.Latency())
	}

	s.logger.Info("Stream opened", "stream_id", s.ID, "name", s.Name, "latency_frames", s.Latency())
	c.publish(events.StreamCreatedEvent{
		StreamID:  s.ID,
		Name:      s.Name,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	return s, nil
}

// resolveDevice binds a requested device id for one side. The unknown id
// follows the default and is tagged as selected by the user; the system
// object follows the default too but is tagged only as the system default.
func (c *Context) resolveDevice(requested hal.ObjectID, scope hal.Scope) (ResolvedDevice, error) {
	flag := sideFlag(scope)
	switch requested {
	case hal.ObjectUnknown, hal.SystemObject:
		id, err := c.svc.DefaultDevice(scope)
		if err != nil || id == hal.ObjectUnknown {
			return ResolvedDevice{}, NewError(ErrCodeNoDevice, fmt.Sprintf("no default %s device", scope), err)
		}
		if requested == hal.SystemObject {
			return ResolvedDevice{ID: id, Flags: flag | FlagSystemDefault}, nil
		}
		return ResolvedDevice{ID: id, Flags: flag | FlagSelectedDefault | FlagSystemDefault}, nil
	default:
		return ResolvedDevice{ID: requested, Flags: flag}, nil
	}
}

// buildSideLocked resolves the device of one side and negotiates its
// rate and layout against the hardware.
func (s *Stream) buildSideLocked(sd *streamSide) error {
	svc := s.ctx.svc

	rd, err := s.ctx.resolveDevice(sd.requested, sd.scope)
	if err != nil {
		return err
	}
	channels, err := svc.ChannelCount(rd.ID, sd.scope)
	if err != nil {
		return fmt.Errorf("device %s: %w", rd.ID, err)
	}
	if channels == 0 {
		return NewError(ErrCodeInvalidParams, fmt.Sprintf("device %s has no %s channels", rd.ID, sd.scope), nil)
	}

	sd.device = rd
	sd.hwRate = float64(sd.params.Rate)
	if rate, err := svc.NominalSampleRate(rd.ID); err == nil && rate > 0 {
		sd.hwRate = rate
	}

	sd.hwLayout = layout.Undefined
	if labels, err := svc.ChannelLabels(rd.ID, sd.scope); err == nil {
		sd.hwLayout = layout.FromLabels(labels)
	}
	if sd.params.Layout == layout.Undefined && uint32(sd.hwLayout.Channels()) == sd.params.Channels {
		sd.params.Layout = sd.hwLayout
	}
	sd.labels = nil
	if layout.HasLabels(sd.params.Layout) {
		sd.labels = layout.Labels(sd.params.Layout)
	}
	return nil
}

// negotiateLatencyLocked picks the buffer size: the global latency when
// other streams run, otherwise the request clamped to the device range.
func (s *Stream) negotiateLatencyLocked() uint32 {
	target := s.requestedLat
	if global, ok := s.ctx.state.GlobalLatency(); ok {
		target = global
	}

	sd := s.output
	if sd == nil {
		sd = s.input
	}
	lo, hi, err := s.ctx.svc.BufferFrameSizeRange(sd.device.ID)
	if err != nil || hi == 0 {
		if target == 0 {
			return defaultBufferFrames
		}
		return target
	}
	if target == 0 {
		target = defaultBufferFrames
	}
	return min(max(target, lo), hi)
}

func (s *Stream) setupLocked(reinit bool) error {
	for _, sd := range []*streamSide{s.input, s.output} {
		if sd == nil {
			continue
		}
		if reinit {
			if err := s.checkPinnedLocked(sd); err != nil {
				return err
			}
		}
		if err := s.buildSideLocked(sd); err != nil {
			return err
		}
	}
	s.latencyFrames = s.negotiateLatencyLocked()

	unit, err := s.ctx.renderer.Open(UnitConfig{
		StreamID:     s.ID,
		Input:        s.input.unitSide(),
		Output:       s.output.unitSide(),
		BufferFrames: s.latencyFrames,
		Render:       s.render,
	})
	if err != nil {
		return fmt.Errorf("open render unit: %w", err)
	}
	s.unit = unit

	if err := s.installListenersLocked(); err != nil {
		s.teardownLocked()
		return err
	}
	return nil
}

// checkPinnedLocked handles a side bound to a specific device that went
// away: it falls back to the default unless switching is disabled.
func (s *Stream) checkPinnedLocked(sd *streamSide) error {
	if sd.requested == hal.ObjectUnknown || sd.requested == hal.SystemObject {
		return nil
	}
	alive, err := s.ctx.svc.IsAlive(sd.requested)
	if err == nil && alive {
		return nil
	}
	if s.prefs&PrefDisableDeviceSwitching != 0 {
		sd.device.Flags |= FlagDisconnectedPinned
		return NewError(ErrCodeDeviceDisconnected, fmt.Sprintf("device %s", sd.requested), err)
	}
	s.logger.Info("Pinned device is gone, following the default",
		"stream_id", s.ID, "device", sd.requested, "scope", sd.scope.String())
	sd.requested = hal.ObjectUnknown
	return nil
}

func (s *Stream) installListenersLocked() error {
	bridge := s.ctx.bridge
	var ls []*listener.Listener
	for _, sd := range []*streamSide{s.input, s.output} {
		if sd == nil {
			continue
		}
		if sd.device.FollowsDefault() && s.prefs&PrefDisableDeviceSwitching == 0 {
			ls = append(ls, listener.New(hal.SystemObject, listener.DefaultDevice(sd.scope), s.onPropertyChanged))
		}
		ls = append(ls,
			listener.New(sd.device.ID, listener.DeviceIsAlive, s.onPropertyChanged),
			listener.New(sd.device.ID, listener.DataSource(sd.scope), s.onPropertyChanged),
		)
	}

	for _, l := range ls {
		if err := bridge.Add(l); err != nil {
			return err
		}
		s.listeners = append(s.listeners, l)
	}
	return nil
}

// teardownLocked releases the render unit and listeners.
func (s *Stream) teardownLocked() {
	if s.unit != nil {
		if err := s.unit.Stop(); err != nil {
			s.logger.Warn("Failed to stop render unit", "stream_id", s.ID, "error", err)
		}
		if err := s.unit.Close(); err != nil {
			s.logger.Warn("Failed to close render unit", "stream_id", s.ID, "error", err)
		}
		s.unit = nil
	}
	for _, l := range s.listeners {
		if err := s.ctx.bridge.Remove(l); err != nil {
			s.logger.Debug("Failed to remove listener", "stream_id", s.ID, "listener", l.String(), "error", err)
		}
	}
	s.listeners = nil
}

// render is the function handed to render units. It runs on the unit's
// goroutine and never takes the stream lock.
func (s *Stream) render(input, output *audio.Float32Buffer, frames int) int {
	if s.drained.Load() {
		if output != nil {
			clear(output.Data)
		}
		return 0
	}

	n := max(min(s.dataCB(input, output, frames), frames), 0)

	if output != nil && output.Format != nil {
		ch := output.Format.NumChannels
		s.applyGain(output.Data[:n*ch], ch)
		clear(output.Data[n*ch:])
	}

	pos := s.position.Add(uint64(n))
	metrics.SetFramesRendered(s.ID, pos)

	if n < frames && s.drained.CompareAndSwap(false, true) {
		s.ctx.queue.submit(s.drain)
	}
	return n
}

func (s *Stream) applyGain(data []float32, channels int) {
	vol := math.Float32frombits(s.volume.Load())
	pan := math.Float32frombits(s.panning.Load())
	if vol == 1 && pan == 0 {
		return
	}
	left, right := vol, vol
	if channels == 2 {
		if pan > 0 {
			left *= 1 - pan
		} else if pan < 0 {
			right *= 1 + pan
		}
	}
	for i := range data {
		if channels == 2 && i%2 == 1 {
			data[i] *= right
		} else {
			data[i] *= left
		}
	}
}

// drain runs on the task queue after the data callback came up short.
func (s *Stream) drain() {
	if s.destroyed.Load() {
		return
	}
	s.mu.Lock()
	if s.state != StateStarted || s.unit == nil {
		s.mu.Unlock()
		return
	}
	if err := s.unit.Stop(); err != nil {
		s.logger.Warn("Failed to stop drained stream", "stream_id", s.ID, "error", err)
	}
	s.state = StateStopped
	s.mu.Unlock()

	s.logger.Debug("Stream drained", "stream_id", s.ID)
	s.notifyState(StateChangeDrained)
}

func (s *Stream) notifyState(change StateChange) {
	if s.stateCB != nil {
		s.stateCB(change)
	}
	s.ctx.publish(events.StreamStateChangedEvent{
		StreamID:  s.ID,
		State:     change.String(),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// Start starts the render unit.
func (s *Stream) Start() error {
	if s.switching.Load() {
		return ErrReinitInProgress
	}
	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.state == StateStarted {
		s.mu.Unlock()
		return nil
	}
	s.drained.Store(false)
	if err := s.unit.Start(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("start render unit: %w", err)
	}
	s.state = StateStarted
	s.mu.Unlock()

	s.logger.Debug("Stream started", "stream_id", s.ID)
	s.notifyState(StateChangeStarted)
	return nil
}

// Stop stops the render unit.
func (s *Stream) Stop() error {
	if s.switching.Load() {
		return ErrReinitInProgress
	}
	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.state != StateStarted {
		s.mu.Unlock()
		return nil
	}
	if err := s.unit.Stop(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("stop render unit: %w", err)
	}
	s.state = StateStopped
	s.mu.Unlock()

	s.logger.Debug("Stream stopped", "stream_id", s.ID)
	s.notifyState(StateChangeStopped)
	return nil
}

func (s *Stream) usableLocked() error {
	if s.destroyed.Load() {
		return ErrClosed
	}
	if s.unit == nil {
		return NewError(ErrCodeInvalidState, "stream lost its device", nil)
	}
	return nil
}

// Destroy stops the stream, waits for an in-flight reinitialization and
// releases everything. It must not be called from a stream callback.
func (s *Stream) Destroy() {
	if !s.destroyed.CompareAndSwap(false, true) {
		return
	}

	s.switchMu.Lock()
	done := s.reinitDone
	s.switchMu.Unlock()
	if done != nil {
		<-done
	}

	s.mu.Lock()
	s.teardownLocked()
	s.state = StateStopped
	s.mu.Unlock()

	s.ctx.removeStream(s.ID)
	s.ctx.state.DecrementActiveStreams()
	metrics.DeleteStreamMetrics(s.ID)

	s.logger.Info("Stream destroyed", "stream_id", s.ID)
	s.ctx.publish(events.StreamDestroyedEvent{
		StreamID:  s.ID,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// State returns the lifecycle state.
func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Switching reports whether a device-change reinitialization is in flight.
func (s *Stream) Switching() bool {
	return s.switching.Load()
}

// Position returns the number of frames exchanged with the data callback.
func (s *Stream) Position() uint64 {
	return s.position.Load()
}

// Latency returns the negotiated buffer size in frames.
func (s *Stream) Latency() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latencyFrames
}

// Reinits returns the number of completed reinitializations.
func (s *Stream) Reinits() uint64 {
	return s.reinits.Load()
}

// Coalesced returns the number of notifications dropped while switching.
func (s *Stream) Coalesced() uint64 {
	return s.coalesced.Load()
}

// Params returns the current parameters of each side. Reinitialization
// may replace them.
func (s *Stream) Params() (input, output *StreamParams) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.input != nil {
		p := s.input.params
		input = &p
	}
	if s.output != nil {
		p := s.output.params
		output = &p
	}
	return input, output
}

// SetVolume sets the output gain in [0, 1].
func (s *Stream) SetVolume(volume float32) error {
	if volume < 0 || volume > 1 || math.IsNaN(float64(volume)) {
		return NewError(ErrCodeInvalidParams, fmt.Sprintf("volume %v out of range", volume), nil)
	}
	s.volume.Store(math.Float32bits(volume))
	return nil
}

// Volume returns the output gain.
func (s *Stream) Volume() float32 {
	return math.Float32frombits(s.volume.Load())
}

// SetPanning sets the stereo balance in [-1, 1]. Only mono and stereo
// output streams can be panned.
func (s *Stream) SetPanning(panning float32) error {
	if panning < -1 || panning > 1 || math.IsNaN(float64(panning)) {
		return NewError(ErrCodeInvalidParams, fmt.Sprintf("panning %v out of range", panning), nil)
	}
	_, out := s.Params()
	if out == nil || out.Channels > 2 {
		return NewError(ErrCodeInvalidParams, "panning needs a mono or stereo output", nil)
	}
	s.panning.Store(math.Float32bits(panning))
	return nil
}

// CurrentDevice returns the devices the stream is bound to.
func (s *Stream) CurrentDevice() CurrentDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked()
}

// RegisterDeviceChangedCallback sets the callback invoked when a hardware
// change schedules a reinitialization. nil unregisters.
func (s *Stream) RegisterDeviceChangedCallback(cb func()) {
	s.mu.Lock()
	s.deviceChanged = cb
	s.mu.Unlock()
}

// InputFramesFor returns how many frames must be read at the source rate
// to produce outputFrames at the destination rate. For duplex streams the
// source is the input hardware and the destination the output stream.
// Single-direction streams convert between their stream and hardware rates.
func (s *Stream) InputFramesFor(outputFrames int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.input != nil && s.output != nil:
		return resample.MinimumInputFrames(s.input.hwRate, float64(s.output.params.Rate), outputFrames)
	case s.input != nil:
		return resample.MinimumInputFrames(s.input.hwRate, float64(s.input.params.Rate), outputFrames)
	default:
		return resample.MinimumInputFrames(float64(s.output.params.Rate), s.output.hwRate, outputFrames)
	}
}

// ResetDefaultDevice rebinds every side to the current default device. When
// a reinitialization is already in flight the stream stays pinned and
// ErrReinitInProgress is returned.
func (s *Stream) ResetDefaultDevice() error {
	if s.destroyed.Load() {
		return ErrClosed
	}
	unpin := func() {
		s.mu.Lock()
		for _, sd := range []*streamSide{s.input, s.output} {
			if sd != nil {
				sd.requested = hal.ObjectUnknown
			}
		}
		s.mu.Unlock()
	}
	if !s.scheduleReinitWith([]string{"reset-default-device"}, unpin) {
		return ErrReinitInProgress
	}
	return nil
}

