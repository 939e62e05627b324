package streams

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/google/uuid"

	"github.com/smazurov/audionode/internal/backend"
	"github.com/smazurov/audionode/internal/device"
	"github.com/smazurov/audionode/internal/logging"
)

// DeviceStatus is the device one side of a stream is bound to.
type DeviceStatus struct {
	ID    uint32 `json:"id" doc:"Device handle"`
	Flags string `json:"flags" doc:"How the device was selected"`
}

// Status is the runtime view of a stream definition.
type Status struct {
	Spec          StreamSpec    `json:"spec"`
	State         string        `json:"state" example:"started" doc:"initialized, started, stopped or error"`
	Switching     bool          `json:"switching" doc:"A device switch is in flight"`
	Position      uint64        `json:"position" doc:"Frames exchanged with the stream"`
	LatencyFrames uint32        `json:"latency_frames"`
	Volume        float32       `json:"volume"`
	Reinits       uint64        `json:"reinits" doc:"Completed device switches"`
	Coalesced     uint64        `json:"coalesced" doc:"Notifications dropped while switching"`
	PeakLevel     float32       `json:"peak_level,omitempty" doc:"Input peak since the last read"`
	Output        *DeviceStatus `json:"output,omitempty"`
	Input         *DeviceStatus `json:"input,omitempty"`
	Error         string        `json:"error,omitempty" doc:"Why the stream could not be opened"`
}

type entry struct {
	mu     sync.Mutex // guards spec
	spec   StreamSpec
	stream *backend.Stream
	meter  *Meter
	err    error
	failed bool
}

// Service opens backend streams from definitions and keeps the store in
// sync with API changes.
type Service struct {
	backend *backend.Context
	store   Store
	logger  logging.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// NewService creates a service over an open backend context.
func NewService(bc *backend.Context, store Store) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Service{
		backend: bc,
		store:   store,
		logger:  logging.GetLogger("streams"),
		entries: make(map[string]*entry),
	}
}

// LoadStreamsFromConfig loads the store and opens every definition.
// Definitions that fail to open are kept with their error so they show up
// in listings.
func (s *Service) LoadStreamsFromConfig(ctx context.Context) error {
	if err := s.store.Load(); err != nil {
		return NewStreamError(ErrCodeConfigError, "load streams", err)
	}

	specs := s.store.GetAllStreams()
	ids := make([]string, 0, len(specs))
	for id := range specs {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var errs []error
	for _, id := range ids {
		spec := specs[id]
		if err := spec.normalize(); err != nil {
			errs = append(errs, fmt.Errorf("stream %s: %w", id, err))
			s.remember(&entry{spec: spec, err: err, failed: true})
			continue
		}
		e, err := s.open(ctx, spec)
		if err != nil {
			s.logger.Warn("Failed to open stream from config", "stream_id", id, "error", err)
			errs = append(errs, fmt.Errorf("stream %s: %w", id, err))
			s.remember(&entry{spec: spec, err: err, failed: true})
			continue
		}
		s.remember(e)
	}
	s.logger.Info("Loaded streams from config", "count", len(ids), "failed", len(errs))
	return errors.Join(errs...)
}

func (s *Service) remember(e *entry) {
	s.mu.Lock()
	s.entries[e.spec.ID] = e
	s.mu.Unlock()
}

// Create validates, opens and persists a new definition. An empty ID is
// assigned.
func (s *Service) Create(ctx context.Context, spec StreamSpec) (Status, error) {
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	if strings.ContainsAny(spec.ID, " ./\\") {
		return Status{}, NewStreamError(ErrCodeInvalidParams, fmt.Sprintf("invalid stream id %q", spec.ID), nil)
	}
	if err := spec.normalize(); err != nil {
		return Status{}, err
	}

	s.mu.Lock()
	_, exists := s.entries[spec.ID]
	s.mu.Unlock()
	if exists {
		return Status{}, NewStreamError(ErrCodeStreamExists, fmt.Sprintf("stream %s already exists", spec.ID), nil)
	}

	now := time.Now().UTC()
	spec.CreatedAt = now
	spec.UpdatedAt = now

	e, err := s.open(ctx, spec)
	if err != nil {
		return Status{}, err
	}
	if err := s.store.AddStream(spec); err != nil {
		e.stream.Destroy()
		return Status{}, NewStreamError(ErrCodeConfigError, "save stream", err)
	}
	s.remember(e)
	s.logger.Info("Stream created", "stream_id", spec.ID, "direction", spec.Direction)
	return e.status(), nil
}

// open resolves devices and opens the backend stream, starting it when
// the definition asks for it.
func (s *Service) open(ctx context.Context, spec StreamSpec) (*entry, error) {
	params, err := spec.params()
	if err != nil {
		return nil, err
	}
	opts := backend.StreamOptions{
		ID:            spec.ID,
		Name:          spec.Name,
		LatencyFrames: spec.LatencyFrames,
	}
	if spec.hasOutput() {
		id, err := ResolveDevice(ctx, s.backend, spec.OutputDevice, device.TypeOutput)
		if err != nil {
			return nil, err
		}
		p := params
		opts.Output = &p
		opts.OutputDevice = id
	}
	if spec.hasInput() {
		id, err := ResolveDevice(ctx, s.backend, spec.InputDevice, device.TypeInput)
		if err != nil {
			return nil, err
		}
		p := params
		opts.Input = &p
		opts.InputDevice = id
	}

	e := &entry{spec: spec}
	tone := NewTone(spec.ToneHz, 0)
	switch spec.Direction {
	case DirectionOutput:
		opts.Data = tone.Render
	case DirectionInput:
		e.meter = NewMeter()
		opts.Data = e.meter.Render
	default:
		e.meter = NewMeter()
		opts.Data = func(in, out *audio.Float32Buffer, frames int) int {
			e.meter.Render(in, nil, frames)
			return tone.Render(nil, out, frames)
		}
	}
	opts.State = func(change backend.StateChange) {
		if change == backend.StateChangeError {
			s.logger.Warn("Stream entered error state", "stream_id", spec.ID)
		}
	}

	stream, err := s.backend.NewStream(opts)
	if err != nil {
		return nil, err
	}
	e.stream = stream

	if spec.Volume != nil {
		if err := stream.SetVolume(*spec.Volume); err != nil {
			stream.Destroy()
			return nil, err
		}
	}
	if spec.Autostart {
		if err := stream.Start(); err != nil {
			stream.Destroy()
			return nil, fmt.Errorf("autostart: %w", err)
		}
	}
	return e, nil
}

func (s *Service) lookup(id string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, NewStreamError(ErrCodeStreamNotFound, fmt.Sprintf("stream %s not found", id), nil)
	}
	return e, nil
}

func (s *Service) live(id string) (*entry, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if e.failed {
		return nil, NewStreamError(ErrCodeInvalidParams, fmt.Sprintf("stream %s failed to open", id), e.err)
	}
	return e, nil
}

// Get returns the status of one stream.
func (s *Service) Get(id string) (Status, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Status{}, err
	}
	return e.status(), nil
}

// List returns every stream sorted by ID.
func (s *Service) List() []Status {
	s.mu.Lock()
	list := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		list = append(list, e)
	}
	s.mu.Unlock()

	slices.SortFunc(list, func(a, b *entry) int { return strings.Compare(a.spec.ID, b.spec.ID) })
	out := make([]Status, 0, len(list))
	for _, e := range list {
		out = append(out, e.status())
	}
	return out
}

// Start starts a stream.
func (s *Service) Start(id string) (Status, error) {
	e, err := s.live(id)
	if err != nil {
		return Status{}, err
	}
	if err := e.stream.Start(); err != nil {
		return Status{}, err
	}
	return e.status(), nil
}

// Stop stops a stream.
func (s *Service) Stop(id string) (Status, error) {
	e, err := s.live(id)
	if err != nil {
		return Status{}, err
	}
	if err := e.stream.Stop(); err != nil {
		return Status{}, err
	}
	return e.status(), nil
}

// SetVolume changes and persists the output gain of a stream.
func (s *Service) SetVolume(id string, volume float32) (Status, error) {
	e, err := s.live(id)
	if err != nil {
		return Status{}, err
	}
	if err := e.stream.SetVolume(volume); err != nil {
		return Status{}, err
	}

	e.mu.Lock()
	e.spec.Volume = &volume
	e.spec.UpdatedAt = time.Now().UTC()
	spec := e.spec
	e.mu.Unlock()

	if err := s.store.UpdateStream(id, spec); err != nil {
		return Status{}, NewStreamError(ErrCodeConfigError, "save stream", err)
	}
	return e.status(), nil
}

// ResetDevice rebinds every side of a stream to the default device.
func (s *Service) ResetDevice(id string) (Status, error) {
	e, err := s.live(id)
	if err != nil {
		return Status{}, err
	}
	if err := e.stream.ResetDefaultDevice(); err != nil {
		return Status{}, err
	}
	return e.status(), nil
}

// Delete destroys a stream and removes its definition.
func (s *Service) Delete(id string) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()
	if !ok {
		return NewStreamError(ErrCodeStreamNotFound, fmt.Sprintf("stream %s not found", id), nil)
	}

	if e.stream != nil {
		e.stream.Destroy()
	}
	if err := s.store.RemoveStream(id); err != nil {
		return NewStreamError(ErrCodeConfigError, "save streams", err)
	}
	s.logger.Info("Stream deleted", "stream_id", id)
	return nil
}

// Close destroys every open stream. Definitions stay in the store.
func (s *Service) Close() {
	s.mu.Lock()
	entries := s.entries
	s.entries = make(map[string]*entry)
	s.mu.Unlock()

	for _, e := range entries {
		if e.stream != nil {
			e.stream.Destroy()
		}
	}
}

func (e *entry) status() Status {
	e.mu.Lock()
	st := Status{Spec: e.spec}
	e.mu.Unlock()
	if e.failed {
		st.State = "error"
		if e.err != nil {
			st.Error = e.err.Error()
		}
		return st
	}

	s := e.stream
	st.State = s.State().String()
	st.Switching = s.Switching()
	st.Position = s.Position()
	st.LatencyFrames = s.Latency()
	st.Volume = s.Volume()
	st.Reinits = s.Reinits()
	st.Coalesced = s.Coalesced()
	if e.meter != nil {
		st.PeakLevel = e.meter.Peak()
	}
	cur := s.CurrentDevice()
	if cur.Output != nil {
		st.Output = &DeviceStatus{ID: uint32(cur.Output.ID), Flags: cur.Output.Flags.String()}
	}
	if cur.Input != nil {
		st.Input = &DeviceStatus{ID: uint32(cur.Input.ID), Flags: cur.Input.Flags.String()}
	}
	return st
}
