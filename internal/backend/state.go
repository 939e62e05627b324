package backend

import (
	"fmt"
	"sync"

	"github.com/smazurov/audionode/internal/device"
	"github.com/smazurov/audionode/internal/logging"
	"github.com/smazurov/audionode/internal/metrics"
)

// CollectionChangedCallback is invoked when the device list of a direction
// changes. userData is the value passed at registration.
type CollectionChangedCallback func(typ device.Type, userData any)

type collectionListener struct {
	callback CollectionChangedCallback
	userData any
}

// State is the process-wide bookkeeping of one context. Every method takes
// the lock for the single operation only; no hardware query happens under it.
type State struct {
	mu     sync.Mutex
	logger logging.Logger

	activeStreams int
	latency       uint32
	hasLatency    bool

	listeners map[device.Type]collectionListener
}

// NewState creates empty context state.
func NewState() *State {
	return &State{
		logger:    logging.GetLogger("backend"),
		listeners: make(map[device.Type]collectionListener),
	}
}

// IncrementActiveStreams adds one open stream and returns the new count.
func (s *State) IncrementActiveStreams() int {
	s.mu.Lock()
	s.activeStreams++
	n := s.activeStreams
	s.mu.Unlock()

	metrics.SetActiveStreams(n)
	return n
}

// DecrementActiveStreams removes one open stream and returns the new
// count. Going below zero panics. The global latency is forgotten once the
// last stream is gone.
func (s *State) DecrementActiveStreams() int {
	s.mu.Lock()
	if s.activeStreams == 0 {
		s.mu.Unlock()
		panic("backend: active stream count would go negative")
	}
	s.activeStreams--
	n := s.activeStreams
	if n == 0 {
		s.latency = 0
		s.hasLatency = false
	}
	s.mu.Unlock()

	metrics.SetActiveStreams(n)
	if n == 0 {
		metrics.SetGlobalLatency(0)
	}
	return n
}

// ActiveStreams returns the number of open streams.
func (s *State) ActiveStreams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeStreams
}

// SetGlobalLatency records the latency shared by running streams. It is
// ignored when no stream is active.
func (s *State) SetGlobalLatency(frames uint32) bool {
	s.mu.Lock()
	if s.activeStreams == 0 {
		s.mu.Unlock()
		s.logger.Debug("Ignoring global latency without active streams", "frames", frames)
		return false
	}
	s.latency = frames
	s.hasLatency = true
	s.mu.Unlock()

	metrics.SetGlobalLatency(frames)
	return true
}

// GlobalLatency returns the recorded latency and whether one is set.
func (s *State) GlobalLatency() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latency, s.hasLatency
}

// SetCollectionListener registers cb for one direction, replacing any
// earlier registration.
func (s *State) SetCollectionListener(typ device.Type, cb CollectionChangedCallback, userData any) {
	if typ != device.TypeInput && typ != device.TypeOutput {
		panic(fmt.Sprintf("backend: collection listener for direction %s", typ))
	}
	s.mu.Lock()
	s.listeners[typ] = collectionListener{callback: cb, userData: userData}
	s.mu.Unlock()
}

// ClearCollectionListener removes the registration for one direction.
func (s *State) ClearCollectionListener(typ device.Type) {
	s.mu.Lock()
	delete(s.listeners, typ)
	s.mu.Unlock()
}

// CollectionListener returns the registration for one direction.
func (s *State) CollectionListener(typ device.Type) (CollectionChangedCallback, any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listeners[typ]
	return l.callback, l.userData, ok
}

// CollectionListenerCount returns the number of registered directions.
func (s *State) CollectionListenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}
