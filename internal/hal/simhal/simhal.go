// Package simhal is an in-memory hardware property service.
//
// Devices are declared up front or added at runtime and can be unplugged,
// re-plugged and promoted to the system default. Property listeners are
// invoked on a single dispatcher goroutine, never on the goroutine that
// caused the change, mirroring how an OS delivers hardware notifications.
package simhal

import (
	"context"
	"sort"
	"sync"

	"github.com/smazurov/audionode/internal/hal"
	"github.com/smazurov/audionode/internal/logging"
)

// Device describes one simulated device.
type Device struct {
	ID             hal.ObjectID
	UID            string
	Name           string
	Manufacturer   string
	InputChannels  uint32
	OutputChannels uint32
	SampleRate     float64
	MinRate        float64
	MaxRate        float64
	MinBuffer      uint32
	MaxBuffer      uint32
	InputLabels    []hal.ChannelLabel
	OutputLabels   []hal.ChannelLabel
}

type simDevice struct {
	Device
	plugged bool
	alive   bool
}

// Service is the simulated hardware.
type Service struct {
	mu        sync.Mutex
	devices   map[hal.ObjectID]*simDevice
	defaults  map[hal.Scope]hal.ObjectID
	listeners hal.ListenerSet
	nextID    hal.ObjectID
	failing   map[hal.ObjectID]error

	dispatch *hal.Dispatcher
	logger   logging.Logger
}

var _ hal.Service = (*Service)(nil)

// New creates a simulated service with the given devices plugged in. The
// first device with output (input) channels becomes the default output
// (input) device.
func New(devices ...Device) *Service {
	s := &Service{
		devices:   make(map[hal.ObjectID]*simDevice),
		defaults:  make(map[hal.Scope]hal.ObjectID),
		nextID:    0x100,
		failing:   make(map[hal.ObjectID]error),
		dispatch:  hal.NewDispatcher(),
		logger:    logging.GetLogger("hal"),
	}
	for _, d := range devices {
		s.add(d)
	}
	for _, scope := range []hal.Scope{hal.ScopeOutput, hal.ScopeInput} {
		s.defaults[scope] = s.firstInScopeLocked(scope)
	}
	return s
}

// Name implements hal.Service.
func (s *Service) Name() string { return "sim" }

// Close stops the dispatcher goroutine. Pending notifications are dropped.
func (s *Service) Close() error {
	s.dispatch.Stop()
	return nil
}

// Sync blocks until every notification queued so far has been delivered.
func (s *Service) Sync() {
	s.dispatch.Sync()
}

func (s *Service) add(d Device) hal.ObjectID {
	if d.ID == hal.ObjectUnknown {
		s.nextID++
		d.ID = s.nextID
	} else if d.ID >= s.nextID {
		s.nextID = d.ID
	}
	if d.SampleRate == 0 {
		d.SampleRate = 48000
	}
	if d.MinRate == 0 {
		d.MinRate = d.SampleRate
	}
	if d.MaxRate == 0 {
		d.MaxRate = d.SampleRate
	}
	s.devices[d.ID] = &simDevice{Device: d, plugged: true, alive: true}
	return d.ID
}

// AddDevice plugs in a new device and notifies device-list listeners.
func (s *Service) AddDevice(d Device) hal.ObjectID {
	s.mu.Lock()
	id := s.add(d)
	changed := s.adoptDefaultsLocked()
	s.mu.Unlock()

	s.notify(hal.SystemObject, hal.DevicesAddress)
	if len(changed) > 0 {
		s.notify(hal.SystemObject, changed...)
	}
	return id
}

// adoptDefaultsLocked fills empty default slots after a device arrives.
func (s *Service) adoptDefaultsLocked() []hal.PropertyAddress {
	var changed []hal.PropertyAddress
	for _, scope := range []hal.Scope{hal.ScopeOutput, hal.ScopeInput} {
		if s.defaults[scope] != hal.ObjectUnknown {
			continue
		}
		if id := s.firstInScopeLocked(scope); id != hal.ObjectUnknown {
			s.defaults[scope] = id
			changed = append(changed, hal.DefaultAddress(scope))
		}
	}
	return changed
}

// Unplug removes a device from the device list and marks it dead. If it
// was a default device, the next device in that scope becomes default.
func (s *Service) Unplug(id hal.ObjectID) error {
	s.mu.Lock()
	d, ok := s.devices[id]
	if !ok || !d.plugged {
		s.mu.Unlock()
		return hal.BadObject(id)
	}
	d.plugged = false
	d.alive = false
	var changed []hal.PropertyAddress
	for _, scope := range []hal.Scope{hal.ScopeOutput, hal.ScopeInput} {
		if s.defaults[scope] == id {
			s.defaults[scope] = s.firstInScopeLocked(scope)
			changed = append(changed, hal.DefaultAddress(scope))
		}
	}
	s.mu.Unlock()

	s.notify(id, hal.AliveAddress)
	s.notify(hal.SystemObject, hal.DevicesAddress)
	if len(changed) > 0 {
		s.notify(hal.SystemObject, changed...)
	}
	return nil
}

// Plug re-attaches a previously unplugged device.
func (s *Service) Plug(id hal.ObjectID) error {
	s.mu.Lock()
	d, ok := s.devices[id]
	if !ok || d.plugged {
		s.mu.Unlock()
		return hal.BadObject(id)
	}
	d.plugged = true
	d.alive = true
	changed := s.adoptDefaultsLocked()
	s.mu.Unlock()

	s.notify(id, hal.AliveAddress)
	s.notify(hal.SystemObject, hal.DevicesAddress)
	if len(changed) > 0 {
		s.notify(hal.SystemObject, changed...)
	}
	return nil
}

// SetDefault makes id the default device for scope.
func (s *Service) SetDefault(scope hal.Scope, id hal.ObjectID) error {
	s.mu.Lock()
	d, ok := s.devices[id]
	if !ok || !d.plugged || channelsLocked(d, scope) == 0 {
		s.mu.Unlock()
		return hal.BadObject(id)
	}
	if s.defaults[scope] == id {
		s.mu.Unlock()
		return nil
	}
	s.defaults[scope] = id
	s.mu.Unlock()

	s.notify(hal.SystemObject, hal.DefaultAddress(scope))
	return nil
}

// SetAlive toggles the alive property of a plugged device without removing it.
func (s *Service) SetAlive(id hal.ObjectID, alive bool) error {
	s.mu.Lock()
	d, ok := s.devices[id]
	if !ok {
		s.mu.Unlock()
		return hal.BadObject(id)
	}
	d.alive = alive
	s.mu.Unlock()

	s.notify(id, hal.AliveAddress)
	return nil
}

// ChangeDataSource fires a data-source notification for a device.
func (s *Service) ChangeDataSource(id hal.ObjectID, scope hal.Scope) {
	s.notify(id, hal.PropertyAddress{Selector: hal.SelectorDataSource, Scope: scope})
}

// FailDevice makes every property query against id return err until it is
// cleared with a nil err.
func (s *Service) FailDevice(id hal.ObjectID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failing, id)
		return
	}
	s.failing[id] = err
}

// ListenerCount returns the number of listeners registered at (id, addr).
func (s *Service) ListenerCount(id hal.ObjectID, addr hal.PropertyAddress) int {
	return s.listeners.Count(id, addr)
}

// Devices implements hal.Service. The result is deliberately not sorted
// by handle.
func (s *Service) Devices(ctx context.Context) ([]hal.ObjectID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]hal.ObjectID, 0, len(s.devices))
	for id, d := range s.devices {
		if d.plugged {
			ids = append(ids, id)
		}
	}
	// Reverse order so callers cannot rely on ascending handles.
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	return ids, nil
}

// ChannelCount implements hal.Service.
func (s *Service) ChannelCount(id hal.ObjectID, scope hal.Scope) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.lookupLocked(id)
	if err != nil {
		return 0, err
	}
	return channelsLocked(d, scope), nil
}

// DefaultDevice implements hal.Service.
func (s *Service) DefaultDevice(scope hal.Scope) (hal.ObjectID, error) {
	if scope != hal.ScopeInput && scope != hal.ScopeOutput {
		return hal.ObjectUnknown, hal.NewError(hal.ErrCodeUnknownProperty, "default device requires input or output scope", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaults[scope], nil
}

// DeviceUID implements hal.Service.
func (s *Service) DeviceUID(id hal.ObjectID) (string, error) {
	return s.stringProp(id, func(d *simDevice) string { return d.UID })
}

// DeviceName implements hal.Service.
func (s *Service) DeviceName(id hal.ObjectID) (string, error) {
	return s.stringProp(id, func(d *simDevice) string { return d.Name })
}

// Manufacturer implements hal.Service.
func (s *Service) Manufacturer(id hal.ObjectID) (string, error) {
	return s.stringProp(id, func(d *simDevice) string { return d.Manufacturer })
}

func (s *Service) stringProp(id hal.ObjectID, get func(*simDevice) string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.lookupLocked(id)
	if err != nil {
		return "", err
	}
	return get(d), nil
}

// NominalSampleRate implements hal.Service.
func (s *Service) NominalSampleRate(id hal.ObjectID) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.lookupLocked(id)
	if err != nil {
		return 0, err
	}
	return d.SampleRate, nil
}

// SampleRateRange implements hal.Service.
func (s *Service) SampleRateRange(id hal.ObjectID) (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.lookupLocked(id)
	if err != nil {
		return 0, 0, err
	}
	return d.MinRate, d.MaxRate, nil
}

// BufferFrameSizeRange implements hal.Service.
func (s *Service) BufferFrameSizeRange(id hal.ObjectID) (uint32, uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.lookupLocked(id)
	if err != nil {
		return 0, 0, err
	}
	return d.MinBuffer, d.MaxBuffer, nil
}

// ChannelLabels implements hal.Service. Devices without explicit labels
// report Left, Right, then Unknown for each remaining channel.
func (s *Service) ChannelLabels(id hal.ObjectID, scope hal.Scope) ([]hal.ChannelLabel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	labels := d.OutputLabels
	if scope == hal.ScopeInput {
		labels = d.InputLabels
	}
	if labels != nil {
		return append([]hal.ChannelLabel(nil), labels...), nil
	}
	n := channelsLocked(d, scope)
	out := make([]hal.ChannelLabel, n)
	for i := range out {
		switch i {
		case 0:
			out[i] = hal.LabelLeft
		case 1:
			out[i] = hal.LabelRight
		default:
			out[i] = hal.LabelUnknown
		}
	}
	return out, nil
}

// IsAlive implements hal.Service.
func (s *Service) IsAlive(id hal.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	if !ok {
		return false, hal.BadObject(id)
	}
	return d.alive, nil
}

// AddPropertyListener implements hal.Service.
func (s *Service) AddPropertyListener(id hal.ObjectID, addr hal.PropertyAddress, l *hal.Listener) error {
	s.mu.Lock()
	known := s.knownLocked(id)
	s.mu.Unlock()
	if !known {
		return hal.BadObject(id)
	}
	if err := s.listeners.Add(id, addr, l); err != nil {
		return err
	}
	s.logger.Debug("Listener added", "object", id, "address", addr.String())
	return nil
}

// RemovePropertyListener implements hal.Service. Removing a listener that
// was never added succeeds.
func (s *Service) RemovePropertyListener(id hal.ObjectID, addr hal.PropertyAddress, l *hal.Listener) error {
	s.mu.Lock()
	known := s.knownLocked(id)
	s.mu.Unlock()
	if !known {
		return hal.BadObject(id)
	}
	s.listeners.Remove(id, addr, l)
	return nil
}

func (s *Service) notify(id hal.ObjectID, addrs ...hal.PropertyAddress) {
	s.listeners.Notify(s.dispatch, id, addrs...)
}

func (s *Service) lookupLocked(id hal.ObjectID) (*simDevice, error) {
	if err, ok := s.failing[id]; ok {
		return nil, err
	}
	d, ok := s.devices[id]
	if !ok {
		return nil, hal.BadObject(id)
	}
	return d, nil
}

func (s *Service) knownLocked(id hal.ObjectID) bool {
	if id == hal.SystemObject {
		return true
	}
	_, ok := s.devices[id]
	return ok
}

func (s *Service) firstInScopeLocked(scope hal.Scope) hal.ObjectID {
	ids := make([]hal.ObjectID, 0, len(s.devices))
	for id, d := range s.devices {
		if d.plugged && channelsLocked(d, scope) > 0 {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return hal.ObjectUnknown
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids[0]
}

func channelsLocked(d *simDevice, scope hal.Scope) uint32 {
	switch scope {
	case hal.ScopeInput:
		return d.InputChannels
	case hal.ScopeOutput:
		return d.OutputChannels
	default:
		return 0
	}
}
