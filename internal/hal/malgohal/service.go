// Package malgohal is a hardware property service backed by miniaudio
// through malgo. miniaudio has no change notifications, so the device
// list is polled and diffed.
package malgohal

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/audionode/internal/hal"
	"github.com/smazurov/audionode/internal/logging"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultRate         = 48000
	firstObjectID       = 0x2000

	// miniaudio sizes periods to whatever is requested; these are the
	// bounds the renderer accepts.
	minPeriodFrames = 64
	maxPeriodFrames = 8192
)

// Config configures the malgo service.
type Config struct {
	PollInterval time.Duration
}

// entry is one device as miniaudio reports it in one direction.
type entry struct {
	key       string
	name      string
	isDefault bool
	channels  uint32
	minRate   uint32
	maxRate   uint32
	native    any
}

// snapshot holds the playback and capture lists of one scan.
type snapshot struct {
	playback []entry
	capture  []entry
}

type scanFunc func() (snapshot, error)

type device struct {
	id      hal.ObjectID
	key     string
	name    string
	sides   map[hal.Scope]entry
	plugged bool
}

func (d *device) channels(scope hal.Scope) uint32 {
	return d.sides[scope].channels
}

func (d *device) primary() entry {
	if e, ok := d.sides[hal.ScopeOutput]; ok {
		return e
	}
	return d.sides[hal.ScopeInput]
}

// Service is the malgo hardware property service.
type Service struct {
	scan   scanFunc
	closer func()
	engine any // *malgo.AllocatedContext in cgo builds

	mu       sync.RWMutex
	ids      map[string]hal.ObjectID
	nextID   hal.ObjectID
	devices  map[hal.ObjectID]*device
	defaults map[hal.Scope]hal.ObjectID

	listeners hal.ListenerSet
	dispatch  *hal.Dispatcher
	logger    logging.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ hal.Service = (*Service)(nil)

func newService(scan scanFunc) *Service {
	return &Service{
		scan:     scan,
		ids:      make(map[string]hal.ObjectID),
		nextID:   firstObjectID,
		devices:  make(map[hal.ObjectID]*device),
		defaults: make(map[hal.Scope]hal.ObjectID),
		dispatch: hal.NewDispatcher(),
		logger:   logging.GetLogger("hal"),
	}
}

func (s *Service) startPolling(interval time.Duration) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Refresh(); err != nil {
					s.logger.Warn("malgo device poll failed", "error", err)
				}
			}
		}
	}()
}

// Name implements hal.Service.
func (s *Service) Name() string { return "malgo" }

// Close stops polling and releases the miniaudio context.
func (s *Service) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.dispatch.Stop()
	if s.closer != nil {
		s.closer()
	}
	return nil
}

// Refresh scans the devices once and notifies listeners about changes.
func (s *Service) Refresh() error {
	snap, err := s.scan()
	if err != nil {
		return err
	}

	s.mu.Lock()
	next := make(map[hal.ObjectID]*device)
	chosen := make(map[hal.Scope]hal.ObjectID)
	for _, side := range []struct {
		scope   hal.Scope
		entries []entry
	}{{hal.ScopeOutput, snap.playback}, {hal.ScopeInput, snap.capture}} {
		for _, e := range side.entries {
			id := s.objectIDLocked(e.key)
			d, ok := next[id]
			if !ok {
				d = &device{id: id, key: e.key, name: e.name, sides: make(map[hal.Scope]entry), plugged: true}
				next[id] = d
			}
			d.sides[side.scope] = e
			if e.isDefault && e.channels > 0 {
				chosen[side.scope] = id
			}
		}
	}

	var appeared, vanished, reshaped []hal.ObjectID
	for id, d := range next {
		old, ok := s.devices[id]
		switch {
		case !ok || !old.plugged:
			appeared = append(appeared, id)
		case old.channels(hal.ScopeOutput) != d.channels(hal.ScopeOutput) ||
			old.channels(hal.ScopeInput) != d.channels(hal.ScopeInput):
			reshaped = append(reshaped, id)
		}
	}
	for id, old := range s.devices {
		if _, ok := next[id]; ok {
			continue
		}
		if old.plugged {
			vanished = append(vanished, id)
		}
		old.plugged = false
		next[id] = old
	}
	s.devices = next

	var changed []hal.PropertyAddress
	for _, scope := range []hal.Scope{hal.ScopeOutput, hal.ScopeInput} {
		id, ok := chosen[scope]
		if !ok {
			id = s.firstInScopeLocked(scope)
		}
		if s.defaults[scope] != id {
			s.defaults[scope] = id
			changed = append(changed, hal.DefaultAddress(scope))
		}
	}
	s.mu.Unlock()

	for _, id := range append(appeared, vanished...) {
		s.listeners.Notify(s.dispatch, id, hal.AliveAddress)
	}
	for _, id := range reshaped {
		s.listeners.Notify(s.dispatch, id,
			hal.PropertyAddress{Selector: hal.SelectorStreamConfiguration, Scope: hal.ScopeOutput},
			hal.PropertyAddress{Selector: hal.SelectorStreamConfiguration, Scope: hal.ScopeInput})
	}
	if len(appeared)+len(vanished)+len(reshaped) > 0 {
		s.logger.Info("malgo devices changed", "appeared", len(appeared), "vanished", len(vanished), "reshaped", len(reshaped))
		s.listeners.Notify(s.dispatch, hal.SystemObject, hal.DevicesAddress)
	}
	if len(changed) > 0 {
		s.listeners.Notify(s.dispatch, hal.SystemObject, changed...)
	}
	return nil
}

// objectIDLocked keeps a device's object id stable across scans.
func (s *Service) objectIDLocked(key string) hal.ObjectID {
	if id, ok := s.ids[key]; ok {
		return id
	}
	s.nextID++
	s.ids[key] = s.nextID
	return s.nextID
}

func (s *Service) firstInScopeLocked(scope hal.Scope) hal.ObjectID {
	var ids []hal.ObjectID
	for id, d := range s.devices {
		if d.plugged && d.channels(scope) > 0 {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return hal.ObjectUnknown
	}
	return slices.Min(ids)
}

func (s *Service) lookup(id hal.ObjectID) (*device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[id]
	if !ok {
		return nil, hal.BadObject(id)
	}
	return d, nil
}

// native returns the miniaudio device id behind an object for scope.
func (s *Service) native(id hal.ObjectID, scope hal.Scope) (any, error) {
	d, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e, ok := d.sides[scope]
	if !ok || !d.plugged {
		return nil, hal.NewError(hal.ErrCodeNoDevice, "device not available in "+scope.String()+" scope", nil)
	}
	return e.native, nil
}

// Devices implements hal.Service.
func (s *Service) Devices(ctx context.Context) ([]hal.ObjectID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]hal.ObjectID, 0, len(s.devices))
	for id, d := range s.devices {
		if d.plugged {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ChannelCount implements hal.Service.
func (s *Service) ChannelCount(id hal.ObjectID, scope hal.Scope) (uint32, error) {
	d, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	return d.channels(scope), nil
}

// DefaultDevice implements hal.Service.
func (s *Service) DefaultDevice(scope hal.Scope) (hal.ObjectID, error) {
	if scope != hal.ScopeInput && scope != hal.ScopeOutput {
		return hal.ObjectUnknown, hal.NewError(hal.ErrCodeUnknownProperty, "default device requires input or output scope", nil)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaults[scope], nil
}

// DeviceUID implements hal.Service.
func (s *Service) DeviceUID(id hal.ObjectID) (string, error) {
	d, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	return d.key, nil
}

// DeviceName implements hal.Service.
func (s *Service) DeviceName(id hal.ObjectID) (string, error) {
	d, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	return d.name, nil
}

// Manufacturer implements hal.Service. miniaudio does not report one.
func (s *Service) Manufacturer(id hal.ObjectID) (string, error) {
	if _, err := s.lookup(id); err != nil {
		return "", err
	}
	return "", nil
}

// NominalSampleRate implements hal.Service.
func (s *Service) NominalSampleRate(id hal.ObjectID) (float64, error) {
	d, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	e := d.primary()
	if e.maxRate == 0 || (e.minRate <= defaultRate && defaultRate <= e.maxRate) {
		return defaultRate, nil
	}
	return float64(e.maxRate), nil
}

// SampleRateRange implements hal.Service.
func (s *Service) SampleRateRange(id hal.ObjectID) (float64, float64, error) {
	d, err := s.lookup(id)
	if err != nil {
		return 0, 0, err
	}
	e := d.primary()
	if e.maxRate == 0 {
		return defaultRate, defaultRate, nil
	}
	return float64(e.minRate), float64(e.maxRate), nil
}

// BufferFrameSizeRange implements hal.Service.
func (s *Service) BufferFrameSizeRange(id hal.ObjectID) (uint32, uint32, error) {
	if _, err := s.lookup(id); err != nil {
		return 0, 0, err
	}
	return minPeriodFrames, maxPeriodFrames, nil
}

// ChannelLabels implements hal.Service using miniaudio's standard channel
// order.
func (s *Service) ChannelLabels(id hal.ObjectID, scope hal.Scope) ([]hal.ChannelLabel, error) {
	d, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return standardChannelMap(int(d.channels(scope))), nil
}

// IsAlive implements hal.Service.
func (s *Service) IsAlive(id hal.ObjectID) (bool, error) {
	d, err := s.lookup(id)
	if err != nil {
		return false, err
	}
	return d.plugged, nil
}

func (s *Service) known(id hal.ObjectID) bool {
	if id == hal.SystemObject {
		return true
	}
	_, err := s.lookup(id)
	return err == nil
}

// AddPropertyListener implements hal.Service.
func (s *Service) AddPropertyListener(id hal.ObjectID, addr hal.PropertyAddress, l *hal.Listener) error {
	if !s.known(id) {
		return hal.BadObject(id)
	}
	return s.listeners.Add(id, addr, l)
}

// RemovePropertyListener implements hal.Service.
func (s *Service) RemovePropertyListener(id hal.ObjectID, addr hal.PropertyAddress, l *hal.Listener) error {
	if !s.known(id) {
		return hal.BadObject(id)
	}
	s.listeners.Remove(id, addr, l)
	return nil
}

// Standard order: FL FR FC LFE BL BR SL SR.
var standardMaps = map[int][]hal.ChannelLabel{
	1: {hal.LabelMono},
	2: {hal.LabelLeft, hal.LabelRight},
	3: {hal.LabelLeft, hal.LabelRight, hal.LabelCenter},
	4: {hal.LabelLeft, hal.LabelRight, hal.LabelLeftSurround, hal.LabelRightSurround},
	5: {hal.LabelLeft, hal.LabelRight, hal.LabelCenter, hal.LabelLeftSurround, hal.LabelRightSurround},
	6: {hal.LabelLeft, hal.LabelRight, hal.LabelCenter, hal.LabelLFEScreen, hal.LabelLeftSurround, hal.LabelRightSurround},
	8: {
		hal.LabelLeft, hal.LabelRight, hal.LabelCenter, hal.LabelLFEScreen,
		hal.LabelLeftSurround, hal.LabelRightSurround, hal.LabelLeftSurroundDirect, hal.LabelRightSurroundDirect,
	},
}

func standardChannelMap(channels int) []hal.ChannelLabel {
	if m, ok := standardMaps[channels]; ok {
		return slices.Clone(m)
	}
	if channels <= 0 {
		return nil
	}
	labels := make([]hal.ChannelLabel, channels)
	for i := range labels {
		labels[i] = hal.LabelUnknown
	}
	return labels
}
