//go:build linux

package alsahal

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/smazurov/audionode/internal/hal"
	"github.com/smazurov/audionode/internal/logging"
	"github.com/smazurov/audionode/pkg/linuxav/alsa"
	"github.com/smazurov/audionode/pkg/linuxav/hotplug"
)

const (
	defaultProbeTTL = 10 * time.Minute
	settleDelay     = 250 * time.Millisecond
)

// lister returns the PCM devices currently present.
type lister func() ([]alsa.Device, error)

type pcm struct {
	id      hal.ObjectID
	uid     string
	name    string
	vendor  string
	caps    map[hal.Scope]alsa.Capabilities
	plugged bool
}

func (p *pcm) channels(scope hal.Scope) uint32 {
	return uint32(max(p.caps[scope].MaxChannels, 0))
}

// primary returns the capabilities used for direction-less properties:
// playback if present, else capture.
func (p *pcm) primary() alsa.Capabilities {
	if c, ok := p.caps[hal.ScopeOutput]; ok {
		return c
	}
	return p.caps[hal.ScopeInput]
}

// Service is the ALSA hardware property service.
type Service struct {
	list   lister
	probes *cache.Cache

	mu       sync.RWMutex
	cfg      Config
	devices  map[hal.ObjectID]*pcm
	defaults map[hal.Scope]hal.ObjectID

	listeners hal.ListenerSet
	dispatch  *hal.Dispatcher
	logger    logging.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ hal.Service = (*Service)(nil)

// New scans the ALSA devices and starts watching for sound-card hotplug.
// Without netlink access the device list stays as first scanned.
func New(cfg Config) (*Service, error) {
	s := newService(cfg, alsa.ListDevices)
	if err := s.Rescan(); err != nil {
		s.Close()
		return nil, err
	}

	mon, err := hotplug.NewMonitor()
	if err != nil {
		s.logger.Warn("Hotplug monitoring unavailable, device list is static", "error", err)
		return s, nil
	}
	mon.AddSubsystemFilter(hotplug.SubsystemSound)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	events := make(chan hotplug.Event, 16)
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := mon.Run(ctx, events); err != nil && ctx.Err() == nil {
			s.logger.Error("Hotplug monitor stopped", "error", err)
		}
	}()
	go func() {
		defer s.wg.Done()
		defer mon.Close()
		s.watch(ctx, events)
	}()
	return s, nil
}

func newService(cfg Config, list lister) *Service {
	ttl := cfg.ProbeTTL
	if ttl <= 0 {
		ttl = defaultProbeTTL
	}
	return &Service{
		list:     list,
		probes:   cache.New(ttl, 2*ttl),
		cfg:      cfg,
		devices:  make(map[hal.ObjectID]*pcm),
		defaults: make(map[hal.Scope]hal.ObjectID),
		dispatch: hal.NewDispatcher(),
		logger:   logging.GetLogger("hal"),
	}
}

// watch rescans once the uevents of a hotplug burst have settled.
func (s *Service) watch(ctx context.Context, events <-chan hotplug.Event) {
	settle := time.NewTimer(settleDelay)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if card, ok := ev.SoundCard(); ok {
				s.logger.Debug("Sound card event", "action", ev.Action, "card", card)
				settle.Reset(settleDelay)
			}
		case <-settle.C:
			if err := s.Rescan(); err != nil {
				s.logger.Warn("ALSA rescan failed", "error", err)
			}
		}
	}
}

// Name implements hal.Service.
func (s *Service) Name() string { return "alsa" }

// Close stops hotplug monitoring and notification delivery.
func (s *Service) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.dispatch.Stop()
	return nil
}

// Rescan re-reads the device list and notifies listeners about devices
// that appeared or vanished and about default-device changes.
func (s *Service) Rescan() error {
	found, err := s.list()
	if err != nil {
		return fmt.Errorf("list ALSA devices: %w", err)
	}

	next := make(map[hal.ObjectID]*pcm)
	for _, d := range found {
		id := ObjectIDFor(d.CardNumber, d.DeviceNumber)
		p, ok := next[id]
		if !ok {
			p = &pcm{
				id:      id,
				uid:     d.ALSADevice,
				name:    d.DeviceName,
				vendor:  d.CardName,
				caps:    make(map[hal.Scope]alsa.Capabilities),
				plugged: true,
			}
			next[id] = p
		}
		if caps := s.capabilities(d); caps.MaxChannels > 0 {
			p.caps[scopeOf(d.Stream)] = caps
		}
	}

	s.mu.Lock()
	var appeared, vanished []hal.ObjectID
	for id := range next {
		if old, ok := s.devices[id]; !ok || !old.plugged {
			appeared = append(appeared, id)
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
	changed := s.resolveDefaultsLocked()
	s.mu.Unlock()

	if len(appeared) > 0 || len(vanished) > 0 {
		s.logger.Info("ALSA devices changed", "appeared", len(appeared), "vanished", len(vanished))
		for _, id := range append(appeared, vanished...) {
			s.listeners.Notify(s.dispatch, id, hal.AliveAddress)
		}
		s.listeners.Notify(s.dispatch, hal.SystemObject, hal.DevicesAddress)
	}
	if len(changed) > 0 {
		s.listeners.Notify(s.dispatch, hal.SystemObject, changed...)
	}
	return nil
}

// capabilities returns the probe result of d, falling back to the last
// successful probe when the device could not be opened (usually EBUSY
// while a stream holds it).
func (s *Service) capabilities(d alsa.Device) alsa.Capabilities {
	key := d.ALSADevice + "/" + d.Stream.String()
	if d.MaxChannels > 0 {
		s.probes.SetDefault(key, d.Capabilities)
		return d.Capabilities
	}
	if cached, ok := s.probes.Get(key); ok {
		return cached.(alsa.Capabilities)
	}
	return d.Capabilities
}

// SetDefaults changes the configured default devices and notifies
// default-device listeners if the effective defaults moved.
func (s *Service) SetDefaults(output, input string) error {
	for _, dev := range []string{output, input} {
		if dev == "" {
			continue
		}
		if _, _, err := alsa.ParseALSADevice(dev); err != nil {
			return hal.NewError(hal.ErrCodeUnspecified, "invalid default device", err)
		}
	}

	s.mu.Lock()
	s.cfg.DefaultOutput = output
	s.cfg.DefaultInput = input
	changed := s.resolveDefaultsLocked()
	s.mu.Unlock()

	if len(changed) > 0 {
		s.listeners.Notify(s.dispatch, hal.SystemObject, changed...)
	}
	return nil
}

func (s *Service) resolveDefaultsLocked() []hal.PropertyAddress {
	var changed []hal.PropertyAddress
	for _, scope := range []hal.Scope{hal.ScopeOutput, hal.ScopeInput} {
		configured := s.cfg.DefaultOutput
		if scope == hal.ScopeInput {
			configured = s.cfg.DefaultInput
		}
		id := s.configuredLocked(configured, scope)
		if id == hal.ObjectUnknown {
			id = s.firstInScopeLocked(scope)
		}
		if s.defaults[scope] != id {
			s.defaults[scope] = id
			changed = append(changed, hal.DefaultAddress(scope))
		}
	}
	return changed
}

func (s *Service) configuredLocked(dev string, scope hal.Scope) hal.ObjectID {
	if dev == "" {
		return hal.ObjectUnknown
	}
	card, device, err := alsa.ParseALSADevice(dev)
	if err != nil {
		return hal.ObjectUnknown
	}
	id := ObjectIDFor(card, device)
	if p, ok := s.devices[id]; ok && p.plugged && p.channels(scope) > 0 {
		return id
	}
	return hal.ObjectUnknown
}

func (s *Service) firstInScopeLocked(scope hal.Scope) hal.ObjectID {
	var ids []hal.ObjectID
	for id, p := range s.devices {
		if p.plugged && p.channels(scope) > 0 {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return hal.ObjectUnknown
	}
	return slices.Min(ids)
}

func scopeOf(stream alsa.Stream) hal.Scope {
	if stream == alsa.StreamCapture {
		return hal.ScopeInput
	}
	return hal.ScopeOutput
}

func (s *Service) lookup(id hal.ObjectID) (*pcm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.devices[id]
	if !ok {
		return nil, hal.BadObject(id)
	}
	return p, nil
}

// Devices implements hal.Service.
func (s *Service) Devices(ctx context.Context) ([]hal.ObjectID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]hal.ObjectID, 0, len(s.devices))
	for id, p := range s.devices {
		if p.plugged {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ChannelCount implements hal.Service.
func (s *Service) ChannelCount(id hal.ObjectID, scope hal.Scope) (uint32, error) {
	p, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	return p.channels(scope), nil
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

// DeviceUID implements hal.Service. The uid is the ALSA device string.
func (s *Service) DeviceUID(id hal.ObjectID) (string, error) {
	p, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	return p.uid, nil
}

// DeviceName implements hal.Service.
func (s *Service) DeviceName(id hal.ObjectID) (string, error) {
	p, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	return p.name, nil
}

// Manufacturer implements hal.Service. ALSA has no vendor property; the
// card's long name is the closest.
func (s *Service) Manufacturer(id hal.ObjectID) (string, error) {
	p, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	return p.vendor, nil
}

// NominalSampleRate implements hal.Service. ALSA devices have no nominal
// rate until opened, so the preferred supported rate stands in.
func (s *Service) NominalSampleRate(id hal.ObjectID) (float64, error) {
	p, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	return float64(p.primary().PreferredRate()), nil
}

// SampleRateRange implements hal.Service.
func (s *Service) SampleRateRange(id hal.ObjectID) (float64, float64, error) {
	p, err := s.lookup(id)
	if err != nil {
		return 0, 0, err
	}
	c := p.primary()
	return float64(c.MinRate), float64(c.MaxRate), nil
}

// BufferFrameSizeRange implements hal.Service.
func (s *Service) BufferFrameSizeRange(id hal.ObjectID) (uint32, uint32, error) {
	p, err := s.lookup(id)
	if err != nil {
		return 0, 0, err
	}
	c := p.primary()
	return uint32(max(c.MinBufferSize, 0)), uint32(max(c.MaxBufferSize, 0)), nil
}

// ChannelLabels implements hal.Service using the ALSA default channel
// maps.
func (s *Service) ChannelLabels(id hal.ObjectID, scope hal.Scope) ([]hal.ChannelLabel, error) {
	p, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return DefaultChannelMap(int(p.channels(scope))), nil
}

// IsAlive implements hal.Service.
func (s *Service) IsAlive(id hal.ObjectID) (bool, error) {
	p, err := s.lookup(id)
	if err != nil {
		return false, err
	}
	return p.plugged, nil
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
