// Package backend is the audio backend context: device enumeration, stream
// lifecycle and the process-wide state shared by streams.
package backend

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/audionode/internal/device"
	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/hal"
	"github.com/smazurov/audionode/internal/listener"
	"github.com/smazurov/audionode/internal/logging"
	"github.com/smazurov/audionode/internal/metrics"
)

// EventPublisher publishes backend events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// Options configure a context.
type Options struct {
	// Renderer opens render units for streams. Defaults to a ClockRenderer.
	Renderer Renderer
	// EventBus receives device and stream events. Optional.
	EventBus EventPublisher
}

// Context is one open audio backend.
type Context struct {
	svc      hal.Service
	registry *device.Registry
	bridge   *listener.Bridge
	state    *State
	queue    *taskQueue
	renderer Renderer
	bus      EventPublisher
	logger   logging.Logger

	regMu sync.Mutex

	mu               sync.Mutex
	streams          map[string]*Stream
	devicesListener  *listener.Listener
	defaultListeners []*listener.Listener
	known            map[device.Type][]hal.ObjectID
	closed           bool
}

// New opens a backend context over svc.
func New(svc hal.Service, opts Options) (*Context, error) {
	if svc == nil {
		return nil, NewError(ErrCodeInvalidParams, "hardware service is required", nil)
	}
	renderer := opts.Renderer
	if renderer == nil {
		renderer = NewClockRenderer()
	}

	c := &Context{
		svc:      svc,
		registry: device.NewRegistry(svc),
		bridge:   listener.NewBridge(svc),
		state:    NewState(),
		queue:    newTaskQueue(),
		renderer: renderer,
		bus:      opts.EventBus,
		logger:   logging.GetLogger("backend"),
		streams:  make(map[string]*Stream),
		known:    make(map[device.Type][]hal.ObjectID),
	}

	if c.bus != nil {
		for _, scope := range []hal.Scope{hal.ScopeOutput, hal.ScopeInput} {
			l := listener.New(hal.SystemObject, listener.DefaultDevice(scope), c.onDefaultChanged)
			if err := c.bridge.Add(l); err != nil {
				c.removeListeners()
				c.queue.close()
				return nil, err
			}
			c.defaultListeners = append(c.defaultListeners, l)
		}
	}

	c.logger.Info("Audio backend initialized", "backend", c.BackendID())
	return c, nil
}

// BackendID names the backend.
func (c *Context) BackendID() string {
	return "audionode-" + c.svc.Name()
}

// Registry returns the device registry.
func (c *Context) Registry() *device.Registry {
	return c.registry
}

// State returns the context state.
func (c *Context) State() *State {
	return c.state
}

// Service returns the hardware property service.
func (c *Context) Service() hal.Service {
	return c.svc
}

// MaxChannelCount returns the output channel count of the default output
// device.
func (c *Context) MaxChannelCount() (uint32, error) {
	id := c.registry.DefaultDeviceID(device.TypeOutput)
	if id == hal.ObjectUnknown {
		return 0, NewError(ErrCodeNoDevice, "no default output device", nil)
	}
	return c.svc.ChannelCount(id, hal.ScopeOutput)
}

// MinLatency returns the smallest buffer size in frames of the default
// output device, or 0 when there is no output device.
func (c *Context) MinLatency() (uint32, error) {
	lo, _, err := c.registry.LatencyRange()
	if errors.Is(err, hal.ErrNoDevice) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return lo, nil
}

// PreferredSampleRate returns the nominal rate of the default output
// device.
func (c *Context) PreferredSampleRate() (uint32, error) {
	id := c.registry.DefaultDeviceID(device.TypeOutput)
	if id == hal.ObjectUnknown {
		return 0, NewError(ErrCodeNoDevice, "no default output device", nil)
	}
	rate, err := c.svc.NominalSampleRate(id)
	if err != nil {
		return 0, err
	}
	return uint32(rate), nil
}

// EnumerateDevices builds a device collection. The caller must close it.
func (c *Context) EnumerateDevices(ctx context.Context, typ device.Type) (*device.Collection, error) {
	coll, err := c.registry.Enumerate(ctx, typ)
	metrics.RecordEnumeration(typ.String(), err)
	return coll, err
}

// DestroyDeviceCollection releases a collection built by EnumerateDevices.
func (c *Context) DestroyDeviceCollection(coll *device.Collection) {
	c.registry.Destroy(coll)
}

// RegisterDeviceCollectionChanged installs cb for the directions in typ.
// A nil cb unregisters. The callback runs on the context's task goroutine
// and only for directions whose device list actually changed.
func (c *Context) RegisterDeviceCollectionChanged(typ device.Type, cb CollectionChangedCallback, userData any) error {
	if typ&device.TypeAll == 0 {
		return NewError(ErrCodeInvalidParams, "device type must include input or output", nil)
	}

	dirs := directions(typ)
	snapshots := make(map[device.Type][]hal.ObjectID, len(dirs))
	if cb != nil {
		for _, dir := range dirs {
			ids, err := c.registry.DevicesOfType(context.Background(), dir)
			if err != nil {
				return err
			}
			snapshots[dir] = ids
		}
	}

	// regMu orders registrations so the listener decision below is not
	// raced by another caller while c.mu is released.
	c.regMu.Lock()
	defer c.regMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	for _, dir := range dirs {
		if cb == nil {
			c.state.ClearCollectionListener(dir)
			delete(c.known, dir)
			continue
		}
		c.state.SetCollectionListener(dir, cb, userData)
		c.known[dir] = snapshots[dir]
	}
	wanted := c.state.CollectionListenerCount() > 0
	installed := c.devicesListener
	c.mu.Unlock()

	switch {
	case wanted && installed == nil:
		l := listener.New(hal.SystemObject, listener.Devices, c.onDevicesChanged)
		if err := c.bridge.Add(l); err != nil {
			c.mu.Lock()
			for _, dir := range dirs {
				c.state.ClearCollectionListener(dir)
				delete(c.known, dir)
			}
			c.mu.Unlock()
			return err
		}
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			if err := c.bridge.Remove(l); err != nil {
				c.logger.Warn("Failed to remove listener", "listener", l.String(), "error", err)
			}
			return ErrClosed
		}
		c.devicesListener = l
		c.mu.Unlock()
	case !wanted && installed != nil:
		if err := c.bridge.Remove(installed); err != nil {
			return err
		}
		c.mu.Lock()
		if c.devicesListener == installed {
			c.devicesListener = nil
		}
		c.mu.Unlock()
	}
	return nil
}

func directions(typ device.Type) []device.Type {
	var dirs []device.Type
	for _, dir := range []device.Type{device.TypeInput, device.TypeOutput} {
		if typ&dir != 0 {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

func (c *Context) onDevicesChanged(_ hal.ObjectID, addrs []hal.PropertyAddress) {
	for _, addr := range addrs {
		metrics.RecordNotification(string(addr.Selector))
	}
	c.queue.submit(c.collectionChanged)
}

// collectionChanged runs on the task queue.
func (c *Context) collectionChanged() {
	for _, dir := range []device.Type{device.TypeInput, device.TypeOutput} {
		cb, userData, ok := c.state.CollectionListener(dir)
		if !ok {
			continue
		}
		ids, err := c.registry.DevicesOfType(context.Background(), dir)
		if err != nil {
			c.logger.Warn("Failed to list devices after change", "direction", dir.String(), "error", err)
			continue
		}

		c.mu.Lock()
		changed := !slices.Equal(c.known[dir], ids)
		if changed {
			c.known[dir] = ids
		}
		c.mu.Unlock()
		if !changed {
			continue
		}

		c.logger.Info("Device collection changed", "direction", dir.String(), "count", len(ids))
		metrics.RecordCollectionChange(dir.String())
		c.publish(events.DeviceCollectionChangedEvent{
			Direction: dir.String(),
			Devices:   toUint32s(ids),
			Timestamp: time.Now().Format(time.RFC3339),
		})
		cb(dir, userData)
	}
}

func (c *Context) onDefaultChanged(_ hal.ObjectID, addrs []hal.PropertyAddress) {
	for _, addr := range addrs {
		metrics.RecordNotification(string(addr.Selector))
		typ := device.TypeOutput
		if addr.Selector == hal.SelectorDefaultInputDevice {
			typ = device.TypeInput
		}
		c.queue.submit(func() {
			id := c.registry.DefaultDeviceID(typ)
			c.logger.Info("Default device changed", "direction", typ.String(), "device", id)
			c.publish(events.DefaultDeviceChangedEvent{
				Direction: typ.String(),
				DeviceID:  uint32(id),
				Timestamp: time.Now().Format(time.RFC3339),
			})
		})
	}
}

func toUint32s(ids []hal.ObjectID) []uint32 {
	out := make([]uint32, len(ids))
	for i, id := range ids {
		out[i] = uint32(id)
	}
	return out
}

func (c *Context) publish(ev events.Event) {
	if c.bus != nil {
		c.bus.Publish(ev)
	}
}

// Streams returns the open streams, oldest first.
func (c *Context) Streams() []*Stream {
	c.mu.Lock()
	list := make([]*Stream, 0, len(c.streams))
	for _, s := range c.streams {
		list = append(list, s)
	}
	c.mu.Unlock()

	slices.SortFunc(list, func(a, b *Stream) int {
		return a.created.Compare(b.created)
	})
	return list
}

// Stream returns an open stream by ID.
func (c *Context) Stream(id string) (*Stream, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.streams[id]
	return s, ok
}

func (c *Context) addStream(s *Stream) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if _, ok := c.streams[s.ID]; ok {
		return NewError(ErrCodeStreamExists, fmt.Sprintf("stream %s already open", s.ID), nil)
	}
	c.streams[s.ID] = s
	return nil
}

func (c *Context) removeStream(id string) {
	c.mu.Lock()
	delete(c.streams, id)
	c.mu.Unlock()
}

// Close tears the context down. All streams must have been destroyed;
// closing with live streams panics.
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if len(c.streams) > 0 {
		c.mu.Unlock()
		panic("backend: context closed with live streams")
	}
	c.closed = true
	c.mu.Unlock()

	c.regMu.Lock()
	c.removeListeners()
	c.regMu.Unlock()
	for _, dir := range []device.Type{device.TypeInput, device.TypeOutput} {
		c.state.ClearCollectionListener(dir)
	}
	c.queue.close()
	c.logger.Info("Audio backend closed", "backend", c.BackendID())
}

func (c *Context) removeListeners() {
	c.mu.Lock()
	ls := c.defaultListeners
	if c.devicesListener != nil {
		ls = append(ls, c.devicesListener)
	}
	c.defaultListeners = nil
	c.devicesListener = nil
	c.mu.Unlock()

	for _, l := range ls {
		if err := c.bridge.Remove(l); err != nil {
			c.logger.Warn("Failed to remove listener", "listener", l.String(), "error", err)
		}
	}
}
