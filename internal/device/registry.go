// Package device enumerates hardware audio devices into owned collections.
package device

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/smazurov/audionode/internal/hal"
	"github.com/smazurov/audionode/internal/logging"
)

const (
	defaultRate = 44100
)

var (
	// ErrInvalidType is returned when a descriptor is requested for a
	// direction other than input or output.
	ErrInvalidType = errors.New("device type must be input or output")
	// ErrZeroChannels is returned for a device with no channels in scope.
	ErrZeroChannels = errors.New("device has no channels in scope")
)

// Info describes one device in one direction.
type Info struct {
	ID           hal.ObjectID
	DeviceID     string
	FriendlyName string
	GroupID      string
	VendorName   string

	Type      Type
	State     State
	Preferred Pref

	Format        Format
	DefaultFormat Format
	MaxChannels   uint32

	DefaultRate uint32
	MaxRate     uint32
	MinRate     uint32

	LatencyLo uint32
	LatencyHi uint32
}

// Registry builds device collections from a hardware property service.
type Registry struct {
	svc    hal.Service
	logger logging.Logger

	outstanding atomic.Int64
}

// NewRegistry creates a registry over svc.
func NewRegistry(svc hal.Service) *Registry {
	return &Registry{
		svc:    svc,
		logger: logging.GetLogger("devices"),
	}
}

// Outstanding returns the number of descriptor text fields handed out in
// collections that have not been destroyed yet.
func (r *Registry) Outstanding() int64 {
	return r.outstanding.Load()
}

func scopeOf(typ Type) hal.Scope {
	switch typ {
	case TypeInput:
		return hal.ScopeInput
	case TypeOutput:
		return hal.ScopeOutput
	default:
		return hal.ScopeGlobal
	}
}

// DevicesOfType returns device handles sorted ascending. For a single
// direction, handles with no channels in that scope are dropped. For
// TypeAll the full sorted list is returned without classification.
func (r *Registry) DevicesOfType(ctx context.Context, typ Type) ([]hal.ObjectID, error) {
	ids, err := r.svc.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	slices.Sort(ids)

	if typ == TypeAll {
		return ids, nil
	}

	scope := scopeOf(typ)
	if scope == hal.ScopeGlobal {
		// Legacy behavior: anything that is not input falls back to output.
		r.logger.Warn("Device type is neither input nor output, using output scope", "type", int(typ))
		scope = hal.ScopeOutput
	}

	filtered := make([]hal.ObjectID, 0, len(ids))
	for _, id := range ids {
		channels, err := r.svc.ChannelCount(id, scope)
		if err != nil {
			r.logger.Debug("Skipping device with unreadable channel count", "device", id, "scope", scope.String(), "error", err)
			continue
		}
		if channels > 0 {
			filtered = append(filtered, id)
		}
	}
	return filtered, nil
}

// DefaultDeviceID returns the default device handle for a single direction.
// TypeUnknown, TypeAll and query failures yield hal.ObjectUnknown.
func (r *Registry) DefaultDeviceID(typ Type) hal.ObjectID {
	scope := scopeOf(typ)
	if scope == hal.ScopeGlobal {
		return hal.ObjectUnknown
	}
	id, err := r.svc.DefaultDevice(scope)
	if err != nil {
		r.logger.Debug("Default device query failed", "type", typ.String(), "error", err)
		return hal.ObjectUnknown
	}
	return id
}

// LatencyRange returns the buffer frame size range of the default output
// device.
func (r *Registry) LatencyRange() (minFrames, maxFrames uint32, err error) {
	id := r.DefaultDeviceID(TypeOutput)
	if id == hal.ObjectUnknown {
		return 0, 0, hal.NewError(hal.ErrCodeNoDevice, "no default output device", nil)
	}
	return r.svc.BufferFrameSizeRange(id)
}

// newInfo builds a descriptor for id in one direction.
func (r *Registry) newInfo(id hal.ObjectID, typ Type) (Info, error) {
	scope := scopeOf(typ)
	if scope == hal.ScopeGlobal {
		return Info{}, fmt.Errorf("device %s: %w", id, ErrInvalidType)
	}

	channels, err := r.svc.ChannelCount(id, scope)
	if err != nil {
		return Info{}, fmt.Errorf("device %s channel count: %w", id, err)
	}
	if channels == 0 {
		return Info{}, fmt.Errorf("device %s %s: %w", id, typ, ErrZeroChannels)
	}

	info := Info{
		ID:            id,
		Type:          typ,
		State:         StateEnabled,
		Preferred:     PrefNone,
		Format:        FormatAll,
		DefaultFormat: FormatF32NE,
		MaxChannels:   channels,
		DefaultRate:   defaultRate,
		MinRate:       defaultRate,
		MaxRate:       defaultRate,
	}

	info.DeviceID = r.text(id, "device_id", r.svc.DeviceUID)
	info.FriendlyName = r.text(id, "friendly_name", r.svc.DeviceName)
	info.GroupID = r.text(id, "group_id", r.svc.DeviceUID)
	info.VendorName = r.text(id, "vendor_name", r.svc.Manufacturer)

	if rate, err := r.svc.NominalSampleRate(id); err == nil && rate > 0 {
		info.DefaultRate = uint32(rate)
		info.MinRate = info.DefaultRate
		info.MaxRate = info.DefaultRate
	}
	if lo, hi, err := r.svc.SampleRateRange(id); err == nil && lo > 0 && hi >= lo {
		info.MinRate = uint32(lo)
		info.MaxRate = uint32(hi)
	}
	if lo, hi, err := r.svc.BufferFrameSizeRange(id); err == nil {
		info.LatencyLo = lo
		info.LatencyHi = hi
	}
	if alive, err := r.svc.IsAlive(id); err == nil && !alive {
		info.State = StateUnplugged
	}
	if r.DefaultDeviceID(typ) == id {
		info.Preferred = PrefAll
	}

	for _, s := range []string{info.DeviceID, info.FriendlyName, info.GroupID, info.VendorName} {
		if s != "" {
			r.outstanding.Add(1)
		}
	}
	return info, nil
}

// text reads a string property, falling back to "<id> <field>" when the
// service has nothing.
func (r *Registry) text(id hal.ObjectID, field string, get func(hal.ObjectID) (string, error)) string {
	if s, err := get(id); err == nil && s != "" {
		return s
	}
	return fmt.Sprintf("%d %s", uint32(id), field)
}

// Enumerate builds a collection of output descriptors followed by input
// descriptors for the directions in typ. A failure on any device fails the
// whole call.
func (r *Registry) Enumerate(ctx context.Context, typ Type) (*Collection, error) {
	var infos []Info

	for _, dir := range []Type{TypeOutput, TypeInput} {
		if typ&dir == 0 {
			continue
		}
		ids, err := r.DevicesOfType(ctx, dir)
		if err != nil {
			r.release(infos)
			return nil, err
		}
		for _, id := range ids {
			info, err := r.newInfo(id, dir)
			if err != nil {
				r.release(infos)
				return nil, err
			}
			infos = append(infos, info)
		}
	}

	r.logger.Debug("Enumerated devices", "type", typ.String(), "count", len(infos))

	c := &Collection{owner: r, Count: len(infos)}
	if len(infos) > 0 {
		c.Devices = infos
	}
	return c, nil
}

// Destroy reclaims a collection built by this registry. Destroying an
// already-destroyed collection is a no-op. Destroying a collection from
// anywhere else panics.
func (r *Registry) Destroy(c *Collection) {
	if c == nil {
		return
	}
	if c.owner != r {
		panic("device: collection was not built by this registry")
	}
	if len(c.Devices) != c.Count {
		panic(fmt.Sprintf("device: collection count %d does not match %d descriptors", c.Count, len(c.Devices)))
	}
	r.release(c.Devices)
	c.Devices = nil
	c.Count = 0
}

func (r *Registry) release(infos []Info) {
	for i := range infos {
		for _, s := range []*string{&infos[i].DeviceID, &infos[i].FriendlyName, &infos[i].GroupID, &infos[i].VendorName} {
			if *s != "" {
				*s = ""
				r.outstanding.Add(-1)
			}
		}
	}
}
