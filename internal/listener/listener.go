// Package listener installs and removes hardware property notifications.
package listener

import (
	"fmt"

	"github.com/smazurov/audionode/internal/hal"
	"github.com/smazurov/audionode/internal/logging"
)

// Common property addresses.
var (
	Devices = hal.PropertyAddress{Selector: hal.SelectorDevices, Scope: hal.ScopeGlobal}

	DefaultOutputDevice = hal.PropertyAddress{Selector: hal.SelectorDefaultOutputDevice, Scope: hal.ScopeGlobal}
	DefaultInputDevice  = hal.PropertyAddress{Selector: hal.SelectorDefaultInputDevice, Scope: hal.ScopeGlobal}

	DeviceIsAlive = hal.PropertyAddress{Selector: hal.SelectorDeviceIsAlive, Scope: hal.ScopeGlobal}

	OutputDataSource = hal.PropertyAddress{Selector: hal.SelectorDataSource, Scope: hal.ScopeOutput}
	InputDataSource  = hal.PropertyAddress{Selector: hal.SelectorDataSource, Scope: hal.ScopeInput}
)

// DefaultDevice returns the default-device address for a scope.
func DefaultDevice(scope hal.Scope) hal.PropertyAddress {
	if scope == hal.ScopeInput {
		return DefaultInputDevice
	}
	return DefaultOutputDevice
}

// DataSource returns the data-source address for a scope.
func DataSource(scope hal.Scope) hal.PropertyAddress {
	if scope == hal.ScopeInput {
		return InputDataSource
	}
	return OutputDataSource
}

// Listener is one notification registration: a device, a property and a
// callback. The same *Listener must be used for Add and Remove.
type Listener struct {
	Device  hal.ObjectID
	Address hal.PropertyAddress
	hook    *hal.Listener
}

// New creates a listener that calls fn when the property changes.
func New(device hal.ObjectID, addr hal.PropertyAddress, fn hal.ListenerFunc) *Listener {
	return &Listener{
		Device:  device,
		Address: addr,
		hook:    &hal.Listener{Func: fn},
	}
}

func (l *Listener) String() string {
	return fmt.Sprintf("%s@%s", l.Address, l.Device)
}

// Bridge registers listeners with a hardware property service.
type Bridge struct {
	svc    hal.Service
	logger logging.Logger
}

// NewBridge creates a bridge over svc.
func NewBridge(svc hal.Service) *Bridge {
	return &Bridge{
		svc:    svc,
		logger: logging.GetLogger("hal"),
	}
}

// Add registers l. It fails with hal.ErrBadObject for the unknown sentinel
// or an object the service does not recognise. Registering the same
// listener twice is the caller's problem.
func (b *Bridge) Add(l *Listener) error {
	if !hal.ValidObject(l.Device) {
		return hal.BadObject(l.Device)
	}
	if err := b.svc.AddPropertyListener(l.Device, l.Address, l.hook); err != nil {
		return fmt.Errorf("add listener %s: %w", l, err)
	}
	b.logger.Debug("Property listener added", "listener", l.String())
	return nil
}

// Remove unregisters l. Removing a listener that was never added, or was
// already removed, succeeds. The unknown sentinel still fails with
// hal.ErrBadObject.
func (b *Bridge) Remove(l *Listener) error {
	if !hal.ValidObject(l.Device) {
		return hal.BadObject(l.Device)
	}
	if err := b.svc.RemovePropertyListener(l.Device, l.Address, l.hook); err != nil {
		return fmt.Errorf("remove listener %s: %w", l, err)
	}
	b.logger.Debug("Property listener removed", "listener", l.String())
	return nil
}

// EventString names a property selector for logs and API payloads.
func EventString(addr hal.PropertyAddress) string {
	switch addr.Selector {
	case hal.SelectorDevices:
		return "devices-changed"
	case hal.SelectorDefaultOutputDevice:
		return "default-output-device-changed"
	case hal.SelectorDefaultInputDevice:
		return "default-input-device-changed"
	case hal.SelectorDeviceIsAlive:
		return "device-is-alive-changed"
	case hal.SelectorDataSource:
		return "data-source-changed"
	default:
		return string(addr.Selector) + "-changed"
	}
}
