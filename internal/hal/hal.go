// Package hal defines the hardware property service the audio backend
// queries for devices, capabilities and change notifications.
//
// The service is an opaque collaborator: it answers property queries for
// hardware objects and calls registered listeners from its own goroutine
// when a property changes. Implementations live in the simhal, alsahal and
// malgohal subpackages.
package hal

import (
	"context"
	"fmt"
)

// ObjectID identifies a hardware object (the system object or a device).
type ObjectID uint32

const (
	// ObjectUnknown is the "unspecified" sentinel. It never denotes a valid object.
	ObjectUnknown ObjectID = 0
	// SystemObject is the process-wide audio system object.
	SystemObject ObjectID = 1
)

func (id ObjectID) String() string {
	switch id {
	case ObjectUnknown:
		return "unknown"
	case SystemObject:
		return "system"
	default:
		return fmt.Sprintf("%d", uint32(id))
	}
}

// Scope is a logical audio direction for a property query.
type Scope int

const (
	ScopeGlobal Scope = iota
	ScopeInput
	ScopeOutput
)

func (s Scope) String() string {
	switch s {
	case ScopeInput:
		return "input"
	case ScopeOutput:
		return "output"
	default:
		return "global"
	}
}

// Selector names a hardware property.
type Selector string

const (
	SelectorDevices             Selector = "devices"
	SelectorDefaultInputDevice  Selector = "default-input-device"
	SelectorDefaultOutputDevice Selector = "default-output-device"
	SelectorDeviceIsAlive       Selector = "device-is-alive"
	SelectorDataSource          Selector = "data-source"
	SelectorNominalSampleRate   Selector = "nominal-sample-rate"
	SelectorStreamConfiguration Selector = "stream-configuration"
)

// PropertyAddress identifies one property of a hardware object.
type PropertyAddress struct {
	Selector Selector
	Scope    Scope
}

func (a PropertyAddress) String() string {
	return string(a.Selector) + "/" + a.Scope.String()
}

// ListenerFunc is invoked by the service when one or more properties of an
// object change. It runs on a service-owned goroutine.
type ListenerFunc func(id ObjectID, addrs []PropertyAddress)

// Listener is a registered notification hook. Services key registrations
// by the *Listener pointer, so the same Listener must be passed to remove
// what was added.
type Listener struct {
	Func ListenerFunc
}

// Service is the hardware property service.
type Service interface {
	// Name identifies the implementation ("sim", "alsa", "malgo").
	Name() string

	// Devices returns every device handle. The order is not guaranteed.
	Devices(ctx context.Context) ([]ObjectID, error)
	// ChannelCount returns the number of channels a device exposes in scope.
	ChannelCount(id ObjectID, scope Scope) (uint32, error)
	// DefaultDevice returns the default device for scope or ObjectUnknown.
	DefaultDevice(scope Scope) (ObjectID, error)

	DeviceUID(id ObjectID) (string, error)
	DeviceName(id ObjectID) (string, error)
	Manufacturer(id ObjectID) (string, error)

	NominalSampleRate(id ObjectID) (float64, error)
	SampleRateRange(id ObjectID) (minRate, maxRate float64, err error)
	BufferFrameSizeRange(id ObjectID) (minFrames, maxFrames uint32, err error)
	// ChannelLabels returns the preferred channel labels of a device in scope.
	ChannelLabels(id ObjectID, scope Scope) ([]ChannelLabel, error)
	IsAlive(id ObjectID) (bool, error)

	AddPropertyListener(id ObjectID, addr PropertyAddress, l *Listener) error
	RemovePropertyListener(id ObjectID, addr PropertyAddress, l *Listener) error
}

// ValidObject reports whether id can name a hardware object at all.
func ValidObject(id ObjectID) bool {
	return id != ObjectUnknown
}
