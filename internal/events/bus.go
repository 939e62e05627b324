package events

import (
	"github.com/kelindar/event"
)

// route binds one concrete event type to the dispatcher.
type route struct {
	publish   func(*event.Dispatcher, Event)
	subscribe func(*event.Dispatcher, any) (func(), bool)
}

func routeFor[T Event]() route {
	return route{
		publish: func(d *event.Dispatcher, ev Event) {
			if e, ok := ev.(T); ok {
				event.Publish(d, e)
			}
		},
		subscribe: func(d *event.Dispatcher, handler any) (func(), bool) {
			h, ok := handler.(func(T))
			if !ok {
				return nil, false
			}
			return event.Subscribe(d, h), true
		},
	}
}

// routes is keyed by Event.Type. A type missing here is neither
// published nor subscribable.
var routes = map[uint32]route{
	TypeDeviceCollectionChanged: routeFor[DeviceCollectionChangedEvent](),
	TypeDefaultDeviceChanged:    routeFor[DefaultDeviceChangedEvent](),
	TypeStreamCreated:           routeFor[StreamCreatedEvent](),
	TypeStreamDestroyed:         routeFor[StreamDestroyedEvent](),
	TypeStreamStateChanged:      routeFor[StreamStateChangedEvent](),
	TypeStreamDeviceChanged:     routeFor[StreamDeviceChangedEvent](),
	TypeStreamReinit:            routeFor[StreamReinitEvent](),
	TypeLogEntry:                routeFor[LogEntryEvent](),
	TypeStreamMetrics:           routeFor[StreamMetricsEvent](),
}

// Bus is a typed in-process event bus over a kelindar/event dispatcher.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates an event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish delivers ev to the subscribers of its concrete type. A nil bus,
// a nil event or an unrouted type is dropped.
//
//	bus.Publish(StreamStateChangedEvent{...})
func (b *Bus) Publish(ev Event) {
	if b == nil || ev == nil {
		return
	}
	if r, ok := routes[ev.Type()]; ok {
		r.publish(b.dispatcher, ev)
	}
}

// Subscribe registers handler, a func taking one event type by value, and
// returns its unsubscribe function. Handlers of any other shape are
// ignored.
//
//	unsub := bus.Subscribe(func(e StreamReinitEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	if b != nil {
		for _, r := range routes {
			if unsub, ok := r.subscribe(b.dispatcher, handler); ok {
				return unsub
			}
		}
	}
	return func() {}
}
