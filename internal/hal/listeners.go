package hal

import "sync"

type listenerKey struct {
	id   ObjectID
	addr PropertyAddress
}

// ListenerSet is the listener registry shared by service implementations.
// Registrations are keyed by (object, address, *Listener).
type ListenerSet struct {
	mu        sync.Mutex
	listeners map[listenerKey][]*Listener
}

// Add registers l at (id, addr).
func (s *ListenerSet) Add(id ObjectID, addr PropertyAddress, l *Listener) error {
	if l == nil || l.Func == nil {
		return NewError(ErrCodeUnspecified, "nil listener", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listeners == nil {
		s.listeners = make(map[listenerKey][]*Listener)
	}
	key := listenerKey{id, addr}
	s.listeners[key] = append(s.listeners[key], l)
	return nil
}

// Remove unregisters l. Removing a listener that is not registered is a
// no-op.
func (s *ListenerSet) Remove(id ObjectID, addr PropertyAddress, l *Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := listenerKey{id, addr}
	list := s.listeners[key]
	for i, existing := range list {
		if existing == l {
			s.listeners[key] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(s.listeners[key]) == 0 {
		delete(s.listeners, key)
	}
}

// Count returns the number of listeners registered at (id, addr).
func (s *ListenerSet) Count(id ObjectID, addr PropertyAddress) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners[listenerKey{id, addr}])
}

// Notify posts one callback per matching listener to d. A listener
// registered at several of the changed addresses receives them all in a
// single call.
func (s *ListenerSet) Notify(d *Dispatcher, id ObjectID, addrs ...PropertyAddress) {
	type delivery struct {
		l     *Listener
		addrs []PropertyAddress
	}

	s.mu.Lock()
	var deliveries []*delivery
	index := make(map[*Listener]*delivery)
	for _, addr := range addrs {
		for _, l := range s.listeners[listenerKey{id, addr}] {
			dl, ok := index[l]
			if !ok {
				dl = &delivery{l: l}
				index[l] = dl
				deliveries = append(deliveries, dl)
			}
			dl.addrs = append(dl.addrs, addr)
		}
	}
	s.mu.Unlock()

	for _, dl := range deliveries {
		d.Post(func() {
			dl.l.Func(id, dl.addrs)
		})
	}
}

// DevicesAddress is the device-list property of the system object.
var DevicesAddress = PropertyAddress{Selector: SelectorDevices, Scope: ScopeGlobal}

// AliveAddress is the is-alive property of a device.
var AliveAddress = PropertyAddress{Selector: SelectorDeviceIsAlive, Scope: ScopeGlobal}

// DefaultAddress is the default-device property of the system object for
// scope.
func DefaultAddress(scope Scope) PropertyAddress {
	if scope == ScopeInput {
		return PropertyAddress{Selector: SelectorDefaultInputDevice, Scope: ScopeGlobal}
	}
	return PropertyAddress{Selector: SelectorDefaultOutputDevice, Scope: ScopeGlobal}
}
