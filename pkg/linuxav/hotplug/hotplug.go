//go:build linux

// Package hotplug watches kernel uevents over a netlink socket.
//
// It needs neither cgo nor libudev: the monitor binds to the kernel
// broadcast group and parses the raw "ACTION@DEVPATH\0KEY=VALUE\0..."
// messages.
package hotplug

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// Uevent actions.
const (
	ActionAdd     = "add"
	ActionRemove  = "remove"
	ActionChange  = "change"
	ActionMove    = "move"
	ActionBind    = "bind"
	ActionUnbind  = "unbind"
	ActionOnline  = "online"
	ActionOffline = "offline"
)

// Subsystems.
const (
	SubsystemSound = "sound"
	SubsystemUSB   = "usb"
)

// Event is one kernel uevent.
type Event struct {
	Action    string
	KObj      string // kernel object path, /devices/...
	Subsystem string
	DevType   string
	DevName   string // e.g. "snd/controlC1"
	DevPath   string
	Env       map[string]string
}

// SoundCard returns the card number a sound-subsystem event refers to.
// Only the card object itself ("/devices/.../sound/cardN") and its
// control node count; PCM and timer nodes are ignored so one hotplug
// produces one card event.
func (e Event) SoundCard() (int, bool) {
	if e.Subsystem != SubsystemSound {
		return 0, false
	}
	if name, ok := strings.CutPrefix(e.DevName, "snd/controlC"); ok {
		n, err := strconv.Atoi(name)
		return n, err == nil
	}
	i := strings.LastIndex(e.KObj, "/")
	if i < 0 {
		return 0, false
	}
	name, ok := strings.CutPrefix(e.KObj[i+1:], "card")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(name)
	return n, err == nil
}

// Monitor reads uevents from a netlink socket.
type Monitor struct {
	fd        int
	filters   map[string]struct{}
	filtersMu sync.RWMutex
}

const netlinkKobjectUEvent = 15

// NewMonitor opens a netlink socket bound to the kernel uevent group.
func NewMonitor() (*Monitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, netlinkKobjectUEvent)
	if err != nil {
		return nil, err
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: 1}); err != nil {
		unix.Close(fd)
		return nil, err
	}
	// A receive timeout lets Run notice context cancellation.
	tv := unix.Timeval{Sec: 1}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &Monitor{fd: fd, filters: make(map[string]struct{})}, nil
}

// AddSubsystemFilter restricts Run to the given subsystems. Without
// filters every event passes. Safe for concurrent use.
func (m *Monitor) AddSubsystemFilter(subsystem string) {
	m.filtersMu.Lock()
	m.filters[subsystem] = struct{}{}
	m.filtersMu.Unlock()
}

func (m *Monitor) accepts(subsystem string) bool {
	m.filtersMu.RLock()
	defer m.filtersMu.RUnlock()
	if len(m.filters) == 0 {
		return true
	}
	_, ok := m.filters[subsystem]
	return ok
}

// Close releases the socket.
func (m *Monitor) Close() error {
	return unix.Close(m.fd)
}

// Run delivers events until ctx is done or the socket fails. It closes
// events on return.
func (m *Monitor) Run(ctx context.Context, events chan<- Event) error {
	defer close(events)

	buf := make([]byte, 8192)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, _, err := unix.Recvfrom(m.fd, buf, 0)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}

		event := ParseUEvent(buf[:n])
		if event == nil || !m.accepts(event.Subsystem) {
			continue
		}

		select {
		case events <- *event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

var libudevPrefix = []byte("libudev")

// ParseUEvent parses one uevent datagram. Messages re-broadcast by udevd
// carry a binary "libudev" header that is skipped.
func ParseUEvent(data []byte) *Event {
	if bytes.HasPrefix(data, libudevPrefix) {
		data = skipLibudevHeader(data)
	}

	parts := bytes.Split(data, []byte{0})
	if len(parts) == 0 {
		return nil
	}
	action, kobj, ok := strings.Cut(string(parts[0]), "@")
	if !ok || action == "" {
		return nil
	}

	event := &Event{Action: action, KObj: kobj, Env: make(map[string]string)}
	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(string(part), "=")
		if !ok || key == "" {
			continue
		}
		event.Env[key] = value
		switch key {
		case "SUBSYSTEM":
			event.Subsystem = value
		case "DEVTYPE":
			event.DevType = value
		case "DEVNAME":
			event.DevName = value
		case "DEVPATH":
			event.DevPath = value
		}
	}
	return event
}

func skipLibudevHeader(data []byte) []byte {
	for i := 0; i < len(data)-1; i++ {
		if data[i] != 0 {
			continue
		}
		rest := data[i+1:]
		end := bytes.IndexByte(rest, 0)
		if end < 0 {
			end = len(rest)
		}
		if at := bytes.IndexByte(rest[:end], '@'); at > 0 && at < 20 {
			return rest
		}
	}
	return data
}
