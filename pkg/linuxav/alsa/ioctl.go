//go:build linux

package alsa

import (
	"bytes"
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl issues one request, retrying when a signal interrupts it.
func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			continue
		default:
			return errno
		}
	}
}

// openControl opens the control device of a card read-only. A card that
// does not exist reports ErrNoCard.
func openControl(cardNum int) (int, error) {
	fd, err := unix.Open(fmt.Sprintf("/dev/snd/controlC%d", cardNum), unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if errors.Is(err, unix.ENOENT) {
		return -1, ErrNoCard
	}
	if err != nil {
		return -1, fmt.Errorf("open control %d: %w", cardNum, err)
	}
	return fd, nil
}

// cstr converts a NUL-padded kernel string field.
func cstr(b []byte) string {
	s, _, _ := bytes.Cut(b, []byte{0})
	return string(s)
}
