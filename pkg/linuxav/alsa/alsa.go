//go:build linux

// Package alsa enumerates ALSA PCM devices and probes their hardware
// capabilities through the kernel control and PCM ioctl interfaces.
//
// No cgo and no libasound: the package talks to /dev/snd directly, so it
// cross-compiles for amd64, arm64 and arm.
//
//	devices, err := alsa.ListDevices()
//	for _, dev := range devices {
//	    fmt.Printf("%s %s: %s (%d-%d ch)\n", dev.ALSADevice, dev.Stream, dev.DeviceName, dev.MinChannels, dev.MaxChannels)
//	}
package alsa
