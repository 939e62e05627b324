//go:build linux

package alsa

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrNoCard is returned by CardInfo for a card that does not exist.
var ErrNoCard = errors.New("alsa: no such card")

// Card identifies one sound card.
type Card struct {
	Number int
	ID     string
	Driver string
	Name   string
	Long   string
}

// CardInfo reads the identity of one card from its control device.
func CardInfo(cardNum int) (Card, error) {
	fd, err := openControl(cardNum)
	if err != nil {
		return Card{}, err
	}
	defer unix.Close(fd)
	return cardInfo(fd, cardNum)
}

func cardInfo(fd, cardNum int) (Card, error) {
	var info ctlCardInfo
	if err := ioctl(fd, ioctlCardInfo, unsafe.Pointer(&info)); err != nil {
		return Card{}, fmt.Errorf("card %d info: %w", cardNum, err)
	}
	return Card{
		Number: cardNum,
		ID:     cstr(info.id[:]),
		Driver: cstr(info.driver[:]),
		Name:   cstr(info.name[:]),
		Long:   cstr(info.longname[:]),
	}, nil
}

// ListDevices returns every PCM device of every card, one entry per
// direction the device supports. Capability probing is best effort: a
// device that is busy is still listed, with zero capabilities.
func ListDevices() ([]Device, error) {
	var devices []Device

	for cardNum := 0; ; cardNum++ {
		fd, err := openControl(cardNum)
		if errors.Is(err, ErrNoCard) {
			break
		}
		if err != nil {
			continue
		}
		card, err := cardInfo(fd, cardNum)
		if err != nil {
			unix.Close(fd)
			continue
		}
		devices = append(devices, cardDevices(fd, card)...)
		unix.Close(fd)
	}

	return devices, nil
}

// ListCardDevices returns the PCM devices of one card.
func ListCardDevices(cardNum int) ([]Device, error) {
	fd, err := openControl(cardNum)
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)
	card, err := cardInfo(fd, cardNum)
	if err != nil {
		return nil, err
	}
	return cardDevices(fd, card), nil
}

func cardDevices(fd int, card Card) []Device {
	var devices []Device
	deviceNum := int32(-1)
	for {
		if err := ioctl(fd, ioctlPCMNextDevice, unsafe.Pointer(&deviceNum)); err != nil || deviceNum < 0 {
			return devices
		}
		for _, stream := range []Stream{StreamPlayback, StreamCapture} {
			info := pcmInfo{device: uint32(deviceNum), stream: int32(stream)}
			if err := ioctl(fd, ioctlPCMInfo, unsafe.Pointer(&info)); err != nil {
				continue
			}
			dev := Device{
				CardNumber:   card.Number,
				CardID:       card.ID,
				CardName:     card.Long,
				DeviceNumber: int(deviceNum),
				DeviceName:   cstr(info.name[:]),
				Stream:       stream,
				ALSADevice:   FormatALSADevice(card.Number, int(deviceNum)),
			}
			if caps, err := Probe(card.Number, int(deviceNum), stream); err == nil {
				dev.Capabilities = caps
			}
			devices = append(devices, dev)
		}
	}
}

// Probe opens a PCM device and refines an unconstrained hw_params set to
// learn what the hardware supports. The device is opened non-blocking so
// a busy device fails fast with EBUSY.
func Probe(cardNum, deviceNum int, stream Stream) (Capabilities, error) {
	path := PCMPath(cardNum, deviceNum, stream)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return Capabilities{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer unix.Close(fd)

	var hw hwParams
	hw.openAll()
	hw.only(paramAccess, accessRWInterleaved)
	if err := ioctl(fd, ioctlHwRefine, unsafe.Pointer(&hw)); err != nil {
		return Capabilities{}, fmt.Errorf("refine %s: %w", path, err)
	}

	var caps Capabilities
	minCh, maxCh := hw.span(paramChannels)
	caps.MinChannels, caps.MaxChannels = int(minCh), int(maxCh)

	minRate, maxRate := hw.span(paramRate)
	caps.MinRate, caps.MaxRate = int(minRate), int(maxRate)
	for _, rate := range CommonSampleRates {
		if uint32(rate) >= minRate && uint32(rate) <= maxRate {
			caps.SupportedRates = append(caps.SupportedRates, rate)
		}
	}

	for _, format := range CommonFormats {
		if hw.allows(paramFormat, uint32(format)) {
			caps.SupportedFormats = append(caps.SupportedFormats, FormatName(format))
		}
	}

	minBuf, maxBuf := hw.span(paramBufferSize)
	caps.MinBufferSize, caps.MaxBufferSize = int(minBuf), int(maxBuf)
	minPer, maxPer := hw.span(paramPeriodSize)
	caps.MinPeriodSize, caps.MaxPeriodSize = int(minPer), int(maxPer)

	return caps, nil
}

// PreferredRate picks the rate a device should run at: 48000 if
// supported, else 44100, else the highest supported common rate, else the
// top of the refined interval.
func (c Capabilities) PreferredRate() int {
	for _, want := range []int{48000, 44100} {
		for _, r := range c.SupportedRates {
			if r == want {
				return r
			}
		}
	}
	if n := len(c.SupportedRates); n > 0 {
		return c.SupportedRates[n-1]
	}
	return c.MaxRate
}
