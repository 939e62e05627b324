//go:build linux

package alsa

import (
	"fmt"
	"strconv"
)

// Stream is a PCM direction.
type Stream int

// Stream directions, numbered as the kernel numbers them.
const (
	StreamPlayback Stream = 0
	StreamCapture  Stream = 1
)

func (s Stream) String() string {
	if s == StreamCapture {
		return "capture"
	}
	return "playback"
}

// suffix is the trailing letter of the PCM device node.
func (s Stream) suffix() byte {
	if s == StreamCapture {
		return 'c'
	}
	return 'p'
}

// Device is one PCM device in one direction.
type Device struct {
	CardNumber   int
	CardID       string
	CardName     string
	DeviceNumber int
	DeviceName   string
	Stream       Stream
	ALSADevice   string // "hw:C,D"

	Capabilities
}

// Capabilities is what hw_params refinement reports for a PCM device.
type Capabilities struct {
	SupportedRates   []int
	MinRate          int
	MaxRate          int
	MinChannels      int
	MaxChannels      int
	SupportedFormats []string
	MinBufferSize    int
	MaxBufferSize    int
	MinPeriodSize    int
	MaxPeriodSize    int
}

// FormatALSADevice creates an ALSA device string from card and device numbers.
func FormatALSADevice(cardNum, deviceNum int) string {
	return "hw:" + strconv.Itoa(cardNum) + "," + strconv.Itoa(deviceNum)
}

// ParseALSADevice parses "hw:C,D" (or "plughw:C,D") into card and device
// numbers.
func ParseALSADevice(s string) (cardNum, deviceNum int, err error) {
	var rest string
	switch {
	case len(s) > 3 && s[:3] == "hw:":
		rest = s[3:]
	case len(s) > 7 && s[:7] == "plughw:":
		rest = s[7:]
	default:
		return 0, 0, fmt.Errorf("invalid ALSA device %q", s)
	}
	if _, err := fmt.Sscanf(rest, "%d,%d", &cardNum, &deviceNum); err != nil {
		return 0, 0, fmt.Errorf("invalid ALSA device %q: %w", s, err)
	}
	if cardNum < 0 || deviceNum < 0 {
		return 0, 0, fmt.Errorf("invalid ALSA device %q", s)
	}
	return cardNum, deviceNum, nil
}

// PCMPath returns the device node of a PCM device.
func PCMPath(cardNum, deviceNum int, stream Stream) string {
	return fmt.Sprintf("/dev/snd/pcmC%dD%d%c", cardNum, deviceNum, stream.suffix())
}

// PCM format constants
const (
	FormatS8        = 0
	FormatU8        = 1
	FormatS16LE     = 2
	FormatS16BE     = 3
	FormatU16LE     = 4
	FormatU16BE     = 5
	FormatS24LE     = 6
	FormatS24BE     = 7
	FormatU24LE     = 8
	FormatU24BE     = 9
	FormatS32LE     = 10
	FormatS32BE     = 11
	FormatU32LE     = 12
	FormatU32BE     = 13
	FormatFloatLE   = 14
	FormatFloatBE   = 15
	FormatFloat64LE = 16
	FormatFloat64BE = 17
	FormatMuLaw     = 20
	FormatALaw      = 21
)

var formatNames = map[int]string{
	FormatS8:        "S8",
	FormatU8:        "U8",
	FormatS16LE:     "S16_LE",
	FormatS16BE:     "S16_BE",
	FormatU16LE:     "U16_LE",
	FormatU16BE:     "U16_BE",
	FormatS24LE:     "S24_LE",
	FormatS24BE:     "S24_BE",
	FormatU24LE:     "U24_LE",
	FormatU24BE:     "U24_BE",
	FormatS32LE:     "S32_LE",
	FormatS32BE:     "S32_BE",
	FormatU32LE:     "U32_LE",
	FormatU32BE:     "U32_BE",
	FormatFloatLE:   "FLOAT_LE",
	FormatFloatBE:   "FLOAT_BE",
	FormatFloat64LE: "FLOAT64_LE",
	FormatFloat64BE: "FLOAT64_BE",
	FormatMuLaw:     "MU_LAW",
	FormatALaw:      "A_LAW",
}

// FormatName returns the ALSA name of a PCM format.
func FormatName(format int) string {
	if name, ok := formatNames[format]; ok {
		return name
	}
	return "UNKNOWN"
}

// CommonSampleRates are the rates reported when they fall inside the
// refined rate interval.
var CommonSampleRates = []int{
	8000, 11025, 16000, 22050, 32000, 44100, 48000, 88200, 96000, 176400, 192000,
}

// CommonFormats are the formats checked against the refined format mask.
var CommonFormats = []int{
	FormatU8, FormatS16LE, FormatS16BE, FormatS24LE, FormatS24BE,
	FormatS32LE, FormatS32BE, FormatFloatLE, FormatFloatBE,
	FormatFloat64LE, FormatFloat64BE,
}
