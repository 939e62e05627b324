package device

import "strings"

// Type is a device direction bitmask.
type Type int

const (
	TypeUnknown Type = 0
	TypeInput   Type = 1 << 0
	TypeOutput  Type = 1 << 1
	TypeAll          = TypeInput | TypeOutput
)

func (t Type) String() string {
	switch t {
	case TypeInput:
		return "input"
	case TypeOutput:
		return "output"
	case TypeAll:
		return "all"
	default:
		return "unknown"
	}
}

// ParseType accepts "input", "output", "all" (or "both") and "".
func ParseType(s string) Type {
	switch strings.ToLower(s) {
	case "input", "capture":
		return TypeInput
	case "output", "playback":
		return TypeOutput
	case "all", "both", "":
		return TypeAll
	default:
		return TypeUnknown
	}
}

// State is the availability of a device.
type State int

const (
	StateDisabled State = iota
	StateUnplugged
	StateEnabled
)

func (s State) String() string {
	switch s {
	case StateEnabled:
		return "enabled"
	case StateUnplugged:
		return "unplugged"
	default:
		return "disabled"
	}
}

// Pref marks the roles a device is the default for.
type Pref int

const (
	PrefNone         Pref = 0
	PrefMultimedia   Pref = 1 << 0
	PrefVoice        Pref = 1 << 1
	PrefNotification Pref = 1 << 2
	PrefAll               = PrefMultimedia | PrefVoice | PrefNotification
)

// Format is a sample format. Device descriptors use it as a bitmask of
// supported formats.
type Format int

const (
	FormatS16LE Format = 0x0010
	FormatS16BE Format = 0x0020
	FormatF32LE Format = 0x1000
	FormatF32BE Format = 0x2000

	FormatS16NE = FormatS16LE
	FormatF32NE = FormatF32LE

	FormatAll = FormatS16LE | FormatS16BE | FormatF32LE | FormatF32BE
)

func (f Format) String() string {
	switch f {
	case FormatS16LE:
		return "s16le"
	case FormatS16BE:
		return "s16be"
	case FormatF32LE:
		return "f32le"
	case FormatF32BE:
		return "f32be"
	default:
		var parts []string
		for _, one := range []Format{FormatS16LE, FormatS16BE, FormatF32LE, FormatF32BE} {
			if f&one != 0 {
				parts = append(parts, one.String())
			}
		}
		if len(parts) == 0 {
			return "none"
		}
		return strings.Join(parts, "|")
	}
}

// ParseFormat resolves a single sample format by name.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(s) {
	case "s16le", "s16":
		return FormatS16LE, true
	case "s16be":
		return FormatS16BE, true
	case "f32le", "f32", "float":
		return FormatF32LE, true
	case "f32be":
		return FormatF32BE, true
	default:
		return 0, false
	}
}

// BytesPerSample returns the size of one sample.
func (f Format) BytesPerSample() int {
	switch f {
	case FormatS16LE, FormatS16BE:
		return 2
	case FormatF32LE, FormatF32BE:
		return 4
	default:
		return 0
	}
}
