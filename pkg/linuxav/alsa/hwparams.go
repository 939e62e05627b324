//go:build linux

package alsa

// hw_params indices from <sound/asound.h>. Masks come first, then
// intervals.
const (
	paramAccess     = 0
	paramFormat     = 1
	paramLastMask   = 2
	paramChannels   = 10
	paramRate       = 11
	paramPeriodSize = 13
	paramBufferSize = 17

	firstInterval = 8
	lastInterval  = 19

	maskBits = 256

	accessRWInterleaved = 3
)

type ctlCardInfo struct {
	card       int32
	_          [4]byte
	id         [16]byte
	driver     [16]byte
	name       [32]byte
	longname   [80]byte
	reserved   [16]byte
	mixername  [80]byte
	components [128]byte
}

type pcmInfo struct {
	device          uint32
	subdevice       uint32
	stream          int32
	card            int32
	id              [64]byte
	name            [80]byte
	subname         [32]byte
	devClass        int32
	devSubclass     int32
	subdevicesCount uint32
	subdevicesAvail uint32
	_               [16]byte
	reserved        [64]byte
}

type mask struct {
	bits [(maskBits + 31) / 32]uint32
}

type interval struct {
	min, max uint32
	flags    uint32
}

// openAll leaves every parameter unconstrained so a refine reports the
// full hardware range.
func (p *hwParams) openAll() {
	for i := range p.masks {
		p.masks[i].bits[0] = ^uint32(0)
		p.masks[i].bits[1] = ^uint32(0)
	}
	for i := range p.intervals {
		p.intervals[i].max = ^uint32(0)
	}
	p.rmask = ^uint32(0)
	p.cmask = 0
	p.info = ^uint32(0)
}

// only restricts a mask parameter to one value.
func (p *hwParams) only(param, val uint32) {
	p.masks[param].bits[0] = 0
	p.masks[param].bits[1] = 0
	p.masks[param].bits[val>>5] = 1 << (val & 0x1F)
}

func (p *hwParams) allows(param, val uint32) bool {
	return p.masks[param].bits[val>>5]&(1<<(val&0x1F)) != 0
}

func (p *hwParams) span(param uint32) (lo, hi uint32) {
	iv := p.intervals[param-firstInterval]
	return iv.min, iv.max
}
