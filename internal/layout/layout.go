// Package layout converts between hardware channel-label sequences and the
// backend's canonical channel layouts.
package layout

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/smazurov/audionode/internal/hal"
)

// Channel is a single canonical speaker position, one bit wide.
type Channel uint32

const (
	ChannelUndefined Channel = 0

	FrontLeft          Channel = 1 << 0
	FrontRight         Channel = 1 << 1
	FrontCenter        Channel = 1 << 2
	LowFrequency       Channel = 1 << 3
	BackLeft           Channel = 1 << 4
	BackRight          Channel = 1 << 5
	FrontLeftOfCenter  Channel = 1 << 6
	FrontRightOfCenter Channel = 1 << 7
	BackCenter         Channel = 1 << 8
	SideLeft           Channel = 1 << 9
	SideRight          Channel = 1 << 10
	TopCenter          Channel = 1 << 11
	TopFrontLeft       Channel = 1 << 12
	TopFrontCenter     Channel = 1 << 13
	TopFrontRight      Channel = 1 << 14
	TopBackLeft        Channel = 1 << 15
	TopBackCenter      Channel = 1 << 16
	TopBackRight       Channel = 1 << 17
)

// Layout is a set of canonical channels.
type Layout uint32

const (
	Undefined Layout = 0

	Mono    = Layout(FrontCenter)
	MonoLFE = Mono | Layout(LowFrequency)

	Stereo    = Layout(FrontLeft | FrontRight)
	StereoLFE = Stereo | Layout(LowFrequency)

	ThreeF    = Layout(FrontLeft | FrontRight | FrontCenter)
	ThreeFLFE = ThreeF | Layout(LowFrequency)

	TwoF1    = Layout(FrontLeft | FrontRight | BackCenter)
	TwoF1LFE = TwoF1 | Layout(LowFrequency)

	ThreeF1    = Layout(FrontLeft | FrontRight | FrontCenter | BackCenter)
	ThreeF1LFE = ThreeF1 | Layout(LowFrequency)

	TwoF2    = Layout(FrontLeft | FrontRight | SideLeft | SideRight)
	TwoF2LFE = TwoF2 | Layout(LowFrequency)

	Quad    = Layout(FrontLeft | FrontRight | BackLeft | BackRight)
	QuadLFE = Quad | Layout(LowFrequency)

	ThreeF2    = Layout(FrontLeft | FrontRight | FrontCenter | SideLeft | SideRight)
	ThreeF2LFE = ThreeF2 | Layout(LowFrequency)

	ThreeF2Back    = Layout(FrontLeft | FrontRight | FrontCenter | BackLeft | BackRight)
	ThreeF2LFEBack = ThreeF2Back | Layout(LowFrequency)

	ThreeF3RLFE = Layout(FrontLeft | FrontRight | FrontCenter | LowFrequency | BackCenter | SideLeft | SideRight)
	ThreeF4LFE  = Layout(FrontLeft | FrontRight | FrontCenter | LowFrequency | BackLeft | BackRight | SideLeft | SideRight)
)

type entry struct {
	layout Layout
	name   string
	labels []hal.ChannelLabel
}

// table lists every named layout with its canonical label order. MonoLFE
// has no hardware representation and is name-only.
var table = []entry{
	{Mono, "mono", []hal.ChannelLabel{hal.LabelCenter}},
	{MonoLFE, "mono-lfe", nil},
	{Stereo, "stereo", []hal.ChannelLabel{hal.LabelLeft, hal.LabelRight}},
	{StereoLFE, "stereo-lfe", []hal.ChannelLabel{hal.LabelLeft, hal.LabelRight, hal.LabelLFEScreen}},
	{ThreeF, "3f", []hal.ChannelLabel{hal.LabelLeft, hal.LabelRight, hal.LabelCenter}},
	{ThreeFLFE, "3f-lfe", []hal.ChannelLabel{hal.LabelLeft, hal.LabelRight, hal.LabelCenter, hal.LabelLFEScreen}},
	{TwoF1, "2f1", []hal.ChannelLabel{hal.LabelLeft, hal.LabelRight, hal.LabelCenterSurround}},
	{TwoF1LFE, "2f1-lfe", []hal.ChannelLabel{hal.LabelLeft, hal.LabelRight, hal.LabelLFEScreen, hal.LabelCenterSurround}},
	{ThreeF1, "3f1", []hal.ChannelLabel{hal.LabelLeft, hal.LabelRight, hal.LabelCenter, hal.LabelCenterSurround}},
	{ThreeF1LFE, "3f1-lfe", []hal.ChannelLabel{hal.LabelLeft, hal.LabelRight, hal.LabelCenter, hal.LabelLFEScreen, hal.LabelCenterSurround}},
	{TwoF2, "2f2", []hal.ChannelLabel{hal.LabelLeft, hal.LabelRight, hal.LabelLeftSurroundDirect, hal.LabelRightSurroundDirect}},
	{TwoF2LFE, "2f2-lfe", []hal.ChannelLabel{hal.LabelLeft, hal.LabelRight, hal.LabelLFEScreen, hal.LabelLeftSurroundDirect, hal.LabelRightSurroundDirect}},
	{Quad, "quad", []hal.ChannelLabel{hal.LabelLeft, hal.LabelRight, hal.LabelLeftSurround, hal.LabelRightSurround}},
	{QuadLFE, "quad-lfe", []hal.ChannelLabel{hal.LabelLeft, hal.LabelRight, hal.LabelLFEScreen, hal.LabelLeftSurround, hal.LabelRightSurround}},
	{ThreeF2, "3f2", []hal.ChannelLabel{hal.LabelLeft, hal.LabelRight, hal.LabelCenter, hal.LabelLeftSurroundDirect, hal.LabelRightSurroundDirect}},
	{ThreeF2LFE, "3f2-lfe", []hal.ChannelLabel{hal.LabelLeft, hal.LabelRight, hal.LabelCenter, hal.LabelLFEScreen, hal.LabelLeftSurroundDirect, hal.LabelRightSurroundDirect}},
	{ThreeF2Back, "3f2-back", []hal.ChannelLabel{hal.LabelLeft, hal.LabelRight, hal.LabelCenter, hal.LabelLeftSurround, hal.LabelRightSurround}},
	{ThreeF2LFEBack, "3f2-lfe-back", []hal.ChannelLabel{hal.LabelLeft, hal.LabelRight, hal.LabelCenter, hal.LabelLFEScreen, hal.LabelLeftSurround, hal.LabelRightSurround}},
	{ThreeF3RLFE, "3f3r-lfe", []hal.ChannelLabel{hal.LabelLeft, hal.LabelRight, hal.LabelCenter, hal.LabelLFEScreen, hal.LabelCenterSurround, hal.LabelLeftSurroundDirect, hal.LabelRightSurroundDirect}},
	{ThreeF4LFE, "3f4-lfe", []hal.ChannelLabel{hal.LabelLeft, hal.LabelRight, hal.LabelCenter, hal.LabelLFEScreen, hal.LabelLeftSurround, hal.LabelRightSurround, hal.LabelLeftSurroundDirect, hal.LabelRightSurroundDirect}},
}

var labelChannels = map[hal.ChannelLabel]Channel{
	hal.LabelLeft:                 FrontLeft,
	hal.LabelRight:                FrontRight,
	hal.LabelCenter:               FrontCenter,
	hal.LabelLFEScreen:            LowFrequency,
	hal.LabelLeftSurround:         BackLeft,
	hal.LabelRightSurround:        BackRight,
	hal.LabelLeftCenter:           FrontLeftOfCenter,
	hal.LabelRightCenter:          FrontRightOfCenter,
	hal.LabelCenterSurround:       BackCenter,
	hal.LabelLeftSurroundDirect:   SideLeft,
	hal.LabelRightSurroundDirect:  SideRight,
	hal.LabelTopCenterSurround:    TopCenter,
	hal.LabelVerticalHeightLeft:   TopFrontLeft,
	hal.LabelVerticalHeightCenter: TopFrontCenter,
	hal.LabelVerticalHeightRight:  TopFrontRight,
	hal.LabelTopBackLeft:          TopBackLeft,
	hal.LabelTopBackCenter:        TopBackCenter,
	hal.LabelTopBackRight:         TopBackRight,
}

// ChannelFromLabel maps a hardware label to its canonical channel.
// Labels without a speaker position map to ChannelUndefined.
func ChannelFromLabel(label hal.ChannelLabel) Channel {
	return labelChannels[label]
}

// LabelFromChannel maps a single canonical channel back to its hardware
// label. It panics for ChannelUndefined or a value with more than one bit set.
func LabelFromChannel(ch Channel) hal.ChannelLabel {
	if bits.OnesCount32(uint32(ch)) != 1 {
		panic(fmt.Sprintf("layout: %#x is not a single channel", uint32(ch)))
	}
	for label, c := range labelChannels {
		if c == ch {
			return label
		}
	}
	panic(fmt.Sprintf("layout: channel %#x has no hardware label", uint32(ch)))
}

// FromLabels converts a hardware channel-label sequence to a canonical
// layout. One label is always Mono and two labels are always Stereo,
// whatever the labels say. From three labels up, every label must name a
// distinct speaker position and the resulting set must exactly match a named
// layout. A label without a position (Unknown, Unused, Mono and the like) or
// a repeated position makes the sequence Undefined.
func FromLabels(labels []hal.ChannelLabel) Layout {
	switch len(labels) {
	case 0:
		return Undefined
	case 1:
		return Mono
	case 2:
		return Stereo
	}

	var mask Layout
	for _, label := range labels {
		ch := Layout(ChannelFromLabel(label))
		if ch == Undefined || mask&ch != 0 {
			return Undefined
		}
		mask |= ch
	}
	if mask.Channels() != len(labels) {
		return Undefined
	}

	for _, e := range table {
		if e.layout == mask {
			return e.layout
		}
	}
	return Undefined
}

// Labels returns the canonical hardware labels for a layout. It panics for
// Undefined and for layouts that have no hardware label order.
func Labels(l Layout) []hal.ChannelLabel {
	if l == Undefined {
		panic("layout: no hardware labels for undefined layout")
	}
	for _, e := range table {
		if e.layout == l && e.labels != nil {
			return append([]hal.ChannelLabel(nil), e.labels...)
		}
	}
	panic(fmt.Sprintf("layout: no hardware labels for layout %s", l))
}

// HasLabels reports whether Labels can be called on l without panicking.
func HasLabels(l Layout) bool {
	if l == Undefined {
		return false
	}
	for _, e := range table {
		if e.layout == l {
			return e.labels != nil
		}
	}
	return false
}

// Channels returns the number of channels in the layout.
func (l Layout) Channels() int {
	return bits.OnesCount32(uint32(l))
}

func (l Layout) String() string {
	if l == Undefined {
		return "undefined"
	}
	for _, e := range table {
		if e.layout == l {
			return e.name
		}
	}
	return fmt.Sprintf("custom(%#x)", uint32(l))
}

// Parse resolves a layout by name as produced by String.
func Parse(name string) (Layout, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "undefined" || name == "" {
		return Undefined, nil
	}
	for _, e := range table {
		if e.name == name {
			return e.layout, nil
		}
	}
	return Undefined, fmt.Errorf("unknown channel layout %q", name)
}

// Names returns every named layout, in table order.
func Names() []string {
	names := make([]string, 0, len(table))
	for _, e := range table {
		names = append(names, e.name)
	}
	return names
}
