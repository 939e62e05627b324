package hal

import "fmt"

// ChannelLabel is a hardware-reported semantic tag for one channel.
// Values follow the CoreAudio channel label numbering.
type ChannelLabel uint32

const (
	LabelUnknown              ChannelLabel = 0xFFFFFFFF
	LabelUnused               ChannelLabel = 0
	LabelLeft                 ChannelLabel = 1
	LabelRight                ChannelLabel = 2
	LabelCenter               ChannelLabel = 3
	LabelLFEScreen            ChannelLabel = 4
	LabelLeftSurround         ChannelLabel = 5
	LabelRightSurround        ChannelLabel = 6
	LabelLeftCenter           ChannelLabel = 7
	LabelRightCenter          ChannelLabel = 8
	LabelCenterSurround       ChannelLabel = 9
	LabelLeftSurroundDirect   ChannelLabel = 10
	LabelRightSurroundDirect  ChannelLabel = 11
	LabelTopCenterSurround    ChannelLabel = 12
	LabelVerticalHeightLeft   ChannelLabel = 13
	LabelVerticalHeightCenter ChannelLabel = 14
	LabelVerticalHeightRight  ChannelLabel = 15
	LabelTopBackLeft          ChannelLabel = 16
	LabelTopBackCenter        ChannelLabel = 17
	LabelTopBackRight         ChannelLabel = 18
	LabelMono                 ChannelLabel = 42
	LabelForeignLanguage      ChannelLabel = 305
)

var labelNames = map[ChannelLabel]string{
	LabelUnknown:              "Unknown",
	LabelUnused:               "Unused",
	LabelLeft:                 "Left",
	LabelRight:                "Right",
	LabelCenter:               "Center",
	LabelLFEScreen:            "LFEScreen",
	LabelLeftSurround:         "LeftSurround",
	LabelRightSurround:        "RightSurround",
	LabelLeftCenter:           "LeftCenter",
	LabelRightCenter:          "RightCenter",
	LabelCenterSurround:       "CenterSurround",
	LabelLeftSurroundDirect:   "LeftSurroundDirect",
	LabelRightSurroundDirect:  "RightSurroundDirect",
	LabelTopCenterSurround:    "TopCenterSurround",
	LabelVerticalHeightLeft:   "VerticalHeightLeft",
	LabelVerticalHeightCenter: "VerticalHeightCenter",
	LabelVerticalHeightRight:  "VerticalHeightRight",
	LabelTopBackLeft:          "TopBackLeft",
	LabelTopBackCenter:        "TopBackCenter",
	LabelTopBackRight:         "TopBackRight",
	LabelMono:                 "Mono",
	LabelForeignLanguage:      "ForeignLanguage",
}

func (l ChannelLabel) String() string {
	if name, ok := labelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Label(%d)", uint32(l))
}

// ParseChannelLabel resolves a label by its name (case-sensitive).
func ParseChannelLabel(name string) (ChannelLabel, bool) {
	for label, n := range labelNames {
		if n == name {
			return label, true
		}
	}
	return 0, false
}
