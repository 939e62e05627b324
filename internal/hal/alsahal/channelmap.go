package alsahal

import "github.com/smazurov/audionode/internal/hal"

// ALSA default channel orders: FL FR RL RR FC LFE SL SR.
var channelMaps = map[int][]hal.ChannelLabel{
	1: {hal.LabelMono},
	2: {hal.LabelLeft, hal.LabelRight},
	4: {hal.LabelLeft, hal.LabelRight, hal.LabelLeftSurround, hal.LabelRightSurround},
	5: {hal.LabelLeft, hal.LabelRight, hal.LabelLeftSurround, hal.LabelRightSurround, hal.LabelCenter},
	6: {hal.LabelLeft, hal.LabelRight, hal.LabelLeftSurround, hal.LabelRightSurround, hal.LabelCenter, hal.LabelLFEScreen},
	8: {
		hal.LabelLeft, hal.LabelRight, hal.LabelLeftSurround, hal.LabelRightSurround,
		hal.LabelCenter, hal.LabelLFEScreen, hal.LabelLeftSurroundDirect, hal.LabelRightSurroundDirect,
	},
}

// DefaultChannelMap returns the channel labels ALSA assumes for a channel
// count. Counts without a standard map get Unknown labels.
func DefaultChannelMap(channels int) []hal.ChannelLabel {
	if m, ok := channelMaps[channels]; ok {
		return append([]hal.ChannelLabel(nil), m...)
	}
	if channels <= 0 {
		return nil
	}
	labels := make([]hal.ChannelLabel, channels)
	for i := range labels {
		labels[i] = hal.LabelUnknown
	}
	return labels
}
