// Package alsahal is the hardware property service for Linux ALSA.
//
// Devices are PCM card/device pairs read through the kernel control
// interface. Playback and capture of the same pair form one object with
// an output and an input scope. Sound-card uevents trigger a rescan that
// fires device-list, alive and default-device notifications.
package alsahal

import (
	"time"

	"github.com/smazurov/audionode/internal/hal"
)

// Config configures the ALSA service.
type Config struct {
	// DefaultOutput and DefaultInput pin the default devices ("hw:C,D").
	// Empty means the first device with channels in that direction.
	DefaultOutput string
	DefaultInput  string
	// ProbeTTL is how long the last successful capability probe of a PCM
	// is reused while the device is busy.
	ProbeTTL time.Duration
}

const (
	idBase         = 0x1000
	devicesPerCard = 0x100
)

// ObjectIDFor maps an ALSA card/device pair to a stable object id.
func ObjectIDFor(card, device int) hal.ObjectID {
	return hal.ObjectID(idBase + card*devicesPerCard + device)
}
