// Package cmd holds the audionode subcommands.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/audionode/internal/backend"
	"github.com/smazurov/audionode/internal/hal"
	"github.com/smazurov/audionode/internal/hal/alsahal"
	"github.com/smazurov/audionode/internal/hal/malgohal"
	"github.com/smazurov/audionode/internal/hal/simhal"
	"github.com/smazurov/audionode/internal/wavtap"
)

// BackendOptions select and configure the hardware service.
type BackendOptions struct {
	// Name is auto, alsa, malgo or sim. Auto is alsa on Linux and malgo
	// elsewhere.
	Name              string
	ALSADefaultOutput string
	ALSADefaultInput  string
	ALSAProbeTTL      time.Duration
	MalgoPollInterval time.Duration
	// WavPath renders stream output into WAV files instead of the
	// hardware clock.
	WavPath string
}

// Backend is an open hardware service and the context over it.
type Backend struct {
	Context *backend.Context
	Service hal.Service
	// ALSA is set when the service is ALSA so defaults can be reloaded.
	ALSA *alsahal.Service
}

// Close closes the context, then the hardware service.
func (b *Backend) Close() error {
	b.Context.Close()
	if c, ok := b.Service.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// OpenBackend opens the selected hardware service and a backend context
// publishing to bus.
func OpenBackend(opts BackendOptions, bus backend.EventPublisher) (*Backend, error) {
	name := opts.Name
	if name == "" || name == "auto" {
		name = "malgo"
		if runtime.GOOS == "linux" {
			name = "alsa"
		}
	}

	b := &Backend{}
	var renderer backend.Renderer
	switch name {
	case "alsa":
		svc, err := alsahal.New(alsahal.Config{
			DefaultOutput: opts.ALSADefaultOutput,
			DefaultInput:  opts.ALSADefaultInput,
			ProbeTTL:      opts.ALSAProbeTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("open alsa: %w", err)
		}
		b.Service = svc
		b.ALSA = svc
	case "malgo":
		svc, err := malgohal.New(malgohal.Config{PollInterval: opts.MalgoPollInterval})
		if err != nil {
			return nil, fmt.Errorf("open malgo: %w", err)
		}
		b.Service = svc
		renderer = malgohal.NewRenderer(svc)
	case "sim":
		b.Service = SimulatedHardware()
	default:
		return nil, fmt.Errorf("unknown backend %q (want auto, alsa, malgo or sim)", opts.Name)
	}

	if opts.WavPath != "" {
		renderer = wavtap.New(opts.WavPath)
	}

	bc, err := backend.New(b.Service, backend.Options{Renderer: renderer, EventBus: bus})
	if err != nil {
		if c, ok := b.Service.(io.Closer); ok {
			err = errors.Join(err, c.Close())
		}
		return nil, err
	}
	b.Context = bc
	return b, nil
}

// SimulatedHardware returns a sim service with a small desktop setup: a
// stereo output, a mono microphone and a 5.1 interface.
func SimulatedHardware() *simhal.Service {
	return simhal.New(
		simhal.Device{
			UID: "sim:speakers", Name: "Built-in Speakers", Manufacturer: "audionode",
			OutputChannels: 2, SampleRate: 48000, MinRate: 44100, MaxRate: 96000,
			MinBuffer: 128, MaxBuffer: 4096,
		},
		simhal.Device{
			UID: "sim:mic", Name: "Built-in Microphone", Manufacturer: "audionode",
			InputChannels: 1, SampleRate: 48000, MinRate: 16000, MaxRate: 48000,
			MinBuffer: 128, MaxBuffer: 4096,
		},
		simhal.Device{
			UID: "sim:usb", Name: "USB Interface", Manufacturer: "audionode",
			InputChannels: 2, OutputChannels: 6, SampleRate: 44100, MinRate: 44100, MaxRate: 192000,
			MinBuffer: 64, MaxBuffer: 8192,
		},
	)
}

func addBackendFlags(cmd *cobra.Command, opts *BackendOptions) {
	cmd.Flags().StringVarP(&opts.Name, "backend", "b", "auto", "Hardware backend (auto, alsa, malgo, sim)")
	cmd.Flags().StringVar(&opts.ALSADefaultOutput, "alsa-default-output", "", "Default ALSA output device (hw:C,D)")
	cmd.Flags().StringVar(&opts.ALSADefaultInput, "alsa-default-input", "", "Default ALSA input device (hw:C,D)")
}
