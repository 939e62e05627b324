package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/audionode/internal/backend"
	"github.com/smazurov/audionode/internal/device"
	"github.com/smazurov/audionode/internal/layout"
	"github.com/smazurov/audionode/internal/logging"
	"github.com/smazurov/audionode/internal/streams"
)

// ToneOptions describe a test tone.
type ToneOptions struct {
	Device    string
	Frequency float64
	Duration  time.Duration
	Rate      uint32
	Channels  uint32
	Volume    float32
}

// CreateToneCmd creates the tone command.
func CreateToneCmd() *cobra.Command {
	var opts BackendOptions
	tone := ToneOptions{}

	cmd := &cobra.Command{
		Use:   "tone",
		Short: "Play a test tone",
		Long: `Opens an output stream and plays a sine tone until it drains. ` +
			`With --wav the output is written to a WAV file instead of being paced by the device clock alone.`,
		Args: cobra.NoArgs,
		Run: func(c *cobra.Command, _ []string) {
			logging.Initialize(logging.Config{Level: "info", Format: "text"})
			logger := logging.GetLogger("tone")

			ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			b, err := OpenBackend(opts, nil)
			if err != nil {
				logger.Error("Failed to open backend", "error", err)
				os.Exit(1)
			}
			defer b.Close()

			if err := playTone(ctx, c.OutOrStdout(), b.Context, tone); err != nil {
				logger.Error("Tone failed", "error", err)
				os.Exit(1)
			}
		},
	}

	addBackendFlags(cmd, &opts)
	cmd.Flags().StringVar(&opts.WavPath, "wav", "", "Write the output to this WAV file")
	cmd.Flags().StringVar(&tone.Device, "device", "", "Output device (handle, UID or name; empty follows the default)")
	cmd.Flags().Float64VarP(&tone.Frequency, "freq", "f", 440, "Tone frequency in Hz")
	cmd.Flags().DurationVarP(&tone.Duration, "duration", "d", 2*time.Second, "Tone length")
	cmd.Flags().Uint32Var(&tone.Rate, "rate", 48000, "Sample rate")
	cmd.Flags().Uint32Var(&tone.Channels, "channels", 2, "Channel count")
	cmd.Flags().Float32Var(&tone.Volume, "volume", 1, "Output gain (0-1)")
	return cmd
}

// playTone plays one tone and waits for the stream to drain.
func playTone(ctx context.Context, w io.Writer, bc *backend.Context, opts ToneOptions) error {
	if opts.Duration <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	out, err := streams.ResolveDevice(ctx, bc, opts.Device, device.TypeOutput)
	if err != nil {
		return err
	}

	l := layout.Undefined
	switch opts.Channels {
	case 1:
		l = layout.Mono
	case 2:
		l = layout.Stereo
	}
	params := backend.StreamParams{
		Format:   device.FormatF32LE,
		Rate:     opts.Rate,
		Channels: opts.Channels,
		Layout:   l,
	}

	frames := int64(opts.Duration.Seconds() * float64(opts.Rate))
	gen := streams.NewTone(opts.Frequency, frames)
	done := make(chan backend.StateChange, 1)

	stream, err := bc.NewStream(backend.StreamOptions{
		Name:         "tone",
		Output:       &params,
		OutputDevice: out,
		Data:         gen.Render,
		State: func(change backend.StateChange) {
			if change == backend.StateChangeDrained || change == backend.StateChangeError {
				select {
				case done <- change:
				default:
				}
			}
		},
	})
	if err != nil {
		return err
	}
	defer stream.Destroy()

	if err := stream.SetVolume(opts.Volume); err != nil {
		return err
	}
	if err := stream.Start(); err != nil {
		return err
	}

	cur := stream.CurrentDevice()
	if cur.Output != nil {
		fmt.Fprintf(w, "Playing %.0f Hz on %s (%s) for %s\n", opts.Frequency, cur.Output.ID, cur.Output.Flags, opts.Duration)
	}

	select {
	case <-ctx.Done():
		return nil
	case change := <-done:
		if change == backend.StateChangeError {
			return fmt.Errorf("stream %s entered error state", stream.ID)
		}
	}
	fmt.Fprintf(w, "Done after %d frames\n", gen.Frames())
	return nil
}
