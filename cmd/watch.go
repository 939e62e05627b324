package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/logging"
)

// CreateWatchCmd creates the watch command.
func CreateWatchCmd() *cobra.Command {
	var opts BackendOptions
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print device events as they happen",
		Long: `Opens the backend and prints device-list and default-device changes as JSON lines ` +
			`until interrupted or until --duration elapses.`,
		Args: cobra.NoArgs,
		Run: func(c *cobra.Command, _ []string) {
			logging.Initialize(logging.Config{Level: "info", Format: "text"})
			logger := logging.GetLogger("watch")

			ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			bus := events.New()
			b, err := OpenBackend(opts, bus)
			if err != nil {
				logger.Error("Failed to open backend", "error", err)
				os.Exit(1)
			}
			defer b.Close()

			logger.Info("Watching devices", "backend", b.Context.BackendID())
			if err := watchEvents(ctx, c.OutOrStdout(), bus); err != nil {
				logger.Error("Watch failed", "error", err)
				os.Exit(1)
			}
		},
	}

	addBackendFlags(cmd, &opts)
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop after this long (0 runs until interrupted)")
	return cmd
}

// watchEvents prints device events from bus until ctx is done.
func watchEvents(ctx context.Context, w io.Writer, bus *events.Bus) error {
	ch := make(chan any, 64)
	unsubs := []func(){
		events.SubscribeToChannel[events.DeviceCollectionChangedEvent](bus, ch),
		events.SubscribeToChannel[events.DefaultDeviceChangedEvent](bus, ch),
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-ch:
			name := "device-collection-changed"
			if _, ok := ev.(events.DefaultDeviceChangedEvent); ok {
				name = "default-device-changed"
			}
			data, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "%s %s\n", name, data); err != nil {
				return err
			}
		}
	}
}
