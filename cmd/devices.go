package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/audionode/internal/api/models"
	"github.com/smazurov/audionode/internal/backend"
	"github.com/smazurov/audionode/internal/device"
	"github.com/smazurov/audionode/internal/logging"
)

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var opts BackendOptions
	var typ string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio devices",
		Long:  `Enumerates the devices of the selected backend with their formats, rates and latency range.`,
		Args:  cobra.NoArgs,
		Run: func(c *cobra.Command, _ []string) {
			logging.Initialize(logging.Config{Level: "warn", Format: "text"})
			logger := logging.GetLogger("devices")

			b, err := OpenBackend(opts, nil)
			if err != nil {
				logger.Error("Failed to open backend", "error", err)
				os.Exit(1)
			}
			defer b.Close()

			if err := printDevices(c.Context(), c.OutOrStdout(), b.Context, device.ParseType(typ), asJSON); err != nil {
				logger.Error("Failed to list devices", "error", err)
				os.Exit(1)
			}
		},
	}

	addBackendFlags(cmd, &opts)
	cmd.Flags().StringVarP(&typ, "type", "t", "all", "Directions to list (input, output, all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func printDevices(ctx context.Context, w io.Writer, bc *backend.Context, typ device.Type, asJSON bool) error {
	if typ == device.TypeUnknown {
		return fmt.Errorf("unknown device type")
	}
	coll, err := bc.EnumerateDevices(ctx, typ)
	if err != nil {
		return err
	}
	defer bc.DestroyDeviceCollection(coll)

	infos := make([]models.DeviceInfo, 0, coll.Count)
	for _, info := range coll.Devices {
		infos = append(infos, models.NewDeviceInfo(info))
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tDEVICE\tNAME\tCHANNELS\tRATE\tLATENCY\tDEFAULT")
	for _, d := range infos {
		def := ""
		if d.Preferred {
			def = "*"
		}
		fmt.Fprintf(tw, "%#x\t%s\t%s\t%s\t%d\t%d\t%d-%d\t%s\n",
			d.ID, d.Type, d.DeviceID, d.FriendlyName, d.MaxChannels, d.DefaultRate, d.LatencyLo, d.LatencyHi, def)
	}
	return tw.Flush()
}
