package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smazurov/audionode/internal/hal"
	"github.com/smazurov/audionode/internal/layout"
	"github.com/smazurov/audionode/internal/logging"
)

// CreateLayoutCmd creates the layout command.
func CreateLayoutCmd() *cobra.Command {
	var name string
	var list bool

	cmd := &cobra.Command{
		Use:   "layout [labels...]",
		Short: "Map channel labels to a channel layout",
		Long: `Converts a hardware channel-label sequence (for example "Left Right Center") to its canonical layout. ` +
			`With --name, prints the labels of a named layout instead.`,
		Run: func(c *cobra.Command, args []string) {
			logging.Initialize(logging.Config{Level: "warn", Format: "text"})
			logger := logging.GetLogger("layout")

			var err error
			switch {
			case list:
				err = printLayoutNames(c.OutOrStdout())
			case name != "":
				err = printLayoutLabels(c.OutOrStdout(), name)
			default:
				err = printLayout(c.OutOrStdout(), args)
			}
			if err != nil {
				logger.Error("Layout lookup failed", "error", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Print the labels of a named layout")
	cmd.Flags().BoolVarP(&list, "list", "l", false, "List the named layouts")
	return cmd
}

func printLayout(w io.Writer, names []string) error {
	labels := make([]hal.ChannelLabel, 0, len(names))
	for _, n := range names {
		label, ok := hal.ParseChannelLabel(n)
		if !ok {
			return fmt.Errorf("unknown channel label %q", n)
		}
		labels = append(labels, label)
	}
	l := layout.FromLabels(labels)
	_, err := fmt.Fprintf(w, "%s (%d channels)\n", l, l.Channels())
	return err
}

func printLayoutLabels(w io.Writer, name string) error {
	l, err := layout.Parse(name)
	if err != nil {
		return err
	}
	if !layout.HasLabels(l) {
		return fmt.Errorf("layout %s has no hardware labels", l)
	}
	names := make([]string, 0, l.Channels())
	for _, label := range layout.Labels(l) {
		names = append(names, label.String())
	}
	_, err = fmt.Fprintln(w, strings.Join(names, " "))
	return err
}

func printLayoutNames(w io.Writer) error {
	for _, n := range layout.Names() {
		l, _ := layout.Parse(n)
		if _, err := fmt.Fprintf(w, "%-14s %d\n", n, l.Channels()); err != nil {
			return err
		}
	}
	return nil
}
