// Package devices implements the devices command.
package devices

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/audiodevice/internal/audiodev"
	"github.com/tphakala/audiodevice/internal/errors"
	"github.com/tphakala/audiodevice/internal/runtime"
)

// Command creates the devices command.
func Command(rt func() *runtime.Context) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List playback and capture devices of the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := rt().OpenBackend()
			if err != nil {
				return err
			}
			defer func() { _ = sys.Close() }()

			return List(cmd.OutOrStdout(), sys, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")

	return cmd
}

type listing struct {
	Backend  string                `json:"backend"`
	Playback []audiodev.DeviceInfo `json:"playback"`
	Capture  []audiodev.DeviceInfo `json:"capture"`
}

// List writes the devices sys can enumerate to w.
func List(w io.Writer, sys audiodev.Subsystem, asJSON bool) error {
	enum, ok := sys.(audiodev.Enumerator)
	if !ok {
		return errors.Newf("backend %s cannot enumerate devices", sys.Name()).
			Component("devices").
			Category(errors.CategoryAudioBackend).
			Build()
	}

	l := listing{Backend: sys.Name()}
	var err error
	if l.Playback, err = enum.Devices(false); err != nil {
		return err
	}
	if l.Capture, err = enum.Devices(true); err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(l)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "DIRECTION\tDEFAULT\tNAME\tID\n")
	for _, group := range []struct {
		direction string
		devices   []audiodev.DeviceInfo
	}{
		{"playback", l.Playback},
		{"capture", l.Capture},
	} {
		for _, d := range group.devices {
			def := ""
			if d.IsDefault {
				def = "*"
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", group.direction, def, d.Name, d.ID)
		}
	}
	return tw.Flush()
}
