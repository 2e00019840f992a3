package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tphakala/audiodevice/cmd/capture"
	configcmd "github.com/tphakala/audiodevice/cmd/config"
	"github.com/tphakala/audiodevice/cmd/devices"
	"github.com/tphakala/audiodevice/cmd/play"
	"github.com/tphakala/audiodevice/cmd/queue"
	"github.com/tphakala/audiodevice/internal/buildinfo"
	"github.com/tphakala/audiodevice/internal/conf"
	"github.com/tphakala/audiodevice/internal/runtime"
)

// Execute runs the command line with args taken from os.Args and releases the
// runtime even when a command fails.
func Execute(ctx context.Context, version, buildDate string) error {
	rootCmd, cleanup := newRootCommand(version, buildDate)
	err := rootCmd.ExecuteContext(ctx)
	if cerr := cleanup(); err == nil {
		err = cerr
	}
	return err
}

// RootCommand creates and returns the root command
func RootCommand(version, buildDate string) *cobra.Command {
	rootCmd, _ := newRootCommand(version, buildDate)
	return rootCmd
}

func newRootCommand(version, buildDate string) (*cobra.Command, func() error) {
	build := buildinfo.New(version, buildDate)
	var (
		configPath string
		settings   *conf.Settings
		rc         *runtime.Context
	)

	rootCmd := &cobra.Command{
		Use:           "audiodevice",
		Short:         "Play, queue and capture audio through SDL-style device handles",
		Version:       build.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	setupFlags(rootCmd, &configPath)

	getSettings := func() *conf.Settings { return settings }
	getRuntime := func() *runtime.Context { return rc }

	rootCmd.AddCommand(
		play.Command(getRuntime),
		queue.Command(getRuntime),
		capture.Command(getRuntime),
		devices.Command(getRuntime),
		configcmd.Command(getSettings, &configPath),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if annotated(cmd, runtime.SkipConfig) {
			return nil
		}

		s, err := conf.Load(configPath, cmd.Flags())
		if err != nil {
			return err
		}
		settings = s

		if annotated(cmd, runtime.SkipRuntime) {
			return nil
		}
		rc, err = runtime.New(build, s)
		return err
	}

	cleanup := func() error {
		if rc == nil {
			return nil
		}
		err := rc.Close()
		rc = nil
		return err
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return cleanup()
	}

	return rootCmd, cleanup
}

// setupFlags defines flags that are global to the command line interface.
// Their names match conf.FlagKeys.
func setupFlags(rootCmd *cobra.Command, configPath *string) {
	f := rootCmd.PersistentFlags()
	f.StringVarP(configPath, "config", "c", "", "Path to config.yaml")
	f.BoolP("debug", "d", false, "Enable debug output")
	f.StringP("backend", "b", "", "Audio backend: malgo, oto or null")
	f.String("device", "", "Playback device name, empty for the default")
	f.String("capture-device", "", "Capture device name, empty for the default")
	f.Int("freq", 0, "Sample rate in Hz")
	f.String("format", "", "Sample format, e.g. s16le, f32le, u8")
	f.Int("channels", 0, "Channel count")
	f.Int("samples", 0, "Frames per callback buffer")
	f.String("allow", "", "Properties the backend may change: any, none, or freq,format,channels,samples")
	f.Bool("metrics", false, "Serve Prometheus metrics")
	f.String("listen", "", "Metrics listen address")
	f.String("log-level", "", "Console log level")
}

// annotated reports whether cmd or one of its parents carries key.
func annotated(cmd *cobra.Command, key string) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if _, ok := c.Annotations[key]; ok {
			return true
		}
	}
	return false
}
