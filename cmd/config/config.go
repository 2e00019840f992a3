// Package config implements the config command and its subcommands.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tphakala/audiodevice/internal/conf"
	"github.com/tphakala/audiodevice/internal/runtime"
)

// Command creates the config command. settings is only valid once the root
// command has loaded the configuration.
func Command(settings func() *conf.Settings, configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	show := &cobra.Command{
		Use:         "show",
		Short:       "Print the effective configuration after files, environment and flags",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{runtime.SkipRuntime: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := conf.Dump(settings())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	initCmd := &cobra.Command{
		Use:         "init [path]",
		Short:       "Write the default configuration file",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{runtime.SkipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *configPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				path = filepath.Join(conf.DefaultConfigPaths()[0], "config.yaml")
			}
			if err := conf.WriteDefault(path); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Created default config file at: %s\n", path)
			return err
		},
	}

	paths := &cobra.Command{
		Use:         "paths",
		Short:       "List the directories searched for config.yaml",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{runtime.SkipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range conf.DefaultConfigPaths() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), p); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.AddCommand(show, initCmd, paths)
	return cmd
}
