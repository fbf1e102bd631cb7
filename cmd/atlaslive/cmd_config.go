package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/talgya/atlas-live/internal/config"
)

func newConfigCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Load the config file, apply ATLAS_* environment overrides, validate,\nand print the result. Useful as a starting template.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "yaml" && format != "toml" {
				return fmt.Errorf("unknown format %q (want yaml or toml)", format)
			}
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return err
			}
			data, err := config.Encode("effective."+format, cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml or toml")
	return cmd
}
