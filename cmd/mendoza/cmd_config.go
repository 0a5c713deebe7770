package main

import (
	"fmt"

	"github.com/nvandessel/mendoza/internal/experiment"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect mendoza configuration",
		Long: `View and check the experiment configuration.

Configuration is read from ~/.mendoza/config.yaml, or the file given with
--config, and MENDOZA_* environment variables override it.

Examples:
  mendoza config show
  mendoza config validate network.csv
  mendoza --config experiment.yaml config validate`,
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigValidateCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, cfg)
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [network]",
		Short: "Check the configuration, and the network when one is set",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd, args)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			nodes := 0
			if cfg.Network.Path != "" {
				net, err := experiment.LoadNetwork(cfg.Network.Path, newLogger(cmd, cfg))
				if err != nil {
					return err
				}
				if err := cfg.CheckNetwork(net.Matrices); err != nil {
					return err
				}
				nodes = net.Matrices.Size()
			}

			if jsonOut {
				return writeJSON(cmd, map[string]any{
					"valid":   true,
					"network": cfg.Network.Path,
					"nodes":   nodes,
				})
			}
			if cfg.Network.Path == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid (no network set).")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid for %s (%d nodes).\n", cfg.Network.Path, nodes)
			return nil
		},
	}
}
