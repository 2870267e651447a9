package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cronkeep/internal/config"
)

func checkCmd(cfgPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewManager(cfgPath()).Load()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d jobs)\n", cfgPath(), len(cfg.Jobs))
			return nil
		},
	}
}
