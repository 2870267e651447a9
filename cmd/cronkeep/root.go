package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "./cronkeep.yaml"

func rootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "cronkeep",
		Short:         "Run daily and hourly jobs at most once per period",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "path to config (yaml or json)")

	path := func() string { return cfgPath }
	root.AddCommand(
		versionCmd(),
		runCmd(path),
		tickCmd(path),
		statusCmd(path),
		resetCmd(path),
		checkCmd(path),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cronkeep %s (commit: %s)\n", version, commit)
		},
	}
}
