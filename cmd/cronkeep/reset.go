package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cronkeep/internal/app"
)

func resetCmd(cfgPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <job-id>...",
		Short: "Forget the last run of a job so it runs again this period",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cfgPath())
			if err != nil {
				return err
			}
			defer a.Close()
			for _, id := range args {
				if err := a.Reset(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", id)
			}
			return nil
		},
	}
}
