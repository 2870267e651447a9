package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cronkeep/internal/app"
	"cronkeep/internal/scheduler"
)

func statusCmd(cfgPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show each job's marker and whether it is due now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(cfgPath())
			if err != nil {
				return err
			}
			defer a.Close()
			printSnapshot(cmd.OutOrStdout(), a.Snapshot(cmd.Context()))
			return nil
		},
	}
}

func printSnapshot(out io.Writer, snap scheduler.Snapshot) {
	fmt.Fprintf(out, "enabled=%v timezone=%s\n\n", snap.Enabled, snap.Timezone)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tEVERY\tEARLIEST\tLAST RUN\tDUE")
	for _, j := range snap.Jobs {
		earliest := j.Earliest
		if earliest == "" {
			earliest = "-"
		}
		marker := j.Marker
		if marker == "" {
			marker = "never"
		}
		due := "yes"
		switch {
		case j.Error != "":
			due = "error: " + j.Error
		case !j.Eligible:
			due = "no (" + j.Reason + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", j.ID, j.Granularity, earliest, marker, due)
	}
	_ = w.Flush()
}
