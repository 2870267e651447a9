package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cronkeep/internal/app"
	"cronkeep/internal/scheduler"
)

func tickCmd(cfgPath func() string) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run a single evaluation pass and exit",
		Long: "Run a single evaluation pass and exit.\n\n" +
			"Useful when an external cron(8) entry drives cronkeep instead of `cronkeep run`.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now()
			if strings.TrimSpace(at) != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				now = t
			}

			a, err := app.New(cfgPath())
			if err != nil {
				return err
			}
			defer a.Close()

			rep := a.Tick(cmd.Context(), now)
			printTickReport(cmd.OutOrStdout(), rep)
			if rep.Failed > 0 {
				return fmt.Errorf("%d job(s) failed", rep.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate as if the time were this RFC3339 instant")
	return cmd
}

func printTickReport(w io.Writer, rep scheduler.TickReport) {
	stamp := rep.At.Format("2006-01-02 15:04:05 MST")
	if rep.Skipped != "" {
		fmt.Fprintf(w, "%s tick skipped: %s\n", stamp, rep.Skipped)
		return
	}
	fmt.Fprintf(w, "%s evaluated=%d ran=%d failed=%d\n", stamp, rep.Evaluated, rep.Ran, rep.Failed)
	for _, r := range rep.Results {
		switch {
		case r.Skipped != "":
			fmt.Fprintf(w, "  %-28s skipped (%s)\n", r.JobID, r.Skipped)
		case r.Succeeded:
			fmt.Fprintf(w, "  %-28s ok     period=%s took=%s\n", r.JobID, r.Period, r.Duration.Round(time.Millisecond))
		default:
			fmt.Fprintf(w, "  %-28s FAILED period=%s took=%s\n", r.JobID, r.Period, r.Duration.Round(time.Millisecond))
		}
		if r.Err != nil {
			fmt.Fprintf(w, "  %-28s marker: %v\n", "", r.Err)
		}
	}
}
