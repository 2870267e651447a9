package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cronkeep/internal/app"
	logx "cronkeep/pkg/logx"
)

func runCmd(cfgPath func() string) *cobra.Command {
	var stopTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the minute trigger and run until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := app.New(cfgPath())
			if err != nil {
				return err
			}
			log := a.Logger()
			if err := a.Start(ctx); err != nil {
				_ = a.Close()
				return err
			}
			log.Info("cronkeep started", logx.String("config", cfgPath()), logx.String("version", version))

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)
		wait:
			for {
				select {
				case <-hup:
					a.ReopenLogs()
				case <-ctx.Done():
					log.Info("shutdown requested")
					break wait
				case <-a.Done():
					log.Warn("supervisor stopped")
					break wait
				}
			}

			sctx, scancel := context.WithTimeout(context.Background(), stopTimeout)
			defer scancel()
			stopErr := a.Stop(sctx)
			if errors.Is(stopErr, context.DeadlineExceeded) {
				log.Warn("shutdown timed out", logx.Duration("timeout", stopTimeout))
			}
			return errors.Join(a.Err(), stopErr)
		},
	}
	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 30*time.Second, "max time to wait for a running tick on shutdown")
	return cmd
}
