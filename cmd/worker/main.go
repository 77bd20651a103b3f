package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"condominia/internal/app/bootstrap"

	"github.com/spf13/cobra"
)

// Worker process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring.
// 3) Relay the outbox and publish finalized results until SIGINT/SIGTERM.
func main() {
	var configPath string
	root := &cobra.Command{
		Use:           "condominia-worker",
		Short:         "Run the governance outbox relay and result publisher",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWorker(ctx, configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "optional YAML config file; env vars override it")
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runWorker(ctx context.Context, configPath string) error {
	slog.Info("condominia worker starting", "event", "worker_process_starting", "module", "cmd/worker", "layer", "entrypoint")
	app, err := bootstrap.BuildWorker(configPath)
	if err != nil {
		slog.Error("bootstrap worker failed", "event", "worker_bootstrap_failed", "module", "cmd/worker", "layer", "entrypoint", "error", err.Error())
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("worker shutdown close failed", "event", "worker_close_failed", "module", "cmd/worker", "layer", "entrypoint", "error", err.Error())
		}
	}()
	if err := app.Run(ctx); err != nil {
		slog.Error("condominia worker stopped with error", "event", "worker_process_failed", "module", "cmd/worker", "layer", "entrypoint", "error", err.Error())
		return err
	}
	return nil
}
