package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"condominia/internal/app/bootstrap"

	"github.com/spf13/cobra"
)

// API process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring (ports + adapters + use cases).
// 3) Serve HTTP until SIGINT/SIGTERM.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "condominia-api",
		Short:         "Serve the assembly governance HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runAPI(ctx, configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "optional YAML config file; env vars override it")
	root.AddCommand(newProvisionCmd(&configPath))
	return root
}

func runAPI(ctx context.Context, configPath string) error {
	slog.Info("condominia api starting", "event", "api_process_starting", "module", "cmd/api", "layer", "entrypoint")
	app, err := bootstrap.BuildAPI(configPath)
	if err != nil {
		slog.Error("bootstrap api failed", "event", "api_bootstrap_failed", "module", "cmd/api", "layer", "entrypoint", "error", err.Error())
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("api shutdown close failed", "event", "api_close_failed", "module", "cmd/api", "layer", "entrypoint", "error", err.Error())
		}
	}()
	if err := app.Run(ctx); err != nil {
		slog.Error("condominia api stopped with error", "event", "api_process_failed", "module", "cmd/api", "layer", "entrypoint", "error", err.Error())
		return err
	}
	return nil
}

func newProvisionCmd(configPath *string) *cobra.Command {
	var registration bootstrap.TenantRegistration
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Register a residential complex and create its namespace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := bootstrap.ProvisionTenant(cmd.Context(), *configPath, registration); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tenant %s provisioned in schema %s\n", registration.TenantKey, registration.Schema)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&registration.TenantID, "tenant-id", "", "stable tenant identifier (defaults to the tenant key)")
	flags.StringVar(&registration.TenantKey, "tenant-key", "", "key clients send in X-Tenant-Key")
	flags.StringVar(&registration.Name, "name", "", "display name of the complex")
	flags.StringVar(&registration.Schema, "schema", "", "postgres schema holding the tenant's tables")
	flags.StringVar(&registration.DSN, "dsn", "", "optional dedicated database DSN")
	_ = cmd.MarkFlagRequired("tenant-key")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}
