package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/fieldrag/internal/logging"
	"github.com/Aman-CERP/fieldrag/internal/mcp"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		Long: `Start an MCP server exposing the search_documents, ingest_documents
and index_status tools over stdio.

Logs go to ~/.fieldrag/logs/fieldrag.log only; stdout is reserved for
JSON-RPC frames.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			level := cfg.Server.LogLevel
			if opts.debug {
				level = "debug"
			}
			cleanup, err := logging.SetupMCPMode(level, cfg.Server.LogFile)
			if err != nil {
				return fmt.Errorf("failed to setup logging: %w", err)
			}
			defer cleanup()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			svc, err := opts.openService(ctx)
			if err != nil {
				slog.Error("service_open_failed", slog.String("error", err.Error()))
				return err
			}
			defer func() { _ = svc.Close() }()

			srv, err := mcp.NewServer(svc)
			if err != nil {
				return err
			}
			slog.Info("mcp_server_starting", slog.String("index", cfg.IndexPath()))
			if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			slog.Info("mcp_server_stopped")
			return nil
		},
	}
}
