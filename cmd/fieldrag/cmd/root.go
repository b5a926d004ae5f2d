// Package cmd provides the CLI commands for fieldrag.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/fieldrag/internal/config"
	ragerrors "github.com/Aman-CERP/fieldrag/internal/errors"
	"github.com/Aman-CERP/fieldrag/internal/logging"
	"github.com/Aman-CERP/fieldrag/internal/profiling"
	"github.com/Aman-CERP/fieldrag/internal/service"
	"github.com/Aman-CERP/fieldrag/pkg/version"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	dir     string
	debug   bool
	offline bool
	profile profiling.Options
}

// NewRootCmd creates the root command for the fieldrag CLI.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}
	var (
		loggingCleanup func()
		profiler       *profiling.Session
	)

	cmd := &cobra.Command{
		Use:   "fieldrag",
		Short: "Retrieval over scanned field documents",
		Long: `fieldrag indexes a folder of PDF and text documents and answers
questions with the chunks most similar to them. Numbers in the question,
such as invoice totals, boost chunks that contain them literally.

Run 'fieldrag index' in a project directory, then 'fieldrag search' or
'fieldrag serve' to expose the index to an MCP client.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.profile.Enabled() {
				s, err := profiling.Start(opts.profile)
				if err != nil {
					return err
				}
				profiler = s
			}
			// serve owns its logging: stdout carries JSON-RPC.
			if cmd.Name() == "serve" {
				return nil
			}
			cfg := logging.DefaultConfig()
			if opts.debug {
				cfg = logging.DebugConfig()
			}
			prev := slog.Default()
			cleanup, err := logging.SetupDefault(cfg)
			if err != nil {
				if opts.debug {
					return fmt.Errorf("failed to setup debug logging: %w", err)
				}
				return nil
			}
			loggingCleanup = func() {
				slog.SetDefault(prev)
				cleanup()
			}
			slog.Debug("debug_logging_enabled", slog.String("log_file", cfg.FilePath))
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			var err error
			if profiler != nil {
				err = profiler.Stop()
				profiler = nil
			}
			if loggingCleanup != nil {
				loggingCleanup()
				loggingCleanup = nil
			}
			return err
		},
	}

	cmd.SetVersionTemplate("fieldrag version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.dir, "dir", "C", ".", "Project directory holding .fieldrag.yaml and the corpus")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to ~/.fieldrag/logs/ and stderr")
	cmd.PersistentFlags().BoolVar(&opts.offline, "offline", false, "Use static embeddings instead of the configured provider")
	cmd.PersistentFlags().StringVar(&opts.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Mem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newIndexCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newInfoCmd(opts))
	cmd.AddCommand(newDoctorCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints any error in CLI form.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, ragerrors.FormatForCLI(err))
	}
	return err
}

// loadConfig loads the configuration of the project directory.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.dir)
	if err != nil {
		return nil, ragerrors.ConfigError("failed to load configuration", err)
	}
	return cfg, nil
}

// openService loads the configuration and opens the service.
func (o *globalOptions) openService(ctx context.Context) (*service.Service, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	var svcOpts []service.Option
	if o.offline {
		svcOpts = append(svcOpts, service.WithOffline())
	}
	return service.Open(ctx, cfg, svcOpts...)
}
