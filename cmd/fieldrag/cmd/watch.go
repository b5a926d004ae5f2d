package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/fieldrag/internal/output"
	"github.com/Aman-CERP/fieldrag/internal/watcher"
)

func newWatchCmd(opts *globalOptions) *cobra.Command {
	var initial bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Merge corpus changes into the index as they happen",
		Long: `Watch the corpus directory and merge created or modified documents
into the index. Deleted documents keep their chunks until the next
'fieldrag index' rebuild.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			svc, err := opts.openService(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			cfg := svc.Config()
			out := output.New(cmd.OutOrStdout())

			if initial {
				report, err := svc.Ingest(ctx, "")
				if err != nil {
					return err
				}
				printReport(out, report)
			}

			w, err := watcher.New(watcher.Options{
				Debounce: cfg.Watch.Debounce,
				Filter:   cfg.HasExtension,
			})
			if err != nil {
				return err
			}
			defer func() { _ = w.Stop() }()

			startErr := make(chan error, 1)
			go func() { startErr <- w.Start(ctx, cfg.CorpusPath()) }()

			out.Statusf("*", "Watching %s (Ctrl+C to stop)", cfg.CorpusPath())

			runErr := make(chan error, 1)
			go func() { runErr <- watcher.Run(ctx, w, svc) }()

			select {
			case err := <-startErr:
				if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, watcher.ErrStopped) {
					return err
				}
			case err := <-runErr:
				if err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
			}
			out.Status("", "Stopped.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&initial, "initial", false, "Rebuild the index from the corpus before watching")

	return cmd
}
