package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/fieldrag/internal/output"
	"github.com/Aman-CERP/fieldrag/internal/preflight"
	"github.com/Aman-CERP/fieldrag/internal/service"
)

func newDoctorCmd(opts *globalOptions) *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the project can be indexed and searched",
		Long: `Run the project checks: corpus documents, index directory permissions,
free disk space, embedder availability and the persisted index.

Exits with an error when a required check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			embedder, embedErr := service.NewEmbedder(ctx, cfg, opts.offline)
			if embedder != nil {
				defer func() { _ = embedder.Close() }()
			}

			results := preflight.New(cfg, embedder, embedErr).RunAll(ctx)
			status := preflight.SummaryStatus(results)

			if jsonOutput {
				if err := writeJSON(cmd.OutOrStdout(), map[string]any{
					"status": status,
					"checks": results,
				}); err != nil {
					return err
				}
			} else {
				printChecks(output.New(cmd.OutOrStdout()), results, status, verbose)
			}

			if preflight.HasCriticalFailures(results) {
				return fmt.Errorf("project checks failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for every check")

	return cmd
}

func printChecks(out *output.Writer, results []preflight.CheckResult, status string, verbose bool) {
	out.Header("fieldrag doctor")
	for _, r := range results {
		line := fmt.Sprintf("%s: %s", r.Name, r.Message)
		switch r.Status {
		case preflight.StatusPass:
			out.Success(line)
		case preflight.StatusWarn:
			out.Warning(line)
		default:
			out.Error(line)
		}
		if r.Details != "" && (verbose || r.Status != preflight.StatusPass) {
			out.Status("", r.Details)
		}
	}
	out.Newline()
	out.Statusf("", "Status: %s", status)
}
