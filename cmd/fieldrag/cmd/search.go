package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	ragerrors "github.com/Aman-CERP/fieldrag/internal/errors"
	"github.com/Aman-CERP/fieldrag/internal/output"
	"github.com/Aman-CERP/fieldrag/internal/service"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	k        int
	minScore float64
	boost    float64
	full     bool
	format   string // "text", "json"
}

func newSearchCmd(global *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed documents",
		Long: `Search the index for chunks similar to the query.

Numbers in the query are matched literally: a chunk containing 76.871,20
is boosted once for that number. Results scoring below the minimum score
are dropped, so an empty result is a valid answer.`,
		Example: `  fieldrag search "qual o total da nota fiscal 76.871,20"
  fieldrag search "fornecedor" -k 10 --min-score 0.5
  fieldrag search "frete" --format json --full`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, global, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.k, "top-k", "k", 0, "Candidates taken from the index (default from config)")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", 0, "Minimum score a result must reach (default from config)")
	cmd.Flags().Float64Var(&opts.boost, "boost", 0, "Score multiplier per matched number (default from config)")
	cmd.Flags().BoolVar(&opts.full, "full", false, "Print full chunk text instead of a preview")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(cmd *cobra.Command, global *globalOptions, text string, opts searchOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return ragerrors.New(ragerrors.ErrCodeInvalidInput,
			fmt.Sprintf("unknown output format %q", opts.format), nil).
			WithSuggestion("Use --format text or --format json")
	}

	ctx := cmd.Context()
	svc, err := global.openService(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	q := svc.DefaultQuery(text)
	if cmd.Flags().Changed("top-k") {
		q.K = opts.k
	}
	if cmd.Flags().Changed("min-score") {
		q.MinScore = opts.minScore
	}
	if cmd.Flags().Changed("boost") {
		q.BoostFactor = opts.boost
	}
	preview := svc.DefaultPreview()
	if opts.full {
		preview = service.FullText
	}

	slog.Info("search_started", slog.String("query", text), slog.Int("k", q.K))
	results, err := svc.SearchWith(ctx, q, preview)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		return writeJSON(cmd.OutOrStdout(), results)
	}

	out := output.New(cmd.OutOrStdout())
	if len(results) == 0 {
		out.Warningf("No result reached the minimum score of %.2f", q.MinScore)
		return nil
	}
	for i, r := range results {
		out.Result(i+1, r.Source, r.Score, r.Content)
	}
	return nil
}
