package cmd

import (
	"encoding/json"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/fieldrag/internal/ingest"
	"github.com/Aman-CERP/fieldrag/internal/output"
)

func newIndexCmd(opts *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Build or update the index",
		Long: `Index documents for search.

Without a path the index is rebuilt from every supported file in the
corpus directory. With a file or directory the documents found there are
merged into the existing index, replacing older chunks of the same file.`,
		Example: `  fieldrag index
  fieldrag index data/nf-2024-031.pdf
  fieldrag index --json --offline`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}

			svc, err := opts.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			report, err := svc.Ingest(cmd.Context(), path)
			if err != nil {
				if jsonOutput {
					_ = writeJSON(cmd.OutOrStdout(), ingest.FailureReport(err))
				}
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			printReport(output.New(cmd.OutOrStdout()), report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the ingestion report as JSON")

	return cmd
}

func printReport(out *output.Writer, r *ingest.Report) {
	out.Success(r.Message)
	out.KeyValue("Index", r.IndexPath)
	out.KeyValue("Files", r.FilesIndexed)
	out.KeyValue("Duration", r.Duration.Round(time.Millisecond))
	if r.FilesSkipped > 0 {
		out.Warningf("%d file(s) yielded no text", r.FilesSkipped)
		for _, name := range r.Skipped {
			out.Status("", name)
		}
	}
	if r.EmbeddingFailures > 0 {
		out.Warningf("%d chunk(s) could not be embedded and were left out", r.EmbeddingFailures)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
