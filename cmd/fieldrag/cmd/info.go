package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/fieldrag/internal/output"
)

func newInfoCmd(opts *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := opts.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			st := svc.Stats()
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), st)
			}

			out := output.New(cmd.OutOrStdout())
			out.Header("Index")
			out.KeyValue("Path", st.IndexPath)
			if !st.Ready {
				out.Warning("No index yet. Run 'fieldrag index' to build one.")
				return nil
			}
			out.KeyValue("Chunks", st.Chunks)
			out.KeyValue("Sources", len(st.Sources))
			out.KeyValue("Model", st.Model)
			out.KeyValue("Dimensions", st.Dimensions)
			out.KeyValue("Updated", st.UpdatedAt.Local().Format(time.DateTime))
			if st.Orphans > 0 {
				out.KeyValue("Orphans", st.Orphans)
			}
			out.Newline()
			out.Header("Sources")
			for _, s := range st.Sources {
				out.KeyValue(s.Name, s.Chunks)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output statistics as JSON")

	return cmd
}
