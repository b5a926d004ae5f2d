package mcp

import (
	"strings"

	"github.com/Aman-CERP/fieldrag/internal/service"
)

// NoResultsText is returned to agents when no chunk reaches the minimum score.
const NoResultsText = "No result reached the minimum score."

// FormatResults renders results as "Source: <file>" blocks separated by
// blank lines.
func FormatResults(results []service.Result) string {
	if len(results) == 0 {
		return NoResultsText
	}

	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = "Source: " + r.Source + "\n" + r.Content
	}
	return strings.Join(blocks, "\n\n")
}

func toSearchOutput(results []service.Result) SearchOutput {
	out := SearchOutput{Results: make([]SearchResultOutput, len(results))}
	for i, r := range results {
		out.Results[i] = SearchResultOutput{Source: r.Source, Content: r.Content, Score: r.Score}
	}
	return out
}
