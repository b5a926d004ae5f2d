package rank

import (
	"math"
	"regexp"
	"strings"

	"github.com/Aman-CERP/fieldrag/internal/index"
)

// numberPattern matches integers, decimals and grouped values such as
// 76.871,20 or 1,234.56 as a single literal.
var numberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)*`)

// NormalizeScore converts a raw index score into a similarity where
// higher is better. The result is never negative.
func NormalizeScore(raw float32, kind index.ScoreKind) float64 {
	r := float64(raw)
	var s float64
	switch kind {
	case index.ScoreKindCosineDistance:
		s = 1 - r
	case index.ScoreKindL2Distance:
		s = 1 / (1 + r)
	default:
		s = r
	}
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	return s
}

// ExtractNumbers returns the numeric literals in text, deduplicated, in
// order of first appearance.
func ExtractNumbers(text string) []string {
	found := numberPattern.FindAllString(text, -1)
	if len(found) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(found))
	out := make([]string, 0, len(found))
	for _, n := range found {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Boost multiplies score by factor once for every literal that occurs in
// text. Matching is a substring test against the lower-cased text.
func Boost(score float64, text string, numbers []string, factor float64) float64 {
	if len(numbers) == 0 || factor == 1 {
		return score
	}
	lower := strings.ToLower(text)
	for _, n := range numbers {
		if strings.Contains(lower, n) {
			score *= factor
		}
	}
	return score
}
