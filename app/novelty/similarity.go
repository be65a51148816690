package novelty

import (
	"strings"

	"github.com/lysyi3m/feedforge/app/pipeline"
)

const summaryChars = 260

// ContentHash fingerprints what a reader would see: title, link and text.
func ContentHash(c pipeline.Candidate) string {
	raw := pipeline.NormalizeSpace(strings.Join([]string{c.Title, c.Link, c.ContentText}, "\n"))
	return pipeline.HashString(raw)
}

// Summarize is the local summary stored with a snapshot when no adapter
// provides one.
func Summarize(c pipeline.Candidate) string {
	text := pipeline.SanitizeText(c.ContentText)
	if pipeline.RuneLen(text) <= summaryChars {
		if text != "" {
			return text
		}
		if c.Title != "" {
			return c.Title
		}
		return "empty"
	}
	return pipeline.Clip(text, summaryChars) + "..."
}

// LexicalSimilarity is the Sørensen-Dice coefficient of the lowercased
// token sets of a and b, 2|A∩B| / (|A|+|B|). It is deliberately not plain
// Jaccard |A∩B| / |A∪B|: Dice scores the same overlap higher, so a one or
// two word edit of a short sentence stays above MinorUpdateThreshold.
// Either set being empty gives 0.
func LexicalSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	shared := 0
	for token := range setA {
		if setB[token] {
			shared++
		}
	}

	return 2 * float64(shared) / float64(len(setA)+len(setB))
}

func tokenSet(s string) map[string]bool {
	tokens := strings.Fields(strings.ToLower(pipeline.NormalizeSpace(s)))
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}
