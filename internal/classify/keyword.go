package classify

import (
	"regexp"
	"strings"

	"aida/internal/registry"
)

// minStemLen is the minimum keyword length for prefix (stem) matching.
// Shorter keywords must match a token exactly, so "hi" does not light up
// inside "this".
const minStemLen = 4

var nonWordRe = regexp.MustCompile(`[^a-z0-9\s'-]+`)

// normalize lowercases the utterance and strips punctuation, collapsing
// whitespace. Used for keyword matching and verbatim-example comparison.
func normalize(text string) string {
	lower := strings.ToLower(text)
	lower = strings.ReplaceAll(lower, "'", "")
	lower = nonWordRe.ReplaceAllString(lower, " ")
	return strings.Join(strings.Fields(lower), " ")
}

// keywordScore returns the fraction of the descriptor's keywords present in
// the utterance, plus the list of matched keywords. Matching is
// case-insensitive: single-word keywords match a token exactly or as a stem
// prefix (length ≥ 4 either way), multi-word keywords match as substrings of
// the normalized utterance.
func keywordScore(utterance string, d *registry.Descriptor) (float64, []string) {
	if len(d.Keywords) == 0 {
		return 0, nil
	}

	norm := normalize(utterance)
	tokens := strings.Fields(norm)

	var matched []string
	for _, kw := range d.Keywords {
		k := normalize(kw)
		if k == "" {
			continue
		}
		if strings.Contains(k, " ") {
			if strings.Contains(norm, k) {
				matched = append(matched, kw)
			}
			continue
		}
		for _, tok := range tokens {
			if tok == k ||
				(len(k) >= minStemLen && strings.HasPrefix(tok, k)) ||
				(len(tok) >= minStemLen && strings.HasPrefix(k, tok)) {
				matched = append(matched, kw)
				break
			}
		}
	}
	return float64(len(matched)) / float64(len(d.Keywords)), matched
}

// MaxKeywordScore returns the best keyword fraction the utterance achieves
// across the whole registry. Callers use it to decide whether an utterance
// plausibly targets some capability at all, e.g. before treating a
// low-confidence input as a follow-up to the previous turn.
func MaxKeywordScore(reg *registry.Registry, utterance string) float64 {
	var best float64
	for _, d := range reg.All() {
		if score, _ := keywordScore(utterance, d); score > best {
			best = score
		}
	}
	return best
}

// exampleMatch reports whether the utterance is a verbatim (normalized)
// match of one of the descriptor's example phrases, and which one.
func exampleMatch(utterance string, d *registry.Descriptor) (string, bool) {
	norm := normalize(utterance)
	for _, ex := range d.Examples {
		if normalize(ex) == norm {
			return ex, true
		}
	}
	return "", false
}
