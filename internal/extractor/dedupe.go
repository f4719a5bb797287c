package extractor

import "strings"

// Similarity scores two values as the maximum of the substring-overlap
// ratio and the token-set overlap ratio. Used for fuzzy deduplication of
// identity-bearing fields and for owner-name comparison in validation.
func Similarity(a, b string) float64 {
	sub := substringOverlap(a, b)
	tok := tokenSetOverlap(a, b)
	if sub > tok {
		return sub
	}
	return tok
}

// substringOverlap returns shorter/longer length ratio when one
// normalized value contains the other, else 0.
func substringOverlap(a, b string) float64 {
	na := normalize(a)
	nb := normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	shorter, longer := na, nb
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if strings.Contains(longer, shorter) {
		return float64(len(shorter)) / float64(len(longer))
	}
	return 0
}

// tokenSetOverlap returns matched tokens over the larger token count.
// Tokens match when equal or when they share a prefix of at least three
// characters, which catches short-form names ("Nick" vs "Nicholas").
func tokenSetOverlap(a, b string) float64 {
	ta := strings.Fields(normalize(a))
	tb := strings.Fields(normalize(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	matched := 0
	used := make([]bool, len(tb))
	for _, x := range ta {
		for j, y := range tb {
			if used[j] {
				continue
			}
			if tokensMatch(x, y) {
				used[j] = true
				matched++
				break
			}
		}
	}

	max := len(ta)
	if len(tb) > max {
		max = len(tb)
	}
	return float64(matched) / float64(max)
}

func tokensMatch(x, y string) bool {
	if x == y {
		return true
	}
	return commonPrefixLen(x, y) >= 3
}

func commonPrefixLen(x, y string) int {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	for i := 0; i < n; i++ {
		if x[i] != y[i] {
			return i
		}
	}
	return n
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// dedupe merges near-duplicate fields. Identity-bearing families merge
// fuzzily at or above the threshold; everything else merges on exact
// value+subtype. The surviving record keeps the higher-confidence value
// and the union of source references.
func dedupe(fields []ExtractedField, family Family, threshold float64) []ExtractedField {
	fuzzy := family == FamilyTenure

	var merged []ExtractedField
	for _, f := range fields {
		idx := -1
		for i, m := range merged {
			if m.Subtype != f.Subtype {
				continue
			}
			if fuzzy {
				if Similarity(m.Value, f.Value) >= threshold {
					idx = i
					break
				}
			} else if normalize(m.Value) == normalize(f.Value) {
				idx = i
				break
			}
		}

		if idx < 0 {
			merged = append(merged, f)
			continue
		}
		merged[idx] = mergeFields(merged[idx], f)
	}

	return merged
}

func mergeFields(a, b ExtractedField) ExtractedField {
	winner, loser := a, b
	if b.Confidence > a.Confidence {
		winner, loser = b, a
	}

	out := winner
	out.Sources = unionSources(winner.Sources, loser.Sources)
	return out
}

func unionSources(a, b []SourceRef) []SourceRef {
	seen := make(map[SourceRef]bool, len(a))
	out := make([]SourceRef, 0, len(a)+len(b))
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
