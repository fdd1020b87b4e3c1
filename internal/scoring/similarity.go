package scoring

import (
	"strings"
	"unicode"
)

// Similarity scores how close an answer is to a model answer, in [0, 1].
// Implementations must be pure; an embedding-backed scorer can replace the
// lexical default without changing the open-text grading contract.
type Similarity interface {
	Similarity(answer, reference string) float64
}

// JaccardSimilarity is the lexical default: the Jaccard index of the two
// texts' word sets.
type JaccardSimilarity struct{}

func (JaccardSimilarity) Similarity(answer, reference string) float64 {
	a := wordSet(answer)
	b := wordSet(reference)
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// tokenize lower-cases s and splits it on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func wordSet(s string) map[string]struct{} {
	words := tokenize(s)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// containsPhrase reports whether the normalized text contains phrase as a
// whole-word sequence.
func containsPhrase(normalized, phrase string) bool {
	p := strings.Join(tokenize(phrase), " ")
	if p == "" {
		return false
	}
	return strings.Contains(" "+normalized+" ", " "+p+" ")
}
