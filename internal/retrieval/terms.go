package retrieval

import (
	"math"
	"strings"
	"unicode"
)

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "about": true, "at": true, "be": true,
	"did": true, "do": true, "does": true, "for": true, "how": true, "i": true, "in": true,
	"is": true, "it": true, "me": true, "my": true, "of": true, "on": true, "or": true,
	"tell": true, "the": true, "to": true, "was": true, "what": true, "you": true, "your": true,
}

func terms(s string) map[string]float64 {
	tf := map[string]float64{}
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(f) < 2 || stopWords[f] {
			continue
		}
		tf[f]++
	}
	return tf
}

// termCosine is the cosine of the term-frequency vectors of a and b.
func termCosine(a, b string) float64 {
	ta, tb := terms(a), terms(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	var dot, na, nb float64
	for t, x := range ta {
		na += x * x
		dot += x * tb[t]
	}
	for _, y := range tb {
		nb += y * y
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func tagTerms(query string) map[string]bool {
	out := map[string]bool{}
	for t := range terms(query) {
		out[t] = true
	}
	return out
}
