package planner

import (
	"math"
	"strings"

	"github.com/rcliao/memcompose/internal/config"
	"github.com/rcliao/memcompose/internal/router"
)

const (
	minSizeFactor = 0.8
	maxSizeFactor = 2.0
	minComplexity = 0.5
	maxComplexity = 3.0
)

var (
	complexPhrases = []string{
		"analyze", "comprehensive", "detailed", "explain everything", "step by step", "breakdown",
		"thorough", "complete overview", "in depth", "systematic", "methodical", "compare", "trade-off",
	}
	memoryPhrases = []string{
		"remember", "recall", "discussed", "mentioned", "told me", "tell me about my", "we talked",
		"you said", "previously", "before", "earlier", "last time", "yesterday", "last week",
	}
)

// clamp bounds v to [lo, hi]. NaN passes through so callers can detect it.
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SizeFactor scales allocation with the number of stored memories: flat
// below the small threshold, linear up to the large threshold and
// logarithmic above it.
func SizeFactor(p config.Profile, n int) float64 {
	if n < 0 {
		n = 0
	}
	small, large := float64(p.SmallDBThreshold), float64(p.LargeDBThreshold)
	x := float64(n)

	var f float64
	switch {
	case x < small:
		f = minSizeFactor
	case x < large:
		f = 1.0 + (x-small)/(large-small)*0.5
	default:
		f = 1.5 + math.Log10(x/large)*p.LargeDBLogFactor
	}
	return clamp(f, minSizeFactor, maxSizeFactor)
}

// Complexity scores how demanding a query is, in [0.5, 3.0].
func Complexity(p config.Profile, query string) float64 {
	lower := strings.ToLower(query)
	n := len(router.Words(query))

	c := 1.0
	switch {
	case n <= p.ShortQueryWords:
		c *= p.ShortQueryFactor
	case n <= p.MediumQueryWords:
		c *= p.MediumQueryFactor
	case n > p.LongQueryWords:
		c *= p.LongQueryFactor
	}
	if containsAny(lower, complexPhrases) {
		c *= p.TechnicalBoost
	}
	if containsAny(lower, memoryPhrases) {
		c *= p.MemoryBoost
	}
	if q := strings.Count(query, "?"); q > 1 {
		c *= math.Pow(p.QuestionBoost, float64(q-1))
	}
	return clamp(c, minComplexity, maxComplexity)
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return true
}

// estimateTimeMs is a rough cost model for executing a plan.
func estimateTimeMs(recent, semantic, strategies int) float64 {
	return float64(recent)*0.5 + float64(semantic)*2 + float64(strategies)*10 + 20
}

func confidence(complexity, size float64) float64 {
	c := 0.8
	switch {
	case complexity > 2.5 || size > 1.8:
		c -= 0.2
	case complexity < 0.7 || size < 0.9:
		c -= 0.1
	}
	return math.Max(0.3, c)
}
