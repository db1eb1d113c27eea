package feedback

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// Assessment is an implicit quality judgement of one response.
type Assessment struct {
	Score   float64  `json:"score"`
	Success bool     `json:"success"`
	Issues  []string `json:"issues,omitempty"`
}

var (
	uncertaintyPhrases = []string{"i don't know", "i'm not sure", "i can't help", "unclear", "uncertain"}
	apologyStarts      = []string{"sorry", "i apologize", "unfortunately"}
	helpfulPhrases     = []string{"here's how", "you can", "try this", "the solution", "here are", "first", "next"}
	refusalPhrases     = []string{"i cannot", "i'm unable", "not possible", "can't do that"}
	technicalAsks      = []string{"code", "function", "error", "debug", "implement"}
	actionableReplies  = []string{"here's", "try", "you can", "solution"}
)

func countPhrases(s string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		if strings.Contains(s, p) {
			n++
		}
	}
	return n
}

// Score rates response to userInput from surface signals. Scores start at
// 0.5 and stay in [0,1]; above 0.6 counts as a success.
func Score(userInput, response string) Assessment {
	resp := strings.ToLower(strings.TrimSpace(response))
	user := strings.ToLower(userInput)
	score := 0.5
	var issues []string

	if n := countPhrases(resp, uncertaintyPhrases); n > 0 {
		score -= 0.15 * float64(n)
		issues = append(issues, "uncertainty")
	}
	for _, a := range apologyStarts {
		if strings.HasPrefix(resp, a) {
			score -= 0.1
			issues = append(issues, "apologetic_start")
			break
		}
	}
	score += 0.1 * float64(countPhrases(resp, helpfulPhrases))
	if n := countPhrases(resp, refusalPhrases); n > 0 {
		score -= 0.1 * float64(n)
		issues = append(issues, "refusal")
	}

	switch {
	case len(resp) < 20:
		score -= 0.2
		issues = append(issues, "too_short")
	case len(resp) > 100:
		score += 0.1
	}
	if strings.Contains(userInput, "?") && len(resp) > 50 {
		score += 0.1
	}
	if countPhrases(user, technicalAsks) > 0 && countPhrases(resp, actionableReplies) > 0 {
		score += 0.15
	}

	score = max(0, min(1, score))
	return Assessment{Score: score, Success: score > 0.6, Issues: issues}
}

// Rating scales understood by NormalizeRating.
const (
	ScaleStars  = "stars"
	ScaleThumbs = "thumbs"
)

// NormalizeRating maps an explicit user rating into [0,1]. Stars run 1-5;
// thumbs are 1 (up) or 0 (down).
func NormalizeRating(scale string, rating int) (float64, error) {
	switch scale {
	case ScaleStars:
		if rating < 1 || rating > 5 {
			return 0, goerr.New("star rating must be 1-5", goerr.V("rating", rating))
		}
		return float64(rating-1) / 4, nil
	case ScaleThumbs:
		if rating != 0 && rating != 1 {
			return 0, goerr.New("thumbs rating must be 0 or 1", goerr.V("rating", rating))
		}
		return float64(rating), nil
	default:
		return 0, goerr.New("unknown rating scale", goerr.V("scale", scale))
	}
}
