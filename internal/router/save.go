package router

import (
	"strings"

	"github.com/rcliao/memcompose/internal/model"
)

// SaveVerdict explains whether an exchange should become a memory record.
type SaveVerdict struct {
	Save       bool    `json:"save"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// ShouldSave scores a user/assistant exchange for long-term storage.
func ShouldSave(userInput, response string) SaveVerdict {
	combined := " " + strings.ToLower(userInput+" "+response) + " "
	words := Words(userInput)

	score := 0
	var reasons []string
	if containsAny(combined, personalPhrases) {
		score += 2
		reasons = append(reasons, "personal_info")
	}
	if count(Words(combined), memoryWords) > 0 {
		score++
		reasons = append(reasons, "memory_related")
	}
	if len(response) > 200 {
		score++
		reasons = append(reasons, "substantial_response")
	}
	if count(words, simpleWords) > 0 && len(words) <= 2 {
		score -= 2
		reasons = append(reasons, "simple_interaction")
	}

	v := SaveVerdict{Save: score > 0, Reason: "default_threshold"}
	conf := float64(score) / 3.0
	if conf < 0 {
		conf = -conf
	}
	if conf > 1 {
		conf = 1
	}
	v.Confidence = conf
	if len(reasons) > 0 {
		v.Reason = strings.Join(reasons, "+")
	}
	return v
}

var tagRules = []struct {
	tag   string
	words []string
}{
	{"preferences", []string{"favorite", "like", "love", "prefer"}},
	{"identity", []string{"name", "called", "am i", "who am"}},
	{"family", []string{"family", "mother", "father", "sister", "brother", "grandma", "grandpa"}},
	{"work", []string{"work", "job", "career", "profession"}},
	{"memory", []string{"remember", "recall", "memory"}},
}

// ExtractTags derives topic tags from the user's side of an exchange.
func ExtractTags(question string) []string {
	lower := strings.ToLower(question)
	var tags []string
	for _, r := range tagRules {
		if containsAny(lower, r.words) {
			tags = append(tags, r.tag)
		}
	}
	return tags
}

// InferImportance rates a new record from its question and tags.
func InferImportance(question string, tags []string) model.Importance {
	lower := strings.ToLower(question)
	if strings.Contains(lower, "remember") || strings.Contains(lower, "my name is") || strings.Contains(lower, "my favorite") {
		return model.ImportanceHigh
	}
	for _, t := range tags {
		if t == "identity" || t == "family" {
			return model.ImportanceHigh
		}
	}
	if len(tags) == 0 && len(Words(question)) <= 3 {
		return model.ImportanceLow
	}
	return model.ImportanceMedium
}
