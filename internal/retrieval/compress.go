package retrieval

import (
	"strings"

	"github.com/rcliao/memcompose/internal/model"
)

// Line renders one record as it appears in compressed memory.
func Line(m model.Memory) string {
	return "- " + m.Content
}

// Compress packs ranked records into budget tokens, best first. Records are
// included whole; packing stops at the first record that does not fit.
func Compress(ranked []Scored, budget int) ([]model.Memory, string, int) {
	var (
		included []model.Memory
		lines    []string
		used     int
	)
	for _, s := range ranked {
		line := Line(s.Memory)
		cost := model.EstimateTokens(line)
		if used+cost > budget {
			break
		}
		included = append(included, s.Memory)
		lines = append(lines, line)
		used += cost
	}
	return included, strings.Join(lines, "\n"), used
}
