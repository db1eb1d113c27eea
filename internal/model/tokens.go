package model

// EstimateTokens approximates the completion service's token count at four
// characters per token.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}
