// Package context assembles episodic and semantic memory into a
// token-budgeted prompt context.
package context

// DefaultTokenBudget is the per-turn budget when none is configured.
const DefaultTokenBudget = 2000

// EstimateTokens estimates the token count for a string.
// Heuristic: Han and other non-ASCII runes ~2 tokens each, ASCII ~0.25 tokens per char.
func EstimateTokens(content string) int {
	if len(content) == 0 {
		return 0
	}

	wideCount := 0
	asciiCount := 0
	for _, r := range content {
		if r < 128 {
			asciiCount++
		} else {
			wideCount++
		}
	}

	tokens := wideCount*2 + asciiCount/4
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}

// fitText shortens s rune by rune from the end until it fits maxTokens.
// Returns "" when nothing fits.
func fitText(s string, maxTokens int, fits func(string) bool) string {
	runes := []rune(s)
	// Start from the estimate, then walk down.
	n := min(len(runes), maxTokens*4)
	for n > 0 {
		candidate := string(runes[:n])
		if n < len(runes) {
			candidate += "..."
		}
		if fits(candidate) {
			return candidate
		}
		n -= max(1, n/8)
	}
	return ""
}
