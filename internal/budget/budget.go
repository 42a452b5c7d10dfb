// Package budget provides token budget estimation for prompts sent to the
// completion and embedding services. Because several backends with different
// tokenizers are supported, this package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters.
package budget

import "unicode/utf8"

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input budget for answer
	// synthesis. It fits 8k-context models with room left for the answer.
	DefaultMaxContextTokens = 6000

	// DefaultMaxEmbeddingTokens is the input limit of text-embedding-ada-002.
	DefaultMaxEmbeddingTokens = 8191
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// FitPrefix returns how many leading items fit in maxTokens after fixed
// tokens are spent. Items are taken in order and the first one that does not
// fit ends the prefix, so later items are the ones dropped.
func FitPrefix(fixed int, items []string, maxTokens int) int {
	used := fixed
	for i, it := range items {
		used += Estimate(it)
		if used > maxTokens {
			return i
		}
	}
	return len(items)
}

// Truncate cuts s to at most maxTokens estimated tokens without splitting a
// UTF-8 sequence.
func Truncate(s string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	limit := maxTokens * charsPerToken
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
