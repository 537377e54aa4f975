package ai

import (
	"strings"
	"unicode"
)

// stopWords are dropped by Tokenize; they carry no recall signal.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "on": true, "for": true, "is": true, "are": true,
	"was": true, "it": true, "me": true, "my": true, "i": true, "you": true,
	"what": true, "did": true, "do": true, "about": true, "with": true,
	"be": true, "at": true, "by": true, "that": true, "this": true,
}

// Tokenize splits text into lowercase, de-duplicated tokens.
// Han characters are one token each; other scripts split on non letter/digit runes.
func Tokenize(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var tokens []string
	seen := make(map[string]bool)
	var word strings.Builder

	flush := func() {
		if word.Len() == 0 {
			return
		}
		w := strings.ToLower(word.String())
		word.Reset()
		if !seen[w] && !stopWords[w] {
			tokens = append(tokens, w)
			seen[w] = true
		}
	}

	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			char := string(r)
			if !seen[char] {
				tokens = append(tokens, char)
				seen[char] = true
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(r)
		default:
			flush()
		}
	}
	flush()

	return tokens
}
