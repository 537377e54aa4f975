package router

import (
	"strings"
	"unicode"
)

// RuleMatcher is the zero-latency layer for queries that carry no task:
// greetings, thanks and farewells.
type RuleMatcher struct {
	phrases map[string]struct{}
}

// NewRuleMatcher creates a rule matcher with the default chatter phrases.
func NewRuleMatcher() *RuleMatcher {
	m := &RuleMatcher{phrases: make(map[string]struct{})}
	for _, p := range []string{
		"hi", "hello", "hey", "hi there", "hello there", "good morning", "good evening",
		"thanks", "thank you", "thanks a lot", "thx", "cheers",
		"bye", "goodbye", "see you", "good night",
		"how are you", "who are you", "what can you do",
	} {
		m.phrases[p] = struct{}{}
	}
	return m
}

// Match returns a conversation intent when the whole query is chatter.
func (m *RuleMatcher) Match(query string) (*QueryIntent, bool) {
	if _, ok := m.phrases[normalize(query)]; !ok {
		return nil, false
	}
	return &QueryIntent{
		Type:       IntentConversation,
		Confidence: 0.95,
		Reasoning:  "small talk",
		Source:     SourceRule,
	}, true
}

// normalize lowercases s, drops punctuation and collapses whitespace.
func normalize(s string) string {
	return strings.Join(words(s), " ")
}

// words splits s into lowercase words, keeping apostrophes inside words.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
