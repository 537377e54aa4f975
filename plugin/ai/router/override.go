package router

import (
	"slices"
	"strings"
)

// OverrideInput is what an override rule may inspect.
type OverrideInput struct {
	Query   string
	Words   []string
	Request ClassifyRequest
}

// OverrideRule deterministically rewrites a model-stage intent.
type OverrideRule struct {
	Name    string
	Matches func(in OverrideInput) bool
	Apply   func(intent *QueryIntent, in OverrideInput)
}

var (
	affirmations = []string{
		"yes", "y", "yeah", "yep", "yup", "sure", "ok", "okay", "confirm", "confirmed",
		"go ahead", "do it", "proceed", "yes please", "please do", "absolutely",
	}
	negations = []string{
		"no", "n", "nope", "nah", "cancel", "stop", "abort", "don't", "do not",
		"no thanks", "never mind", "nevermind", "don't do it",
	}
	// courtesy words may trail a yes/no reply without changing it.
	courtesy = []string{"please", "thanks", "thank", "you", "it", "do", "that"}
)

// DefaultContinuationPrefixes start an elliptical follow-up of a tool turn.
var DefaultContinuationPrefixes = []string{"now", "then", "okay now", "ok now", "also", "and then", "next"}

// DefaultOverrideRules returns the override table in evaluation order. The
// first matching rule wins.
func DefaultOverrideRules(prefixes []string) []OverrideRule {
	if len(prefixes) == 0 {
		prefixes = DefaultContinuationPrefixes
	}
	normalized := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = normalize(p); p != "" {
			normalized = append(normalized, p)
		}
	}
	// Longest prefix first so "okay now" is reported over a shorter match.
	slices.SortFunc(normalized, func(a, b string) int { return len(b) - len(a) })

	return []OverrideRule{
		{
			Name: "pending_affirm",
			Matches: func(in OverrideInput) bool {
				return in.Request.PendingConfirmation && isReply(in.Query, in.Words, affirmations)
			},
			Apply: func(intent *QueryIntent, _ OverrideInput) {
				resolveConfirmation(intent, ConfirmAffirm)
			},
		},
		{
			Name: "pending_deny",
			Matches: func(in OverrideInput) bool {
				return in.Request.PendingConfirmation && isReply(in.Query, in.Words, negations)
			},
			Apply: func(intent *QueryIntent, _ OverrideInput) {
				resolveConfirmation(intent, ConfirmDeny)
			},
		},
		{
			Name: "tool_followup",
			Matches: func(in OverrideInput) bool {
				prior := in.Request.Prior
				if prior == nil || IntentType(prior.IntentType) != IntentToolExecution {
					return false
				}
				return slices.ContainsFunc(normalized, func(p string) bool {
					return in.Query == p || strings.HasPrefix(in.Query, p+" ")
				})
			},
			Apply: func(intent *QueryIntent, in OverrideInput) {
				if intent.Type != IntentToolExecution {
					intent.Reasoning = strings.TrimSpace("follow-up of a tool request; model said " +
						string(intent.Type) + ". " + intent.Reasoning)
				}
				intent.Type = IntentToolExecution
				intent.Confidence = max(intent.Confidence, 0.8)
				if len(intent.RequiredTools) == 0 {
					intent.RequiredTools = deriveTools(in.Words, in.Request.Tools)
				}
				if len(intent.RequiredTools) == 0 {
					intent.RequiredTools = slices.Clone(in.Request.Prior.RequiredTools)
				}
			},
		},
	}
}

// applyOverrides runs the first matching rule against intent.
func applyOverrides(rules []OverrideRule, intent *QueryIntent, req ClassifyRequest) {
	in := OverrideInput{
		Query:   normalize(req.Query),
		Words:   words(req.Query),
		Request: req,
	}
	for _, r := range rules {
		if r.Matches(in) {
			r.Apply(intent, in)
			intent.Override = r.Name
			return
		}
	}
}

func resolveConfirmation(intent *QueryIntent, c Confirmation) {
	intent.Type = IntentToolExecution
	intent.Confirmation = c
	intent.Confidence = 1
	intent.MemoryContext = false
	intent.Reasoning = "reply to pending confirmation"
}

// isReply reports whether the query is one of replies, optionally followed by
// courtesy words ("yes please", "no thanks").
func isReply(query string, ws []string, replies []string) bool {
	if slices.Contains(replies, query) {
		return true
	}
	for _, r := range replies {
		rw := strings.Fields(r)
		if len(ws) <= len(rw) || !slices.Equal(ws[:len(rw)], rw) {
			continue
		}
		if !slices.ContainsFunc(ws[len(rw):], func(w string) bool { return !slices.Contains(courtesy, w) }) {
			return true
		}
	}
	return false
}

// genericParts are tool-name parts that carry no object.
var genericParts = []string{"get", "list", "fetch", "create", "delete", "update", "search", "store", "by", "of", "all"}

// deriveTools picks the tools whose name parts best overlap the query words.
func deriveTools(ws []string, tools []ToolInfo) []string {
	stems := make(map[string]struct{}, len(ws))
	for _, w := range ws {
		stems[stem(w)] = struct{}{}
	}

	best := 0
	var picked []string
	for _, t := range tools {
		score := 0
		for _, part := range strings.Split(strings.ToLower(t.Name), "_") {
			if slices.Contains(genericParts, part) {
				continue
			}
			if _, ok := stems[stem(part)]; ok {
				score++
			}
		}
		switch {
		case score == 0 || score < best:
		case score > best:
			best, picked = score, []string{t.Name}
		default:
			picked = append(picked, t.Name)
		}
	}
	return picked
}

// stem strips a plural suffix.
func stem(w string) string {
	switch {
	case strings.HasSuffix(w, "ies") && len(w) > 4:
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && len(w) > 3:
		return w[:len(w)-1]
	}
	return w
}
