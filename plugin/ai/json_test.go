package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aierrors "github.com/hrygo/agentcore/internal/errors"
)

type intentReply struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantStage ParseStage
		wantType  string
	}{
		{"strict", `{"type":"memory_chat","confidence":0.9}`, ParseStrict, "memory_chat"},
		{"fenced", "```json\n{\"type\":\"hybrid\",\"confidence\":0.5}\n```", ParseExtracted, "hybrid"},
		{"prose", `Sure! Here is it: {"type":"conversation","confidence":0.8} hope it helps`, ParseExtracted, "conversation"},
		{"braces in strings", `note {"type":"x}{","confidence":1}`, ParseExtracted, "x}{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got intentReply
			stage, err := ParseJSON(tt.input, &got)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStage, stage)
			assert.Equal(t, tt.wantType, got.Type)
		})
	}
}

func TestParseJSON_Failure(t *testing.T) {
	for _, input := range []string{"", "I cannot help with that", `{"type": "broken"`} {
		var got intentReply
		stage, err := ParseJSON(input, &got)
		assert.Equal(t, ParseFailed, stage)
		assert.True(t, aierrors.IsCode(err, aierrors.ErrCodeResponseParseError), input)
	}
}

func TestExtractJSON_Array(t *testing.T) {
	got := ExtractJSON(`plan: [{"id":"step1"},{"id":"step2"}] done`)
	assert.Equal(t, `[{"id":"step1"},{"id":"step2"}]`, got)
}

func TestExtractJSON_SkipsInvalidCandidate(t *testing.T) {
	got := ExtractJSON(`[not json] then {"ok":true}`)
	assert.Equal(t, `{"ok":true}`, got)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
	assert.Equal(t, "你好...", Truncate("你好世界", 2))
}
