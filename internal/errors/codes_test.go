package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAIError_Format(t *testing.T) {
	err := ToolExecutionFailed("get_user", fmt.Errorf("boom"))
	assert.Equal(t, "[TOOL_EXECUTION_FAILED] tool get_user failed: boom", err.Error())

	plain := InvalidArgument("query is required")
	assert.Equal(t, "[INVALID_ARGUMENT] query is required", plain.Error())
}

func TestIsCode_Wrapped(t *testing.T) {
	inner := MemoryStoreError("store episode", fmt.Errorf("disk full"))
	wrapped := fmt.Errorf("write back: %w", inner)

	assert.True(t, IsCode(wrapped, ErrCodeMemoryStoreError))
	assert.False(t, IsCode(wrapped, ErrCodeToolNotFound))
	assert.Equal(t, ErrCodeMemoryStoreError, GetCodeFromError(wrapped, ErrCodeInvalidArgument))
	assert.Equal(t, ErrCodeInvalidArgument, GetCodeFromError(fmt.Errorf("x"), ErrCodeInvalidArgument))
}

func TestIsRetryableLLM(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", LLMTimeout("slow", nil), true},
		{"provider", LLMProviderError("502", nil), true},
		{"circuit", CircuitOpen(nil), false},
		{"parse", ResponseParseError("bad json", nil), false},
		{"canceled", LLMTimeout("x", context.Canceled), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableLLM(tt.err))
		})
	}
}

func TestWithContext(t *testing.T) {
	err := ToolNotFound("nope").WithContext("step", "step1")
	assert.Equal(t, "step1", err.Context["step"])
	assert.Equal(t, ErrCodeToolNotFound, err.GetCode())
}
