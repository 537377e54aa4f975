// Package errors defines the typed error taxonomy shared by the agent core.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a specific error type for agent operations.
type ErrorCode string

const (
	// ErrCodeLLMTimeout indicates the LLM call did not answer within the deadline.
	ErrCodeLLMTimeout ErrorCode = "LLM_TIMEOUT"
	// ErrCodeLLMProviderError indicates the LLM provider rejected or failed the call.
	ErrCodeLLMProviderError ErrorCode = "LLM_PROVIDER_ERROR"
	// ErrCodeMemoryStoreError indicates a graph, vector or session store failure.
	ErrCodeMemoryStoreError ErrorCode = "MEMORY_STORE_ERROR"
	// ErrCodeToolNotFound indicates a plan referenced an unregistered tool.
	ErrCodeToolNotFound ErrorCode = "TOOL_NOT_FOUND"
	// ErrCodeToolExecutionFailed indicates a tool step failed after retries.
	ErrCodeToolExecutionFailed ErrorCode = "TOOL_EXECUTION_FAILED"
	// ErrCodeResponseParseError indicates an LLM reply could not be parsed.
	ErrCodeResponseParseError ErrorCode = "RESPONSE_PARSE_ERROR"
	// ErrCodeUserCancelled indicates the user declined a confirmation.
	ErrCodeUserCancelled ErrorCode = "USER_CANCELLED"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeContextCanceled indicates the operation was canceled.
	ErrCodeContextCanceled ErrorCode = "CONTEXT_CANCELED"
	// ErrCodeCircuitOpen indicates the LLM circuit breaker is open.
	ErrCodeCircuitOpen ErrorCode = "CIRCUIT_OPEN"
)

// AIError represents a structured error for agent operations.
type AIError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *AIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AIError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *AIError) WithContext(key string, value interface{}) *AIError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// GetCode returns the error code.
func (e *AIError) GetCode() ErrorCode {
	return e.Code
}

// Convenience constructors for common error types.

// LLMTimeout creates an LLM timeout error.
func LLMTimeout(msg string, cause error) *AIError {
	return &AIError{Code: ErrCodeLLMTimeout, Message: msg, Cause: cause}
}

// LLMProviderError creates an LLM provider error.
func LLMProviderError(msg string, cause error) *AIError {
	return &AIError{Code: ErrCodeLLMProviderError, Message: msg, Cause: cause}
}

// MemoryStoreError creates a memory store error for the given operation.
func MemoryStoreError(op string, cause error) *AIError {
	return &AIError{Code: ErrCodeMemoryStoreError, Message: op, Cause: cause}
}

// ToolNotFound creates a tool not found error.
func ToolNotFound(name string) *AIError {
	return &AIError{
		Code:    ErrCodeToolNotFound,
		Message: fmt.Sprintf("tool not found: %s", name),
	}
}

// ToolExecutionFailed creates a tool execution failed error.
func ToolExecutionFailed(tool string, cause error) *AIError {
	return &AIError{
		Code:    ErrCodeToolExecutionFailed,
		Message: fmt.Sprintf("tool %s failed", tool),
		Cause:   cause,
	}
}

// ResponseParseError creates a response parse error.
func ResponseParseError(msg string, cause error) *AIError {
	return &AIError{Code: ErrCodeResponseParseError, Message: msg, Cause: cause}
}

// UserCancelled creates a user cancelled error.
func UserCancelled(msg string) *AIError {
	return &AIError{Code: ErrCodeUserCancelled, Message: msg}
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *AIError {
	return &AIError{Code: ErrCodeInvalidArgument, Message: msg}
}

// ContextCanceled creates a context canceled error.
func ContextCanceled(cause error) *AIError {
	return &AIError{Code: ErrCodeContextCanceled, Message: "operation canceled", Cause: cause}
}

// CircuitOpen creates a circuit open error.
func CircuitOpen(cause error) *AIError {
	return &AIError{Code: ErrCodeCircuitOpen, Message: "llm circuit breaker is open", Cause: cause}
}

// Wrap wraps an existing error with additional context.
func Wrap(cause error, code ErrorCode, msg string) *AIError {
	return &AIError{Code: code, Message: msg, Cause: cause}
}

// IsCode checks if an error, or any error it wraps, is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	var aiErr *AIError
	if stderrors.As(err, &aiErr) {
		return aiErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not an AIError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	var aiErr *AIError
	if stderrors.As(err, &aiErr) {
		return aiErr.Code
	}
	return defaultCode
}

// IsRetryableLLM reports whether an LLM failure may succeed on another attempt.
// An open circuit is not retryable within the same request.
func IsRetryableLLM(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) {
		return false
	}
	switch GetCodeFromError(err, "") {
	case ErrCodeLLMTimeout, ErrCodeLLMProviderError:
		return true
	}
	return false
}
