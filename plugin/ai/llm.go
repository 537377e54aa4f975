package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	aierrors "github.com/hrygo/agentcore/internal/errors"
	"github.com/hrygo/agentcore/internal/observability"
	"github.com/hrygo/agentcore/plugin/ai/metrics"
	"github.com/hrygo/agentcore/plugin/ai/timeout"
)

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// LLMService is the LLM service interface.
type LLMService interface {
	// Chat performs a synchronous chat completion and returns the assistant text.
	// Failures are *errors.AIError with code LLM_TIMEOUT, LLM_PROVIDER_ERROR,
	// CIRCUIT_OPEN or CONTEXT_CANCELED.
	Chat(ctx context.Context, messages []Message, opts ...ChatOption) (string, error)
}

// ChatOptions are per-call overrides of the service defaults.
type ChatOptions struct {
	Model       string
	Temperature *float32
	MaxTokens   int
	JSONMode    bool
	// Operation labels the call in metrics and logs (classify, plan, synthesize...).
	Operation string
}

// ChatOption configures a single Chat call.
type ChatOption func(*ChatOptions)

// WithModel overrides the model for one call.
func WithModel(model string) ChatOption {
	return func(o *ChatOptions) { o.Model = model }
}

// WithTemperature overrides the temperature for one call.
func WithTemperature(t float32) ChatOption {
	return func(o *ChatOptions) { o.Temperature = &t }
}

// WithMaxTokens overrides the completion token cap for one call.
func WithMaxTokens(n int) ChatOption {
	return func(o *ChatOptions) { o.MaxTokens = n }
}

// WithJSONMode asks the provider for a JSON object response.
func WithJSONMode() ChatOption {
	return func(o *ChatOptions) { o.JSONMode = true }
}

// WithOperation labels the call.
func WithOperation(op string) ChatOption {
	return func(o *ChatOptions) { o.Operation = op }
}

// ApplyChatOptions folds opts into a ChatOptions value.
func ApplyChatOptions(opts ...ChatOption) ChatOptions {
	var o ChatOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.Operation == "" {
		o.Operation = "chat"
	}
	return o
}

type llmService struct {
	client  *openai.Client
	cfg     LLMConfig
	limiter *rate.Limiter
	breaker *CircuitBreaker
	metrics metrics.MetricsService
}

// NewLLMService creates a new LLMService backed by an OpenAI-compatible endpoint.
func NewLLMService(cfg *LLMConfig, m metrics.MetricsService) (LLMService, error) {
	var clientConfig openai.ClientConfig

	switch cfg.Provider {
	case "deepseek", "openai":
		clientConfig = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
	case "ollama":
		// Ollama serves the OpenAI API under /v1 and ignores the key.
		clientConfig = openai.DefaultConfig("ollama")
		clientConfig.BaseURL = cfg.BaseURL + "/v1"
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = timeout.LLMCallTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if m == nil {
		m = metrics.Noop()
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &llmService{
		client:  openai.NewClientWithConfig(clientConfig),
		cfg:     *cfg,
		limiter: limiter,
		breaker: NewCircuitBreaker("llm:"+cfg.Provider, cfg.BreakerFailures, cfg.BreakerOpenTimeout),
		metrics: m,
	}, nil
}

func (s *llmService) Chat(ctx context.Context, messages []Message, opts ...ChatOption) (string, error) {
	o := ApplyChatOptions(opts...)
	req := s.buildRequest(messages, o)

	start := time.Now()
	result, err := s.doWithRetry(ctx, o.Operation, func() (string, error) {
		return s.breaker.Execute(func() (string, error) {
			return s.complete(ctx, req)
		})
	})
	s.metrics.RecordLLMCall(ctx, o.Operation, time.Since(start), err == nil)
	if err != nil {
		return "", s.classify(err)
	}
	return result, nil
}

func (s *llmService) buildRequest(messages []Message, o ChatOptions) openai.ChatCompletionRequest {
	model := s.cfg.Model
	if o.Model != "" {
		model = o.Model
	}
	maxTokens := s.cfg.MaxTokens
	if o.MaxTokens > 0 {
		maxTokens = o.MaxTokens
	}
	temperature := s.cfg.Temperature
	if o.Temperature != nil {
		temperature = *o.Temperature
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    convertMessages(messages),
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	if o.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return req
}

func (s *llmService) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(callCtx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty chat response")
	}
	return resp.Choices[0].Message.Content, nil
}

// doWithRetry executes fn with exponential backoff on transient failures.
func (s *llmService) doWithRetry(ctx context.Context, op string, fn func() (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isTransientLLMError(err) || attempt == s.cfg.MaxRetries {
			break
		}

		waitTime := time.Duration(math.Pow(2, float64(attempt))) * 250 * time.Millisecond
		observability.LoggerFrom(ctx).Debug("llm request failed, retrying",
			"operation", op,
			"attempt", attempt+1,
			"wait_time", waitTime,
			"error", err)
		select {
		case <-time.After(waitTime):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

// classify maps raw client errors onto the typed taxonomy.
func (s *llmService) classify(err error) error {
	switch {
	case isBreakerOpen(err):
		return aierrors.CircuitOpen(err)
	case errors.Is(err, context.Canceled):
		return aierrors.ContextCanceled(err)
	case isTimeout(err):
		return aierrors.LLMTimeout("llm call timed out", err).WithContext("provider", s.cfg.Provider)
	default:
		return aierrors.LLMProviderError("llm call failed", err).WithContext("provider", s.cfg.Provider)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isTransientLLMError(err error) bool {
	if isBreakerOpen(err) || errors.Is(err, context.Canceled) {
		return false
	}
	if isTimeout(err) {
		return true
	}
	if status := httpStatus(err); status != 0 {
		return status == http.StatusTooManyRequests || status >= 500
	}
	return true
}

func httpStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case "system":
			role = openai.ChatMessageRoleSystem
		case "assistant":
			role = openai.ChatMessageRoleAssistant
		}
		out[i] = openai.ChatCompletionMessage{Role: role, Content: m.Content}
	}
	return out
}

// Helper for creating system prompts
func SystemPrompt(content string) Message {
	return Message{Role: "system", Content: content}
}

// Helper for creating user messages
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// Helper for creating assistant messages
func AssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// FormatMessages formats messages for prompt templates.
func FormatMessages(systemPrompt string, userContent string, history []Message) []Message {
	messages := []Message{}
	if systemPrompt != "" {
		messages = append(messages, SystemPrompt(systemPrompt))
	}
	messages = append(messages, history...)
	messages = append(messages, UserMessage(userContent))
	return messages
}
