// Package timeout defines centralized timeout defaults for agent operations.
// Package timeout 定义 Agent 操作的集中式超时默认值。
package timeout

import "time"

// Default timeouts. Every value can be overridden through configuration.
// 默认超时，均可通过配置覆盖。
const (
	// LLMCallTimeout bounds a single chat completion attempt.
	// LLMCallTimeout 是单次 LLM 调用的超时时间。
	LLMCallTimeout = 30 * time.Second

	// EmbeddingTimeout is the timeout for embedding generation.
	// EmbeddingTimeout 是向量生成的超时时间。
	EmbeddingTimeout = 30 * time.Second

	// ToolExecutionTimeout is the timeout for one attempt of a tool step.
	// ToolExecutionTimeout 是单个工具步骤单次尝试的超时时间。
	ToolExecutionTimeout = 15 * time.Second

	// AgentTurnTimeout bounds a whole agent turn.
	// AgentTurnTimeout 是一次完整 Agent 回合的超时时间。
	AgentTurnTimeout = 2 * time.Minute

	// ExtractionTimeout bounds background concept extraction.
	ExtractionTimeout = 2 * time.Minute

	// ConfirmationTTL is how long a pending confirmation stays valid.
	// ConfirmationTTL 是待确认操作的有效期。
	ConfirmationTTL = 5 * time.Minute

	// MaxTruncateLength is the maximum length for truncating strings in logs.
	// MaxTruncateLength 是日志中字符串截断的最大长度。
	MaxTruncateLength = 200
)
