package ai

import (
	"errors"
	"time"

	"github.com/hrygo/agentcore/internal/profile"
)

// Config represents AI configuration.
type Config struct {
	Embedding EmbeddingConfig
	LLM       LLMConfig
}

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Provider   string // siliconflow, openai, hash
	Model      string // BAAI/bge-m3
	Dimensions int    // 1024
	APIKey     string
	BaseURL    string
	CacheSize  int // 0 disables the embedding cache
}

// LLMConfig represents LLM configuration.
type LLMConfig struct {
	Provider    string // deepseek, openai, ollama
	Model       string // deepseek-chat
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 2048
	Temperature float32 // default: 0.2
	Timeout     time.Duration
	MaxRetries  int

	// RateLimit is the sustained requests per second; 0 disables limiting.
	RateLimit float64
	RateBurst int

	BreakerFailures    uint32
	BreakerOpenTimeout time.Duration
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:   p.Embedding.Provider,
			Model:      p.Embedding.Model,
			Dimensions: p.Embedding.Dimensions,
			APIKey:     p.Embedding.APIKey,
			BaseURL:    p.Embedding.BaseURL,
			CacheSize:  p.Embedding.CacheSize,
		},
		LLM: LLMConfig{
			Provider:           p.LLM.Provider,
			Model:              p.LLM.Model,
			APIKey:             p.LLM.APIKey,
			BaseURL:            p.LLM.BaseURL,
			MaxTokens:          p.LLM.MaxTokens,
			Temperature:        float32(p.LLM.Temperature),
			Timeout:            p.LLM.Timeout,
			MaxRetries:         p.LLM.MaxRetries,
			RateLimit:          p.LLM.RateLimit,
			RateBurst:          p.LLM.RateBurst,
			BreakerFailures:    uint32(p.LLM.BreakerFailures),
			BreakerOpenTimeout: p.LLM.BreakerOpenTimeout,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Embedding.Provider == "" {
		return errors.New("embedding provider is required")
	}
	if c.Embedding.Provider != "hash" && c.Embedding.APIKey == "" {
		return errors.New("embedding API key is required")
	}
	if c.LLM.Provider == "" {
		return errors.New("LLM provider is required")
	}
	if c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		return errors.New("LLM API key is required")
	}
	return nil
}
