// Package profile loads the runtime configuration of the agent core.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cohesivestack/valgo"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override, e.g. AGENTCORE_LLM_MODEL.
const EnvPrefix = "AGENTCORE"

// Profile is the configuration used to assemble an agent runtime.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string `mapstructure:"mode"`
	// Data is the data directory
	Data string `mapstructure:"data"`
	// Driver is the storage driver (memory, sqlite or postgres)
	Driver string `mapstructure:"driver"`
	// DSN points to where the graph, vector and session data live
	DSN string `mapstructure:"dsn"`
	// ToolBaseURL is the base URL of the JSON REST API the built-in tools call
	ToolBaseURL string `mapstructure:"tool_base_url"`

	// GraphBackend selects the memory graph: "store" (the driver above) or "neo4j"
	GraphBackend string `mapstructure:"graph_backend"`
	// VectorBackend selects the concept index: "store" (postgres only), "hnsw" or "memory"
	VectorBackend string `mapstructure:"vector_backend"`

	Neo4j      Neo4jProfile      `mapstructure:"neo4j"`
	LLM        LLMProfile        `mapstructure:"llm"`
	Embedding  EmbeddingProfile  `mapstructure:"embedding"`
	Memory     MemoryProfile     `mapstructure:"memory"`
	Assembler  AssemblerProfile  `mapstructure:"assembler"`
	Classifier ClassifierProfile `mapstructure:"classifier"`
	Engine     EngineProfile     `mapstructure:"engine"`
}

// Neo4jProfile configures the HTTP transactional endpoint of a Neo4j server.
type Neo4jProfile struct {
	URL      string `mapstructure:"url"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// LLMProfile configures the chat completion client.
type LLMProfile struct {
	Provider           string        `mapstructure:"provider"` // deepseek, openai, ollama
	Model              string        `mapstructure:"model"`
	APIKey             string        `mapstructure:"api_key"`
	BaseURL            string        `mapstructure:"base_url"`
	MaxTokens          int           `mapstructure:"max_tokens"`
	Temperature        float64       `mapstructure:"temperature"`
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
	RateLimit          float64       `mapstructure:"rate_limit"` // requests per second, 0 disables
	RateBurst          int           `mapstructure:"rate_burst"`
	BreakerFailures    int           `mapstructure:"breaker_failures"`
	BreakerOpenTimeout time.Duration `mapstructure:"breaker_open_timeout"`
}

// EmbeddingProfile configures the embedding client.
type EmbeddingProfile struct {
	Provider   string `mapstructure:"provider"` // siliconflow, openai, hash
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Dimensions int    `mapstructure:"dimensions"`
	CacheSize  int    `mapstructure:"cache_size"`
}

// MemoryProfile tunes episodic scoring, deduplication and extraction.
type MemoryProfile struct {
	RecencyWeight        float64       `mapstructure:"recency_weight"`
	ImportanceWeight     float64       `mapstructure:"importance_weight"`
	KeywordWeight        float64       `mapstructure:"keyword_weight"`
	RecencyHalfLife      time.Duration `mapstructure:"recency_half_life"`
	ContextCap           int           `mapstructure:"context_cap"`
	DuplicateThreshold   float64       `mapstructure:"duplicate_threshold"`
	SearchThreshold      float64       `mapstructure:"search_threshold"`
	ExtractionBatchSize  int           `mapstructure:"extraction_batch_size"`
	MaxConceptsPerBatch  int           `mapstructure:"max_concepts_per_batch"`
	MinConfidence        float64       `mapstructure:"min_confidence"`
	ExtractionEveryTurns int           `mapstructure:"extraction_every_turns"`
}

// AssemblerProfile tunes context assembly.
type AssemblerProfile struct {
	TokenBudget         int     `mapstructure:"token_budget"`
	CompressionFraction float64 `mapstructure:"compression_fraction"`
	EpisodicLimit       int     `mapstructure:"episodic_limit"`
	SemanticLimit       int     `mapstructure:"semantic_limit"`
}

// ClassifierProfile tunes intent classification.
type ClassifierProfile struct {
	ConfidenceFloor float64 `mapstructure:"confidence_floor"`
	// Model overrides llm.model for classification calls.
	Model string `mapstructure:"model"`
	// ContinuationPrefixes mark a query as a follow-up of a tool turn.
	ContinuationPrefixes []string `mapstructure:"continuation_prefixes"`
}

// EngineProfile tunes tool execution.
type EngineProfile struct {
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
	StepTimeout     time.Duration `mapstructure:"step_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	SafeTools       []string      `mapstructure:"safe_tools"`
	ConfirmationTTL time.Duration `mapstructure:"confirmation_ttl"`
	MaxPlanSteps    int           `mapstructure:"max_plan_steps"`
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsLLMConfigured returns true if an API key or a local base URL is configured.
func (p *Profile) IsLLMConfigured() bool {
	return p.LLM.APIKey != "" || p.LLM.Provider == "ollama"
}

// SetDefaults registers every key with its default so env overrides resolve.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("mode", "dev")
	v.SetDefault("data", ".")
	v.SetDefault("driver", "memory")
	v.SetDefault("dsn", "")
	v.SetDefault("tool_base_url", "https://jsonplaceholder.typicode.com")
	v.SetDefault("graph_backend", "store")
	v.SetDefault("vector_backend", "hnsw")

	v.SetDefault("neo4j.url", "http://localhost:7474")
	v.SetDefault("neo4j.database", "neo4j")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "")

	v.SetDefault("llm.provider", "deepseek")
	v.SetDefault("llm.model", "deepseek-chat")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.deepseek.com")
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.rate_limit", 5.0)
	v.SetDefault("llm.rate_burst", 5)
	v.SetDefault("llm.breaker_failures", 5)
	v.SetDefault("llm.breaker_open_timeout", 30*time.Second)

	v.SetDefault("embedding.provider", "siliconflow")
	v.SetDefault("embedding.model", "BAAI/bge-m3")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "https://api.siliconflow.cn/v1")
	v.SetDefault("embedding.dimensions", 1024)
	v.SetDefault("embedding.cache_size", 2048)

	v.SetDefault("memory.recency_weight", 0.4)
	v.SetDefault("memory.importance_weight", 0.3)
	v.SetDefault("memory.keyword_weight", 0.3)
	v.SetDefault("memory.recency_half_life", 24*time.Hour)
	v.SetDefault("memory.context_cap", 50)
	v.SetDefault("memory.duplicate_threshold", 0.92)
	v.SetDefault("memory.search_threshold", 0.7)
	v.SetDefault("memory.extraction_batch_size", 10)
	v.SetDefault("memory.max_concepts_per_batch", 5)
	v.SetDefault("memory.min_confidence", 0.5)
	v.SetDefault("memory.extraction_every_turns", 10)

	v.SetDefault("assembler.token_budget", 2000)
	v.SetDefault("assembler.compression_fraction", 0.3)
	v.SetDefault("assembler.episodic_limit", 20)
	v.SetDefault("assembler.semantic_limit", 10)

	v.SetDefault("classifier.confidence_floor", 0.5)
	v.SetDefault("classifier.model", "")
	v.SetDefault("classifier.continuation_prefixes", []string{"now", "then", "okay now", "ok now", "also", "and then", "next"})

	v.SetDefault("engine.max_concurrency", 4)
	v.SetDefault("engine.step_timeout", 15*time.Second)
	v.SetDefault("engine.max_retries", 2)
	v.SetDefault("engine.retry_backoff", 200*time.Millisecond)
	v.SetDefault("engine.safe_tools", []string{})
	v.SetDefault("engine.confirmation_ttl", 5*time.Minute)
	v.SetDefault("engine.max_plan_steps", 8)
}

// Load reads defaults, then the optional config file, then AGENTCORE_* env vars.
func Load(configFile string) (*Profile, error) {
	v := viper.New()
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", configFile)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	p := &Profile{}
	if err := v.Unmarshal(p); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	val := valgo.Is(
		valgo.String(p.Driver, "driver").InSlice([]string{"memory", "sqlite", "postgres"}),
		valgo.String(p.GraphBackend, "graph_backend").InSlice([]string{"store", "neo4j"}),
		valgo.String(p.VectorBackend, "vector_backend").InSlice([]string{"store", "hnsw", "memory"}),
		valgo.String(p.LLM.Model, "llm.model").Not().Blank(),
		valgo.Int(p.LLM.MaxTokens, "llm.max_tokens").GreaterThan(0),
		valgo.Float64(p.LLM.Temperature, "llm.temperature").Between(0.0, 2.0),
		valgo.Int(p.LLM.MaxRetries, "llm.max_retries").GreaterOrEqualTo(0),
		valgo.Int(p.Embedding.Dimensions, "embedding.dimensions").GreaterThan(0),
		valgo.Float64(p.Memory.RecencyWeight, "memory.recency_weight").Between(0.0, 1.0),
		valgo.Float64(p.Memory.ImportanceWeight, "memory.importance_weight").Between(0.0, 1.0),
		valgo.Float64(p.Memory.KeywordWeight, "memory.keyword_weight").Between(0.0, 1.0),
		valgo.Int(p.Memory.ContextCap, "memory.context_cap").Between(1, 50),
		valgo.Float64(p.Memory.DuplicateThreshold, "memory.duplicate_threshold").Between(0.0, 1.0),
		valgo.Float64(p.Memory.SearchThreshold, "memory.search_threshold").Between(0.0, 1.0),
		valgo.Float64(p.Memory.MinConfidence, "memory.min_confidence").Between(0.0, 1.0),
		valgo.Int(p.Memory.ExtractionBatchSize, "memory.extraction_batch_size").GreaterThan(0),
		valgo.Int(p.Assembler.TokenBudget, "assembler.token_budget").GreaterThan(0),
		valgo.Float64(p.Assembler.CompressionFraction, "assembler.compression_fraction").Between(0.0, 1.0),
		valgo.Float64(p.Classifier.ConfidenceFloor, "classifier.confidence_floor").Between(0.0, 1.0),
		valgo.Int(p.Engine.MaxConcurrency, "engine.max_concurrency").GreaterThan(0),
		valgo.Int(p.Engine.MaxRetries, "engine.max_retries").GreaterOrEqualTo(0),
	)
	if !val.Valid() {
		return errors.Wrap(val.Error(), "invalid profile")
	}

	if p.Driver == "sqlite" && p.DSN == "" {
		p.DSN = filepath.Join(p.Data, fmt.Sprintf("agentcore_%s.db", p.Mode))
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("postgres driver requires a dsn")
	}
	if p.VectorBackend == "store" && p.Driver != "postgres" {
		return errors.New("vector_backend store requires the postgres driver")
	}
	if p.GraphBackend == "neo4j" && p.Neo4j.URL == "" {
		return errors.New("neo4j graph backend requires neo4j.url")
	}
	if p.Driver == "sqlite" {
		if _, err := os.Stat(p.Data); err != nil {
			return errors.Wrapf(err, "unable to access data folder %s", p.Data)
		}
	}
	return nil
}
