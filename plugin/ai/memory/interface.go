// Package memory provides episodic (graph-backed) and semantic (vector-backed)
// memory for the agent.
package memory

import (
	"context"
	"errors"
	"time"

	"github.com/hrygo/agentcore/internal/profile"
)

// Graph labels used by this package.
const (
	LabelEpisode       = "Episode"
	LabelExtractionRun = "ExtractionRun"
)

// Episode sources.
const (
	SourceUser  = "user"
	SourceAgent = "agent"
	SourceTool  = "tool"
)

// ErrMemoryNotFound is returned when an id does not resolve.
var ErrMemoryNotFound = errors.New("memory not found")

// EpisodicMemory is one time-ordered conversational event.
// Content is immutable after creation; Metadata may be updated.
type EpisodicMemory struct {
	ID            string           `json:"id"`
	UserID        string           `json:"user_id"`
	SessionID     string           `json:"session_id"`
	Timestamp     time.Time        `json:"timestamp"`
	Content       string           `json:"content"`
	Context       map[string]any   `json:"context,omitempty"`
	Metadata      EpisodicMetadata `json:"metadata"`
	Relationships EpisodicLinks    `json:"relationships"`
}

type EpisodicMetadata struct {
	Source     string   `json:"source"`
	Importance float64  `json:"importance"` // 0-1
	Tags       []string `json:"tags,omitempty"`
	Location   string   `json:"location,omitempty"`
}

// EpisodicLinks holds id references only; edges live in the graph store.
type EpisodicLinks struct {
	Previous string   `json:"previous,omitempty"`
	Next     string   `json:"next,omitempty"`
	Related  []string `json:"related,omitempty"`
}

// EpisodicQuery filters and ranks episodic memories. UserID is required.
type EpisodicQuery struct {
	UserID        string
	SessionID     string
	Query         string
	Tags          []string // every tag must be present
	From          time.Time
	To            time.Time
	MinImportance float64
	Limit         int
}

// ScoredEpisode is a search hit with its composite score.
type ScoredEpisode struct {
	Memory EpisodicMemory `json:"memory"`
	Score  float64        `json:"score"`
}

// SemanticMemory is a distilled, de-duplicated concept.
type SemanticMemory struct {
	ID            string           `json:"id"`
	UserID        string           `json:"user_id"`
	Concept       string           `json:"concept"`
	Description   string           `json:"description"`
	Embedding     []float32        `json:"-"`
	Metadata      SemanticMetadata `json:"metadata"`
	Relationships SemanticLinks    `json:"relationships"`
}

type SemanticMetadata struct {
	Category     string    `json:"category"`
	Confidence   float64   `json:"confidence"` // 0-1
	Source       string    `json:"source"`
	LastAccessed time.Time `json:"last_accessed"`
	AccessCount  int       `json:"access_count"`
}

type SemanticLinks struct {
	Similar  []string `json:"similar,omitempty"`
	Parent   string   `json:"parent,omitempty"`
	Children []string `json:"children,omitempty"`
}

// ScoredConcept is a semantic search hit.
type ScoredConcept struct {
	Memory     SemanticMemory `json:"memory"`
	Similarity float64        `json:"similarity"`
}

// StoreResult reports whether a concept was inserted or merged into an existing one.
type StoreResult struct {
	ID     string `json:"id"`
	Merged bool   `json:"merged"`
}

// ExtractionReport summarizes one ExtractFromEpisodic run.
type ExtractionReport struct {
	Episodes      int           `json:"episodes"`
	Batches       int           `json:"batches"`
	FailedBatches int           `json:"failed_batches"`
	Concepts      int           `json:"concepts"`
	Merged        int           `json:"merged"`
	Discarded     int           `json:"discarded"`
	Relationships int           `json:"relationships"`
	Elapsed       time.Duration `json:"elapsed"`
}

// Stats is a per-user summary of stored memory.
type Stats struct {
	UserID             string         `json:"user_id"`
	EpisodicCount      int            `json:"episodic_count"`
	SessionCount       int            `json:"session_count"`
	SemanticCount      int            `json:"semantic_count"`
	ConceptsByCategory map[string]int `json:"concepts_by_category"`
	AverageImportance  float64        `json:"average_importance"`
	LastExtraction     time.Time      `json:"last_extraction,omitzero"`
}

// EpisodicManager stores and ranks conversational events.
type EpisodicManager interface {
	// Store persists an event, links it after the previous event of the session
	// and returns its id.
	Store(ctx context.Context, event EpisodicMemory) (string, error)

	// Get returns one memory with its relationships.
	Get(ctx context.Context, id string) (*EpisodicMemory, error)

	// Search ranks by recency, importance and keyword overlap.
	Search(ctx context.Context, q EpisodicQuery) ([]ScoredEpisode, error)

	// GetContext returns the most recent memories of a session, oldest first.
	// limit <= 0 uses the configured cap.
	GetContext(ctx context.Context, userID, sessionID string, limit int) ([]EpisodicMemory, error)

	// UpdateMetadata replaces the metadata of a memory. Content is untouched.
	UpdateMetadata(ctx context.Context, id string, metadata EpisodicMetadata) error

	// Link adds a RELATED edge in both directions.
	Link(ctx context.Context, fromID, toID string) error

	// Clear removes a user's memories, limited to one session when sessionID is set.
	Clear(ctx context.Context, userID, sessionID string) (int, error)
}

// SemanticManager stores and retrieves concepts by similarity.
type SemanticManager interface {
	// Store embeds and inserts a concept, or merges it into a near-duplicate.
	Store(ctx context.Context, concept SemanticMemory) (StoreResult, error)

	// Get returns one concept.
	Get(ctx context.Context, id string) (*SemanticMemory, error)

	// Search returns concepts with similarity >= threshold, best first.
	// threshold <= 0 uses the configured search threshold.
	Search(ctx context.Context, userID, query string, threshold float64, limit int) ([]ScoredConcept, error)

	// List returns every concept of a user.
	List(ctx context.Context, userID string) ([]SemanticMemory, error)

	// Link records a parent/child relationship between two concepts.
	Link(ctx context.Context, parentID, childID string) error

	// ExtractFromEpisodic distills concepts from episodes not yet extracted.
	ExtractFromEpisodic(ctx context.Context, userID, sessionID string) (*ExtractionReport, error)
}

// Config tunes scoring, deduplication and extraction.
type Config struct {
	RecencyWeight       float64
	ImportanceWeight    float64
	KeywordWeight       float64
	RecencyHalfLife     time.Duration
	ContextCap          int
	DuplicateThreshold  float64
	SearchThreshold     float64
	ExtractionBatchSize int
	MaxConceptsPerBatch int
	MinConfidence       float64
}

// DefaultConfig returns the defaults also registered by profile.SetDefaults.
func DefaultConfig() Config {
	return Config{
		RecencyWeight:       0.4,
		ImportanceWeight:    0.3,
		KeywordWeight:       0.3,
		RecencyHalfLife:     24 * time.Hour,
		ContextCap:          50,
		DuplicateThreshold:  0.92,
		SearchThreshold:     0.7,
		ExtractionBatchSize: 10,
		MaxConceptsPerBatch: 5,
		MinConfidence:       0.5,
	}
}

// ConfigFromProfile maps the memory section of the profile.
func ConfigFromProfile(p profile.MemoryProfile) Config {
	return Config{
		RecencyWeight:       p.RecencyWeight,
		ImportanceWeight:    p.ImportanceWeight,
		KeywordWeight:       p.KeywordWeight,
		RecencyHalfLife:     p.RecencyHalfLife,
		ContextCap:          p.ContextCap,
		DuplicateThreshold:  p.DuplicateThreshold,
		SearchThreshold:     p.SearchThreshold,
		ExtractionBatchSize: p.ExtractionBatchSize,
		MaxConceptsPerBatch: p.MaxConceptsPerBatch,
		MinConfidence:       p.MinConfidence,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RecencyHalfLife <= 0 {
		c.RecencyHalfLife = d.RecencyHalfLife
	}
	if c.ContextCap <= 0 {
		c.ContextCap = d.ContextCap
	}
	if c.DuplicateThreshold <= 0 {
		c.DuplicateThreshold = d.DuplicateThreshold
	}
	if c.SearchThreshold <= 0 {
		c.SearchThreshold = d.SearchThreshold
	}
	if c.ExtractionBatchSize <= 0 {
		c.ExtractionBatchSize = d.ExtractionBatchSize
	}
	if c.MaxConceptsPerBatch <= 0 {
		c.MaxConceptsPerBatch = d.MaxConceptsPerBatch
	}
	if c.RecencyWeight == 0 && c.ImportanceWeight == 0 && c.KeywordWeight == 0 {
		c.RecencyWeight, c.ImportanceWeight, c.KeywordWeight = d.RecencyWeight, d.ImportanceWeight, d.KeywordWeight
	}
	return c
}
