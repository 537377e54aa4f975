package ai

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/sashabaranov/go-openai"

	aierrors "github.com/hrygo/agentcore/internal/errors"
	"github.com/hrygo/agentcore/plugin/ai/cache"
	"github.com/hrygo/agentcore/plugin/ai/timeout"
)

// EmbeddingService is the vector embedding service interface.
type EmbeddingService interface {
	// Embed generates vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension.
	Dimensions() int
}

// NewEmbeddingService creates an EmbeddingService for the configured provider,
// wrapped in an LRU cache when CacheSize > 0.
func NewEmbeddingService(cfg *EmbeddingConfig) (EmbeddingService, error) {
	var svc EmbeddingService

	switch cfg.Provider {
	case "siliconflow", "openai":
		clientConfig := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
		svc = &embeddingService{
			client:     openai.NewClientWithConfig(clientConfig),
			model:      cfg.Model,
			dimensions: cfg.Dimensions,
		}
	case "hash":
		svc = NewHashEmbeddingService(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	if cfg.CacheSize > 0 {
		return NewCachedEmbeddingService(svc, cfg.CacheSize), nil
	}
	return svc, nil
}

type embeddingService struct {
	client     *openai.Client
	model      string
	dimensions int
}

func (s *embeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *embeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout.EmbeddingTimeout)
	defer cancel()

	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(s.model),
		Dimensions: s.dimensions,
	}

	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		if isTimeout(err) {
			return nil, aierrors.LLMTimeout("embedding timed out", err)
		}
		return nil, aierrors.LLMProviderError("create embeddings failed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, aierrors.LLMProviderError(
			fmt.Sprintf("embedding count mismatch: want %d, got %d", len(texts), len(resp.Data)), nil)
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vectors[i] = data.Embedding
	}
	return vectors, nil
}

func (s *embeddingService) Dimensions() int {
	return s.dimensions
}

// CachedEmbeddingService memoizes embeddings by content hash.
type CachedEmbeddingService struct {
	inner EmbeddingService
	cache *cache.LRU[[]float32]
}

// NewCachedEmbeddingService wraps inner with an LRU cache of the given capacity.
func NewCachedEmbeddingService(inner EmbeddingService, capacity int) *CachedEmbeddingService {
	return &CachedEmbeddingService{
		inner: inner,
		cache: cache.NewLRU[[]float32](capacity, 0),
	}
}

func (c *CachedEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	key := contentKey(text)
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Put(key, v, 0)
	return v, nil
}

func (c *CachedEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if v, ok := c.cache.Get(contentKey(t)); ok {
			out[i] = v
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, v := range vectors {
		out[missingIdx[j]] = v
		c.cache.Put(contentKey(missing[j]), v, 0)
	}
	return out, nil
}

func (c *CachedEmbeddingService) Dimensions() int {
	return c.inner.Dimensions()
}

// CacheStats reports cache effectiveness.
func (c *CachedEmbeddingService) CacheStats() cache.Stats {
	return c.cache.Stats()
}

func contentKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:16])
}

// HashEmbeddingService is a deterministic, offline embedder.
// Each token is hashed into a signed bucket; vectors are L2-normalized,
// so texts sharing most tokens land close in cosine space.
type HashEmbeddingService struct {
	dimensions int
}

// NewHashEmbeddingService creates a hashing embedder with the given dimension.
func NewHashEmbeddingService(dimensions int) *HashEmbeddingService {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &HashEmbeddingService{dimensions: dimensions}
}

func (h *HashEmbeddingService) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dimensions)
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		tokens = []string{text}
	}
	for _, tok := range tokens {
		hasher := fnv.New64a()
		_, _ = hasher.Write([]byte(tok))
		sum := hasher.Sum64()
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], sum)
		idx := int(sum % uint64(h.dimensions))
		sign := float32(1)
		if buf[7]&1 == 1 {
			sign = -1
		}
		vec[idx] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

func (h *HashEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (h *HashEmbeddingService) Dimensions() int {
	return h.dimensions
}
