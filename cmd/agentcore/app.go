package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/agentcore/internal/profile"
	"github.com/hrygo/agentcore/plugin/ai"
	"github.com/hrygo/agentcore/plugin/ai/agent"
	"github.com/hrygo/agentcore/plugin/ai/agent/tools"
	"github.com/hrygo/agentcore/plugin/ai/cache"
	aicontext "github.com/hrygo/agentcore/plugin/ai/context"
	"github.com/hrygo/agentcore/plugin/ai/graph"
	"github.com/hrygo/agentcore/plugin/ai/memory"
	"github.com/hrygo/agentcore/plugin/ai/metrics"
	"github.com/hrygo/agentcore/plugin/ai/router"
	"github.com/hrygo/agentcore/plugin/ai/session"
	"github.com/hrygo/agentcore/plugin/ai/vector"
	"github.com/hrygo/agentcore/store"
	"github.com/hrygo/agentcore/store/db"
)

// app holds the wired services of one CLI invocation.
type app struct {
	store        *store.Store
	cache        *cache.Service
	cleanup      *session.CleanupJob
	metrics      *metrics.Service
	orchestrator *agent.Orchestrator
}

func newApp(ctx context.Context, p *profile.Profile) (*app, error) {
	driver, err := db.NewDBDriver(p)
	if err != nil {
		return nil, err
	}
	st := store.New(driver)
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, errors.Wrap(err, "failed to migrate store")
	}
	a := &app{store: st, metrics: metrics.NewService(1000, 5*time.Second)}

	o, err := a.wire(ctx, p)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.orchestrator = o
	return a, nil
}

func (a *app) wire(ctx context.Context, p *profile.Profile) (*agent.Orchestrator, error) {
	aiCfg := ai.NewConfigFromProfile(p)

	var llm ai.LLMService
	if p.IsLLMConfigured() {
		svc, err := ai.NewLLMService(&aiCfg.LLM, a.metrics)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create LLM service")
		}
		llm = svc
	} else {
		slog.Warn("no LLM configured, classification and planning will degrade")
	}

	embCfg := aiCfg.Embedding
	if embCfg.APIKey == "" && embCfg.Provider != "hash" {
		slog.Warn("no embedding API key, falling back to hash embeddings", "provider", embCfg.Provider)
		embCfg.Provider = "hash"
	}
	embedder, err := ai.NewEmbeddingService(&embCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create embedding service")
	}

	g, err := newGraphStore(ctx, p, a.store)
	if err != nil {
		return nil, err
	}
	v, err := newVectorStore(p, a.store, embedder.Dimensions())
	if err != nil {
		return nil, err
	}
	mem := memory.NewService(g, v, embedder, llm, memory.ConfigFromProfile(p.Memory))

	a.cache = cache.NewService(cache.DefaultServiceConfig())
	state := session.NewStateStore(a.store, a.cache)
	a.cleanup = session.NewCleanupJob(state, session.DefaultCleanupInterval)
	a.cleanup.Start(ctx)

	registry := tools.NewRegistry()
	client := tools.NewAPIClient(p.ToolBaseURL, &http.Client{Timeout: p.Engine.StepTimeout})
	if err := registerAll(registry, tools.HTTPTools(client)); err != nil {
		return nil, err
	}
	if err := registerAll(registry, tools.MemoryTools(mem.Episodic, mem.Semantic)); err != nil {
		return nil, err
	}
	executor := tools.NewResilientToolExecutor(a.metrics,
		tools.WithMaxRetries(p.Engine.MaxRetries),
		tools.WithRetryDelay(p.Engine.RetryBackoff),
		tools.WithTimeout(p.Engine.StepTimeout),
	)
	engine := tools.NewEngine(registry, executor, state, tools.EngineConfigFromProfile(p))

	return agent.NewOrchestrator(agent.Components{
		LLM:        llm,
		Classifier: router.NewService(llm, router.ConfigFromProfile(p), a.metrics),
		Assembler:  aicontext.NewAssembler(mem.Episodic, mem.Semantic, llm, aicontext.ConfigFromProfile(p.Assembler, memory.ConfigFromProfile(p.Memory))),
		Planner:    agent.NewPlanner(llm, registry, nil, agent.PlannerConfigFromProfile(p)),
		Engine:     engine,
		Registry:   registry,
		Episodic:   mem.Episodic,
		Semantic:   mem.Semantic,
		Stats:      mem,
		Turns:      session.NewTurnLog(state),
		Metrics:    a.metrics,
	}, agent.ConfigFromProfile(p))
}

func registerAll(r *tools.Registry, ts []tools.Tool) error {
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			return errors.Wrapf(err, "failed to register tool %s", t.Definition().Name)
		}
	}
	return nil
}

func newGraphStore(ctx context.Context, p *profile.Profile, st *store.Store) (graph.GraphStore, error) {
	switch p.GraphBackend {
	case "neo4j":
		g := graph.NewNeo4jStore(p.Neo4j.URL, p.Neo4j.Database, p.Neo4j.Username, p.Neo4j.Password)
		if err := g.Ping(ctx); err != nil {
			return nil, errors.Wrap(err, "failed to reach neo4j")
		}
		return g, nil
	default:
		return graph.NewSQLStore(st), nil
	}
}

func newVectorStore(p *profile.Profile, st *store.Store, dim int) (vector.VectorStore, error) {
	switch p.VectorBackend {
	case "store":
		v, err := vector.NewPGVectorStore(st, dim)
		if err != nil {
			return nil, errors.Wrap(err, "vector_backend=store needs the postgres driver")
		}
		return v, nil
	case "memory":
		return vector.NewMemoryStore(dim), nil
	default:
		return vector.NewHNSWStore(dim), nil
	}
}

// Close waits for background work and releases resources.
func (a *app) Close() {
	if a.orchestrator != nil {
		a.orchestrator.Wait()
	}
	if a.cleanup != nil {
		a.cleanup.Stop()
	}
	if a.cache != nil {
		a.cache.Close()
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("failed to close store", "error", err)
	}
}

// openApp loads the profile and wires the app.
func openApp(ctx context.Context) (*app, error) {
	p, err := loadProfile()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, p)
}
