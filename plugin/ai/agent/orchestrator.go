package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	aierrors "github.com/hrygo/agentcore/internal/errors"
	"github.com/hrygo/agentcore/internal/observability"
	"github.com/hrygo/agentcore/internal/profile"
	"github.com/hrygo/agentcore/plugin/ai"
	"github.com/hrygo/agentcore/plugin/ai/agent/tools"
	aicontext "github.com/hrygo/agentcore/plugin/ai/context"
	"github.com/hrygo/agentcore/plugin/ai/memory"
	"github.com/hrygo/agentcore/plugin/ai/metrics"
	"github.com/hrygo/agentcore/plugin/ai/router"
	"github.com/hrygo/agentcore/plugin/ai/session"
	"github.com/hrygo/agentcore/plugin/ai/timeout"
)

// Components degraded during a turn, reported on TurnResponse.Degraded.
const (
	DegradedClassifier  = "classifier"
	DegradedMemory      = "memory"
	DegradedMemoryWrite = "memory_write"
	DegradedPlanner     = "planner"
	DegradedSession     = "session"
	DegradedSynthesis   = "synthesis"
)

const (
	defaultConfidenceFloor = 0.5
	writeBackTimeout       = 10 * time.Second
	userImportance         = 0.5
	agentImportance        = 0.4
)

// ContextAssembler builds the memory context of a request.
type ContextAssembler interface {
	Assemble(ctx context.Context, userID, sessionID, query string, tokenBudget int) (*aicontext.MemoryContext, error)
}

// StatsProvider summarizes stored memory per user.
type StatsProvider interface {
	Stats(ctx context.Context, userID string) (*memory.Stats, error)
}

// Config tunes the orchestrator.
type Config struct {
	// ConfidenceFloor tags intents below it as low confidence.
	ConfidenceFloor float64
	TokenBudget     int
	// ExtractEveryTurns triggers background concept extraction after every
	// N-th turn of a session. Zero disables it.
	ExtractEveryTurns int
	TurnTimeout       time.Duration
	ExtractionTimeout time.Duration
	SynthesisModel    string
}

// ConfigFromProfile maps the profile sections used by the orchestrator.
func ConfigFromProfile(p *profile.Profile) Config {
	return Config{
		ConfidenceFloor:   p.Classifier.ConfidenceFloor,
		TokenBudget:       p.Assembler.TokenBudget,
		ExtractEveryTurns: p.Memory.ExtractionEveryTurns,
		SynthesisModel:    p.LLM.Model,
	}
}

func (c Config) withDefaults() Config {
	if c.ConfidenceFloor <= 0 {
		c.ConfidenceFloor = defaultConfidenceFloor
	}
	if c.TokenBudget <= 0 {
		c.TokenBudget = aicontext.DefaultTokenBudget
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = timeout.AgentTurnTimeout
	}
	if c.ExtractionTimeout <= 0 {
		c.ExtractionTimeout = timeout.ExtractionTimeout
	}
	return c
}

// Components are the collaborators of the orchestrator. LLM, Assembler,
// Semantic, Stats and Metrics are optional.
type Components struct {
	LLM        ai.LLMService
	Classifier router.IntentClassifier
	Assembler  ContextAssembler
	Planner    *Planner
	Engine     *tools.Engine
	Registry   *tools.Registry
	Episodic   memory.EpisodicManager
	Semantic   memory.SemanticManager
	Stats      StatsProvider
	Turns      *session.TurnLog
	Metrics    metrics.MetricsService
	Prompts    *Prompts
	Logger     *slog.Logger
}

// TurnRequest is one user message.
type TurnRequest struct {
	Query     string `json:"query"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	// ConfirmationReply answers a pending confirmation explicitly, bypassing
	// classification of Query.
	ConfirmationReply *bool `json:"confirmation_reply,omitempty"`
}

// TurnResponse is the result of one turn.
type TurnResponse struct {
	RequestID     string              `json:"request_id"`
	Response      string              `json:"response"`
	Intent        *router.QueryIntent `json:"intent"`
	LowConfidence bool                `json:"low_confidence,omitempty"`

	Plan    *tools.ChainPlan            `json:"plan,omitempty"`
	State   tools.ExecutionState        `json:"state,omitempty"`
	Reason  string                      `json:"reason,omitempty"`
	Results []tools.ToolExecutionResult `json:"results,omitempty"`
	Pending *tools.PendingConfirmation  `json:"pending,omitempty"`

	MemoryContext *aicontext.MemoryContext `json:"memory_context,omitempty"`
	// Degraded lists the components that failed and were worked around.
	Degraded  []string `json:"degraded,omitempty"`
	LatencyMs int64    `json:"latency_ms"`
}

// Succeeded reports whether the turn reached a non-failing outcome.
func (r *TurnResponse) Succeeded() bool {
	return r.State != tools.StateFailed || r.Reason == tools.ReasonUserCancelled
}

func (r *TurnResponse) degrade(component string) {
	for _, c := range r.Degraded {
		if c == component {
			return
		}
	}
	r.Degraded = append(r.Degraded, component)
}

// MemorySearchResult holds hits of both memory layers.
type MemorySearchResult struct {
	Episodes []memory.ScoredEpisode `json:"episodes"`
	Concepts []memory.ScoredConcept `json:"concepts"`
}

// Orchestrator runs agent turns: classify, assemble memory, plan and execute
// tools, synthesize, then write the turn back to memory.
type Orchestrator struct {
	c   Components
	cfg Config
	now func() time.Time

	extractions sync.WaitGroup
}

// NewOrchestrator validates the required components.
func NewOrchestrator(c Components, cfg Config) (*Orchestrator, error) {
	switch {
	case c.Classifier == nil:
		return nil, aierrors.InvalidArgument("orchestrator requires a classifier")
	case c.Planner == nil || c.Engine == nil || c.Registry == nil:
		return nil, aierrors.InvalidArgument("orchestrator requires a planner, an engine and a tool registry")
	case c.Episodic == nil:
		return nil, aierrors.InvalidArgument("orchestrator requires episodic memory")
	case c.Turns == nil:
		return nil, aierrors.InvalidArgument("orchestrator requires a turn log")
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Noop()
	}
	if c.Prompts == nil {
		c.Prompts = DefaultPrompts()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return &Orchestrator{c: c, cfg: cfg.withDefaults(), now: time.Now}, nil
}

// turnState is what is known about the session before a turn runs.
type turnState struct {
	key     session.Key
	turns   *session.Turns
	pending *tools.PendingConfirmation
}

// withRequest attaches a request context unless the caller already did.
func (o *Orchestrator) withRequest(ctx context.Context, userID, sessionID string) (context.Context, *observability.RequestContext) {
	if rc, ok := observability.FromContext(ctx); ok {
		return ctx, rc
	}
	rc := observability.NewRequestContext(o.c.Logger, userID, sessionID)
	return observability.WithRequestContext(ctx, rc), rc
}

func (o *Orchestrator) loadState(ctx context.Context, key session.Key, resp *TurnResponse) turnState {
	logger := observability.LoggerFrom(ctx)
	st := turnState{key: key, turns: &session.Turns{}}

	turns, err := o.c.Turns.Load(ctx, key)
	if err != nil {
		logger.Warn("failed to load turn history", "error", err)
		resp.degrade(DegradedSession)
	} else {
		st.turns = turns
	}

	pending, err := o.c.Engine.Pending(ctx, key)
	if err != nil {
		logger.Warn("failed to load pending confirmation", "error", err)
		resp.degrade(DegradedSession)
	}
	st.pending = pending
	return st
}

func (o *Orchestrator) classifyRequest(query string, st turnState) router.ClassifyRequest {
	defs := o.c.Registry.Definitions()
	infos := make([]router.ToolInfo, len(defs))
	for i, d := range defs {
		infos[i] = router.ToolInfo{Name: d.Name, Description: d.Description}
	}
	return router.ClassifyRequest{
		Query:               query,
		Prior:               st.turns.Last,
		Tail:                st.turns.Tail,
		PendingConfirmation: st.pending != nil,
		Tools:               infos,
	}
}

// ExecuteTurn runs one request/response cycle. It fails only on invalid
// input; every component failure degrades the response instead.
func (o *Orchestrator) ExecuteTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	if req.UserID == "" || req.SessionID == "" {
		return nil, aierrors.InvalidArgument("user id and session id are required")
	}
	if req.Query == "" && req.ConfirmationReply == nil {
		return nil, aierrors.InvalidArgument("query is required")
	}

	start := time.Now()
	ctx, rc := o.withRequest(ctx, req.UserID, req.SessionID)
	ctx, cancel := context.WithTimeout(ctx, o.cfg.TurnTimeout)
	defer cancel()
	logger := observability.LoggerFrom(ctx)

	resp := &TurnResponse{RequestID: rc.RequestID}
	key := session.Key{UserID: req.UserID, SessionID: req.SessionID}
	st := o.loadState(ctx, key, resp)

	if req.ConfirmationReply != nil {
		resp.Intent = confirmationIntent(*req.ConfirmationReply)
		if st.pending == nil {
			resp.Response = nothingPendingResponse
		} else {
			o.resolve(ctx, st, resp)
		}
	} else {
		o.classifyAndAssemble(ctx, req, st, resp)
		resp.LowConfidence = resp.Intent.Confirmation == router.ConfirmNone &&
			resp.Intent.Confidence < o.cfg.ConfidenceFloor
		if resp.LowConfidence {
			logger.Info("low confidence intent", observability.LogFieldIntent, resp.Intent.Type,
				"confidence", resp.Intent.Confidence)
		}

		switch {
		case resp.Intent.Confirmation != router.ConfirmNone:
			o.resolve(ctx, st, resp)
		case resp.Intent.Type.NeedsTools():
			o.planAndSubmit(ctx, req, st, resp)
		}
	}

	if resp.Response == "" {
		o.respond(ctx, req, st, resp)
	}

	o.writeBack(ctx, req, st, resp)

	latency := time.Since(start)
	resp.LatencyMs = latency.Milliseconds()
	o.c.Metrics.RecordRequest(ctx, string(resp.Intent.Type), latency, resp.Succeeded())
	logger.Info("agent turn completed",
		observability.LogFieldIntent, resp.Intent.Type,
		observability.LogFieldState, resp.State,
		observability.LogFieldDuration, resp.LatencyMs,
		"degraded", resp.Degraded,
	)
	return resp, nil
}

// classifyAndAssemble classifies the query while assembling memory context.
// The context is kept only when the intent asks for it.
func (o *Orchestrator) classifyAndAssemble(ctx context.Context, req TurnRequest, st turnState, resp *TurnResponse) {
	var (
		intent    *router.QueryIntent
		mc        *aicontext.MemoryContext
		assembled error
	)
	var g errgroup.Group
	g.Go(func() error {
		intent = o.c.Classifier.Classify(ctx, o.classifyRequest(req.Query, st))
		return nil
	})
	if o.c.Assembler != nil {
		g.Go(func() error {
			mc, assembled = o.c.Assembler.Assemble(ctx, req.UserID, req.SessionID, req.Query, o.cfg.TokenBudget)
			return nil
		})
	}
	_ = g.Wait()

	resp.Intent = intent
	if intent.Degraded {
		resp.degrade(DegradedClassifier)
	}
	if !intent.MemoryContext {
		return
	}
	if assembled != nil {
		observability.LoggerFrom(ctx).Warn("memory context unavailable, continuing without it", "error", assembled)
		resp.degrade(DegradedMemory)
		return
	}
	if mc != nil && mc.Degraded {
		resp.degrade(DegradedMemory)
	}
	resp.MemoryContext = mc
}

func (o *Orchestrator) resolve(ctx context.Context, st turnState, resp *TurnResponse) {
	affirm := resp.Intent.Confirmation == router.ConfirmAffirm
	if st.pending != nil {
		resp.Plan = &st.pending.Plan
	}
	outcome, err := o.c.Engine.Resolve(ctx, st.key, affirm)
	switch {
	case errors.Is(err, tools.ErrPendingNotFound):
		resp.Plan = nil
		resp.Response = nothingPendingResponse
		return
	case err != nil:
		observability.LoggerFrom(ctx).Warn("failed to resolve pending confirmation", "error", err)
		resp.degrade(DegradedSession)
		resp.State = tools.StateFailed
		resp.Response = sessionFailureResponse
		return
	}
	o.applyOutcome(resp, outcome)
	if outcome.IsUserCancelled() {
		resp.Response = cancelledResponse
	}
}

func (o *Orchestrator) planAndSubmit(ctx context.Context, req TurnRequest, st turnState, resp *TurnResponse) {
	logger := observability.LoggerFrom(ctx)
	if st.pending != nil {
		logger.Info("new tool request supersedes pending confirmation", "tools", st.pending.Tools)
	}

	plan, err := o.c.Planner.Plan(ctx, PlanRequest{
		Query:         req.Query,
		RequiredTools: resp.Intent.RequiredTools,
		MemoryContext: aicontext.Serialize(resp.MemoryContext),
		Tail:          st.turns.Tail,
	})
	if err != nil {
		resp.degrade(DegradedPlanner)
	}
	resp.Plan = plan
	if plan.NeedsMoreInfo {
		resp.Response = plan.Clarification
		return
	}

	outcome, err := o.c.Engine.Submit(ctx, st.key, plan)
	if err != nil {
		logger.Warn("failed to submit plan", "error", err)
		resp.degrade(DegradedSession)
		resp.State = tools.StateFailed
		resp.Response = sessionFailureResponse
		return
	}
	o.applyOutcome(resp, outcome)
	if outcome.State == tools.StateConfirming {
		resp.Response = confirmationQuestion(outcome.Pending)
	}
}

func (o *Orchestrator) applyOutcome(resp *TurnResponse, outcome *tools.Outcome) {
	resp.State = outcome.State
	resp.Reason = outcome.Reason
	resp.Results = outcome.Results
	resp.Pending = outcome.Pending
}

// respond synthesizes the answer, falling back to a template when the model
// is unavailable.
func (o *Orchestrator) respond(ctx context.Context, req TurnRequest, st turnState, resp *TurnResponse) {
	if o.c.LLM == nil {
		resp.Response = fallbackResponse(resp)
		return
	}

	messages := []ai.Message{ai.SystemPrompt(o.c.Prompts.synthesisPrompt(resp.LowConfidence))}
	for _, m := range st.turns.Tail {
		if m.Role == "assistant" {
			messages = append(messages, ai.AssistantMessage(m.Content))
		} else {
			messages = append(messages, ai.UserMessage(m.Content))
		}
	}
	messages = append(messages, ai.UserMessage(synthesisInput(req.Query, resp)))

	opts := []ai.ChatOption{ai.WithOperation("synthesize"), ai.WithTemperature(0.5)}
	if o.cfg.SynthesisModel != "" {
		opts = append(opts, ai.WithModel(o.cfg.SynthesisModel))
	}
	content, err := o.c.LLM.Chat(ctx, messages, opts...)
	if err != nil || content == "" {
		observability.LoggerFrom(ctx).Warn("response synthesis failed, using fallback", "error", err)
		resp.degrade(DegradedSynthesis)
		resp.Response = fallbackResponse(resp)
		return
	}
	resp.Response = content
}

// writeBack stores the exchange as two episodes and advances the turn log.
// It runs detached from the caller's cancellation so a finished turn is
// always recorded.
func (o *Orchestrator) writeBack(ctx context.Context, req TurnRequest, st turnState, resp *TurnResponse) {
	logger := observability.LoggerFrom(ctx)
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeBackTimeout)
	defer cancel()

	now := o.now()
	query := req.Query
	if query == "" {
		query = confirmationText(*req.ConfirmationReply)
	}
	toolsUsed := resp.Intent.RequiredTools
	if resp.Plan != nil && len(resp.Plan.Steps) > 0 {
		toolsUsed = resp.Plan.ToolNames()
	}

	userCtx := map[string]any{
		"intent":     string(resp.Intent.Type),
		"request_id": resp.RequestID,
	}
	agentCtx := map[string]any{
		"intent":     string(resp.Intent.Type),
		"request_id": resp.RequestID,
	}
	if resp.State != "" {
		agentCtx["state"] = string(resp.State)
	}
	if len(toolsUsed) > 0 {
		agentCtx["tools"] = toolsUsed
	}

	episodes := []memory.EpisodicMemory{
		{
			UserID: req.UserID, SessionID: req.SessionID, Timestamp: now, Content: query, Context: userCtx,
			Metadata: memory.EpisodicMetadata{Source: memory.SourceUser, Importance: userImportance},
		},
		{
			UserID: req.UserID, SessionID: req.SessionID, Timestamp: now.Add(time.Millisecond), Content: resp.Response, Context: agentCtx,
			Metadata: memory.EpisodicMetadata{Source: memory.SourceAgent, Importance: agentImportance},
		},
	}
	for _, ep := range episodes {
		if _, err := o.c.Episodic.Store(wctx, ep); err != nil {
			logger.Warn("failed to store episode", "source", ep.Metadata.Source, "error", err)
			resp.degrade(DegradedMemoryWrite)
			break
		}
	}

	turns, err := o.c.Turns.Append(wctx, st.key, session.PriorTurn{
		Query:         query,
		IntentType:    string(resp.Intent.Type),
		RequiredTools: toolsUsed,
		Response:      resp.Response,
		At:            now,
	})
	if err != nil {
		logger.Warn("failed to append turn", "error", err)
		resp.degrade(DegradedSession)
		return
	}
	if o.cfg.ExtractEveryTurns > 0 && o.c.Semantic != nil && turns.Count%o.cfg.ExtractEveryTurns == 0 {
		o.triggerExtraction(ctx, st.key)
	}
}

func (o *Orchestrator) triggerExtraction(ctx context.Context, key session.Key) {
	o.extractions.Add(1)
	go func() {
		defer o.extractions.Done()
		ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.ExtractionTimeout)
		defer cancel()

		logger := observability.LoggerFrom(ectx)
		report, err := o.c.Semantic.ExtractFromEpisodic(ectx, key.UserID, key.SessionID)
		if err != nil {
			logger.Warn("background extraction failed", "error", err)
			return
		}
		logger.Info("background extraction completed",
			"episodes", report.Episodes, "concepts", report.Concepts, "merged", report.Merged)
	}()
}

// Wait blocks until background extractions have finished.
func (o *Orchestrator) Wait() {
	o.extractions.Wait()
}

// ClassifyQuery classifies a query in the context of its session without
// running the turn.
func (o *Orchestrator) ClassifyQuery(ctx context.Context, userID, sessionID, query string) (*router.QueryIntent, error) {
	if userID == "" || sessionID == "" || query == "" {
		return nil, aierrors.InvalidArgument("user id, session id and query are required")
	}
	ctx, _ = o.withRequest(ctx, userID, sessionID)
	st := o.loadState(ctx, session.Key{UserID: userID, SessionID: sessionID}, &TurnResponse{})
	return o.c.Classifier.Classify(ctx, o.classifyRequest(query, st)), nil
}

// SearchMemories searches both memory layers. It fails only when both fail.
func (o *Orchestrator) SearchMemories(ctx context.Context, userID, query string, limit int) (*MemorySearchResult, error) {
	if userID == "" {
		return nil, aierrors.InvalidArgument("user id is required")
	}
	ctx, _ = o.withRequest(ctx, userID, "")

	var (
		out           MemorySearchResult
		epErr, semErr error
		g             errgroup.Group
	)
	g.Go(func() error {
		out.Episodes, epErr = o.c.Episodic.Search(ctx, memory.EpisodicQuery{UserID: userID, Query: query, Limit: limit})
		return nil
	})
	if o.c.Semantic != nil {
		g.Go(func() error {
			out.Concepts, semErr = o.c.Semantic.Search(ctx, userID, query, 0, limit)
			return nil
		})
	}
	_ = g.Wait()

	if epErr != nil && (semErr != nil || o.c.Semantic == nil) {
		return nil, aierrors.MemoryStoreError("search memories", epErr)
	}
	if epErr != nil || semErr != nil {
		observability.LoggerFrom(ctx).Warn("memory search partially failed",
			"episodic_error", epErr, "semantic_error", semErr)
	}
	return &out, nil
}

// GetMemoryContext assembles the memory context for a query within
// tokenBudget. A non-positive budget yields an empty context.
func (o *Orchestrator) GetMemoryContext(ctx context.Context, userID, sessionID, query string, tokenBudget int) (*aicontext.MemoryContext, error) {
	if o.c.Assembler == nil {
		return nil, aierrors.InvalidArgument("memory context assembly is not configured")
	}
	ctx, _ = o.withRequest(ctx, userID, sessionID)
	return o.c.Assembler.Assemble(ctx, userID, sessionID, query, tokenBudget)
}

// GetMemoryStats returns per-user memory statistics.
func (o *Orchestrator) GetMemoryStats(ctx context.Context, userID string) (*memory.Stats, error) {
	if o.c.Stats == nil {
		return nil, aierrors.InvalidArgument("memory statistics are not configured")
	}
	if userID == "" {
		return nil, aierrors.InvalidArgument("user id is required")
	}
	return o.c.Stats.Stats(ctx, userID)
}
