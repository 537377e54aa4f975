package tools

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	aierrors "github.com/hrygo/agentcore/internal/errors"
	"github.com/hrygo/agentcore/internal/observability"
	"github.com/hrygo/agentcore/internal/profile"
	"github.com/hrygo/agentcore/plugin/ai/session"
)

// ErrPendingNotFound is returned when resolving a confirmation that does not
// exist or has expired.
var ErrPendingNotFound = errors.New("no pending confirmation")

// ExecutionState is a state of the execution state machine.
type ExecutionState string

const (
	StatePlanned    ExecutionState = "planned"
	StateConfirming ExecutionState = "confirming"
	StateExecuting  ExecutionState = "executing"
	StatePartial    ExecutionState = "partial"
	StateCompleted  ExecutionState = "completed"
	StateFailed     ExecutionState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s ExecutionState) Terminal() bool {
	return s == StatePartial || s == StateCompleted || s == StateFailed
}

// StepStatus is the outcome of one step.
type StepStatus string

const (
	StepSucceeded     StepStatus = "succeeded"
	StepFailed        StepStatus = "failed"
	StepSkipped       StepStatus = "skipped"
	StepNeedsMoreInfo StepStatus = "needs_more_info"
)

// Failure reasons reported on Outcome.
const (
	ReasonUserCancelled = "user_cancelled"
	ReasonEmptyPlan     = "empty_plan"
	ReasonInvalidPlan   = "invalid_plan"
)

// ToolExecutionResult is the outcome of one step.
type ToolExecutionResult struct {
	StepID     string          `json:"step_id"`
	ToolName   string          `json:"tool_name"`
	Status     StepStatus      `json:"status"`
	Success    bool            `json:"success"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	Attempts   int             `json:"attempts,omitempty"`
}

// PendingConfirmation is a plan awaiting the user's yes/no reply.
type PendingConfirmation struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Plan      ChainPlan `json:"plan"`
	// Tools lists the steps' tools that triggered the gate.
	Tools     []string  `json:"tools"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Outcome is the result of submitting or resolving a plan.
type Outcome struct {
	State   ExecutionState        `json:"state"`
	Results []ToolExecutionResult `json:"results"`
	// Reason explains StateFailed outcomes that ran no step.
	Reason  string               `json:"reason,omitempty"`
	Pending *PendingConfirmation `json:"pending,omitempty"`
}

// Succeeded returns the results of successful steps.
func (o *Outcome) Succeeded() []ToolExecutionResult {
	var out []ToolExecutionResult
	for _, r := range o.Results {
		if r.Success {
			out = append(out, r)
		}
	}
	return out
}

// EngineConfig tunes the engine.
type EngineConfig struct {
	MaxConcurrency  int
	ConfirmationTTL time.Duration
	// SafeTools, when non-empty, is the allow-list of tools that run without
	// confirmation. When empty, tools declared Mutating require confirmation.
	SafeTools []string
}

// DefaultEngineConfig returns the default engine settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxConcurrency:  4,
		ConfirmationTTL: 5 * time.Minute,
	}
}

// EngineConfigFromProfile reads engine settings from the profile.
func EngineConfigFromProfile(p *profile.Profile) EngineConfig {
	return EngineConfig{
		MaxConcurrency:  p.Engine.MaxConcurrency,
		ConfirmationTTL: p.Engine.ConfirmationTTL,
		SafeTools:       p.Engine.SafeTools,
	}
}

// Engine executes chain plans.
type Engine struct {
	registry *Registry
	executor *ResilientToolExecutor
	state    session.StateService
	cfg      EngineConfig
	now      func() time.Time
}

// NewEngine creates an engine. state persists pending confirmations per session.
func NewEngine(registry *Registry, executor *ResilientToolExecutor, state session.StateService, cfg EngineConfig) *Engine {
	def := DefaultEngineConfig()
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}
	if cfg.ConfirmationTTL <= 0 {
		cfg.ConfirmationTTL = def.ConfirmationTTL
	}
	return &Engine{
		registry: registry,
		executor: executor,
		state:    state,
		cfg:      cfg,
		now:      time.Now,
	}
}

// RequiresConfirmation returns the tools of plan that are not safe to run unconfirmed.
func (e *Engine) RequiresConfirmation(plan *ChainPlan) []string {
	var tools []string
	for _, s := range plan.Executable() {
		if e.isSafe(s.ToolName) || slices.Contains(tools, s.ToolName) {
			continue
		}
		tools = append(tools, s.ToolName)
	}
	return tools
}

func (e *Engine) isSafe(name string) bool {
	if len(e.cfg.SafeTools) > 0 {
		return slices.Contains(e.cfg.SafeTools, name)
	}
	tool, err := e.registry.Get(name)
	if err != nil {
		return false
	}
	return !tool.Definition().Mutating
}

// Submit moves a plan out of Planned: into Confirming when a step is mutating,
// otherwise straight through execution.
func (e *Engine) Submit(ctx context.Context, key session.Key, plan *ChainPlan) (*Outcome, error) {
	if err := plan.Validate(e.registry); err != nil {
		observability.LoggerFrom(ctx).Warn("rejecting invalid plan", "error", err)
		return &Outcome{State: StateFailed, Reason: ReasonInvalidPlan}, nil
	}

	mutating := e.RequiresConfirmation(plan)
	if len(mutating) == 0 {
		return e.Run(ctx, plan), nil
	}

	now := e.now()
	pending := &PendingConfirmation{
		UserID:    key.UserID,
		SessionID: key.SessionID,
		Plan:      *plan,
		Tools:     mutating,
		CreatedAt: now,
		ExpiresAt: now.Add(e.cfg.ConfirmationTTL),
	}
	if err := e.state.Put(ctx, key, session.KindPendingConfirmation, pending, e.cfg.ConfirmationTTL); err != nil {
		return nil, err
	}
	observability.LoggerFrom(ctx).Info("plan awaiting confirmation",
		"user_id", key.UserID, "session_id", key.SessionID, "tools", mutating)
	return &Outcome{State: StateConfirming, Pending: pending}, nil
}

// Pending returns the session's pending confirmation, or nil.
func (e *Engine) Pending(ctx context.Context, key session.Key) (*PendingConfirmation, error) {
	var pending PendingConfirmation
	ok, err := e.state.Get(ctx, key, session.KindPendingConfirmation, &pending)
	if err != nil || !ok {
		return nil, err
	}
	if !pending.ExpiresAt.IsZero() && !e.now().Before(pending.ExpiresAt) {
		return nil, nil
	}
	return &pending, nil
}

// Resolve applies the user's reply to the pending confirmation. An affirmative
// reply executes the stored plan; a negative one ends in StateFailed with
// ReasonUserCancelled and no executed step.
func (e *Engine) Resolve(ctx context.Context, key session.Key, affirm bool) (*Outcome, error) {
	pending, err := e.Pending(ctx, key)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, ErrPendingNotFound
	}
	if err := e.state.Delete(ctx, key, session.KindPendingConfirmation); err != nil {
		return nil, err
	}

	if !affirm {
		observability.LoggerFrom(ctx).Info("pending plan cancelled by user",
			"user_id", key.UserID, "session_id", key.SessionID)
		return &Outcome{State: StateFailed, Reason: ReasonUserCancelled}, nil
	}
	return e.Run(ctx, &pending.Plan), nil
}

// stepRun is the shared state of one step during Run.
type stepRun struct {
	step   ChainStep
	done   chan struct{}
	result ToolExecutionResult
}

// Run executes a validated plan. Steps start as soon as their dependencies
// succeed, bounded by MaxConcurrency. Steps depending on a failed or skipped
// step are skipped. Once ctx is canceled no new step starts.
func (e *Engine) Run(ctx context.Context, plan *ChainPlan) *Outcome {
	logger := observability.LoggerFrom(ctx)
	if len(plan.Executable()) == 0 {
		return &Outcome{State: StateFailed, Reason: ReasonEmptyPlan}
	}
	if err := plan.Validate(e.registry); err != nil {
		logger.Warn("rejecting invalid plan", "error", err)
		return &Outcome{State: StateFailed, Reason: ReasonInvalidPlan}
	}
	start := time.Now()

	runs := make(map[string]*stepRun, len(plan.Steps))
	for _, s := range plan.Steps {
		runs[s.ID] = &stepRun{step: s, done: make(chan struct{})}
	}

	var (
		mu      sync.Mutex
		outputs = make(map[string]json.RawMessage, len(plan.Steps))
		sem     = semaphore.NewWeighted(int64(e.cfg.MaxConcurrency))
		g       errgroup.Group
	)

	for _, s := range plan.Steps {
		run := runs[s.ID]
		g.Go(func() error {
			defer close(run.done)
			run.result = ToolExecutionResult{StepID: run.step.ID, ToolName: run.step.ToolName}

			if run.step.NeedsMoreInfo {
				run.result.Status = StepNeedsMoreInfo
				run.result.Error = "missing: " + strings.Join(run.step.Missing, ", ")
				return nil
			}

			for _, dep := range run.step.DependsOn {
				<-runs[dep].done
				if !runs[dep].result.Success {
					run.result.Status = StepSkipped
					run.result.Error = "dependency " + dep + " did not succeed"
					return nil
				}
			}

			if err := sem.Acquire(ctx, 1); err != nil {
				run.result.Status = StepSkipped
				run.result.Error = "canceled before start"
				return nil
			}
			defer sem.Release(1)
			if ctx.Err() != nil {
				run.result.Status = StepSkipped
				run.result.Error = "canceled before start"
				return nil
			}

			mu.Lock()
			args, err := ResolveArgs(run.step.Args, outputs)
			mu.Unlock()
			if err == nil {
				err = e.registry.ValidateArgs(run.step.ToolName, args)
			}
			if err != nil {
				run.result.Status = StepFailed
				run.result.Error = err.Error()
				logger.Warn("tool step rejected", "step", run.step.ID, "tool", run.step.ToolName, "error", err)
				return nil
			}

			tool, _ := e.registry.Get(run.step.ToolName)
			exec := e.executor.Execute(ctx, tool, args)
			run.result.Attempts = exec.Attempts
			run.result.DurationMs = exec.TotalLatency.Milliseconds()
			if exec.Error != nil {
				run.result.Status = StepFailed
				run.result.Error = exec.Error.Error()
				return nil
			}

			run.result.Status = StepSucceeded
			run.result.Success = true
			run.result.Result = exec.Result
			mu.Lock()
			outputs[run.step.ID] = exec.Result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	outcome := &Outcome{Results: make([]ToolExecutionResult, 0, len(plan.Steps))}
	succeeded := 0
	for _, s := range plan.Steps {
		r := runs[s.ID].result
		if r.Success {
			succeeded++
		}
		outcome.Results = append(outcome.Results, r)
	}
	switch {
	case succeeded == len(plan.Steps):
		outcome.State = StateCompleted
	case succeeded > 0:
		outcome.State = StatePartial
	default:
		outcome.State = StateFailed
	}

	logger.Info("plan executed",
		"state", outcome.State,
		"steps", len(plan.Steps),
		"succeeded", succeeded,
		"latency_ms", time.Since(start).Milliseconds())
	return outcome
}

// IsUserCancelled reports whether the outcome ended by the user's refusal.
func (o *Outcome) IsUserCancelled() bool {
	return o.State == StateFailed && o.Reason == ReasonUserCancelled
}

// CancelledError converts a cancelled outcome into the typed error.
func (o *Outcome) CancelledError() error {
	if !o.IsUserCancelled() {
		return nil
	}
	return aierrors.UserCancelled("user declined the pending action")
}
