package agent

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"

	aierrors "github.com/hrygo/agentcore/internal/errors"
	"github.com/hrygo/agentcore/internal/observability"
	"github.com/hrygo/agentcore/internal/profile"
	"github.com/hrygo/agentcore/plugin/ai"
	"github.com/hrygo/agentcore/plugin/ai/agent/tools"
	"github.com/hrygo/agentcore/plugin/ai/session"
)

// DefaultMaxPlanSteps bounds plans when no limit is configured.
const DefaultMaxPlanSteps = 8

var stepIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// PlannerConfig tunes the planner.
type PlannerConfig struct {
	Model    string
	MaxSteps int
}

// PlannerConfigFromProfile maps the profile sections used by the planner.
func PlannerConfigFromProfile(p *profile.Profile) PlannerConfig {
	return PlannerConfig{
		Model:    p.Classifier.Model,
		MaxSteps: p.Engine.MaxPlanSteps,
	}
}

// PlanRequest is the input of one planning call.
type PlanRequest struct {
	Query string
	// RequiredTools are the classifier's hints.
	RequiredTools []string
	// MemoryContext is the serialized memory context, possibly empty.
	MemoryContext string
	Tail          []session.Message
}

// llmStep and llmPlan are the response shape requested from the model.
type llmStep struct {
	ID        string         `json:"id"`
	Tool      string         `json:"tool"`
	ToolName  string         `json:"tool_name"`
	Args      map[string]any `json:"args"`
	DependsOn []string       `json:"depends_on"`
}

type llmPlan struct {
	Steps         []llmStep `json:"steps"`
	Clarification string    `json:"clarification"`
}

// Planner turns a request into a ChainPlan the engine can run.
type Planner struct {
	llm      ai.LLMService
	registry *tools.Registry
	prompts  *Prompts
	cfg      PlannerConfig
	now      func() time.Time
}

// NewPlanner creates a planner. prompts may be nil to use the defaults.
func NewPlanner(llm ai.LLMService, registry *tools.Registry, prompts *Prompts, cfg PlannerConfig) *Planner {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxPlanSteps
	}
	return &Planner{
		llm:      llm,
		registry: registry,
		prompts:  prompts,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Plan asks the model for a plan and normalizes it. The returned plan is never
// nil: unknown tools and cycles are stripped, steps with unresolvable
// parameters are marked NeedsMoreInfo, and when nothing is executable the plan
// carries a clarification question. The error reports an LLM failure that
// degraded the plan to an empty one.
func (p *Planner) Plan(ctx context.Context, req PlanRequest) (*tools.ChainPlan, error) {
	logger := observability.LoggerFrom(ctx)
	if p.llm == nil {
		return p.clarify(&tools.ChainPlan{}, ""), aierrors.LLMProviderError("no language model configured", nil)
	}

	content, err := p.chat(ctx, p.buildMessages(req))
	if err != nil {
		logger.Warn("planning call failed, returning empty plan",
			"error", err, "transient", aierrors.IsRetryableLLM(err))
		return p.clarify(&tools.ChainPlan{}, ""), err
	}

	raw, ok := parsePlan(content)
	if !ok {
		logger.Warn("failed to parse plan", "error", aierrors.ResponseParseError("plan", nil),
			"content", ai.Truncate(content, 200))
		return p.clarify(&tools.ChainPlan{}, ""), nil
	}

	plan := p.normalize(ctx, raw)
	logger.Info("plan built",
		"steps", len(plan.Steps),
		"executable", len(plan.Executable()),
		"tools", plan.ToolNames(),
		"needs_more_info", plan.NeedsMoreInfo,
	)
	return plan, nil
}

func (p *Planner) chat(ctx context.Context, messages []ai.Message) (string, error) {
	opts := []ai.ChatOption{
		ai.WithOperation("plan"),
		ai.WithJSONMode(),
		ai.WithTemperature(0.1),
		ai.WithMaxTokens(1024),
	}
	if p.cfg.Model != "" {
		opts = append(opts, ai.WithModel(p.cfg.Model))
	}
	// Transient failures are already retried by the LLM service.
	return p.llm.Chat(ctx, messages, opts...)
}

func (p *Planner) buildMessages(req PlanRequest) []ai.Message {
	var user strings.Builder
	user.WriteString(section("What I remember about the user", req.MemoryContext))
	if len(req.Tail) > 0 {
		var tail strings.Builder
		for _, m := range req.Tail {
			fmt.Fprintf(&tail, "%s: %s\n", m.Role, ai.Truncate(m.Content, 300))
		}
		user.WriteString(section("Recent conversation", tail.String()))
	}
	if len(req.RequiredTools) > 0 {
		user.WriteString(section("Likely tools", strings.Join(req.RequiredTools, ", ")))
	}
	fmt.Fprintf(&user, "Request: %s", req.Query)

	return []ai.Message{
		ai.SystemPrompt(p.prompts.planningPrompt(p.registry.Describe(), p.now())),
		ai.UserMessage(user.String()),
	}
}

// parsePlan accepts the requested object or a bare array of steps.
func parsePlan(content string) (*llmPlan, bool) {
	var plan llmPlan
	if _, err := ai.ParseJSON(content, &plan); err == nil {
		return &plan, true
	}
	var steps []llmStep
	if _, err := ai.ParseJSON(content, &steps); err == nil {
		return &llmPlan{Steps: steps}, true
	}
	return nil, false
}

// normalize enforces the plan invariants on the model output.
func (p *Planner) normalize(ctx context.Context, raw *llmPlan) *tools.ChainPlan {
	logger := observability.LoggerFrom(ctx)

	steps := raw.Steps
	if len(steps) > p.cfg.MaxSteps {
		logger.Warn("plan exceeds step limit, truncating", "steps", len(steps), "max_steps", p.cfg.MaxSteps)
		steps = steps[:p.cfg.MaxSteps]
	}

	plan := &tools.ChainPlan{}
	removed := map[string]bool{}
	seen := map[string]bool{}
	for _, s := range steps {
		id := strings.TrimSpace(s.ID)
		if id == "" || seen[id] || !stepIDPattern.MatchString(id) {
			id = "step-" + shortuuid.New()
		}
		seen[id] = true

		name := strings.TrimSpace(s.Tool)
		if name == "" {
			name = strings.TrimSpace(s.ToolName)
		}
		if !p.registry.Has(name) {
			logger.Warn("stripping plan step", "step", id, "error", aierrors.ToolNotFound(name))
			removed[strings.TrimSpace(s.ID)] = true
			continue
		}

		args := s.Args
		if args == nil {
			args = map[string]any{}
		}
		plan.Steps = append(plan.Steps, tools.ChainStep{
			ID:        id,
			ToolName:  name,
			Args:      args,
			DependsOn: s.DependsOn,
		})
	}

	p.linkDependencies(plan, removed)
	for {
		cycle := plan.Cycle()
		if cycle == nil {
			break
		}
		logger.Warn("stripping dependency cycle", "steps", cycle)
		plan.Steps = slices.DeleteFunc(plan.Steps, func(s tools.ChainStep) bool {
			if slices.Contains(cycle, s.ID) {
				removed[s.ID] = true
				return true
			}
			return false
		})
		p.linkDependencies(plan, removed)
	}

	for i := range plan.Steps {
		s := &plan.Steps[i]
		tool, _ := p.registry.Get(s.ToolName)
		for _, name := range tools.MissingRequired(tool.Definition(), s.Args) {
			addMissing(s, name)
		}
		if len(s.Missing) > 0 {
			s.NeedsMoreInfo = true
		}
	}
	blockDependents(plan)

	plan.MarkParallel()
	return p.clarify(plan, raw.Clarification)
}

// linkDependencies makes DependsOn the set of existing steps a step depends on
// or binds to. Bindings to steps that do not exist are removed from the args
// and reported as missing parameters.
func (p *Planner) linkDependencies(plan *tools.ChainPlan, removed map[string]bool) {
	ids := make(map[string]bool, len(plan.Steps))
	for _, s := range plan.Steps {
		ids[s.ID] = true
	}

	for i := range plan.Steps {
		s := &plan.Steps[i]
		var deps []string
		for _, dep := range s.DependsOn {
			if dep == s.ID || !ids[dep] || slices.Contains(deps, dep) {
				if removed[dep] {
					addMissing(s, removedStepNote+dep)
					s.NeedsMoreInfo = true
				}
				continue
			}
			deps = append(deps, dep)
		}

		for name, v := range s.Args {
			refs := tools.References(map[string]any{name: v})
			for _, ref := range refs {
				if ref == s.ID || !ids[ref] {
					delete(s.Args, name)
					addMissing(s, name)
					s.NeedsMoreInfo = true
					break
				}
				if !slices.Contains(deps, ref) {
					deps = append(deps, ref)
				}
			}
		}
		s.DependsOn = deps
	}
}

// Missing holds parameter names plus notes on why a dependency blocks a step.
const (
	removedStepNote = "depends on removed step "
	blockedStepNote = "needs "
)

func addMissing(s *tools.ChainStep, name string) {
	if !slices.Contains(s.Missing, name) {
		s.Missing = append(s.Missing, name)
		slices.Sort(s.Missing)
	}
}

func isDependencyNote(m string) bool {
	return strings.HasPrefix(m, removedStepNote) || strings.HasPrefix(m, blockedStepNote)
}

// blockDependents marks every step that transitively depends on a step needing
// more information, so nothing runs on a result that cannot be produced.
func blockDependents(plan *tools.ChainPlan) {
	for changed := true; changed; {
		changed = false
		for i := range plan.Steps {
			s := &plan.Steps[i]
			for _, dep := range s.DependsOn {
				d, ok := plan.Step(dep)
				if !ok || !d.NeedsMoreInfo {
					continue
				}
				addMissing(s, blockedStepNote+dep)
				if !s.NeedsMoreInfo {
					s.NeedsMoreInfo = true
					changed = true
				}
			}
		}
	}
}

// clarify marks a plan with no executable step and sets the question to ask.
func (p *Planner) clarify(plan *tools.ChainPlan, question string) *tools.ChainPlan {
	if len(plan.Executable()) > 0 {
		return plan
	}
	plan.NeedsMoreInfo = true
	plan.Clarification = strings.TrimSpace(question)
	if plan.Clarification != "" {
		return plan
	}

	var asks []string
	for _, s := range plan.Steps {
		params := slices.DeleteFunc(slices.Clone(s.Missing), isDependencyNote)
		if len(params) > 0 {
			asks = append(asks, fmt.Sprintf("%s for %s", strings.Join(params, " and "), s.ToolName))
		}
	}
	if len(asks) > 0 {
		plan.Clarification = "I need a bit more information: " + strings.Join(asks, "; ") + "."
	} else {
		plan.Clarification = "I couldn't work out which actions to take. Could you rephrase what you need?"
	}
	return plan
}
