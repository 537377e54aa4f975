package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/cohesivestack/valgo"

	aierrors "github.com/hrygo/agentcore/internal/errors"
)

// ErrToolNotFound is returned for names absent from the registry.
var ErrToolNotFound = errors.New("tool not found")

var (
	toolNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)
	parameterTypes  = []string{TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeObject, TypeArray}
)

// Registry is the set of tools available to plans. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register validates the tool's definition and adds it.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return aierrors.InvalidArgument("tool cannot be nil")
	}
	def := tool.Definition()
	if err := ValidateDefinition(def); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return aierrors.InvalidArgument(fmt.Sprintf("tool %s already registered", def.Name))
	}
	r.tools[def.Name] = tool
	return nil
}

// MustRegister registers tools and panics on an invalid definition.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Get returns the named tool or an error wrapping ErrToolNotFound.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return tool, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Definitions returns every definition sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	r.mu.RUnlock()

	slices.SortFunc(defs, func(a, b Definition) int { return strings.Compare(a.Name, b.Name) })
	return defs
}

// Names returns the registered tool names sorted.
func (r *Registry) Names() []string {
	defs := r.Definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

// Describe renders the definitions for an LLM prompt.
func (r *Registry) Describe() string {
	defs := r.Definitions()
	if len(defs) == 0 {
		return "No tools available"
	}

	var b strings.Builder
	for _, d := range defs {
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
		for _, p := range d.Parameters {
			req := "optional"
			if p.Required {
				req = "required"
			}
			fmt.Fprintf(&b, "    %s (%s, %s)", p.Name, p.Type, req)
			if p.Description != "" {
				fmt.Fprintf(&b, ": %s", p.Description)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// ValidateArgs checks args against the named tool's parameters.
func (r *Registry) ValidateArgs(name string, args map[string]any) error {
	tool, err := r.Get(name)
	if err != nil {
		return aierrors.ToolNotFound(name)
	}
	return ValidateArgs(tool.Definition(), args)
}

// ValidateDefinition checks that a definition is well formed.
func ValidateDefinition(def Definition) error {
	val := valgo.Is(
		valgo.String(def.Name, "name").Not().Blank().MatchingTo(toolNamePattern),
		valgo.String(def.Description, "description").Not().Blank(),
	)
	seen := make(map[string]bool, len(def.Parameters))
	for i, p := range def.Parameters {
		field := fmt.Sprintf("parameters[%d]", i)
		val.Is(
			valgo.String(p.Name, field+".name").Not().Blank(),
			valgo.String(p.Type, field+".type").InSlice(parameterTypes),
			valgo.Bool(seen[p.Name], field+".unique").False(),
		)
		seen[p.Name] = true
	}
	if !val.Valid() {
		return aierrors.Wrap(val.Error(), aierrors.ErrCodeInvalidArgument, "invalid tool definition").
			WithContext("tool", def.Name)
	}
	return nil
}

// ValidateArgs checks required parameters are present and values match declared types.
// Unknown arguments are rejected.
func ValidateArgs(def Definition, args map[string]any) error {
	var problems []string
	for _, p := range def.Parameters {
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Required {
				problems = append(problems, p.Name+" is required")
			}
			continue
		}
		if !matchesType(v, p.Type) {
			problems = append(problems, fmt.Sprintf("%s must be %s", p.Name, p.Type))
		}
	}
	for name := range args {
		if !slices.ContainsFunc(def.Parameters, func(p Parameter) bool { return p.Name == name }) {
			problems = append(problems, name+" is not a parameter")
		}
	}
	if len(problems) == 0 {
		return nil
	}
	slices.Sort(problems)
	return aierrors.InvalidArgument(def.Name + ": " + strings.Join(problems, "; "))
}

// MissingRequired returns required parameters absent from args.
func MissingRequired(def Definition, args map[string]any) []string {
	var missing []string
	for _, name := range def.RequiredParameters() {
		if v, ok := args[name]; !ok || v == nil || v == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

func matchesType(v any, typ string) bool {
	switch typ {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeInteger:
		f, ok := toFloat(v)
		return ok && f == math.Trunc(f)
	case TypeNumber:
		_, ok := toFloat(v)
		return ok
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	case TypeArray:
		_, ok := v.([]any)
		return ok
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
