package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nexusrun/coreagent/internal/llm"
	"github.com/nexusrun/coreagent/pkg/models"
)

// Registry is the name→Tool lookup, argument-schema validator, and
// permission gate a session's conversation loop dispatches tool calls
// through. Read-only after construction, per the concurrency model: all
// registration happens during setup, so lookups need no lock.
type Registry struct {
	tools  map[string]Tool
	risks  map[string]RiskLevel
	gate   *PermissionGate
	schema sync.Map // tool id -> compiled *jsonschema.Schema
}

// NewRegistry creates an empty registry backed by gate for permission checks.
func NewRegistry(gate *PermissionGate) *Registry {
	return &Registry{
		tools: make(map[string]Tool),
		risks: make(map[string]RiskLevel),
		gate:  gate,
	}
}

// Register adds t to the registry at the given risk classification.
func (r *Registry) Register(t Tool, risk RiskLevel) {
	r.tools[t.ID()] = t
	r.risks[t.ID()] = risk
}

// Get returns the tool registered under id, if any.
func (r *Registry) Get(id string) (Tool, bool) {
	t, ok := r.tools[id]
	return t, ok
}

// List returns every registered tool id.
func (r *Registry) List() []string {
	out := make([]string, 0, len(r.tools))
	for id := range r.tools {
		out = append(out, id)
	}
	return out
}

// Descriptors returns the provider-agnostic tool definitions for every
// registered tool, for inclusion in a completion request.
func (r *Registry) Descriptors() []llm.ToolDescriptor {
	out := make([]llm.ToolDescriptor, 0, len(r.tools))
	for id, t := range r.tools {
		out = append(out, llm.ToolDescriptor{
			Name:        id,
			Description: t.Description(),
			InputSchema: t.ParametersSchema(),
		})
	}
	return out
}

// Execute validates args against the tool's schema, runs it through the
// permission gate, and — if granted — invokes it. A Denied or timed-out
// confirmation produces a ToolCallResult with IsError set rather than a Go
// error, since it is fed back to the model as a tool-role message, not
// surfaced as an orchestrator failure.
func (r *Registry) Execute(ctx context.Context, call models.ToolCall, execCtx *ExecutionContext) (*models.ToolCallResult, error) {
	t, ok := r.tools[call.Name]
	if !ok {
		return &models.ToolCallResult{Title: "unknown tool", OutputText: fmt.Sprintf("no tool registered as %q", call.Name), IsError: true}, nil
	}

	if err := r.validate(t, call.Input); err != nil {
		return &models.ToolCallResult{Title: "invalid arguments", OutputText: err.Error(), IsError: true}, nil
	}

	decision, err := r.gate.Check(ctx, call, r.risks[call.Name], execCtx.SessionID, execCtx.Provider)
	if err != nil {
		return nil, fmt.Errorf("tools: permission check for %s: %w", call.Name, err)
	}
	switch decision.Outcome {
	case OutcomeDenied:
		return &models.ToolCallResult{Title: "permission denied", OutputText: decision.Reason, IsError: true}, nil
	case OutcomeGranted:
		// fall through
	}

	return t.Execute(ctx, call.Input, execCtx)
}

func (r *Registry) validate(t Tool, args json.RawMessage) error {
	cached, ok := r.schema.Load(t.ID())
	var compiled *jsonschema.Schema
	if ok {
		compiled = cached.(*jsonschema.Schema)
	} else {
		c, err := jsonschema.CompileString(t.ID()+".schema.json", string(t.ParametersSchema()))
		if err != nil {
			return fmt.Errorf("compile schema for %s: %w", t.ID(), err)
		}
		compiled = c
		r.schema.Store(t.ID(), compiled)
	}

	var decoded any
	if len(args) == 0 {
		args = []byte("{}")
	}
	if err := json.Unmarshal(args, &decoded); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	if err := compiled.Validate(decoded); err != nil {
		return fmt.Errorf("arguments for %s: %w", t.ID(), err)
	}
	return nil
}
