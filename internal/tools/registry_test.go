package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nexusrun/coreagent/internal/tools/policy"
	"github.com/nexusrun/coreagent/pkg/models"
)

type echoTool struct{}

func (echoTool) ID() string          { return "echo" }
func (echoTool) Description() string { return "echoes its message argument" }
func (echoTool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"message":{"type":"string"}},"required":["message"]}`)
}
func (echoTool) Execute(ctx context.Context, args json.RawMessage, execCtx *ExecutionContext) (*models.ToolCallResult, error) {
	var in struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}
	return &models.ToolCallResult{Title: "echo", OutputText: in.Message}, nil
}

func newTestRegistry() *Registry {
	resolver := policy.NewResolver()
	resolver.AddGroup(policy.ToolGroup{Name: "read_only", Tools: []string{"read", "glob", "grep", "echo"}})
	gate := NewPermissionGate(GatePolicy{
		Policy:   policy.Policy{Allow: []string{"read_only"}},
		Resolver: resolver,
	})
	r := NewRegistry(gate)
	r.Register(echoTool{}, RiskLow)
	return r
}

func TestRegistryExecuteHappyPath(t *testing.T) {
	r := newTestRegistry()
	result, err := r.Execute(context.Background(), models.ToolCall{Name: "echo", Input: json.RawMessage(`{"message":"hi"}`)}, &ExecutionContext{SessionID: "s1"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.OutputText)
	}
	if result.OutputText != "hi" {
		t.Fatalf("expected echoed message, got %q", result.OutputText)
	}
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := newTestRegistry()
	result, err := r.Execute(context.Background(), models.ToolCall{Name: "nope"}, &ExecutionContext{SessionID: "s1"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error result for unknown tool")
	}
}

func TestRegistryExecuteInvalidArgs(t *testing.T) {
	r := newTestRegistry()
	result, err := r.Execute(context.Background(), models.ToolCall{Name: "echo", Input: json.RawMessage(`{}`)}, &ExecutionContext{SessionID: "s1"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error result for missing required field")
	}
}

func TestRegistryExecuteDeniedByPolicy(t *testing.T) {
	resolver := policy.NewResolver()
	gate := NewPermissionGate(GatePolicy{Policy: policy.Policy{}, Resolver: resolver})
	r := NewRegistry(gate)
	r.Register(echoTool{}, RiskLow)

	result, err := r.Execute(context.Background(), models.ToolCall{Name: "echo", Input: json.RawMessage(`{"message":"hi"}`)}, &ExecutionContext{SessionID: "s1"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected permission-denied error result")
	}
}
