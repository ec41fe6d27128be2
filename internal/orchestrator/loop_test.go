package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nexusrun/coreagent/internal/llm"
	"github.com/nexusrun/coreagent/internal/observability"
	"github.com/nexusrun/coreagent/internal/sessions"
	"github.com/nexusrun/coreagent/internal/tools"
	"github.com/nexusrun/coreagent/internal/tools/policy"
	"github.com/nexusrun/coreagent/pkg/models"
)

// scriptedProvider replays one response per call to Complete, in order.
type scriptedProvider struct {
	name      string
	responses [][]llm.ResponseChunk
	calls     int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Complete(ctx context.Context, req *llm.CompletionRequest) (<-chan llm.ResponseChunk, error) {
	idx := p.calls
	p.calls++
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	out := make(chan llm.ResponseChunk, len(p.responses[idx]))
	for _, c := range p.responses[idx] {
		out <- c
	}
	close(out)
	return out, nil
}

type echoTool struct{}

func (echoTool) ID() string          { return "echo" }
func (echoTool) Description() string { return "echoes its message argument" }
func (echoTool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"message":{"type":"string"}},"required":["message"]}`)
}
func (echoTool) Execute(ctx context.Context, args json.RawMessage, execCtx *tools.ExecutionContext) (*models.ToolCallResult, error) {
	var in struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}
	return &models.ToolCallResult{Title: "echo", OutputText: "echo: " + in.Message}, nil
}

func newTestLoop(t *testing.T, provider llm.Provider, cfg Config) (*Loop, *sessions.MemoryStore, *models.Session) {
	t.Helper()

	providers := llm.NewRegistry(nil)
	providers.Register(provider)

	resolver := policy.NewResolver()
	resolver.AddGroup(policy.ToolGroup{Name: "read_only", Tools: []string{"echo"}})
	gate := tools.NewPermissionGate(tools.GatePolicy{
		Policy:   policy.Policy{Allow: []string{"read_only"}},
		Resolver: resolver,
	})
	registry := tools.NewRegistry(gate)
	registry.Register(echoTool{}, tools.RiskLow)

	store := sessions.NewMemoryStore()
	locks := sessions.NewSessionLockManager(time.Second)

	session := &models.Session{Provider: provider.Name(), Model: "test-model"}
	if err := store.Create(context.Background(), session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	loop := NewLoop(providers, registry, store, locks, cfg, nil)
	return loop, store, session
}

func TestRunReturnsAssistantMessageWithNoToolCalls(t *testing.T) {
	provider := &scriptedProvider{
		name: "test",
		responses: [][]llm.ResponseChunk{
			{{Text: "hello "}, {Text: "there"}},
		},
	}
	loop, store, session := newTestLoop(t, provider, DefaultConfig())

	final, err := loop.Run(context.Background(), session.ID, "hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if final.Content != "hello there" {
		t.Fatalf("unexpected content: %q", final.Content)
	}

	history, err := store.GetHistory(context.Background(), session.ID, 0)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected user+assistant messages, got %d", len(history))
	}
	if history[0].Role != models.RoleUser || history[1].Role != models.RoleAssistant {
		t.Fatalf("unexpected roles: %v, %v", history[0].Role, history[1].Role)
	}
}

func TestRunExecutesToolCallThenLoops(t *testing.T) {
	provider := &scriptedProvider{
		name: "test",
		responses: [][]llm.ResponseChunk{
			{{ToolCall: &models.ToolCall{ID: "call1", Name: "echo", Input: json.RawMessage(`{"message":"hi"}`)}}},
			{{Text: "done"}},
		},
	}
	loop, store, session := newTestLoop(t, provider, DefaultConfig())

	final, err := loop.Run(context.Background(), session.ID, "run the tool")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if final.Content != "done" {
		t.Fatalf("unexpected final content: %q", final.Content)
	}
	if provider.calls != 2 {
		t.Fatalf("expected 2 provider calls, got %d", provider.calls)
	}

	history, err := store.GetHistory(context.Background(), session.ID, 0)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	// user, assistant(tool_call), tool(result), assistant(done)
	if len(history) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(history))
	}
	if history[2].Role != models.RoleTool || history[2].ToolResults[0].Content != "echo: hi" {
		t.Fatalf("unexpected tool message: %+v", history[2])
	}
}

func TestRunStopsAtIterationLimit(t *testing.T) {
	// The provider always requests another tool call, so the loop must
	// bail out via the iteration bound rather than spin forever.
	call := llm.ResponseChunk{ToolCall: &models.ToolCall{ID: "call1", Name: "echo", Input: json.RawMessage(`{"message":"again"}`)}}
	responses := make([][]llm.ResponseChunk, 0, 20)
	for i := 0; i < 20; i++ {
		responses = append(responses, []llm.ResponseChunk{call})
	}
	provider := &scriptedProvider{name: "test", responses: responses}

	cfg := DefaultConfig()
	cfg.MaxIterations = 3
	loop, _, session := newTestLoop(t, provider, cfg)

	_, err := loop.Run(context.Background(), session.ID, "loop forever")
	if err == nil {
		t.Fatalf("expected iteration-limit error")
	}
	var orchErr *Error
	if !asOrchestratorError(err, &orchErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if orchErr.Code != CodeIterationLimit {
		t.Fatalf("expected ITERATION_LIMIT, got %s", orchErr.Code)
	}
}

func TestRunDeniesToolOutsidePolicy(t *testing.T) {
	provider := &scriptedProvider{
		name: "test",
		responses: [][]llm.ResponseChunk{
			{{ToolCall: &models.ToolCall{ID: "call1", Name: "write", Input: json.RawMessage(`{}`)}}},
			{{Text: "handled the denial"}},
		},
	}
	loop, store, session := newTestLoop(t, provider, DefaultConfig())

	final, err := loop.Run(context.Background(), session.ID, "try to write")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if final.Content != "handled the denial" {
		t.Fatalf("unexpected content: %q", final.Content)
	}

	history, err := store.GetHistory(context.Background(), session.ID, 0)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	toolMsg := history[2]
	if !toolMsg.ToolResults[0].IsError {
		t.Fatalf("expected denied tool call to surface as a tool error, got: %+v", toolMsg.ToolResults[0])
	}
}

func TestRunStreamYieldsTextDeltas(t *testing.T) {
	provider := &scriptedProvider{
		name: "test",
		responses: [][]llm.ResponseChunk{
			{{Text: "a"}, {Text: "b"}, {Text: "c"}},
		},
	}
	loop, _, session := newTestLoop(t, provider, DefaultConfig())

	var deltas string
	done := false
	for ev := range loop.RunStream(context.Background(), session.ID, "stream please") {
		deltas += ev.TextDelta
		if ev.Done {
			done = true
		}
	}
	if deltas != "abc" {
		t.Fatalf("expected concatenated deltas 'abc', got %q", deltas)
	}
	if !done {
		t.Fatalf("expected a Done event")
	}
}

func TestRunLogsSurfacedError(t *testing.T) {
	provider := &scriptedProvider{name: "test", responses: [][]llm.ResponseChunk{{{Text: "unused"}}}}
	loop, _, _ := newTestLoop(t, provider, DefaultConfig())

	var buf bytes.Buffer
	loop.logger = observability.NewLogger(observability.LogConfig{Output: &buf, Format: "json"})

	_, err := loop.Run(context.Background(), "does-not-exist", "hello")
	if err == nil {
		t.Fatalf("expected error for unknown session")
	}
	logged := buf.String()
	if !strings.Contains(logged, "orchestrator turn failed") {
		t.Fatalf("expected surfaced error to be logged, got: %s", logged)
	}
	if !strings.Contains(logged, "SESSION_NOT_FOUND") {
		t.Fatalf("expected logged error to mention the orchestrator code, got: %s", logged)
	}
}

func asOrchestratorError(err error, target **Error) bool {
	if e, ok := err.(*Error); ok {
		*target = e
		return true
	}
	return false
}
