package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/nexusrun/coreagent/internal/llm"
	"github.com/nexusrun/coreagent/internal/observability"
	"github.com/nexusrun/coreagent/internal/sessions"
	"github.com/nexusrun/coreagent/internal/tools"
	"github.com/nexusrun/coreagent/pkg/models"
)

// DefaultMaxIterations bounds the tool-call loop per turn.
const DefaultMaxIterations = 16

// Config tunes one Loop's behavior. Zero values are replaced with defaults
// by NewLoop.
type Config struct {
	// Workspace is the absolute root file tools resolve paths against.
	Workspace string
	// MaxIterations caps how many generate/execute-tools round-trips one
	// turn may take before returning an IterationLimit error.
	MaxIterations int
	// MaxTokens is the completion request's max_tokens.
	MaxTokens int
	// RequestTimeout bounds a single provider call.
	RequestTimeout time.Duration
}

// DefaultConfig returns a Config with spec-default values filled in.
func DefaultConfig() Config {
	return Config{
		MaxIterations:  DefaultMaxIterations,
		MaxTokens:      4096,
		RequestTimeout: 60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60 * time.Second
	}
	return c
}

// Loop is C9: given a session, it appends an inbound user message, drives
// the model through as many tool-call round-trips as it requests (up to
// Config.MaxIterations), and returns the final assistant message. Only one
// Run per session may be in flight at a time; concurrent callers on the
// same session id queue FIFO behind the session's write lock.
type Loop struct {
	providers *llm.Registry
	registry  *tools.Registry
	store     sessions.Store
	locks     *sessions.SessionLockManager
	cfg       Config
	logger    *observability.Logger
}

// NewLoop builds a Loop. locks serializes concurrent turns on the same
// session; store persists the transcript; providers resolves the session's
// configured provider; registry dispatches and permission-gates tool calls.
// logger may be nil, in which case surfaced errors are simply not logged.
func NewLoop(providers *llm.Registry, registry *tools.Registry, store sessions.Store, locks *sessions.SessionLockManager, cfg Config, logger *observability.Logger) *Loop {
	return &Loop{
		providers: providers,
		registry:  registry,
		store:     store,
		locks:     locks,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// fail logs err at the point it is surfaced to the caller — the layer that
// declines to recover from it — and returns it unchanged, so every return
// site can stay a one-liner: return l.fail(ctx, sessionID, err).
func (l *Loop) fail(ctx context.Context, sessionID string, err error) error {
	if l.logger != nil {
		l.logger.Error(ctx, "orchestrator turn failed", "session_id", sessionID, "error", err)
	}
	return err
}

// TurnEvent is one unit of a streamed turn, delivered in order: a run of
// text deltas as the model streams them, then (if the model requested
// tools) one event per tool call executed, then a final Done event
// carrying the completed assistant message or a terminal error.
type TurnEvent struct {
	TextDelta  string
	ToolCall   *models.ToolCall
	ToolResult *models.ToolResult
	Assistant  *models.Message
	Done       bool
	Err        error
}

// Run drives sessionID's turn to completion and returns the final
// assistant message (the one with no further tool calls, or the partial
// result if the iteration bound or an error cuts the turn short).
func (l *Loop) Run(ctx context.Context, sessionID, userMessage string) (*models.Message, error) {
	var final *models.Message
	err := l.run(ctx, sessionID, userMessage, func(ev TurnEvent) {
		if ev.Assistant != nil {
			final = ev.Assistant
		}
	})
	return final, err
}

// RunStream drives sessionID's turn to completion, emitting TurnEvents on
// the returned channel as they occur. The channel is closed after the
// final Done event. Tool execution is deferred until the model's stream
// for that iteration completes, per spec's streaming variant.
func (l *Loop) RunStream(ctx context.Context, sessionID, userMessage string) <-chan TurnEvent {
	out := make(chan TurnEvent, 16)
	go func() {
		defer close(out)
		err := l.run(ctx, sessionID, userMessage, func(ev TurnEvent) {
			out <- ev
		})
		if err != nil {
			out <- TurnEvent{Done: true, Err: err}
		}
	}()
	return out
}

// run is the shared engine behind Run and RunStream. emit is called for
// every text delta, tool call, tool result, and the final assistant
// message; it must not block for long since it runs on the critical path
// while the session's write lock is held.
func (l *Loop) run(ctx context.Context, sessionID, userMessage string, emit func(TurnEvent)) error {
	release, err := l.locks.Acquire(ctx, sessionID, "orchestrator", 0)
	if err != nil {
		return l.fail(ctx, sessionID, fmt.Errorf("orchestrator: acquire session lock: %w", err))
	}
	defer release()

	session, err := l.store.Get(ctx, sessionID)
	if err != nil {
		return l.fail(ctx, sessionID, &Error{Code: CodeSessionNotFound, Message: sessionID, Cause: err})
	}

	provider, err := l.providers.Get(session.Provider)
	if err != nil {
		return l.fail(ctx, sessionID, &Error{Code: CodeProviderNotConfigured, Message: session.Provider, Cause: err})
	}

	if err := l.store.AppendMessage(ctx, sessionID, &models.Message{
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   userMessage,
	}); err != nil {
		return l.fail(ctx, sessionID, fmt.Errorf("orchestrator: append user message: %w", err))
	}

	execCtx := &tools.ExecutionContext{
		WorkDir:   l.cfg.Workspace,
		SessionID: sessionID,
		Provider:  session.Provider,
		Aborted:   func() bool { return ctx.Err() != nil },
	}

	for iteration := 0; ; iteration++ {
		if iteration >= l.cfg.MaxIterations {
			return l.fail(ctx, sessionID, &Error{Code: CodeIterationLimit, Message: fmt.Sprintf("exceeded %d tool-call iterations", l.cfg.MaxIterations)})
		}

		history, err := l.store.GetHistory(ctx, sessionID, 0)
		if err != nil {
			return l.fail(ctx, sessionID, fmt.Errorf("orchestrator: load history: %w", err))
		}

		req := &llm.CompletionRequest{
			Model:     session.Model,
			System:    session.System,
			Messages:  toCompletionMessages(history),
			Tools:     l.registry.Descriptors(),
			MaxTokens: l.cfg.MaxTokens,
		}

		reqCtx, cancel := context.WithTimeout(ctx, l.cfg.RequestTimeout)
		chunks, err := provider.Complete(reqCtx, req)
		if err != nil {
			cancel()
			if ctx.Err() != nil {
				return l.fail(ctx, sessionID, &Error{Code: CodeCancelled, Message: "cancelled before completion started", Cause: ctx.Err()})
			}
			return l.fail(ctx, sessionID, &Error{Code: CodeNetwork, Message: "completion request failed", Cause: err})
		}

		assistant, err := l.coalesce(sessionID, chunks, emit)
		cancel()
		if err != nil {
			return l.fail(ctx, sessionID, err)
		}

		if err := l.store.AppendMessage(ctx, sessionID, assistant); err != nil {
			return l.fail(ctx, sessionID, fmt.Errorf("orchestrator: append assistant message: %w", err))
		}
		emit(TurnEvent{Assistant: assistant})

		if len(assistant.ToolCalls) == 0 {
			emit(TurnEvent{Done: true, Assistant: assistant})
			return nil
		}

		toolMsg := &models.Message{SessionID: sessionID, Role: models.RoleTool}
		for _, call := range assistant.ToolCalls {
			if ctx.Err() != nil {
				return l.fail(ctx, sessionID, &Error{Code: CodeCancelled, Message: "cancelled mid tool execution", Cause: ctx.Err()})
			}

			result, err := l.registry.Execute(ctx, call, execCtx)
			if err != nil {
				return l.fail(ctx, sessionID, &Error{Code: CodeToolExecution, Message: call.Name, Cause: err})
			}

			tr := models.ToolResult{ToolCallID: call.ID, Content: result.OutputText, IsError: result.IsError}
			toolMsg.ToolResults = append(toolMsg.ToolResults, tr)
			emit(TurnEvent{ToolCall: &call, ToolResult: &tr})
		}

		if err := l.store.AppendMessage(ctx, sessionID, toolMsg); err != nil {
			return l.fail(ctx, sessionID, fmt.Errorf("orchestrator: append tool result message: %w", err))
		}
		// loop again so the model can consume the tool results
	}
}

// coalesce drains chunks into one assistant message, forwarding text
// deltas to emit as they arrive. A chunk carrying a non-nil Error ends the
// stream early and is returned as the failure.
func (l *Loop) coalesce(sessionID string, chunks <-chan llm.ResponseChunk, emit func(TurnEvent)) (*models.Message, error) {
	msg := &models.Message{SessionID: sessionID, Role: models.RoleAssistant}
	var text, thinking string

	for chunk := range chunks {
		if chunk.Error != nil {
			return nil, &Error{Code: CodeNetwork, Message: "stream error", Cause: chunk.Error}
		}
		if chunk.Text != "" {
			text += chunk.Text
			emit(TurnEvent{TextDelta: chunk.Text})
		}
		if chunk.Thinking != "" {
			thinking += chunk.Thinking
		}
		if chunk.ToolCall != nil {
			msg.ToolCalls = append(msg.ToolCalls, *chunk.ToolCall)
		}
	}

	msg.Content = text
	if thinking != "" {
		if msg.Metadata == nil {
			msg.Metadata = map[string]any{}
		}
		msg.Metadata["thinking"] = thinking
	}
	return msg, nil
}

// toCompletionMessages translates a persisted transcript into the
// provider-agnostic request shape, in order.
func toCompletionMessages(history []*models.Message) []llm.CompletionMessage {
	out := make([]llm.CompletionMessage, 0, len(history))
	for _, m := range history {
		out = append(out, llm.CompletionMessage{
			Role:        string(m.Role),
			Content:     m.Content,
			ToolCalls:   m.ToolCalls,
			ToolResults: m.ToolResults,
		})
	}
	return out
}
