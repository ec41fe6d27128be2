// Package tools implements C6 (the tool registry and permission gate) and
// hosts the built-in tools of C7 in its files subpackage.
package tools

import (
	"context"
	"encoding/json"

	"github.com/nexusrun/coreagent/pkg/models"
)

// ExecutionContext is what the registry hands a Tool's Execute: the
// absolute working directory, the session this call belongs to (for
// permission scoping), and an abort signal the tool must poll at coarse
// granularity during long operations.
type ExecutionContext struct {
	WorkDir   string
	SessionID string
	// Provider is the active model provider (e.g. "anthropic", "openai"),
	// consulted for per-provider policy overrides.
	Provider string
	Aborted  func() bool
}

// IsAborted reports whether the caller has requested cancellation; tools
// doing multi-step work should check this periodically.
func (c *ExecutionContext) IsAborted() bool {
	return c != nil && c.Aborted != nil && c.Aborted()
}

// Tool is one invocable capability exposed to a model.
type Tool interface {
	ID() string
	Description() string
	// ParametersSchema returns a JSON Schema (object with typed properties
	// and a required list) describing Execute's args.
	ParametersSchema() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage, execCtx *ExecutionContext) (*models.ToolCallResult, error)
}
