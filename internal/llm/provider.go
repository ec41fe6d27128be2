// Package llm implements C4 (the provider registry) and C10 (the model
// catalog and fallback resolution): the uniform interface every vendor
// adapter in internal/llm/providers implements, and the machinery for
// looking one up by "provider/model" string.
package llm

import (
	"context"

	"github.com/nexusrun/coreagent/pkg/models"
)

// CompletionMessage is one turn of a completion request, in the provider-
// agnostic shape every adapter translates to and from its own wire format.
type CompletionMessage struct {
	Role        string
	Content     string
	ToolCalls   []models.ToolCall
	ToolResults []models.ToolResult
}

// CompletionRequest describes one call to a provider.
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []CompletionMessage
	Tools     []ToolDescriptor
	MaxTokens int

	EnableThinking       bool
	ThinkingBudgetTokens int
}

// ToolDescriptor is the provider-agnostic shape of a tool definition passed
// in a completion request.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema []byte // JSON schema
}

// ResponseChunk is one unit of a streamed completion. Exactly one of its
// fields (other than the thinking booleans) is meaningfully set per chunk.
type ResponseChunk struct {
	Text          string
	ThinkingStart bool
	Thinking      string
	ThinkingEnd   bool
	ToolCall      *models.ToolCall
	Usage         *models.Usage
	Error         error
}

// Provider is the uniform interface every vendor adapter implements.
type Provider interface {
	// Name identifies the provider, e.g. "anthropic", "openai".
	Name() string

	// Complete streams a completion. The returned channel is closed when
	// the response finishes or a ResponseChunk carrying a non-nil Error
	// is the last value sent.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan ResponseChunk, error)
}
