// Package models defines the shared data types passed between providers,
// tools, the session store, and the orchestrator.
package models

import (
	"encoding/json"
	"time"
)

// Role indicates the author of a message in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ContentPart is one piece of a message's content. A message's content is
// either a plain string or an ordered list of parts; Text is set for text
// parts, ToolCall/ToolResult are set for the corresponding part kinds.
type ContentPart struct {
	Type       string      `json:"type"` // "text", "tool_call", "tool_result"
	Text       string      `json:"text,omitempty"`
	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// Message is one turn in a session's transcript. Content may be empty when
// the message is purely tool calls (assistant turn) or purely tool results
// (tool turn); ToolCalls and ToolResults carry those separately so callers
// that only care about text can ignore them.
type Message struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	Role        Role           `json:"role"`
	Content     string         `json:"content,omitempty"`
	Parts       []ContentPart  `json:"parts,omitempty"`
	ToolCalls   []ToolCall     `json:"tool_calls,omitempty"`
	ToolResults []ToolResult   `json:"tool_results,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ToolCall represents a provider's request to invoke a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult represents the outcome of executing a ToolCall, linked back to
// it by ToolCallID. A tool-role Message carries one or more of these, one
// per ToolCall the preceding assistant message issued.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Session is a persistent conversation: an ordered transcript of Messages
// plus the metadata needed to resume it against a provider.
type Session struct {
	ID        string         `json:"id"`
	Key       string         `json:"key,omitempty"` // caller-chosen idempotency key for GetOrCreate
	Provider  string         `json:"provider,omitempty"`
	Model     string         `json:"model,omitempty"`
	System    string         `json:"system,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Usage reports token accounting for a single completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// NewUsage builds a Usage with TotalTokens derived from the two counts.
func NewUsage(inputTokens, outputTokens int) *Usage {
	return &Usage{InputTokens: inputTokens, OutputTokens: outputTokens, TotalTokens: inputTokens + outputTokens}
}
