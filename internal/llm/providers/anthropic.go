package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/nexusrun/coreagent/internal/authengine"
	"github.com/nexusrun/coreagent/internal/llm"
	"github.com/nexusrun/coreagent/internal/observability"
	"github.com/nexusrun/coreagent/internal/ratelimit"
	"github.com/nexusrun/coreagent/pkg/models"
)

// maxEmptyStreamEvents bounds consecutive SSE events that produce no
// chunk before the stream is treated as malformed and aborted.
const maxEmptyStreamEvents = 300

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicProvider implements llm.Provider over Anthropic's native
// Messages API, using the vendor SDK's own SSE stream decoder.
type AnthropicProvider struct {
	base
	client anthropic.Client
}

// NewAnthropicProvider creates an Anthropic adapter. Credentials are
// resolved per-call from auth so a refreshed OAuth token is always used.
// metrics and tracer are both optional; either may be nil to disable that
// instrument.
func NewAnthropicProvider(auth *authengine.Manager, limiter *ratelimit.Limiter, baseURL string, metrics *observability.Metrics, tracer *observability.Tracer) *AnthropicProvider {
	opts := []option.RequestOption{}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{
		base:   newBase("anthropic", auth, limiter, metrics, tracer),
		client: anthropic.NewClient(opts...),
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Complete(ctx context.Context, req *llm.CompletionRequest) (<-chan llm.ResponseChunk, error) {
	model := req.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	return p.completeWithObservability(ctx, model, func(ctx context.Context, attempt int) (<-chan llm.ResponseChunk, error) {
		return p.complete(ctx, req)
	})
}

func (p *AnthropicProvider) complete(ctx context.Context, req *llm.CompletionRequest) (<-chan llm.ResponseChunk, error) {
	client := p.client
	if cred, err := p.credentialedClient(ctx); err == nil {
		client = cred
	}

	messages, err := convertMessagesAnthropic(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("anthropic: convert messages: %w", err)
	}

	model := req.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertToolsAnthropic(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("anthropic: convert tools: %w", err)
		}
		params.Tools = tools
	}
	if req.EnableThinking {
		budget := int64(req.ThinkingBudgetTokens)
		if budget < 1024 {
			budget = 10000
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}

	stream := client.Messages.NewStreaming(ctx, params)

	chunks := make(chan llm.ResponseChunk)
	go processAnthropicStream(stream, chunks)
	return chunks, nil
}

// credentialedClient builds a client authorized with the current stored
// credential, when one is registered; callers fall back to the
// environment-configured default client otherwise.
func (p *AnthropicProvider) credentialedClient(ctx context.Context) (anthropic.Client, error) {
	if p.auth == nil {
		return anthropic.Client{}, errors.New("no auth manager configured")
	}
	cred, err := p.auth.Credentials(ctx, "anthropic")
	if err != nil {
		return anthropic.Client{}, err
	}
	switch cred.Type {
	case models.CredentialAPIKey:
		return anthropic.NewClient(option.WithAPIKey(cred.APIKey)), nil
	case models.CredentialOAuth:
		return anthropic.NewClient(option.WithAuthToken(cred.AccessToken)), nil
	default:
		return anthropic.Client{}, fmt.Errorf("anthropic: unsupported credential type %s", cred.Type)
	}
}

func processAnthropicStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- llm.ResponseChunk) {
	defer close(chunks)

	var currentToolCall *models.ToolCall
	var currentToolInput strings.Builder
	inThinking := false
	emptyEvents := 0

	var inputTokens, outputTokens int

	for stream.Next() {
		event := stream.Current()
		processed := false

		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			if ms.Message.Usage.InputTokens > 0 {
				inputTokens = int(ms.Message.Usage.InputTokens)
			}
			processed = true

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			switch block.Type {
			case "thinking":
				inThinking = true
				chunks <- llm.ResponseChunk{ThinkingStart: true}
				processed = true
			case "tool_use":
				toolUse := block.AsToolUse()
				currentToolCall = &models.ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				currentToolInput.Reset()
				processed = true
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					chunks <- llm.ResponseChunk{Text: delta.Text}
					processed = true
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					chunks <- llm.ResponseChunk{Thinking: delta.Thinking}
					processed = true
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					currentToolInput.WriteString(delta.PartialJSON)
					processed = true
				}
			}

		case "content_block_stop":
			if inThinking {
				chunks <- llm.ResponseChunk{ThinkingEnd: true}
				inThinking = false
				processed = true
			} else if currentToolCall != nil {
				currentToolCall.Input = json.RawMessage(currentToolInput.String())
				chunks <- llm.ResponseChunk{ToolCall: currentToolCall}
				currentToolCall = nil
				processed = true
			}

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = int(md.Usage.OutputTokens)
			}
			processed = true

		case "message_stop":
			chunks <- llm.ResponseChunk{Usage: models.NewUsage(inputTokens, outputTokens)}
			return

		case "error":
			chunks <- llm.ResponseChunk{Error: classifyStatus("anthropic", 0, "stream error", 0)}
			return
		}

		if processed {
			emptyEvents = 0
		} else {
			emptyEvents++
			if emptyEvents >= maxEmptyStreamEvents {
				chunks <- llm.ResponseChunk{Error: fmt.Errorf("anthropic: stream appears malformed after %d empty events", emptyEvents)}
				return
			}
		}
	}

	if err := stream.Err(); err != nil {
		chunks <- llm.ResponseChunk{Error: wrapAnthropicError(err)}
	}
}

func wrapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return classifyStatus("anthropic", apiErr.StatusCode, apiErr.RawJSON(), parseRetryAfter(apiErr.Response.Header))
	}
	return err
}

func convertMessagesAnthropic(messages []llm.CompletionMessage) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}
		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, tr := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
		}
		for _, tc := range msg.ToolCalls {
			var input map[string]any
			if err := json.Unmarshal(tc.Input, &input); err != nil {
				return nil, fmt.Errorf("invalid tool call input for %s: %w", tc.Name, err)
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}

		var message anthropic.MessageParam
		if msg.Role == "assistant" {
			message = anthropic.NewAssistantMessage(content...)
		} else {
			message = anthropic.NewUserMessage(content...)
		}
		result = append(result, message)
	}
	return result, nil
}

func convertToolsAnthropic(tools []llm.ToolDescriptor) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name)
		}
		param.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, param)
	}
	return result, nil
}
