package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nexusrun/coreagent/internal/authengine"
	"github.com/nexusrun/coreagent/internal/llm"
	"github.com/nexusrun/coreagent/internal/observability"
	"github.com/nexusrun/coreagent/internal/ratelimit"
	"github.com/nexusrun/coreagent/pkg/models"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAICompatProvider implements llm.Provider over any OpenAI-compatible
// chat completions endpoint: OpenAI itself, GitHub Copilot's proxy, or
// OpenRouter, distinguished only by name and base URL.
type OpenAICompatProvider struct {
	base
	name    string
	baseURL string
}

// NewOpenAICompatProvider creates an adapter identified as name (e.g.
// "openai", "copilot", "openrouter"), whose client talks to baseURL (empty
// for OpenAI's default, which also yields the conventional default for
// copilot/openrouter — see baseURLFor). Credentials are resolved per-call
// from auth. metrics and tracer are both optional; either may be nil to
// disable that instrument.
func NewOpenAICompatProvider(name string, auth *authengine.Manager, limiter *ratelimit.Limiter, baseURL string, metrics *observability.Metrics, tracer *observability.Tracer) *OpenAICompatProvider {
	return &OpenAICompatProvider{
		base:    newBase(name, auth, limiter, metrics, tracer),
		name:    name,
		baseURL: baseURL,
	}
}

func (p *OpenAICompatProvider) Name() string { return p.name }

func (p *OpenAICompatProvider) Complete(ctx context.Context, req *llm.CompletionRequest) (<-chan llm.ResponseChunk, error) {
	model := req.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return p.completeWithObservability(ctx, model, func(ctx context.Context, attempt int) (<-chan llm.ResponseChunk, error) {
		return p.complete(ctx, req)
	})
}

func (p *OpenAICompatProvider) complete(ctx context.Context, req *llm.CompletionRequest) (<-chan llm.ResponseChunk, error) {
	client, err := p.client(ctx)
	if err != nil {
		return nil, err
	}

	messages := convertMessagesOpenAI(req.Messages, req.System)

	model := req.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertToolsOpenAI(req.Tools)
	}

	stream, err := client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, wrapOpenAIError(p.name, err)
	}

	chunks := make(chan llm.ResponseChunk)
	go processOpenAIStream(stream, chunks)
	return chunks, nil
}

// client builds an *openai.Client authorized with the provider's stored
// credential, pointed at baseURLFor(p.name) when that provider isn't the
// vanilla OpenAI API.
func (p *OpenAICompatProvider) client(ctx context.Context) (*openai.Client, error) {
	if p.auth == nil {
		return nil, fmt.Errorf("%s: no auth manager configured", p.name)
	}
	cred, err := p.auth.Credentials(ctx, p.name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}

	var apiKey string
	switch cred.Type {
	case models.CredentialAPIKey:
		apiKey = cred.APIKey
	case models.CredentialOAuth:
		apiKey = cred.AccessToken
	default:
		return nil, fmt.Errorf("%s: unsupported credential type %s", p.name, cred.Type)
	}

	config := openai.DefaultConfig(apiKey)
	if url := p.resolveBaseURL(cred); url != "" {
		config.BaseURL = url
	}
	return openai.NewClientWithConfig(config), nil
}

// resolveBaseURL picks the endpoint for providers that aren't vanilla
// OpenAI: the provider's configured baseURL wins, then a custom base URL
// stashed in the credential (e.g. a self-hosted Copilot proxy), then each
// provider's conventional default.
func (p *OpenAICompatProvider) resolveBaseURL(cred *models.Credential) string {
	if p.baseURL != "" {
		return p.baseURL
	}
	if cred != nil && cred.Custom != nil {
		if url := cred.Custom["base_url"]; url != "" {
			return url
		}
	}
	switch p.name {
	case "openrouter":
		return "https://openrouter.ai/api/v1"
	case "copilot":
		return "https://api.githubcopilot.com"
	default:
		return ""
	}
}

func processOpenAIStream(stream *openai.ChatCompletionStream, chunks chan<- llm.ResponseChunk) {
	defer close(chunks)
	defer stream.Close()

	toolCalls := make(map[int]*models.ToolCall)
	var usage *models.Usage

	flushToolCalls := func() {
		for _, tc := range toolCalls {
			if tc.ID != "" && tc.Name != "" {
				chunks <- llm.ResponseChunk{ToolCall: tc}
			}
		}
		toolCalls = make(map[int]*models.ToolCall)
	}

	for {
		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				flushToolCalls()
				chunks <- llm.ResponseChunk{Usage: usage}
				return
			}
			chunks <- llm.ResponseChunk{Error: wrapOpenAIError("", err)}
			return
		}

		if response.Usage != nil {
			usage = models.NewUsage(response.Usage.PromptTokens, response.Usage.CompletionTokens)
		}

		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			chunks <- llm.ResponseChunk{Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if toolCalls[index] == nil {
				toolCalls[index] = &models.ToolCall{}
			}
			if tc.ID != "" {
				toolCalls[index].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[index].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				current := string(toolCalls[index].Input)
				toolCalls[index].Input = json.RawMessage(current + tc.Function.Arguments)
			}
		}

		if choice.FinishReason == openai.FinishReasonToolCalls {
			flushToolCalls()
		}
	}
}

func convertMessagesOpenAI(messages []llm.CompletionMessage, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		switch msg.Role {
		case "tool":
			for _, tr := range msg.ToolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
		case "assistant":
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Content}
			if len(msg.ToolCalls) > 0 {
				oaiMsg.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					oaiMsg.ToolCalls[i] = openai.ToolCall{
						ID:   tc.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      tc.Name,
							Arguments: string(tc.Input),
						},
					}
				}
			}
			result = append(result, oaiMsg)
		default:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		}
	}

	return result
}

func convertToolsOpenAI(tools []llm.ToolDescriptor) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var schema map[string]any
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schema,
			},
		}
	}
	return result
}

func wrapOpenAIError(provider string, err error) error {
	if provider == "" {
		provider = "openai"
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(provider, apiErr.HTTPStatusCode, apiErr.Message, 0)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(provider, reqErr.HTTPStatusCode, reqErr.Error(), 0)
	}
	return classifyStatus(provider, 0, err.Error(), 0)
}
