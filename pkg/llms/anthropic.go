package llms

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/CheKilo/bot-agent/pkg/protocol"
)

// AnthropicBackend implements Backend over the official Anthropic SDK.
// It never uses native tool_use blocks: the core drives tool dispatch
// through prompt-level ReAct parsing, so every call is a plain text
// completion regardless of req.Tools.
type AnthropicBackend struct {
	client    anthropic.Client
	maxTokens int64
}

// NewAnthropicBackend builds a Backend from an API key. maxTokens is
// the ceiling applied when a request does not specify one.
func NewAnthropicBackend(apiKey string, maxTokens int64) *AnthropicBackend {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicBackend{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		maxTokens: maxTokens,
	}
}

func toAnthropicMessages(msgs []protocol.Message) (system string, out []anthropic.MessageParam) {
	for _, m := range msgs {
		switch m.Role {
		case protocol.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case protocol.RoleUser, protocol.RoleTool:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case protocol.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return system, out
}

func (b *AnthropicBackend) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	system, messages := toAnthropicMessages(req.Messages)

	model := anthropic.Model(req.Model)
	if model == "" {
		model = anthropic.ModelClaude3_5SonnetLatest
	}

	maxTokens := b.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	msg, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("anthropic: %w", err)
	}

	var content string
	for _, block := range msg.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return ChatResponse{
		Content:      content,
		FinishReason: string(msg.StopReason),
		Usage: Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}, nil
}

func (b *AnthropicBackend) Stream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	system, messages := toAnthropicMessages(req.Messages)

	model := anthropic.Model(req.Model)
	if model == "" {
		model = anthropic.ModelClaude3_5SonnetLatest
	}
	maxTokens := b.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	stream := b.client.Messages.NewStreaming(ctx, params)

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		for stream.Next() {
			event := stream.Current()
			if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if delta.Delta.Text != "" {
					out <- StreamChunk{Text: delta.Delta.Text}
				}
			}
		}
		if err := stream.Err(); err != nil {
			out <- StreamChunk{Err: fmt.Errorf("anthropic: stream: %w", err)}
			return
		}
		out <- StreamChunk{Done: true}
	}()
	return out, nil
}

func (b *AnthropicBackend) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("anthropic: embeddings not supported by this backend, configure an embedding-capable provider")
}
