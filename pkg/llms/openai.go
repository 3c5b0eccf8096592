package llms

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/CheKilo/bot-agent/pkg/protocol"
)

// OpenAIBackend implements Backend over github.com/sashabaranov/go-openai,
// used both as a chat provider and as the embedding provider (the
// Anthropic backend has none).
type OpenAIBackend struct {
	client *openai.Client
}

func NewOpenAIBackend(apiKey string) *OpenAIBackend {
	return &OpenAIBackend{client: openai.NewClient(apiKey)}
}

func toOpenAIMessages(msgs []protocol.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		})
	}
	return out
}

func (b *OpenAIBackend) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	params := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: toOpenAIMessages(req.Messages),
	}
	if req.Temperature != nil {
		params.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = req.MaxTokens
	}
	if req.Seed != nil {
		seed := int(*req.Seed)
		params.Seed = &seed
	}
	if req.ResponseFormat == "json_object" {
		params.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := b.client.CreateChatCompletion(ctx, params)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ChatResponse{}, fmt.Errorf("openai: empty choices")
	}

	choice := resp.Choices[0]
	return ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (b *OpenAIBackend) Stream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	params := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: toOpenAIMessages(req.Messages),
		Stream:   true,
	}
	if req.Temperature != nil {
		params.Temperature = float32(*req.Temperature)
	}

	stream, err := b.client.CreateChatCompletionStream(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: stream: %w", err)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if err == io.EOF {
				out <- StreamChunk{Done: true}
				return
			}
			if err != nil {
				out <- StreamChunk{Err: fmt.Errorf("openai: stream recv: %w", err)}
				return
			}
			if len(resp.Choices) > 0 {
				out <- StreamChunk{Text: resp.Choices[0].Delta.Content}
			}
		}
	}()
	return out, nil
}

func (b *OpenAIBackend) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	resp, err := b.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai: embed: %w", err)
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}
