// Package llms is a thin, typed wrapper over LLM backends: chat,
// streaming chat, and embeddings. It deliberately does not drive
// behaviour through the backend's native function-calling protocol —
// the ReAct loop in pkg/reasoning parses free-form text instead.
package llms

import (
	"context"
	"time"

	"github.com/CheKilo/bot-agent/pkg/protocol"
)

// ToolDefinition describes a tool for providers that want to surface a
// schema to the model. Nothing in this module fills ChatRequest.Tools;
// the ReAct loop puts tool schemas into the system prompt text instead.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Usage reports token accounting, when the backend provides it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatRequest carries every parameter the facade exposes. Callers set
// only what they need; zero values take provider defaults.
type ChatRequest struct {
	Model           string
	Messages        []protocol.Message
	Tools           []ToolDefinition
	ResponseFormat  string // "" | "json_object"
	Temperature     *float64
	MaxTokens       int
	ToolChoice      string
	Seed            *int64
	Timeout         time.Duration
}

// ChatResponse is the provider-agnostic result of a chat call.
type ChatResponse struct {
	Content      string
	ToolCalls    []protocol.ToolCallRequest
	FinishReason string
	Usage        Usage
}

// StreamChunk is one piece of a streaming chat response.
type StreamChunk struct {
	Text string
	Done bool
	Err  error
}

// Backend is the minimal interface the core drives every LLM provider
// through. It is intentionally narrow: chat, stream, embed.
type Backend interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	Stream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}
