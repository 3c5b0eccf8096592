package llms

import (
	"context"
	"fmt"
	"time"

	"github.com/CheKilo/bot-agent/pkg/observability"
	"github.com/CheKilo/bot-agent/pkg/protocol"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Client is the facade every agent talks to. It resolves a configured
// default model/embedding model so callers rarely have to name one,
// and applies the per-call timeout documented in spec.md §5.
type Client struct {
	backend        Backend
	defaultModel   string
	defaultEmbed   string
	defaultTimeout time.Duration
	metrics        *observability.Metrics
}

// NewClient wires a facade around a concrete Backend.
func NewClient(backend Backend, defaultModel, defaultEmbedModel string) *Client {
	return &Client{
		backend:        backend,
		defaultModel:   defaultModel,
		defaultEmbed:   defaultEmbedModel,
		defaultTimeout: 60 * time.Second,
	}
}

// SetMetrics wires optional LLM-call counters; a nil Metrics disables recording.
func (c *Client) SetMetrics(m *observability.Metrics) { c.metrics = m }

var tracer = otel.Tracer("bot-agent/llms")

func (c *Client) withDefaults(req ChatRequest) ChatRequest {
	if req.Model == "" {
		req.Model = c.defaultModel
	}
	if req.Timeout == 0 {
		req.Timeout = c.defaultTimeout
	}
	return req
}

// Chat sends messages to the backend and returns the full response.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	req = c.withDefaults(req)
	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "llms.Chat", trace.WithAttributes(attribute.String("model", req.Model)))
	defer span.End()

	resp, err := c.backend.Chat(ctx, req)
	c.metrics.RecordLLMCall(req.Model, err)
	if err != nil {
		span.RecordError(err)
		return ChatResponse{}, fmt.Errorf("llms: chat call failed: %w", err)
	}
	return resp, nil
}

// Stream sends messages to the backend and returns a channel of text
// chunks. The channel is finite and non-restartable: once drained (or
// an error chunk arrives) the stream is over.
func (c *Client) Stream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	req = c.withDefaults(req)
	if req.Timeout == c.defaultTimeout {
		req.Timeout = 300 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, req.Timeout)

	ch, err := c.backend.Stream(ctx, req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("llms: stream call failed: %w", err)
	}

	out := make(chan StreamChunk)
	go func() {
		defer cancel()
		defer close(out)
		for chunk := range ch {
			out <- chunk
			if chunk.Done || chunk.Err != nil {
				return
			}
		}
	}()
	return out, nil
}

// Embed embeds a batch of texts using the default embedding model.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	vecs, err := c.backend.Embed(ctx, c.defaultEmbed, texts)
	if err != nil {
		return nil, fmt.Errorf("llms: embed call failed: %w", err)
	}
	return vecs, nil
}

// ChatText is a convenience for the common single-string-reply case
// used throughout the core (rewriter, summariser, analyse-emotion):
// send messages, get back content, and return transport failures as
// an error the caller can degrade on.
func (c *Client) ChatText(ctx context.Context, messages []protocol.Message, temperature float64) (string, error) {
	resp, err := c.Chat(ctx, ChatRequest{Messages: messages, Temperature: &temperature})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
