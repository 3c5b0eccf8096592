package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/CheKilo/bot-agent/pkg/agent"
	"github.com/CheKilo/bot-agent/pkg/llms"
	"github.com/CheKilo/bot-agent/pkg/memory"
	"github.com/CheKilo/bot-agent/pkg/ranker"
	"github.com/CheKilo/bot-agent/pkg/rewriter"
	"github.com/CheKilo/bot-agent/pkg/storage"
)

type noopLLM struct{}

func (noopLLM) Chat(ctx context.Context, req llms.ChatRequest) (llms.ChatResponse, error) {
	return llms.ChatResponse{}, errors.New("not implemented")
}
func (noopLLM) Stream(ctx context.Context, req llms.ChatRequest) (<-chan llms.StreamChunk, error) {
	return nil, errors.New("not implemented")
}
func (noopLLM) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

type noopStore struct{}

func (noopStore) Execute(ctx context.Context, ops []storage.Op, useTransaction bool) ([]storage.OpResult, error) {
	return make([]storage.OpResult, len(ops)), nil
}
func (noopStore) ExecuteVector(ctx context.Context, ops []storage.VectorOp) ([]storage.VectorOpResult, error) {
	return make([]storage.VectorOpResult, len(ops)), nil
}

func newTestRegistry() *Registry {
	client := llms.NewClient(noopLLM{}, "m", "e")
	mgr := memory.NewManager(client, rewriter.New(client), ranker.New(), noopStore{})
	return New(agent.NewRegistry(), client, mgr)
}

func TestGetOrCreateReturnsSamePipelineForSameKey(t *testing.T) {
	reg := newTestRegistry()
	key := Key{BotID: "bot1", UserID: "alex"}

	a := reg.GetOrCreate(key)
	b := reg.GetOrCreate(key)

	assert.Same(t, a, b)
	assert.Equal(t, 1, reg.Len())
}

func TestGetOrCreateCreatesDistinctPipelinesForDistinctKeys(t *testing.T) {
	reg := newTestRegistry()

	a := reg.GetOrCreate(Key{BotID: "bot1", UserID: "alex"})
	b := reg.GetOrCreate(Key{BotID: "bot1", UserID: "sam"})

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, reg.Len())
}

func TestDeleteRemovesPipeline(t *testing.T) {
	reg := newTestRegistry()
	key := Key{BotID: "bot1", UserID: "alex"}

	reg.GetOrCreate(key)
	reg.Delete(key)

	assert.Equal(t, 0, reg.Len())
}
