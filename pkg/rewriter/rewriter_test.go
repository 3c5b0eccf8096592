package rewriter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/CheKilo/bot-agent/pkg/llms"
)

type fakeBackend struct {
	reply string
	err   error
}

func (f *fakeBackend) Chat(ctx context.Context, req llms.ChatRequest) (llms.ChatResponse, error) {
	if f.err != nil {
		return llms.ChatResponse{}, f.err
	}
	return llms.ChatResponse{Content: f.reply}, nil
}

func (f *fakeBackend) Stream(ctx context.Context, req llms.ChatRequest) (<-chan llms.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeBackend) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func TestRewriteForMidTermFallsBackOnTransportError(t *testing.T) {
	r := New(llms.NewClient(&fakeBackend{err: errors.New("boom")}, "m", "e"))
	got := r.RewriteForMidTerm(context.Background(), "what did I say yesterday")
	if got != "what did I say yesterday" {
		t.Errorf("expected original query on transport error, got %q", got)
	}
}

func TestRewriteForMidTermUsesClock(t *testing.T) {
	r := New(llms.NewClient(&fakeBackend{reply: "resolved query"}, "m", "e")).
		WithClock(func() time.Time { return time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC) })
	got := r.RewriteForMidTerm(context.Background(), "yesterday")
	if got != "resolved query" {
		t.Errorf("unexpected rewrite: %q", got)
	}
}

func TestNormalizeForStorageEmptyReplyFallsBack(t *testing.T) {
	r := New(llms.NewClient(&fakeBackend{reply: "   "}, "m", "e"))
	got := r.NormalizeForStorage(context.Background(), "I like coffee")
	if got != "I like coffee" {
		t.Errorf("expected original content on empty reply, got %q", got)
	}
}
