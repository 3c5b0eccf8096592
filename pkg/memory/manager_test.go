package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/CheKilo/bot-agent/pkg/llms"
	"github.com/CheKilo/bot-agent/pkg/protocol"
	"github.com/CheKilo/bot-agent/pkg/ranker"
	"github.com/CheKilo/bot-agent/pkg/rewriter"
	"github.com/CheKilo/bot-agent/pkg/storage"
)

// fakeLLM is a minimal llms.Backend double: Chat echoes a canned
// reply, Embed returns the fixed vector {0.1, 0.2, 0.3} per input.
type fakeLLM struct {
	chatReply string
	chatErr   error
	embedErr  error
}

func (f *fakeLLM) Chat(ctx context.Context, req llms.ChatRequest) (llms.ChatResponse, error) {
	if f.chatErr != nil {
		return llms.ChatResponse{}, f.chatErr
	}
	return llms.ChatResponse{Content: f.chatReply}, nil
}

func (f *fakeLLM) Stream(ctx context.Context, req llms.ChatRequest) (<-chan llms.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLLM) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

// fakeStore is an in-memory storage.Backend double covering just the
// shapes the memory manager exercises.
type fakeStore struct {
	midTerm []storage.Row
	vectors []storage.VectorInsertOp
}

func newFakeStore() *fakeStore { return &fakeStore{} }

func (s *fakeStore) Execute(ctx context.Context, ops []storage.Op, useTransaction bool) ([]storage.OpResult, error) {
	results := make([]storage.OpResult, len(ops))
	for i, op := range ops {
		switch {
		case op.Insert != nil:
			row := make(storage.Row, len(op.Insert.Row))
			for k, v := range op.Insert.Row {
				row[k] = v
			}
			s.midTerm = append(s.midTerm, row)
			results[i] = storage.OpResult{RowsAffected: 1}
		case op.Select != nil:
			var matched []storage.Row
			for _, row := range s.midTerm {
				if op.Select.Where.Conditions != nil {
					if id, ok := op.Select.Where.Conditions["id"]; ok && row["id"].Str != id.Str {
						continue
					}
				}
				matched = append(matched, row)
			}
			if op.Select.Limit > 0 && len(matched) > op.Select.Limit {
				matched = matched[:op.Select.Limit]
			}
			results[i] = storage.OpResult{Rows: matched}
		case op.Update != nil:
			for idx, row := range s.midTerm {
				if id, ok := op.Update.Where.Conditions["id"]; ok && row["id"].Str == id.Str {
					row["access_count"] = storage.IntValue(row["access_count"].Int + 1)
					s.midTerm[idx] = row
				}
			}
			results[i] = storage.OpResult{RowsAffected: 1}
		case op.Delete != nil:
			kept := s.midTerm[:0]
			for _, row := range s.midTerm {
				if id, ok := op.Delete.Where.Conditions["id"]; ok && row["id"].Str == id.Str {
					continue
				}
				kept = append(kept, row)
			}
			s.midTerm = kept
			results[i] = storage.OpResult{RowsAffected: 1}
		default:
			results[i] = storage.OpResult{Err: errors.New("empty op")}
		}
	}
	return results, nil
}

func (s *fakeStore) ExecuteVector(ctx context.Context, ops []storage.VectorOp) ([]storage.VectorOpResult, error) {
	results := make([]storage.VectorOpResult, len(ops))
	for i, op := range ops {
		switch {
		case op.Insert != nil, op.Upsert != nil:
			ins := op.Insert
			if ins == nil {
				ins = op.Upsert
			}
			s.vectors = append(s.vectors, *ins)
			results[i] = storage.VectorOpResult{}
		case op.Search != nil:
			hits := make([]storage.VectorSearchResult, 0, len(s.vectors))
			for _, v := range s.vectors {
				hits = append(hits, storage.VectorSearchResult{ID: v.ID, Score: 0.9, Metadata: v.Metadata})
			}
			results[i] = storage.VectorOpResult{SearchResults: hits}
		default:
			results[i] = storage.VectorOpResult{}
		}
	}
	return results, nil
}

func newTestManager(llm *fakeLLM) (*Manager, *fakeStore) {
	store := newFakeStore()
	client := llms.NewClient(llm, "chat-model", "embed-model")
	return NewManager(client, rewriter.New(client), ranker.New(), store), store
}

func TestStoreLongTermInsertsVector(t *testing.T) {
	mgr, store := newTestManager(&fakeLLM{chatReply: "normalized"})

	id, err := mgr.StoreLongTerm(context.Background(), StoreLongTermInput{
		BotID: "bot1", UserID: "user1", Content: "likes coffee", Importance: 20,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty id")
	}
	if len(store.vectors) != 1 {
		t.Fatalf("expected 1 vector inserted, got %d", len(store.vectors))
	}
	if store.vectors[0].Metadata["bot_id"] != "bot1" {
		t.Errorf("expected bot_id metadata, got %v", store.vectors[0].Metadata)
	}

	var extra LongTermExtra
	if err := json.Unmarshal([]byte(store.vectors[0].Metadata["metadata"].(string)), &extra); err != nil {
		t.Fatalf("metadata not valid JSON: %v", err)
	}
	if extra.Importance != 10 {
		t.Errorf("expected importance clamped to 10, got %d", extra.Importance)
	}
}

func TestStoreLongTermEmbedFailurePropagates(t *testing.T) {
	mgr, _ := newTestManager(&fakeLLM{embedErr: errors.New("embed down")})
	_, err := mgr.StoreLongTerm(context.Background(), StoreLongTermInput{BotID: "b", UserID: "u", Content: "x"})
	if err == nil {
		t.Fatal("expected error when embedding fails")
	}
}

func TestSaveSummaryFallsBackOnBadJSON(t *testing.T) {
	mgr, store := newTestManager(&fakeLLM{chatReply: "not json at all"})

	id, err := mgr.SaveSummary(context.Background(), SaveSummaryInput{
		BotID: "bot1", UserID: "user1",
		Messages: []protocol.Message{{Role: protocol.RoleUser, Content: "hello there"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty id")
	}
	if len(store.midTerm) != 1 {
		t.Fatalf("expected 1 row inserted, got %d", len(store.midTerm))
	}
	if store.midTerm[0]["summary"].Str == "" {
		t.Error("expected fallback summary to be the truncated transcript, got empty")
	}
}

func TestSaveSummaryParsesStructuredReply(t *testing.T) {
	mgr, store := newTestManager(&fakeLLM{chatReply: `{"summary":"user likes coffee","keywords":["coffee","preference"]}`})

	_, err := mgr.SaveSummary(context.Background(), SaveSummaryInput{
		BotID: "bot1", UserID: "user1",
		Messages: []protocol.Message{{Role: protocol.RoleUser, Content: "I love coffee"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.midTerm[0]["summary"].Str != "user likes coffee" {
		t.Errorf("expected parsed summary, got %q", store.midTerm[0]["summary"].Str)
	}
	if store.midTerm[0]["keywords"].Str != "coffee,preference" {
		t.Errorf("expected joined keywords, got %q", store.midTerm[0]["keywords"].Str)
	}
}

func TestPromoteDueMovesRowAndClearsCounter(t *testing.T) {
	mgr, store := newTestManager(&fakeLLM{chatReply: "normalized summary"})

	store.midTerm = append(store.midTerm, storage.Row{
		"id":           storage.StringValue("mid_1"),
		"bot_id":       storage.StringValue("bot1"),
		"user_id":      storage.StringValue("user1"),
		"summary":      storage.StringValue("user likes tea"),
		"raw_messages": storage.BytesValue([]byte(`[]`)),
		"access_count": storage.IntValue(3),
		"created_at":   storage.TimeValue(time.Now()),
	})
	mgr.accessed["mid_1"] = promotionThreshold

	mgr.PromoteDue(context.Background(), "bot1", "user1")

	if len(store.midTerm) != 0 {
		t.Errorf("expected mid-term row deleted after promotion, got %d rows", len(store.midTerm))
	}
	if len(store.vectors) != 1 {
		t.Fatalf("expected 1 promoted vector, got %d", len(store.vectors))
	}
	if _, ok := mgr.accessed["mid_1"]; ok {
		t.Error("expected access counter cleared after promotion")
	}
}

func TestSearchMidTermBumpsAccessCount(t *testing.T) {
	mgr, store := newTestManager(&fakeLLM{chatReply: "coffee"})

	store.midTerm = append(store.midTerm, storage.Row{
		"id":           storage.StringValue("mid_1"),
		"bot_id":       storage.StringValue("bot1"),
		"user_id":      storage.StringValue("user1"),
		"summary":      storage.StringValue("user likes coffee in the morning"),
		"keywords":     storage.StringValue("coffee,morning"),
		"raw_messages": storage.BytesValue([]byte(`[]`)),
		"access_count": storage.IntValue(0),
		"created_at":   storage.TimeValue(time.Now()),
	})

	items, err := mgr.SearchMidTerm(context.Background(), SearchMidTermInput{
		BotID: "bot1", UserID: "user1", Query: "coffee",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 ranked item, got %d", len(items))
	}
	if store.midTerm[0]["access_count"].Int != 1 {
		t.Errorf("expected access_count bumped to 1, got %d", store.midTerm[0]["access_count"].Int)
	}
	if mgr.accessed["mid_1"] != 1 {
		t.Errorf("expected in-process promotion counter at 1, got %d", mgr.accessed["mid_1"])
	}
}
