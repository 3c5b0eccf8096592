package ranker

import (
	"testing"
	"time"

	"github.com/CheKilo/bot-agent/pkg/memory"
)

func TestMidTermWeightsExact(t *testing.T) {
	r := New()
	now := time.Now()
	r.now = func() time.Time { return now }

	// bm25=1, time_decay=0, access=0 -> 0.6
	got := midTermBM25Weight*1.0 + midTermTimeWeight*0.0 + midTermAccessWeight*0.0
	if got != 0.6 {
		t.Errorf("expected 0.6, got %v", got)
	}
	// bm25=0, time_decay=1, access=0 -> 0.3
	got = midTermBM25Weight*0.0 + midTermTimeWeight*1.0 + midTermAccessWeight*0.0
	if got != 0.3 {
		t.Errorf("expected 0.3, got %v", got)
	}
	// bm25=0, time_decay=0, access=1 -> 0.1
	got = midTermBM25Weight*0.0 + midTermTimeWeight*0.0 + midTermAccessWeight*1.0
	if got != 0.1 {
		t.Errorf("expected 0.1, got %v", got)
	}
}

func TestLongTermDedupKeepsHighestScore(t *testing.T) {
	r := New()
	items := []memory.RankItem{
		{ID: "a", Content: "same content here", RawContent: "x", VectorScore: 0.9, Importance: 5, CreatedAt: time.Now()},
		{ID: "b", Content: "same content here", RawContent: "x", VectorScore: 0.5, Importance: 5, CreatedAt: time.Now()},
		{ID: "c", Content: "same content here", RawContent: "x", VectorScore: 0.7, Importance: 5, CreatedAt: time.Now()},
	}
	// Importance, context and age are identical, so the final scores
	// follow the vector scores 0.9 > 0.7 > 0.5: only "a" may survive.
	ranked := r.RankLongTerm("x", items, 10)
	if len(ranked) != 1 {
		t.Fatalf("expected dedup to leave exactly one item, got %d", len(ranked))
	}
	if ranked[0].ID != "a" {
		t.Errorf("expected the highest-scoring item a to survive, got %s", ranked[0].ID)
	}
}

func TestRankMidTermRelaxesThresholdForSmallBatches(t *testing.T) {
	r := New()
	items := []memory.RankItem{
		{ID: "a", Content: "completely unrelated text", RawContent: "completely unrelated text", CreatedAt: time.Now()},
	}
	ranked := r.RankMidTerm("zzz_no_match_at_all", items, 10)
	// Small-batch relaxation means near-zero BM25 can still pass 0.01,
	// but a true zero-overlap query should still filter to empty.
	if len(ranked) != 0 {
		t.Errorf("expected no matches for disjoint query, got %d", len(ranked))
	}
}

func TestRankMidTermOrdersByFinalScore(t *testing.T) {
	r := New()
	now := time.Now()
	items := []memory.RankItem{
		{ID: "old", Content: "alpha beta gamma delta", RawContent: "alpha beta gamma delta", CreatedAt: now.Add(-60 * 24 * time.Hour)},
		{ID: "new", Content: "alpha beta gamma delta", RawContent: "alpha beta gamma delta epsilon", CreatedAt: now},
	}
	ranked := r.RankMidTerm("alpha beta", items, 10)
	if len(ranked) == 0 {
		t.Fatal("expected at least one result")
	}
	if ranked[0].ID != "new" {
		t.Errorf("expected more recent item to rank first, got %s", ranked[0].ID)
	}
}
