package vector

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/CheKilo/bot-agent/pkg/storage"
)

// ChromemBackend implements storage.Vector over an embedded,
// in-process chromem-go database — the default when no external
// vector database is configured. Embeddings are supplied directly by
// the caller (the Insert/Upsert/Search vectors), so the collection's
// embedding function only returns a fixed zero vector and validates
// nothing.
type ChromemBackend struct {
	mu  sync.Mutex
	db  *chromem.DB
	dim int
}

func NewChromemBackend() *ChromemBackend {
	return &ChromemBackend{db: chromem.NewDB()}
}

func passthroughEmbed(vec []float32) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return vec, nil
	}
}

func (b *ChromemBackend) collection(name string, dim int) (*chromem.Collection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	col := b.db.GetCollection(name, nil)
	if col != nil {
		return col, nil
	}
	return b.db.CreateCollection(name, nil, passthroughEmbed(make([]float32, dim)))
}

func (b *ChromemBackend) ExecuteVector(ctx context.Context, ops []storage.VectorOp) ([]storage.VectorOpResult, error) {
	results := make([]storage.VectorOpResult, len(ops))
	for i, op := range ops {
		switch {
		case op.Insert != nil, op.Upsert != nil:
			ins := op.Insert
			if ins == nil {
				ins = op.Upsert
			}
			col, err := b.collection(ins.Collection, len(ins.Vector))
			if err != nil {
				results[i] = storage.VectorOpResult{Err: fmt.Errorf("vector: chromem collection: %w", err)}
				continue
			}
			metadata := stringifyMetadata(ins.Metadata)
			doc := chromem.Document{
				ID:        ins.ID,
				Embedding: ins.Vector,
				Metadata:  metadata,
			}
			if err := col.AddDocument(ctx, doc); err != nil {
				results[i] = storage.VectorOpResult{Err: fmt.Errorf("vector: chromem add: %w", err)}
			}
		case op.Search != nil:
			s := op.Search
			col, err := b.collection(s.Collection, len(s.Query))
			if err != nil {
				results[i] = storage.VectorOpResult{Err: fmt.Errorf("vector: chromem collection: %w", err)}
				continue
			}
			n := s.TopK
			if n <= 0 {
				n = 10
			}
			if count := col.Count(); n > count {
				n = count
			}
			if n == 0 {
				results[i] = storage.VectorOpResult{}
				continue
			}

			var where map[string]string
			if s.Partition != "" {
				where = map[string]string{"partition": s.Partition}
			}

			docs, err := col.QueryEmbedding(ctx, s.Query, n, where, nil)
			if err != nil {
				results[i] = storage.VectorOpResult{Err: fmt.Errorf("vector: chromem query: %w", err)}
				continue
			}

			hits := make([]storage.VectorSearchResult, 0, len(docs))
			for _, d := range docs {
				hits = append(hits, storage.VectorSearchResult{
					ID:       d.ID,
					Score:    float64(d.Similarity),
					Metadata: unstringifyMetadata(d.Metadata),
				})
			}
			results[i] = storage.VectorOpResult{SearchResults: hits}
		case op.Delete != nil:
			d := op.Delete
			col, err := b.collection(d.Collection, 0)
			if err != nil {
				results[i] = storage.VectorOpResult{Err: fmt.Errorf("vector: chromem collection: %w", err)}
				continue
			}
			if err := col.Delete(ctx, nil, nil, d.ID); err != nil {
				results[i] = storage.VectorOpResult{Err: fmt.Errorf("vector: chromem delete: %w", err)}
			}
		default:
			results[i] = storage.VectorOpResult{Err: fmt.Errorf("vector: empty op")}
		}
	}
	return results, nil
}

// chromem-go metadata is string-valued; the core's metadata carries
// richer types (importance as int, tags as []string-joined), so every
// value is written with fmt's %v formatting and read back as a plain
// string; the original types are not restored.
func stringifyMetadata(meta map[string]any) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}

func unstringifyMetadata(meta map[string]string) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

var _ storage.Vector = (*ChromemBackend)(nil)
