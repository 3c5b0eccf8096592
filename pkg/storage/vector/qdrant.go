package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/CheKilo/bot-agent/pkg/storage"
)

// appIDPayloadKey stores the caller's own point id (e.g. "mem_<uuid>")
// as an ordinary payload field. Qdrant point ids must be either an
// unsigned integer or a syntactically valid UUID, so the application
// id itself can't be used as the wire id directly; pointID below
// derives a deterministic UUID from it instead, and readback recovers
// the original id from the payload rather than from the point id.
const appIDPayloadKey = "_point_app_id"

// pointIDNamespace seeds the deterministic v5-style (SHA1) UUID
// derivation in pointID; any fixed, collection-independent value works
// since it only needs to be stable across calls, not globally unique.
var pointIDNamespace = uuid.MustParse("5a1f6b2e-8b9d-4e3a-9c6d-7f3a1b2c4d5e")

func pointID(appID string) *qdrant.PointId {
	return qdrant.NewID(uuid.NewSHA1(pointIDNamespace, []byte(appID)).String())
}

// QdrantBackend implements storage.Vector against a Qdrant instance.
// Collections are created lazily on first insert/upsert; per-bot
// namespacing (spec.md §6) is expressed as a `partition` payload field
// filtered on at query time, since Qdrant itself has no native
// sub-collection partitioning concept.
type QdrantBackend struct {
	client *qdrant.Client
	dim    uint64
}

// NewQdrantBackend dials a Qdrant instance. dim is the embedding
// dimensionality used when lazily creating a collection.
func NewQdrantBackend(host string, port int, apiKey string, dim uint64) (*QdrantBackend, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("vector: qdrant client: %w", err)
	}
	return &QdrantBackend{client: client, dim: dim}, nil
}

func (b *QdrantBackend) ensureCollection(ctx context.Context, name string) error {
	exists, err := b.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("vector: qdrant collection exists: %w", err)
	}
	if exists {
		return nil
	}
	return b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     b.dim,
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func toQdrantPayload(meta map[string]any) map[string]*qdrant.Value {
	out := make(map[string]*qdrant.Value, len(meta))
	for k, v := range meta {
		switch val := v.(type) {
		case string:
			out[k] = qdrant.NewValueString(val)
		case int:
			out[k] = qdrant.NewValueInt(int64(val))
		case int64:
			out[k] = qdrant.NewValueInt(val)
		case float64:
			out[k] = qdrant.NewValueDouble(val)
		case bool:
			out[k] = qdrant.NewValueBool(val)
		default:
			out[k] = qdrant.NewValueString(fmt.Sprintf("%v", val))
		}
	}
	return out
}

func fromQdrantPayload(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v.AsInterface()
	}
	return out
}

func (b *QdrantBackend) ExecuteVector(ctx context.Context, ops []storage.VectorOp) ([]storage.VectorOpResult, error) {
	results := make([]storage.VectorOpResult, len(ops))
	for i, op := range ops {
		switch {
		case op.Insert != nil, op.Upsert != nil:
			ins := op.Insert
			if ins == nil {
				ins = op.Upsert
			}
			if err := b.ensureCollection(ctx, ins.Collection); err != nil {
				results[i] = storage.VectorOpResult{Err: err}
				continue
			}
			payloadMeta := make(map[string]any, len(ins.Metadata)+1)
			for k, v := range ins.Metadata {
				payloadMeta[k] = v
			}
			payloadMeta[appIDPayloadKey] = ins.ID
			_, err := b.client.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: ins.Collection,
				Points: []*qdrant.PointStruct{
					{
						Id:      pointID(ins.ID),
						Vectors: qdrant.NewVectors(ins.Vector...),
						Payload: toQdrantPayload(payloadMeta),
					},
				},
			})
			if err != nil {
				results[i] = storage.VectorOpResult{Err: fmt.Errorf("vector: qdrant upsert: %w", err)}
			}
		case op.Search != nil:
			s := op.Search
			limit := uint64(s.TopK)
			if limit == 0 {
				limit = 10
			}

			var filter *qdrant.Filter
			if s.Partition != "" {
				filter = &qdrant.Filter{
					Must: []*qdrant.Condition{
						qdrant.NewMatch("partition", s.Partition),
					},
				}
			}

			resp, err := b.client.Query(ctx, &qdrant.QueryPoints{
				CollectionName: s.Collection,
				Query:          qdrant.NewQuery(s.Query...),
				Limit:          &limit,
				Filter:         filter,
				WithPayload:    qdrant.NewWithPayload(true),
			})
			if err != nil {
				results[i] = storage.VectorOpResult{Err: fmt.Errorf("vector: qdrant query: %w", err)}
				continue
			}

			hits := make([]storage.VectorSearchResult, 0, len(resp))
			for _, point := range resp {
				payload := fromQdrantPayload(point.Payload)
				appID, _ := payload[appIDPayloadKey].(string)
				delete(payload, appIDPayloadKey)
				hits = append(hits, storage.VectorSearchResult{
					ID:       appID,
					Score:    float64(point.Score),
					Metadata: payload,
				})
			}
			results[i] = storage.VectorOpResult{SearchResults: hits}
		case op.Delete != nil:
			d := op.Delete
			_, err := b.client.Delete(ctx, &qdrant.DeletePoints{
				CollectionName: d.Collection,
				Points:         qdrant.NewPointsSelector(pointID(d.ID)),
			})
			if err != nil {
				results[i] = storage.VectorOpResult{Err: fmt.Errorf("vector: qdrant delete: %w", err)}
			}
		default:
			results[i] = storage.VectorOpResult{Err: fmt.Errorf("vector: empty op")}
		}
	}
	return results, nil
}

var _ storage.Vector = (*QdrantBackend)(nil)
