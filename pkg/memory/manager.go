package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CheKilo/bot-agent/pkg/llms"
	"github.com/CheKilo/bot-agent/pkg/observability"
	"github.com/CheKilo/bot-agent/pkg/protocol"
	"github.com/CheKilo/bot-agent/pkg/ranker"
	"github.com/CheKilo/bot-agent/pkg/rewriter"
	"github.com/CheKilo/bot-agent/pkg/storage"
	"github.com/CheKilo/bot-agent/pkg/storage/vector"
)

const (
	midTermTable     = "mid_term_memory"
	vectorCollection = "memory_vectors"
	overRecallFactor = 3
	midTermRecentCap = 100

	defaultTimeRangeDays = 30
	defaultSearchLimit   = 5
	promotionThreshold   = 3
	defaultMinScore      = 0.1
)

// Manager orchestrates recall, rank, dedup, store, and promotion
// across both memory tiers (spec.md §4.6).
type Manager struct {
	llm      *llms.Client
	rewriter *rewriter.Rewriter
	ranker   *ranker.Ranker
	storage  storage.Backend

	mu       sync.Mutex
	accessed map[string]int // mid-term id -> in-process access counter since last promotion sweep

	// Metrics is optional; a nil Metrics disables recording.
	Metrics *observability.Metrics

	// TimeRangeDays, SearchLimit, and PromotionThreshold are the
	// runtime-tunable knobs spec.md §6 exposes (cfg.Memory.*); they
	// default to the same values the teacher hardcoded and may be
	// overridden by the caller right after construction.
	TimeRangeDays      int
	SearchLimit        int
	PromotionThreshold int
	MinScore           float64
}

func NewManager(llm *llms.Client, rw *rewriter.Rewriter, rk *ranker.Ranker, backend storage.Backend) *Manager {
	return &Manager{
		llm:      llm,
		rewriter: rw,
		ranker:   rk,
		storage:  backend,
		accessed: make(map[string]int),

		TimeRangeDays:      defaultTimeRangeDays,
		SearchLimit:        defaultSearchLimit,
		PromotionThreshold: promotionThreshold,
		MinScore:           defaultMinScore,
	}
}

// StoreLongTermInput is the argument to StoreLongTerm.
type StoreLongTermInput struct {
	BotID      string
	UserID     string
	Content    string
	Type       MemoryType
	Importance int
	Tags       []string
}

// StoreLongTerm normalises content for storage, embeds the normalised
// form, and inserts one long-term record. Returns the new id, or ""
// on failure (spec.md §4.6).
func (m *Manager) StoreLongTerm(ctx context.Context, in StoreLongTermInput) (string, error) {
	importance := in.Importance
	if importance < 1 {
		importance = 1
	}
	if importance > 10 {
		importance = 10
	}

	normalized := m.rewriter.NormalizeForStorage(ctx, in.Content)

	vecs, err := m.llm.Embed(ctx, []string{normalized})
	if err != nil || len(vecs) == 0 {
		slog.Warn("memory: embed failed for long-term store", "error", err)
		return "", fmt.Errorf("memory: embed: %w", err)
	}

	id := "mem_" + uuid.NewString()
	extra := LongTermExtra{
		Importance:        importance,
		Tags:              in.Tags,
		Source:            "agent",
		NormalizedContent: normalized,
	}

	if err := m.insertLongTerm(ctx, id, in.BotID, in.UserID, in.Type, in.Content, vecs[0], extra); err != nil {
		return "", err
	}
	return id, nil
}

func (m *Manager) insertLongTerm(ctx context.Context, id, botID, userID string, memType MemoryType, content string, vec []float32, extra LongTermExtra) error {
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return fmt.Errorf("memory: marshal extra: %w", err)
	}

	meta := map[string]any{
		"bot_id":      botID,
		"user_id":     userID,
		"memory_type": string(memType),
		"created_at":  time.Now().Format(time.RFC3339),
		"content":     content,
		"metadata":    string(extraJSON),
		"partition":   vector.Partition(botID),
	}

	_, err = m.storage.ExecuteVector(ctx, []storage.VectorOp{
		{Insert: &storage.VectorInsertOp{Collection: vectorCollection, ID: id, Vector: vec, Metadata: meta}},
	})
	if err != nil {
		return fmt.Errorf("memory: insert long-term record: %w", err)
	}
	return nil
}

// SaveSummaryInput is the argument to SaveSummary.
type SaveSummaryInput struct {
	BotID       string
	UserID      string
	Messages    []protocol.Message // the dialogue turns being summarised (may include tool turns)
	RawMessages []protocol.Message // full raw list including tool turns, when it differs from Messages
	StartTime   time.Time
	EndTime     time.Time
}

type summaryJSON struct {
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

// SaveSummary builds a newline-joined transcript, asks the LLM for a
// {summary, keywords} JSON object, and inserts one mid-term row with
// access_count=0. On parse failure it falls back to truncated raw
// text as the summary (spec.md §4.6).
func (m *Manager) SaveSummary(ctx context.Context, in SaveSummaryInput) (string, error) {
	raw := in.RawMessages
	if raw == nil {
		raw = in.Messages
	}

	transcript := joinTranscript(in.Messages)

	prompt := []protocol.Message{
		{Role: protocol.RoleSystem, Content: "Summarise the following dialogue turn into a JSON object with exactly " +
			"two fields: \"summary\" (a factual summary, at most 200 characters) and \"keywords\" (a short array of " +
			"salient keywords). Output bare JSON only, nothing else."},
		{Role: protocol.RoleUser, Content: transcript},
	}

	var parsed summaryJSON
	text, err := m.llm.ChatText(ctx, prompt, 0.3)
	if err != nil {
		parsed = summaryJSON{Summary: truncate(transcript, 200)}
	} else if jerr := json.Unmarshal([]byte(extractJSONObject(text)), &parsed); jerr != nil {
		parsed = summaryJSON{Summary: truncate(transcript, 200)}
	}

	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("memory: marshal raw messages: %w", err)
	}

	id := "sum_" + uuid.NewString()
	now := time.Now()

	row := map[string]storage.TypedValue{
		"id":            storage.StringValue(id),
		"bot_id":        storage.StringValue(in.BotID),
		"user_id":       storage.StringValue(in.UserID),
		"summary":       storage.StringValue(parsed.Summary),
		"keywords":      storage.StringValue(strings.Join(parsed.Keywords, ",")),
		"raw_messages":  storage.BytesValue(rawJSON),
		"message_count": storage.IntValue(int64(len(raw))),
		"start_time":    storage.TimeValue(in.StartTime),
		"end_time":      storage.TimeValue(in.EndTime),
		"access_count":  storage.IntValue(0),
		"created_at":    storage.TimeValue(now),
	}

	results, err := m.storage.Execute(ctx, []storage.Op{{Insert: &storage.InsertOp{Table: midTermTable, Row: row}}}, false)
	if err != nil {
		return "", fmt.Errorf("memory: save summary: %w", err)
	}
	if len(results) > 0 && results[0].Err != nil {
		return "", fmt.Errorf("memory: save summary: %w", results[0].Err)
	}
	return id, nil
}

// SearchMidTermInput is the argument to SearchMidTerm.
type SearchMidTermInput struct {
	BotID         string
	UserID        string
	Query         string
	TimeRangeDays int
	Limit         int
}

// SearchMidTerm rewrites the query, loads up to 100 most recent rows
// within the time range, ranks them, bumps access_count for every
// returned row, and records the in-process promotion counter
// (spec.md §4.6).
func (m *Manager) SearchMidTerm(ctx context.Context, in SearchMidTermInput) ([]RankItem, error) {
	m.Metrics.RecordMemorySearch("mid_term")
	timeRange := in.TimeRangeDays
	if timeRange <= 0 {
		timeRange = m.TimeRangeDays
	}
	limit := in.Limit
	if limit <= 0 {
		limit = m.SearchLimit
	}

	rewritten := m.rewriter.RewriteForMidTerm(ctx, in.Query)

	cutoff := time.Now().Add(-time.Duration(timeRange) * 24 * time.Hour)
	results, err := m.storage.Execute(ctx, []storage.Op{{Select: &storage.SelectOp{
		Table: midTermTable,
		Where: storage.Where{
			RawClause: "bot_id = ? AND user_id = ? AND created_at >= ?",
			RawParams: []storage.TypedValue{
				storage.StringValue(in.BotID),
				storage.StringValue(in.UserID),
				storage.TimeValue(cutoff),
			},
		},
		OrderBy: "created_at DESC",
		Limit:   midTermRecentCap,
	}}}, false)
	if err != nil {
		return nil, fmt.Errorf("memory: search mid-term: %w", err)
	}
	if len(results) == 0 || results[0].Err != nil {
		if len(results) > 0 {
			return nil, fmt.Errorf("memory: search mid-term: %w", results[0].Err)
		}
		return nil, nil
	}

	items := make([]RankItem, 0, len(results[0].Rows))
	for _, row := range results[0].Rows {
		var raw []protocol.Message
		_ = json.Unmarshal(row["raw_messages"].Bytes, &raw)

		items = append(items, RankItem{
			ID:          row["id"].Str,
			Source:      SourceMidTerm,
			Content:     row["summary"].Str,
			RawContent:  joinTranscript(raw),
			CreatedAt:   row["created_at"].Time,
			AccessCount: int(row["access_count"].Int),
			Keywords:    splitKeywords(row["keywords"].Str),
		})
	}

	ranked := m.ranker.RankMidTerm(rewritten, items, limit)

	m.mu.Lock()
	for _, it := range ranked {
		m.accessed[it.ID]++
	}
	m.mu.Unlock()

	for _, it := range ranked {
		_, _ = m.storage.Execute(ctx, []storage.Op{{Update: &storage.UpdateOp{
			Table:        midTermTable,
			RawSet:       "access_count = access_count + 1",
			Where:        storage.Where{Conditions: map[string]storage.TypedValue{"id": storage.StringValue(it.ID)}},
		}}}, false)
	}

	return ranked, nil
}

// SearchLongTermInput is the argument to SearchLongTerm.
type SearchLongTermInput struct {
	BotID      string
	UserID     string
	Query      string
	Limit      int
	Type       MemoryType // optional filter; empty means no filter
	MinScore   float64
	MinImportance int
}

// SearchLongTerm rewrites the query for embedding, over-recalls 3x the
// limit from the ANN index scoped to the bot's partition, filters by
// exact user_id (and optional memory_type), ranks, dedups, and filters
// by minimum score/importance (spec.md §4.6).
func (m *Manager) SearchLongTerm(ctx context.Context, in SearchLongTermInput) ([]RankItem, error) {
	m.Metrics.RecordMemorySearch("long_term")
	limit := in.Limit
	if limit <= 0 {
		limit = m.SearchLimit
	}
	minScore := in.MinScore
	if minScore <= 0 {
		minScore = m.MinScore
	}

	rewritten := m.rewriter.RewriteForLongTerm(ctx, in.Query)
	vecs, err := m.llm.Embed(ctx, []string{rewritten})
	if err != nil || len(vecs) == 0 {
		return nil, fmt.Errorf("memory: embed query: %w", err)
	}

	results, err := m.storage.ExecuteVector(ctx, []storage.VectorOp{{Search: &storage.VectorSearchOp{
		Collection: vectorCollection,
		Query:      vecs[0],
		TopK:       limit * overRecallFactor,
		Partition:  vector.Partition(in.BotID),
	}}})
	if err != nil {
		return nil, fmt.Errorf("memory: search long-term: %w", err)
	}
	if len(results) == 0 || results[0].Err != nil {
		if len(results) > 0 {
			return nil, fmt.Errorf("memory: search long-term: %w", results[0].Err)
		}
		return nil, nil
	}

	items := make([]RankItem, 0, len(results[0].SearchResults))
	for _, hit := range results[0].SearchResults {
		if asString(hit.Metadata["user_id"]) != in.UserID {
			continue
		}
		memType := MemoryType(asString(hit.Metadata["memory_type"]))
		if in.Type != "" && memType != in.Type {
			continue
		}

		var extra LongTermExtra
		_ = json.Unmarshal([]byte(asString(hit.Metadata["metadata"])), &extra)

		content := asString(hit.Metadata["content"])
		rawContent := content
		if extra.Source == "mid_term" && len(extra.RawMessages) > 0 {
			var raw []protocol.Message
			_ = json.Unmarshal(extra.RawMessages, &raw)
			rawContent = joinTranscript(raw)
		}

		created, _ := time.Parse(time.RFC3339, asString(hit.Metadata["created_at"]))

		items = append(items, RankItem{
			ID:          hit.ID,
			Source:      SourceLongTerm,
			Content:     content,
			RawContent:  rawContent,
			VectorScore: hit.Score,
			CreatedAt:   created,
			Importance:  extra.Importance,
			Keywords:    extra.Tags,
		})
	}

	ranked := m.ranker.RankLongTerm(rewritten, items, len(items))

	filtered := make([]RankItem, 0, limit)
	for _, it := range ranked {
		if it.FinalScore < minScore {
			continue
		}
		if in.MinImportance > 0 && it.Importance < in.MinImportance {
			continue
		}
		filtered = append(filtered, it)
		if len(filtered) >= limit {
			break
		}
	}
	return filtered, nil
}

// RecentMidTermInput is the argument to RecentMidTerm.
type RecentMidTermInput struct {
	BotID  string
	UserID string
	Limit  int
}

// RecentMidTerm fetches the N most recent mid-term summaries by
// created_at, unranked — used to seed an agent's system prompt with
// recent context rather than to answer a specific query.
func (m *Manager) RecentMidTerm(ctx context.Context, in RecentMidTermInput) ([]RankItem, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = m.SearchLimit
	}

	results, err := m.storage.Execute(ctx, []storage.Op{{Select: &storage.SelectOp{
		Table: midTermTable,
		Where: storage.Where{Conditions: map[string]storage.TypedValue{
			"bot_id":  storage.StringValue(in.BotID),
			"user_id": storage.StringValue(in.UserID),
		}},
		OrderBy: "created_at DESC",
		Limit:   limit,
	}}}, false)
	if err != nil {
		return nil, fmt.Errorf("memory: recent mid-term: %w", err)
	}
	if len(results) == 0 || results[0].Err != nil {
		if len(results) > 0 {
			return nil, fmt.Errorf("memory: recent mid-term: %w", results[0].Err)
		}
		return nil, nil
	}

	items := make([]RankItem, 0, len(results[0].Rows))
	for _, row := range results[0].Rows {
		items = append(items, RankItem{
			ID:        row["id"].Str,
			Source:    SourceMidTerm,
			Content:   row["summary"].Str,
			CreatedAt: row["created_at"].Time,
			Keywords:  splitKeywords(row["keywords"].Str),
		})
	}
	return items, nil
}

// PromoteDue selects every mid-term id whose in-process access counter
// has reached promotionThreshold, promotes it to a long-term record,
// and clears the counter. Promotion failures are logged, not
// propagated (spec.md §4.6).
func (m *Manager) PromoteDue(ctx context.Context, botID, userID string) {
	m.mu.Lock()
	due := make([]string, 0)
	for id, count := range m.accessed {
		if count >= m.PromotionThreshold {
			due = append(due, id)
		}
	}
	for _, id := range due {
		delete(m.accessed, id)
	}
	m.mu.Unlock()

	for _, id := range due {
		err := m.promoteOne(ctx, botID, userID, id)
		m.Metrics.RecordPromotion(botID, err)
		if err != nil {
			slog.Warn("memory: promotion failed", "mid_term_id", id, "error", err)
		}
	}
}

// ClearMidTerm deletes every mid-term summary row for (botID, userID)
// and drops their in-process access counters. It does not touch
// long-term memory: once a fact has been promoted it is durable
// independent of the conversation that produced it.
func (m *Manager) ClearMidTerm(ctx context.Context, botID, userID string) error {
	scope := storage.Where{Conditions: map[string]storage.TypedValue{
		"bot_id":  storage.StringValue(botID),
		"user_id": storage.StringValue(userID),
	}}
	results, err := m.storage.Execute(ctx, []storage.Op{
		{Select: &storage.SelectOp{Table: midTermTable, Fields: []string{"id"}, Where: scope}},
		{Delete: &storage.DeleteOp{Table: midTermTable, Where: scope}},
	}, false)
	if err != nil {
		return fmt.Errorf("memory: clear mid-term: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(results) > 0 {
		for _, row := range results[0].Rows {
			delete(m.accessed, row["id"].Str)
		}
	}
	return nil
}

func (m *Manager) promoteOne(ctx context.Context, botID, userID, midID string) error {
	results, err := m.storage.Execute(ctx, []storage.Op{{Select: &storage.SelectOp{
		Table: midTermTable,
		Where: storage.Where{Conditions: map[string]storage.TypedValue{"id": storage.StringValue(midID)}},
		Limit: 1,
	}}}, false)
	if err != nil {
		return fmt.Errorf("fetch mid-term row: %w", err)
	}
	if len(results) == 0 || results[0].Err != nil || len(results[0].Rows) == 0 {
		return fmt.Errorf("mid-term row %s not found", midID)
	}
	row := results[0].Rows[0]

	summary := row["summary"].Str
	rawMessages := row["raw_messages"].Bytes

	normalized := m.rewriter.NormalizeForStorage(ctx, summary)
	vecs, err := m.llm.Embed(ctx, []string{normalized})
	if err != nil || len(vecs) == 0 {
		return fmt.Errorf("embed summary: %w", err)
	}

	newID := "mem_" + uuid.NewString()
	extra := LongTermExtra{
		Importance:        5,
		Source:            "mid_term",
		NormalizedContent: normalized,
		RawMessages:       rawMessages,
		SourceID:          midID,
	}

	if err := m.insertLongTerm(ctx, newID, botID, userID, MemoryTypePromoted, summary, vecs[0], extra); err != nil {
		return fmt.Errorf("insert promoted record: %w", err)
	}

	_, err = m.storage.Execute(ctx, []storage.Op{{Delete: &storage.DeleteOp{
		Table: midTermTable,
		Where: storage.Where{Conditions: map[string]storage.TypedValue{"id": storage.StringValue(midID)}},
	}}}, false)
	if err != nil {
		return fmt.Errorf("delete promoted mid-term row: %w", err)
	}
	return nil
}

func joinTranscript(msgs []protocol.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func splitKeywords(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// extractJSONObject trims leading/trailing prose around a JSON object,
// matching the teacher's leniency toward models that wrap JSON in
// commentary despite being asked not to.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
