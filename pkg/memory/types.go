// Package memory implements the three-tier memory engine: a mid-term
// store (text + keywords, BM25 retrieval) and a long-term store
// (vector embeddings, ANN retrieval), with promotion from mid to long.
package memory

import "time"

// MemoryType classifies a long-term record.
type MemoryType string

const (
	MemoryTypePreference MemoryType = "preference"
	MemoryTypeFact        MemoryType = "fact"
	MemoryTypeEvent        MemoryType = "event"
	MemoryTypePromoted     MemoryType = "promoted"
)

// MidTermRecord is one relational row summarising a past dialogue
// window. (bot_id,user_id) scopes every read.
type MidTermRecord struct {
	ID           string
	BotID        string
	UserID       string
	Summary      string
	Keywords     []string
	RawMessages  []byte // JSON-encoded []protocol.Message
	MessageCount int
	StartTime    time.Time
	EndTime      time.Time
	AccessCount  int
	CreatedAt    time.Time
}

// LongTermExtra is the JSON payload carried in LongTermRecord.Extra.
type LongTermExtra struct {
	Importance        int      `json:"importance"`
	Tags              []string `json:"tags,omitempty"`
	Source            string   `json:"source"` // "agent" | "mid_term"
	NormalizedContent string   `json:"normalized_content"`
	RawMessages       []byte   `json:"raw_messages,omitempty"`
	SourceID          string   `json:"source_id,omitempty"`
}

// LongTermRecord is one vector-store row: a vectorised, importance
// tagged fact. Vector is generated from Extra.NormalizedContent, never
// from Content directly.
type LongTermRecord struct {
	ID        string
	BotID     string
	UserID    string
	Type      MemoryType
	CreatedAt time.Time
	Content   string
	Vector    []float32
	Extra     LongTermExtra
}

// RankSource identifies which tier a RankItem came from.
type RankSource string

const (
	SourceMidTerm  RankSource = "mid_term"
	SourceLongTerm RankSource = "long_term"
)

// RankItem is the unified in-memory shape the Ranker consumes
// regardless of originating tier. It never persists.
type RankItem struct {
	ID          string
	Source      RankSource
	Content     string
	RawContent  string
	BM25Score   float64
	VectorScore float64
	FinalScore  float64
	CreatedAt   time.Time
	AccessCount int
	Importance  int
	Keywords    []string
	Metadata    map[string]any
}
