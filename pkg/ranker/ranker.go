// Package ranker implements the coarse + fine re-ranking for both
// memory tiers described in spec.md §4.5. Every weight, horizon, and
// threshold here is a fixed behavioural constant, not a tuning knob.
package ranker

import (
	"sort"
	"time"

	"github.com/CheKilo/bot-agent/pkg/bm25"
	"github.com/CheKilo/bot-agent/pkg/memory"
)

const (
	midTermBM25Weight  = 0.6
	midTermTimeWeight  = 0.3
	midTermAccessWeight = 0.1

	longTermVectorWeight     = 0.5
	longTermImportanceWeight = 0.25
	longTermContextWeight    = 0.15
	longTermTimeWeight       = 0.1

	midTermHorizon  = 30 * 24 * time.Hour
	longTermHorizon = 365 * 24 * time.Hour

	timeDecayFloor = 0.1

	defaultMinScoreThreshold = 0.1
	smallCorpusMinScoreFloor = 0.01
	smallCorpusThreshold     = 3
	dedupPrefixLen           = 100
)

// Ranker re-ranks RankItem batches for either memory tier.
type Ranker struct {
	now func() time.Time
}

func New() *Ranker {
	return &Ranker{now: time.Now}
}

// RankMidTerm implements spec.md §4.5's mid-term ranking: BM25 over
// raw_content (falling back to content) enriched with keywords,
// normalised to [0,1], filtered by a relaxed-for-small-batches
// threshold, deduplicated on the first 100 characters of content
// keeping the highest BM25, and scored 0.6*bm25 + 0.3*time_decay +
// 0.1*access.
func (r *Ranker) RankMidTerm(query string, items []memory.RankItem, topK int) []memory.RankItem {
	if len(items) == 0 {
		return nil
	}

	docs := make([]bm25.Doc, len(items))
	for i, it := range items {
		text := it.RawContent
		if text == "" {
			text = it.Content
		}
		docs[i] = bm25.Doc{ID: it.ID, Text: text, Keywords: it.Keywords}
	}
	idx := bm25.Fit(docs)
	scores := idx.Score(query)

	var maxBM25, maxAccess float64
	for _, it := range items {
		if s := scores[it.ID]; s > maxBM25 {
			maxBM25 = s
		}
		if float64(it.AccessCount) > maxAccess {
			maxAccess = float64(it.AccessCount)
		}
	}

	threshold := defaultMinScoreThreshold
	if len(items) <= smallCorpusThreshold {
		threshold = smallCorpusMinScoreFloor
	}

	now := r.now()
	ranked := make([]memory.RankItem, 0, len(items))
	for _, it := range items {
		bm := scores[it.ID]
		normBM := 0.0
		if maxBM25 > 0 {
			normBM = bm / maxBM25
		}
		if normBM < threshold {
			continue
		}

		age := now.Sub(it.CreatedAt)
		timeDecay := clamp(1-age.Seconds()/midTermHorizon.Seconds(), timeDecayFloor, 1.0)

		access := 0.0
		if maxAccess > 0 {
			access = float64(it.AccessCount) / maxAccess
		}

		it.BM25Score = normBM
		it.FinalScore = midTermBM25Weight*normBM + midTermTimeWeight*timeDecay + midTermAccessWeight*access
		ranked = append(ranked, it)
	}

	ranked = dedupeByPrefix(ranked, func(it memory.RankItem) float64 { return it.BM25Score })

	sort.Slice(ranked, func(i, j int) bool { return ranked[i].FinalScore > ranked[j].FinalScore })
	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

// RankLongTerm implements spec.md §4.5's long-term ranking: vector
// score normalised to [0,1], importance scaled from [1,10] to [0,1],
// context overlap ratio against query tokens, a 365-day time decay,
// combined as 0.5*vector + 0.25*importance + 0.15*context + 0.1*time,
// sorted descending and truncated to topK.
func (r *Ranker) RankLongTerm(query string, items []memory.RankItem, topK int) []memory.RankItem {
	if len(items) == 0 {
		return nil
	}

	var maxVector float64
	for _, it := range items {
		if it.VectorScore > maxVector {
			maxVector = it.VectorScore
		}
	}

	queryTokens := toSet(bm25.Tokenize(query))
	now := r.now()

	ranked := make([]memory.RankItem, len(items))
	copy(ranked, items)
	for i, it := range ranked {
		vec := 0.0
		if maxVector > 0 {
			vec = it.VectorScore / maxVector
		}

		importance := it.Importance
		if importance < 1 {
			importance = 1
		}
		if importance > 10 {
			importance = 10
		}
		importanceScore := float64(importance-1) / 9.0

		contextTokens := toSet(bm25.Tokenize(it.RawContent))
		contextScore := 0.0
		if len(queryTokens) > 0 {
			var hits int
			for t := range queryTokens {
				if _, ok := contextTokens[t]; ok {
					hits++
				}
			}
			contextScore = float64(hits) / float64(len(queryTokens))
		}

		age := now.Sub(it.CreatedAt)
		timeDecay := clamp(1-age.Seconds()/longTermHorizon.Seconds(), timeDecayFloor, 1.0)

		ranked[i].VectorScore = vec
		ranked[i].FinalScore = longTermVectorWeight*vec +
			longTermImportanceWeight*importanceScore +
			longTermContextWeight*contextScore +
			longTermTimeWeight*timeDecay
	}

	ranked = dedupeByPrefix(ranked, func(it memory.RankItem) float64 { return it.FinalScore })

	sort.Slice(ranked, func(i, j int) bool { return ranked[i].FinalScore > ranked[j].FinalScore })
	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

// dedupeByPrefix keeps, for every group of items sharing the first
// dedupPrefixLen characters of Content, only the item with the highest
// score as returned by score.
func dedupeByPrefix(items []memory.RankItem, score func(memory.RankItem) float64) []memory.RankItem {
	best := make(map[string]memory.RankItem)
	order := make([]string, 0, len(items))
	for _, it := range items {
		key := prefix(it.Content, dedupPrefixLen)
		cur, exists := best[key]
		if !exists {
			order = append(order, key)
			best[key] = it
			continue
		}
		if score(it) > score(cur) {
			best[key] = it
		}
	}

	out := make([]memory.RankItem, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func toSet(tokens []string) map[string]struct{} {
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}
