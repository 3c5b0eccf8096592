// Package bm25 implements the small-corpus BM25 index used to rank
// mid-term memory candidates: CJK-aware tokenisation, canonical Okapi
// BM25 for normal corpora, and a unigram hit-ratio fallback for the
// tiny corpora a single session's recent summaries usually produce.
package bm25

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// smallCorpusThreshold is the document count at or below which
// BM25's IDF term is degenerate (can go negative) and the index falls
// back to a hit-ratio score instead. This is a correctness property,
// not a tuning knob.
const smallCorpusThreshold = 3

const (
	k1 = 1.5
	b  = 0.75
)

// Doc is one fitted document.
type Doc struct {
	ID       string
	Text     string
	Keywords []string
}

// Index is fitted once per query batch over a small in-memory corpus.
type Index struct {
	docs     map[string][]string // doc id -> tokens
	docLens  map[string]int
	avgLen   float64
	df       map[string]int // document frequency per token
	n        int
}

// Fit tokenises every document (text enriched with keywords) and
// builds the statistics BM25/fallback scoring need.
func Fit(docs []Doc) *Index {
	idx := &Index{
		docs:    make(map[string][]string, len(docs)),
		docLens: make(map[string]int, len(docs)),
		df:      make(map[string]int),
		n:       len(docs),
	}

	var totalLen int
	for _, d := range docs {
		text := d.Text
		if len(d.Keywords) > 0 {
			text = text + " " + strings.Join(d.Keywords, " ")
		}
		toks := Tokenize(text)
		idx.docs[d.ID] = toks
		idx.docLens[d.ID] = len(toks)
		totalLen += len(toks)

		seen := make(map[string]struct{}, len(toks))
		for _, t := range toks {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			idx.df[t]++
		}
	}
	if idx.n > 0 {
		idx.avgLen = float64(totalLen) / float64(idx.n)
	}
	return idx
}

// Score returns a doc_id -> score mapping for the query over every
// fitted document.
func (idx *Index) Score(query string) map[string]float64 {
	qTokens := Tokenize(query)
	scores := make(map[string]float64, len(idx.docs))

	if idx.n <= smallCorpusThreshold {
		qSet := toSet(qTokens)
		for id, toks := range idx.docs {
			scores[id] = hitRatio(qSet, toSet(toks))
		}
		return scores
	}

	qCounts := counts(qTokens)
	for id, toks := range idx.docs {
		scores[id] = idx.okapiScore(qCounts, toks, idx.docLens[id])
	}
	return scores
}

// TopK returns doc ids sorted by descending score, truncated to k.
func (idx *Index) TopK(query string, k int) []ScoredDoc {
	scores := idx.Score(query)
	out := make([]ScoredDoc, 0, len(scores))
	for id, s := range scores {
		out = append(out, ScoredDoc{ID: id, Score: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// ScoredDoc is one ranked result from TopK.
type ScoredDoc struct {
	ID    string
	Score float64
}

func (idx *Index) okapiScore(qCounts map[string]int, docTokens []string, docLen int) float64 {
	dCounts := counts(docTokens)
	var score float64
	for term, qf := range qCounts {
		_ = qf
		f, ok := dCounts[term]
		if !ok {
			continue
		}
		df := idx.df[term]
		idf := math.Log(1 + (float64(idx.n)-float64(df)+0.5)/(float64(df)+0.5))
		denom := float64(f) + k1*(1-b+b*float64(docLen)/idx.avgLen)
		score += idf * (float64(f) * (k1 + 1)) / denom
	}
	return score
}

func hitRatio(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	var hits int
	for t := range query {
		if _, ok := doc[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

func counts(tokens []string) map[string]int {
	m := make(map[string]int, len(tokens))
	for _, t := range tokens {
		m[t]++
	}
	return m
}

func toSet(tokens []string) map[string]struct{} {
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// stopWords covers high-frequency Chinese particles and punctuation
// that would otherwise dominate every document's token set.
var stopWords = map[string]struct{}{
	"的": {}, "了": {}, "是": {}, "我": {}, "你": {}, "他": {}, "她": {},
	"在": {}, "和": {}, "就": {}, "都": {}, "而": {}, "及": {}, "与": {},
	"着": {}, "或": {}, "一个": {}, "也": {}, "这": {}, "那": {}, "啊": {},
	"吧": {}, "呢": {}, "嗯": {},
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "to": {}, "of": {},
	"and": {}, "in": {}, "it": {}, "on": {}, "for": {},
}

// isCJK reports whether r is a CJK unified ideograph.
func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r)
}

// Tokenize performs CJK-aware "search mode" segmentation: runs of CJK
// characters are split into overlapping bigrams/the full run (approximating
// a search-mode word breaker without an external dictionary), Latin
// text is split on whitespace/punctuation, and every CJK token longer
// than two characters is additionally expanded into its single
// characters so that single-character queries still hit. Stop words
// and pure punctuation are filtered throughout.
func Tokenize(text string) []string {
	var tokens []string
	var cjkRun []rune
	var latinRun []rune

	flushLatin := func() {
		if len(latinRun) == 0 {
			return
		}
		w := strings.ToLower(string(latinRun))
		latinRun = latinRun[:0]
		if _, stop := stopWords[w]; stop || w == "" {
			return
		}
		tokens = append(tokens, w)
	}

	flushCJK := func() {
		if len(cjkRun) == 0 {
			return
		}
		run := cjkRun
		cjkRun = nil

		// Search-mode: emit bigrams across the run plus the run itself.
		if len(run) > 1 {
			tokens = append(tokens, string(run))
			for i := 0; i < len(run)-1; i++ {
				bg := string(run[i : i+2])
				if _, stop := stopWords[bg]; !stop {
					tokens = append(tokens, bg)
				}
			}
		} else {
			tokens = append(tokens, string(run))
		}

		// Single-character expansion for every token derived from a run
		// longer than two characters.
		if len(run) > 2 {
			for _, r := range run {
				s := string(r)
				if _, stop := stopWords[s]; !stop {
					tokens = append(tokens, s)
				}
			}
		}
	}

	for _, r := range text {
		switch {
		case isCJK(r):
			flushLatin()
			cjkRun = append(cjkRun, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushCJK()
			latinRun = append(latinRun, r)
		default:
			flushCJK()
			flushLatin()
		}
	}
	flushCJK()
	flushLatin()

	filtered := tokens[:0]
	for _, t := range tokens {
		if _, stop := stopWords[t]; stop {
			continue
		}
		filtered = append(filtered, t)
	}
	return filtered
}
