// Package rewriter implements the LLM-driven query rewriting and
// storage normalisation described in spec.md §4.4. Every operation is
// a single low-temperature LLM call with a strict output contract; on
// any parse or transport error it returns the original input
// unchanged rather than raising, so callers never need a fallback
// path of their own.
package rewriter

import (
	"context"
	"strings"
	"time"

	"github.com/CheKilo/bot-agent/pkg/llms"
	"github.com/CheKilo/bot-agent/pkg/protocol"
)

const rewriteTemperature = 0.3

// Clock abstracts "now" so rewrite_for_mid_term's relative-date
// resolution is testable.
type Clock func() time.Time

// Rewriter performs query rewriting and storage normalisation.
type Rewriter struct {
	llm   *llms.Client
	clock Clock
}

func New(llm *llms.Client) *Rewriter {
	return &Rewriter{llm: llm, clock: time.Now}
}

// WithClock overrides the wall-clock used for relative-date
// resolution (tests only).
func (r *Rewriter) WithClock(c Clock) *Rewriter {
	r.clock = c
	return r
}

// RewriteForMidTerm resolves relative time references ("yesterday",
// "last week") against the current wall-clock and de-colloquialises
// the query into a single BM25-ready line.
func (r *Rewriter) RewriteForMidTerm(ctx context.Context, query string) string {
	now := r.clock()
	prompt := []protocol.Message{
		{Role: protocol.RoleSystem, Content: "You rewrite a user query for keyword search over dialogue summaries. " +
			"Resolve relative time references (e.g. 'yesterday', 'last week') to absolute dates using the current " +
			"date below, and rewrite colloquial phrasing into plain factual language. Output exactly one line: the " +
			"rewritten query, nothing else.\n\nCurrent date: " + now.Format("2006-01-02")},
		{Role: protocol.RoleUser, Content: query},
	}

	out, err := r.llm.ChatText(ctx, prompt, rewriteTemperature)
	if err != nil || strings.TrimSpace(out) == "" {
		return query
	}
	return firstLine(out)
}

// RewriteForLongTerm extracts core semantics and strips temporal and
// colloquial tokens, producing a short, dense string suitable for
// embedding.
func (r *Rewriter) RewriteForLongTerm(ctx context.Context, query string) string {
	prompt := []protocol.Message{
		{Role: protocol.RoleSystem, Content: "You rewrite a user query for semantic (embedding) search over long-term " +
			"facts. Extract the core semantic content only: strip temporal references, filler words, and colloquial " +
			"phrasing. Output exactly one line: the rewritten query, nothing else."},
		{Role: protocol.RoleUser, Content: query},
	}

	out, err := r.llm.ChatText(ctx, prompt, rewriteTemperature)
	if err != nil || strings.TrimSpace(out) == "" {
		return query
	}
	return firstLine(out)
}

// NormalizeForStorage rewrites a memory-to-be-stored into third-person
// factual form so stored vectors live in the same semantic space as
// long-term queries. The caller keeps the original content separately
// for display (invariant: vector = embed(normalized), display = content).
func (r *Rewriter) NormalizeForStorage(ctx context.Context, content string) string {
	prompt := []protocol.Message{
		{Role: protocol.RoleSystem, Content: "Rewrite the following memory into third-person factual form suitable " +
			"for a knowledge base entry (e.g. 'User mentioned that ...' -> 'The user ...'). Output exactly one line: " +
			"the rewritten fact, nothing else."},
		{Role: protocol.RoleUser, Content: content},
	}

	out, err := r.llm.ChatText(ctx, prompt, rewriteTemperature)
	if err != nil || strings.TrimSpace(out) == "" {
		return content
	}
	return firstLine(out)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
