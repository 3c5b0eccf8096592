// Package memoryagent implements the stateless memory agent (spec.md
// §4.9): one ReAct loop per invoke, searching both memory tiers and
// optionally storing a new long-term fact, finalised into a short
// labelled text block used as downstream memory_context.
package memoryagent

import (
	"context"
	"fmt"
	"strings"

	"github.com/CheKilo/bot-agent/pkg/llms"
	"github.com/CheKilo/bot-agent/pkg/memory"
	"github.com/CheKilo/bot-agent/pkg/observability"
	"github.com/CheKilo/bot-agent/pkg/protocol"
	"github.com/CheKilo/bot-agent/pkg/reasoning"
	"github.com/CheKilo/bot-agent/pkg/tools"
)

const (
	name              = "memory_agent"
	description       = "Searches short, mid, and long-term memory for relevant context and stores new long-term facts. Call this before generating any reply that might depend on something the user said before."
	recentSummaryN    = 3
	defaultTimeRange  = 90
	defaultSearchSize = 5
)

const systemRules = `You are the memory agent. Your job in every invocation:
1. Call search_memory with a query derived from the current request to find relevant short, mid, and long-term context.
2. If the conversation reveals a new durable fact, preference, or event worth remembering, call store_long_term_memory with it. Otherwise skip this step.
3. Never fabricate memory content that did not come from a tool Observation.
4. Finish with a Final Answer once you have done the above.`

// Agent is the memory agent. BotID scopes every memory operation.
type Agent struct {
	manager *memory.Manager
	llm     *llms.Client
	botID   string
	metrics *observability.Metrics

	// MaxIterations overrides the ReAct loop's iteration budget
	// (cfg.Memory.MaxIterations); zero keeps reasoning's own default.
	MaxIterations int
	// RecentSummaryN overrides how many recent mid-term summaries seed
	// the system prompt (cfg.Memory.RecentSummaryN).
	RecentSummaryN int
}

func New(manager *memory.Manager, llm *llms.Client, botID string) *Agent {
	return &Agent{manager: manager, llm: llm, botID: botID, RecentSummaryN: recentSummaryN}
}

// SetMetrics wires optional turn/tool metrics; a nil Metrics disables recording.
func (a *Agent) SetMetrics(m *observability.Metrics) { a.metrics = m }

func (a *Agent) AgentName() string        { return name }
func (a *Agent) AgentDescription() string { return description }

func (a *Agent) Invoke(ctx context.Context, msg protocol.AgentMessage) protocol.AgentResponse {
	userID := userIDFrom(msg.Metadata)
	history, _ := msg.Metadata[protocol.MetaConversationHistory].([]protocol.Message)

	summaryLimit := a.RecentSummaryN
	if summaryLimit <= 0 {
		summaryLimit = recentSummaryN
	}
	recent, err := a.manager.RecentMidTerm(ctx, memory.RecentMidTermInput{BotID: a.botID, UserID: userID, Limit: summaryLimit})
	if err != nil {
		recent = nil
	}

	systemPrompt := a.buildSystemPrompt(recent, history)

	toolkit := tools.NewToolkit(a.searchMemoryTool(userID), a.storeLongTermTool(userID))

	engine := reasoning.NewEngine(a.llm, toolkit)
	if a.MaxIterations > 0 {
		engine.MaxIterations = a.MaxIterations
	}
	engine.AgentName = name
	engine.Metrics = a.metrics
	engine.Finalize = &reasoning.FinalizeSpec{
		ResponseSchema: responseSchema,
		Format:         formatFinalOutput,
	}

	seed := []protocol.Message{{Role: protocol.RoleUser, Content: msg.Content}}
	result := engine.Run(ctx, systemPrompt, seed)
	if !result.Success {
		return protocol.AgentResponse{Success: false, Error: "memory_agent: exhausted iteration budget without a Final Answer"}
	}
	return protocol.AgentResponse{Success: true, Content: result.Text}
}

func (a *Agent) buildSystemPrompt(recent []memory.RankItem, history []protocol.Message) string {
	var sb strings.Builder
	sb.WriteString(systemRules)

	if len(recent) > 0 {
		sb.WriteString("\n\nRecent mid-term summaries:\n")
		for _, r := range recent {
			fmt.Fprintf(&sb, "- %s\n", r.Content)
		}
	}

	if len(history) > 0 {
		sb.WriteString("\nRecent conversation (short-term memory):\n")
		for _, m := range history {
			fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
		}
	}
	return sb.String()
}

func (a *Agent) searchMemoryTool(userID string) tools.Tool {
	return tools.New(
		"search_memory",
		"Searches mid-term and long-term memory for a query and returns a merged structure of hits.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":           map[string]any{"type": "string"},
				"time_range_days": map[string]any{"type": "integer"},
				"limit":           map[string]any{"type": "integer"},
			},
			"required": []string{"query"},
		},
		func(ctx context.Context, args map[string]any) protocol.ToolResult {
			query, _ := args["query"].(string)
			if query == "" {
				return protocol.Fail("search_memory: query is required")
			}
			timeRange := intArg(args, "time_range_days", defaultTimeRange)
			limit := intArg(args, "limit", defaultSearchSize)

			mid, midErr := a.manager.SearchMidTerm(ctx, memory.SearchMidTermInput{
				BotID: a.botID, UserID: userID, Query: query, TimeRangeDays: timeRange, Limit: limit,
			})
			if midErr != nil {
				mid = nil
			}

			long, longErr := a.manager.SearchLongTerm(ctx, memory.SearchLongTermInput{
				BotID: a.botID, UserID: userID, Query: query, Limit: limit,
			})
			if longErr != nil {
				long = nil
			}

			return protocol.Ok(map[string]any{
				"mid_term":  renderItems(mid),
				"long_term": renderItems(long),
			})
		},
	)
}

func (a *Agent) storeLongTermTool(userID string) tools.Tool {
	return tools.New(
		"store_long_term_memory",
		"Stores a new durable fact, preference, or event in long-term memory.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content":     map[string]any{"type": "string"},
				"memory_type": map[string]any{"type": "string", "enum": []string{"preference", "fact", "event"}},
				"importance":  map[string]any{"type": "integer"},
			},
			"required": []string{"content"},
		},
		func(ctx context.Context, args map[string]any) protocol.ToolResult {
			content, _ := args["content"].(string)
			if content == "" {
				return protocol.Fail("store_long_term_memory: content is required")
			}
			memType := memory.MemoryTypeFact
			if mt, ok := args["memory_type"].(string); ok && mt != "" {
				memType = memory.MemoryType(mt)
			}
			importance := intArg(args, "importance", 5)

			id, err := a.manager.StoreLongTerm(ctx, memory.StoreLongTermInput{
				BotID: a.botID, UserID: userID, Content: content, Type: memType, Importance: importance,
			})
			if err != nil {
				return protocol.Fail(fmt.Sprintf("store_long_term_memory: %v", err))
			}
			return protocol.Ok(map[string]any{"stored": true, "id": id, "content": content})
		},
	)
}

func renderItems(items []memory.RankItem) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		out = append(out, map[string]any{"content": it.Content, "score": it.FinalScore})
	}
	return out
}

func intArg(args map[string]any, key string, fallback int) int {
	v, ok := args[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return fallback
	}
}

func userIDFrom(metadata map[string]any) string {
	if v, ok := metadata[protocol.MetaUserID].(string); ok {
		return v
	}
	return "default"
}
