// Package systemagent implements the stateful system agent (spec.md
// §4.11): it owns the persistent dialogue buffer, runs one ReAct loop
// per user turn whose only tool is call_agent, and mandates the
// memory_agent -> character_agent -> Final Answer sequence. After each
// turn it trims or summarises the dialogue once the window fills.
package systemagent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/CheKilo/bot-agent/pkg/agent"
	"github.com/CheKilo/bot-agent/pkg/llms"
	"github.com/CheKilo/bot-agent/pkg/memory"
	"github.com/CheKilo/bot-agent/pkg/observability"
	"github.com/CheKilo/bot-agent/pkg/protocol"
	"github.com/CheKilo/bot-agent/pkg/reasoning"
	"github.com/CheKilo/bot-agent/pkg/tools"
)

const (
	name        = "system_agent"
	description = "Orchestrates one dialogue turn: dispatches to the memory agent, then the character agent, then emits a Final Answer."

	DefaultMessageWindow = 20
)

const systemRules = `You are the system orchestrator. You have exactly one tool: call_agent.
Mandatory sequence for every user turn:
1. Call call_agent with agent_name="memory_agent" and input set to the current user message. Its output is the memory_context.
2. Call call_agent with agent_name="character_agent", input set to the current user message, and metadata.memory_context set to the memory agent's output.
3. Emit the character agent's reply verbatim as your Final Answer.

Available agents:
%s`

// Agent is the system agent for one (bot_id, user_id) session.
type Agent struct {
	botID, userID string
	registry      *agent.Registry
	llm           *llms.Client
	manager       *memory.Manager
	messageWindow int
	metrics       *observability.Metrics

	// MaxIterations overrides the ReAct loop's iteration budget
	// (cfg.Memory.MaxIterations); zero keeps reasoning's own default.
	MaxIterations int

	mu       sync.Mutex
	messages []protocol.Message
}

func New(botID, userID string, registry *agent.Registry, llm *llms.Client, manager *memory.Manager) *Agent {
	return &Agent{
		botID: botID, userID: userID,
		registry:      registry,
		llm:           llm,
		manager:       manager,
		messageWindow: DefaultMessageWindow,
	}
}

// SetMetrics wires optional turn/tool metrics; a nil Metrics disables recording.
func (a *Agent) SetMetrics(m *observability.Metrics) { a.metrics = m }

// SetMessageWindow overrides the default trim/summarise threshold.
func (a *Agent) SetMessageWindow(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messageWindow = n
}

// Messages returns a snapshot of the current dialogue buffer.
func (a *Agent) Messages() []protocol.Message {
	return a.snapshot()
}

func (a *Agent) AgentName() string        { return name }
func (a *Agent) AgentDescription() string { return description }

// onUserInput appends the user's turn before the ReAct loop starts, so
// call_agent's auto-injected conversation_history already includes it.
func (a *Agent) onUserInput(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, protocol.Message{Role: protocol.RoleUser, Content: text, Timestamp: time.Now()})
}

// onFinalAnswer appends the assistant's reply, then trims/summarises
// if the window is full.
func (a *Agent) onFinalAnswer(ctx context.Context, text string) {
	a.mu.Lock()
	a.messages = append(a.messages, protocol.Message{Role: protocol.RoleAssistant, Content: text, Timestamp: time.Now()})
	a.mu.Unlock()

	a.maybeSummarize(ctx)
}

// snapshot returns a read view of the dialogue buffer at call time,
// for call_agent's auto-injection (spec.md §4.8 Design Notes: a
// snapshot accessor, never copied eagerly on dispatch).
func (a *Agent) snapshot() []protocol.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]protocol.Message, len(a.messages))
	copy(out, a.messages)
	return out
}

func (a *Agent) Invoke(ctx context.Context, msg protocol.AgentMessage) protocol.AgentResponse {
	a.onUserInput(msg.Content)

	callTool := a.registry.CallAgentTool(func() map[string]any {
		return map[string]any{
			protocol.MetaConversationHistory: a.snapshot(),
			protocol.MetaUserID:              a.userID,
		}
	})
	toolkit := tools.NewToolkit(callTool)

	systemPrompt := fmt.Sprintf(systemRules, a.registry.Describe())

	engine := reasoning.NewEngine(a.llm, toolkit)
	if a.MaxIterations > 0 {
		engine.MaxIterations = a.MaxIterations
	}
	engine.AgentName = name
	engine.Metrics = a.metrics

	seed := []protocol.Message{{Role: protocol.RoleUser, Content: msg.Content}}
	result := engine.Run(ctx, systemPrompt, seed)
	if !result.Success {
		return protocol.AgentResponse{Success: false, Error: "system_agent: exhausted iteration budget without a Final Answer"}
	}

	a.onFinalAnswer(ctx, result.Text)
	return protocol.AgentResponse{Success: true, Content: result.Text}
}

// maybeSummarize counts user turns; once the window is full it
// snapshots the buffer, summarises it into mid-term memory, and
// clears the buffer in place on success. On summariser failure it
// falls back to dropping the oldest user+assistant pair.
func (a *Agent) maybeSummarize(ctx context.Context) {
	a.mu.Lock()
	userCount := 0
	for _, m := range a.messages {
		if m.Role == protocol.RoleUser {
			userCount++
		}
	}
	if userCount < a.messageWindow {
		a.mu.Unlock()
		return
	}
	snapshot := make([]protocol.Message, len(a.messages))
	copy(snapshot, a.messages)
	a.mu.Unlock()

	start := time.Now()
	if len(snapshot) > 0 && !snapshot[0].Timestamp.IsZero() {
		start = snapshot[0].Timestamp
	}

	_, err := a.manager.SaveSummary(ctx, memory.SaveSummaryInput{
		BotID: a.botID, UserID: a.userID,
		Messages: snapshot, RawMessages: snapshot,
		StartTime: start, EndTime: time.Now(),
	})

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.dropOldestPairLocked()
		return
	}
	a.messages = a.messages[:0]
}

func (a *Agent) dropOldestPairLocked() {
	if len(a.messages) > 0 && a.messages[0].Role == protocol.RoleUser {
		a.messages = a.messages[1:]
		if len(a.messages) > 0 && a.messages[0].Role == protocol.RoleAssistant {
			a.messages = a.messages[1:]
		}
	}
}
