package systemagent

import (
	"context"
	"errors"
	"testing"

	"github.com/CheKilo/bot-agent/pkg/agent"
	"github.com/CheKilo/bot-agent/pkg/llms"
	"github.com/CheKilo/bot-agent/pkg/memory"
	"github.com/CheKilo/bot-agent/pkg/protocol"
	"github.com/CheKilo/bot-agent/pkg/ranker"
	"github.com/CheKilo/bot-agent/pkg/rewriter"
	"github.com/CheKilo/bot-agent/pkg/storage"
)

type scriptedLLM struct {
	replies []string
	calls   int
}

func (s *scriptedLLM) Chat(ctx context.Context, req llms.ChatRequest) (llms.ChatResponse, error) {
	if s.calls >= len(s.replies) {
		return llms.ChatResponse{}, errors.New("scriptedLLM: out of replies")
	}
	r := s.replies[s.calls]
	s.calls++
	return llms.ChatResponse{Content: r}, nil
}

func (s *scriptedLLM) Stream(ctx context.Context, req llms.ChatRequest) (<-chan llms.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func (s *scriptedLLM) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1}
	}
	return out, nil
}

type emptyStore struct{}

func (emptyStore) Execute(ctx context.Context, ops []storage.Op, useTransaction bool) ([]storage.OpResult, error) {
	return make([]storage.OpResult, len(ops)), nil
}

func (emptyStore) ExecuteVector(ctx context.Context, ops []storage.VectorOp) ([]storage.VectorOpResult, error) {
	return make([]storage.VectorOpResult, len(ops)), nil
}

type stubAgent struct {
	agentName, agentDesc string
	reply                protocol.AgentResponse
	lastMsg              protocol.AgentMessage
}

func (s *stubAgent) AgentName() string        { return s.agentName }
func (s *stubAgent) AgentDescription() string { return s.agentDesc }
func (s *stubAgent) Invoke(ctx context.Context, msg protocol.AgentMessage) protocol.AgentResponse {
	s.lastMsg = msg
	return s.reply
}

func newTestAgent(llm *scriptedLLM, memAgent, charAgent *stubAgent) *Agent {
	reg := agent.NewRegistry()
	reg.Register(memAgent)
	reg.Register(charAgent)

	client := llms.NewClient(llm, "m", "e")
	mgr := memory.NewManager(client, rewriter.New(client), ranker.New(), emptyStore{})
	return New("bot1", "user1", reg, client, mgr)
}

func TestSystemAgentDispatchesMemoryThenCharacter(t *testing.T) {
	memAgent := &stubAgent{agentName: "memory_agent", agentDesc: "recalls things",
		reply: protocol.AgentResponse{Success: true, Content: "User's name is Alex"}}
	charAgent := &stubAgent{agentName: "character_agent", agentDesc: "replies in character",
		reply: protocol.AgentResponse{Success: true, Content: "Hello Alex!"}}

	llm := &scriptedLLM{replies: []string{
		"Thought: recall first\nAction: call_agent\nAction Input: {\"agent_name\": \"memory_agent\", \"input\": \"hi\"}",
		"Thought: now reply\nAction: call_agent\nAction Input: {\"agent_name\": \"character_agent\", \"input\": \"hi\", \"metadata\": {\"memory_context\": \"User's name is Alex\"}}",
		"Thought: done\nFinal Answer: Hello Alex!",
	}}

	a := newTestAgent(llm, memAgent, charAgent)

	resp := a.Invoke(context.Background(), protocol.AgentMessage{Content: "hi"})
	if !resp.Success {
		t.Fatalf("expected success, got error: %s", resp.Error)
	}
	if resp.Content != "Hello Alex!" {
		t.Errorf("unexpected reply: %q", resp.Content)
	}

	if charAgent.lastMsg.Metadata["memory_context"] != "User's name is Alex" {
		t.Errorf("expected memory_context forwarded to character agent, got %v", charAgent.lastMsg.Metadata)
	}

	msgs := a.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 buffered messages (user+assistant), got %d", len(msgs))
	}
	if msgs[0].Role != protocol.RoleUser || msgs[1].Role != protocol.RoleAssistant {
		t.Errorf("unexpected message roles: %v, %v", msgs[0].Role, msgs[1].Role)
	}
}

func TestSystemAgentSummarizesOnceWindowFull(t *testing.T) {
	memAgent := &stubAgent{agentName: "memory_agent", agentDesc: "recalls things",
		reply: protocol.AgentResponse{Success: true, Content: "nothing relevant"}}
	charAgent := &stubAgent{agentName: "character_agent", agentDesc: "replies in character",
		reply: protocol.AgentResponse{Success: true, Content: "Hi!"}}

	llm := &scriptedLLM{replies: []string{
		"Thought: recall\nAction: call_agent\nAction Input: {\"agent_name\": \"memory_agent\", \"input\": \"hi\"}",
		"Thought: reply\nAction: call_agent\nAction Input: {\"agent_name\": \"character_agent\", \"input\": \"hi\"}",
		"Thought: done\nFinal Answer: Hi!",
		`{"summary":"brief chat","keywords":["greeting"]}`,
	}}

	a := newTestAgent(llm, memAgent, charAgent)
	a.SetMessageWindow(1)

	resp := a.Invoke(context.Background(), protocol.AgentMessage{Content: "hi"})
	if !resp.Success {
		t.Fatalf("expected success, got error: %s", resp.Error)
	}

	if msgs := a.Messages(); len(msgs) != 0 {
		t.Errorf("expected buffer cleared after summarisation, got %d messages", len(msgs))
	}
}

func TestAgentNameAndDescription(t *testing.T) {
	a := newTestAgent(&scriptedLLM{}, &stubAgent{agentName: "memory_agent"}, &stubAgent{agentName: "character_agent"})
	if a.AgentName() != "system_agent" {
		t.Errorf("unexpected name: %s", a.AgentName())
	}
	if a.AgentDescription() == "" {
		t.Error("expected non-empty description")
	}
}
