package reasoning

import (
	"context"
	"errors"
	"testing"

	"github.com/CheKilo/bot-agent/pkg/llms"
	"github.com/CheKilo/bot-agent/pkg/protocol"
	"github.com/CheKilo/bot-agent/pkg/tools"
)

// scriptedLLM returns one reply per Chat call, in order, and records
// how many times it was called.
type scriptedLLM struct {
	replies []string
	calls   int
}

func (s *scriptedLLM) Chat(ctx context.Context, req llms.ChatRequest) (llms.ChatResponse, error) {
	if s.calls >= len(s.replies) {
		return llms.ChatResponse{}, errors.New("scriptedLLM: out of replies")
	}
	reply := s.replies[s.calls]
	s.calls++
	return llms.ChatResponse{Content: reply}, nil
}

func (s *scriptedLLM) Stream(ctx context.Context, req llms.ChatRequest) (<-chan llms.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func (s *scriptedLLM) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func TestLoopRepairsThoughtOnlyThenInvokesTool(t *testing.T) {
	invoked := 0
	toolkit := tools.NewToolkit(tools.New("echo", "echoes input", nil, func(ctx context.Context, args map[string]any) protocol.ToolResult {
		invoked++
		return protocol.Ok("done")
	}))

	llm := &scriptedLLM{replies: []string{
		"Thought: think",
		"Thought: now acting\nAction: echo\nAction Input: {}",
		"Thought: wrapping up\nFinal Answer: the final answer text",
	}}

	engine := NewEngine(llms.NewClient(llm, "m", "e"), toolkit)
	result := engine.Run(context.Background(), "system prompt", nil)

	if !result.Success {
		t.Fatalf("expected success, got failure trace: %+v", result.Trace)
	}
	if invoked != 1 {
		t.Errorf("expected tool invoked exactly once, got %d", invoked)
	}
	if llm.calls != 3 {
		t.Errorf("expected 3 LLM calls (iteration count), got %d", llm.calls)
	}
}

func TestLoopRejectsEarlyFinalAnswerWithNonEmptyToolkit(t *testing.T) {
	toolkit := tools.NewToolkit(tools.New("echo", "echoes input", nil, func(ctx context.Context, args map[string]any) protocol.ToolResult {
		return protocol.Ok("done")
	}))

	llm := &scriptedLLM{replies: []string{
		"Thought: t\nFinal Answer: hello there",
		"Thought: acting\nAction: echo\nAction Input: {}",
		"Thought: now valid\nFinal Answer: hello there again",
	}}

	engine := NewEngine(llms.NewClient(llm, "m", "e"), toolkit)
	result := engine.Run(context.Background(), "system prompt", nil)

	if !result.Success {
		t.Fatalf("expected eventual success, got failure: %+v", result.Trace)
	}
	if len(result.Trace.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(result.Trace.Steps))
	}
	if result.Trace.Steps[0].RepairReason == "" {
		t.Error("expected the first iteration to produce a repair reason")
	}
}

func TestLoopExhaustsIterationBudget(t *testing.T) {
	toolkit := tools.NewToolkit()
	llm := &scriptedLLM{replies: []string{
		"Thought: 1", "Thought: 2", "Thought: 3",
	}}

	engine := NewEngine(llms.NewClient(llm, "m", "e"), toolkit)
	engine.MaxIterations = 3
	result := engine.Run(context.Background(), "system prompt", nil)

	if result.Success {
		t.Fatal("expected failure on iteration exhaustion")
	}
	if len(result.Trace.Steps) != 3 {
		t.Errorf("expected 3 steps, got %d", len(result.Trace.Steps))
	}
}

func TestLoopFinalAnswerAcceptedWithEmptyToolkit(t *testing.T) {
	toolkit := tools.NewToolkit()
	llm := &scriptedLLM{replies: []string{"Thought: t\nFinal Answer: hello there"}}

	engine := NewEngine(llms.NewClient(llm, "m", "e"), toolkit)
	result := engine.Run(context.Background(), "system prompt", nil)

	if !result.Success {
		t.Fatalf("expected immediate success with empty toolkit, got: %+v", result.Trace)
	}
	if result.Text != "hello there" {
		t.Errorf("unexpected final text: %q", result.Text)
	}
}
