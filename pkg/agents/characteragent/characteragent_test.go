package characteragent

import (
	"context"
	"errors"
	"testing"

	"github.com/CheKilo/bot-agent/pkg/llms"
	"github.com/CheKilo/bot-agent/pkg/protocol"
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
	return nil, errors.New("not implemented")
}

func TestCharacterAgentPipelineAndEmotionExtraction(t *testing.T) {
	llm := &scriptedLLM{replies: []string{
		"Thought: analysing\nAction: analyze_emotion\nAction Input: {\"user_input\": \"hi there\"}",
		`{"mood":0.8,"affection":0.5,"energy":0.9,"trust":0.6}`, // analyze_emotion's own LLM call
		"Thought: responding\nAction: generate_response\nAction Input: {\"user_input\": \"hi there\"}",
		"Hello! Great to see you.", // generate_response's own LLM call
		"Thought: done\nFinal Answer: Hello! Great to see you.",
	}}

	client := llms.NewClient(llm, "m", "e")
	agent := New(client, protocol.Persona{Name: "Aria"})

	resp := agent.Invoke(context.Background(), protocol.AgentMessage{Content: "hi there"})
	if !resp.Success {
		t.Fatalf("expected success, got error: %s", resp.Error)
	}
	if resp.Content != "Hello! Great to see you." {
		t.Errorf("unexpected reply: %q", resp.Content)
	}

	emotion, ok := resp.Metadata[protocol.MetaEmotionState].(protocol.Emotion)
	if !ok {
		t.Fatalf("expected emotion_state in metadata, got %v", resp.Metadata)
	}
	if emotion.Mood != 0.8 {
		t.Errorf("unexpected mood: %v", emotion.Mood)
	}
}

func TestCleanReplyStripsPrefixAndQuotes(t *testing.T) {
	got := cleanReply(`Assistant: "Hello there"`)
	if got != "Hello there" {
		t.Errorf("unexpected cleaned reply: %q", got)
	}
}
