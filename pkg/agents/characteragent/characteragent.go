// Package characteragent implements the stateless character agent
// (spec.md §4.10): a mandatory analyze_emotion -> generate_response
// pipeline driven by a persona, finalised into a cleaned plain-text
// reply.
package characteragent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/CheKilo/bot-agent/pkg/llms"
	"github.com/CheKilo/bot-agent/pkg/observability"
	"github.com/CheKilo/bot-agent/pkg/protocol"
	"github.com/CheKilo/bot-agent/pkg/reasoning"
	"github.com/CheKilo/bot-agent/pkg/tools"
)

const (
	name        = "character_agent"
	description = "Analyses the user's emotional state and generates an in-character reply. Always called last, after memory context is available."
)

const systemRules = `You are the character agent. You speak as the persona described below.
Sequence, mandatory, in order:
1. Call analyze_emotion with the user's input (and conversation history if relevant).
2. Call generate_response with the user's input, the emotion you just received, the persona, and the memory context if provided.
Do not call any further tool after generate_response. Your Final Answer must equal the generate_response output verbatim.`

const defaultMaxIterations = 5

// Agent is the character agent.
type Agent struct {
	llm     *llms.Client
	persona protocol.Persona
	metrics *observability.Metrics

	// MaxIterations overrides the ReAct loop's iteration budget
	// (cfg.Memory.CharacterMaxIterations); zero or less uses the default of 5.
	MaxIterations int
}

func New(llm *llms.Client, persona protocol.Persona) *Agent {
	return &Agent{llm: llm, persona: persona, MaxIterations: defaultMaxIterations}
}

// SetMetrics wires optional turn/tool metrics; a nil Metrics disables recording.
func (a *Agent) SetMetrics(m *observability.Metrics) { a.metrics = m }

func (a *Agent) AgentName() string        { return name }
func (a *Agent) AgentDescription() string { return description }

func (a *Agent) Invoke(ctx context.Context, msg protocol.AgentMessage) protocol.AgentResponse {
	history, _ := msg.Metadata[protocol.MetaConversationHistory].([]protocol.Message)
	memoryContext, _ := msg.Metadata[protocol.MetaMemoryContext].(string)

	systemPrompt := a.buildSystemPrompt()

	toolkit := tools.NewToolkit(
		a.analyzeEmotionTool(history),
		a.generateResponseTool(memoryContext),
	)

	engine := reasoning.NewEngine(a.llm, toolkit)
	engine.MaxIterations = defaultMaxIterations
	if a.MaxIterations > 0 {
		engine.MaxIterations = a.MaxIterations
	}
	engine.AgentName = name
	engine.Metrics = a.metrics

	seed := []protocol.Message{{Role: protocol.RoleUser, Content: msg.Content}}
	result := engine.Run(ctx, systemPrompt, seed)
	if !result.Success {
		return protocol.AgentResponse{Success: false, Error: "character_agent: exhausted iteration budget without a Final Answer"}
	}

	metadata := map[string]any{}
	if emotion, ok := extractEmotion(result.Trace); ok {
		metadata[protocol.MetaEmotionState] = emotion
	}

	return protocol.AgentResponse{Success: true, Content: result.Text, Metadata: metadata}
}

func (a *Agent) buildSystemPrompt() string {
	var sb strings.Builder
	sb.WriteString(systemRules)
	sb.WriteString("\n\nPersona:\n")
	fmt.Fprintf(&sb, "Name: %s\n", a.persona.Name)

	var basic []string
	if a.persona.Age != nil {
		basic = append(basic, fmt.Sprintf("%d years old", *a.persona.Age))
	}
	if a.persona.Gender != "" {
		basic = append(basic, a.persona.Gender)
	}
	if a.persona.Occupation != "" {
		basic = append(basic, a.persona.Occupation)
	}
	if len(basic) > 0 {
		fmt.Fprintf(&sb, "Basic info: %s\n", strings.Join(basic, ", "))
	}
	if len(a.persona.Traits) > 0 {
		fmt.Fprintf(&sb, "Traits: %s\n", strings.Join(a.persona.Traits, ", "))
	}
	if a.persona.SpeakingStyle != "" {
		fmt.Fprintf(&sb, "Speaking style: %s\n", a.persona.SpeakingStyle)
	}
	if len(a.persona.VerbalHabits) > 0 {
		fmt.Fprintf(&sb, "Verbal habits: %s\n", strings.Join(a.persona.VerbalHabits, ", "))
	}
	if len(a.persona.Likes) > 0 {
		fmt.Fprintf(&sb, "Likes: %s\n", strings.Join(a.persona.Likes, ", "))
	}
	if len(a.persona.Dislikes) > 0 {
		fmt.Fprintf(&sb, "Dislikes: %s\n", strings.Join(a.persona.Dislikes, ", "))
	}
	if a.persona.Background != "" {
		fmt.Fprintf(&sb, "Background: %s\n", a.persona.Background)
	}
	for k, v := range a.persona.Extra {
		fmt.Fprintf(&sb, "%s: %v\n", k, v)
	}
	return sb.String()
}

func (a *Agent) analyzeEmotionTool(history []protocol.Message) tools.Tool {
	return tools.New(
		"analyze_emotion",
		"Analyses the user's emotional state from their input (and optional conversation history), returning a four-axis emotion record.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_input": map[string]any{"type": "string"},
			},
			"required": []string{"user_input"},
		},
		func(ctx context.Context, args map[string]any) protocol.ToolResult {
			userInput, _ := args["user_input"].(string)
			emotion := a.analyzeEmotion(ctx, userInput, history)
			return protocol.Ok(map[string]any{
				"mood": emotion.Mood, "affection": emotion.Affection,
				"energy": emotion.Energy, "trust": emotion.Trust,
			})
		},
	)
}

func (a *Agent) analyzeEmotion(ctx context.Context, userInput string, history []protocol.Message) protocol.Emotion {
	var sb strings.Builder
	sb.WriteString("Analyse the emotional state behind this message on four axes: mood and affection in [-1,1], " +
		"energy and trust in [0,1]. Output a bare JSON object with keys mood, affection, energy, trust, nothing else.\n\n")
	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, m := range history {
			fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
		}
	}
	fmt.Fprintf(&sb, "\nMessage: %s", userInput)

	prompt := []protocol.Message{
		{Role: protocol.RoleSystem, Content: "You are an emotion-analysis tool. Output bare JSON only."},
		{Role: protocol.RoleUser, Content: sb.String()},
	}

	text, err := a.llm.ChatText(ctx, prompt, 0.3)
	if err != nil {
		return protocol.DefaultEmotion()
	}

	var m map[string]any
	if jerr := json.Unmarshal([]byte(extractJSONObject(text)), &m); jerr != nil {
		return protocol.DefaultEmotion()
	}
	return protocol.EmotionFromMap(m)
}

func (a *Agent) generateResponseTool(memoryContext string) tools.Tool {
	return tools.New(
		"generate_response",
		"Generates the in-character reply given the user's input, their emotion, the persona, and memory context.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_input": map[string]any{"type": "string"},
				"emotion":    map[string]any{"type": "object"},
			},
			"required": []string{"user_input"},
		},
		func(ctx context.Context, args map[string]any) protocol.ToolResult {
			userInput, _ := args["user_input"].(string)
			reply := a.generateResponse(ctx, userInput, args["emotion"], memoryContext)
			return protocol.Ok(reply)
		},
	)
}

func (a *Agent) generateResponse(ctx context.Context, userInput string, emotion any, memoryContext string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Reply to the user in character as %s.\n", a.persona.Name)
	if emotion != nil {
		if b, err := json.Marshal(emotion); err == nil {
			fmt.Fprintf(&sb, "\nUser's emotional state: %s\n", b)
		}
	}
	if memoryContext != "" {
		fmt.Fprintf(&sb, "\nRelevant memory:\n%s\n", memoryContext)
	}
	fmt.Fprintf(&sb, "\nUser: %s", userInput)

	prompt := []protocol.Message{
		{Role: protocol.RoleSystem, Content: a.buildSystemPrompt()},
		{Role: protocol.RoleUser, Content: sb.String()},
	}

	text, err := a.llm.ChatText(ctx, prompt, 0.8)
	if err != nil {
		return "I'm having trouble finding the words right now."
	}
	return cleanReply(text)
}

// cleanReply strips a leading role prefix (e.g. "Assistant: ") and
// surrounding quotes the model sometimes wraps its reply in.
func cleanReply(text string) string {
	text = strings.TrimSpace(text)
	for _, prefix := range []string{"Assistant:", "assistant:", "AI:", "Character:"} {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimSpace(text[len(prefix):])
		}
	}
	if len(text) >= 2 && (text[0] == '"' || text[0] == '\'') && text[len(text)-1] == text[0] {
		text = text[1 : len(text)-1]
	}
	return text
}

func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}

// extractEmotion walks the trace for the first Observation that parses
// as a mapping containing at least one of {valence, arousal, mood}
// (spec.md §4.10 names "valence/arousal" generically; this runtime's
// four-axis model keys are mood/affection/energy/trust, so mood is the
// anchor key actually emitted by analyze_emotion).
func extractEmotion(trace reasoning.Trace) (protocol.Emotion, bool) {
	for _, obs := range trace.Observations() {
		var m map[string]any
		if err := json.Unmarshal([]byte(extractJSONObject(obs)), &m); err != nil {
			continue
		}
		if _, ok := m["mood"]; !ok {
			if _, ok := m["valence"]; !ok {
				if _, ok := m["arousal"]; !ok {
					continue
				}
			}
		}
		return protocol.EmotionFromMap(m), true
	}
	return protocol.Emotion{}, false
}
