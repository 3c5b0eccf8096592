package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/CheKilo/bot-agent/pkg/llms"
	"github.com/CheKilo/bot-agent/pkg/observability"
	"github.com/CheKilo/bot-agent/pkg/protocol"
	"github.com/CheKilo/bot-agent/pkg/tools"
)

const DefaultMaxIterations = 10

const formatExample = `Thought: <your reasoning>
Action: <tool name>
Action Input: {"key": "value"}

or, when you are ready to answer:

Thought: <your reasoning>
Final Answer: <your answer>`

// Engine runs one bounded ReAct loop for one agent invocation. It is
// stateless across calls: every field here is read-only configuration,
// shared safely by concurrent Run calls.
type Engine struct {
	LLM           *llms.Client
	Toolkit       *tools.Toolkit
	MaxIterations int
	Finalize      *FinalizeSpec
	Temperature   float64

	// AgentName labels this engine's turn/tool metrics. Metrics may be
	// left nil to disable recording entirely.
	AgentName string
	Metrics   *observability.Metrics
}

// NewEngine builds an Engine with the spec default iteration budget
// (10; callers needing Character's tighter budget of 5 set
// MaxIterations directly after construction).
func NewEngine(llm *llms.Client, toolkit *tools.Toolkit) *Engine {
	return &Engine{LLM: llm, Toolkit: toolkit, MaxIterations: DefaultMaxIterations}
}

// Run executes the loop starting from the given system prompt and
// seed messages (the seed typically carries the conversation history
// or user turn the agent is responding to). The system prompt is
// extended with the toolkit's names and JSON schema and the fixed
// Thought/Action/Final Answer format rules.
func (e *Engine) Run(ctx context.Context, systemPrompt string, seed []protocol.Message) Result {
	start := time.Now()
	result := e.run(ctx, systemPrompt, seed)
	e.Metrics.RecordTurn(e.AgentName, time.Since(start), result.Success)
	return result
}

func (e *Engine) run(ctx context.Context, systemPrompt string, seed []protocol.Message) Result {
	toolkitEmpty := e.Toolkit == nil || len(e.Toolkit.Names()) == 0

	prompt := systemPrompt
	if !toolkitEmpty {
		prompt += "\n\nAvailable tools: " + e.Toolkit.NamesJoined() + "\n" + e.Toolkit.SchemaJSON()
	}
	prompt += "\n\nReply in exactly one of these two forms, never both in one reply:\n" + formatExample
	if !toolkitEmpty {
		prompt += "\n\nCall at least one tool before giving a Final Answer."
	}

	transcript := make([]protocol.Message, 0, len(seed)+2)
	transcript = append(transcript, protocol.Message{Role: protocol.RoleSystem, Content: prompt})
	transcript = append(transcript, seed...)

	trace := Trace{}
	hasCalledTool := false

	maxIter := e.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	for iter := 1; iter <= maxIter; iter++ {
		reply, err := e.LLM.ChatText(ctx, transcript, e.Temperature)
		if err != nil {
			step := Step{Iteration: iter, Kind: StepMalformed, RepairReason: "transport error: " + err.Error()}
			trace.Steps = append(trace.Steps, step)
			repair := protocol.Message{Role: protocol.RoleUser, Content: "Observation: " + protocol.Fail(err.Error()).String()}
			transcript = append(transcript, repair)
			continue
		}

		step := parseReply(reply)
		step.Iteration = iter

		switch {
		case step.Kind == StepFinalAnswer && !toolkitEmpty && !hasCalledTool:
			step.RepairReason = "format error: you must call a tool before giving a Final Answer"
			trace.Steps = append(trace.Steps, step)
			transcript = append(transcript, repairMessage(step.RepairReason))

		case step.Kind == StepFinalAnswer:
			transcript = append(transcript, protocol.Message{Role: protocol.RoleAssistant, Content: reply})
			trace.Steps = append(trace.Steps, step)
			return e.finalize(ctx, step.FinalAnswer, trace, transcript)

		case step.Kind == StepAction:
			hasCalledTool = true
			transcript = append(transcript, protocol.Message{Role: protocol.RoleAssistant, Content: reply})
			result := e.invoke(ctx, step.Action, step.ActionInput)
			step.Observation = result.String()
			if step.Warning != "" {
				slog.Warn("reasoning: action input fallback", "iteration", iter, "warning", step.Warning)
			}
			trace.Steps = append(trace.Steps, step)
			transcript = append(transcript, protocol.Message{Role: protocol.RoleUser, Content: "Observation: " + step.Observation})

		default:
			step.RepairReason = "format error: reply did not match the expected format"
			trace.Steps = append(trace.Steps, step)
			transcript = append(transcript, repairMessage(step.RepairReason))
		}
	}

	return Result{Success: false, Trace: trace, Messages: transcript}
}

func (e *Engine) invoke(ctx context.Context, action string, input map[string]any) protocol.ToolResult {
	if e.Toolkit == nil {
		e.Metrics.RecordToolCall(action, false)
		return protocol.Fail(fmt.Sprintf("no tools available to call %q", action))
	}
	result := e.Toolkit.Invoke(ctx, action, input)
	e.Metrics.RecordToolCall(action, result.OK)
	return result
}

func repairMessage(reason string) protocol.Message {
	return protocol.Message{Role: protocol.RoleUser, Content: reason + "\n\nUse exactly this format:\n" + formatExample}
}

// finalize runs the optional structured-output stage and builds the
// final Result. When no ResponseSchema is configured, the raw Final
// Answer text passes through unchanged.
func (e *Engine) finalize(ctx context.Context, rawFinal string, trace Trace, transcript []protocol.Message) Result {
	if e.Finalize == nil || e.Finalize.ResponseSchema == nil {
		return Result{Success: true, Text: rawFinal, Trace: trace, Messages: transcript}
	}

	instruction := protocol.Message{Role: protocol.RoleUser, Content: "Output a JSON object matching the declared schema. Output bare JSON only, nothing else."}
	finalizeMessages := append(append([]protocol.Message{}, transcript...), instruction)

	temp := 0.0
	resp, err := e.LLM.Chat(ctx, llms.ChatRequest{Messages: finalizeMessages, ResponseFormat: "json_object", Temperature: &temp})
	if err != nil {
		return Result{Success: true, Text: rawFinal, Trace: trace, Messages: transcript}
	}

	var data map[string]any
	if jerr := json.Unmarshal([]byte(resp.Content), &data); jerr != nil {
		return Result{Success: true, Text: resp.Content, Trace: trace, Messages: transcript}
	}

	text := resp.Content
	if e.Finalize.Format != nil {
		text = e.Finalize.Format(data)
	}
	return Result{Success: true, Text: text, Trace: trace, Messages: transcript}
}
