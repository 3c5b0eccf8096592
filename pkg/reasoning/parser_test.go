package reasoning

import "testing"

func TestParserActionDominatesFinalAnswer(t *testing.T) {
	reply := "Thought: t\nAction: foo\nAction Input: {\"x\":1}\nFinal Answer: ignored"
	step := parseReply(reply)

	if step.Kind != StepAction {
		t.Fatalf("expected StepAction, got %v", step.Kind)
	}
	if step.Action != "foo" {
		t.Errorf("expected action %q, got %q", "foo", step.Action)
	}
	if step.ActionInput["x"] != float64(1) {
		t.Errorf("expected action_input x=1, got %v", step.ActionInput)
	}
	if step.FinalAnswer != "" {
		t.Errorf("expected final answer to be ignored, got %q", step.FinalAnswer)
	}
}

func TestParserThoughtOnly(t *testing.T) {
	step := parseReply("Thought: think")
	if step.Kind != StepThoughtOnly {
		t.Fatalf("expected StepThoughtOnly, got %v", step.Kind)
	}
	if step.Thought != "think" {
		t.Errorf("expected thought %q, got %q", "think", step.Thought)
	}
}

func TestParserPlaceholderFinalAnswerRejected(t *testing.T) {
	step := parseReply("Thought: t\nFinal Answer: [placeholder]")
	if step.Kind != StepMalformed {
		t.Errorf("expected placeholder Final Answer to be rejected, got %v", step.Kind)
	}
}

func TestParserShortFinalAnswerRejected(t *testing.T) {
	step := parseReply("Thought: t\nFinal Answer: hi")
	if step.Kind != StepMalformed {
		t.Errorf("expected too-short Final Answer to be rejected, got %v", step.Kind)
	}
}

func TestParserValidFinalAnswer(t *testing.T) {
	step := parseReply("Thought: t\nFinal Answer: hello there")
	if step.Kind != StepFinalAnswer {
		t.Fatalf("expected StepFinalAnswer, got %v", step.Kind)
	}
	if step.FinalAnswer != "hello there" {
		t.Errorf("unexpected final answer: %q", step.FinalAnswer)
	}
}

func TestParserActionInputSingleQuoteRepair(t *testing.T) {
	reply := "Action: foo\nAction Input: {'x': 1}"
	step := parseReply(reply)
	if step.ActionInput["x"] != float64(1) {
		t.Errorf("expected single-quote repair to parse x=1, got %v", step.ActionInput)
	}
	if step.Warning != "" {
		t.Errorf("expected no warning for a successfully repaired input, got %q", step.Warning)
	}
}

func TestParserActionInputFallsBackToRawText(t *testing.T) {
	reply := "Action: foo\nAction Input: not json at all"
	step := parseReply(reply)
	if step.ActionInput["input"] != "not json at all" {
		t.Errorf("expected raw-text fallback, got %v", step.ActionInput)
	}
	if step.Warning == "" {
		t.Error("expected a warning on fallback")
	}
}

func TestParserActionInputStopsAtObservation(t *testing.T) {
	reply := "Action: foo\nAction Input: {\"x\":1}\nObservation: stale text that must not be parsed"
	step := parseReply(reply)
	if step.ActionInput["x"] != float64(1) {
		t.Errorf("expected action input to stop at Observation, got %v", step.ActionInput)
	}
}
