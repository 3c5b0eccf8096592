package reasoning

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	reThought     = regexp.MustCompile(`(?m)^Thought:`)
	reAction      = regexp.MustCompile(`(?m)^Action:`)
	reActionInput = regexp.MustCompile(`(?m)^Action Input:`)
	reObservation = regexp.MustCompile(`(?m)^Observation:`)
	reFinalAnswer = regexp.MustCompile(`(?m)^Final Answer:`)
)

// sectionBounds finds the start offset of the first match of re at or
// after from, or -1 if none.
func sectionBounds(text string, re *regexp.Regexp, from int) int {
	loc := re.FindStringIndex(text[from:])
	if loc == nil {
		return -1
	}
	return from + loc[0]
}

// parseReply implements spec.md §4.7's four-section grammar: Thought
// captured up to the next Action/Final Answer/EOF; Action a single
// bare token; Action Input up to the next Observation/Thought/Final
// Answer/EOF; Final Answer up to EOF. Action and Final Answer never
// co-exist — when Action is present, any Final Answer text in the same
// reply is ignored.
func parseReply(reply string) Step {
	step := Step{RawReply: reply}

	thoughtStart := sectionBounds(reply, reThought, 0)
	actionStart := sectionBounds(reply, reAction, 0)
	finalStart := sectionBounds(reply, reFinalAnswer, 0)

	if thoughtStart >= 0 {
		end := len(reply)
		if actionStart >= 0 && actionStart > thoughtStart {
			end = actionStart
		} else if finalStart >= 0 && finalStart > thoughtStart {
			end = finalStart
		}
		step.Thought = strings.TrimSpace(afterLabel(reply[thoughtStart:end], "Thought:"))
	}

	if actionStart >= 0 {
		// Final Answer never co-exists with Action: once Action is found,
		// any Final Answer text in the same reply is ignored (spec.md §4.7).
		parseAction(reply, actionStart, &step)
		step.Kind = StepAction
		return step
	}

	if finalStart >= 0 {
		text := strings.TrimSpace(afterLabel(reply[finalStart:], "Final Answer:"))
		step.FinalAnswer = text
		if isValidFinalAnswer(text) {
			step.Kind = StepFinalAnswer
		} else {
			step.Kind = StepMalformed
		}
		return step
	}

	if step.Thought != "" {
		step.Kind = StepThoughtOnly
		return step
	}

	step.Kind = StepMalformed
	return step
}

func parseAction(reply string, actionStart int, step *Step) {
	actionInputStart := sectionBounds(reply, reActionInput, actionStart)

	actionEnd := len(reply)
	if actionInputStart >= 0 {
		actionEnd = actionInputStart
	}
	actionLine := strings.TrimSpace(afterLabel(reply[actionStart:actionEnd], "Action:"))
	step.Action = firstToken(actionLine)

	if actionInputStart < 0 {
		return
	}

	obsStart := sectionBounds(reply, reObservation, actionInputStart)
	thoughtAfter := sectionBounds(reply, reThought, actionInputStart+len("Action Input:"))
	finalAfter := sectionBounds(reply, reFinalAnswer, actionInputStart)

	end := len(reply)
	for _, candidate := range []int{obsStart, thoughtAfter, finalAfter} {
		if candidate >= 0 && candidate < end {
			end = candidate
		}
	}

	raw := strings.TrimSpace(afterLabel(reply[actionInputStart:end], "Action Input:"))
	input, warning := parseActionInput(raw)
	step.ActionInput = input
	step.Warning = warning
}

// parseActionInput parses the raw Action Input text as JSON; on
// failure it retries once with single quotes replaced by double quotes;
// on continued failure it falls back to {"input": raw}, reporting a
// warning (spec.md §4.7, Per-iteration procedure step 2).
func parseActionInput(raw string) (map[string]any, string) {
	if raw == "" {
		return map[string]any{}, ""
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out, ""
	}

	repaired := strings.ReplaceAll(raw, "'", "\"")
	if err := json.Unmarshal([]byte(repaired), &out); err == nil {
		return out, ""
	}

	return map[string]any{"input": raw}, "action input was not valid JSON, falling back to raw text"
}

// isValidFinalAnswer rejects empty, placeholder (`[`-prefixed), or
// too-short Final Answer text (spec.md §4.7).
func isValidFinalAnswer(text string) bool {
	if text == "" {
		return false
	}
	if strings.HasPrefix(text, "[") {
		return false
	}
	if len([]rune(text)) < 5 {
		return false
	}
	return true
}

func afterLabel(s, label string) string {
	i := strings.Index(s, label)
	if i < 0 {
		return s
	}
	return s[i+len(label):]
}

func firstToken(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t\n"); i >= 0 {
		return s[:i]
	}
	return s
}
