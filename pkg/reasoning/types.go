// Package reasoning implements the bounded Reasoning-Action-Observation
// loop every agent in this module runs: a text LLM returns free-form
// output, the loop parses it against a fixed section grammar, validates
// and repairs malformed replies via feedback, and terminates on a valid
// Final Answer or iteration exhaustion.
package reasoning

import "github.com/CheKilo/bot-agent/pkg/protocol"

// StepKind distinguishes the parsed shape of one model reply.
type StepKind string

const (
	StepThoughtOnly StepKind = "thought_only"
	StepAction      StepKind = "action"
	StepFinalAnswer StepKind = "final_answer"
	StepMalformed   StepKind = "malformed"
)

// Step is one parsed iteration of the loop: the raw model reply plus
// whatever sections the parser extracted from it.
type Step struct {
	Iteration    int
	Kind         StepKind
	RawReply     string
	Thought      string
	Action       string
	ActionInput  map[string]any
	Observation  string
	FinalAnswer  string
	RepairReason string // non-empty when this step produced a repair message
	Warning      string // non-empty on a degraded-but-recovered parse (e.g. Action Input fallback)
}

// Trace is the full iteration history of one loop run, carried into
// structured finalisation and exposed to agents that post-process it
// (e.g. CharacterAgent scanning Observations for an emotion mapping).
type Trace struct {
	Steps []Step
}

// LastObservationOf returns the Observation text of the most recent
// step with a non-empty Observation, or "" if none exists.
func (t Trace) LastObservationOf() string {
	for i := len(t.Steps) - 1; i >= 0; i-- {
		if t.Steps[i].Observation != "" {
			return t.Steps[i].Observation
		}
	}
	return ""
}

// Observations returns every non-empty Observation in iteration order.
func (t Trace) Observations() []string {
	out := make([]string, 0, len(t.Steps))
	for _, s := range t.Steps {
		if s.Observation != "" {
			out = append(out, s.Observation)
		}
	}
	return out
}

// Result is what Run returns: either a successful Final Answer (raw or
// structured-finalised) or an unsuccessful exhaustion with the full
// transcript for diagnostics.
type Result struct {
	Success  bool
	Text     string
	Trace    Trace
	Messages []protocol.Message // the full loop transcript, including repairs and observations
}

// FinalizeSpec configures the optional structured-output finalisation
// stage: when ResponseSchema is non-nil, the raw Final Answer text is
// discarded and a finalise call is made instead.
type FinalizeSpec struct {
	ResponseSchema map[string]any
	// Format turns the parsed JSON object into the user-visible text.
	// Required when ResponseSchema is set.
	Format func(data map[string]any) string
}
