package protocol

import "encoding/json"

// marshalCompact best-effort marshals v to a JSON string; on failure it
// returns "null" for a nil value and "<unrepresentable>" otherwise
// rather than propagating an error, since callers use this purely for
// human/LLM-facing display.
func marshalCompact(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return jsonFallback(v)
	}
	return string(b)
}

func jsonFallback(v any) string {
	if v == nil {
		return "null"
	}
	return "<unrepresentable>"
}
