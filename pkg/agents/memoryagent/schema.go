package memoryagent

import "fmt"

// responseSchema declares the structured finalisation shape spec.md
// §4.9 requires: related_memory grouped by tier, plus whatever the
// store_long_term_memory tool reported, if it was called.
var responseSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"related_memory": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"short_term": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"mid_term":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"long_term":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
		},
		"storage_result": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"stored":  map[string]any{"type": "boolean"},
				"content": map[string]any{"type": "string"},
			},
		},
	},
}

// formatFinalOutput turns the finalised JSON object into the short
// labelled text block used verbatim as memory_context by the caller
// (spec.md §4.9).
func formatFinalOutput(data map[string]any) string {
	var out string

	if related, ok := data["related_memory"].(map[string]any); ok {
		if items := stringSlice(related["short_term"]); len(items) > 0 {
			out += "Short-term: " + joinLines(items) + "\n"
		}
		if items := stringSlice(related["mid_term"]); len(items) > 0 {
			out += "Mid-term: " + joinLines(items) + "\n"
		}
		if items := stringSlice(related["long_term"]); len(items) > 0 {
			out += "Long-term: " + joinLines(items) + "\n"
		}
	}

	if storage, ok := data["storage_result"].(map[string]any); ok {
		if stored, _ := storage["stored"].(bool); stored {
			content, _ := storage["content"].(string)
			out += fmt.Sprintf("Stored: %s\n", content)
		}
	}

	if out == "" {
		return "No relevant memory found."
	}
	return out
}

func stringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func joinLines(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += "; "
		}
		out += s
	}
	return out
}
