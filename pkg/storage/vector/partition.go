// Package vector implements storage.Vector over Qdrant (external ANN
// service) and chromem-go (embedded, in-process fallback when no
// vector database is configured).
package vector

import "strings"

// Partition derives the per-bot namespace from bot_id: every
// non-alphanumeric character becomes an underscore, per spec.md §6.
func Partition(botID string) string {
	var sb strings.Builder
	sb.WriteString("bot_")
	for _, r := range botID {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}
