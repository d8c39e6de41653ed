// Package strings holds small helpers for list-valued settings.
package strings

import (
	"strings"
)

// SplitList splits a separated setting such as "kafka-1:9092, kafka-2:9092"
// into its distinct non-blank entries, in first-seen order. A blank input
// yields nil.
func SplitList(raw, sep string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, sep) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, dup := seen[part]; dup {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}
