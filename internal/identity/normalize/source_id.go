package normalize

import "strings"

// ExtractSourceID returns the per-source athlete identifier embedded in a raw
// name. Names ending in a space and 2-3 uppercase letters carry their
// initials as the identifier ("Cody Yarborough CY" -> "CY"); any other name is
// its own identifier. All-caps names are treated as plain names.
func ExtractSourceID(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if _, initials, ok := splitInitials(trimmed); ok {
		return initials
	}
	return trimmed
}

// SourceKey is the mapping-store key for a raw name: the embedded initials
// when present, otherwise the normalized name so that case and punctuation
// variants share one key.
func SourceKey(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if id := ExtractSourceID(trimmed); id != trimmed {
		return id, nil
	}
	n, err := Name(trimmed)
	if err != nil {
		return "", err
	}
	return n.Normalized, nil
}
