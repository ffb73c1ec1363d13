// File: /services/tags.go
package services

import "strings"

// NormalizeTags turns a comma separated tag string into the list of names to
// store: trimmed, lower-cased, without empties or repeats, first occurrence
// order preserved.
func NormalizeTags(raw string) []string {
	seen := make(map[string]struct{})
	names := []string{}
	for _, part := range strings.Split(raw, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
