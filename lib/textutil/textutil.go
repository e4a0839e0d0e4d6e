package textutil

import (
	"strings"
)

// FirstMatchFold returns the first marker that s contains, ignoring case.
func FirstMatchFold(s string, markers []string) (string, bool) {
	lowered := strings.ToLower(s)
	for _, m := range markers {
		if m == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(m)) {
			return m, true
		}
	}
	return "", false
}

func ContainsAnyFold(s string, markers []string) bool {
	_, ok := FirstMatchFold(s, markers)
	return ok
}

// Preview truncates s to n runes, appending "..." if anything was cut.
func Preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
