// Package strings normalizes string lists read from definition files.
package strings

import "strings"

// Normalize trims every value, applies fold when it is non-nil, and drops
// blanks and repeats. The first occurrence wins, so order is stable.
func Normalize(values []string, fold func(string) string) []string {
	if values == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if fold != nil {
			v = fold(v)
		}
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// MIMEPrefixes normalizes an accept list such as ["Image/", "image/ ", "application/pdf"].
func MIMEPrefixes(values []string) []string {
	return Normalize(values, strings.ToLower)
}
