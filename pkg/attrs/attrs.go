// Package attrs reads values out of slog-style key/value lists
// ([key1, value1, key2, value2, ...]).
package attrs

// Lookup returns the value paired with key. Non-string keys and a trailing
// key without a value are skipped.
func Lookup(attrs []any, key string) (any, bool) {
	for i := 0; i+1 < len(attrs); i += 2 {
		if k, ok := attrs[i].(string); ok && k == key {
			return attrs[i+1], true
		}
	}
	return nil, false
}

// ExtractString returns the string value for key, or "" when it is missing or
// not a string.
func ExtractString(attrs []any, key string) string {
	v, _ := Lookup(attrs, key)
	s, _ := v.(string)
	return s
}
