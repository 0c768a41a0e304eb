package audit

import (
	"strings"
	"unicode/utf8"
)

const (
	// RedactedValue replaces the value of sensitive fields.
	RedactedValue = "[REDACTED]"
	// TruncationMarker is appended to strings cut to the length limit.
	TruncationMarker = "...[truncated]"
	// DefaultMaxFieldLength is the rune limit for string values in metadata.
	DefaultMaxFieldLength = 1024

	maxRedactDepth = 10
)

//nolint:gochecknoglobals // fixed list
var sensitiveFragments = []string{
	"password", "passwd", "secret", "token", "apikey", "api_key",
	"authorization", "credential", "private_key",
}

// IsSensitive reports whether a field name looks like it carries a secret.
func IsSensitive(name string) bool {
	lower := strings.ToLower(name)
	for _, frag := range sensitiveFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// Redact returns a copy of params safe for audit metadata: sensitive fields
// are replaced with RedactedValue and long strings are truncated to maxLen
// runes followed by TruncationMarker. maxLen <= 0 means DefaultMaxFieldLength.
// params itself is not modified.
func Redact(params map[string]any, maxLen int) map[string]any {
	if params == nil {
		return nil
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxFieldLength
	}
	return redactMap(params, maxLen, 0)
}

func redactMap(m map[string]any, maxLen, depth int) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if IsSensitive(k) {
			out[k] = RedactedValue
			continue
		}
		out[k] = redactValue(v, maxLen, depth+1)
	}
	return out
}

func redactValue(v any, maxLen, depth int) any {
	if depth > maxRedactDepth {
		return TruncationMarker
	}
	switch t := v.(type) {
	case string:
		return Truncate(t, maxLen)
	case map[string]any:
		return redactMap(t, maxLen, depth)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = redactValue(e, maxLen, depth+1)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Truncate(e, maxLen)
		}
		return out
	default:
		return v
	}
}

// Truncate cuts s to maxLen runes and appends TruncationMarker if anything
// was removed.
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + TruncationMarker
}
