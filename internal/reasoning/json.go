package reasoning

import (
	"encoding/json"
	"strings"
)

// decodeJSON pulls the first JSON object or array out of model text,
// tolerating code fences and surrounding prose. It reports whether v was
// filled.
func decodeJSON(text string, v any) bool {
	raw := extractJSON(text)
	if raw == "" {
		return false
	}
	return json.Unmarshal([]byte(raw), v) == nil
}

func extractJSON(text string) string {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end <= start {
		return ""
	}
	return text[start : end+1]
}
