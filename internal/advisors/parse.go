// Response parsing for advisor outputs. Models wrap JSON in fences, prepend
// language tags, or return the literal text "null"; all of that is handled
// here before validation.
package advisors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stripFences removes a wrapping triple-backtick fence and an optional
// leading language tag, returning the trimmed inner text.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		tag := strings.TrimSpace(s[:nl])
		// A language tag like "json" sits alone on the fence line.
		if tag == "" || !strings.ContainsAny(tag, "{}[]") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// isNullLiteral reports whether the cleaned response is the literal text
// "null" — a legitimate answer for the crisis stage only.
func isNullLiteral(raw string) bool {
	return stripFences(raw) == "null"
}

// decode parses the cleaned response as a JSON object, verifies every
// required top-level field is present, and unmarshals into out.
func decode(raw string, required []string, out any) error {
	cleaned := stripFences(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return fmt.Errorf("not a JSON object: %w", err)
	}
	for _, f := range required {
		if _, ok := fields[f]; !ok {
			return fmt.Errorf("missing required field %q", f)
		}
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("decode fields: %w", err)
	}
	return nil
}
