package orchestrator

import (
	"encoding/json"
	"regexp"
	"strings"

	"healthmate/internal/models"
)

// fencedBlock matches a fenced code block whose body is a JSON object. A
// block tagged json is preferred, but an untagged fence around an object
// also counts.
var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// Normalize recovers a structured record from raw model text. Extraction
// order is fixed: a fenced structured block first, then the longest balanced
// object span anywhere in the text, then the fallback record. It never
// panics and the result always carries every fieldSchema key; keys a
// successful parse left out are filled from the fallback.
func Normalize(raw string, fieldSchema []string, fallback map[string]any) *models.NormalizedResponse {
	parsed := extractObject(raw)
	if parsed == nil || !anySchemaField(parsed, fieldSchema) {
		return &models.NormalizedResponse{Fields: cloneRecord(fallback), IsFallback: true}
	}

	fields := make(map[string]any, len(fieldSchema))
	for _, key := range fieldSchema {
		if v, ok := parsed[key]; ok {
			fields[key] = v
		} else {
			fields[key] = cloneValue(fallback[key])
		}
	}
	return &models.NormalizedResponse{Fields: fields, IsFallback: false}
}

// extractObject returns the first decodable JSON object per the extraction
// order, or nil when none of the candidates parse.
func extractObject(raw string) map[string]any {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	for _, match := range fencedBlock.FindAllStringSubmatch(raw, -1) {
		if obj := decodeObject(match[1]); obj != nil {
			return obj
		}
	}

	if span := longestBalancedObject(raw); span != "" {
		if obj := decodeObject(span); obj != nil {
			return obj
		}
	}
	return nil
}

func decodeObject(candidate string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return nil
	}
	return obj
}

// longestBalancedObject scans for the longest brace-balanced span. Braces
// inside JSON string literals are skipped so text like {"note": "a { b"}
// still balances.
func longestBalancedObject(raw string) string {
	var best string
	n := len(raw)
	for start := 0; start < n; start++ {
		if raw[start] != '{' {
			continue
		}
		depth := 0
		inString := false
		escaped := false
		for i := start; i < n; i++ {
			c := raw[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					if span := raw[start : i+1]; len(span) > len(best) {
						best = span
					}
					i = n
				}
			}
		}
	}
	return best
}

func anySchemaField(parsed map[string]any, fieldSchema []string) bool {
	for _, key := range fieldSchema {
		if _, ok := parsed[key]; ok {
			return true
		}
	}
	return false
}

// cloneRecord deep-copies one level of a fallback record so callers can
// mutate the response without bleeding into the shared fallback.
func cloneRecord(record map[string]any) map[string]any {
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		return append([]any(nil), t...)
	case map[string]any:
		inner := make(map[string]any, len(t))
		for ik, iv := range t {
			inner[ik] = iv
		}
		return inner
	default:
		return v
	}
}
