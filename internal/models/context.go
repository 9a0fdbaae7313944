package models

// ConversationContext is the digest of a session folded into a request:
// the latest summary plus a short tail of raw messages.
type ConversationContext struct {
	ConversationID string     `json:"conversation_id"`
	SessionType    string     `json:"session_type"`
	UserName       string     `json:"user_name,omitempty"`
	SummaryText    string     `json:"summary_text,omitempty"`
	KeyPoints      []string   `json:"key_points,omitempty"`
	RecentMessages []*Message `json:"recent_messages,omitempty"`
	MessageCount   int        `json:"message_count"`
}

// RequestContext is the flattened, request-scoped bundle of profile,
// history, and conversational data threaded through a stage graph. It is
// built per request and discarded afterwards.
type RequestContext struct {
	UserID              int64
	QueryText           string
	Profile             *User
	HealthProfile       HealthProfile
	MetricsHistory      map[string][]MetricSample
	DietaryRestrictions []string
	Conversation        *ConversationContext
	Payload             map[string]any

	// Omissions lists optional context sub-fields that could not be
	// fetched; they are recorded, never silently faked.
	Omissions []string

	// Response is written by the terminal stage of a graph run.
	Response *NormalizedResponse
}

// PayloadString returns a string payload field, or "" when absent.
func (rc *RequestContext) PayloadString(key string) string {
	if rc.Payload == nil {
		return ""
	}
	s, _ := rc.Payload[key].(string)
	return s
}

// PayloadStrings returns a string-list payload field, tolerating both
// []string and decoded-JSON []any shapes.
func (rc *RequestContext) PayloadStrings(key string) []string {
	if rc.Payload == nil {
		return nil
	}
	switch v := rc.Payload[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// NormalizedResponse is the structured record recovered from raw model
// output. Every graph run yields exactly one, fallback or not.
type NormalizedResponse struct {
	Fields     map[string]any `json:"fields"`
	IsFallback bool           `json:"is_fallback"`
}

// String returns a string field of the response, or "" when absent.
func (nr *NormalizedResponse) String(key string) string {
	if nr == nil || nr.Fields == nil {
		return ""
	}
	s, _ := nr.Fields[key].(string)
	return s
}

// Bool returns a boolean field of the response.
func (nr *NormalizedResponse) Bool(key string) bool {
	if nr == nil || nr.Fields == nil {
		return false
	}
	b, _ := nr.Fields[key].(bool)
	return b
}

// Strings returns a string-list field of the response.
func (nr *NormalizedResponse) Strings(key string) []string {
	if nr == nil || nr.Fields == nil {
		return nil
	}
	switch v := nr.Fields[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
