package orchestrator

import (
	"context"
	"strings"

	"healthmate/internal/models"
)

var voiceSchema = []string{"response_text", "requires_followup", "followup_question", "key_points", "recommendations"}

var voiceFallback = map[string]any{
	"response_text":     "I could not process that right now. Please try again.",
	"requires_followup": false,
	"followup_question": "",
	"key_points":        []any{},
	"recommendations":   []any{},
}

// voiceGraph handles transcribed spoken queries. Replies are written to be
// read aloud, so the prompt asks for short sentences and no markup.
func (e *Engine) voiceGraph() *Graph {
	return NewGraph(FeatureVoiceQuery, voiceSchema, voiceFallback).
		Stage("voice_answer", e.voiceStage)
}

func (e *Engine) voiceStage(ctx context.Context, rc *models.RequestContext) (string, error) {
	var b strings.Builder
	b.WriteString("The user spoke this query to their health assistant. Answer conversationally, in short sentences suitable for text-to-speech, without lists or markup in response_text.\n\n")
	b.WriteString("User health snapshot:\n")
	renderProfile(&b, rc.HealthProfile)
	renderConversation(&b, rc.Conversation)
	b.WriteString("\nQuery: " + rc.QueryText + "\n")
	renderSchema(&b, map[string]any{
		"response_text":     "spoken-style answer",
		"requires_followup": false,
		"followup_question": "question to ask if more detail is needed, else empty",
		"key_points":        []any{"fact worth remembering"},
		"recommendations":   []any{"suggested action"},
	})

	raw, err := e.complete(ctx, b.String())
	if err != nil {
		return "", err
	}
	rc.Response = Normalize(raw, voiceSchema, voiceFallback)
	return Terminal, nil
}
