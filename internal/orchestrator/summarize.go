package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"healthmate/internal/models"
	"healthmate/internal/service/conversation"
)

var summarySchema = []string{"summary_text", "key_points", "health_entities"}

// summaryFallback is the well-defined record a failed summarization resolves
// to. It names the window size so even the fallback says something true.
func summaryFallback(messageCount int) map[string]any {
	return map[string]any{
		"summary_text":    fmt.Sprintf("%d messages exchanged", messageCount),
		"key_points":      []any{},
		"health_entities": map[string]any{},
	}
}

// Summarize condenses a message window into a summary record. It is a
// degenerate one-stage run: render the window, one model call, normalize.
// It never fails; any trouble resolves to the fallback record.
func (e *Engine) Summarize(ctx context.Context, conversationID string, messages []*models.Message) conversation.SummaryInput {
	fallback := summaryFallback(len(messages))
	graph := NewGraph("summarize", summarySchema, fallback).
		Stage("summarize", e.summarizeStage(messages))

	rc := &models.RequestContext{Payload: map[string]any{}}
	resp := graph.Run(ctx, rc)

	entities, _ := resp.Fields["health_entities"].(map[string]any)
	if entities == nil {
		entities = map[string]any{}
	}
	return conversation.SummaryInput{
		SummaryText:    resp.String("summary_text"),
		KeyPoints:      resp.Strings("key_points"),
		HealthEntities: entities,
		IsFallback:     resp.IsFallback,
	}
}

func (e *Engine) summarizeStage(messages []*models.Message) StageFunc {
	return func(ctx context.Context, rc *models.RequestContext) (string, error) {
		var b strings.Builder
		b.WriteString("Summarize this health-assistant conversation.\n")
		b.WriteString("Capture decisions, stated symptoms, metrics, and preferences. Group any health facts under health_entities by category (symptoms, metrics, medications, habits).\n\n")
		for _, m := range messages {
			fmt.Fprintf(&b, "%s: %s\n", m.Sender, m.Text)
		}
		renderSchema(&b, map[string]any{
			"summary_text":    "concise conversation summary",
			"key_points":      []any{"important point"},
			"health_entities": map[string]any{"symptoms": []any{}},
		})

		raw, err := e.complete(ctx, b.String())
		if err != nil {
			return "", err
		}
		rc.Response = Normalize(raw, summarySchema, summaryFallback(len(messages)))
		return Terminal, nil
	}
}
