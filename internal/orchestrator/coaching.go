package orchestrator

import (
	"context"
	"strings"

	"healthmate/internal/models"
)

var coachingSchema = []string{"advice", "recommendations", "explanation", "sources", "followup_questions"}

var coachingFallback = map[string]any{
	"advice":             "Health coaching is currently unavailable. Please try again later.",
	"recommendations":    []any{},
	"explanation":        "",
	"sources":            []any{},
	"followup_questions": []any{},
}

// coachingGraph is the fused classify-and-answer coaching stage: one model
// call grounded in the profile and the running conversation.
func (e *Engine) coachingGraph() *Graph {
	return NewGraph(FeatureHealthCoaching, coachingSchema, coachingFallback).
		Stage("coach", e.coachStage)
}

func (e *Engine) coachStage(ctx context.Context, rc *models.RequestContext) (string, error) {
	var b strings.Builder
	b.WriteString("You are a health coach. Answer the user's question with actionable, safe guidance.\n\n")
	b.WriteString("User health snapshot:\n")
	renderProfile(&b, rc.HealthProfile)
	renderRestrictions(&b, rc)
	renderConversation(&b, rc.Conversation)
	b.WriteString("\nQuestion: " + rc.QueryText + "\n")
	renderSchema(&b, map[string]any{
		"advice":             "direct answer",
		"recommendations":    []any{"concrete action"},
		"explanation":        "why this advice fits the user",
		"sources":            []any{"general knowledge area relied on"},
		"followup_questions": []any{"question to ask the user next"},
	})

	raw, err := e.complete(ctx, b.String())
	if err != nil {
		return "", err
	}
	rc.Response = Normalize(raw, coachingSchema, coachingFallback)
	return Terminal, nil
}
