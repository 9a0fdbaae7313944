package orchestrator

import (
	"context"
	"strings"

	"healthmate/internal/models"
)

var exerciseSchema = []string{"fitness_level", "recommended_frequency", "exercise_plans", "special_instructions", "recommendation_summary"}

var exerciseFallback = map[string]any{
	"fitness_level":          "unknown",
	"recommended_frequency":  "",
	"exercise_plans":         []any{},
	"special_instructions":   []any{},
	"recommendation_summary": "Exercise recommendations are currently unavailable. Please try again later.",
}

// exerciseGraph is the one-stage workout planner keyed on the user's goal
// and stated conditions.
func (e *Engine) exerciseGraph() *Graph {
	return NewGraph(FeatureExercise, exerciseSchema, exerciseFallback).
		Stage("exercise_plan", e.exerciseStage)
}

func (e *Engine) exerciseStage(ctx context.Context, rc *models.RequestContext) (string, error) {
	var b strings.Builder
	b.WriteString("You are a fitness trainer building an exercise plan.\n\n")
	b.WriteString("User health snapshot:\n")
	renderProfile(&b, rc.HealthProfile)
	if goal := rc.PayloadString("goal"); goal != "" {
		b.WriteString("Goal: " + goal + "\n")
	}
	if level := rc.PayloadString("fitness_level"); level != "" {
		b.WriteString("Self-reported fitness level: " + level + "\n")
	}
	if conditions := rc.PayloadStrings("medical_conditions"); len(conditions) > 0 {
		b.WriteString("Medical conditions: " + strings.Join(conditions, ", ") + "\n")
	}
	renderSchema(&b, map[string]any{
		"fitness_level":         "assessed level",
		"recommended_frequency": "sessions per week",
		"exercise_plans": []any{map[string]any{
			"name":     "exercise",
			"duration": "minutes per session",
			"notes":    "form or intensity notes",
		}},
		"special_instructions":   []any{"safety note given the conditions"},
		"recommendation_summary": "one-paragraph plan summary",
	})

	raw, err := e.complete(ctx, b.String())
	if err != nil {
		return "", err
	}
	rc.Response = Normalize(raw, exerciseSchema, exerciseFallback)
	return Terminal, nil
}
