package orchestrator

import (
	"context"
	"strings"

	"healthmate/internal/models"
)

var dietFallback = map[string]any{
	"advice": "Diet advice is currently unavailable. Please try again later.",
}

// dietGraph routes a diet question through a cheap classification first:
// questions entangled with restrictions or medical conditions go to the
// specialist variant, everything else to the general one. A classification
// the router does not recognize lands on the general stage.
func (e *Engine) dietGraph() *Graph {
	return NewGraph(FeatureDietAdvice, []string{"advice"}, dietFallback).
		Stage("classify_diet_query", e.classifyDietStage).
		Stage("specialist_advice", e.dietAdviceStage(true)).
		Stage("general_advice", e.dietAdviceStage(false)).
		Edge("classify_diet_query", "specialist", "specialist_advice").
		Edge("classify_diet_query", "general", "general_advice").
		Entry("classify_diet_query").
		Default("general_advice")
}

// classifyDietStage decides the advice variant. A failed or unparseable
// classification degrades to the general route instead of failing the run.
func (e *Engine) classifyDietStage(ctx context.Context, rc *models.RequestContext) (string, error) {
	var b strings.Builder
	b.WriteString("Decide whether this diet question needs specialist dietary guidance.\n")
	b.WriteString("Specialist means the user has dietary restrictions, allergies, or medical conditions that constrain food choices.\n\n")
	renderRestrictions(&b, rc)
	if concerns := rc.PayloadString("specific_concerns"); concerns != "" {
		b.WriteString("Concerns: " + concerns + "\n")
	}
	renderMeals(&b, rc)
	renderSchema(&b, map[string]any{"route": "specialist or general"})

	raw, err := e.complete(ctx, b.String())
	if err != nil {
		return "general", nil
	}
	route := Normalize(raw, []string{"route"}, map[string]any{"route": "general"}).String("route")
	return strings.ToLower(strings.TrimSpace(route)), nil
}

// dietAdviceStage produces the advice text. Both variants share shape and
// differ in framing.
func (e *Engine) dietAdviceStage(specialist bool) StageFunc {
	return func(ctx context.Context, rc *models.RequestContext) (string, error) {
		var b strings.Builder
		if specialist {
			b.WriteString("You are a clinical dietitian. Respect every restriction below strictly.\n\n")
		} else {
			b.WriteString("You are a nutrition coach giving practical everyday diet advice.\n\n")
		}
		b.WriteString("User health snapshot:\n")
		renderProfile(&b, rc.HealthProfile)
		renderRestrictions(&b, rc)
		renderMeals(&b, rc)
		if goals := rc.PayloadString("health_goals"); goals != "" {
			b.WriteString("Health goals: " + goals + "\n")
		}
		if concerns := rc.PayloadString("specific_concerns"); concerns != "" {
			b.WriteString("Concerns: " + concerns + "\n")
		}
		renderSchema(&b, map[string]any{"advice": "your dietary advice"})

		raw, err := e.complete(ctx, b.String())
		if err != nil {
			return "", err
		}
		rc.Response = Normalize(raw, []string{"advice"}, dietFallback)
		return Terminal, nil
	}
}
