package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"healthmate/internal/models"
)

// renderProfile writes the known parts of the latest metric snapshot as
// prompt lines. Unknown metrics are simply absent.
func renderProfile(b *strings.Builder, hp models.HealthProfile) {
	if hp.Weight != nil {
		fmt.Fprintf(b, "- weight: %.1f kg\n", *hp.Weight)
	}
	if hp.Height != nil {
		fmt.Fprintf(b, "- height: %.1f cm\n", *hp.Height)
	}
	if hp.BMI != nil {
		fmt.Fprintf(b, "- BMI: %.1f\n", *hp.BMI)
	}
	if hp.BloodPressure != nil {
		fmt.Fprintf(b, "- blood pressure: %d/%d mmHg\n", hp.BloodPressure.Systolic, hp.BloodPressure.Diastolic)
	}
	if hp.HeartRate != nil {
		fmt.Fprintf(b, "- heart rate: %d bpm\n", *hp.HeartRate)
	}
	if hp.BloodSugar != nil {
		fmt.Fprintf(b, "- blood sugar: %.1f mmol/L\n", *hp.BloodSugar)
	}
	if hp.Temperature != nil {
		fmt.Fprintf(b, "- body temperature: %.1f C\n", *hp.Temperature)
	}
	if hp.OxygenSaturation != nil {
		fmt.Fprintf(b, "- oxygen saturation: %d%%\n", *hp.OxygenSaturation)
	}
	if hp.SleepHours != nil {
		fmt.Fprintf(b, "- sleep: %.1f hours\n", *hp.SleepHours)
	}
	if hp.Steps != nil {
		fmt.Fprintf(b, "- steps: %d\n", *hp.Steps)
	}
}

// renderRestrictions merges stored restrictions with any the payload adds.
func renderRestrictions(b *strings.Builder, rc *models.RequestContext) {
	restrictions := append([]string(nil), rc.DietaryRestrictions...)
	for _, extra := range rc.PayloadStrings("dietary_restrictions") {
		if !containsFold(restrictions, extra) {
			restrictions = append(restrictions, extra)
		}
	}
	if len(restrictions) == 0 {
		return
	}
	b.WriteString("Dietary restrictions: ")
	b.WriteString(strings.Join(restrictions, ", "))
	b.WriteString("\n")
}

// renderMeals writes the current_diet payload as prompt lines, tolerating
// the decoded-JSON shape ([]any of maps).
func renderMeals(b *strings.Builder, rc *models.RequestContext) {
	meals, ok := rc.Payload["current_diet"].([]any)
	if !ok || len(meals) == 0 {
		return
	}
	b.WriteString("Current diet:\n")
	for _, m := range meals {
		meal, ok := m.(map[string]any)
		if !ok {
			continue
		}
		mealType, _ := meal["meal_type"].(string)
		fmt.Fprintf(b, "- %s:", mealType)
		if items, ok := meal["food_items"].([]any); ok {
			for _, it := range items {
				item, ok := it.(map[string]any)
				if !ok {
					continue
				}
				name, _ := item["name"].(string)
				amount, _ := item["amount"].(string)
				if amount != "" {
					fmt.Fprintf(b, " %s (%s)", name, amount)
				} else {
					fmt.Fprintf(b, " %s", name)
				}
			}
		}
		b.WriteString("\n")
	}
}

// renderHistoryDigest compresses per-metric series into first/last/min/max
// lines so week-scale trends fit in a prompt.
func renderHistoryDigest(b *strings.Builder, history map[string][]models.MetricSample) {
	if len(history) == 0 {
		return
	}
	b.WriteString("Metric history:\n")
	for _, metric := range []string{
		models.MetricWeight, models.MetricHeartRate, models.MetricSystolic,
		models.MetricDiastolic, models.MetricBloodSugar, models.MetricSleepHours,
		models.MetricSteps,
	} {
		samples := history[metric]
		if len(samples) == 0 {
			continue
		}
		min, max := samples[0].Value, samples[0].Value
		for _, s := range samples[1:] {
			if s.Value < min {
				min = s.Value
			}
			if s.Value > max {
				max = s.Value
			}
		}
		fmt.Fprintf(b, "- %s: %d samples, first %.1f, latest %.1f, min %.1f, max %.1f\n",
			metric, len(samples), samples[0].Value, samples[len(samples)-1].Value, min, max)
	}
}

// renderConversation writes the session digest: summary, key points, and
// the raw message tail.
func renderConversation(b *strings.Builder, conv *models.ConversationContext) {
	if conv == nil {
		return
	}
	if conv.UserName != "" {
		fmt.Fprintf(b, "User name: %s\n", conv.UserName)
	}
	if conv.SummaryText != "" {
		fmt.Fprintf(b, "Conversation so far: %s\n", conv.SummaryText)
	}
	if len(conv.KeyPoints) > 0 {
		b.WriteString("Key points:\n")
		for _, p := range conv.KeyPoints {
			fmt.Fprintf(b, "- %s\n", p)
		}
	}
	if len(conv.RecentMessages) > 0 {
		b.WriteString("Recent messages:\n")
		for _, m := range conv.RecentMessages {
			fmt.Fprintf(b, "%s: %s\n", m.Sender, m.Text)
		}
	}
}

// renderSchema spells out the exact JSON object the model must reply with.
func renderSchema(b *strings.Builder, example map[string]any) {
	raw, err := json.Marshal(example)
	if err != nil {
		return
	}
	b.WriteString("Reply with a single JSON object of this exact shape:\n")
	b.Write(raw)
	b.WriteString("\n")
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
