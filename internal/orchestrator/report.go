package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"healthmate/internal/models"
)

var reportSchema = []string{"metrics_summary", "achievements", "challenges", "recommendations", "next_steps", "overall_status"}

var reportFallback = map[string]any{
	"metrics_summary": "Not enough data to produce a weekly report right now.",
	"achievements":    []any{},
	"challenges":      []any{},
	"recommendations": []any{},
	"next_steps":      []any{},
	"overall_status":  "unknown",
}

// reportGraph is the one-stage weekly report: the metric history digest and
// recent logged activity go in, a structured status report comes out.
func (e *Engine) reportGraph() *Graph {
	return NewGraph(FeatureWeeklyReport, reportSchema, reportFallback).
		Stage("weekly_report", e.reportStage)
}

func (e *Engine) reportStage(ctx context.Context, rc *models.RequestContext) (string, error) {
	var b strings.Builder
	b.WriteString("You are writing a weekly health report for the user below.\n\n")
	b.WriteString("Latest snapshot:\n")
	renderProfile(&b, rc.HealthProfile)
	renderHistoryDigest(&b, weekSlice(rc.MetricsHistory))
	e.renderRecentActivity(ctx, &b, rc.UserID)
	renderSchema(&b, map[string]any{
		"metrics_summary": "plain-language summary of the week's metrics",
		"achievements":    []any{"positive trend"},
		"challenges":      []any{"negative trend or gap"},
		"recommendations": []any{"concrete adjustment"},
		"next_steps":      []any{"step for next week"},
		"overall_status":  "improving, stable, or declining",
	})

	raw, err := e.complete(ctx, b.String())
	if err != nil {
		return "", err
	}
	rc.Response = Normalize(raw, reportSchema, reportFallback)
	return Terminal, nil
}

// renderRecentActivity folds the user's recent logged meals and workouts
// into the report prompt. History is best-effort context here.
func (e *Engine) renderRecentActivity(ctx context.Context, b *strings.Builder, userID int64) {
	for _, feature := range []string{FeatureDietAdvice, FeatureExercise} {
		records, err := e.store.RecentDomainHistory(ctx, userID, feature, 5)
		if err != nil || len(records) == 0 {
			continue
		}
		fmt.Fprintf(b, "Recent %s activity:\n", strings.ReplaceAll(feature, "_", " "))
		for _, rec := range records {
			for _, key := range []string{"advice", "recommendation_summary", "metrics_summary"} {
				if s, ok := rec.Payload[key].(string); ok && s != "" {
					fmt.Fprintf(b, "- %s: %s\n", rec.CreatedAt.Format("Jan 2"), truncate(s, 160))
					break
				}
			}
		}
	}
}

// weekSlice narrows the assembled history to the report's week.
func weekSlice(history map[string][]models.MetricSample) map[string][]models.MetricSample {
	cutoff := time.Now().AddDate(0, 0, -7)
	out := make(map[string][]models.MetricSample, len(history))
	for metric, samples := range history {
		for i, s := range samples {
			if !s.Timestamp.Before(cutoff) {
				out[metric] = samples[i:]
				break
			}
		}
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
