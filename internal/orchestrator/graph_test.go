package orchestrator

import (
	"context"
	"errors"
	"testing"

	"healthmate/internal/models"
)

func TestGraphRunsToTerminal(t *testing.T) {
	var visited []string
	g := NewGraph("test", []string{"advice"}, adviceFallback).
		Stage("first", func(ctx context.Context, rc *models.RequestContext) (string, error) {
			visited = append(visited, "first")
			return "next", nil
		}).
		Stage("second", func(ctx context.Context, rc *models.RequestContext) (string, error) {
			visited = append(visited, "second")
			rc.Response = &models.NormalizedResponse{Fields: map[string]any{"advice": "done"}}
			return Terminal, nil
		}).
		Edge("first", "next", "second")

	rc := &models.RequestContext{}
	resp := g.Run(context.Background(), rc)
	if len(visited) != 2 || visited[0] != "first" || visited[1] != "second" {
		t.Fatalf("visited = %v", visited)
	}
	if resp.IsFallback || resp.String("advice") != "done" {
		t.Fatalf("unexpected response: %#v", resp)
	}
}

func TestGraphUnknownRouteUsesDefault(t *testing.T) {
	g := NewGraph("test", []string{"advice"}, adviceFallback).
		Stage("classify", func(ctx context.Context, rc *models.RequestContext) (string, error) {
			return "nonsense-route", nil
		}).
		Stage("general", func(ctx context.Context, rc *models.RequestContext) (string, error) {
			rc.Response = &models.NormalizedResponse{Fields: map[string]any{"advice": "general"}}
			return Terminal, nil
		}).
		Edge("classify", "specialist", "missing-stage").
		Default("general")

	resp := g.Run(context.Background(), &models.RequestContext{})
	if resp.String("advice") != "general" {
		t.Fatalf("unknown route should land on the default stage, got %#v", resp)
	}
}

func TestGraphStageErrorFallsBack(t *testing.T) {
	g := NewGraph("test", []string{"advice"}, adviceFallback).
		Stage("only", func(ctx context.Context, rc *models.RequestContext) (string, error) {
			return "", errors.New("model exploded")
		})

	rc := &models.RequestContext{}
	resp := g.Run(context.Background(), rc)
	if !resp.IsFallback {
		t.Fatalf("stage error must resolve to fallback")
	}
	if resp.String("advice") != "unavailable" {
		t.Fatalf("fallback advice = %q", resp.String("advice"))
	}
	if rc.Response != resp {
		t.Fatalf("response not threaded into the request context")
	}
}

func TestGraphHopBudget(t *testing.T) {
	// Two stages routing to each other would cycle; the hop budget caps the
	// run at one hop per stage and resolves to fallback.
	g := NewGraph("test", []string{"advice"}, adviceFallback).
		Stage("a", func(ctx context.Context, rc *models.RequestContext) (string, error) {
			return "go", nil
		}).
		Stage("b", func(ctx context.Context, rc *models.RequestContext) (string, error) {
			return "go", nil
		}).
		Edge("a", "go", "b").
		Edge("b", "go", "a")

	resp := g.Run(context.Background(), &models.RequestContext{})
	if resp == nil || !resp.IsFallback {
		t.Fatalf("cyclic routing must still terminate with a fallback, got %#v", resp)
	}
}

func TestGraphTerminalWithoutResponseGetsFallback(t *testing.T) {
	g := NewGraph("test", []string{"advice"}, adviceFallback).
		Stage("noop", func(ctx context.Context, rc *models.RequestContext) (string, error) {
			return Terminal, nil
		})

	resp := g.Run(context.Background(), &models.RequestContext{})
	if !resp.IsFallback {
		t.Fatalf("terminal without a response must yield the fallback")
	}
}
