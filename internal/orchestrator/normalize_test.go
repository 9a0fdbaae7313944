package orchestrator

import (
	"strings"
	"testing"
)

var adviceFallback = map[string]any{"advice": "unavailable"}

func TestNormalizeFencedBlock(t *testing.T) {
	raw := "Here is your advice.\n```json\n{\"advice\": \"eat more vegetables\"}\n```\nHope that helps."
	resp := Normalize(raw, []string{"advice"}, adviceFallback)
	if resp.IsFallback {
		t.Fatalf("expected parsed response, got fallback")
	}
	if got := resp.String("advice"); got != "eat more vegetables" {
		t.Fatalf("advice = %q", got)
	}
}

func TestNormalizeFencedBlockBeatsLooseObject(t *testing.T) {
	raw := "Noise {\"advice\": \"from loose braces\"} more noise\n" +
		"```json\n{\"advice\": \"from fence\"}\n```"
	resp := Normalize(raw, []string{"advice"}, adviceFallback)
	if got := resp.String("advice"); got != "from fence" {
		t.Fatalf("fenced block should win, got %q", got)
	}
}

func TestNormalizeBalancedObject(t *testing.T) {
	raw := "The model says: {\"advice\": \"walk {30} minutes\", \"note\": \"a { b\"} trailing"
	resp := Normalize(raw, []string{"advice"}, adviceFallback)
	if resp.IsFallback {
		t.Fatalf("expected balanced object to parse")
	}
	if got := resp.String("advice"); got != "walk {30} minutes" {
		t.Fatalf("advice = %q", got)
	}
}

func TestNormalizeNeverPanics(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"no structure at all",
		"{unbalanced",
		"}}}{{{",
		"{\"broken\": }",
		"```json\nnot json\n```",
		string([]byte{0x00, 0xff, 0xfe, '{', '}'}),
		strings.Repeat("{", 2000),
	}
	for _, raw := range inputs {
		resp := Normalize(raw, []string{"advice"}, adviceFallback)
		if resp == nil {
			t.Fatalf("nil response for %q", raw)
		}
		if !resp.IsFallback {
			t.Fatalf("expected fallback for %q", raw)
		}
		if _, ok := resp.Fields["advice"]; !ok {
			t.Fatalf("schema key missing for %q", raw)
		}
	}
}

func TestNormalizePartialMerge(t *testing.T) {
	schema := []string{"advice", "recommendations", "explanation"}
	fallback := map[string]any{
		"advice":          "unavailable",
		"recommendations": []any{},
		"explanation":     "none",
	}
	raw := `{"advice": "sleep more"}`
	resp := Normalize(raw, schema, fallback)
	if resp.IsFallback {
		t.Fatalf("partial parse should not be a fallback")
	}
	if got := resp.String("advice"); got != "sleep more" {
		t.Fatalf("advice = %q", got)
	}
	if got := resp.String("explanation"); got != "none" {
		t.Fatalf("missing field should come from fallback, got %q", got)
	}
	for _, key := range schema {
		if _, ok := resp.Fields[key]; !ok {
			t.Fatalf("schema key %q missing", key)
		}
	}
}

func TestNormalizeNoSchemaFieldsIsFallback(t *testing.T) {
	raw := `{"unrelated": "object"}`
	resp := Normalize(raw, []string{"advice"}, adviceFallback)
	if !resp.IsFallback {
		t.Fatalf("object without schema fields should fall back")
	}
	if got := resp.String("advice"); got != "unavailable" {
		t.Fatalf("fallback advice = %q", got)
	}
}

func TestNormalizeFallbackIsCopied(t *testing.T) {
	fallback := map[string]any{"advice": "unavailable", "recommendations": []any{"a"}}
	resp := Normalize("garbage", []string{"advice", "recommendations"}, fallback)
	resp.Fields["advice"] = "mutated"
	if fallback["advice"] != "unavailable" {
		t.Fatalf("fallback record was mutated through the response")
	}
}

func TestNormalizePartialMergeCopiesFallbackValues(t *testing.T) {
	fallback := map[string]any{
		"advice":          "unavailable",
		"recommendations": []any{"rest"},
	}
	resp := Normalize(`{"advice": "sleep more"}`, []string{"advice", "recommendations"}, fallback)
	if resp.IsFallback {
		t.Fatalf("partial parse should not be a fallback")
	}
	recs, ok := resp.Fields["recommendations"].([]any)
	if !ok || len(recs) != 1 {
		t.Fatalf("recommendations = %v", resp.Fields["recommendations"])
	}
	recs[0] = "mutated"
	if orig := fallback["recommendations"].([]any); orig[0] != "rest" {
		t.Fatalf("fallback slice was mutated through a merged response")
	}
}
