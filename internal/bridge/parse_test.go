package bridge

import (
	"math"
	"testing"
	"time"
)

func TestParseOutput_ResultFormat(t *testing.T) {
	out := ParseOutput(`{"type":"result","result":"All done"}`)

	if out.Text != "All done" {
		t.Errorf("expected result text, got %q", out.Text)
	}
}

func TestParseOutput_PayloadText(t *testing.T) {
	raw := `{"payloads":[{"text":""},{"text":"First real answer"},{"text":"second"}]}`
	out := ParseOutput(raw)

	// Выигрывает первый payload с непустым text.
	if out.Text != "First real answer" {
		t.Errorf("expected first non-empty payload, got %q", out.Text)
	}
}

func TestParseOutput_ToolCallOnly(t *testing.T) {
	raw := `{"payloads":[{"content":{"type":"tool_use","name":"search"}}]}`
	out := ParseOutput(raw)

	if out.Text == NoTextOutput {
		t.Fatal("expected structured content as text, got sentinel")
	}
	if out.Text == "" {
		t.Fatal("text must never be empty")
	}
}

func TestParseOutput_NonJSON(t *testing.T) {
	out := ParseOutput("  plain text answer \n")

	if out.Text != "plain text answer" {
		t.Errorf("expected trimmed raw text, got %q", out.Text)
	}
}

func TestParseOutput_Empty(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty string", raw: ""},
		{name: "whitespace", raw: "   \n\t"},
		{name: "json without text", raw: `{"payloads":[]}`},
		{name: "null content", raw: `{"payloads":[{"content":null}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ParseOutput(tt.raw)
			if out.Text != NoTextOutput {
				t.Errorf("expected sentinel, got %q", out.Text)
			}
		})
	}
}

func TestParseOutput_Usage(t *testing.T) {
	raw := `{
		"result": "ok",
		"usage": {
			"total_cost_usd": 0.042,
			"input_tokens": 100,
			"output_tokens": 50,
			"cache_read_input_tokens": 30,
			"cache_creation_input_tokens": 20
		}
	}`
	out := ParseOutput(raw)

	if out.CostUSD != 0.042 {
		t.Errorf("expected cost 0.042, got %v", out.CostUSD)
	}
	if out.TokensUsed != 200 {
		t.Errorf("expected 200 tokens, got %d", out.TokensUsed)
	}
}

func TestParseOutput_LegacyUsage(t *testing.T) {
	raw := `{
		"result": "ok",
		"meta": {
			"agentMeta": {
				"usage": {"total": 1500, "input": 1000, "output": 500}
			}
		}
	}`
	out := ParseOutput(raw)

	if out.TokensUsed != 1500 {
		t.Errorf("expected 1500 tokens, got %d", out.TokensUsed)
	}

	// Legacy-тариф: вход и выход по своим ценам за токен.
	expected := 1000*legacyInputTokenUSD + 500*legacyOutputTokenUSD
	if math.Abs(out.CostUSD-expected) > 1e-12 {
		t.Errorf("expected legacy cost %v, got %v", expected, out.CostUSD)
	}
}

func TestParseOutput_TopLevelCostWins(t *testing.T) {
	raw := `{
		"result": "ok",
		"total_cost_usd": 0.01,
		"meta": {"agentMeta": {"usage": {"total": 10, "input": 5, "output": 5}}}
	}`
	out := ParseOutput(raw)

	if out.CostUSD != 0.01 {
		t.Errorf("expected explicit cost to win over legacy rates, got %v", out.CostUSD)
	}
}

func TestParseOutput_ZeroUsageIsValid(t *testing.T) {
	out := ParseOutput(`{"result":"free","usage":{}}`)

	if out.CostUSD != 0 || out.TokensUsed != 0 {
		t.Errorf("zero usage is a declared fact: cost=%v tokens=%d", out.CostUSD, out.TokensUsed)
	}
	if out.Text != "free" {
		t.Errorf("expected text, got %q", out.Text)
	}
}

func TestDailySessionID(t *testing.T) {
	now := time.Date(2026, 8, 31, 15, 4, 0, 0, time.UTC)

	got := DailySessionID("pipeline", "jake-lead-scout", now)
	if got != "pipeline-jake-lead-scout-2026-08-31" {
		t.Errorf("unexpected session id: %q", got)
	}

	// Один день — один session id независимо от времени суток.
	later := now.Add(5 * time.Hour)
	if DailySessionID("pipeline", "jake-lead-scout", later) != got {
		t.Error("session id should be stable within a day")
	}
}
