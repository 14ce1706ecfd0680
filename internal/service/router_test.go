package service_test

import (
	"testing"

	"github.com/finbot/finbot/internal/service"
)

func TestTableRouter_Expenses(t *testing.T) {
	r := service.NewTableRouter()

	prompts := []string{
		"spent 150 on lunch",
		"paid the electricity bill",
		"bought groceries for 900",
		"uber to office 240",
	}
	for _, p := range prompts {
		res := r.Route(p)
		if res.Table != "expenses" {
			t.Errorf("expected expenses for %q, got %q (confidence %.2f: %s)",
				p, res.Table, res.Confidence, res.Reasoning)
		}
	}
}

func TestTableRouter_Income(t *testing.T) {
	r := service.NewTableRouter()

	prompts := []string{
		"salary received 50000",
		"got a bonus today",
		"freelance income 12000",
	}
	for _, p := range prompts {
		res := r.Route(p)
		if res.Table != "income" {
			t.Errorf("expected income for %q, got %q (confidence %.2f: %s)",
				p, res.Table, res.Confidence, res.Reasoning)
		}
	}
}

func TestTableRouter_Other(t *testing.T) {
	r := service.NewTableRouter()

	tests := []struct {
		prompt string
		want   string
	}{
		{"transfer 5000 to savings", "transfers"},
		{"what's my credit card balance", "accounts"},
		{"how much of my food budget is left", "categories"},
		{"I borrowed 2000 from Rafi", "loans"},
		{"did I tick netflix this month", "subscriptions"},
	}
	for _, tt := range tests {
		res := r.Route(tt.prompt)
		if res.Table != tt.want {
			t.Errorf("Route(%q) = %q, want %q (%v)", tt.prompt, res.Table, tt.want, res.Scores)
		}
	}
}

func TestTableRouter_DefaultWhenNoKeywords(t *testing.T) {
	r := service.NewTableRouter()
	res := r.Route("hello there")
	if res.Table != "expenses" {
		t.Errorf("expected default expenses, got %q", res.Table)
	}
	if res.Confidence != 0.5 {
		t.Errorf("expected confidence 0.5, got %.2f", res.Confidence)
	}
}
