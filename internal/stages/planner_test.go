package stages

import (
	"context"
	"testing"
)

func TestDecomposeParsesQueries(t *testing.T) {
	client := &fakeChatClient{responses: []string{
		`{"queries": ["battery 2025 breakthroughs", "solid state production timeline"]}`,
	}}
	p := NewPlanner(client)

	got := p.Decompose(context.Background(), "what is the state of battery research", 0)
	if len(got) != 2 {
		t.Fatalf("expected 2 subqueries, got %d: %v", len(got), got)
	}
}

func TestDecomposeStripsMarkdownFence(t *testing.T) {
	client := &fakeChatClient{responses: []string{
		"```json\n{\"queries\": [\"a query\"]}\n```",
	}}
	p := NewPlanner(client)

	got := p.Decompose(context.Background(), "a question", 0)
	if len(got) != 1 || got[0] != "a query" {
		t.Fatalf("expected fenced JSON to parse, got %v", got)
	}
}

func TestDecomposeFallsBackOnLLMFailure(t *testing.T) {
	client := &fakeChatClient{failNext: true}
	p := NewPlanner(client)

	got := p.Decompose(context.Background(), "the original question", 0)
	if len(got) != 1 || got[0] != "the original question" {
		t.Fatalf("expected fallback to original query, got %v", got)
	}
}

func TestDecomposeFallsBackOnUnparseableResponse(t *testing.T) {
	client := &fakeChatClient{responses: []string{"not json at all"}}
	p := NewPlanner(client)

	got := p.Decompose(context.Background(), "the original question", 0)
	if len(got) != 1 || got[0] != "the original question" {
		t.Fatalf("expected fallback on parse failure, got %v", got)
	}
}
