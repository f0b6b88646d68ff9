// Package stages implements the four pipeline stages the orchestrator
// drives in order: Planner, Researcher, Reflector, Synthesizer. Each stage
// is defensive by contract — a collaborator failure never propagates past
// the stage boundary, it degrades to a documented fallback.
package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"deepresearch/internal/guardrails"
	"deepresearch/internal/llm"
)

const decomposePrompt = `You are a research strategist. Your job is to decompose a complex question
into specific, targeted search queries that together will provide comprehensive coverage.

QUESTION: %s

Generate %d search queries that:
1. Each targets a distinct angle or subtopic of the question
2. Are specific enough to return focused results (not too broad)
3. Use concrete terminology that search engines respond well to
4. Together cover the question comprehensively

Do NOT generate:
- Queries that are just rewordings of each other
- Overly broad queries ("tell me about X")
- Queries asking for opinions ("what do people think about X")

Respond with ONLY valid JSON. No other text.
Format: {"queries": ["query1", "query2", "query3"]}`

// DefaultSubqueryCount is how many search angles the planner asks for when
// the caller doesn't override it.
const DefaultSubqueryCount = 4

// Planner decomposes one research question into targeted search queries.
type Planner struct {
	client llm.ChatClient
}

// NewPlanner builds a Planner.
func NewPlanner(client llm.ChatClient) *Planner {
	return &Planner{client: client}
}

// Decompose breaks query into n targeted search queries (n <= 0 uses
// DefaultSubqueryCount). Never returns an empty slice: any LLM failure or
// unparseable response falls back to a single subquery equal to query.
func (p *Planner) Decompose(ctx context.Context, query string, n int) []string {
	if n <= 0 {
		n = DefaultSubqueryCount
	}

	text, err := p.client.Generate(ctx, []llm.Message{
		{Role: "user", Content: fmt.Sprintf(decomposePrompt, query, n)},
	})
	if err != nil {
		return []string{query}
	}

	queries := parseQueries(text)
	if len(queries) == 0 {
		return []string{query}
	}
	return guardrails.DeduplicateQueries(queries)
}

func parseQueries(text string) []string {
	var parsed struct {
		Queries []string `json:"queries"`
	}
	clean := llm.StripMarkdownFence(text)
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return nil
	}

	var out []string
	for _, q := range parsed.Queries {
		if q != "" {
			out = append(out, q)
		}
	}
	return out
}
