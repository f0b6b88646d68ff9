package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"deepresearch/internal/llm"
	"deepresearch/internal/research"
)

const reflectPrompt = `You are evaluating research coverage for the following question:

RESEARCH QUESTION: %s

SUMMARIES COLLECTED (%d sources across %d round(s)):
%s

Evaluate whether the collected summaries adequately answer the research question.

Ask yourself:
- Are there important aspects of the question that are NOT covered?
- Is a specific subtopic missing entirely?
- Would a targeted follow-up search meaningfully improve the answer?

If YES — there is a meaningful gap:
  Return JSON with a specific follow-up query that addresses the gap.

If NO — coverage is sufficient:
  Return JSON with follow_up_query as null.

Respond with ONLY valid JSON. No other text.
Format: {"knowledge_gap": "<what is missing or null>", "follow_up_query": "<specific search query or null>"}`

// MaxSummariesShown caps how many summaries are rendered into the
// reflection prompt, to keep it within context bounds.
const MaxSummariesShown = 30

// SummaryPreviewChars caps each summary's contribution to the prompt.
const SummaryPreviewChars = 500

// Reflector evaluates research coverage and decides whether to continue.
type Reflector struct {
	client llm.ChatClient
}

// NewReflector builds a Reflector.
func NewReflector(client llm.ChatClient) *Reflector {
	return &Reflector{client: client}
}

// Reflect evaluates state and returns a ReflectionOutcome. If a gap is
// found, the follow-up query is also appended to state.KnowledgeGaps.
func (r *Reflector) Reflect(ctx context.Context, state *research.RunState) research.ReflectionOutcome {
	if len(state.PageSummaries) == 0 {
		outcome := research.ReflectionOutcome{
			HasGap:         true,
			FollowUpQuery:  state.Query,
			GapDescription: "No summaries collected yet",
		}
		state.AddGap(outcome.FollowUpQuery)
		return outcome
	}

	prompt := fmt.Sprintf(reflectPrompt, state.Query, len(state.PageSummaries), state.RoundsCompleted, formatSummaries(state.PageSummaries))

	text, err := r.client.Generate(ctx, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return research.ReflectionOutcome{
			HasGap:         false,
			GapDescription: "Reflection failed — stopping to synthesize",
		}
	}

	outcome := parseReflection(text)
	if outcome.HasGap {
		state.AddGap(outcome.FollowUpQuery)
	}
	return outcome
}

func formatSummaries(summaries []research.PageSummary) string {
	shown := summaries
	if len(shown) > MaxSummariesShown {
		shown = shown[:MaxSummariesShown]
	}

	var b strings.Builder
	for i, s := range shown {
		title := s.Title
		if title == "" {
			title = s.URL
		}
		fmt.Fprintf(&b, "[%d] Round %d — %s\n", i+1, s.RoundNumber, title)
		preview := s.Summary
		if len(preview) > SummaryPreviewChars {
			preview = preview[:SummaryPreviewChars]
		}
		b.WriteString(preview)
		b.WriteString("\n\n")
	}
	return b.String()
}

func parseReflection(text string) research.ReflectionOutcome {
	var parsed struct {
		KnowledgeGap  *string `json:"knowledge_gap"`
		FollowUpQuery *string `json:"follow_up_query"`
	}
	clean := llm.StripMarkdownFence(text)
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return research.ReflectionOutcome{
			HasGap:         false,
			GapDescription: "Could not parse reflection response",
		}
	}

	gapDesc := ""
	if parsed.KnowledgeGap != nil {
		gapDesc = *parsed.KnowledgeGap
	}

	if parsed.FollowUpQuery != nil {
		followUp := strings.TrimSpace(*parsed.FollowUpQuery)
		lower := strings.ToLower(followUp)
		if followUp != "" && lower != "null" && lower != "none" {
			return research.ReflectionOutcome{
				HasGap:         true,
				FollowUpQuery:  followUp,
				GapDescription: gapDesc,
			}
		}
	}

	if gapDesc == "" {
		gapDesc = "Coverage sufficient"
	}
	return research.ReflectionOutcome{HasGap: false, GapDescription: gapDesc}
}
