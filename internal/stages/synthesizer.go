package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"deepresearch/internal/guardrails"
	"deepresearch/internal/llm"
	"deepresearch/internal/research"
)

const outlinePrompt = `You are planning the structure of a research report.

RESEARCH QUESTION: %s

SOURCES COLLECTED (%d pages):
%s

Generate a report outline: a list of section headings that together fully answer the research question.

Rules:
- 4 to 7 sections maximum
- Each heading is a clear, specific statement (not vague like "Introduction" or "Overview")
- Together they must cover the research question completely
- Order them logically (context → findings → implications)

Respond with ONLY valid JSON. No other text.
Format: {"sections": ["Heading 1", "Heading 2", "Heading 3"]}`

const reportPrompt = `You are writing a research report based on collected sources.

RESEARCH QUESTION: %s

REPORT SECTIONS TO WRITE:
%s

SOURCES (numbered for citation):
%s

Write the full report in Markdown. Rules:
- Use the section headings exactly as given (## level)
- EVERY factual claim must have an inline citation [N] — no exceptions
- Multiple citations are fine: "batteries improved 40%% [1][3]"
- Be specific: include numbers, dates, names where the sources provide them
- Do NOT invent facts not present in the sources
- Do NOT include a References section — that is appended automatically
- Aim for 400-800 words total

Write the report now:`

// OutlineSummaryPreviewChars caps each summary shown in the outline prompt.
const OutlineSummaryPreviewChars = 300

// ReportSummaryPreviewChars caps each summary shown in the report prompt.
const ReportSummaryPreviewChars = 500

// MinReportChars is the floor below which a generated report is discarded
// in favor of the fallback bullet-list report.
const MinReportChars = 100

// Synthesizer turns collected page summaries into a final Markdown report.
type Synthesizer struct {
	client llm.ChatClient
}

// NewSynthesizer builds a Synthesizer.
func NewSynthesizer(client llm.ChatClient) *Synthesizer {
	return &Synthesizer{client: client}
}

// Synthesize writes Outline, FinalReport, Sources into state and marks it
// success (or partial if no summaries were collected). Never raises: LLM
// failures degrade to documented fallbacks.
func (s *Synthesizer) Synthesize(ctx context.Context, state *research.RunState, topK int) {
	if len(state.PageSummaries) == 0 {
		state.FinalReport = "No sources were collected. Cannot generate a report."
		state.Sources = nil
		state.RecordPartial("No page summaries available for synthesis")
		return
	}

	selected := state.PageSummaries
	if topK > 0 && len(selected) > topK {
		selected = selected[:topK]
	}
	sources := make([]string, 0, len(selected))
	for _, sm := range selected {
		sources = append(sources, sm.URL)
	}

	sections := s.generateOutline(ctx, state.Query, selected)
	state.Outline = sections

	reportBody := s.generateReport(ctx, state.Query, sections, selected)
	finalReport := strings.TrimSpace(reportBody) + "\n\n" + buildReferences(selected)

	badCitations := guardrails.CheckCitationBounds(finalReport, len(sources))
	if len(badCitations) > 0 {
		state.AddError(fmt.Sprintf("Out-of-bounds citations in report: %v (only %d sources available)", badCitations, len(sources)))
	}

	state.FinalReport = finalReport
	state.Sources = sources
	state.RecordSuccess()
}

func (s *Synthesizer) generateOutline(ctx context.Context, query string, summaries []research.PageSummary) []string {
	prompt := fmt.Sprintf(outlinePrompt, query, len(summaries), formatForOutline(summaries))

	text, err := s.client.Generate(ctx, []llm.Message{{Role: "user", Content: prompt}})
	if err == nil {
		if sections := parseOutline(text); len(sections) > 0 {
			return sections
		}
	}
	return []string{fmt.Sprintf("Research Findings: %s", query)}
}

func (s *Synthesizer) generateReport(ctx context.Context, query string, sections []string, summaries []research.PageSummary) string {
	var sectionsText strings.Builder
	for i, sec := range sections {
		fmt.Fprintf(&sectionsText, "%d. %s\n", i+1, sec)
	}

	prompt := fmt.Sprintf(reportPrompt, query, sectionsText.String(), formatForReport(summaries))

	text, err := s.client.Generate(ctx, []llm.Message{{Role: "user", Content: prompt}})
	if err == nil {
		trimmed := strings.TrimSpace(text)
		if len(trimmed) >= MinReportChars {
			return text
		}
	}
	return fallbackReport(query, summaries)
}

func formatForOutline(summaries []research.PageSummary) string {
	var b strings.Builder
	for i, sm := range summaries {
		title := sm.Title
		if title == "" {
			title = sm.URL
		}
		fmt.Fprintf(&b, "[%d] %s\n", i+1, title)
		preview := sm.Summary
		if len(preview) > OutlineSummaryPreviewChars {
			preview = preview[:OutlineSummaryPreviewChars]
		}
		b.WriteString(preview)
		b.WriteString("\n\n")
	}
	return b.String()
}

func formatForReport(summaries []research.PageSummary) string {
	var b strings.Builder
	for i, sm := range summaries {
		title := sm.Title
		if title == "" {
			title = sm.URL
		}
		fmt.Fprintf(&b, "[%d] %s (%s)\n", i+1, title, sm.URL)
		preview := sm.Summary
		if len(preview) > ReportSummaryPreviewChars {
			preview = preview[:ReportSummaryPreviewChars]
		}
		b.WriteString(preview)
		b.WriteString("\n\n")
	}
	return b.String()
}

func buildReferences(summaries []research.PageSummary) string {
	var b strings.Builder
	b.WriteString("## References\n\n")
	for i, sm := range summaries {
		title := sm.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&b, "[%d] %s  \n", i+1, title)
		fmt.Fprintf(&b, "    %s\n\n", sm.URL)
	}
	return b.String()
}

func fallbackReport(query string, summaries []research.PageSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Research: %s\n\n", query)
	b.WriteString("*Note: Full synthesis unavailable. Raw findings below.*\n\n")
	for i, sm := range summaries {
		title := sm.Title
		if title == "" {
			title = sm.URL
		}
		fmt.Fprintf(&b, "### [%d] %s\n", i+1, title)
		b.WriteString(sm.Summary)
		b.WriteString("\n\n")
	}
	return b.String()
}

func parseOutline(text string) []string {
	var parsed struct {
		Sections []string `json:"sections"`
	}
	clean := llm.StripMarkdownFence(text)
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return nil
	}
	var out []string
	for _, sec := range parsed.Sections {
		if sec != "" {
			out = append(out, sec)
		}
	}
	return out
}
