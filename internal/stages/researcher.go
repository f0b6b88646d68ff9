package stages

import (
	"context"
	"fmt"
	"strings"

	"deepresearch/internal/llm"
	"deepresearch/internal/research"
	"deepresearch/internal/tools"
)

const summarizePrompt = `Research query: %s

Page title: %s
Page URL: %s

Page content:
%s

Extract ALL facts from this page that are relevant to the research query above.
Write bullet points only. Each bullet = one discrete fact.
Be specific: include numbers, dates, names, percentages where present.
Ignore content unrelated to the query.
Maximum %d words total.`

// MinContentWords is the floor below which a page's best content is
// considered unusable for summarization.
const MinContentWords = 30

// FetchThresholdWords is the content length below which the researcher
// attempts a direct fetch rather than trusting the search result's extract.
const FetchThresholdWords = 100

// TruncateWords bounds page content sent to the cheap model.
const TruncateWords = 2000

// Researcher executes one subquery: search, deduplicate, summarize.
type Researcher struct {
	client llm.ChatClient
	search tools.Search
	fetch  tools.Fetch
}

// NewResearcher builds a Researcher.
func NewResearcher(client llm.ChatClient, search tools.Search, fetch tools.Fetch) *Researcher {
	return &Researcher{client: client, search: search, fetch: fetch}
}

// Research executes subquery against state at round roundNumber, appending
// zero or more PageSummary entries directly into state, and returns the
// count appended.
func (r *Researcher) Research(ctx context.Context, subquery string, state *research.RunState, roundNumber int, maxResults, maxSummaryWords int) int {
	results := r.search.Search(ctx, subquery, maxResults)
	if len(results) == 0 {
		return 0
	}

	seenInBatch := make(map[string]struct{})
	var fresh []tools.SearchResult
	for _, res := range results {
		if res.URL == "" || state.VisitedURLs(res.URL) {
			continue
		}
		if _, dup := seenInBatch[res.URL]; dup {
			continue
		}
		seenInBatch[res.URL] = struct{}{}
		fresh = append(fresh, res)
	}

	added := 0
	for _, res := range fresh {
		summary, ok := r.summarize(ctx, res, subquery, roundNumber, maxSummaryWords)
		if !ok {
			continue
		}
		state.AddSummary(summary)
		added++
	}
	return added
}

func (r *Researcher) summarize(ctx context.Context, res tools.SearchResult, subquery string, roundNumber, maxSummaryWords int) (research.PageSummary, bool) {
	content := res.BestContent()
	source := research.SourceTavily

	if len(strings.Fields(content)) < FetchThresholdWords {
		fetched := r.fetch.Fetch(ctx, res.URL)
		if fetched.Success {
			content = fetched.Content
			source = research.SourceKind(fetched.Source)
		}
	}

	if content == "" || len(strings.Fields(content)) < MinContentWords {
		return research.PageSummary{}, false
	}
	content = truncateWords(content, TruncateWords)

	title := res.Title
	if title == "" {
		title = res.URL
	}
	prompt := fmt.Sprintf(summarizePrompt, subquery, title, res.URL, content, maxSummaryWords)

	summaryText, err := r.client.GenerateCheap(ctx, prompt)
	if err != nil {
		return research.PageSummary{}, false
	}
	summaryText = strings.TrimSpace(summaryText)
	if len(summaryText) < 20 {
		return research.PageSummary{}, false
	}

	return research.PageSummary{
		URL:         res.URL,
		Title:       res.Title,
		Summary:     summaryText,
		Subquery:    subquery,
		RoundNumber: roundNumber,
		WordCount:   len(strings.Fields(summaryText)),
		Source:      source,
	}, true
}

func truncateWords(s string, max int) string {
	words := strings.Fields(s)
	if len(words) <= max {
		return s
	}
	return strings.Join(words[:max], " ")
}
