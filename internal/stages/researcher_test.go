package stages

import (
	"context"
	"strings"
	"testing"

	"deepresearch/internal/research"
	"deepresearch/internal/tools"
)

func longContent(words int) string {
	parts := make([]string, words)
	for i := range parts {
		parts[i] = "word"
	}
	return strings.Join(parts, " ")
}

func TestResearchAddsSummaryForFreshURL(t *testing.T) {
	client := &fakeChatClient{responses: []string{"- fact one\n- fact two"}}
	search := &fakeSearch{results: []tools.SearchResult{
		{URL: "https://a.example", Title: "A", RawContent: longContent(150)},
	}}
	fetch := &fakeFetch{}
	r := NewResearcher(client, search, fetch)
	state := research.New("a sufficiently long research question")

	added := r.Research(context.Background(), "subquery", state, 1, 10, 300)
	if added != 1 {
		t.Fatalf("expected 1 summary added, got %d", added)
	}
	if state.TotalSources() != 1 {
		t.Fatalf("expected 1 source in state, got %d", state.TotalSources())
	}
	if !state.VisitedURLs("https://a.example") {
		t.Fatalf("expected URL marked visited")
	}
}

func TestResearchSkipsAlreadyVisitedURL(t *testing.T) {
	client := &fakeChatClient{}
	search := &fakeSearch{results: []tools.SearchResult{
		{URL: "https://a.example", RawContent: longContent(150)},
	}}
	r := NewResearcher(client, search, &fakeFetch{})
	state := research.New("a sufficiently long research question")
	state.AddSummary(research.PageSummary{URL: "https://a.example"})

	added := r.Research(context.Background(), "subquery", state, 1, 10, 300)
	if added != 0 {
		t.Fatalf("expected 0 new summaries for already-visited URL, got %d", added)
	}
}

func TestResearchDedupesWithinBatch(t *testing.T) {
	client := &fakeChatClient{responses: []string{"- fact one\n- fact two"}}
	search := &fakeSearch{results: []tools.SearchResult{
		{URL: "https://a.example", RawContent: longContent(150)},
		{URL: "https://a.example", RawContent: longContent(150)},
	}}
	r := NewResearcher(client, search, &fakeFetch{})
	state := research.New("a sufficiently long research question")

	added := r.Research(context.Background(), "subquery", state, 1, 10, 300)
	if added != 1 {
		t.Fatalf("expected first-occurrence-wins dedup, got %d added", added)
	}
}

func TestResearchFallsBackToFetchWhenContentThin(t *testing.T) {
	client := &fakeChatClient{responses: []string{"- fact from fetched page"}}
	search := &fakeSearch{results: []tools.SearchResult{
		{URL: "https://a.example", Content: "too thin"},
	}}
	fetch := &fakeFetch{result: tools.FetchResult{
		URL: "https://a.example", Success: true, Source: "trafilatura", Content: longContent(150),
	}}
	r := NewResearcher(client, search, fetch)
	state := research.New("a sufficiently long research question")

	added := r.Research(context.Background(), "subquery", state, 1, 10, 300)
	if added != 1 {
		t.Fatalf("expected fetch fallback to produce a summary, got %d", added)
	}
	if state.PageSummaries[0].Source != research.SourceTrafilatura {
		t.Fatalf("expected source=trafilatura, got %s", state.PageSummaries[0].Source)
	}
}

func TestResearchSkipsWhenContentStillThinAfterFetch(t *testing.T) {
	client := &fakeChatClient{}
	search := &fakeSearch{results: []tools.SearchResult{
		{URL: "https://a.example", Content: "too thin"},
	}}
	fetch := &fakeFetch{result: tools.FetchResult{Success: false}}
	r := NewResearcher(client, search, fetch)
	state := research.New("a sufficiently long research question")

	added := r.Research(context.Background(), "subquery", state, 1, 10, 300)
	if added != 0 {
		t.Fatalf("expected 0 summaries when content unusable, got %d", added)
	}
}

func TestResearchSkipsWhenCheapModelFails(t *testing.T) {
	client := &fakeChatClient{failNext: true}
	search := &fakeSearch{results: []tools.SearchResult{
		{URL: "https://a.example", RawContent: longContent(150)},
	}}
	r := NewResearcher(client, search, &fakeFetch{})
	state := research.New("a sufficiently long research question")

	added := r.Research(context.Background(), "subquery", state, 1, 10, 300)
	if added != 0 {
		t.Fatalf("expected 0 summaries on cheap model failure, got %d", added)
	}
}

func TestResearchNoResultsReturnsZero(t *testing.T) {
	client := &fakeChatClient{}
	r := NewResearcher(client, &fakeSearch{}, &fakeFetch{})
	state := research.New("a sufficiently long research question")

	added := r.Research(context.Background(), "subquery", state, 1, 10, 300)
	if added != 0 {
		t.Fatalf("expected 0 for empty search results, got %d", added)
	}
}
