package tools

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

const tavilySearchURL = "https://api.tavily.com/search"

// SearchResult is one Tavily result. Content is Tavily's short cleaned
// extract (always present); RawContent is the full page text, present when
// Tavily's extractor succeeded on that URL.
type SearchResult struct {
	URL        string
	Title      string
	Content    string
	RawContent string
	Score      float64
	Query      string
}

// BestContent returns the richest available text: RawContent when it looks
// substantial, otherwise falls back to the short Content extract. A short
// raw_content usually means Tavily hit a JavaScript-only page.
func (r SearchResult) BestContent() string {
	if len(r.RawContent) > 200 {
		return r.RawContent
	}
	return r.Content
}

// WordCount is the word count of BestContent.
func (r SearchResult) WordCount() int {
	return len(strings.Fields(r.BestContent()))
}

// Search is the collaborator interface the researcher stage consumes.
type Search interface {
	Search(ctx context.Context, query string, maxResults int) []SearchResult
}

// TavilyClient implements Search via the Tavily web search API.
type TavilyClient struct {
	apiKey     string
	httpClient *http.Client
}

// NewTavilyClient builds a TavilyClient.
func NewTavilyClient(apiKey string) *TavilyClient {
	return &TavilyClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type tavilyRequest struct {
	APIKey            string `json:"api_key"`
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results"`
	SearchDepth       string `json:"search_depth"`
	IncludeRawContent bool   `json:"include_raw_content"`
	IncludeAnswer     bool   `json:"include_answer"`
}

type tavilyResponse struct {
	Results []struct {
		URL        string  `json:"url"`
		Title      string  `json:"title"`
		Content    string  `json:"content"`
		RawContent string  `json:"raw_content"`
		Score      float64 `json:"score"`
	} `json:"results"`
}

// Search calls Tavily and returns structured results sorted by relevance
// score, highest first. It never returns an error: any failure (timeout,
// non-200, malformed body) yields an empty slice, mirroring the
// never-raise-on-failure contract the researcher stage relies on.
func (c *TavilyClient) Search(ctx context.Context, query string, maxResults int) []SearchResult {
	if maxResults <= 0 {
		maxResults = 10
	}

	payload := tavilyRequest{
		APIKey:            c.apiKey,
		Query:             query,
		MaxResults:        maxResults,
		SearchDepth:       "basic",
		IncludeRawContent: true,
		IncludeAnswer:     false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tavilySearchURL, strings.NewReader(string(body)))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.ReadAll(resp.Body)
		return nil
	}

	var data tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil
	}

	results := make([]SearchResult, 0, len(data.Results))
	for _, item := range data.Results {
		results = append(results, SearchResult{
			URL:        item.URL,
			Title:      item.Title,
			Content:    item.Content,
			RawContent: item.RawContent,
			Score:      item.Score,
			Query:      query,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}
