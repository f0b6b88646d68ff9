package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"deepresearch/internal/guardrails"
	"golang.org/x/net/html"
)

// FetchResult is the outcome of fetching one URL. Success=false means both
// tiers failed; Content is empty and Error explains why.
type FetchResult struct {
	URL     string
	Content string
	Title   string
	Success bool
	Source  string // "jina", "trafilatura", or "failed"
	Error   string
}

// WordCount is the word count of Content.
func (r FetchResult) WordCount() int {
	return len(strings.Fields(r.Content))
}

// Fetch is the collaborator interface the researcher stage consumes.
type Fetch interface {
	Fetch(ctx context.Context, url string) FetchResult
}

// ReaderFetcher fetches page content via a two-tier waterfall: a remote
// readability service first (tier 1), then local HTML extraction (tier 2).
// Both tiers are skipped for any URL guardrails.IsSafeURL rejects.
type ReaderFetcher struct {
	httpClient *http.Client
	readerBase string // e.g. "https://r.jina.ai/"
	maxRetries int
}

// NewReaderFetcher builds a ReaderFetcher. readerBase is the prefix a
// remote reader service expects the target URL appended to. maxRetries is
// how many additional attempts the reader tier gets on a transient failure
// (timeout, connection error, 429) before falling through to local
// extraction; 0 means a single attempt.
func NewReaderFetcher(timeout time.Duration, readerBase string, maxRetries int) *ReaderFetcher {
	if readerBase == "" {
		readerBase = "https://r.jina.ai/"
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &ReaderFetcher{
		httpClient: &http.Client{Timeout: timeout},
		readerBase: readerBase,
		maxRetries: maxRetries,
	}
}

// Fetch tries the remote reader tier first, retrying transient failures up
// to maxRetries times, then falls back to local extraction. It never
// returns an error value: failures of both tiers are reported via
// FetchResult.Success=false, matching the researcher's never-raise
// contract on collaborator failure.
func (f *ReaderFetcher) Fetch(ctx context.Context, url string) FetchResult {
	if !guardrails.IsSafeURL(url) {
		return failed(url, "blocked by URL guardrail")
	}

	var r FetchResult
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		r = f.fetchViaReader(ctx, url)
		if r.Success || !retryable(r) {
			break
		}
	}
	if r.Success {
		return r
	}
	return f.fetchViaExtraction(ctx, url)
}

// retryable reports whether a failed reader-tier result is worth another
// attempt: network/timeout errors and rate limiting, not permanent ones
// like a blocked URL or a non-retryable HTTP status.
func retryable(r FetchResult) bool {
	return strings.Contains(r.Error, "reader error") || strings.Contains(r.Error, "reader rate limit")
}

// fetchViaReader is tier 1: one GET through a remote readability service
// that renders the page and returns clean text, handling JavaScript-heavy
// sites we cannot render locally.
func (f *ReaderFetcher) fetchViaReader(ctx context.Context, url string) FetchResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.readerBase+url, nil)
	if err != nil {
		return failed(url, fmt.Sprintf("reader request: %v", err))
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("X-No-Cache", "false")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return failed(url, fmt.Sprintf("reader error: %v", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return failed(url, "reader rate limit (429)")
	}
	if resp.StatusCode != http.StatusOK {
		return failed(url, fmt.Sprintf("reader returned HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return failed(url, fmt.Sprintf("reader read: %v", err))
	}
	content := strings.TrimSpace(string(body))
	if len(content) < 200 {
		return failed(url, fmt.Sprintf("reader returned too little content (%d chars)", len(content)))
	}

	return FetchResult{
		URL:     url,
		Content: content,
		Title:   titleFromMarkdown(content),
		Success: true,
		Source:  "jina",
	}
}

// fetchViaExtraction is tier 2: fetch raw HTML ourselves and extract the
// main text locally. Does not handle JavaScript-rendered content.
func (f *ReaderFetcher) fetchViaExtraction(ctx context.Context, url string) FetchResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return failed(url, fmt.Sprintf("fetch request: %v", err))
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; ResearchAgent/1.0; +https://github.com/research-agent)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return failed(url, fmt.Sprintf("fetch error: %v", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return failed(url, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return failed(url, fmt.Sprintf("read body: %v", err))
	}

	content := extractText(string(body))
	if len(content) < 200 {
		return failed(url, "extraction returned empty/insufficient content (likely JS-rendered)")
	}

	return FetchResult{
		URL:     url,
		Content: content,
		Title:   titleFromHTML(string(body)),
		Success: true,
		Source:  "trafilatura",
	}
}

func failed(url, errMsg string) FetchResult {
	return FetchResult{URL: url, Success: false, Source: "failed", Error: errMsg}
}

// titleFromMarkdown pulls the title from the first '# Heading' line, the
// convention reader services use for the page title.
func titleFromMarkdown(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}

// titleFromHTML extracts the <title> element's text, if present.
func titleFromHTML(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}

// extractText removes HTML tags and extracts readable text, skipping
// script/style/noscript subtrees.
func extractText(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		re := regexp.MustCompile(`<[^>]*>`)
		return cleanWhitespace(re.ReplaceAllString(htmlContent, ""))
	}

	var text strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
			text.WriteString(" ")
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(doc)

	return cleanWhitespace(text.String())
}

// cleanWhitespace collapses runs of whitespace into single spaces.
func cleanWhitespace(s string) string {
	re := regexp.MustCompile(`\s+`)
	return strings.TrimSpace(re.ReplaceAllString(s, " "))
}
