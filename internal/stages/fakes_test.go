package stages

import (
	"context"
	"errors"

	"deepresearch/internal/llm"
	"deepresearch/internal/research"
	"deepresearch/internal/tools"
)

// fakeChatClient returns canned responses in order, one per Generate or
// GenerateCheap call. failNext forces the next call (of either kind) to
// return an error instead.
type fakeChatClient struct {
	responses []string
	calls     int
	failNext  bool
}

func (f *fakeChatClient) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	return f.next()
}

func (f *fakeChatClient) GenerateCheap(ctx context.Context, prompt string) (string, error) {
	return f.next()
}

func (f *fakeChatClient) UpdateStateCost(state *research.RunState) {}

func (f *fakeChatClient) next() (string, error) {
	if f.failNext {
		f.failNext = false
		return "", errors.New("fake LLM failure")
	}
	if f.calls >= len(f.responses) {
		return "", errors.New("fake LLM: no more canned responses")
	}
	r := f.responses[f.calls]
	f.calls++
	return r, nil
}

type fakeSearch struct {
	results []tools.SearchResult
}

func (f *fakeSearch) Search(ctx context.Context, query string, maxResults int) []tools.SearchResult {
	return f.results
}

type fakeFetch struct {
	result tools.FetchResult
}

func (f *fakeFetch) Fetch(ctx context.Context, url string) tools.FetchResult {
	return f.result
}
