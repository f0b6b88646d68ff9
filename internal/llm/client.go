// Package llm is the only package that talks to the language model HTTP
// API. It exposes two call shapes driven by model tiering: Generate uses
// the smart model for planning/reflection/synthesis, GenerateCheap uses the
// cheap model for the high-volume per-page summarization call.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"deepresearch/internal/config"
	"deepresearch/internal/research"
)

const openRouterURL = "https://openrouter.ai/api/v1/chat/completions"

// Message is one role-tagged chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatClient is the boundary the stages consume. Any failure is returned as
// an error; it is never panicked. Implementations must be safe to reuse
// across sequential calls within one run.
type ChatClient interface {
	// Generate calls the smart model and returns its text.
	Generate(ctx context.Context, messages []Message) (text string, err error)
	// GenerateCheap calls the cheap model with a single prompt string.
	GenerateCheap(ctx context.Context, prompt string) (text string, err error)
	// UpdateStateCost copies the client's running cost total into state.
	// Cost accounting lives with the client, not RunState, so several call
	// sites sharing one client never double-count usage.
	UpdateStateCost(state *research.RunState)
}

// Client is an OpenRouter-backed ChatClient with two model tiers.
type Client struct {
	apiKey     string
	httpClient *http.Client
	smartModel string
	cheapModel string
	smartRates ModelRates
	cheapRates ModelRates
	cost       runningCost
}

// NewClient builds a Client from configuration.
func NewClient(cfg *config.Config) *Client {
	smartRates, cheapRates := ratesFromConfig(cfg)
	timeout := time.Duration(cfg.FetchTimeoutSeconds*3) * time.Second
	if timeout < 30*time.Second {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:     cfg.OpenRouterAPIKey,
		httpClient: &http.Client{Timeout: timeout},
		smartModel: cfg.SmartModel,
		cheapModel: cfg.CheapModel,
		smartRates: smartRates,
		cheapRates: cheapRates,
	}
}

var _ ChatClient = (*Client)(nil)

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate sends messages to the smart model and returns its text output.
func (c *Client) Generate(ctx context.Context, messages []Message) (string, error) {
	resp, err := c.call(ctx, c.smartModel, messages, 0.2, 2048)
	if err != nil {
		return "", fmt.Errorf("smart model call: %w", err)
	}
	cost := calculateCost(c.smartRates, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	c.cost.add(cost)

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from smart model")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateCheap sends a single prompt to the cheap model.
func (c *Client) GenerateCheap(ctx context.Context, prompt string) (string, error) {
	resp, err := c.call(ctx, c.cheapModel, []Message{{Role: "user", Content: prompt}}, 0.3, 300)
	if err != nil {
		return "", fmt.Errorf("cheap model call: %w", err)
	}
	cost := calculateCost(c.cheapRates, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	c.cost.add(cost)

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from cheap model")
	}
	return resp.Choices[0].Message.Content, nil
}

// UpdateStateCost writes the client's running cost total into state.
func (c *Client) UpdateStateCost(state *research.RunState) {
	total := c.cost.snapshot()
	state.SetCost(total.InputTokens, total.OutputTokens, total.TotalCost)
}

func (c *Client) call(ctx context.Context, model string, messages []Message, temperature float64, maxTokens int) (*chatResponse, error) {
	req := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, openRouterURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("HTTP-Referer", "https://github.com/research-agent")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(errBody))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &chatResp, nil
}

// StripMarkdownFence removes a wrapping ```json ... ``` or ``` ... ```
// fence a model sometimes adds around structured output, so the stages can
// json.Unmarshal the payload directly.
func StripMarkdownFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(s[:nl])
		if firstLine == "json" || firstLine == "" {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
