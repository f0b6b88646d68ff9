// Package config is the single source of truth for research agent settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable the orchestrator, stages, and collaborators read.
type Config struct {
	// API keys for external collaborators.
	OpenRouterAPIKey string `yaml:"-"`
	TavilyAPIKey     string `yaml:"-"`

	// Models. Smart handles planning/reflection/synthesis; Cheap handles
	// the high-volume per-page summarization call.
	SmartModel string `yaml:"smart_model"`
	CheapModel string `yaml:"cheap_model"`

	// Research loop limits.
	MaxResearchRounds int     `yaml:"max_research_rounds"`
	MaxSourcesPerRun  int     `yaml:"max_sources_per_run"`
	MaxCostUSD        float64 `yaml:"max_cost_usd"`
	MaxSearchResults  int     `yaml:"max_search_results"`
	MaxSummaryTokens  int     `yaml:"max_summary_tokens"`
	TopKSummaries     int     `yaml:"top_k_summaries"`

	// Search/fetch tuning.
	FetchTimeoutSeconds float64 `yaml:"fetch_timeout_seconds"`
	MaxFetchRetries     int     `yaml:"max_fetch_retries"`

	// Cost rates, dollars per 1K tokens.
	SmartInputCostPer1K  float64 `yaml:"smart_input_cost_per_1k"`
	SmartOutputCostPer1K float64 `yaml:"smart_output_cost_per_1k"`
	CheapInputCostPer1K  float64 `yaml:"cheap_input_cost_per_1k"`
	CheapOutputCostPer1K float64 `yaml:"cheap_output_cost_per_1k"`

	// Observability.
	LogDir string `yaml:"log_dir"`
}

// Defaults returns the stock configuration.
func Defaults() *Config {
	return &Config{
		SmartModel: "openai/gpt-4o",
		CheapModel: "openai/gpt-4o-mini",

		MaxResearchRounds: 3,
		MaxSourcesPerRun:  50,
		MaxCostUSD:        2.0,
		MaxSearchResults:  10,
		MaxSummaryTokens:  300,
		TopKSummaries:     20,

		FetchTimeoutSeconds: 10.0,
		MaxFetchRetries:     2,

		SmartInputCostPer1K:  0.005,
		SmartOutputCostPer1K: 0.015,
		CheapInputCostPer1K:  0.00015,
		CheapOutputCostPer1K: 0.0006,

		LogDir: "logs/",
	}
}

// Load reads configuration from the environment, an optional .env file, and
// an optional YAML overlay (RESEARCH_CONFIG_FILE, default ./research.yaml).
// Missing files are silently ignored; present values always win over defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()

	overlayPath := getEnvOrDefault("RESEARCH_CONFIG_FILE", "research.yaml")
	if data, err := os.ReadFile(overlayPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config overlay %s: %w", overlayPath, err)
		}
	}

	cfg.OpenRouterAPIKey = os.Getenv("OPENROUTER_API_KEY")
	cfg.TavilyAPIKey = os.Getenv("TAVILY_API_KEY")

	if v := os.Getenv("RESEARCH_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}

	return cfg, nil
}

// TracesDir returns the directory trace documents are persisted under.
func (c *Config) TracesDir() string {
	return filepath.Join(c.LogDir, "traces")
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
