package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"deepresearch/internal/config"
	"deepresearch/internal/evalrun"
	"deepresearch/internal/orchestrator"
	"deepresearch/internal/report"
	"deepresearch/internal/research"
	"deepresearch/internal/shell"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if cfg.OpenRouterAPIKey == "" {
		fmt.Fprintln(os.Stderr, "Error: OPENROUTER_API_KEY environment variable not set")
		os.Exit(1)
	}
	if cfg.TavilyAPIKey == "" {
		fmt.Fprintln(os.Stderr, "Error: TAVILY_API_KEY environment variable not set")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	orch := orchestrator.New(cfg)

	if len(os.Args) > 1 && os.Args[1] == "eval" {
		runEval(ctx, orch)
		return
	}

	if query := strings.TrimSpace(strings.Join(os.Args[1:], " ")); query != "" {
		runSingleQuery(ctx, cfg, orch, query)
		return
	}

	runInteractive(ctx, cfg, orch)
}

// runEval drives `research eval`: runs the fixed benchmark dataset through
// the orchestrator and prints per-question scores plus an aggregate summary.
func runEval(ctx context.Context, orch *orchestrator.Orchestrator) {
	results, summary := evalrun.Run(ctx, orch, evalrun.DefaultDataset)

	for _, r := range results {
		fmt.Printf("[%s] %q — overall=%.3f status=%s sources=%d cost=$%.4f (%.1fs)\n",
			r.Question.Category, r.Question.Question, r.Score.Overall, r.Score.Status,
			r.Score.NSources, r.Score.CostUSD, r.ElapsedSec)
		if len(r.Score.KeywordCoverage.Missing) > 0 {
			fmt.Printf("  missing keywords: %v\n", r.Score.KeywordCoverage.Missing)
		}
	}

	fmt.Println(evalrun.FormatSummary(summary))

	if summary.N == 0 || summary.AvgOverall < 0.4 {
		os.Exit(1)
	}
}

// runSingleQuery handles `research "<question>"` invocations: run once,
// write the report, print it, and exit with a status code
// reflecting success/partial/failure.
func runSingleQuery(ctx context.Context, cfg *config.Config, orch *orchestrator.Orchestrator, query string) {
	state, _ := orch.Run(ctx, query, func(msg string) {
		fmt.Fprintf(os.Stderr, "· %s\n", msg)
	})

	if state.FinalReport != "" {
		w := report.NewWriter(filepath.Join(cfg.LogDir, "reports"))
		if path, err := w.Write("", state); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write report file: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "report written to %s\n", path)
		}
		fmt.Println(state.FinalReport)
	}

	switch state.Status {
	case research.StatusSuccess:
		os.Exit(0)
	case research.StatusPartial:
		fmt.Fprintf(os.Stderr, "partial result: %s\n", state.StopReason)
		os.Exit(0)
	default:
		for _, e := range state.Errors {
			fmt.Fprintf(os.Stderr, "error: %s\n", e)
		}
		os.Exit(1)
	}
}

// runInteractive drives the readline-backed prompt loop for several
// questions in one process.
func runInteractive(ctx context.Context, cfg *config.Config, orch *orchestrator.Orchestrator) {
	sh, err := shell.New(cfg, orch, os.Stdout, filepath.Join(cfg.LogDir, ".research_history"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting shell: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = sh.Close() }()

	if err := sh.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
