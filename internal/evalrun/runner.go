package evalrun

import (
	"context"
	"fmt"
	"time"

	"github.com/montanaflynn/stats"

	"deepresearch/internal/orchestrator"
)

// Question is one fixed eval item: a research question plus the keywords
// a correct report is expected to surface.
type Question struct {
	Question         string
	Category         string
	ExpectedKeywords []string
}

// Result is one question's outcome, timed and scored.
type Result struct {
	Question   Question
	Score      RunScore
	ElapsedSec float64
}

// Summary aggregates percentile and cost statistics across a batch.
type Summary struct {
	N              int
	AvgOverall     float64
	P50Overall     float64
	P95Overall     float64
	P50DurationSec float64
	P95DurationSec float64
	TotalCostUSD   float64
	TotalDuration  time.Duration
}

// Run executes every question in the dataset against o, scoring each
// resulting RunState, and returns per-question results plus the batch
// summary. Failures of an individual run are recorded in its RunScore's
// embedded Status field rather than aborting the batch.
func Run(ctx context.Context, o *orchestrator.Orchestrator, dataset []Question) ([]Result, Summary) {
	results := make([]Result, 0, len(dataset))

	for _, q := range dataset {
		start := time.Now()
		state, _ := o.Run(ctx, q.Question, nil)
		elapsed := time.Since(start).Seconds()

		results = append(results, Result{
			Question:   q,
			Score:      Score(state, q.ExpectedKeywords),
			ElapsedSec: round1(elapsed),
		})
	}

	return results, summarize(results)
}

func summarize(results []Result) Summary {
	if len(results) == 0 {
		return Summary{}
	}

	overalls := make([]float64, len(results))
	durations := make([]float64, len(results))
	var totalCost float64
	var totalDuration time.Duration

	for i, r := range results {
		overalls[i] = r.Score.Overall
		durations[i] = r.ElapsedSec
		totalCost += r.Score.CostUSD
		totalDuration += time.Duration(r.ElapsedSec * float64(time.Second))
	}

	avgOverall, _ := stats.Mean(overalls)
	p50Overall, _ := stats.Percentile(overalls, 50)
	p95Overall, _ := stats.Percentile(overalls, 95)
	p50Duration, _ := stats.Percentile(durations, 50)
	p95Duration, _ := stats.Percentile(durations, 95)

	return Summary{
		N:              len(results),
		AvgOverall:     round3(avgOverall),
		P50Overall:     round3(p50Overall),
		P95Overall:     round3(p95Overall),
		P50DurationSec: round1(p50Duration),
		P95DurationSec: round1(p95Duration),
		TotalCostUSD:   totalCost,
		TotalDuration:  totalDuration,
	}
}

// FormatSummary renders Summary as the plain-text table cmd/research prints.
func FormatSummary(s Summary) string {
	return fmt.Sprintf(
		"questions=%d avg_overall=%.3f p50_overall=%.3f p95_overall=%.3f p50_duration=%.1fs p95_duration=%.1fs total_cost=$%.4f total_time=%s",
		s.N, s.AvgOverall, s.P50Overall, s.P95Overall, s.P50DurationSec, s.P95DurationSec, s.TotalCostUSD, s.TotalDuration.Round(time.Second),
	)
}
