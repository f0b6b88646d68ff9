// Package orchestrator drives the research pipeline: validate, plan,
// iterate research rounds under budget, reflect, synthesize. It owns every
// stop condition and never lets a stage or collaborator panic escape.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"deepresearch/internal/config"
	"deepresearch/internal/guardrails"
	"deepresearch/internal/llm"
	"deepresearch/internal/research"
	"deepresearch/internal/stages"
	"deepresearch/internal/tools"
	"deepresearch/internal/tracer"
)

// ProgressFunc receives short human-readable progress strings at each
// meaningful pipeline transition. It is optional, called synchronously,
// and its own panics/errors are never allowed to reach the caller.
type ProgressFunc func(string)

// Orchestrator coordinates Planner, Researcher, Reflector, and Synthesizer
// over one RunState per call to Run.
type Orchestrator struct {
	cfg         *config.Config
	client      llm.ChatClient
	planner     *stages.Planner
	researcher  *stages.Researcher
	reflector   *stages.Reflector
	synthesizer *stages.Synthesizer
}

// New builds an Orchestrator from configuration, wiring the default
// collaborator clients (OpenRouter chat client, Tavily search, a two-tier
// reader fetcher).
func New(cfg *config.Config) *Orchestrator {
	client := llm.NewClient(cfg)
	search := tools.NewTavilyClient(cfg.TavilyAPIKey)
	fetch := tools.NewReaderFetcher(time.Duration(cfg.FetchTimeoutSeconds*float64(time.Second)), "", cfg.MaxFetchRetries)

	return &Orchestrator{
		cfg:         cfg,
		client:      client,
		planner:     stages.NewPlanner(client),
		researcher:  stages.NewResearcher(client, search, fetch),
		reflector:   stages.NewReflector(client),
		synthesizer: stages.NewSynthesizer(client),
	}
}

// NewWithCollaborators builds an Orchestrator over caller-supplied
// collaborators, for testing or alternate wiring.
func NewWithCollaborators(cfg *config.Config, client llm.ChatClient, search tools.Search, fetch tools.Fetch) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		client:      client,
		planner:     stages.NewPlanner(client),
		researcher:  stages.NewResearcher(client, search, fetch),
		reflector:   stages.NewReflector(client),
		synthesizer: stages.NewSynthesizer(client),
	}
}

// Run executes the full pipeline for query and always returns a RunState,
// never an error that would prevent inspection of partial progress: any
// unexpected failure from a stage is caught, recorded in state.Errors, and
// converted to status=failed.
func (o *Orchestrator) Run(ctx context.Context, query string, onProgress ProgressFunc) (result *research.RunState, err error) {
	notify := func(msg string) {
		if onProgress == nil {
			return
		}
		defer func() { _ = recover() }()
		onProgress(msg)
	}

	cleaned, err := guardrails.ValidateQuery(query)
	if err != nil {
		state := research.New(query)
		state.AddError(err.Error())
		state.RecordFailure("invalid query")
		return state, nil
	}

	state := research.New(cleaned)
	tr := tracer.New(cleaned, "")

	defer func() {
		o.client.UpdateStateCost(state)
		tr.Finish(state)
		if _, saveErr := tr.Save(o.cfg.TracesDir()); saveErr != nil {
			state.AddError(fmt.Sprintf("failed to persist trace: %v", saveErr))
		}
	}()

	// Last line of defense: a genuine panic inside a stage (nil deref,
	// out-of-range index, a third-party library panic) must still yield a
	// terminal RunState rather than crash the process. tracer.Span has
	// already turned the panic into an error span by the time it reaches
	// here.
	defer func() {
		if r := recover(); r != nil {
			state.AddError(fmt.Sprintf("unexpected failure: %v", r))
			state.RecordFailure(fmt.Sprintf("unexpected failure: %v", r))
			result, err = state, nil
		}
	}()

	notify("planning started")
	_ = tr.Span("planner", func(s *tracer.Span) error {
		state.Subqueries = o.planner.Decompose(ctx, cleaned, stages.DefaultSubqueryCount)
		s.Set("n_subqueries", len(state.Subqueries))
		return nil
	})
	notify(fmt.Sprintf("planning done: %d subqueries", len(state.Subqueries)))

	o.runResearchLoop(ctx, state, tr, notify)

	if state.IsRunning() {
		notify("synthesis started")
		_ = tr.Span("synthesizer", func(s *tracer.Span) error {
			o.synthesizer.Synthesize(ctx, state, o.cfg.TopKSummaries)
			s.Set("n_sources", len(state.Sources))
			return nil
		})
		notify("synthesis done")
	}

	return state, nil
}

func (o *Orchestrator) runResearchLoop(ctx context.Context, state *research.RunState, tr *tracer.Tracer, notify ProgressFunc) {
	currentQueries := append([]string(nil), state.Subqueries...)

	for round := 1; round <= o.cfg.MaxResearchRounds; round++ {
		notify(fmt.Sprintf("round %d start", round))

		hardStop := false
		for _, subquery := range currentQueries {
			o.client.UpdateStateCost(state)
			if state.EstimatedCostUSD >= o.cfg.MaxCostUSD {
				state.AddError(fmt.Sprintf("Cost cap $%.2f reached in round %d", o.cfg.MaxCostUSD, round))
				state.Sources = urlsOf(state.PageSummaries)
				state.FinalReport = ""
				state.RecordPartial(fmt.Sprintf("Cost cap $%.2f reached after round %d", o.cfg.MaxCostUSD, round-1))
				hardStop = true
				break
			}

			if state.TotalSources() >= o.cfg.MaxSourcesPerRun {
				notify(fmt.Sprintf("source cap %d reached", o.cfg.MaxSourcesPerRun))
				break
			}

			var newCount int
			_ = tr.Span("researcher", func(s *tracer.Span) error {
				newCount = o.researcher.Research(ctx, subquery, state, round, o.cfg.MaxSearchResults, o.cfg.MaxSummaryTokens)
				s.Set("round", round)
				s.Set("subquery", subquery)
				s.Set("new_sources", newCount)
				return nil
			})
			notify(fmt.Sprintf("subquery %q → %d new sources", subquery, newCount))
		}

		if hardStop {
			return
		}

		state.RoundsCompleted = round

		if round == o.cfg.MaxResearchRounds {
			notify("max rounds reached")
			return
		}

		var outcome research.ReflectionOutcome
		_ = tr.Span("reflector", func(s *tracer.Span) error {
			outcome = o.reflector.Reflect(ctx, state)
			s.Set("has_gap", outcome.HasGap)
			return nil
		})

		if !outcome.HasGap {
			notify("reflector: coverage sufficient")
			return
		}

		notify(fmt.Sprintf("reflector: gap found — %q", outcome.FollowUpQuery))
		followUp := outcome.FollowUpQuery
		if followUp == "" {
			followUp = firstOrEmpty(state.Subqueries)
		}
		currentQueries = []string{followUp}
	}
}

func urlsOf(summaries []research.PageSummary) []string {
	urls := make([]string, 0, len(summaries))
	for _, s := range summaries {
		urls = append(urls, s.URL)
	}
	return urls
}

func firstOrEmpty(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return items[0]
}
