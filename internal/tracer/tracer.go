// Package tracer implements the tracing spine: every meaningful orchestrator
// step is wrapped in a timed Span, and all spans for one run are collected
// into a Trace that gets persisted to disk.
package tracer

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"deepresearch/internal/research"

	"github.com/google/uuid"
)

// Span is one named, timed step in the pipeline.
type Span struct {
	Name       string                 `json:"name"`
	Step       int                    `json:"step"`
	StartedAt  float64                `json:"started_at"`
	EndedAt    float64                `json:"ended_at"`
	DurationMs float64                `json:"duration_ms"`
	Status     string                 `json:"status"`
	Metadata   map[string]interface{} `json:"metadata"`
	Error      string                 `json:"error"`

	start time.Time
}

// Set stores a metadata value for this span.
func (s *Span) Set(key string, value interface{}) {
	if s.Metadata == nil {
		s.Metadata = make(map[string]interface{})
	}
	s.Metadata[key] = value
}

func (s *Span) finish(status string, errDetail string) {
	elapsed := time.Since(s.start)
	s.EndedAt = s.StartedAt + elapsed.Seconds()
	s.DurationMs = float64(elapsed.Microseconds()) / 1000.0
	s.Status = status
	s.Error = errDetail
}

// Trace is the complete record of one run: all spans plus summary stats.
type Trace struct {
	RunID       string  `json:"run_id"`
	Query       string  `json:"query"`
	StartedAt   string  `json:"started_at"`
	CompletedAt string  `json:"completed_at"`
	Spans       []*Span `json:"spans"`

	Status            string  `json:"status"`
	NRounds           int     `json:"n_rounds"`
	NSources          int     `json:"n_sources"`
	EstimatedCostUSD  float64 `json:"estimated_cost_usd"`
	FinalReportChars  int     `json:"final_report_chars"`
	TotalDurationMs   float64 `json:"total_duration_ms"`
}

// Tracer collects spans for one run.
type Tracer struct {
	query   string
	runID   string
	started time.Time
	mono    time.Time
	trace   *Trace
	steps   int
}

// New creates a Tracer for query. If runID is empty, a 12-character hex run
// id is generated.
func New(query string, runID string) *Tracer {
	if runID == "" {
		runID = newRunID()
	}
	now := time.Now()
	return &Tracer{
		query:   query,
		runID:   runID,
		started: now,
		mono:    now,
		trace: &Trace{
			RunID:     runID,
			Query:     query,
			StartedAt: now.UTC().Format(time.RFC3339Nano),
			Status:    string(research.StatusRunning),
		},
	}
}

func newRunID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:6])
}

// RunID returns this tracer's run identifier.
func (t *Tracer) RunID() string { return t.runID }

// Span runs fn inside a new, timed span named name. On normal completion
// the span is finished with status "success". If fn returns an error, the
// span is finished with status "error" and the error's detail captured,
// then the same error is returned unchanged — the tracer never swallows
// failures. If fn panics, the span is likewise finished with status
// "error" and the panic value captured before the panic is re-raised
// unchanged, so a crashing stage still leaves behind a well-formed span.
func (t *Tracer) Span(name string, fn func(*Span) error) (err error) {
	t.steps++
	s := &Span{
		Name:      name,
		Step:      t.steps,
		StartedAt: time.Since(t.mono).Seconds(),
		Metadata:  make(map[string]interface{}),
		start:     time.Now(),
	}
	t.trace.Spans = append(t.trace.Spans, s)

	defer func() {
		if r := recover(); r != nil {
			s.finish("error", fmt.Sprint(r))
			panic(r)
		}
	}()

	err = fn(s)
	if err != nil {
		s.finish("error", err.Error())
		return err
	}
	s.finish("success", "")
	return nil
}

// Finish populates the trace's summary stats from the final RunState. Call
// this after all spans are done, before Save.
func (t *Tracer) Finish(state *research.RunState) {
	elapsed := time.Since(t.started)
	t.trace.CompletedAt = time.Now().UTC().Format(time.RFC3339Nano)
	t.trace.TotalDurationMs = float64(elapsed.Microseconds()) / 1000.0
	t.trace.Status = string(state.Status)
	t.trace.NRounds = state.RoundsCompleted
	t.trace.NSources = state.TotalSources()
	t.trace.EstimatedCostUSD = state.EstimatedCostUSD
	t.trace.FinalReportChars = len(state.FinalReport)
}

// Trace returns the underlying trace document (for tests/inspection).
func (t *Tracer) Trace() *Trace { return t.trace }

// Save writes the trace document to {tracesDir}/{run_id}.json, creating
// tracesDir if needed, and returns the path written. Each run writes only
// its own run-id file, so concurrent runs never contend.
func (t *Tracer) Save(tracesDir string) (string, error) {
	if err := os.MkdirAll(tracesDir, 0755); err != nil {
		return "", fmt.Errorf("create traces dir: %w", err)
	}
	data, err := json.MarshalIndent(t.trace, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal trace: %w", err)
	}
	path := filepath.Join(tracesDir, t.runID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write trace: %w", err)
	}
	return path, nil
}
