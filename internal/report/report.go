// Package report writes a finished RunState's report to a standalone
// Markdown file with a YAML frontmatter block, for callers that want the
// report as an artifact on disk rather than only in memory.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"deepresearch/internal/research"
)

// Writer persists RunState reports under a directory.
type Writer struct {
	dir string
}

// NewWriter builds a Writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Write renders state's report plus a frontmatter block and saves it to
// {dir}/{started_at}-{slug}.md, creating dir as needed. It returns the path
// written. tag is an arbitrary caller-supplied identifier (e.g. a trace
// run-id) recorded in the frontmatter so the report can be cross-referenced
// against its trace document; pass "" to omit it.
func (w *Writer) Write(tag string, state *research.RunState) (string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	frontmatter := map[string]interface{}{
		"query":     state.Query,
		"status":    string(state.Status),
		"generated": time.Now().UTC().Format(time.RFC3339),
		"n_sources": len(state.Sources),
		"n_rounds":  state.RoundsCompleted,
		"cost_usd":  fmt.Sprintf("%.4f", state.EstimatedCostUSD),
	}
	if tag != "" {
		frontmatter["run_id"] = tag
	}
	if state.StopReason != "" {
		frontmatter["stop_reason"] = state.StopReason
	}

	fm, err := yaml.Marshal(frontmatter)
	if err != nil {
		return "", fmt.Errorf("marshal frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n\n")

	if state.FinalReport != "" {
		buf.WriteString(state.FinalReport)
	} else {
		buf.WriteString(fmt.Sprintf("*No report was generated (status: %s", state.Status))
		if state.StopReason != "" {
			buf.WriteString(fmt.Sprintf("; %s", state.StopReason))
		}
		buf.WriteString(").*\n")
	}
	buf.WriteString("\n")

	stamp := state.StartedAt.UTC().Format("20060102T150405Z")
	name := fmt.Sprintf("%s-%s.md", stamp, slugify(state.Query))
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// slugify reduces a query to a short filesystem-safe fragment.
func slugify(query string) string {
	s := nonSlugChars.ReplaceAllString(strings.ToLower(query), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "report"
	}
	if len(s) > 60 {
		s = s[:60]
	}
	return s
}
