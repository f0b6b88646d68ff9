package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"deepresearch/internal/research"
)

func TestWriteIncludesFrontmatterAndBody(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	state := research.New("what is the state of solid state battery research")
	state.FinalReport = "# Findings\n\nBatteries improved [1].\n\n## References\n\n[1] Example  \n    https://a.example\n"
	state.Sources = []string{"https://a.example"}
	state.RoundsCompleted = 1
	state.RecordSuccess()

	path, err := w.Write("abc123def456", state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("expected report under %s, got %s", dir, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read written report: %v", err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "---\n") {
		t.Fatalf("expected frontmatter block, got: %s", content)
	}
	if !strings.Contains(content, "run_id: abc123def456") {
		t.Fatalf("expected run_id in frontmatter, got: %s", content)
	}
	if !strings.Contains(content, "# Findings") {
		t.Fatalf("expected report body, got: %s", content)
	}
}

func TestWriteHandlesEmptyReport(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	state := research.New("what is the state of solid state battery research")
	state.RecordPartial("cost cap reached after round 1")

	path, err := w.Write("run000000001", state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read written report: %v", err)
	}
	if !strings.Contains(string(data), "No report was generated") {
		t.Fatalf("expected placeholder text for empty report, got: %s", string(data))
	}
}

func TestSlugifyTruncatesAndFallsBack(t *testing.T) {
	if got := slugify(""); got != "report" {
		t.Fatalf("expected fallback slug, got %q", got)
	}
	long := slugify(strings.Repeat("battery research ", 10))
	if len(long) > 60 {
		t.Fatalf("expected slug capped at 60 chars, got %d", len(long))
	}
}
