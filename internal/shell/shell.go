// Package shell is a minimal interactive loop for the research agent: read
// one question, run it, print progress and the result, repeat.
package shell

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"deepresearch/internal/config"
	"deepresearch/internal/orchestrator"
	"deepresearch/internal/report"
	"deepresearch/internal/research"
)

var (
	cyan   = color.New(color.FgCyan)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	dim    = color.New(color.Faint)
)

// Shell drives the interactive research prompt.
type Shell struct {
	orch   *orchestrator.Orchestrator
	writer *report.Writer
	out    io.Writer
	rl     *readline.Instance
}

// New builds a Shell. historyFile may be empty to disable history.
func New(cfg *config.Config, orch *orchestrator.Orchestrator, out io.Writer, historyFile string) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[36mresearch>\033[0m ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("readline init: %w", err)
	}
	return &Shell{
		orch:   orch,
		writer: report.NewWriter(filepath.Join(cfg.LogDir, "reports")),
		out:    out,
		rl:     rl,
	}, nil
}

// Close releases the readline terminal state.
func (s *Shell) Close() error {
	return s.rl.Close()
}

// Run reads questions from the terminal until EOF, Ctrl+D, or ctx is
// cancelled, running each one through the orchestrator and printing its
// outcome.
func (s *Shell) Run(ctx context.Context) error {
	cyan.Fprintln(s.out, "Research agent — type a question, or Ctrl+D to exit.")

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := s.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		query := strings.TrimSpace(line)
		if query == "" {
			continue
		}

		s.RunOne(ctx, query)
	}
}

// RunOne executes a single query and prints its progress and outcome.
func (s *Shell) RunOne(ctx context.Context, query string) {
	dim.Fprintln(s.out, "researching...")

	state, _ := s.orch.Run(ctx, query, func(msg string) {
		dim.Fprintf(s.out, "  · %s\n", msg)
	})

	s.render(state)
}

func (s *Shell) render(state *research.RunState) {
	switch state.Status {
	case research.StatusSuccess:
		green.Fprintf(s.out, "done (%d sources, $%.4f)\n", len(state.Sources), state.EstimatedCostUSD)
	case research.StatusPartial:
		yellow.Fprintf(s.out, "partial: %s\n", state.StopReason)
	default:
		red.Fprintf(s.out, "failed: %s\n", state.StopReason)
	}

	for _, e := range state.Errors {
		dim.Fprintf(s.out, "  ! %s\n", e)
	}

	if state.FinalReport != "" {
		path, err := s.writer.Write("", state)
		if err != nil {
			red.Fprintf(s.out, "failed to write report: %v\n", err)
			return
		}
		green.Fprintf(s.out, "report written to %s\n", path)
	}
}
