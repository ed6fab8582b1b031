package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/glossa/internal/extractor"
	"github.com/MikeSquared-Agency/glossa/internal/processor"
)

// Submitter runs one analysis. *processor.Processor satisfies it.
type Submitter interface {
	Submit(ctx context.Context, st *processor.State, req extractor.Request) *processor.State
}

// Notifier receives a run summary. *slack.Poster satisfies it.
type Notifier interface {
	PostText(ctx context.Context, text string) (string, error)
}

// Config holds the import command configuration.
type Config struct {
	Files     []string
	StatePath string // empty keeps progress in memory only
	User      string // default user for plain-text lines
	DryRun    bool
	Delay     time.Duration // pause between model calls
	BatchSize int           // save state every BatchSize lines
}

// Summary reports the outcome of a run.
type Summary struct {
	Imported int
	Failed   int
	Skipped  int
}

// Runner feeds sentences from files through the analysis pipeline.
type Runner struct {
	cfg    Config
	sub    Submitter
	notify Notifier
	logger *slog.Logger
}

// NewRunner creates an import runner. notify may be nil.
func NewRunner(cfg Config, sub Submitter, notify Notifier, logger *slog.Logger) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Runner{cfg: cfg, sub: sub, notify: notify, logger: logger}
}

// Run imports every unprocessed line. It stops early when the history
// store becomes unavailable, leaving the failed line unmarked.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	state, err := LoadState(r.cfg.StatePath)
	if err != nil {
		return sum, fmt.Errorf("load state: %w", err)
	}

	inBatch := 0
	for _, path := range r.cfg.Files {
		lines, err := ParseFile(path, r.cfg.User)
		if err != nil {
			r.logger.Warn("failed to parse import file", "path", path, "error", err)
			state.AddError(fmt.Sprintf("parse %s: %v", path, err))
			continue
		}
		r.logger.Info("processing file", "path", path, "lines", len(lines))

		for _, line := range lines {
			select {
			case <-ctx.Done():
				r.logger.Info("import interrupted, saving state")
				_ = state.Save()
				return sum, ctx.Err()
			default:
			}

			if state.IsProcessed(path, line.Number) {
				sum.Skipped++
				continue
			}
			if r.cfg.DryRun {
				r.logger.Info("dry run", "path", path, "line", line.Number, "text", line.Request.Text)
				sum.Skipped++
				continue
			}

			st := r.sub.Submit(ctx, processor.NewState(), line.Request)
			switch {
			case st.Last != nil && st.LastErr == nil:
				sum.Imported++
				state.Imported++
			case extractor.IsKind(st.LastErr, extractor.KindStoreUnavailable):
				state.AddError(fmt.Sprintf("%s:%d: history unavailable", path, line.Number))
				_ = state.Save()
				return sum, fmt.Errorf("%s:%d: history unavailable: %w", path, line.Number, st.LastErr)
			default:
				sum.Failed++
				state.Failed++
				state.AddError(fmt.Sprintf("%s:%d: %v", path, line.Number, st.LastErr))
				r.logger.Warn("line failed", "path", path, "line", line.Number, "error", st.LastErr)
			}
			state.MarkProcessed(path, line.Number)

			inBatch++
			if inBatch >= r.cfg.BatchSize {
				if err := state.Save(); err != nil {
					r.logger.Warn("failed to save state", "error", err)
				}
				inBatch = 0
			}

			if r.cfg.Delay > 0 {
				select {
				case <-ctx.Done():
					_ = state.Save()
					return sum, ctx.Err()
				case <-time.After(r.cfg.Delay):
				}
			}
		}
	}

	if err := state.Save(); err != nil {
		return sum, fmt.Errorf("save state: %w", err)
	}
	r.logger.Info("import complete", "imported", sum.Imported, "failed", sum.Failed, "skipped", sum.Skipped)
	r.postSummary(ctx, sum, state)
	return sum, nil
}

// postSummary sends the run summary to the notifier, logging on failure.
func (r *Runner) postSummary(ctx context.Context, sum Summary, state *State) {
	if r.notify == nil || r.cfg.DryRun {
		return
	}
	if _, err := r.notify.PostText(ctx, FormatSummary(sum, state)); err != nil {
		r.logger.Warn("failed to post import summary", "error", err)
	}
}

// FormatSummary renders a run summary as Slack mrkdwn.
func FormatSummary(sum Summary, state *State) string {
	var sb strings.Builder
	sb.WriteString("*Glossa import summary*\n")
	fmt.Fprintf(&sb, "Imported: %d | Failed: %d | Skipped: %d\n", sum.Imported, sum.Failed, sum.Skipped)
	if state != nil && len(state.Errors) > 0 {
		n := min(len(state.Errors), 5)
		sb.WriteString("\n*Recent errors:*\n")
		for _, e := range state.Errors[len(state.Errors)-n:] {
			fmt.Fprintf(&sb, "• %s\n", e)
		}
	}
	return sb.String()
}
