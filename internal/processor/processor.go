package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/glossa/internal/export"
	"github.com/MikeSquared-Agency/glossa/internal/extractor"
	"github.com/MikeSquared-Agency/glossa/internal/hermes"
	"github.com/MikeSquared-Agency/glossa/internal/speech"
	"github.com/MikeSquared-Agency/glossa/internal/store"
)

// TimestampLayout is the history key format. Keys from one zone sort
// lexicographically in time order.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Analyzer turns a sentence into a validated record.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*extractor.Record, error)
}

// Publisher emits domain events. *hermes.Client satisfies it.
type Publisher interface {
	Publish(subject string, data any) error
}

// Processor runs Glossa's user interactions against the history store.
type Processor struct {
	store    *store.Store
	analyzer Analyzer
	speech   speech.Synthesizer
	events   Publisher
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger

	mu        sync.Mutex
	lastStamp time.Time
}

// New builds a Processor. sp and events may be nil.
func New(s *store.Store, a Analyzer, sp speech.Synthesizer, events Publisher, loc *time.Location, logger *slog.Logger) *Processor {
	if loc == nil {
		loc = time.Local
	}
	return &Processor{
		store:    s,
		analyzer: a,
		speech:   sp,
		events:   events,
		loc:      loc,
		now:      time.Now,
		logger:   logger,
	}
}

// Submit analyses req.Text, appends the result and refreshes the snapshot.
// A record that cannot be stored is still returned in st.Last.
func (p *Processor) Submit(ctx context.Context, st *State, req extractor.Request) *State {
	st.resetLast()

	rec, err := p.analyzer.Analyze(ctx, req.Text)
	if err != nil {
		p.logger.Warn("analysis failed", "error", err)
		st.LastErr = err
		st.notify(LevelError, userMessage(err))
		return st
	}

	entry := store.Entry{
		Timestamp: p.stamp(),
		Sentence:  strings.TrimSpace(req.Text),
		Record:    rec,
		User:      req.User,
		Language:  rec.Language,
	}
	st.Last = &entry
	if rec.Degraded {
		st.notify(LevelWarning, "word breakdown was unreadable and has been left empty")
	}

	if st.ReadOnly {
		st.notify(LevelWarning, "history is unavailable, this result was not saved")
		return st
	}
	if err := p.store.Append(ctx, entry); err != nil {
		p.logger.Error("failed to append history", "error", err)
		st.LastErr = err
		st.ReadOnly = extractor.IsKind(err, extractor.KindStoreUnavailable)
		st.notify(LevelWarning, "history is unavailable, this result was not saved")
		return st
	}

	p.publish(hermes.SubjectAnalysisRecorded, hermes.AnalysisRecorded{
		EventID:     hermes.NewEventID(),
		Timestamp:   entry.Timestamp,
		User:        entry.User,
		Sentence:    entry.Sentence,
		Language:    rec.Language,
		Translation: rec.Translation,
		Tokens:      len(rec.Structure),
		Degraded:    rec.Degraded,
		EmittedAt:   time.Now().UTC(),
	})
	p.logger.Info("analysis recorded", "timestamp", entry.Timestamp, "language", rec.Language)

	return p.Refresh(ctx, st)
}

// Refresh re-reads the whole log. A store failure leaves an empty,
// read-only history.
func (p *Processor) Refresh(ctx context.Context, st *State) *State {
	entries, err := p.store.LoadAll(ctx)
	if err != nil {
		p.logger.Warn("history unavailable", "error", err)
		st.Snapshot = nil
		st.ReadOnly = true
		st.notify(LevelWarning, userMessage(err))
		return st
	}
	st.Snapshot = entries
	st.ReadOnly = false
	st.Selection.Retain(entries)
	return st
}

func (p *Processor) Search(st *State, q string) *State {
	st.Query = q
	return st
}

// FilterLanguage sets the language toggle; nil shows every language.
func (p *Processor) FilterLanguage(st *State, lang *string) *State {
	if lang != nil {
		l := *lang
		lang = &l
	}
	st.Language = lang
	return st
}

// SelectAll checks (or unchecks) every entry of the current view.
func (p *Processor) SelectAll(st *State, on bool) *State {
	if on {
		st.Selection.SelectAll(st.View())
	} else {
		st.Selection.UnselectAll(st.View())
	}
	return st
}

func (p *Processor) Select(st *State, key string, on bool) *State {
	st.Selection.Set(key, on)
	return st
}

// DeleteSelected deletes every checked entry and clears the selection.
func (p *Processor) DeleteSelected(ctx context.Context, st *State) *State {
	keys := st.Selection.Keys()
	if len(keys) == 0 {
		st.resetLast()
		st.notify(LevelInfo, "nothing selected")
		return st
	}
	p.deleteKeys(ctx, st, keys)
	st.Selection.Clear()
	return st
}

func (p *Processor) DeleteOne(ctx context.Context, st *State, key string) *State {
	p.deleteKeys(ctx, st, []string{key})
	st.Selection.Set(key, false)
	return st
}

func (p *Processor) deleteKeys(ctx context.Context, st *State, keys []string) {
	st.resetLast()
	if st.ReadOnly {
		st.notify(LevelWarning, "history is unavailable, nothing was deleted")
		return
	}

	report, err := p.store.DeleteMany(ctx, keys)
	st.LastDelete = &report
	if err != nil {
		p.logger.Error("delete failed", "error", err, "report", report.String())
		st.LastErr = err
		st.notify(LevelError, "delete failed: "+report.String())
	} else {
		level := LevelInfo
		if report.Deleted < report.Requested {
			level = LevelWarning
		}
		st.notify(level, report.String())
	}

	if report.Deleted > 0 {
		p.publish(hermes.SubjectHistoryDeleted, hermes.HistoryDeleted{
			EventID:   hermes.NewEventID(),
			Keys:      keys,
			Requested: report.Requested,
			Deleted:   report.Deleted,
			EmittedAt: time.Now().UTC(),
		})
	}
	p.logger.Info("history delete", "requested", report.Requested, "deleted", report.Deleted)

	p.Refresh(ctx, st)
}

// Export writes the full snapshot, ignoring filters, and returns the
// download filename.
func (p *Processor) Export(st *State, w io.Writer) (string, error) {
	if err := export.WriteCSV(w, st.Snapshot); err != nil {
		return "", fmt.Errorf("export csv: %w", err)
	}
	return export.Filename(p.now().In(p.loc)), nil
}

// Speak synthesizes text in the given language label, as produced by the model.
func (p *Processor) Speak(ctx context.Context, text, language string) ([]byte, error) {
	if p.speech == nil {
		return nil, fmt.Errorf("speech is not configured")
	}
	if strings.TrimSpace(text) == "" {
		return nil, extractor.NewIngestError(extractor.KindInvalidInput, "empty text", nil)
	}
	audio, err := p.speech.Synthesize(ctx, text, speech.Code(language))
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	return audio, nil
}

// HandleAnalysisRequested is the NATS handler for glossa.analysis.requested.
func (p *Processor) HandleAnalysisRequested(subject string, data []byte) {
	var req extractor.Request
	if err := json.Unmarshal(data, &req); err != nil {
		p.logger.Error("failed to parse analysis request", "subject", subject, "error", err)
		return
	}

	st := p.Submit(context.Background(), NewState(), req)
	if st.LastErr != nil {
		p.logger.Error("queued analysis failed", "user", req.User, "error", st.LastErr)
		return
	}
	p.logger.Info("queued analysis processed", "user", req.User, "timestamp", st.Last.Timestamp)
}

// stamp returns a fresh history key. Keys issued by this process are
// strictly increasing, so two submissions in the same millisecond differ.
func (p *Processor) stamp() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := p.now().In(p.loc).Truncate(time.Millisecond)
	if !t.After(p.lastStamp) {
		t = p.lastStamp.Add(time.Millisecond)
	}
	p.lastStamp = t
	return t.Format(TimestampLayout)
}

func (p *Processor) publish(subject string, evt any) {
	if p.events == nil {
		return
	}
	if err := p.events.Publish(subject, evt); err != nil {
		p.logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}
