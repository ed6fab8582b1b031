package processor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/glossa/internal/extractor"
	"github.com/MikeSquared-Agency/glossa/internal/hermes"
	"github.com/MikeSquared-Agency/glossa/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubAnalyzer struct {
	recs map[string]*extractor.Record
	err  error
}

func (s *stubAnalyzer) Analyze(_ context.Context, text string) (*extractor.Record, error) {
	if strings.TrimSpace(text) == "" {
		return nil, extractor.NewIngestError(extractor.KindInvalidInput, "empty text", nil)
	}
	if s.err != nil {
		return nil, s.err
	}
	if rec, ok := s.recs[text]; ok {
		cp := *rec
		return &cp, nil
	}
	return &extractor.Record{Language: "英语", Translation: "译:" + text, Correction: text, Structure: []extractor.TokenGloss{}}, nil
}

// trackingLog records which timestamps each delete removed.
type trackingLog struct {
	store.MemoryLog
	deleted []string
	broken  bool
}

func (l *trackingLog) ReadAllRows(ctx context.Context) ([][]string, error) {
	if l.broken {
		return nil, errors.New("permission denied")
	}
	return l.MemoryLog.ReadAllRows(ctx)
}

func (l *trackingLog) DeleteRowAt(ctx context.Context, index int) error {
	rows, _ := l.MemoryLog.ReadAllRows(ctx)
	if index >= 1 && index <= len(rows) {
		l.deleted = append(l.deleted, rows[index-1][0])
	}
	return l.MemoryLog.DeleteRowAt(ctx, index)
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	events   []any
}

func (r *recordingPublisher) Publish(subject string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, subject)
	r.events = append(r.events, data)
	return nil
}

type stubSpeech struct{ lang string }

func (s *stubSpeech) Synthesize(_ context.Context, text, lang string) ([]byte, error) {
	s.lang = lang
	return []byte("mp3:" + text), nil
}

func newTestProcessor(t *testing.T, a Analyzer) (*Processor, *trackingLog, *recordingPublisher) {
	t.Helper()
	log := &trackingLog{}
	pub := &recordingPublisher{}
	p := New(store.New(log, nil, discardLogger()), a, &stubSpeech{}, pub, time.UTC, discardLogger())
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return base }
	return p, log, pub
}

func TestSubmit_RecordsAndRefreshes(t *testing.T) {
	rec := &extractor.Record{
		Language:    "日语",
		Translation: "我要做决定了哦",
		Correction:  "決めちゃいますからね",
		Structure: []extractor.TokenGloss{{
			Word: "決めちゃいます", Reading: "kimechaimasu", POSMeaning: "动词/决定", Grammar: "口语缩略形", Standard: "決めてしまいます",
		}},
	}
	p, _, pub := newTestProcessor(t, &stubAnalyzer{recs: map[string]*extractor.Record{"決めちゃいますからね": rec}})

	st := p.Submit(context.Background(), NewState(), extractor.Request{Text: "決めちゃいますからね", User: "demo"})
	if st.LastErr != nil {
		t.Fatalf("unexpected error: %v", st.LastErr)
	}
	if st.Last == nil || st.Last.Record.Translation != "我要做决定了哦" {
		t.Fatalf("unexpected last result %+v", st.Last)
	}
	if len(st.Snapshot) != 1 {
		t.Fatalf("expected snapshot of 1, got %d", len(st.Snapshot))
	}
	if st.Snapshot[0].Language != "日语" || st.Snapshot[0].User != "demo" {
		t.Errorf("unexpected entry %+v", st.Snapshot[0])
	}
	if st.Snapshot[0].Timestamp != "2025-03-01T10:00:00.000Z" {
		t.Errorf("unexpected timestamp %q", st.Snapshot[0].Timestamp)
	}
	if !reflect.DeepEqual(pub.subjects, []string{hermes.SubjectAnalysisRecorded}) {
		t.Errorf("unexpected events %v", pub.subjects)
	}
}

func TestSubmit_Failures(t *testing.T) {
	tests := []struct {
		name string
		text string
		err  error
		kind extractor.Kind
	}{
		{"empty", "   ", nil, extractor.KindInvalidInput},
		{"malformed", "hello", extractor.NewIngestError(extractor.KindMalformedOutput, "bad", nil), extractor.KindMalformedOutput},
		{"timeout", "hello", extractor.NewIngestError(extractor.KindTimeout, "slow", nil), extractor.KindTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, log, pub := newTestProcessor(t, &stubAnalyzer{err: tt.err})
			st := p.Submit(context.Background(), NewState(), extractor.Request{Text: tt.text})

			if !extractor.IsKind(st.LastErr, tt.kind) {
				t.Errorf("expected %s, got %v", tt.kind, st.LastErr)
			}
			if len(st.Notices) != 1 || st.Notices[0].Level != LevelError {
				t.Errorf("expected one error notice, got %+v", st.Notices)
			}
			rows, _ := log.ReadAllRows(context.Background())
			if len(rows) != 0 {
				t.Errorf("nothing should be persisted, got %d rows", len(rows))
			}
			if len(pub.subjects) != 0 {
				t.Errorf("no events expected, got %v", pub.subjects)
			}
		})
	}
}

func TestSubmit_StoreUnavailable(t *testing.T) {
	p, log, _ := newTestProcessor(t, &stubAnalyzer{})
	log.broken = true

	st := p.Refresh(context.Background(), NewState())
	if !st.ReadOnly || st.Snapshot != nil {
		t.Fatalf("expected read-only empty history, got %+v", st)
	}

	st = p.Submit(context.Background(), st, extractor.Request{Text: "hello"})
	if st.Last == nil {
		t.Fatal("analysis result should still be returned")
	}
	if st.Notices[len(st.Notices)-1].Level != LevelWarning {
		t.Errorf("expected a warning notice, got %+v", st.Notices)
	}
}

func TestStamp_Unique(t *testing.T) {
	p, _, _ := newTestProcessor(t, &stubAnalyzer{})
	seen := map[string]bool{}
	for range 5 {
		ts := p.stamp()
		if seen[ts] {
			t.Fatalf("duplicate timestamp %s", ts)
		}
		seen[ts] = true
	}
	if !seen["2025-03-01T10:00:00.004Z"] {
		t.Errorf("expected millisecond bumps, got %v", seen)
	}
}

func seedFive(t *testing.T, p *Processor) *State {
	t.Helper()
	recs := map[string]*extractor.Record{}
	texts := []string{"one", "two", "three", "four", "five"}
	langs := []string{"日语", "英语", "法语", "英语", "日语"}
	for i, text := range texts {
		recs[text] = &extractor.Record{Language: langs[i], Translation: "t" + text, Correction: text, Structure: []extractor.TokenGloss{}}
	}
	p.analyzer = &stubAnalyzer{recs: recs}

	st := NewState()
	for _, text := range texts {
		st = p.Submit(context.Background(), st, extractor.Request{Text: text})
	}
	if len(st.Snapshot) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(st.Snapshot))
	}
	return st
}

func TestDeleteSelected_LanguageFilter(t *testing.T) {
	p, log, pub := newTestProcessor(t, nil)
	st := seedFive(t, p)

	lang := "英语"
	st = p.FilterLanguage(st, &lang)
	st = p.SelectAll(st, true)

	var want []string
	for _, e := range st.View() {
		want = append(want, e.Timestamp)
	}
	if len(want) != 2 {
		t.Fatalf("expected 2 entries in view, got %d", len(want))
	}

	st = p.DeleteSelected(context.Background(), st)
	if st.LastErr != nil {
		t.Fatalf("unexpected error: %v", st.LastErr)
	}
	if st.LastDelete.Deleted != 2 || st.LastDelete.Requested != 2 {
		t.Errorf("unexpected report %+v", st.LastDelete)
	}

	got := append([]string(nil), log.deleted...)
	// Deletes run from the highest row down, so the newest key goes first.
	if !reflect.DeepEqual(got, []string{want[0], want[1]}) {
		t.Errorf("deleted %v, want %v", got, want)
	}
	if len(st.Snapshot) != 3 {
		t.Errorf("expected 3 entries left, got %d", len(st.Snapshot))
	}
	if len(st.Selection.Keys()) != 0 {
		t.Error("selection should be cleared after delete")
	}
	if pub.subjects[len(pub.subjects)-1] != hermes.SubjectHistoryDeleted {
		t.Errorf("expected delete event, got %v", pub.subjects)
	}
}

func TestDeleteSelected_Nothing(t *testing.T) {
	p, log, _ := newTestProcessor(t, nil)
	st := seedFive(t, p)

	st = p.DeleteSelected(context.Background(), st)
	if len(log.deleted) != 0 {
		t.Errorf("nothing should be deleted, got %v", log.deleted)
	}
	if st.Notices[len(st.Notices)-1].Message != "nothing selected" {
		t.Errorf("unexpected notices %+v", st.Notices)
	}
}

func TestDeleteOne(t *testing.T) {
	p, _, _ := newTestProcessor(t, nil)
	st := seedFive(t, p)
	key := st.Snapshot[2].Timestamp

	st = p.Select(st, key, true)
	st = p.DeleteOne(context.Background(), st, key)
	if len(st.Snapshot) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(st.Snapshot))
	}
	for _, e := range st.Snapshot {
		if e.Timestamp == key {
			t.Error("entry was not deleted")
		}
	}
	if st.Selection.Selected(key) {
		t.Error("deleted key should not stay selected")
	}

	st = p.DeleteOne(context.Background(), st, "missing")
	if st.LastDelete.Deleted != 0 || st.Notices[len(st.Notices)-1].Message != "0 of 1 deleted" {
		t.Errorf("unexpected result %+v %+v", st.LastDelete, st.Notices)
	}
}

func TestSearchAndExport(t *testing.T) {
	p, _, _ := newTestProcessor(t, nil)
	st := seedFive(t, p)

	st = p.Search(st, "THREE")
	if len(st.View()) != 1 {
		t.Errorf("expected 1 search hit, got %d", len(st.View()))
	}
	if got := st.Languages(); !reflect.DeepEqual(got, []string{"日语", "英语", "法语"}) {
		t.Errorf("unexpected languages %v", got)
	}

	var buf bytes.Buffer
	name, err := p.Export(st, &buf)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if name != "glossa_history_2025-03-01.csv" {
		t.Errorf("unexpected filename %q", name)
	}
	// header + all five entries, regardless of the search query
	if lines := strings.Count(buf.String(), "\n"); lines != 6 {
		t.Errorf("expected 6 csv lines, got %d", lines)
	}
}

func TestSpeak(t *testing.T) {
	p, _, _ := newTestProcessor(t, nil)
	audio, err := p.Speak(context.Background(), "ありがとう", "日语")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(audio) != "mp3:ありがとう" {
		t.Errorf("unexpected audio %q", audio)
	}
	if p.speech.(*stubSpeech).lang != "ja" {
		t.Errorf("expected ja, got %q", p.speech.(*stubSpeech).lang)
	}

	if _, err := p.Speak(context.Background(), " ", "日语"); !extractor.IsKind(err, extractor.KindInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}

	p.speech = nil
	if _, err := p.Speak(context.Background(), "hi", "英语"); err == nil {
		t.Error("expected error without speech backend")
	}
}

func TestHandleAnalysisRequested(t *testing.T) {
	p, log, pub := newTestProcessor(t, &stubAnalyzer{})

	p.HandleAnalysisRequested(hermes.SubjectAnalysisRequested, []byte(`{"text":"good night","user":"bot"}`))
	p.HandleAnalysisRequested(hermes.SubjectAnalysisRequested, []byte(`not json`))

	rows, _ := log.ReadAllRows(context.Background())
	if len(rows) != 2 {
		t.Fatalf("expected header and one row, got %d", len(rows))
	}
	if rows[1][1] != "good night" || rows[1][3] != "bot" {
		t.Errorf("unexpected row %v", rows[1])
	}
	if len(pub.subjects) != 1 {
		t.Errorf("expected one event, got %v", pub.subjects)
	}
}
