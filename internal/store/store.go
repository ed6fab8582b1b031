package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/MikeSquared-Agency/glossa/internal/extractor"
)

// Header is the first row of every history log.
var Header = []string{"timestamp", "sentence", "data_json", "user"}

const (
	colTimestamp = iota
	colSentence
	colData
	colUser
)

// Entry is one history row. Exactly one of Record and Err is set.
type Entry struct {
	Timestamp string                 `json:"timestamp"`
	Sentence  string                 `json:"sentence"`
	Record    *extractor.Record      `json:"record,omitempty"`
	Err       *extractor.IngestError `json:"error,omitempty"`
	User      string                 `json:"user"`
	Language  string                 `json:"language"`
}

// DeleteReport summarises a batch delete.
type DeleteReport struct {
	Requested int      `json:"requested"`
	Deleted   int      `json:"deleted"`
	Missing   []string `json:"missing,omitempty"`
}

func (r DeleteReport) String() string {
	return fmt.Sprintf("%d of %d deleted", r.Deleted, r.Requested)
}

// Store is the history record store over a TabularLog.
type Store struct {
	log    TabularLog
	parser *extractor.Parser
	logger *slog.Logger
}

func New(log TabularLog, parser *extractor.Parser, logger *slog.Logger) *Store {
	if parser == nil {
		parser = extractor.NewParser("")
	}
	return &Store{log: log, parser: parser, logger: logger}
}

// Append writes entry as one row, seeding the header first when the log is
// empty. A log that already holds data without a header is left headerless.
// The two writes are not atomic.
func (s *Store) Append(ctx context.Context, entry Entry) error {
	if entry.Record == nil {
		return extractor.NewIngestError(extractor.KindInvalidInput, "entry has no record", nil)
	}
	data, err := extractor.Encode(entry.Record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	rows, err := s.log.ReadAllRows(ctx)
	if err != nil {
		return unavailable("read rows", err)
	}
	if len(rows) == 0 {
		if err := s.log.AppendRow(ctx, Header); err != nil {
			return unavailable("write header", err)
		}
		s.logger.Info("seeded history header")
	}

	if err := s.log.AppendRow(ctx, []string{entry.Timestamp, entry.Sentence, data, entry.User}); err != nil {
		return unavailable("append row", err)
	}
	return nil
}

// LoadAll returns every data row, most recent first.
func (s *Store) LoadAll(ctx context.Context) ([]Entry, error) {
	rows, err := s.log.ReadAllRows(ctx)
	if err != nil {
		return nil, unavailable("read rows", err)
	}
	entries := make([]Entry, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		if isHeader(rows[i]) {
			continue
		}
		entries = append(entries, s.decodeRow(rows[i]))
	}
	return entries, nil
}

func (s *Store) decodeRow(row []string) Entry {
	cells := make([]string, len(Header))
	copy(cells, row)

	e := Entry{
		Timestamp: cells[colTimestamp],
		Sentence:  cells[colSentence],
		User:      cells[colUser],
		Language:  s.parser.FallbackLanguage,
	}
	rec, err := s.parser.Parse(cells[colData], cells[colSentence])
	if err != nil {
		ie := extractor.AsIngestError(err)
		if ie == nil {
			ie = extractor.NewIngestError(extractor.KindMalformedOutput, err.Error(), err)
		}
		e.Err = ie
		s.logger.Warn("undecodable history row", "timestamp", e.Timestamp, "kind", ie.Kind)
		return e
	}
	e.Record = rec
	if rec.Language != "" {
		e.Language = rec.Language
	}
	return e
}

// DeleteMany removes the rows whose timestamp is in keys. Indices come from a
// fresh scan and are deleted highest first so pending indices stay valid.
// On a mid-batch failure the returned report says how many rows went.
func (s *Store) DeleteMany(ctx context.Context, keys []string) (DeleteReport, error) {
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	report := DeleteReport{Requested: len(want)}
	if len(want) == 0 {
		return report, nil
	}

	rows, err := s.log.ReadAllRows(ctx)
	if err != nil {
		return report, unavailable("read rows", err)
	}

	var indices []int
	found := make(map[string]bool, len(want))
	for i, row := range rows {
		if len(row) == 0 || isHeader(row) || !want[row[colTimestamp]] {
			continue
		}
		indices = append(indices, i+1)
		found[row[colTimestamp]] = true
	}
	for k := range want {
		if !found[k] {
			report.Missing = append(report.Missing, k)
		}
	}
	slices.Sort(report.Missing)

	slices.Sort(indices)
	slices.Reverse(indices)
	for _, idx := range indices {
		if err := s.log.DeleteRowAt(ctx, idx); err != nil {
			return report, unavailable(fmt.Sprintf("delete row %d (%s)", idx, report), err)
		}
		report.Deleted++
	}

	if len(report.Missing) > 0 {
		s.logger.Warn("delete keys not found", "missing", len(report.Missing), "report", report.String())
	}
	return report, nil
}

// isHeader reports whether row is a header row, wherever it sits.
func isHeader(row []string) bool {
	return slices.Equal(row, Header)
}

func unavailable(op string, err error) error {
	return extractor.NewIngestError(extractor.KindStoreUnavailable, op, err)
}
