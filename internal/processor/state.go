package processor

import (
	"github.com/MikeSquared-Agency/glossa/internal/extractor"
	"github.com/MikeSquared-Agency/glossa/internal/query"
	"github.com/MikeSquared-Agency/glossa/internal/store"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a user-visible message produced by an interaction.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// State is everything one user session carries between interactions.
// The snapshot is a read-only copy of the log, refreshed after every write.
type State struct {
	Snapshot  []store.Entry
	Language  *string
	Query     string
	Selection *query.Selection
	ReadOnly  bool
	Notices   []Notice

	Last       *store.Entry
	LastErr    error
	LastDelete *store.DeleteReport
}

func NewState() *State {
	return &State{Selection: query.NewSelection()}
}

// View is the snapshot after the language filter and search query.
func (s *State) View() []store.Entry {
	return query.Search(query.FilterByLanguage(s.Snapshot, s.Language), s.Query)
}

// Languages lists the filter toggles for the current snapshot.
func (s *State) Languages() []string {
	return query.Languages(s.Snapshot)
}

// TakeNotices returns pending notices and clears them.
func (s *State) TakeNotices() []Notice {
	n := s.Notices
	s.Notices = nil
	return n
}

func (s *State) notify(level Level, msg string) {
	s.Notices = append(s.Notices, Notice{Level: level, Message: msg})
}

func (s *State) resetLast() {
	s.Last = nil
	s.LastErr = nil
	s.LastDelete = nil
}

// userMessage turns an interaction failure into text for the user.
func userMessage(err error) string {
	ie := extractor.AsIngestError(err)
	if ie == nil {
		return "analysis failed: " + err.Error()
	}
	switch ie.Kind {
	case extractor.KindInvalidInput:
		return "please enter a sentence"
	case extractor.KindMalformedOutput:
		return "analysis failed: the model reply could not be read"
	case extractor.KindIncompleteSchema:
		return "analysis failed: the model reply had no translation"
	case extractor.KindTimeout:
		return "analysis timed out, please try again"
	case extractor.KindStoreUnavailable:
		return "history is unavailable"
	}
	return ie.Error()
}
