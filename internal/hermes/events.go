package hermes

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SubjectAnalysisRequested carries a sentence to analyse and record.
	SubjectAnalysisRequested = "glossa.analysis.requested"
	// SubjectAnalysisRecorded is published after a history row is appended.
	SubjectAnalysisRecorded = "glossa.analysis.recorded"
	// SubjectHistoryDeleted is published after a (batch) delete.
	SubjectHistoryDeleted = "glossa.history.deleted"
)

// AnalysisRecorded announces a new history entry.
type AnalysisRecorded struct {
	EventID     string    `json:"event_id"`
	Timestamp   string    `json:"timestamp"`
	User        string    `json:"user"`
	Sentence    string    `json:"sentence"`
	Language    string    `json:"language"`
	Translation string    `json:"translation"`
	Tokens      int       `json:"tokens"`
	Degraded    bool      `json:"degraded,omitempty"`
	EmittedAt   time.Time `json:"emitted_at"`
}

// HistoryDeleted announces removed history keys.
type HistoryDeleted struct {
	EventID   string    `json:"event_id"`
	Keys      []string  `json:"keys"`
	Requested int       `json:"requested"`
	Deleted   int       `json:"deleted"`
	EmittedAt time.Time `json:"emitted_at"`
}

func NewEventID() string {
	return uuid.NewString()
}
