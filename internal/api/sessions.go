package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/glossa/internal/processor"
)

// SessionHeader carries the client's session id.
const SessionHeader = "X-Glossa-Session"

const sessionTTL = 12 * time.Hour

type session struct {
	mu      sync.Mutex
	state   *processor.State
	fresh   bool
	touched time.Time
}

// sessions holds one interaction State per client. Interactions within a
// session run one at a time.
type sessions struct {
	mu   sync.Mutex
	byID map[string]*session
}

func newSessions() *sessions {
	return &sessions{byID: make(map[string]*session)}
}

// acquire returns the locked session for r, creating one (and echoing its
// id in the response) when the header is missing or unknown.
func (s *sessions) acquire(w http.ResponseWriter, r *http.Request) *session {
	id := r.Header.Get(SessionHeader)
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	w.Header().Set(SessionHeader, id)

	now := time.Now()
	s.mu.Lock()
	s.evict(now)
	sess, ok := s.byID[id]
	if !ok {
		sess = &session{state: processor.NewState(), fresh: true}
		s.byID[id] = sess
	}
	sess.touched = now
	s.mu.Unlock()

	sess.mu.Lock()
	return sess
}

func (s *sessions) release(sess *session) {
	sess.mu.Unlock()
}

func (s *sessions) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// evict drops idle sessions. Caller holds s.mu.
func (s *sessions) evict(now time.Time) {
	for id, sess := range s.byID {
		if now.Sub(sess.touched) > sessionTTL {
			delete(s.byID, id)
		}
	}
}
