package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session groups tasks issued by one logical unit of external work, e.g. a
// single trading cycle. It holds task ids only, never the tasks themselves.
type Session struct {
	ID        string
	AgentType string
	CreatedAt time.Time
	TaskIDs   []string
	Ended     bool
}

// SessionRegistry tracks open sessions for status reporting and bulk
// cancellation.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session)}
}

// Open creates a session and returns its id.
func (r *SessionRegistry) Open(agentType string) string {
	s := &Session{
		ID:        uuid.New().String(),
		AgentType: agentType,
		CreatedAt: time.Now().UTC(),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return s.ID
}

// Attach records that a task belongs to a session. Returns
// UnknownSessionError if the session is missing or already ended; the task
// still runs, just orphaned from session accounting.
func (r *SessionRegistry) Attach(sessionID, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.Ended {
		return &UnknownSessionError{SessionID: sessionID}
	}
	s.TaskIDs = append(s.TaskIDs, taskID)
	return nil
}

// Close marks a session ended. Already-issued tasks run to completion.
func (r *SessionRegistry) Close(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.Ended {
		return &UnknownSessionError{SessionID: sessionID}
	}
	s.Ended = true
	return nil
}

// Get returns a copy of the session, or nil if unknown.
func (r *SessionRegistry) Get(sessionID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	cp := *s
	cp.TaskIDs = append([]string(nil), s.TaskIDs...)
	return &cp
}

// Count reports the number of open sessions.
func (r *SessionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if !s.Ended {
			n++
		}
	}
	return n
}

// CloseAll ends every open session. Called when the hub stops.
func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		s.Ended = true
	}
}
