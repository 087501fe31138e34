package api

import (
	"errors"
	"sync"
	"time"

	"pos-checkout/internal/checkout"
	"pos-checkout/internal/util"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("checkout session not found")
	ErrSessionForeign  = errors.New("checkout session belongs to another user")
)

// terminal is one open checkout. mu serialises requests against orch.
type terminal struct {
	mu       sync.Mutex
	id       string
	owner    string
	orch     *checkout.Orchestrator
	lastUsed time.Time
}

// SessionRegistry tracks open checkout sessions by id
type SessionRegistry struct {
	mu        sync.RWMutex
	terminals map[string]*terminal
}

// NewSessionRegistry creates an empty registry
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{terminals: make(map[string]*terminal)}
}

// Open registers orch under a fresh id, owned by the session's operator
func (r *SessionRegistry) Open(orch *checkout.Orchestrator) string {
	t := &terminal{
		id:       uuid.New().String(),
		owner:    orch.Session().UserID,
		orch:     orch,
		lastUsed: time.Now(),
	}

	r.mu.Lock()
	r.terminals[t.id] = t
	n := len(r.terminals)
	r.mu.Unlock()

	util.ActiveSessions.Set(float64(n))
	return t.id
}

// With runs fn holding the session lock. Only the owner may use a session.
func (r *SessionRegistry) With(id, user string, fn func(*checkout.Orchestrator)) error {
	r.mu.RLock()
	t, ok := r.terminals[id]
	r.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}
	if t.owner != user {
		return ErrSessionForeign
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastUsed = time.Now()
	fn(t.orch)
	return nil
}

// Close removes a session
func (r *SessionRegistry) Close(id, user string) error {
	r.mu.Lock()
	t, ok := r.terminals[id]
	if !ok {
		r.mu.Unlock()
		return ErrSessionNotFound
	}
	if t.owner != user {
		r.mu.Unlock()
		return ErrSessionForeign
	}
	delete(r.terminals, id)
	n := len(r.terminals)
	r.mu.Unlock()

	util.ActiveSessions.Set(float64(n))
	return nil
}

// Expire drops sessions idle for longer than maxIdle and returns how many
func (r *SessionRegistry) Expire(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	removed := 0
	for id, t := range r.terminals {
		if !t.mu.TryLock() {
			continue
		}
		if t.lastUsed.Before(cutoff) {
			delete(r.terminals, id)
			removed++
		}
		t.mu.Unlock()
	}
	n := len(r.terminals)
	r.mu.Unlock()

	util.ActiveSessions.Set(float64(n))
	return removed
}

// Len reports the number of open sessions
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.terminals)
}
