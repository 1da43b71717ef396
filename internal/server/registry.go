package server

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-formwizard/pkg/wizard"
)

// Registry holds the live wizard sessions of the server. Sessions idle for
// longer than the TTL are dropped on lookup and by Sweep.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*wizard.Session
	ttl      time.Duration
	now      func() time.Time
}

// NewRegistry creates an empty registry. A zero ttl keeps sessions forever.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*wizard.Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Add stores a session under its id.
func (r *Registry) Add(session *wizard.Session) {
	r.mu.Lock()
	r.sessions[session.ID()] = session
	r.mu.Unlock()
}

// Get returns the session for id. Expired sessions are removed and reported
// as missing.
func (r *Registry) Get(id string) (*wizard.Session, bool) {
	r.mu.RLock()
	session, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if r.expired(session) {
		r.Remove(id)
		return nil, false
	}
	return session, true
}

// Remove deletes a session.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len reports the number of stored sessions, expired ones included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes every expired session and returns how many were dropped.
// Expiry is checked outside the write lock so lookups are never held up.
func (r *Registry) Sweep() int {
	r.mu.RLock()
	candidates := make(map[string]*wizard.Session, len(r.sessions))
	for id, session := range r.sessions {
		candidates[id] = session
	}
	r.mu.RUnlock()

	var stale []string
	for id, session := range candidates {
		if r.expired(session) {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for _, id := range stale {
		// Skip sessions replaced or touched since the check.
		if current, ok := r.sessions[id]; ok && current == candidates[id] && r.expired(current) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 || r.ttl <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Registry) expired(session *wizard.Session) bool {
	return r.ttl > 0 && r.now().Sub(session.LastActive()) > r.ttl
}
