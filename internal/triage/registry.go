package triage

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry owns live sessions. Do serializes work on a single session so at
// most one turn is in flight per session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*entry
}

type entry struct {
	sess     *Session
	lastUsed time.Time
}

func NewRegistry() *Registry {
	return &Registry{sessions: map[uuid.UUID]*entry{}}
}

func (r *Registry) Create(lang string) *Session {
	s := NewSession(lang)
	r.mu.Lock()
	r.sessions[s.ID] = &entry{sess: s, lastUsed: time.Now()}
	r.mu.Unlock()
	return s
}

func (r *Registry) get(id uuid.UUID) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

func (r *Registry) Delete(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

// Do runs fn with exclusive access to the session.
func (r *Registry) Do(id uuid.UUID, fn func(*Session) error) error {
	e, err := r.get(id)
	if err != nil {
		return err
	}
	e.sess.mu.Lock()
	defer e.sess.mu.Unlock()
	r.mu.Lock()
	e.lastUsed = time.Now()
	r.mu.Unlock()
	return fn(e.sess)
}

// Evict drops sessions idle for longer than maxIdle and returns how many
// were removed.
func (r *Registry) Evict(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.sessions {
		if e.lastUsed.Before(cutoff) && e.sess.mu.TryLock() {
			delete(r.sessions, id)
			e.sess.mu.Unlock()
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
