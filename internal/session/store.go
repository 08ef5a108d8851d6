// Package session holds predicted Gaussian scenes in memory between upload
// and the render or export calls that consume them.
package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/splatview/splatview/internal/splat"
	"github.com/splatview/splatview/internal/timeutil"
)

// ErrNotFound is returned when a session id is unknown or already evicted.
var ErrNotFound = errors.New("session not found")

// Session ties a predicted Gaussian set to its source-image metadata and
// exported artifacts. The Gaussians pointer is shared; primitive data is
// never mutated after prediction.
type Session struct {
	ID         string              `json:"session_id"`
	Meta       splat.SceneMetadata `json:"meta"`
	Count      int                 `json:"gaussian_count"`
	PLYPath    string              `json:"ply_path"`
	CreatedAt  time.Time           `json:"created_at"`
	LastAccess time.Time           `json:"last_access"`

	Gaussians *splat.Gaussians `json:"-"`
}

// Store is a synchronized in-memory session map. Reads take a shared lock
// so concurrent renders of different sessions do not serialize.
type Store struct {
	clock timeutil.Clock
	ttl   time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
	onEvict  func(*Session)
}

// NewStore creates a Store. A ttl of zero disables idle eviction.
func NewStore(clock timeutil.Clock, ttl time.Duration) *Store {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Store{
		clock:    clock,
		ttl:      ttl,
		sessions: make(map[string]*Session),
	}
}

// OnEvict registers a hook invoked for every session removed by Delete or
// idle eviction. Used to delete the session's artifacts and mark its
// database row. The hook runs outside the store lock.
func (s *Store) OnEvict(f func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvict = f
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.New().String()
}

// Put stores a new session. If sess.ID is empty, a new id is generated.
func (s *Store) Put(sess *Session) *Session {
	if sess.ID == "" {
		sess.ID = NewID()
	}
	if sess.Gaussians != nil {
		sess.Count = sess.Gaussians.Count()
	}
	now := s.clock.Now()
	sess.CreatedAt = now
	sess.LastAccess = now

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return sess
}

// Get returns the session with the given id and bumps its last-access time.
func (s *Store) Get(id string) (*Session, error) {
	now := s.clock.Now()

	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	s.mu.Lock()
	sess.LastAccess = now
	s.mu.Unlock()

	return sess, nil
}

// Delete removes a session and runs the eviction hook.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	hook := s.onEvict
	s.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	if hook != nil {
		hook(sess)
	}
	return nil
}

// List returns snapshots of all live sessions, newest first. The snapshots
// omit the Gaussian data.
func (s *Store) List() []*Session {
	s.mu.RLock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		cp := *sess
		cp.Gaussians = nil
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// EvictExpired removes every session idle longer than the store TTL and
// returns how many were evicted. A zero TTL makes this a no-op.
func (s *Store) EvictExpired() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := s.clock.Now().Add(-s.ttl)

	s.mu.Lock()
	var expired []*Session
	for id, sess := range s.sessions {
		if sess.LastAccess.After(cutoff) {
			continue
		}
		expired = append(expired, sess)
		delete(s.sessions, id)
	}
	hook := s.onEvict
	s.mu.Unlock()

	if hook != nil {
		for _, sess := range expired {
			hook(sess)
		}
	}
	return len(expired)
}
