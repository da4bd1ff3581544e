// internal/state/session.go
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/qwennnzim-del/gen2-ai/internal/types"
)

// SessionsKey is the KV key holding the serialized session list.
const SessionsKey = "gen2_sessions"

// SessionStore is an in-memory ordered collection of chat sessions, written
// through to a KVStore on every mutation. Sessions are kept sorted by
// UpdatedAt, most recent first.
type SessionStore struct {
	kv       types.KVStore
	now      func() time.Time
	mu       sync.RWMutex
	sessions []types.ChatSession
}

// NewSessionStore creates an empty SessionStore backed by kv. Call Load to
// read previously persisted sessions.
func NewSessionStore(kv types.KVStore) *SessionStore {
	return &SessionStore{kv: kv, now: time.Now}
}

// SetClock replaces the time source used for UpdatedAt.
func (s *SessionStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Load reads the persisted session list. Missing or malformed data yields an
// empty collection; it is logged and never returned as an error.
func (s *SessionStore) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = nil

	raw, ok, err := s.kv.Get(ctx, SessionsKey)
	if err != nil {
		slog.Warn("read sessions failed, starting empty", "error", err)
		return
	}
	if !ok {
		return
	}

	var loaded []types.ChatSession
	if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
		slog.Warn("discarding malformed sessions", "error", err)
		return
	}

	for _, sess := range loaded {
		if sess.ID == "" {
			continue
		}
		s.sessions = append(s.sessions, sess)
	}
	s.sortLocked()
}

// save serializes the whole collection. Caller must hold the write lock.
func (s *SessionStore) save(ctx context.Context) error {
	sessions := s.sessions
	if sessions == nil {
		sessions = []types.ChatSession{}
	}
	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}
	if err := s.kv.Set(ctx, SessionsKey, string(data)); err != nil {
		return fmt.Errorf("write sessions: %w", err)
	}
	return nil
}

func (s *SessionStore) sortLocked() {
	sort.SliceStable(s.sessions, func(i, j int) bool {
		return s.sessions[i].UpdatedAt.After(s.sessions[j].UpdatedAt)
	})
}

func (s *SessionStore) indexLocked(id types.SessionID) int {
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

// Now returns the store's current time.
func (s *SessionStore) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

// Insert puts session at the front of the collection and persists.
func (s *SessionStore) Insert(ctx context.Context, session types.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = append([]types.ChatSession{session.Clone()}, s.sessions...)
	return s.save(ctx)
}

// UpsertMessage appends msg to the session with the given ID, stamps its
// UpdatedAt and moves it to the front. It reports false, without touching
// anything, when no such session exists.
func (s *SessionStore) UpsertMessage(ctx context.Context, id types.SessionID, msg types.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return false, nil
	}

	sess := s.sessions[i]
	sess.Messages = append(types.CloneMessages(sess.Messages), msg)
	sess.UpdatedAt = s.now()

	// Move to the front first so ties on UpdatedAt still rank it first.
	rest := append(s.sessions[:i:i], s.sessions[i+1:]...)
	s.sessions = append([]types.ChatSession{sess}, rest...)
	s.sortLocked()

	return true, s.save(ctx)
}

// Get returns a copy of the session with the given ID.
func (s *SessionStore) Get(id types.SessionID) (types.ChatSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexLocked(id)
	if i < 0 {
		return types.ChatSession{}, false
	}
	return s.sessions[i].Clone(), true
}

// List returns copies of all sessions, most recently updated first.
func (s *SessionStore) List() []types.ChatSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.ChatSession, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = sess.Clone()
	}
	return out
}

// Len returns the number of sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// DeleteAll clears the collection and removes the persisted record.
func (s *SessionStore) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = nil
	if err := s.kv.Remove(ctx, SessionsKey); err != nil {
		return fmt.Errorf("remove sessions: %w", err)
	}
	return nil
}
