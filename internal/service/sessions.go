package service

import (
	"sync"

	"github.com/cloo-solutions/unirank/internal/domain"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSessionCacheSize bounds the number of sessions kept in memory.
const DefaultSessionCacheSize = 10000

// SessionStore owns one bounded History per session. Least recently used
// sessions are evicted once the store is full.
type SessionStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *domain.History]
	turns int
}

// NewSessionStore creates a store holding up to size sessions of turns turns each.
func NewSessionStore(size, turns int) (*SessionStore, error) {
	if size <= 0 {
		size = DefaultSessionCacheSize
	}
	cache, err := lru.New[string, *domain.History](size)
	if err != nil {
		return nil, err
	}
	return &SessionStore{cache: cache, turns: turns}, nil
}

// History returns the session's history, creating it on first use.
func (s *SessionStore) History(sessionID string) *domain.History {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.cache.Get(sessionID); ok {
		return h
	}
	h := domain.NewHistory(s.turns)
	s.cache.Add(sessionID, h)
	return h
}

// Reset clears a session's history. It reports whether the session existed.
func (s *SessionStore) Reset(sessionID string) bool {
	s.mu.Lock()
	h, ok := s.cache.Peek(sessionID)
	s.mu.Unlock()

	if ok {
		h.Reset()
	}
	return ok
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	return s.cache.Len()
}
