package domain

import "sync"

// DefaultHistoryTurns is the number of turns kept per session.
const DefaultHistoryTurns = 10

// ConversationTurn is one answered query.
type ConversationTurn struct {
	Query  string
	Answer string
}

// History is a bounded, oldest-first list of turns belonging to one session.
// It is safe for concurrent use.
type History struct {
	mu    sync.Mutex
	limit int
	turns []ConversationTurn
}

// NewHistory creates a History keeping at most limit turns.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryTurns
	}
	return &History{limit: limit, turns: make([]ConversationTurn, 0, limit)}
}

// Append adds a turn, evicting the oldest ones past the limit.
func (h *History) Append(turn ConversationTurn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = append(h.turns, turn)
	if over := len(h.turns) - h.limit; over > 0 {
		kept := make([]ConversationTurn, h.limit)
		copy(kept, h.turns[over:])
		h.turns = kept
	}
}

// Turns returns a copy of the retained turns, oldest first.
func (h *History) Turns() []ConversationTurn {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]ConversationTurn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the number of retained turns.
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// Limit returns the maximum number of retained turns.
func (h *History) Limit() int {
	return h.limit
}

// Reset drops every turn.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = h.turns[:0]
}
