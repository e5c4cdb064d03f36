// Package memory implements per-user conversation memory for Hibiki.
//
// Each user has an ordered message history that is sent to the model on
// every chat call so the conversation has continuity. The history is seeded
// with the configured system message, grows by one user/assistant pair per
// successful exchange, and shrinks only on an explicit reset. Growth is
// unbounded per user; acceptable at single-community scale and a documented
// limitation rather than a bug.
package memory

import (
	"sync"

	"github.com/mvoisin/hibiki/internal/hibiki/llm"
)

// Store holds conversation histories keyed by user ID.
//
// It is safe for concurrent use. Each user's history carries its own lock so
// two users never serialize on each other's appends; the outer lock guards
// only the map itself.
type Store struct {
	systemMessage string

	mu    sync.RWMutex
	users map[string]*history
}

// history is one user's conversation buffer.
type history struct {
	mu       sync.Mutex
	messages []llm.Message
}

// NewStore creates a Store. When systemMessage is non-empty, every user's
// history starts with (and resets to) a single system entry carrying it.
func NewStore(systemMessage string) *Store {
	return &Store{
		systemMessage: systemMessage,
		users:         make(map[string]*history),
	}
}

// History returns a snapshot of the user's conversation context, seed
// included. The returned slice is a copy; mutating it does not affect the
// store. A user with no prior exchanges gets just the seed (or an empty
// slice when no system message is configured).
func (s *Store) History(userID string) []llm.Message {
	h := s.user(userID)

	h.mu.Lock()
	defer h.mu.Unlock()

	snapshot := make([]llm.Message, len(h.messages))
	copy(snapshot, h.messages)
	return snapshot
}

// AppendExchange appends one completed exchange (the user's message, then
// the assistant's reply) to the user's history.
func (s *Store) AppendExchange(userID, userText, assistantText string) {
	h := s.user(userID)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages,
		llm.Message{Role: llm.RoleUser, Content: userText},
		llm.Message{Role: llm.RoleAssistant, Content: assistantText},
	)
}

// Reset discards the user's history, restoring it to the seed state.
// Idempotent: resetting an already-fresh (or unknown) user is a no-op with
// the same observable result.
func (s *Store) Reset(userID string) {
	h := s.user(userID)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = s.seed()
}

// Conversations returns the number of users with a history entry, seeded or
// otherwise. Used by the status endpoint.
func (s *Store) Conversations() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// user returns the history for userID, creating a seeded one on first touch.
func (s *Store) user(userID string) *history {
	s.mu.RLock()
	h := s.users[userID]
	s.mu.RUnlock()
	if h != nil {
		return h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check: another goroutine may have created it between the locks.
	if h = s.users[userID]; h == nil {
		h = &history{messages: s.seed()}
		s.users[userID] = h
	}
	return h
}

// seed returns a fresh history buffer: the system entry when configured,
// otherwise empty.
func (s *Store) seed() []llm.Message {
	if s.systemMessage == "" {
		return nil
	}
	return []llm.Message{{Role: llm.RoleSystem, Content: s.systemMessage}}
}
