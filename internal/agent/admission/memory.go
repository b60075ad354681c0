package admission

import (
	"sync"
	"time"

	"researchagent/internal/agent/model"
)

// InMemoryConversationMemory is a process-wide, mutex-serialized per-user
// store (spec.md §5: "writes are serialized per key"). It satisfies
// ConversationMemory for the StaleContextFlusher and is otherwise an
// optional convenience cache the orchestrator may consult for history
// continuity; chat-history persistence itself is out of scope (spec.md §1).
type InMemoryConversationMemory struct {
	mu    sync.Mutex
	turns map[string][]model.ChatTurn
	seen  map[string]time.Time
}

// NewInMemoryConversationMemory creates an empty store.
func NewInMemoryConversationMemory() *InMemoryConversationMemory {
	return &InMemoryConversationMemory{
		turns: make(map[string][]model.ChatTurn),
		seen:  make(map[string]time.Time),
	}
}

// Touch records turns for userID and stamps the current time.
func (m *InMemoryConversationMemory) Touch(userID string, turns []model.ChatTurn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns[userID] = turns
	m.seen[userID] = time.Now()
}

// Get returns the last recorded turns for userID, if any.
func (m *InMemoryConversationMemory) Get(userID string) ([]model.ChatTurn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.turns[userID]
	return t, ok
}

// LastTouched implements ConversationMemory.
func (m *InMemoryConversationMemory) LastTouched(userID string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.seen[userID]
	return t, ok
}

// Clear implements ConversationMemory.
func (m *InMemoryConversationMemory) Clear(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.turns, userID)
	delete(m.seen, userID)
}

// Users implements ConversationMemory.
func (m *InMemoryConversationMemory) Users() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.seen))
	for u := range m.seen {
		out = append(out, u)
	}
	return out
}
