package conversation

import (
	"sync"

	"mitey/internal/domain"
)

// History is the append-only turn log of one session.
type History struct {
	mu    sync.RWMutex
	turns []domain.Message
}

func NewHistory() *History { return &History{} }

// Turns returns a copy of the history in order.
func (h *History) Turns() []domain.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]domain.Message(nil), h.turns...)
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Append records a completed exchange: the user turn, then the reply.
func (h *History) Append(query, reply string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns,
		domain.Message{Role: domain.RoleUser, Content: query},
		domain.Message{Role: domain.RoleAssistant, Content: reply},
	)
}
