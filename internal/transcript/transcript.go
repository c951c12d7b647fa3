// Package transcript is the ordered message log of one chat session.
package transcript

import (
	"sync"

	"github.com/xaenox/pocheck/internal/models"
)

// Transcript is append-only except for Clear, which resets it to the seed
// message. It is never empty.
type Transcript struct {
	mu       sync.RWMutex
	seed     models.Message
	messages []models.Message
}

func New(seed models.Message) *Transcript {
	return &Transcript{
		seed:     seed,
		messages: []models.Message{seed},
	}
}

func (t *Transcript) Append(msg models.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, msg)
}

// Messages returns a copy in chronological order.
func (t *Transcript) Messages() []models.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]models.Message(nil), t.messages...)
}

// History reduces the transcript to role/content turns.
func (t *Transcript) History() []models.Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	turns := make([]models.Turn, len(t.messages))
	for i, m := range t.messages {
		turns[i] = models.Turn{Role: m.Role, Content: m.Content}
	}
	return turns
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Clear drops everything but the seed message.
func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = []models.Message{t.seed}
}
