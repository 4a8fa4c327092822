package session

import (
	"sync"

	"github.com/saberesdafloresta/nina/pkg/provider/llm"
)

// History is the append-only conversation log of one session. It always
// starts with exactly one system turn carrying the assistant persona, seeded
// at construction; user and assistant turns alternate after it as the
// pipeline appends them.
//
// All methods are safe for concurrent use.
type History struct {
	mu    sync.Mutex
	turns []llm.Message
}

// NewHistory creates a history seeded with the given persona as its single
// system turn.
func NewHistory(systemPrompt string) *History {
	return &History{
		turns: []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}},
	}
}

// AppendUser appends a transcribed member utterance.
func (h *History) AppendUser(text string) {
	h.append(llm.RoleUser, text)
}

// AppendAssistant appends a model reply.
func (h *History) AppendAssistant(text string) {
	h.append(llm.RoleAssistant, text)
}

func (h *History) append(role llm.Role, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, llm.Message{Role: role, Content: text})
}

// Messages returns a copy of the full history, system turn first.
func (h *History) Messages() []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]llm.Message, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the number of turns including the system turn.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}
