package store

import (
	"sync"
	"time"

	"github.com/nubank/neura-chat/internal"
)

// DefaultWindow is how many prior turns are sent with each request.
const DefaultWindow = 10

// MemoryStore holds one client-side conversation. Nothing is persisted.
type MemoryStore struct {
	mu       sync.Mutex
	messages []internal.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make([]internal.Message, 0, 64)}
}

func (s *MemoryStore) All() []internal.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]internal.Message, len(s.messages))
	copy(cp, s.messages)
	return cp
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *MemoryStore) Append(msg internal.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	s.messages = append(s.messages, msg)
}

// SetLast replaces the content of the last message if it is the assistant's.
// It is how the in-flight reply is updated as fragments arrive.
func (s *MemoryStore) SetLast(content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.messages)
	if n == 0 || s.messages[n-1].Role != internal.RoleAssistant {
		return false
	}
	s.messages[n-1].Content = content
	return true
}

// Window returns the system message (when non-empty) followed by the last n
// stored messages and then pending, in order.
func (s *MemoryStore) Window(system string, n int, pending ...internal.Message) []internal.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := 0
	if n >= 0 && len(s.messages) > n {
		start = len(s.messages) - n
	}
	out := make([]internal.Message, 0, len(s.messages)-start+len(pending)+1)
	if system != "" {
		out = append(out, internal.Message{Role: internal.RoleSystem, Content: system})
	}
	out = append(out, s.messages[start:]...)
	return append(out, pending...)
}

func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = s.messages[:0]
}
