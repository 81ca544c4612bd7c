package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transcript holds the ordered message sequence for one conversation
// session. Messages live only as long as the session; nothing is
// persisted client-side.
type Transcript struct {
	mu       sync.RWMutex
	messages []Message
}

// NewTranscript returns an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{messages: make([]Message, 0, 16)}
}

// Append stores a message at the end of the transcript, stamping an ID
// and timestamp when the caller left them empty. The stored message is
// returned.
func (t *Transcript) Append(message Message) Message {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	t.mu.Lock()
	t.messages = append(t.messages, message)
	t.mu.Unlock()

	return message
}

// Seed replaces the transcript contents with previously exchanged
// messages, typically the server-side history fetched at login.
func (t *Transcript) Seed(messages []Message) {
	copied := make([]Message, len(messages))
	copy(copied, messages)

	t.mu.Lock()
	t.messages = copied
	t.mu.Unlock()
}

// Messages returns a copy of the transcript.
func (t *Transcript) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	copied := make([]Message, len(t.messages))
	copy(copied, t.messages)
	return copied
}

// Len reports the number of stored messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}
