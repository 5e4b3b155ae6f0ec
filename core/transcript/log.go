// Package transcript holds the ordered conversation shown to the players.
package transcript

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time
}

// Log is an append-only list of messages. Append order is display order.
type Log struct {
	mu       sync.RWMutex
	messages []Message
}

func NewLog() *Log {
	return &Log{}
}

// Append records a message. Its id and timestamp are taken under the lock
// so both sort in append order.
func (l *Log) Append(role Role, content string) Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	message := Message{
		ID:        newMessageID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
	l.messages = append(l.messages, message)
	return message
}

func (l *Log) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.messages)
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

func (l *Log) Find(id string) (Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, message := range l.messages {
		if message.ID == id {
			return message, true
		}
	}
	return Message{}, false
}

// Last returns the most recent message with the given role.
func (l *Log) Last(role Role) (Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, message := range slices.Backward(l.messages) {
		if message.Role == role {
			return message, true
		}
	}
	return Message{}, false
}

func (l *Log) Clear() {
	l.mu.Lock()
	l.messages = nil
	l.mu.Unlock()
}

func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
