package domain

import "sync"

// DefaultMessageCapacity bounds the message log when no capacity is configured.
const DefaultMessageCapacity = 500

// MessageLog is a fixed-capacity ring of messages kept in arrival order.
type MessageLog struct {
	mu    sync.RWMutex
	buf   []Message
	start int
	size  int
}

func NewMessageLog(capacity int) *MessageLog {
	if capacity <= 0 {
		capacity = DefaultMessageCapacity
	}

	return &MessageLog{buf: make([]Message, capacity)}
}

// Append adds m, evicting the oldest message once the log is full.
func (l *MessageLog) Append(m Message) (evicted bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.size < len(l.buf) {
		l.buf[(l.start+l.size)%len(l.buf)] = m
		l.size++

		return false
	}
	l.buf[l.start] = m
	l.start = (l.start + 1) % len(l.buf)

	return true
}

// Messages returns the retained messages, oldest first.
func (l *MessageLog) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Message, l.size)
	for i := 0; i < l.size; i++ {
		out[i] = l.buf[(l.start+i)%len(l.buf)]
	}

	return out
}

func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.size
}

func (l *MessageLog) Cap() int {
	return len(l.buf)
}
