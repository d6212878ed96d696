package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/skobkin/meshmon/internal/domain"
	"github.com/skobkin/meshmon/internal/radio"
)

const (
	outboxSize = 128

	// MaxTextBytes is the largest text payload a single packet can carry.
	MaxTextBytes = 200
)

type SendResult struct {
	Message domain.Message
	Err     error
}

type sendRequest struct {
	destination string
	text        string
	result      chan SendResult
}

// SendText queues text for destination; an empty destination broadcasts.
// The returned channel receives exactly one result and is then closed.
func (m *Manager) SendText(destination, text string) <-chan SendResult {
	resCh := make(chan SendResult, 1)
	if err := validateText(text); err != nil {
		resCh <- SendResult{Err: err}
		close(resCh)

		return resCh
	}

	m.outboxMu.RLock()
	defer m.outboxMu.RUnlock()
	if m.outboxClosed {
		resCh <- SendResult{Err: radio.ErrQueueClosed}
		close(resCh)

		return resCh
	}

	req := sendRequest{
		destination: domain.NormalizeDestination(destination),
		text:        text,
		result:      resCh,
	}
	select {
	case m.outbox <- req:
	case <-m.queue.Done():
		resCh <- SendResult{Err: radio.ErrQueueClosed}
		close(resCh)
	}

	return resCh
}

func validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return &radio.ValidationError{Field: "message", Reason: "body is empty"}
	}
	if n := len(text); n > MaxTextBytes {
		return &radio.ValidationError{Field: "message", Reason: fmt.Sprintf("body exceeds %d bytes: %d", MaxTextBytes, n)}
	}

	return nil
}

// runOutbox serializes sends so one slow write never reorders later ones.
func (m *Manager) runOutbox(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.closeOutbox()

			return
		case req := <-m.outbox:
			m.handleSend(ctx, req)
		}
	}
}

// closeOutbox fails every queued send and rejects later ones. Closing the
// queue first releases senders blocked on a full outbox.
func (m *Manager) closeOutbox() {
	m.queue.Close()
	m.outboxMu.Lock()
	m.outboxClosed = true
	m.outboxMu.Unlock()
	m.drainOutbox()
}

func (m *Manager) drainOutbox() {
	for {
		select {
		case req := <-m.outbox:
			req.result <- SendResult{Err: radio.ErrQueueClosed}
			close(req.result)
		default:
			return
		}
	}
}

func (m *Manager) handleSend(ctx context.Context, req sendRequest) {
	err := m.conn.SendText(ctx, req.text, req.destination, false)
	if err != nil {
		m.logger.Warn("sending message failed", "destination", req.destination, "error", err)
		res := SendResult{Err: err}
		posted := m.queue.Post(func() {
			(*listener)(m).Notice(fmt.Sprintf("Failed to send message: %v", err), true)
			req.result <- res
			close(req.result)
		})
		if !posted {
			req.result <- res
			close(req.result)
		}

		return
	}

	msg := domain.Message{
		Timestamp: m.clock.Now(),
		FromID:    m.conn.LocalID(),
		ToID:      req.destination,
		Text:      req.text,
		Outgoing:  true,
	}
	m.logger.Debug("message sent", "destination", req.destination, "bytes", len(req.text))
	posted := m.queue.Post(func() {
		(*listener)(m).appendMessage(msg)
		req.result <- SendResult{Message: msg}
		close(req.result)
	})
	if !posted {
		req.result <- SendResult{Message: msg}
		close(req.result)
	}
}
