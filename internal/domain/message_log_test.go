package domain

import (
	"fmt"
	"testing"
)

func TestMessageLogKeepsLastN(t *testing.T) {
	const capacity = 5
	log := NewMessageLog(capacity)

	for i := 0; i < capacity+3; i++ {
		log.Append(Message{Text: fmt.Sprintf("m%d", i)})
	}

	got := log.Messages()
	if len(got) != capacity {
		t.Fatalf("expected %d messages, got %d", capacity, len(got))
	}
	for i, msg := range got {
		want := fmt.Sprintf("m%d", i+3)
		if msg.Text != want {
			t.Fatalf("position %d: expected %q, got %q", i, want, msg.Text)
		}
	}
}

func TestMessageLogReportsEviction(t *testing.T) {
	log := NewMessageLog(1)
	if log.Append(Message{Text: "a"}) {
		t.Fatalf("expected no eviction while filling")
	}
	if !log.Append(Message{Text: "b"}) {
		t.Fatalf("expected eviction once full")
	}
	if log.Len() != 1 || log.Messages()[0].Text != "b" {
		t.Fatalf("expected only newest message, got %+v", log.Messages())
	}
}

func TestMessageLogDefaultCapacity(t *testing.T) {
	if got := NewMessageLog(0).Cap(); got != DefaultMessageCapacity {
		t.Fatalf("expected default capacity %d, got %d", DefaultMessageCapacity, got)
	}
}
