package main

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/skobkin/meshmon/internal/domain"
)

func TestParseFlags(t *testing.T) {
	flags, err := parseFlags([]string{"--dump-nodes", "--watch", "90s"}, io.Discard)
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if !flags.dumpNodes || flags.watch != 90*time.Second {
		t.Fatalf("unexpected flags: %+v", flags)
	}

	if _, err := parseFlags(nil, io.Discard); err == nil {
		t.Fatalf("expected error when no action is given")
	}
}

func TestDumpNodesOrdersByLastSeen(t *testing.T) {
	older := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	snr := 6.5
	rssi := -97
	hops := 1
	records := map[string]domain.NodeRecord{
		"!00000002": {ID: "!00000002", DisplayName: "Old", FirstSeen: older, LastSeen: older},
		"!00000003": {ID: "!00000003", DisplayName: "New", FirstSeen: older, LastSeen: newer, LastSNR: &snr, LastRSSI: &rssi, HopsAway: &hops},
	}

	var out bytes.Buffer
	if err := dumpNodes(&out, records); err != nil {
		t.Fatalf("dump nodes: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 || lines[0] != "2 nodes" {
		t.Fatalf("unexpected output: %q", out.String())
	}
	wantNew := `!00000003 "New" first=2026-03-01T10:00:00Z last=2026-03-01T11:00:00Z snr=6.5 rssi=-97 hops=1`
	if lines[1] != wantNew {
		t.Fatalf("expected %q, got %q", wantNew, lines[1])
	}
	if !strings.HasPrefix(lines[2], `!00000002 "Old"`) {
		t.Fatalf("expected older node last, got %q", lines[2])
	}
}

func TestNodeLineMissingTimes(t *testing.T) {
	got := nodeLine(domain.NodeRecord{ID: "!0000abcd"})
	if got != `!0000abcd "!0000abcd" first=- last=-` {
		t.Fatalf("unexpected line: %q", got)
	}
}
