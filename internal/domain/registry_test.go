package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestRegistry() (*NodeRegistry, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	return NewNodeRegistry(clock), clock
}

func TestRegisterReportsNewOnlyOnce(t *testing.T) {
	reg, _ := newTestRegistry()

	if _, isNew := reg.Register("!00000001", ""); !isNew {
		t.Fatalf("expected first sighting to be new")
	}
	for i := 0; i < 3; i++ {
		if _, isNew := reg.Register("!00000001", "Alpha"); isNew {
			t.Fatalf("expected repeated sighting %d not to be new", i)
		}
	}
}

func TestRegisterRejectsEmptyID(t *testing.T) {
	reg, _ := newTestRegistry()

	rec, isNew := reg.Register("  ", "Ghost")
	if isNew || rec.ID != "" {
		t.Fatalf("expected empty id to be ignored, got %+v new=%v", rec, isNew)
	}
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", reg.Len())
	}
}

func TestRegisterNameNeverRegressesToID(t *testing.T) {
	reg, _ := newTestRegistry()
	id := "!0000abcd"

	steps := []struct {
		candidate string
		want      string
	}{
		{candidate: "", want: id},
		{candidate: "Base", want: "Base"},
		{candidate: "", want: "Base"},
		{candidate: id, want: "Base"},
		{candidate: "   ", want: "Base"},
		{candidate: "Base Camp", want: "Base Camp"},
		{candidate: "", want: "Base Camp"},
	}

	for i, step := range steps {
		rec, _ := reg.Register(id, step.candidate)
		if rec.DisplayName != step.want {
			t.Fatalf("step %d: expected display name %q, got %q", i, step.want, rec.DisplayName)
		}
	}
}

func TestRegisterPreservesFirstSeen(t *testing.T) {
	reg, clock := newTestRegistry()
	first, _ := reg.Register("!00000002", "")

	clock.Advance(time.Minute)
	second, _ := reg.Register("!00000002", "")

	if !second.FirstSeen.Equal(first.FirstSeen) {
		t.Fatalf("expected first seen %v, got %v", first.FirstSeen, second.FirstSeen)
	}
	if !second.LastSeen.Equal(first.LastSeen.Add(time.Minute)) {
		t.Fatalf("expected last seen refreshed, got %v", second.LastSeen)
	}
}

func TestLoadedIDsAreNotNew(t *testing.T) {
	reg, _ := newTestRegistry()
	reg.Load(map[string]NodeRecord{
		"!00000003": {ID: "!00000003", DisplayName: "Stored"},
		"!00000004": {ID: "!00000004"},
	})

	rec, isNew := reg.Register("!00000003", "")
	if isNew {
		t.Fatalf("expected loaded id not to be new")
	}
	if rec.DisplayName != "Stored" {
		t.Fatalf("expected stored name kept, got %q", rec.DisplayName)
	}
	if got := reg.Lookup("!00000004"); got != "!00000004" {
		t.Fatalf("expected id fallback for nameless record, got %q", got)
	}
}

func TestLookupFallsBackToID(t *testing.T) {
	reg, _ := newTestRegistry()
	reg.Register("!00000005", "Named")

	if got := reg.Lookup("!00000005"); got != "Named" {
		t.Fatalf("expected Named, got %q", got)
	}
	if got := reg.Lookup("!deadbeef"); got != "!deadbeef" {
		t.Fatalf("expected unknown id echoed, got %q", got)
	}
}

func TestUpdateLinkOnlyTouchesKnownNodes(t *testing.T) {
	reg, clock := newTestRegistry()
	snr := 5.5
	rssi := -90

	if _, ok := reg.UpdateLink("!00000006", LinkQuality{SNR: &snr}); ok {
		t.Fatalf("expected unknown node update to be skipped")
	}

	reg.Register("!00000006", "")
	rec, ok := reg.UpdateLink("!00000006", LinkQuality{SNR: &snr, RSSI: &rssi, HeardAt: clock.Now()})
	if !ok {
		t.Fatalf("expected known node update")
	}
	if rec.LastSNR == nil || *rec.LastSNR != snr {
		t.Fatalf("expected snr %v, got %v", snr, rec.LastSNR)
	}

	hops := 2
	rec, _ = reg.UpdateLink("!00000006", LinkQuality{HopsAway: &hops})
	if rec.LastRSSI == nil || *rec.LastRSSI != rssi {
		t.Fatalf("expected rssi preserved on sparse update, got %v", rec.LastRSSI)
	}
	if rec.HopsAway == nil || *rec.HopsAway != 2 {
		t.Fatalf("expected hops 2, got %v", rec.HopsAway)
	}
}

func TestMergeDeduplicates(t *testing.T) {
	reg, _ := newTestRegistry()
	reg.Register("!00000007", "Known")

	added := reg.Merge([]NodeRecord{
		{ID: "!00000007", DisplayName: "Known Renamed"},
		{ID: "!00000008", DisplayName: "Fresh"},
		{ID: "!00000008", DisplayName: "Fresh"},
		{ID: ""},
	})
	if added != 1 {
		t.Fatalf("expected 1 added node, got %d", added)
	}
	if reg.Len() != 2 {
		t.Fatalf("expected 2 nodes, got %d", reg.Len())
	}
	if got := reg.Lookup("!00000007"); got != "Known Renamed" {
		t.Fatalf("expected device name applied, got %q", got)
	}
	if _, isNew := reg.Register("!00000008", ""); isNew {
		t.Fatalf("expected merged node not to be new on later sighting")
	}
}

func TestSnapshotSortedByLastSeen(t *testing.T) {
	reg, clock := newTestRegistry()
	reg.Register("!00000001", "")
	clock.Advance(time.Second)
	reg.Register("!00000002", "")

	sorted := reg.SnapshotSorted()
	if len(sorted) != 2 || sorted[0].ID != "!00000002" {
		t.Fatalf("expected most recent first, got %+v", sorted)
	}
}

func TestRegistryChangesCoalesce(t *testing.T) {
	reg, _ := newTestRegistry()
	reg.Register("!00000001", "")
	reg.Register("!00000002", "")

	select {
	case <-reg.Changes():
	default:
		t.Fatalf("expected change signal")
	}
	select {
	case <-reg.Changes():
		t.Fatalf("expected coalesced change signal")
	default:
	}
}
