package domain

import (
	"sort"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
)

// NodeRegistry maps node ids to their last known metadata.
//
// Writes are expected from a single owner; reads may come from any goroutine.
type NodeRegistry struct {
	mu      sync.RWMutex
	clock   clockwork.Clock
	nodes   map[string]NodeRecord
	changes chan struct{}
}

func NewNodeRegistry(clock clockwork.Clock) *NodeRegistry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &NodeRegistry{
		clock:   clock,
		nodes:   make(map[string]NodeRecord),
		changes: make(chan struct{}, 1),
	}
}

// Load seeds the registry from persisted records. Loaded ids are known and
// never reported as newly discovered.
func (r *NodeRegistry) Load(records map[string]NodeRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, rec := range records {
		id := NormalizeNodeID(rec.ID)
		if id == "" {
			id = NormalizeNodeID(key)
		}
		if id == "" {
			continue
		}
		rec.ID = id
		rec.DisplayName = upgradeDisplayName(id, "", rec.DisplayName)
		r.nodes[id] = rec
	}
	r.notify()
}

// Register records a sighting of id. The returned flag is true only the first
// time the id is seen during the registry lifetime.
func (r *NodeRegistry) Register(id, candidateName string) (NodeRecord, bool) {
	id = NormalizeNodeID(id)
	if id == "" {
		return NodeRecord{}, false
	}
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.nodes[id]
	if !ok {
		rec = NodeRecord{
			ID:        id,
			FirstSeen: now,
		}
	}
	rec.DisplayName = upgradeDisplayName(id, rec.DisplayName, candidateName)
	rec.LastSeen = now
	r.nodes[id] = rec
	r.notify()

	return rec, !ok
}

// UpdateLink stores link metadata for an already known node.
func (r *NodeRegistry) UpdateLink(id string, q LinkQuality) (NodeRecord, bool) {
	id = NormalizeNodeID(id)
	if id == "" || q.Empty() {
		return NodeRecord{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.nodes[id]
	if !ok {
		return NodeRecord{}, false
	}
	applyLinkQuality(&rec, q)
	r.nodes[id] = rec
	r.notify()

	return rec, true
}

// Merge bulk-loads records reported by the device. Already known ids are
// updated in place and not counted; the result is the number of added ids.
func (r *NodeRegistry) Merge(records []NodeRecord) int {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for _, incoming := range records {
		id := NormalizeNodeID(incoming.ID)
		if id == "" {
			continue
		}
		rec, ok := r.nodes[id]
		if !ok {
			rec = NodeRecord{ID: id, FirstSeen: now, LastSeen: now}
			added++
		}
		rec.DisplayName = upgradeDisplayName(id, rec.DisplayName, incoming.DisplayName)
		applyLinkQuality(&rec, LinkQuality{
			SNR:      incoming.LastSNR,
			RSSI:     incoming.LastRSSI,
			HopsAway: incoming.HopsAway,
			HeardAt:  incoming.LastHeard,
		})
		r.nodes[id] = rec
	}
	if len(records) > 0 {
		r.notify()
	}

	return added
}

// Lookup resolves an id to its display name, falling back to the id itself.
func (r *NodeRegistry) Lookup(id string) string {
	id = strings.TrimSpace(id)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.nodes[id]; ok {
		return NodeDisplayName(rec)
	}

	return id
}

func (r *NodeRegistry) Get(id string) (NodeRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.nodes[strings.TrimSpace(id)]

	return rec, ok
}

func (r *NodeRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.nodes)
}

// Snapshot returns a copy of the id to record table.
func (r *NodeRegistry) Snapshot() map[string]NodeRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]NodeRecord, len(r.nodes))
	for id, rec := range r.nodes {
		out[id] = rec
	}

	return out
}

// SnapshotSorted lists records, most recently seen first.
func (r *NodeRegistry) SnapshotSorted() []NodeRecord {
	r.mu.RLock()
	out := make([]NodeRecord, 0, len(r.nodes))
	for _, rec := range r.nodes {
		out = append(out, rec)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}

		return out[i].ID < out[j].ID
	})

	return out
}

func (r *NodeRegistry) Changes() <-chan struct{} {
	return r.changes
}

func (r *NodeRegistry) notify() {
	select {
	case r.changes <- struct{}{}:
	default:
	}
}

func applyLinkQuality(rec *NodeRecord, q LinkQuality) {
	if q.SNR != nil {
		v := *q.SNR
		rec.LastSNR = &v
	}
	if q.RSSI != nil {
		v := *q.RSSI
		rec.LastRSSI = &v
	}
	if q.HopsAway != nil {
		v := *q.HopsAway
		rec.HopsAway = &v
	}
	if q.HeardAt.After(rec.LastHeard) {
		rec.LastHeard = q.HeardAt
	}
}
