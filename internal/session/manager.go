// Package session is the device session manager: it owns the radio
// connection, the node registry, the message log and the device stats, and
// publishes everything it learns on the bus.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/skobkin/meshmon/internal/bus"
	"github.com/skobkin/meshmon/internal/config"
	"github.com/skobkin/meshmon/internal/connectors"
	"github.com/skobkin/meshmon/internal/domain"
	"github.com/skobkin/meshmon/internal/radio"
)

type Params struct {
	Logger     *slog.Logger
	Bus        bus.MessageBus
	Link       radio.Link
	Store      domain.NodeSnapshotStore
	WriteQueue domain.WriteQueue
	Clock      clockwork.Clock
	Config     config.SessionConfig
	PortHint   string
}

// Manager is the single owner of session state. Mutations happen only on the
// queue goroutine; the read accessors return copies.
type Manager struct {
	logger *slog.Logger
	bus    bus.MessageBus
	store  domain.NodeSnapshotStore
	writes domain.WriteQueue
	clock  clockwork.Clock
	cfg    config.SessionConfig

	queue    *radio.Queue
	conn     *radio.Connection
	registry *domain.NodeRegistry
	messages *domain.MessageLog
	outbox   chan sendRequest

	// outboxMu guards outboxClosed; senders hold it for reading while they
	// enqueue so nothing lands in the outbox after it was drained.
	outboxMu     sync.RWMutex
	outboxClosed bool

	statsMu sync.RWMutex
	stats   domain.DeviceStats

	lifeMu sync.Mutex
	cancel context.CancelFunc
}

func New(p Params) *Manager {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default().With("component", "session")
	}
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	cfg := p.Config
	if cfg == (config.SessionConfig{}) {
		cfg = config.DefaultSession()
	}

	m := &Manager{
		logger:   logger,
		bus:      p.Bus,
		store:    p.Store,
		writes:   p.WriteQueue,
		clock:    clock,
		cfg:      cfg,
		queue:    radio.NewQueue(cfg.EventQueueSize),
		registry: domain.NewNodeRegistry(clock),
		messages: domain.NewMessageLog(cfg.MessageCapacity),
		outbox:   make(chan sendRequest, outboxSize),
	}
	m.conn = radio.NewConnection(radio.ConnectionParams{
		Logger:   logger.With("component", "radio.connection"),
		Link:     p.Link,
		Queue:    m.queue,
		Clock:    clock,
		Listener: (*listener)(m),
		Options: radio.Options{
			PortHint:          p.PortHint,
			MaxAttempts:       cfg.MaxReconnectAttempts,
			ReconnectDelay:    cfg.ReconnectDelay.Std(),
			SettleDelay:       cfg.SettleDelay.Std(),
			StabilizeDelay:    cfg.StabilizeDelay.Std(),
			RebootGrace:       cfg.RebootGrace.Std(),
			StaleTimeout:      cfg.StaleTimeout.Std(),
			KeepaliveInterval: cfg.KeepaliveInterval.Std(),
		},
	})

	return m
}

// Start loads the node snapshot, starts the session loops and opens the
// device link. A failed open is returned and not retried.
func (m *Manager) Start(ctx context.Context) error {
	m.lifeMu.Lock()
	if m.cancel != nil {
		m.lifeMu.Unlock()

		return errors.New("session already started")
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.lifeMu.Unlock()

	loaded, err := domain.LoadRegistryFromStore(ctx, m.registry, m.store)
	if err != nil {
		m.logger.Warn("starting with empty node registry", "error", err)
	} else if loaded > 0 {
		m.logger.Info("loaded node snapshot", "nodes", loaded)
	}
	m.setStats(domain.DeviceStats{NodeCount: m.registry.Len()})

	go m.queue.Run(runCtx)
	go m.runOutbox(runCtx)
	domain.StartSnapshotProjection(runCtx, m.registry, m.writes, m.store, m.clock, m.cfg.SnapshotInterval.Std())

	if err := m.conn.Open(ctx); err != nil {
		return err
	}

	return nil
}

// Shutdown disconnects, flushes the node snapshot and stops the loops.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.lifeMu.Lock()
	cancel := m.cancel
	m.lifeMu.Unlock()
	if cancel == nil {
		// Nothing drains the queue or the outbox before Start.
		m.closeOutbox()
	}

	var errs []error
	if err := m.conn.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	m.queue.Close()
	if cancel != nil {
		cancel()
	}

	if m.store != nil {
		if err := m.store.Save(ctx, m.registry.Snapshot()); err != nil {
			m.logger.Error("saving node snapshot failed", "error", err)
			errs = append(errs, fmt.Errorf("save node snapshot: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (m *Manager) CurrentStats() domain.DeviceStats {
	m.statsMu.RLock()
	defer m.statsMu.RUnlock()

	return m.stats
}

func (m *Manager) CurrentConnectionState() connectors.ConnectionState {
	return m.conn.State()
}

// LocalID is the verified id of the attached node, empty before the first connect.
func (m *Manager) LocalID() string {
	return m.conn.LocalID()
}

// Messages returns the retained messages, oldest first.
func (m *Manager) Messages() []domain.Message {
	return m.messages.Messages()
}

// Nodes returns known nodes, most recently seen first.
func (m *Manager) Nodes() []domain.NodeRecord {
	return m.registry.SnapshotSorted()
}

func (m *Manager) DisplayName(id string) string {
	return m.registry.Lookup(id)
}

// Subscribe returns one channel carrying every session topic in publish order.
func (m *Manager) Subscribe() bus.Subscription {
	return m.bus.Subscribe(connectors.SessionTopics...)
}

func (m *Manager) Unsubscribe(sub bus.Subscription) {
	m.bus.Unsubscribe(sub)
}

func (m *Manager) SetRadioPreset(ctx context.Context, name string) error {
	return m.conn.SetRadioPreset(ctx, name)
}

func (m *Manager) SetFrequencySlot(ctx context.Context, slot int) error {
	return m.conn.SetFrequencySlot(ctx, slot)
}

// SetUserNames writes the owner names and renames the local node record.
func (m *Manager) SetUserNames(ctx context.Context, longName, shortName string) error {
	if err := m.conn.SetUserNames(ctx, longName, shortName); err != nil {
		return err
	}
	localID := m.conn.LocalID()
	m.queue.Post(func() { m.renameLocal(localID, longName, shortName) })

	return nil
}

func (m *Manager) setStats(s domain.DeviceStats) {
	m.statsMu.Lock()
	m.stats = s
	m.statsMu.Unlock()
}

func (m *Manager) publish(topic string, msg any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(topic, msg)
}
