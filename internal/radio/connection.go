package radio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/skobkin/meshmon/internal/connectors"
)

// RecoveryPath tells which trigger started the running reconnection sequence.
type RecoveryPath int

const (
	RecoveryNone RecoveryPath = iota
	RecoveryLinkLoss
	RecoveryConfigReboot
)

func (p RecoveryPath) String() string {
	switch p {
	case RecoveryLinkLoss:
		return "link_loss"
	case RecoveryConfigReboot:
		return "config_reboot"
	default:
		return "none"
	}
}

// Options holds the connection timings and limits.
type Options struct {
	PortHint          string
	MaxAttempts       int
	ReconnectDelay    time.Duration
	SettleDelay       time.Duration
	StabilizeDelay    time.Duration
	RebootGrace       time.Duration
	StaleTimeout      time.Duration
	KeepaliveInterval time.Duration
	OpTimeout         time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts:       5,
		ReconnectDelay:    15 * time.Second,
		SettleDelay:       2 * time.Second,
		StabilizeDelay:    3 * time.Second,
		RebootGrace:       10 * time.Second,
		StaleTimeout:      5 * time.Minute,
		KeepaliveInterval: 30 * time.Second,
		OpTimeout:         15 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = def.MaxAttempts
	}
	if o.ReconnectDelay < 0 {
		o.ReconnectDelay = def.ReconnectDelay
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = def.SettleDelay
	}
	if o.StabilizeDelay < 0 {
		o.StabilizeDelay = def.StabilizeDelay
	}
	if o.RebootGrace < 0 {
		o.RebootGrace = def.RebootGrace
	}
	if o.StaleTimeout <= 0 {
		o.StaleTimeout = def.StaleTimeout
	}
	if o.KeepaliveInterval <= 0 {
		o.KeepaliveInterval = def.KeepaliveInterval
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = def.OpTimeout
	}

	return o
}

// Listener receives connection output. All calls happen on the queue
// goroutine, so implementations must not block on the queue themselves.
type Listener interface {
	ConnectionStateChanged(status connectors.ConnectionStatus)
	Connected(identity Identity, nodes map[string]NodeSnapshot)
	PacketReceived(p Packet)
	Notice(text string, isError bool)
}

type ConnectionParams struct {
	Logger   *slog.Logger
	Link     Link
	Queue    *Queue
	Clock    clockwork.Clock
	Listener Listener
	Options  Options
}

// Connection is the link lifecycle state machine. Its state is mutated only by
// closures running on the queue goroutine; blocking link calls run on
// short-lived workers that post their results back.
type Connection struct {
	logger   *slog.Logger
	link     Link
	queue    *Queue
	clock    clockwork.Clock
	listener Listener
	opts     Options

	lifeCtx    context.Context
	lifeCancel context.CancelFunc

	// Owned by the queue goroutine.
	gen           uint64
	monitorSeq    uint64
	cancelWorker  context.CancelFunc
	cancelMonitor context.CancelFunc
	lastPacketAt  time.Time
	closed        bool
	// stale is the lost handle until a recovery attempt has closed it.
	stale Handle

	// Written by the queue goroutine, readable from anywhere.
	mu       sync.RWMutex
	state    connectors.ConnectionState
	handle   Handle
	path     RecoveryPath
	attempts int
	localID  string

	subMu      sync.Mutex
	subscribed Handle
}

type attemptResult struct {
	handle      Handle
	identity    Identity
	nodes       map[string]NodeSnapshot
	staleClosed bool
	err         error
}

func NewConnection(p ConnectionParams) *Connection {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default().With("component", "radio.connection")
	}
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	lifeCtx, lifeCancel := context.WithCancel(context.Background())

	return &Connection{
		logger:     logger,
		link:       p.Link,
		queue:      p.Queue,
		clock:      clock,
		listener:   p.Listener,
		opts:       p.Options.withDefaults(),
		lifeCtx:    lifeCtx,
		lifeCancel: lifeCancel,
		state:      connectors.ConnectionStateDisconnected,
	}
}

func (c *Connection) State() connectors.ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state
}

// Attempts is the number of reconnection attempts started in the current sequence.
func (c *Connection) Attempts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.attempts
}

func (c *Connection) Path() RecoveryPath {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.path
}

func (c *Connection) LocalID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.localID
}

func (c *Connection) Target() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.handle != nil {
		return c.handle.Target()
	}

	return c.opts.PortHint
}

// Open performs the initial connect. A failure is fatal for the session and
// is not retried.
func (c *Connection) Open(ctx context.Context) error {
	started := make(chan bool, 1)
	if !c.queue.Post(func() { started <- c.beginOpen() }) {
		return ErrQueueClosed
	}
	select {
	case ok := <-started:
		if !ok {
			return ErrAlreadyOpen
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	res := c.connectSequence(ctx)

	// finishOpen never blocks, so its outcome is awaited even if ctx is done:
	// returning early would report a failure for a link that is live.
	done := make(chan error, 1)
	if !c.queue.Post(func() { done <- c.finishOpen(res) }) {
		c.closeQuietly(res.handle)

		return ErrQueueClosed
	}
	select {
	case err := <-done:
		return err
	case <-c.queue.Done():
		select {
		case err := <-done:
			return err
		default:
			c.closeQuietly(res.handle)

			return ErrQueueClosed
		}
	}
}

func (c *Connection) beginOpen() bool {
	if c.closed || c.State() != connectors.ConnectionStateDisconnected {
		return false
	}
	c.setState(connectors.ConnectionStateConnecting, nil)

	return true
}

func (c *Connection) finishOpen(res attemptResult) error {
	if c.closed {
		c.closeAsync(res.handle)

		return ErrQueueClosed
	}
	if res.err != nil {
		c.logger.Error("initial device connection failed", "target", c.opts.PortHint, "error", res.err)
		c.setState(connectors.ConnectionStateDisconnected, res.err)
		c.notice(fmt.Sprintf("Could not connect to device: %v", res.err), true)

		return fmt.Errorf("open device link: %w", res.err)
	}
	c.enterConnected(res)
	c.notice(fmt.Sprintf("Connected to %s", identityLabel(res.identity)), false)

	return nil
}

// Shutdown moves to Disconnected from any state, stops every loop and closes
// the link.
func (c *Connection) Shutdown(ctx context.Context) error {
	handles := make(chan Handle, 1)
	var h Handle
	if c.queue.Post(func() { handles <- c.beginShutdown() }) {
		select {
		case h = <-handles:
		case <-c.queue.Done():
			// The queue stopped; nothing else mutates state any more.
			select {
			case h = <-handles:
			default:
				h = c.beginShutdown()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	} else {
		h = c.beginShutdown()
	}
	if h == nil {
		return nil
	}

	closeCtx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	defer cancel()
	if err := c.link.Close(closeCtx, h); err != nil {
		return fmt.Errorf("close device link: %w", err)
	}

	return nil
}

func (c *Connection) beginShutdown() Handle {
	if c.closed {
		return nil
	}
	c.closed = true
	c.cancelInFlight()
	c.stopMonitor()
	c.lifeCancel()

	c.mu.Lock()
	h := c.handle
	c.handle = nil
	c.path = RecoveryNone
	c.attempts = 0
	c.mu.Unlock()
	if h == nil {
		h = c.stale
	}
	c.stale = nil

	if c.State() != connectors.ConnectionStateDisconnected {
		c.setState(connectors.ConnectionStateDisconnected, nil)
	}
	c.logger.Info("connection shut down")

	return h
}

// deliver is the link notification sink. It only marshals onto the queue.
func (c *Connection) deliver(n Notification) {
	if !c.queue.Post(func() { c.onNotification(n) }) {
		c.logger.Debug("notification dropped: queue closed", "kind", n.Kind.String())
	}
}

func (c *Connection) onNotification(n Notification) {
	if c.closed {
		return
	}
	switch n.Kind {
	case NotificationPacket:
		if n.Packet == nil {
			return
		}
		c.lastPacketAt = c.clock.Now()
		c.listener.PacketReceived(*n.Packet)
	case NotificationLost:
		if !c.isCurrentHandle(n.Handle) {
			c.logger.Debug("link loss from stale handle ignored")

			return
		}
		c.handleLinkLost(n.Err)
	case NotificationEstablished:
		c.logger.Debug("link reported established", "target", handleTarget(n.Handle))
	}
}

// handleLinkLost starts recovery path (a). Losses outside Connected are
// duplicates of one already being handled.
func (c *Connection) handleLinkLost(cause error) {
	if c.closed || c.State() != connectors.ConnectionStateConnected {
		c.logger.Debug("link loss ignored", "state", c.State(), "error", cause)

		return
	}
	if cause == nil {
		cause = errors.New("link lost")
	}
	c.logger.Warn("device link lost", "error", cause)
	c.notice(fmt.Sprintf("Disconnected from device: %v. Reconnecting...", cause), true)
	c.startRecovery(RecoveryLinkLoss, cause)
}

// beginConfigReboot starts recovery path (b) after a config write that makes
// the device reboot. It supersedes a running path (a) sequence.
func (c *Connection) beginConfigReboot() {
	if c.closed {
		return
	}
	state := c.State()
	if state == connectors.ConnectionStateDisconnected || state == connectors.ConnectionStateConnecting {
		c.logger.Debug("config reboot reconnection skipped", "state", state)

		return
	}
	if state == connectors.ConnectionStateReconnecting {
		c.logger.Info("superseding running reconnection", "path", c.Path().String())
	}
	c.notice(fmt.Sprintf("Device is rebooting, reconnecting in %s", c.opts.RebootGrace), false)
	c.startRecovery(RecoveryConfigReboot, nil)
}

func (c *Connection) startRecovery(path RecoveryPath, cause error) {
	c.cancelInFlight()
	c.stopMonitor()

	c.mu.Lock()
	if c.handle != nil {
		c.stale = c.handle
	}
	c.handle = nil
	c.path = path
	c.attempts = 0
	c.mu.Unlock()

	c.setState(connectors.ConnectionStateReconnecting, cause)
	c.startAttempt(c.stale)
}

func (c *Connection) startAttempt(stale Handle) {
	c.mu.Lock()
	c.attempts++
	attempt := c.attempts
	path := c.path
	c.mu.Unlock()

	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(c.lifeCtx)
	c.cancelWorker = cancel

	delay := c.attemptDelay(path, attempt)
	c.logger.Info("scheduling reconnection attempt",
		"path", path.String(),
		"attempt", attempt,
		"max_attempts", c.opts.MaxAttempts,
		"delay", delay,
	)

	go func() {
		res := c.runAttempt(ctx, delay, stale)
		if !c.queue.Post(func() { c.onAttemptResult(gen, attempt, res) }) {
			c.closeQuietly(res.handle)
		}
	}()
}

func (c *Connection) attemptDelay(path RecoveryPath, attempt int) time.Duration {
	if path == RecoveryConfigReboot && attempt == 1 {
		return c.opts.RebootGrace
	}

	return c.opts.ReconnectDelay
}

func (c *Connection) runAttempt(ctx context.Context, delay time.Duration, stale Handle) attemptResult {
	if err := c.sleep(ctx, delay); err != nil {
		return attemptResult{err: err}
	}
	if stale != nil {
		closeCtx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
		if err := c.link.Close(closeCtx, stale); err != nil {
			c.logger.Debug("closing stale link failed", "error", err)
		}
		cancel()
	}
	if err := c.sleep(ctx, c.opts.SettleDelay); err != nil {
		return attemptResult{err: err, staleClosed: stale != nil}
	}

	res := c.connectSequence(ctx)
	res.staleClosed = stale != nil

	return res
}

// connectSequence opens the link, subscribes, waits for it to stabilize and
// verifies it by reading the local identity.
func (c *Connection) connectSequence(ctx context.Context) attemptResult {
	openCtx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	h, err := c.link.Open(openCtx, c.opts.PortHint)
	cancel()
	if err != nil {
		return attemptResult{err: fmt.Errorf("open: %w", err)}
	}

	fail := func(err error) attemptResult {
		c.closeQuietly(h)

		return attemptResult{err: err}
	}

	if err := c.ensureSubscribed(h); err != nil {
		return fail(fmt.Errorf("subscribe: %w", err))
	}
	if err := c.sleep(ctx, c.opts.StabilizeDelay); err != nil {
		return fail(err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	identity, err := c.link.LocalIdentity(verifyCtx, h)
	cancel()
	if err != nil {
		return fail(fmt.Errorf("verify local identity: %w", err))
	}
	if strings.TrimSpace(identity.ID) == "" {
		return fail(errors.New("verify local identity: device reported empty node id"))
	}

	nodesCtx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	nodes, err := c.link.KnownNodes(nodesCtx, h)
	cancel()
	if err != nil {
		c.logger.Warn("loading device node table failed", "error", err)
		nodes = nil
	}

	return attemptResult{handle: h, identity: identity, nodes: nodes}
}

func (c *Connection) onAttemptResult(gen uint64, attempt int, res attemptResult) {
	if c.closed || gen != c.gen {
		c.closeAsync(res.handle)

		return
	}
	c.cancelWorker = nil
	if res.staleClosed {
		c.stale = nil
	}

	if res.err != nil {
		c.logger.Warn("reconnection attempt failed",
			"path", c.Path().String(),
			"attempt", attempt,
			"max_attempts", c.opts.MaxAttempts,
			"error", res.err,
		)
		if attempt >= c.opts.MaxAttempts {
			c.giveUp(res.err)

			return
		}
		c.notice(fmt.Sprintf("Reconnection attempt %d/%d failed: %v", attempt, c.opts.MaxAttempts, res.err), true)
		c.startAttempt(nil)

		return
	}

	path := c.Path()
	c.enterConnected(res)
	if path == RecoveryConfigReboot {
		c.notice(fmt.Sprintf("Reconnected to %s after reboot", identityLabel(res.identity)), false)
	} else {
		c.notice(fmt.Sprintf("Reconnected to %s", identityLabel(res.identity)), false)
	}
}

func (c *Connection) giveUp(cause error) {
	c.mu.Lock()
	attempts := c.attempts
	c.path = RecoveryNone
	c.mu.Unlock()

	c.logger.Error("giving up reconnection", "attempts", attempts, "error", cause)
	c.setState(connectors.ConnectionStateDisconnected, cause)
	c.notice(fmt.Sprintf("Failed to reconnect after %d attempts. Manual restart required.", attempts), true)
}

func (c *Connection) enterConnected(res attemptResult) {
	c.mu.Lock()
	c.handle = res.handle
	c.localID = strings.TrimSpace(res.identity.ID)
	c.path = RecoveryNone
	c.attempts = 0
	c.mu.Unlock()

	c.lastPacketAt = c.clock.Now()
	c.setState(connectors.ConnectionStateConnected, nil)
	c.listener.Connected(res.identity, res.nodes)
	c.startMonitor()
}

func (c *Connection) cancelInFlight() {
	c.gen++
	if c.cancelWorker != nil {
		c.cancelWorker()
		c.cancelWorker = nil
	}
}

// ensureSubscribed subscribes to h at most once.
func (c *Connection) ensureSubscribed(h Handle) error {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.subscribed != nil && c.subscribed == h {
		return nil
	}
	if err := c.link.Subscribe(h, c.deliver); err != nil {
		return err
	}
	c.subscribed = h

	return nil
}

func (c *Connection) setState(state connectors.ConnectionState, cause error) {
	c.mu.Lock()
	prev := c.state
	c.state = state
	attempt := c.attempts
	c.mu.Unlock()

	if prev == state {
		return
	}
	status := connectors.ConnectionStatus{
		State:         state,
		TransportName: c.link.Name(),
		Target:        c.Target(),
		Attempt:       attempt,
		Timestamp:     c.clock.Now(),
	}
	if cause != nil {
		status.Err = cause.Error()
	}
	c.logger.Info("connection state changed", "from", prev, "to", state, "error", status.Err)
	c.listener.ConnectionStateChanged(status)
}

func (c *Connection) notice(text string, isError bool) {
	c.listener.Notice(text, isError)
}

// postNotice is notice for callers outside the queue goroutine.
func (c *Connection) postNotice(text string, isError bool) {
	if !c.queue.Post(func() { c.notice(text, isError) }) {
		c.logger.Debug("notice dropped: queue closed", "text", text)
	}
}

func (c *Connection) isCurrentHandle(h Handle) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return h != nil && c.handle == h
}

func (c *Connection) currentHandle() (Handle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != connectors.ConnectionStateConnected || c.handle == nil {
		return nil, ErrNotConnected
	}

	return c.handle, nil
}

// sleep waits d on the connection clock. Zero delays do not touch the clock.
func (c *Connection) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := c.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}

func (c *Connection) closeQuietly(h Handle) {
	if h == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.OpTimeout)
	defer cancel()
	if err := c.link.Close(ctx, h); err != nil {
		c.logger.Debug("close link failed", "target", h.Target(), "error", err)
	}
}

// closeAsync keeps link I/O off the queue goroutine.
func (c *Connection) closeAsync(h Handle) {
	if h == nil {
		return
	}
	go c.closeQuietly(h)
}

func handleTarget(h Handle) string {
	if h == nil {
		return ""
	}

	return h.Target()
}

func identityLabel(id Identity) string {
	if name := strings.TrimSpace(id.DisplayName); name != "" && name != id.ID {
		return fmt.Sprintf("%s (%s)", name, id.ID)
	}

	return id.ID
}
