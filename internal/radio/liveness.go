package radio

import (
	"context"
	"fmt"
	"time"
)

// startMonitor runs the liveness monitor for the current Connected period.
// Every tick is checked on the queue goroutine, so a tick that races with a
// state change or shutdown is discarded there.
func (c *Connection) startMonitor() {
	c.stopMonitor()
	c.monitorSeq++
	seq := c.monitorSeq
	ctx, cancel := context.WithCancel(c.lifeCtx)
	c.cancelMonitor = cancel
	interval := c.opts.KeepaliveInterval

	go func() {
		ticker := c.clock.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				if !c.queue.Post(func() { c.checkLiveness(ctx, seq) }) {
					return
				}
			}
		}
	}()
}

func (c *Connection) stopMonitor() {
	c.monitorSeq++
	if c.cancelMonitor != nil {
		c.cancelMonitor()
		c.cancelMonitor = nil
	}
}

func (c *Connection) checkLiveness(ctx context.Context, seq uint64) {
	if c.closed || seq != c.monitorSeq || ctx.Err() != nil {
		return
	}
	h, err := c.currentHandle()
	if err != nil {
		return
	}

	silence := c.clock.Since(c.lastPacketAt)
	if silence >= c.opts.StaleTimeout {
		c.logger.Warn("no packets received, treating link as lost", "silence", silence, "stale_timeout", c.opts.StaleTimeout)
		c.notice(fmt.Sprintf("No packets received for %s. Connection may be stale.", silence.Round(time.Second)), true)
		c.handleLinkLost(ErrStaleLink)

		return
	}

	go c.keepalive(ctx, h)
}

// keepalive asks the device for fresh telemetry. Failures are only logged.
func (c *Connection) keepalive(ctx context.Context, h Handle) {
	reqCtx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	defer cancel()
	if err := c.link.RequestTelemetry(reqCtx, h); err != nil {
		c.logger.Debug("keepalive telemetry request failed", "error", err)

		return
	}
	c.logger.Debug("keepalive telemetry requested")
}
