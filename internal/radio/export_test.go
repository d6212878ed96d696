package radio

// BeginConfigReboot starts the config-reboot path as if a write had succeeded.
func (c *Connection) BeginConfigReboot() bool {
	return c.queue.Post(c.beginConfigReboot)
}

// EnsureSubscribed exposes the subscription guard.
func (c *Connection) EnsureSubscribed(h Handle) error {
	return c.ensureSubscribed(h)
}
