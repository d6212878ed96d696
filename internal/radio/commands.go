package radio

import (
	"context"
	"fmt"
	"strings"
)

// SendText writes a text message through the current link.
func (c *Connection) SendText(ctx context.Context, text, destination string, wantAck bool) error {
	h, err := c.currentHandle()
	if err != nil {
		return err
	}
	sendCtx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	defer cancel()
	if err := c.link.SendText(sendCtx, h, text, destination, wantAck); err != nil {
		return fmt.Errorf("send text: %w", err)
	}

	return nil
}

// SetRadioPreset switches the LoRa modem preset. The device reboots to apply it.
func (c *Connection) SetRadioPreset(ctx context.Context, name string) error {
	preset, err := ParseModemPreset(name)
	if err != nil {
		return err
	}

	return c.writeRebootingConfig(ctx, ConfigSectionLoRa, ConfigValues{
		"use_preset":   true,
		"modem_preset": int(preset),
	}, fmt.Sprintf("radio preset %s", preset))
}

// SetFrequencySlot sets the LoRa channel slot; 0 selects it automatically.
func (c *Connection) SetFrequencySlot(ctx context.Context, slot int) error {
	if err := ValidateFrequencySlot(slot); err != nil {
		return err
	}
	what := fmt.Sprintf("frequency slot %d", slot)
	if slot == 0 {
		what = "frequency slot auto"
	}

	return c.writeRebootingConfig(ctx, ConfigSectionLoRa, ConfigValues{"channel_num": slot}, what)
}

// SetUserNames sets the owner names. Empty names are left unchanged.
func (c *Connection) SetUserNames(ctx context.Context, longName, shortName string) error {
	if err := ValidateUserNames(longName, shortName); err != nil {
		return err
	}
	values := ConfigValues{}
	if v := strings.TrimSpace(longName); v != "" {
		values["long_name"] = v
	}
	if v := strings.TrimSpace(shortName); v != "" {
		values["short_name"] = v
	}

	return c.writeRebootingConfig(ctx, ConfigSectionOwner, values, "user names")
}

func (c *Connection) writeRebootingConfig(ctx context.Context, section ConfigSection, values ConfigValues, what string) error {
	h, err := c.currentHandle()
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	err = c.link.WriteConfig(writeCtx, h, section, values)
	cancel()
	if err != nil {
		err = fmt.Errorf("write %s config: %w", section, err)
		c.logger.Warn("config write failed", "section", section, "error", err)
		c.postNotice(fmt.Sprintf("Failed to apply %s: %v", what, err), true)

		return err
	}

	c.logger.Info("config written, device will reboot", "section", section, "change", what)
	c.postNotice(fmt.Sprintf("Applied %s. Device will reboot.", what), false)
	if !c.queue.Post(c.beginConfigReboot) {
		return ErrQueueClosed
	}

	return nil
}
