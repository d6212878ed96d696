package link

import (
	"time"

	"github.com/skobkin/meshmon/internal/radio"
)

// Envelope kinds exchanged with the bridge.
const (
	kindIdentity         = "identity"
	kindNodes            = "nodes"
	kindSendText         = "send_text"
	kindWriteConfig      = "write_config"
	kindRequestTelemetry = "request_telemetry"
	kindResult           = "result"

	kindEstablished = "established"
	kindPacket      = "packet"
	kindLost        = "lost"
)

// envelope is the single frame payload type in both directions. Requests
// carry an ID; responses echo it in ReplyTo.
type envelope struct {
	Kind     string         `cbor:"kind"`
	ID       uint32         `cbor:"id,omitempty"`
	ReplyTo  uint32         `cbor:"reply_to,omitempty"`
	Error    string         `cbor:"error,omitempty"`
	Packet   *wirePacket    `cbor:"packet,omitempty"`
	Identity *wireIdentity  `cbor:"identity,omitempty"`
	Nodes    []wireNode     `cbor:"nodes,omitempty"`
	Text     string         `cbor:"text,omitempty"`
	To       string         `cbor:"to,omitempty"`
	WantAck  bool           `cbor:"want_ack,omitempty"`
	Section  string         `cbor:"section,omitempty"`
	Values   map[string]any `cbor:"values,omitempty"`
}

type wireIdentity struct {
	ID        string `cbor:"id"`
	LongName  string `cbor:"long_name,omitempty"`
	ShortName string `cbor:"short_name,omitempty"`
}

type wireNode struct {
	ID        string   `cbor:"id"`
	LongName  string   `cbor:"long_name,omitempty"`
	ShortName string   `cbor:"short_name,omitempty"`
	SNR       *float64 `cbor:"snr,omitempty"`
	RSSI      *int32   `cbor:"rssi,omitempty"`
	HopsAway  *uint32  `cbor:"hops_away,omitempty"`
	LastHeard int64    `cbor:"last_heard,omitempty"`
}

type wireMetrics struct {
	BatteryLevel       *uint32  `cbor:"battery_level,omitempty"`
	Voltage            *float64 `cbor:"voltage,omitempty"`
	ChannelUtilization *float64 `cbor:"channel_utilization,omitempty"`
	AirUtilTx          *float64 `cbor:"air_util_tx,omitempty"`
	UptimeSeconds      *uint32  `cbor:"uptime_seconds,omitempty"`
}

type wireUser struct {
	ID        string `cbor:"id,omitempty"`
	LongName  string `cbor:"long_name,omitempty"`
	ShortName string `cbor:"short_name,omitempty"`
}

// wirePacket mirrors the decoded mesh packet. Times are unix seconds as
// reported by the firmware.
type wirePacket struct {
	ID       uint32       `cbor:"id,omitempty"`
	From     string       `cbor:"from,omitempty"`
	To       string       `cbor:"to,omitempty"`
	Port     string       `cbor:"port,omitempty"`
	Text     string       `cbor:"text,omitempty"`
	Payload  []byte       `cbor:"payload,omitempty"`
	ReplyID  uint32       `cbor:"reply_id,omitempty"`
	HopStart uint32       `cbor:"hop_start,omitempty"`
	HopLimit uint32       `cbor:"hop_limit,omitempty"`
	RxSNR    *float64     `cbor:"rx_snr,omitempty"`
	RxRSSI   *int32       `cbor:"rx_rssi,omitempty"`
	RxTime   int64        `cbor:"rx_time,omitempty"`
	Metrics  *wireMetrics `cbor:"metrics,omitempty"`
	User     *wireUser    `cbor:"user,omitempty"`
}

func (p wirePacket) toRadio() radio.Packet {
	out := radio.Packet{
		ID:       p.ID,
		From:     p.From,
		To:       p.To,
		PortNum:  radio.PortNum(p.Port),
		Text:     p.Text,
		Payload:  p.Payload,
		ReplyID:  p.ReplyID,
		HopStart: p.HopStart,
		HopLimit: p.HopLimit,
		RxSNR:    p.RxSNR,
		RxTime:   unixSeconds(p.RxTime),
	}
	if p.RxRSSI != nil {
		v := int(*p.RxRSSI)
		out.RxRSSI = &v
	}
	if m := p.Metrics; m != nil {
		out.Metrics = &radio.DeviceMetrics{
			BatteryLevel:       m.BatteryLevel,
			Voltage:            m.Voltage,
			ChannelUtilization: m.ChannelUtilization,
			AirUtilTx:          m.AirUtilTx,
			UptimeSeconds:      m.UptimeSeconds,
		}
	}
	if u := p.User; u != nil {
		out.User = &radio.User{ID: u.ID, LongName: u.LongName, ShortName: u.ShortName}
	}

	return out
}

func (n wireNode) toRadio() radio.NodeSnapshot {
	out := radio.NodeSnapshot{
		ID:        n.ID,
		LongName:  n.LongName,
		ShortName: n.ShortName,
		SNR:       n.SNR,
		LastHeard: unixSeconds(n.LastHeard),
	}
	if n.RSSI != nil {
		v := int(*n.RSSI)
		out.RSSI = &v
	}
	if n.HopsAway != nil {
		v := int(*n.HopsAway)
		out.HopsAway = &v
	}

	return out
}

func (i wireIdentity) toRadio() radio.Identity {
	return radio.Identity{
		ID:          i.ID,
		DisplayName: radioDisplayName(i),
		ShortName:   i.ShortName,
	}
}

func radioDisplayName(i wireIdentity) string {
	if i.LongName != "" {
		return i.LongName
	}
	if i.ShortName != "" {
		return i.ShortName
	}

	return i.ID
}

func unixSeconds(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}

	return time.Unix(v, 0)
}
