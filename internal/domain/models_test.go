package domain

import "testing"

func TestDeviceStatsApplyKeepsAbsentFields(t *testing.T) {
	battery := 80
	voltage := 3.9
	util := 12.5

	stats := DeviceStats{NodeCount: 4}.Apply(StatsUpdate{BatteryLevel: &battery, Voltage: &voltage})
	stats = stats.Apply(StatsUpdate{ChannelUtilization: &util})

	if stats.BatteryLevel != 80 || stats.Voltage != 3.9 || stats.ChannelUtilization != 12.5 {
		t.Fatalf("unexpected merged stats: %+v", stats)
	}
	if stats.NodeCount != 4 {
		t.Fatalf("expected node count untouched, got %d", stats.NodeCount)
	}
}

func TestDeviceStatsExternallyPowered(t *testing.T) {
	if (DeviceStats{BatteryLevel: 100}).ExternallyPowered() {
		t.Fatalf("expected 100%% to be battery powered")
	}
	if !(DeviceStats{BatteryLevel: 101}).ExternallyPowered() {
		t.Fatalf("expected >100 to mean external power")
	}
}

func TestNodeRecordSignalQuality(t *testing.T) {
	snr := 2.0
	rssi := -100
	if got := (NodeRecord{LastSNR: &snr, LastRSSI: &rssi}).SignalQuality(); got != SignalGood {
		t.Fatalf("expected good signal, got %v", got)
	}
	if got := (NodeRecord{LastSNR: &snr}).SignalQuality(); got != SignalUnknown {
		t.Fatalf("expected unknown without rssi, got %v", got)
	}
}
