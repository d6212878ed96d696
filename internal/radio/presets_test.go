package radio

import (
	"errors"
	"strings"
	"testing"
)

func TestParseModemPreset_AcceptsSpellings(t *testing.T) {
	tests := map[string]ModemPreset{
		"LONG_FAST":      PresetLongFast,
		"long-fast":      PresetLongFast,
		"LongFast":       PresetLongFast,
		" medium slow ":  PresetMediumSlow,
		"VERY_LONG_SLOW": PresetVeryLongSlow,
		"long_moderate":  PresetLongModerate,
	}

	for raw, want := range tests {
		got, err := ParseModemPreset(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %s, got %s", raw, want, got)
		}
	}
}

func TestParseModemPreset_RejectsUnknown(t *testing.T) {
	_, err := ParseModemPreset("TURBO")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "LONG_FAST") {
		t.Fatalf("expected accepted names in error, got %q", err.Error())
	}

	if _, err := ParseModemPreset(""); err == nil {
		t.Fatalf("expected error for empty name")
	}
}

func TestPresetNames_Ordered(t *testing.T) {
	names := PresetNames()
	if len(names) != 8 {
		t.Fatalf("expected 8 presets, got %d", len(names))
	}
	if names[0] != "LONG_FAST" || names[7] != "LONG_MODERATE" {
		t.Fatalf("unexpected order: %v", names)
	}
}

func TestValidateFrequencySlot(t *testing.T) {
	for _, slot := range []int{0, 1, 83} {
		if err := ValidateFrequencySlot(slot); err != nil {
			t.Fatalf("slot %d: unexpected error %v", slot, err)
		}
	}
	for _, slot := range []int{-1, 84} {
		if err := ValidateFrequencySlot(slot); err == nil {
			t.Fatalf("slot %d: expected error", slot)
		}
	}
}

func TestValidateUserNames(t *testing.T) {
	tests := []struct {
		name      string
		long      string
		short     string
		wantError bool
	}{
		{name: "both", long: "Base Station", short: "BASE"},
		{name: "long only", long: "Base Station"},
		{name: "short only", short: "BS"},
		{name: "none", wantError: true},
		{name: "short too long", short: "BASES", wantError: true},
		{name: "long too long", long: strings.Repeat("x", 40), wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUserNames(tt.long, tt.short)
			if tt.wantError && err == nil {
				t.Fatalf("expected error")
			}
			if !tt.wantError && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
