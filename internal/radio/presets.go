package radio

import (
	"fmt"
	"sort"
	"strings"
)

// ModemPreset is a LoRa modulation preset.
type ModemPreset int

const (
	PresetLongFast ModemPreset = iota
	PresetLongSlow
	PresetVeryLongSlow
	PresetMediumSlow
	PresetMediumFast
	PresetShortSlow
	PresetShortFast
	PresetLongModerate
)

const (
	MinFrequencySlot = 0
	MaxFrequencySlot = 83

	maxLongNameBytes  = 39
	maxShortNameBytes = 4
)

var presetNames = map[ModemPreset]string{
	PresetLongFast:     "LONG_FAST",
	PresetLongSlow:     "LONG_SLOW",
	PresetVeryLongSlow: "VERY_LONG_SLOW",
	PresetMediumSlow:   "MEDIUM_SLOW",
	PresetMediumFast:   "MEDIUM_FAST",
	PresetShortSlow:    "SHORT_SLOW",
	PresetShortFast:    "SHORT_FAST",
	PresetLongModerate: "LONG_MODERATE",
}

func (p ModemPreset) String() string {
	if name, ok := presetNames[p]; ok {
		return name
	}

	return fmt.Sprintf("PRESET_%d", int(p))
}

// PresetNames lists accepted preset names in numeric order.
func PresetNames() []string {
	presets := make([]ModemPreset, 0, len(presetNames))
	for p := range presetNames {
		presets = append(presets, p)
	}
	sort.Slice(presets, func(i, j int) bool { return presets[i] < presets[j] })

	out := make([]string, 0, len(presets))
	for _, p := range presets {
		out = append(out, p.String())
	}

	return out
}

// ParseModemPreset accepts names like "LONG_FAST", "long-fast" or "LongFast".
func ParseModemPreset(raw string) (ModemPreset, error) {
	want := canonicalPresetName(raw)
	if want == "" {
		return 0, &ValidationError{Field: "preset", Reason: "name is empty"}
	}
	for p, name := range presetNames {
		if canonicalPresetName(name) == want {
			return p, nil
		}
	}

	return 0, &ValidationError{
		Field:  "preset",
		Reason: fmt.Sprintf("unknown preset %q (expected one of %s)", strings.TrimSpace(raw), strings.Join(PresetNames(), ", ")),
	}
}

func canonicalPresetName(raw string) string {
	replacer := strings.NewReplacer("_", "", "-", "", " ", "")

	return strings.ToUpper(replacer.Replace(strings.TrimSpace(raw)))
}

// ValidateFrequencySlot accepts 0 (auto) through 83.
func ValidateFrequencySlot(slot int) error {
	if slot < MinFrequencySlot || slot > MaxFrequencySlot {
		return &ValidationError{
			Field:  "frequency slot",
			Reason: fmt.Sprintf("%d is outside %d..%d", slot, MinFrequencySlot, MaxFrequencySlot),
		}
	}

	return nil
}

// ValidateUserNames requires at least one name and enforces firmware limits.
func ValidateUserNames(longName, shortName string) error {
	longName = strings.TrimSpace(longName)
	shortName = strings.TrimSpace(shortName)
	if longName == "" && shortName == "" {
		return &ValidationError{Field: "user names", Reason: "long or short name is required"}
	}
	if len(longName) > maxLongNameBytes {
		return &ValidationError{Field: "long name", Reason: fmt.Sprintf("exceeds %d bytes", maxLongNameBytes)}
	}
	if len(shortName) > maxShortNameBytes {
		return &ValidationError{Field: "short name", Reason: fmt.Sprintf("exceeds %d bytes", maxShortNameBytes)}
	}

	return nil
}
