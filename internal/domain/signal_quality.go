package domain

// SignalQuality buckets the last observed SNR/RSSI pair of a node.
type SignalQuality int

const (
	SignalUnknown SignalQuality = iota
	SignalBad
	SignalFair
	SignalGood
)

// Bucket boundaries follow the Meshtastic Android signal indicator.
var signalThresholds = []struct {
	quality SignalQuality
	minSNR  float64
	minRSSI int
}{
	{quality: SignalGood, minSNR: -7, minRSSI: -115},
	{quality: SignalFair, minSNR: -15, minRSSI: -126},
}

func (q SignalQuality) String() string {
	switch q {
	case SignalGood:
		return "good"
	case SignalFair:
		return "fair"
	case SignalBad:
		return "bad"
	default:
		return "unknown"
	}
}

// ClassifySignal returns the best bucket whose SNR and RSSI minimums are both
// met. An RSSI of 0 means the radio did not report one.
func ClassifySignal(snr float64, rssi int) SignalQuality {
	if rssi == 0 {
		return SignalUnknown
	}
	for _, th := range signalThresholds {
		if snr >= th.minSNR && rssi >= th.minRSSI {
			return th.quality
		}
	}

	return SignalBad
}
