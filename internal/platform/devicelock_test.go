package platform

import "testing"

func TestNormalizeLockComponent(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		fallback string
		want     string
	}{
		{name: "preserves alnum and separators", raw: "meshmon-v1.2_3", fallback: "app", want: "meshmon-v1.2_3"},
		{name: "serial device path", raw: "/dev/ttyACM0", fallback: "device", want: "dev_ttyACM0"},
		{name: "ip target", raw: "ip-192.168.1.5:4403", fallback: "device", want: "ip-192.168.1.5_4403"},
		{name: "empty uses fallback", raw: "   ", fallback: "fallback", want: "fallback"},
		{name: "all unsupported uses fallback", raw: "[]{}", fallback: "fallback", want: "fallback"},
	}

	for _, tc := range tests {
		got := normalizeLockComponent(tc.raw, tc.fallback)
		if got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}
