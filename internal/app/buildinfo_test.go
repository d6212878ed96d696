package app

import (
	"runtime/debug"
	"testing"
)

func stubBuildInfo(t *testing.T, mainVersion string) {
	t.Helper()
	original := readBuildInfo
	t.Cleanup(func() { readBuildInfo = original })
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Main: debug.Module{Path: "github.com/skobkin/meshmon", Version: mainVersion}}, true
	}
}

func TestBuildVersion(t *testing.T) {
	original := Version
	t.Cleanup(func() {
		Version = original
	})

	tests := []struct {
		name   string
		in     string
		module string
		want   string
	}{
		{name: "defaults to dev", in: "", module: "(devel)", want: "dev"},
		{name: "trims value", in: " 1.2.3 ", module: "(devel)", want: "1.2.3"},
		{name: "ldflags win over module", in: "1.2.3", module: "v0.9.0", want: "1.2.3"},
		{name: "module version fallback", in: "dev", module: "v0.9.0", want: "v0.9.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubBuildInfo(t, tt.module)
			Version = tt.in
			if got := BuildVersion(); got != tt.want {
				t.Fatalf("BuildVersion() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildDateYMD(t *testing.T) {
	original := BuildDate
	t.Cleanup(func() {
		BuildDate = original
	})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty stays empty", in: "", want: ""},
		{name: "rfc3339 formatted", in: "2026-01-30T14:55:03Z", want: "2026-01-30"},
		{name: "date prefix", in: "2026-01-30 build 7", want: "2026-01-30"},
		{name: "unknown format returns as is", in: "not-a-date", want: "not-a-date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			BuildDate = tt.in
			if got := BuildDateYMD(); got != tt.want {
				t.Fatalf("BuildDateYMD() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVersionLine(t *testing.T) {
	originalVersion := Version
	originalBuildDate := BuildDate
	t.Cleanup(func() {
		Version = originalVersion
		BuildDate = originalBuildDate
	})

	Version = "0.1.2"
	BuildDate = "2026-01-30T14:55:03Z"
	if got := VersionLine(); got != "meshmon 0.1.2 (2026-01-30)" {
		t.Fatalf("VersionLine() = %q", got)
	}
	BuildDate = ""
	if got := VersionLine(); got != "meshmon 0.1.2" {
		t.Fatalf("VersionLine() = %q", got)
	}
}
