package update

import (
	"context"
	"strings"
	"testing"
)

func TestIsNewer(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		current   string
		want      bool
	}{
		{name: "patch ahead", candidate: "1.0.1", current: "1.0.0", want: true},
		{name: "patch behind", candidate: "1.0.0", current: "1.0.1", want: false},
		{name: "equal", candidate: "1.0.0", current: "1.0.0", want: false},

		{name: "v prefix on candidate", candidate: "v1.0.1", current: "1.0.0", want: true},
		{name: "v prefix on current", candidate: "1.0.1", current: "v1.0.0", want: true},

		{name: "minor ahead", candidate: "1.1.0", current: "1.0.9", want: true},
		{name: "major ahead", candidate: "2.0.0", current: "1.9.9", want: true},
		{name: "major behind beats minor ahead", candidate: "1.9.9", current: "2.0.0", want: false},

		{name: "pre-release suffix ignored", candidate: "1.0.1-beta", current: "1.0.0", want: true},
		{name: "pre-release equals base", candidate: "1.0.0-beta", current: "1.0.0", want: false},

		{name: "multi-digit fields", candidate: "0.10.0", current: "0.9.0", want: true},
		{name: "missing field counts as zero", candidate: "1.1", current: "1.0.5", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNewer(tt.candidate, tt.current); got != tt.want {
				t.Errorf("isNewer(%q, %q) = %v, want %v", tt.candidate, tt.current, got, tt.want)
			}
		})
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want [3]int
	}{
		{"1.2.3", [3]int{1, 2, 3}},
		{"v0.4.0", [3]int{0, 4, 0}},
		{"2.1", [3]int{2, 1, 0}},
		{"1.0.0-rc1", [3]int{1, 0, 0}},
		{"garbage", [3]int{0, 0, 0}},
	}
	for _, tt := range tests {
		if got := parseVersion(tt.in); got != tt.want {
			t.Errorf("parseVersion(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCheckWithCacheSkipsDevBuilds(t *testing.T) {
	// A dev build has no release to compare against; the check must answer
	// without touching the network or the cache.
	info, err := CheckWithCache(context.Background(), "dev")
	if err != nil {
		t.Fatalf("CheckWithCache(dev): %v", err)
	}
	if info.Newer {
		t.Error("dev build should never report an available update")
	}
}

func TestCachePath(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	path, err := cachePath()
	if err != nil {
		t.Fatalf("cachePath() error: %v", err)
	}
	if !strings.Contains(path, "pgtenant") {
		t.Errorf("cachePath() = %q, should contain the pgtenant directory", path)
	}
	if !strings.HasSuffix(path, cacheName) {
		t.Errorf("cachePath() = %q, should end with %q", path, cacheName)
	}
}
