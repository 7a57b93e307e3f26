// Package update checks the project's GitHub releases for a version newer
// than the running binary. Results are cached on disk for a day so repeated
// CLI invocations do not hit the network.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	releasesURL  = "https://api.github.com/repos/pgtenant/pgtenant/releases/latest"
	cacheMaxAge  = 24 * time.Hour
	cacheName    = "update-check.json"
	fetchTimeout = 5 * time.Second
)

// Info is the outcome of an update check. LatestVersion and ReleaseURL come
// from the release feed; Newer compares it against the version the caller
// passed in.
type Info struct {
	LatestVersion string    `json:"latest_version"`
	ReleaseURL    string    `json:"release_url"`
	CheckedAt     time.Time `json:"checked_at"`
	Newer         bool      `json:"-"`
}

// CheckWithCache reports whether a release newer than current exists,
// consulting the on-disk cache before the network. Development builds
// (version "dev") never check: there is no release to compare against.
func CheckWithCache(ctx context.Context, current string) (*Info, error) {
	if strings.TrimPrefix(current, "v") == "dev" {
		return &Info{LatestVersion: current}, nil
	}

	if info, err := readCache(); err == nil && time.Since(info.CheckedAt) < cacheMaxAge {
		info.Newer = isNewer(info.LatestVersion, current)
		return info, nil
	}

	info, err := fetchLatest(ctx)
	if err != nil {
		return nil, err
	}
	writeCache(info)

	info.Newer = isNewer(info.LatestVersion, current)
	return info, nil
}

func fetchLatest(ctx context.Context) (*Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, releasesURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "pgtenant-update-check")

	client := &http.Client{Timeout: fetchTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("release feed returned status %d", resp.StatusCode)
	}

	var release struct {
		TagName string `json:"tag_name"`
		HTMLURL string `json:"html_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("decoding release feed: %w", err)
	}

	return &Info{
		LatestVersion: strings.TrimPrefix(release.TagName, "v"),
		ReleaseURL:    release.HTMLURL,
		CheckedAt:     time.Now(),
	}, nil
}

// cachePath places the cache under XDG_CACHE_HOME (or ~/.cache) in a
// pgtenant subdirectory.
func cachePath() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "pgtenant", cacheName), nil
}

func readCache() (*Info, error) {
	path, err := cachePath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// writeCache is best effort. A read-only cache directory should not fail
// the check itself.
func writeCache(info *Info) {
	path, err := cachePath()
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	data, err := json.Marshal(info)
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0o644)
}

// isNewer reports whether candidate is a strictly newer release than
// current. Versions compare numerically field by field; a pre-release
// suffix is ignored, and a missing field counts as zero.
func isNewer(candidate, current string) bool {
	cand := parseVersion(candidate)
	cur := parseVersion(current)
	for i := range cand {
		if cand[i] != cur[i] {
			return cand[i] > cur[i]
		}
	}
	return false
}

// parseVersion splits "v1.2.3-beta" into [1 2 3]. Fields that do not
// parse are zero.
func parseVersion(v string) [3]int {
	v = strings.TrimPrefix(v, "v")
	if i := strings.IndexByte(v, '-'); i >= 0 {
		v = v[:i]
	}
	var out [3]int
	for i, part := range strings.SplitN(v, ".", 3) {
		out[i], _ = strconv.Atoi(part)
	}
	return out
}
