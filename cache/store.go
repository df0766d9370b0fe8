// Package cache persists normalized releases on disk, one partition per
// repository key.
//
// Each successful fetch becomes an immutable snapshot directory holding the
// JSON and pre-rendered HTML forms together. A small "current" marker file,
// replaced via write-temp-then-rename, names the live snapshot; readers
// resolve the marker first, so they always see both forms from the same
// fetch, never a torn pair.
package cache

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skorotkiewicz/checkup/internal/core"
)

const (
	markerFile = "current"
	jsonFile   = "releases.json"
	htmlFile   = "releases.html"
)

// marker names the live snapshot for one repository.
type marker struct {
	Snapshot  string        `json:"snapshot"`
	UpdatedAt time.Time     `json:"updated_at"`
	Platform  core.Platform `json:"platform"`
}

// Store is an on-disk cache rooted at a single directory.
type Store struct {
	root string
}

// NewStore creates a store rooted at dir. The directory is created on first
// Put; a missing root simply reads as empty.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

func (s *Store) dir(key core.RepoKey) string {
	return filepath.Join(s.root, "repo", filepath.FromSlash(key.String()))
}

// Fresh reports whether entry is within ttl of its fetch time.
func Fresh(entry *core.CachedReleases, ttl time.Duration) bool {
	if entry == nil {
		return false
	}
	return time.Since(entry.CachedAt) < ttl
}

// Get returns the committed entry for key, or (nil, nil) when none exists.
// A corrupt or half-removed partition reads as a miss with the underlying
// error attached; callers treat it as absent and re-fetch.
func (s *Store) Get(key core.RepoKey) (*core.CachedReleases, error) {
	m, dir, err := s.readMarker(key)
	if err != nil || m == nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, m.Snapshot, jsonFile))
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var entry core.CachedReleases
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &entry, nil
}

// GetHTML returns the pre-rendered HTML committed with the current entry,
// or (nil, nil) when none exists.
func (s *Store) GetHTML(key core.RepoKey) ([]byte, error) {
	m, dir, err := s.readMarker(key)
	if err != nil || m == nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, m.Snapshot, htmlFile))
	if err != nil {
		return nil, fmt.Errorf("reading snapshot html: %w", err)
	}
	return data, nil
}

func (s *Store) readMarker(key core.RepoKey) (*marker, string, error) {
	dir := s.dir(key)

	data, err := os.ReadFile(filepath.Join(dir, markerFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dir, nil
		}
		return nil, dir, fmt.Errorf("reading marker: %w", err)
	}

	var m marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, dir, fmt.Errorf("decoding marker: %w", err)
	}
	if m.Snapshot == "" || strings.Contains(m.Snapshot, "/") {
		return nil, dir, fmt.Errorf("invalid snapshot name %q", m.Snapshot)
	}
	return &m, dir, nil
}

// Put commits entry and its rendered HTML as one snapshot and flips the
// marker to it. Nothing is visible to readers until the marker rename, and
// any failure before it leaves the previous snapshot in place.
func (s *Store) Put(key core.RepoKey, entry *core.CachedReleases, html []byte) error {
	dir := s.dir(key)
	snap := fmt.Sprintf("snap-%d", time.Now().UnixNano())
	snapDir := filepath.Join(dir, snap)

	if err := os.MkdirAll(snapDir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}
	if err := os.WriteFile(filepath.Join(snapDir, jsonFile), data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(snapDir, htmlFile), html, 0o644); err != nil {
		return fmt.Errorf("writing snapshot html: %w", err)
	}

	m, err := json.Marshal(marker{Snapshot: snap, UpdatedAt: entry.CachedAt, Platform: key.Platform})
	if err != nil {
		return fmt.Errorf("encoding marker: %w", err)
	}

	tmp, err := os.CreateTemp(dir, markerFile+".tmp-")
	if err != nil {
		return fmt.Errorf("creating marker temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(m); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing marker: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing marker: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, markerFile)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("committing marker: %w", err)
	}

	s.prune(dir, snap)
	return nil
}

// prune removes superseded snapshot directories, best-effort.
func (s *Store) prune(dir, keep string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "snap-") && e.Name() != keep {
			os.RemoveAll(filepath.Join(dir, e.Name()))
		}
	}
}

// Delete removes the whole partition for key.
func (s *Store) Delete(key core.RepoKey) error {
	return os.RemoveAll(s.dir(key))
}

// Keys lists every repository with a committed entry, for cache warming.
func (s *Store) Keys() ([]core.RepoKey, error) {
	repoRoot := filepath.Join(s.root, "repo")

	var keys []core.RepoKey
	err := filepath.WalkDir(repoRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || d.Name() != markerFile {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var m marker
		if err := json.Unmarshal(data, &m); err != nil {
			return nil
		}

		rel, err := filepath.Rel(repoRoot, filepath.Dir(path))
		if err != nil {
			return nil
		}
		if key, ok := keyFromPath(filepath.ToSlash(rel), m.Platform); ok {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// keyFromPath reverses RepoKey.String: host/owner/repo, except for cgit
// where everything after the host is the repository path.
func keyFromPath(rel string, platform core.Platform) (core.RepoKey, bool) {
	parts := strings.SplitN(rel, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return core.RepoKey{}, false
	}

	key := core.RepoKey{Platform: platform, Host: parts[0]}
	if platform == core.Cgit {
		key.Repo = parts[1]
		return key, true
	}

	rest := strings.SplitN(parts[1], "/", 2)
	if len(rest) != 2 || rest[0] == "" || rest[1] == "" {
		return core.RepoKey{}, false
	}
	key.Owner = rest[0]
	key.Repo = rest[1]
	return key, true
}
