package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skorotkiewicz/checkup/cache"
	"github.com/skorotkiewicz/checkup/fetch"
	"github.com/skorotkiewicz/checkup/internal/core"
)

// stub stands in for the github provider; tests set its behavior per case.
var stub = &stubProvider{}

func init() {
	core.Register(core.GitHub, "github.com", func(host string, c *core.Client) core.Provider {
		return stub
	})
}

type stubProvider struct {
	mu       sync.Mutex
	releases []core.Release
	err      error
	delay    time.Duration
}

func (p *stubProvider) Platform() core.Platform { return core.GitHub }

func (p *stubProvider) FetchReleases(ctx context.Context, key core.RepoKey) ([]core.Release, error) {
	p.mu.Lock()
	releases, err, delay := p.releases, p.err, p.delay
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return releases, err
}

func (p *stubProvider) set(releases []core.Release, err error, delay time.Duration) {
	p.mu.Lock()
	p.releases, p.err, p.delay = releases, err, delay
	p.mu.Unlock()
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch, err := fetch.New(cache.NewStore(t.TempDir()), nil, time.Hour, 5*time.Second, logger)
	if err != nil {
		t.Fatalf("building orchestrator: %v", err)
	}
	return New(orch, logger).Router()
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

// waitForStatus polls path until it answers with want or the deadline passes.
func waitForStatus(t *testing.T, router http.Handler, path string, want int) *httptest.ResponseRecorder {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rec := get(router, path)
		if rec.Code == want {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("%s never answered %d", path, want)
	return nil
}

func sampleReleases() []core.Release {
	name := "CLI 2.0"
	return []core.Release{
		{
			TagName: "v2.0.0",
			Name:    &name,
			HTMLURL: "https://github.com/cli/cli/releases/tag/v2.0.0",
			Assets: []core.Asset{
				{Name: "cli-linux-amd64.tar.gz", URL: "https://example.com/cli-linux-amd64.tar.gz", Size: 123},
				{Name: "cli-windows.zip", URL: "https://example.com/cli-windows.zip", Size: 456},
			},
		},
	}
}

func TestIndex(t *testing.T) {
	router := newTestRouter(t)

	rec := get(router, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "checkup") {
		t.Error("index page missing title")
	}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)

	rec := get(router, "/health")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("expected 200 OK, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestRepoMalformedPath(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{
		"/github/onlyowner",
		"/github/a/b/c",
		"/forgejo/codeberg.org/onlyowner",
		"/cgit/onlyhost",
	} {
		if rec := get(router, path); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, rec.Code)
		}
	}
}

func TestRepoProcessingThenServed(t *testing.T) {
	stub.set(sampleReleases(), nil, 200*time.Millisecond)
	router := newTestRouter(t)

	rec := get(router, "/github/cli/cli")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 while fetching, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "2" {
		t.Errorf("expected Retry-After header, got %q", rec.Header().Get("Retry-After"))
	}

	rec = waitForStatus(t, router, "/github/cli/cli", http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "v2.0.0") {
		t.Error("page missing release tag")
	}
}

func TestRepoCacheJSON(t *testing.T) {
	stub.set(sampleReleases(), nil, 0)
	router := newTestRouter(t)

	if rec := get(router, "/github/cli/cli/cache"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before first fetch completes, got %d", rec.Code)
	}

	rec := waitForStatus(t, router, "/github/cli/cli/cache", http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}

	var entry core.CachedReleases
	if err := json.NewDecoder(rec.Body).Decode(&entry); err != nil {
		t.Fatalf("decoding cache response: %v", err)
	}
	if entry.RepoPath != "github.com/cli/cli" {
		t.Errorf("unexpected repo path %q", entry.RepoPath)
	}
	if len(entry.Releases) != 1 || entry.Releases[0].TagName != "v2.0.0" {
		t.Errorf("unexpected releases: %+v", entry.Releases)
	}
}

func TestRepoLatestRedirect(t *testing.T) {
	stub.set(sampleReleases(), nil, 0)
	router := newTestRouter(t)

	rec := waitForStatus(t, router, "/github/cli/cli/latest.tar.gz", http.StatusTemporaryRedirect)
	if loc := rec.Header().Get("Location"); loc != "https://example.com/cli-linux-amd64.tar.gz" {
		t.Errorf("unexpected redirect location %q", loc)
	}

	rec = get(router, "/github/cli/cli/latest.deb")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unmatched extension, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No asset with extension 'deb' found") {
		t.Errorf("unexpected body: %q", rec.Body.String())
	}

	if rec := get(router, "/github/cli/cli/latest."); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty extension, got %d", rec.Code)
	}
}

func TestRepoFailedFetch(t *testing.T) {
	stub.set(nil, errors.New("upstream exploded"), 0)
	router := newTestRouter(t)

	rec := waitForStatus(t, router, "/github/cli/cli", http.StatusBadGateway)
	if !strings.Contains(rec.Body.String(), "upstream exploded") {
		t.Errorf("expected failure message in body, got %q", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "retrying in background") {
		t.Errorf("expected retry note in body, got %q", rec.Body.String())
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		platform core.Platform
		path     string
		want     core.RepoKey
		wantErr  bool
	}{
		{core.GitHub, "cli/cli", core.RepoKey{Platform: core.GitHub, Host: "github.com", Owner: "cli", Repo: "cli"}, false},
		{core.GitHub, "cli", core.RepoKey{}, true},
		{core.GitHub, "cli/cli/extra", core.RepoKey{}, true},
		{core.GitHub, "cli//cli", core.RepoKey{}, true},
		{core.GitHub, "../etc/passwd", core.RepoKey{}, true},
		{core.GitHub, "a\\b/c", core.RepoKey{}, true},
		{core.Forgejo, "codeberg.org/forgejo/forgejo", core.RepoKey{Platform: core.Forgejo, Host: "codeberg.org", Owner: "forgejo", Repo: "forgejo"}, false},
		{core.Forgejo, "codeberg.org/forgejo", core.RepoKey{}, true},
		{core.Cgit, "git.kernel.org/pub/scm/git/git.git", core.RepoKey{Platform: core.Cgit, Host: "git.kernel.org", Repo: "pub/scm/git/git.git"}, false},
		{core.Cgit, "git.kernel.org", core.RepoKey{}, true},
	}

	for _, tt := range tests {
		got, err := parseKey(tt.platform, tt.path)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseKey(%s, %q): expected error", tt.platform, tt.path)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseKey(%s, %q): %v", tt.platform, tt.path, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseKey(%s, %q) = %+v, want %+v", tt.platform, tt.path, got, tt.want)
		}
	}
}
