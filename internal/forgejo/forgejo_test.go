package forgejo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/skorotkiewicz/checkup/internal/core"
)

func testClient() *core.Client {
	return core.NewClient(core.WithMaxRetries(0))
}

func TestFetchReleases(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/repos/forgejo/forgejo/releases" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		fmt.Fprint(w, `[
			{
				"tag_name": "v7.0.0",
				"name": "Forgejo 7.0.0",
				"published_at": "2024-04-23T10:00:00Z",
				"html_url": "https://codeberg.org/forgejo/forgejo/releases/tag/v7.0.0",
				"body": "Notes",
				"prerelease": false,
				"draft": false,
				"assets": [
					{"name": "forgejo-7.0.0-linux-amd64", "browser_download_url": "https://codeberg.org/dl/forgejo-7.0.0-linux-amd64", "size": 90000000, "download_count": 7},
					{"name": "forgejo-7.0.0-linux-amd64.xz", "browser_download_url": "https://codeberg.org/dl/forgejo-7.0.0-linux-amd64.xz"}
				],
				"tarball_url": "https://codeberg.org/forgejo/forgejo/archive/v7.0.0.tar.gz",
				"zipball_url": null
			}
		]`)
	}))
	defer server.Close()

	// host carries the scheme so the test server can be addressed directly
	p := New(server.URL, testClient())
	key := core.RepoKey{Platform: core.Forgejo, Owner: "forgejo", Repo: "forgejo"}

	releases, err := p.FetchReleases(context.Background(), key)
	if err != nil {
		t.Fatalf("FetchReleases failed: %v", err)
	}
	if len(releases) != 1 {
		t.Fatalf("expected 1 release, got %d", len(releases))
	}

	r := releases[0]
	if r.TagName != "v7.0.0" {
		t.Errorf("unexpected tag: %q", r.TagName)
	}

	// two upstream assets plus the synthetic tarball; zipball is null
	if len(r.Assets) != 3 {
		t.Fatalf("expected 3 assets, got %d", len(r.Assets))
	}
	if r.Assets[0].Size != 90000000 || r.Assets[0].DownloadCount != 7 {
		t.Errorf("unexpected size/count: %d/%d", r.Assets[0].Size, r.Assets[0].DownloadCount)
	}
	if r.Assets[1].Size != 0 || r.Assets[1].DownloadCount != 0 {
		t.Error("missing size/count should map to zero")
	}
	if r.Assets[2].Name != "v7.0.0.tar.gz" {
		t.Errorf("unexpected synthetic asset: %q", r.Assets[2].Name)
	}
	if r.SourceZipball != nil {
		t.Error("null zipball_url should stay absent")
	}
}

func TestFetchReleasesHostFromKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	p := New("", testClient())
	key := core.RepoKey{Platform: core.Forgejo, Host: server.URL, Owner: "a", Repo: "b"}

	releases, err := p.FetchReleases(context.Background(), key)
	if err != nil {
		t.Fatalf("FetchReleases failed: %v", err)
	}
	if len(releases) != 0 {
		t.Errorf("expected no releases, got %d", len(releases))
	}
}

func TestFetchReleasesNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	p := New(server.URL, testClient())
	key := core.RepoKey{Platform: core.Forgejo, Owner: "no", Repo: "such"}

	_, err := p.FetchReleases(context.Background(), key)
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
