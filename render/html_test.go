package render

import (
	"strings"
	"testing"
	"time"

	"github.com/skorotkiewicz/checkup/internal/core"
)

func entryWith(releases ...core.Release) *core.CachedReleases {
	return &core.CachedReleases{
		Releases: releases,
		CachedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		RepoPath: "github.com/cli/cli",
	}
}

func TestReleasesPage(t *testing.T) {
	name := "CLI 2.0"
	body := "highlights\nmore\neven more\ntruncated away"
	published := time.Date(2024, 2, 28, 9, 30, 0, 0, time.UTC)

	entry := entryWith(
		core.Release{
			TagName:     "v2.0.0",
			Name:        &name,
			PublishedAt: &published,
			HTMLURL:     "https://github.com/cli/cli/releases/tag/v2.0.0",
			Body:        &body,
			Assets: []core.Asset{
				{Name: "cli-linux.tar.gz", URL: "https://example.com/cli-linux.tar.gz", Size: 5 << 20, DownloadCount: 12},
			},
		},
		core.Release{
			TagName:    "v2.0.0-rc1",
			HTMLURL:    "https://github.com/cli/cli/releases/tag/v2.0.0-rc1",
			Prerelease: true,
		},
	)

	out, err := Releases(entry, core.GitHub)
	if err != nil {
		t.Fatalf("Releases failed: %v", err)
	}
	page := string(out)

	for _, want := range []string{
		"Releases for github.com/cli/cli",
		"Cached at: 2024-03-01 12:00:00 UTC",
		"Latest Release: CLI 2.0",
		"Published: 2024-02-28 09:30:00 UTC",
		`<a href="https://example.com/cli-linux.tar.gz">cli-linux.tar.gz</a>`,
		"(5.00 MB)",
		`href="/github/cli/cli/latest.tar.gz"`,
		`<span class="badge latest-badge">Latest</span>`,
		`<span class="badge prerelease-badge">Pre-release</span>`,
		"v2.0.0-rc1",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}

	// release notes preview keeps three lines
	if !strings.Contains(page, "highlights\nmore\neven more") {
		t.Error("page missing release notes preview")
	}
	if strings.Contains(page, "truncated away") {
		t.Error("notes preview not truncated")
	}
}

func TestReleasesPageNoAssets(t *testing.T) {
	entry := entryWith(core.Release{
		TagName: "v1.0.0",
		HTMLURL: "https://github.com/cli/cli/releases/tag/v1.0.0",
	})

	out, err := Releases(entry, core.GitHub)
	if err != nil {
		t.Fatalf("Releases failed: %v", err)
	}
	if strings.Contains(string(out), "latest-box") {
		t.Error("latest box should be omitted when the newest release has no assets")
	}
}

func TestReleasesPageEmpty(t *testing.T) {
	out, err := Releases(entryWith(), core.GitHub)
	if err != nil {
		t.Fatalf("Releases failed: %v", err)
	}
	if !strings.Contains(string(out), "All Releases") {
		t.Error("empty entry should still render the page shell")
	}
}

func TestReleasesPageEscapesMarkup(t *testing.T) {
	evil := "<script>alert(1)</script>"
	entry := entryWith(core.Release{
		TagName: "v1.0.0",
		Name:    &evil,
		HTMLURL: "https://example.com",
		Body:    &evil,
	})

	out, err := Releases(entry, core.GitHub)
	if err != nil {
		t.Fatalf("Releases failed: %v", err)
	}
	if strings.Contains(string(out), "<script>") {
		t.Error("release fields must be HTML-escaped")
	}
}

func TestLatestURL(t *testing.T) {
	tests := []struct {
		platform core.Platform
		repoPath string
		asset    string
		want     string
	}{
		{core.GitHub, "github.com/cli/cli", "cli.tar.gz", "/github/cli/cli/latest.tar.gz"},
		{core.GitLab, "gitlab.com/inkscape/inkscape", "inkscape.zip", "/gitlab/inkscape/inkscape/latest.zip"},
		{core.Forgejo, "codeberg.org/forgejo/forgejo", "forgejo.tar.xz", "/forgejo/codeberg.org/forgejo/forgejo/latest.tar.xz"},
		{core.Cgit, "git.kernel.org/pub/scm/git/git.git", "git-2.43.0.tar.gz", "/cgit/git.kernel.org/pub/scm/git/git.git/latest.tar.gz"},
	}
	for _, tt := range tests {
		if got := latestURL(tt.platform, tt.repoPath, tt.asset); got != tt.want {
			t.Errorf("latestURL(%s, %q, %q) = %q, want %q", tt.platform, tt.repoPath, tt.asset, got, tt.want)
		}
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		size uint64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.50 KB"},
		{5 << 20, "5.00 MB"},
		{3 << 30, "3.00 GB"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.size); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.size, got, tt.want)
		}
	}
}
