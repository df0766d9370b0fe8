// Package core provides shared types and the provider system.
package core

import (
	"fmt"
	"time"
)

// Platform identifies a code-hosting platform kind.
type Platform string

const (
	GitHub  Platform = "github"
	GitLab  Platform = "gitlab"
	Forgejo Platform = "forgejo"
	Cgit    Platform = "cgit"
)

// RepoKey identifies one repository on one platform. It is the cache
// partition key and the single-flight key. Owner is empty for cgit, where
// Repo holds the full repository path (may contain slashes).
type RepoKey struct {
	Platform Platform
	Host     string
	Owner    string
	Repo     string
}

// String returns the host/owner/repo form used for cache paths and lock keys.
func (k RepoKey) String() string {
	if k.Owner == "" {
		return fmt.Sprintf("%s/%s", k.Host, k.Repo)
	}
	return fmt.Sprintf("%s/%s/%s", k.Host, k.Owner, k.Repo)
}

// Asset is a downloadable artifact attached to a release.
type Asset struct {
	Name          string  `json:"name"`
	URL           string  `json:"url"`
	ContentType   *string `json:"content_type"`
	Size          uint64  `json:"size"`
	DownloadCount uint64  `json:"download_count"`
}

// Release is the normalized release shape shared by all providers.
// Optional upstream fields stay nil rather than collapsing to zero values,
// so a stored entry reads back exactly as written.
type Release struct {
	TagName       string     `json:"tag_name"`
	Name          *string    `json:"name"`
	PublishedAt   *time.Time `json:"published_at"`
	HTMLURL       string     `json:"html_url"`
	Body          *string    `json:"body"`
	Prerelease    bool       `json:"prerelease"`
	Draft         bool       `json:"draft"`
	Assets        []Asset    `json:"assets"`
	SourceTarball *string    `json:"source_tarball"`
	SourceZipball *string    `json:"source_zipball"`
}

// DisplayName returns the release name, falling back to the tag.
func (r *Release) DisplayName() string {
	if r.Name != nil && *r.Name != "" {
		return *r.Name
	}
	return r.TagName
}

// CachedReleases is one committed cache entry for a repository.
// It is replaced wholesale on every refresh, never mutated in place.
type CachedReleases struct {
	Releases []Release `json:"releases"`
	CachedAt time.Time `json:"cached_at"`
	RepoPath string    `json:"repo_path"`
}
