// Package checkup provides clients for fetching normalized release metadata
// from code-hosting platforms.
//
// The package supports GitHub, GitLab, Forgejo/Gitea, and cgit hosts with a
// unified interface for listing releases and their downloadable assets.
//
// Basic usage:
//
//	import (
//		"context"
//		"github.com/skorotkiewicz/checkup"
//		_ "github.com/skorotkiewicz/checkup/internal/github"
//	)
//
//	provider, err := checkup.New(checkup.GitHub, "", checkup.DefaultClient())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	releases, err := provider.FetchReleases(context.Background(), checkup.RepoKey{
//		Platform: checkup.GitHub, Host: "github.com", Owner: "cli", Repo: "cli",
//	})
//
// To automatically register all supported platforms, use the all subpackage:
//
//	import (
//		"github.com/skorotkiewicz/checkup"
//		_ "github.com/skorotkiewicz/checkup/all"
//	)
package checkup

import (
	"fmt"

	"github.com/git-pkgs/purl"

	"github.com/skorotkiewicz/checkup/client"
	"github.com/skorotkiewicz/checkup/internal/core"
)

// Re-export types from internal/core
type (
	// Provider is the interface implemented by all platform clients.
	Provider = core.Provider

	// Platform identifies a code-hosting platform kind.
	Platform = core.Platform

	// RepoKey identifies one repository on one platform.
	RepoKey = core.RepoKey

	// Release is the normalized release shape shared by all providers.
	Release = core.Release

	// Asset is a downloadable artifact attached to a release.
	Asset = core.Asset

	// CachedReleases is one committed cache entry for a repository.
	CachedReleases = core.CachedReleases
)

// Re-export types from client
type (
	// Client is an HTTP client with retry logic for upstream APIs.
	Client = client.Client

	// Option configures a Client.
	Option = client.Option
)

// Re-export constants
const (
	GitHub  = core.GitHub
	GitLab  = core.GitLab
	Forgejo = core.Forgejo
	Cgit    = core.Cgit
)

// Re-export errors
var (
	ErrNotFound     = client.ErrNotFound
	ErrUpstreamDown = client.ErrUpstreamDown
)

// Error types
type (
	HTTPError      = client.HTTPError
	NotFoundError  = core.NotFoundError
	RateLimitError = client.RateLimitError
	ParseError     = core.ParseError
)

// New creates a new provider for the given platform.
// If host is empty, the platform's default host is used.
// If c is nil, DefaultClient() is used.
//
// Supported platforms: "github", "gitlab", "forgejo", "cgit"
func New(platform Platform, host string, c *Client) (Provider, error) {
	return core.New(platform, host, c)
}

// DefaultClient returns a client with sensible defaults:
// - 30s per-request timeout
// - 3 retries with exponential backoff
// - retry on 429 and 5xx responses
func DefaultClient() *Client {
	return client.DefaultClient()
}

// NewClient creates a new client with the given options.
func NewClient(opts ...Option) *Client {
	return client.NewClient(opts...)
}

// WithTimeout sets the per-request timeout.
var WithTimeout = client.WithTimeout

// WithMaxRetries sets the maximum number of retries.
var WithMaxRetries = client.WithMaxRetries

// WithAuthFunc sets a function that returns an auth header for a given URL.
var WithAuthFunc = client.WithAuthFunc

// SupportedPlatforms returns all registered platform kinds.
// Note: platforms must be imported to be registered.
func SupportedPlatforms() []Platform {
	return core.SupportedPlatforms()
}

// LatestAsset picks the asset a latest.{ext} request redirects to.
func LatestAsset(releases []Release, ext string) (*Asset, bool) {
	return core.LatestAsset(releases, ext)
}

// ExtractExtension returns the extension of an asset name, keeping compound
// archive suffixes like "tar.gz" whole.
func ExtractExtension(name string) string {
	return core.ExtractExtension(name)
}

// PURL represents a parsed Package URL.
type PURL = purl.PURL

// ParsePURL parses a Package URL string into its components.
func ParsePURL(purlStr string) (*PURL, error) {
	return purl.Parse(purlStr)
}

// KeyFromPURL converts a repository PURL into a RepoKey.
// Supported forms: pkg:github/{owner}/{repo}, pkg:gitlab/{group}/{project}.
func KeyFromPURL(purlStr string) (RepoKey, error) {
	p, err := purl.Parse(purlStr)
	if err != nil {
		return RepoKey{}, err
	}

	switch p.Type {
	case "github":
		return RepoKey{Platform: GitHub, Host: "github.com", Owner: p.Namespace, Repo: p.Name}, nil
	case "gitlab":
		return RepoKey{Platform: GitLab, Host: "gitlab.com", Owner: p.Namespace, Repo: p.Name}, nil
	default:
		return RepoKey{}, fmt.Errorf("unsupported purl type: %s", p.Type)
	}
}
