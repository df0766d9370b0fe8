// Package github provides a release provider for github.com and GitHub
// Enterprise hosts.
package github

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skorotkiewicz/checkup/internal/core"
)

const (
	DefaultURL  = "https://api.github.com"
	DefaultHost = "github.com"

	perPage  = 100
	maxPages = 10
)

func init() {
	core.Register(core.GitHub, DefaultHost, func(host string, client *core.Client) core.Provider {
		return New(apiURL(host), client)
	})
}

// apiURL maps a request host to its REST API base URL.
func apiURL(host string) string {
	if host == "" || host == DefaultHost {
		return DefaultURL
	}
	return fmt.Sprintf("https://%s/api/v3", host)
}

type Provider struct {
	baseURL string
	client  *core.Client
}

func New(baseURL string, client *core.Client) *Provider {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if client == nil {
		client = core.DefaultClient()
	}
	return &Provider{baseURL: baseURL, client: client}
}

func (p *Provider) Platform() core.Platform {
	return core.GitHub
}

type releaseResponse struct {
	TagName     string          `json:"tag_name"`
	Name        *string         `json:"name"`
	PublishedAt *time.Time      `json:"published_at"`
	HTMLURL     string          `json:"html_url"`
	Body        *string         `json:"body"`
	Prerelease  bool            `json:"prerelease"`
	Draft       bool            `json:"draft"`
	Assets      []assetResponse `json:"assets"`
	TarballURL  *string         `json:"tarball_url"`
	ZipballURL  *string         `json:"zipball_url"`
}

type assetResponse struct {
	Name          string  `json:"name"`
	DownloadURL   string  `json:"browser_download_url"`
	ContentType   *string `json:"content_type"`
	Size          uint64  `json:"size"`
	DownloadCount uint64  `json:"download_count"`
}

// FetchReleases lists releases newest first, following pagination until a
// short page or the page cap.
func (p *Provider) FetchReleases(ctx context.Context, key core.RepoKey) ([]core.Release, error) {
	var releases []core.Release

	for page := 1; page <= maxPages; page++ {
		url := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=%d&page=%d",
			p.baseURL, key.Owner, key.Repo, perPage, page)

		var resp []releaseResponse
		if err := p.client.GetJSON(ctx, url, &resp); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return nil, &core.NotFoundError{Platform: core.GitHub, Repo: key.Owner + "/" + key.Repo}
			}
			return nil, err
		}

		for _, r := range resp {
			releases = append(releases, mapRelease(r))
		}

		if len(resp) < perPage {
			break
		}
	}

	return releases, nil
}

func mapRelease(r releaseResponse) core.Release {
	assets := make([]core.Asset, 0, len(r.Assets)+2)
	for _, a := range r.Assets {
		assets = append(assets, core.Asset{
			Name:          a.Name,
			URL:           a.DownloadURL,
			ContentType:   a.ContentType,
			Size:          a.Size,
			DownloadCount: a.DownloadCount,
		})
	}

	// Source archives surface as downloadable assets too, named after the tag.
	if r.TarballURL != nil && *r.TarballURL != "" {
		ct := "application/gzip"
		assets = append(assets, core.Asset{
			Name:        r.TagName + ".tar.gz",
			URL:         *r.TarballURL,
			ContentType: &ct,
		})
	}
	if r.ZipballURL != nil && *r.ZipballURL != "" {
		ct := "application/zip"
		assets = append(assets, core.Asset{
			Name:        r.TagName + ".zip",
			URL:         *r.ZipballURL,
			ContentType: &ct,
		})
	}

	return core.Release{
		TagName:       r.TagName,
		Name:          r.Name,
		PublishedAt:   r.PublishedAt,
		HTMLURL:       r.HTMLURL,
		Body:          r.Body,
		Prerelease:    r.Prerelease,
		Draft:         r.Draft,
		Assets:        assets,
		SourceTarball: r.TarballURL,
		SourceZipball: r.ZipballURL,
	}
}
