// Package forgejo provides a release provider for Forgejo and Gitea hosts.
// There is no default host; requests always name the instance.
package forgejo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/skorotkiewicz/checkup/internal/core"
)

const (
	perPage  = 50
	maxPages = 10
)

func init() {
	core.Register(core.Forgejo, "", func(host string, client *core.Client) core.Provider {
		return New(host, client)
	})
}

type Provider struct {
	host   string
	client *core.Client
}

func New(host string, client *core.Client) *Provider {
	if client == nil {
		client = core.DefaultClient()
	}
	return &Provider{host: host, client: client}
}

func (p *Provider) Platform() core.Platform {
	return core.Forgejo
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
	Size          *uint64 `json:"size"`
	DownloadCount *uint64 `json:"download_count"`
}

func (p *Provider) baseURL(key core.RepoKey) string {
	host := p.host
	if key.Host != "" {
		host = key.Host
	}
	if strings.Contains(host, "://") {
		return host + "/api/v1"
	}
	return fmt.Sprintf("https://%s/api/v1", host)
}

// FetchReleases lists releases newest first from the instance named by the
// key (or the provider's configured host), following pagination.
func (p *Provider) FetchReleases(ctx context.Context, key core.RepoKey) ([]core.Release, error) {
	base := p.baseURL(key)

	var releases []core.Release
	for page := 1; page <= maxPages; page++ {
		url := fmt.Sprintf("%s/repos/%s/%s/releases?limit=%d&page=%d",
			base, key.Owner, key.Repo, perPage, page)

		var resp []releaseResponse
		if err := p.client.GetJSON(ctx, url, &resp); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return nil, &core.NotFoundError{Platform: core.Forgejo, Repo: key.Owner + "/" + key.Repo}
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
		asset := core.Asset{
			Name: a.Name,
			URL:  a.DownloadURL,
		}
		if a.Size != nil {
			asset.Size = *a.Size
		}
		if a.DownloadCount != nil {
			asset.DownloadCount = *a.DownloadCount
		}
		assets = append(assets, asset)
	}

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
