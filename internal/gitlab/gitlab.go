// Package gitlab provides a release provider for gitlab.com and self-hosted
// GitLab instances.
package gitlab

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/skorotkiewicz/checkup/internal/core"
)

const (
	DefaultHost = "gitlab.com"

	perPage  = 100
	maxPages = 10
)

func init() {
	core.Register(core.GitLab, DefaultHost, func(host string, client *core.Client) core.Provider {
		if host == "" {
			host = DefaultHost
		}
		return New("https://"+host+"/api/v4", client)
	})
}

type Provider struct {
	baseURL string
	client  *core.Client
}

func New(baseURL string, client *core.Client) *Provider {
	if baseURL == "" {
		baseURL = "https://" + DefaultHost + "/api/v4"
	}
	if client == nil {
		client = core.DefaultClient()
	}
	return &Provider{baseURL: strings.TrimSuffix(baseURL, "/"), client: client}
}

func (p *Provider) Platform() core.Platform {
	return core.GitLab
}

type releaseResponse struct {
	TagName     string         `json:"tag_name"`
	Name        *string        `json:"name"`
	ReleasedAt  *time.Time     `json:"released_at"`
	Description *string        `json:"description"`
	Links       linksResponse  `json:"_links"`
	Assets      assetsResponse `json:"assets"`
}

type linksResponse struct {
	Self string `json:"self"`
}

type assetsResponse struct {
	Sources []sourceResponse `json:"sources"`
	Links   []linkResponse   `json:"links"`
}

type sourceResponse struct {
	Format string `json:"format"`
	URL    string `json:"url"`
}

type linkResponse struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// FetchReleases lists releases newest first. The project is addressed by its
// URL-encoded "owner/repo" path, the way the GitLab API expects it.
func (p *Provider) FetchReleases(ctx context.Context, key core.RepoKey) ([]core.Release, error) {
	project := url.PathEscape(key.Owner + "/" + key.Repo)

	var releases []core.Release
	for page := 1; page <= maxPages; page++ {
		u := fmt.Sprintf("%s/projects/%s/releases?per_page=%d&page=%d", p.baseURL, project, perPage, page)

		var resp []releaseResponse
		if err := p.client.GetJSON(ctx, u, &resp); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return nil, &core.NotFoundError{Platform: core.GitLab, Repo: key.Owner + "/" + key.Repo}
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
	var assets []core.Asset

	// Source archives (tar.gz, zip, ...) named after the tag.
	for _, s := range r.Assets.Sources {
		format := strings.ToLower(s.Format)
		ct := "application/" + format
		assets = append(assets, core.Asset{
			Name:        fmt.Sprintf("%s.%s", r.TagName, format),
			URL:         s.URL,
			ContentType: &ct,
		})
	}

	// Release links (external binaries, packages, ...).
	for _, l := range r.Assets.Links {
		assets = append(assets, core.Asset{
			Name: l.Name,
			URL:  l.URL,
		})
	}

	// GitLab has no draft or prerelease concept on releases.
	return core.Release{
		TagName:     r.TagName,
		Name:        r.Name,
		PublishedAt: r.ReleasedAt,
		HTMLURL:     r.Links.Self,
		Body:        r.Description,
		Assets:      assets,
	}
}
