// Package cgit provides a release provider for cgit instances.
//
// cgit exposes no structured API, so releases are reconstructed from the
// repository's refs/tags page: one Release per tag whose row links a
// snapshot archive. Parsing is best-effort; malformed rows are skipped and
// counted rather than failing the whole fetch.
package cgit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/skorotkiewicz/checkup/internal/core"
)

// cgit renders age cells with the full timestamp in the title attribute.
const ageTitleLayout = "2006-01-02 15:04:05 -0700"

func init() {
	core.Register(core.Cgit, "", func(host string, client *core.Client) core.Provider {
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
	return core.Cgit
}

func (p *Provider) base(key core.RepoKey) string {
	host := p.host
	if key.Host != "" {
		host = key.Host
	}
	if strings.Contains(host, "://") {
		return host
	}
	return "https://" + host
}

// FetchReleases scrapes the refs/tags listing. Key.Repo is the full cgit
// repository path and may contain slashes (e.g. "pub/scm/git/git.git").
func (p *Provider) FetchReleases(ctx context.Context, key core.RepoKey) ([]core.Release, error) {
	base := p.base(key)
	url := fmt.Sprintf("%s/%s/refs/tags", base, key.Repo)

	body, err := p.client.GetHTML(ctx, url)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, &core.NotFoundError{Platform: core.Cgit, Repo: key.Repo}
		}
		return nil, err
	}

	releases, _, err := parseTagsPage(base, key.Repo, url, body)
	return releases, err
}

// parseTagsPage extracts releases from a refs/tags page. The second return
// value counts rows that looked like tag rows but could not be used.
func parseTagsPage(base, repo, pageURL string, body []byte) ([]core.Release, int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, 0, &core.ParseError{URL: pageURL, Reason: err.Error()}
	}

	rows := doc.Find("table.list tr")
	if rows.Length() == 0 {
		return nil, 0, &core.ParseError{URL: pageURL, Reason: "no tag table found"}
	}

	var releases []core.Release
	skipped := 0

	// First row is the header.
	rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
		tagName := strings.TrimSpace(row.Find("td:nth-child(1) a").First().Text())
		downloadHref, _ := row.Find("td:nth-child(2) a").First().Attr("href")

		if tagName == "" || downloadHref == "" {
			// A tag with no snapshot archive is not a release.
			if tagName != "" || downloadHref != "" {
				skipped++
			}
			return
		}

		downloadURL := downloadHref
		if !strings.HasPrefix(downloadURL, "http") {
			downloadURL = base + downloadHref
		}

		assetName := downloadURL
		if i := strings.LastIndex(downloadURL, "/"); i >= 0 {
			assetName = downloadURL[i+1:]
		}
		if assetName == "" {
			skipped++
			return
		}

		var publishedAt *time.Time
		if title, ok := row.Find("td:nth-child(4) span, td:nth-child(5) span").First().Attr("title"); ok {
			if t, err := time.Parse(ageTitleLayout, title); err == nil {
				utc := t.UTC()
				publishedAt = &utc
			}
		}

		name := tagName
		ct := "application/gzip"
		releases = append(releases, core.Release{
			TagName:     tagName,
			Name:        &name,
			PublishedAt: publishedAt,
			HTMLURL:     fmt.Sprintf("%s/%s/tag/?h=%s", base, repo, tagName),
			Assets: []core.Asset{{
				Name:        assetName,
				URL:         downloadURL,
				ContentType: &ct,
			}},
		})
	})

	return releases, skipped, nil
}
