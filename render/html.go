// Package render turns a committed cache entry into the HTML page served
// for browser requests. It is a pure transformation; the fetch layer calls
// it once per successful fetch and persists the result.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/skorotkiewicz/checkup/internal/core"
)

type assetView struct {
	Name      string
	URL       string
	Size      string
	Downloads uint64
	LatestURL string
}

type releaseView struct {
	Name       string
	HTMLURL    string
	Published  string
	Prerelease bool
	Draft      bool
	Latest     bool
	Assets     []assetView
	Body       string
}

type pageView struct {
	RepoPath string
	CachedAt string
	Latest   *releaseView
	Releases []releaseView
}

// Releases renders the HTML page for one cache entry.
func Releases(entry *core.CachedReleases, platform core.Platform) ([]byte, error) {
	page := pageView{
		RepoPath: entry.RepoPath,
		CachedAt: entry.CachedAt.UTC().Format("2006-01-02 15:04:05 UTC"),
	}

	for i := range entry.Releases {
		r := &entry.Releases[i]
		view := releaseView{
			Name:       r.DisplayName(),
			HTMLURL:    r.HTMLURL,
			Latest:     i == 0,
			Prerelease: r.Prerelease,
			Draft:      r.Draft,
		}
		if r.PublishedAt != nil {
			view.Published = r.PublishedAt.UTC().Format("2006-01-02 15:04:05 UTC")
		}
		if r.Body != nil {
			view.Body = preview(*r.Body, 3)
		}
		for _, a := range r.Assets {
			view.Assets = append(view.Assets, assetView{
				Name:      a.Name,
				URL:       a.URL,
				Size:      formatSize(a.Size),
				Downloads: a.DownloadCount,
				LatestURL: latestURL(platform, entry.RepoPath, a.Name),
			})
		}
		page.Releases = append(page.Releases, view)
	}

	if len(page.Releases) > 0 && len(page.Releases[0].Assets) > 0 {
		page.Latest = &page.Releases[0]
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("rendering releases page: %w", err)
	}
	return buf.Bytes(), nil
}

// latestURL builds the /{platform}/.../latest.{ext} link for an asset.
// github.com and gitlab.com are implied by their route prefix, so the host
// segment is dropped; forgejo and cgit keep it.
func latestURL(platform core.Platform, repoPath, assetName string) string {
	path := repoPath
	if platform == core.GitHub || platform == core.GitLab {
		if _, rest, ok := strings.Cut(repoPath, "/"); ok {
			path = rest
		}
	}
	return fmt.Sprintf("/%s/%s/latest.%s", platform, path, core.ExtractExtension(assetName))
}

// preview returns the first n lines of text.
func preview(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}

func formatSize(size uint64) string {
	const (
		kb = 1 << 10
		mb = 1 << 20
		gb = 1 << 30
	)
	switch {
	case size >= gb:
		return fmt.Sprintf("%.2f GB", float64(size)/float64(gb))
	case size >= mb:
		return fmt.Sprintf("%.2f MB", float64(size)/float64(mb))
	case size >= kb:
		return fmt.Sprintf("%.2f KB", float64(size)/float64(kb))
	default:
		return fmt.Sprintf("%d B", size)
	}
}

var pageTemplate = template.Must(template.New("releases").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Releases - {{.RepoPath}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, sans-serif; max-width: 800px; margin: 0 auto; padding: 20px; }
        h1 { color: #333; }
        ul { list-style-type: none; padding: 0; }
        li { margin-bottom: 25px; padding: 20px; background: #fff; border: 1px solid #e1e4e8; border-radius: 8px; }
        a { color: #0366d6; text-decoration: none; }
        a:hover { text-decoration: underline; }
        small { color: #586069; }
        .asset { padding: 8px; margin: 4px 0; background: #fff; border: 1px solid #e1e4e8; border-radius: 6px; color: #777; }
        .badge { padding: 2px 8px; border-radius: 3px; font-size: 0.8em; color: #fff; }
        .latest-badge { background: #28a745; font-weight: bold; }
        .prerelease-badge { background: #f0ad4e; }
        .draft-badge { background: #777; }
        .latest-box { margin-bottom: 30px; padding: 20px; background: #f0fff4; border: 2px solid #28a745; border-radius: 12px; }
        .latest-box h2 { margin: 0 0 10px 0; color: #28a745; }
        .download { background: #28a745; color: #fff; padding: 6px 12px; border-radius: 4px; font-weight: 500; }
        details { margin-top: 10px; }
        details div { margin-top: 10px; padding: 10px; background: #f6f8fa; border-radius: 6px; white-space: pre-wrap; font-size: 0.9em; }
    </style>
</head>
<body>
    <h1>Releases for {{.RepoPath}}</h1>
    <p><em>Cached at: {{.CachedAt}}</em></p>
{{with .Latest}}    <div class="latest-box">
        <h2>Latest Release: {{.Name}}</h2>
        {{if .Published}}<p><small>Published: {{.Published}}</small></p>{{end}}
{{range .Assets}}        <div class="asset"><a href="{{.URL}}">{{.Name}}</a>{{if ne .Size "0 B"}} ({{.Size}}){{end}} <a class="download" href="{{.LatestURL}}">Download</a></div>
{{end}}    </div>
{{end}}    <h2>All Releases</h2>
    <ul>
{{range .Releases}}        <li>
            <strong><a href="{{.HTMLURL}}" target="_blank">{{.Name}}</a></strong>
            {{if .Latest}}<span class="badge latest-badge">Latest</span>{{end}}{{if .Prerelease}}<span class="badge prerelease-badge">Pre-release</span>{{end}}{{if .Draft}}<span class="badge draft-badge">Draft</span>{{end}}
            {{if .Published}}<br><small>Published: {{.Published}}</small>{{end}}
{{if .Assets}}            <div><strong>Downloads ({{len .Assets}} files):</strong>
{{range .Assets}}                <div class="asset"><a href="{{.URL}}">{{.Name}}</a>{{if ne .Size "0 B"}} ({{.Size}}){{end}}{{if .Downloads}} &darr; {{.Downloads}}{{end}}</div>
{{end}}            </div>
{{end}}{{if .Body}}            <details><summary>Show release notes</summary><div>{{.Body}}</div></details>
{{end}}        </li>
{{end}}    </ul>
</body>
</html>
`))
