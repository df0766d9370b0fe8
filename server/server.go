// Package server exposes the HTTP surface: HTML pages, raw cache JSON, and
// latest-asset redirects. Handlers only read committed cache state through
// the orchestrator; they never call upstream themselves.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/skorotkiewicz/checkup/fetch"
	"github.com/skorotkiewicz/checkup/internal/core"
	"github.com/skorotkiewicz/checkup/render"
)

// Server serves the inbound HTTP surface over one orchestrator.
type Server struct {
	orch   *fetch.Orchestrator
	logger *slog.Logger
}

func New(orch *fetch.Orchestrator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{orch: orch, logger: logger}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Get("/github/*", s.handleRepo(core.GitHub))
	r.Get("/gitlab/*", s.handleRepo(core.GitLab))
	r.Get("/forgejo/*", s.handleRepo(core.Forgejo))
	r.Get("/cgit/*", s.handleRepo(core.Cgit))

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"took", time.Since(start),
			"remote", r.RemoteAddr,
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// handleRepo dispatches on the request path suffix the way the routes are
// documented: ".../latest.{ext}" redirects to an asset, ".../cache" returns
// the raw entry as JSON, anything else renders the HTML page.
func (s *Server) handleRepo(platform core.Platform) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := chi.URLParam(r, "*")

		if pos := strings.LastIndex(path, "/latest."); pos >= 0 {
			ext := path[pos+len("/latest."):]
			s.serveLatest(w, r, platform, path[:pos], ext)
			return
		}

		wantJSON := false
		if rest, ok := strings.CutSuffix(path, "/cache"); ok {
			path = rest
			wantJSON = true
		}

		key, err := parseKey(platform, path)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		res := s.orch.Resolve(key)
		if wantJSON {
			s.serveJSON(w, key, res)
			return
		}
		s.serveHTML(w, key, res)
	}
}

func (s *Server) serveLatest(w http.ResponseWriter, r *http.Request, platform core.Platform, repoPart, ext string) {
	key, err := parseKey(platform, repoPart)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if ext == "" {
		http.Error(w, "missing extension", http.StatusBadRequest)
		return
	}

	res := s.orch.Resolve(key)
	switch res.State {
	case fetch.StateProcessing:
		s.serveProcessing(w, key)
	case fetch.StateFailed:
		s.serveFailed(w, res)
	case fetch.StateFresh:
		asset, ok := core.LatestAsset(res.Entry.Releases, ext)
		if !ok {
			http.Error(w, fmt.Sprintf("No asset with extension '%s' found", ext), http.StatusNotFound)
			return
		}
		http.Redirect(w, r, asset.URL, http.StatusTemporaryRedirect)
	}
}

func (s *Server) serveJSON(w http.ResponseWriter, key core.RepoKey, res fetch.Result) {
	switch res.State {
	case fetch.StateProcessing:
		http.Error(w, fmt.Sprintf("repository %s not cached yet, fetch in progress", key.String()), http.StatusNotFound)
	case fetch.StateFailed:
		s.serveFailed(w, res)
	case fetch.StateFresh:
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(res.Entry); err != nil {
			s.logger.Warn("encoding response failed", "key", key.String(), "err", err)
		}
	}
}

func (s *Server) serveHTML(w http.ResponseWriter, key core.RepoKey, res fetch.Result) {
	switch res.State {
	case fetch.StateProcessing:
		s.serveProcessing(w, key)
	case fetch.StateFailed:
		s.serveFailed(w, res)
	case fetch.StateFresh:
		page := s.orch.HTML(key)
		if page == nil {
			// Entry committed without a readable page; render it now.
			var err error
			page, err = render.Releases(res.Entry, key.Platform)
			if err != nil {
				http.Error(w, "rendering releases page failed", http.StatusInternalServerError)
				return
			}
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(page)
	}
}

// serveProcessing answers while the first fetch for a key is in flight.
// The request never blocks on the fetch; clients poll.
func (s *Server) serveProcessing(w http.ResponseWriter, key core.RepoKey) {
	w.Header().Set("Retry-After", "2")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintf(w, `<!DOCTYPE html><html><head><title>Fetching...</title><meta http-equiv="refresh" content="2"></head>
<body><p>Fetching releases for %s, this page refreshes automatically.</p></body></html>`, key.String())
}

func (s *Server) serveFailed(w http.ResponseWriter, res fetch.Result) {
	msg := res.Message
	if !res.FailedAt.IsZero() {
		msg = fmt.Sprintf("%s (at %s; retrying in background)", res.Message, res.FailedAt.UTC().Format(time.RFC3339))
	}
	http.Error(w, msg, http.StatusBadGateway)
}

// parseKey maps a wildcard path to a repository key.
//
//	github, gitlab: {owner}/{repo}
//	forgejo:        {host}/{owner}/{repo}
//	cgit:           {host}/{repo-path...}
func parseKey(platform core.Platform, path string) (core.RepoKey, error) {
	segs := strings.Split(path, "/")
	for _, seg := range segs {
		if seg == "" || seg == "." || seg == ".." || strings.Contains(seg, "\\") {
			return core.RepoKey{}, fmt.Errorf("invalid repository path: %q", path)
		}
	}

	key := core.RepoKey{Platform: platform}
	switch platform {
	case core.GitHub, core.GitLab:
		if len(segs) != 2 {
			return core.RepoKey{}, fmt.Errorf("invalid path format, use {owner}/{repo}")
		}
		key.Host = core.DefaultHost(platform)
		key.Owner = segs[0]
		key.Repo = segs[1]

	case core.Forgejo:
		if len(segs) != 3 {
			return core.RepoKey{}, fmt.Errorf("invalid path format, use {host}/{owner}/{repo}")
		}
		key.Host = segs[0]
		key.Owner = segs[1]
		key.Repo = segs[2]

	case core.Cgit:
		if len(segs) < 2 {
			return core.RepoKey{}, fmt.Errorf("invalid path format, use {host}/{repo-path}")
		}
		key.Host = segs[0]
		key.Repo = strings.Join(segs[1:], "/")

	default:
		return core.RepoKey{}, fmt.Errorf("unknown platform: %s", platform)
	}
	return key, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexPage)
}

const indexPage = `<!DOCTYPE html>
<html>
<head>
    <title>checkup</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, sans-serif; max-width: 800px; margin: 0 auto; padding: 20px; }
        code { background: #f6f8fa; padding: 2px 6px; border-radius: 4px; }
    </style>
</head>
<body>
    <h1>checkup</h1>
    <p>Cached release listings for repositories on GitHub, GitLab, Forgejo, and cgit hosts.</p>
    <ul>
        <li><code>/github/{owner}/{repo}</code> &mdash; release page</li>
        <li><code>/gitlab/{owner}/{repo}</code></li>
        <li><code>/forgejo/{host}/{owner}/{repo}</code></li>
        <li><code>/cgit/{host}/{repo-path}</code></li>
    </ul>
    <p>Append <code>/cache</code> for the raw JSON, or <code>/latest.{ext}</code>
    (for example <code>/latest.tar.gz</code>) for a redirect to the newest matching asset.</p>
</body>
</html>
`
