// Command checkup runs the release-cache HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/skorotkiewicz/checkup/cache"
	"github.com/skorotkiewicz/checkup/client"
	"github.com/skorotkiewicz/checkup/fetch"
	"github.com/skorotkiewicz/checkup/server"

	_ "github.com/skorotkiewicz/checkup/all"
)

func main() {
	app := &cli.App{
		Name:  "checkup",
		Usage: "HTTP server for caching and serving repository releases",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "cache",
				Aliases: []string{"c"},
				Value:   "data/cache",
				Usage:   "cache directory path",
			},
			&cli.IntFlag{
				Name:    "cache-hours",
				Aliases: []string{"e"},
				Value:   24,
				Usage:   "cache expiration time in hours",
			},
			&cli.StringFlag{
				Name:  "host",
				Value: "127.0.0.1",
				Usage: "server host",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   3000,
				Usage:   "server port",
			},
			&cli.DurationFlag{
				Name:  "fetch-timeout",
				Value: 30 * time.Second,
				Usage: "upstream fetch timeout",
			},
			&cli.BoolFlag{
				Name:  "warm",
				Usage: "refresh all known repositories at startup",
			},
			&cli.IntFlag{
				Name:  "warm-concurrency",
				Value: 8,
				Usage: "parallel fetches during cache warming",
			},
			&cli.StringFlag{
				Name:    "github-token",
				EnvVars: []string{"GITHUB_TOKEN"},
				Usage:   "token passed through to the GitHub API",
			},
			&cli.StringFlag{
				Name:    "gitlab-token",
				EnvVars: []string{"GITLAB_TOKEN"},
				Usage:   "token passed through to the GitLab API",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cacheDir := c.String("cache")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	httpClient := client.NewClient(
		client.WithTimeout(c.Duration("fetch-timeout")),
		client.WithAuthFunc(authFunc(c.String("github-token"), c.String("gitlab-token"))),
	)

	store := cache.NewStore(cacheDir)
	ttl := time.Duration(c.Int("cache-hours")) * time.Hour

	orch, err := fetch.New(store, httpClient, ttl, c.Duration("fetch-timeout"), logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.Bool("warm") {
		n := orch.Warm(ctx, c.Int("warm-concurrency"))
		logger.Info("cache warmed", "repositories", n)
	}

	addr := fmt.Sprintf("%s:%d", c.String("host"), c.Int("port"))
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.New(orch, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", "http://"+addr, "cache", cacheDir, "ttl", ttl)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// authFunc passes configured tokens through to the matching API hosts.
func authFunc(githubToken, gitlabToken string) func(url string) (string, string) {
	return func(url string) (string, string) {
		switch {
		case githubToken != "" && strings.Contains(url, "api.github.com"):
			return "Authorization", "Bearer " + githubToken
		case gitlabToken != "" && strings.Contains(url, "gitlab.com"):
			return "PRIVATE-TOKEN", gitlabToken
		}
		return "", ""
	}
}
