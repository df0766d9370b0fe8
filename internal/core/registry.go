package core

import (
	"context"
	"fmt"
	"sync"
)

// Provider is the interface implemented by all platform clients. A provider
// knows how to list releases for one platform kind; it never touches the
// cache.
type Provider interface {
	// Platform returns the platform kind (e.g. "github", "cgit").
	Platform() Platform

	// FetchReleases retrieves the normalized release list for a repository,
	// newest first in upstream order.
	FetchReleases(ctx context.Context, key RepoKey) ([]Release, error)
}

// Factory creates a provider instance for a given default host.
type Factory func(host string, client *Client) Provider

var (
	factories = make(map[Platform]Factory)
	defaults  = make(map[Platform]string)
	mu        sync.RWMutex
)

// Register adds a provider factory to the global registry.
// defaultHost is the host assumed when a request carries none
// (e.g. "github.com"); empty for platforms that always name their host.
func Register(platform Platform, defaultHost string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[platform] = factory
	defaults[platform] = defaultHost
}

// New creates a new provider for the given platform.
// If host is empty, the platform's default host is used.
func New(platform Platform, host string, client *Client) (Provider, error) {
	mu.RLock()
	factory, ok := factories[platform]
	defaultHost := defaults[platform]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown platform: %s", platform)
	}

	if host == "" {
		host = defaultHost
	}

	if client == nil {
		client = DefaultClient()
	}

	return factory(host, client), nil
}

// SupportedPlatforms returns all registered platform kinds.
func SupportedPlatforms() []Platform {
	mu.RLock()
	defer mu.RUnlock()

	platforms := make([]Platform, 0, len(factories))
	for p := range factories {
		platforms = append(platforms, p)
	}
	return platforms
}

// DefaultHost returns the default host for a platform.
func DefaultHost(platform Platform) string {
	mu.RLock()
	defer mu.RUnlock()
	return defaults[platform]
}
