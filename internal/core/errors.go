package core

import (
	"fmt"

	"github.com/skorotkiewicz/checkup/client"
)

// Sentinels and transport error types live in the client package; aliased
// here so provider implementations only need to import core.
var (
	ErrNotFound     = client.ErrNotFound
	ErrUpstreamDown = client.ErrUpstreamDown
)

type (
	HTTPError      = client.HTTPError
	RateLimitError = client.RateLimitError
)

// NotFoundError wraps ErrNotFound with platform context.
type NotFoundError struct {
	Platform Platform
	Repo     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: repository %s not found", e.Platform, e.Repo)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ParseError is returned by the cgit provider when a fetched page has no
// recognizable structure. Individual malformed rows do not raise it.
type ParseError struct {
	URL    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s: %s", e.URL, e.Reason)
}
