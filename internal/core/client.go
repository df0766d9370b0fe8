package core

import (
	"github.com/skorotkiewicz/checkup/client"
)

// Type aliases so provider packages only import core.
type (
	Client = client.Client
	Option = client.Option
)

// Function aliases.
var (
	DefaultClient  = client.DefaultClient
	NewClient      = client.NewClient
	WithTimeout    = client.WithTimeout
	WithMaxRetries = client.WithMaxRetries
	WithUserAgent  = client.WithUserAgent
	WithAuthFunc   = client.WithAuthFunc
)
