package proxy

import (
	"context"
	"net/http"
	"time"

	"github.com/m1k1o/go-hlspack/pkg/manifest"
)

type Config struct {
	FetchTimeout  time.Duration // until the backend answers, manifests until fully read
	IdleTimeout   time.Duration // longest stall of a relayed body, defaults to FetchTimeout
	PresignExpiry time.Duration // zero uses the storage default
}

func (c Config) withDefaultValues() Config {
	if c.FetchTimeout == 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = c.FetchTimeout
	}
	return c
}

// Presigner resolves object paths to fetchable URLs, see storage.Gateway.
type Presigner interface {
	Layout() manifest.Layout
	GeneratePresignedURL(ctx context.Context, objectPath string, expires time.Duration) (string, error)
}

// Object is a resolved proxy request.
type Object struct {
	Path    string // object path in storage
	Video   string // empty when not known, only allowed for keys
	BaseURL string // absolute base rewritten manifests point at
}

type Manager interface {
	ServeObject(w http.ResponseWriter, r *http.Request, obj Object)
}
