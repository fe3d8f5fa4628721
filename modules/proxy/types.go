package proxy

import (
	"time"

	"github.com/m1k1o/go-hlspack/pkg/proxy"
)

type Config struct {
	proxy.Config

	// absolute base of this module as seen by clients, derived from the
	// request when empty
	PublicURL string
	// honor X-Forwarded-Proto and X-Forwarded-Host
	TrustProxy bool
	// Access-Control-Max-Age of preflight responses, omitted when zero
	CORSMaxAge time.Duration
}

func (c Config) withDefaultValues() Config {
	return c
}
