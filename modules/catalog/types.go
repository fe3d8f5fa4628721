package catalog

import (
	"context"
	"time"
)

type Config struct {
	PlayerPath string
	Timeout    time.Duration
}

func (c Config) withDefaultValues() Config {
	if c.PlayerPath == "" {
		c.PlayerPath = "/player"
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

// Lister lists published videos, see storage.Gateway.
type Lister interface {
	ListAssets(ctx context.Context, prefix string) ([]string, error)
}
