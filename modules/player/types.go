package player

import (
	"strings"

	"github.com/m1k1o/go-hlspack/pkg/manifest"
)

type Config struct {
	ProxyPrefix string
	Layout      manifest.Layout
}

func (c Config) withDefaultValues() Config {
	if c.ProxyPrefix == "" {
		c.ProxyPrefix = "/proxy/"
	}
	c.ProxyPrefix = "/" + strings.Trim(c.ProxyPrefix, "/") + "/"
	c.Layout = c.Layout.WithDefaultValues()
	return c
}
