package player

import (
	_ "embed"
	"html/template"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/m1k1o/go-hlspack/pkg/manifest"
)

//go:embed player.html
var playHTML string

var playTmpl = template.Must(template.New("player").Parse(playHTML))

type ModuleCtx struct {
	logger     zerolog.Logger
	pathPrefix string
	config     Config
}

func New(pathPrefix string, config *Config) *ModuleCtx {
	module := &ModuleCtx{
		logger:     log.With().Str("module", "player").Logger(),
		pathPrefix: pathPrefix,
		config:     config.withDefaultValues(),
	}

	return module
}

func (m *ModuleCtx) Shutdown() {
}

// Source is the proxied main playlist of a video.
func (m *ModuleCtx) Source(video string) string {
	return m.config.ProxyPrefix + m.config.Layout.ManifestPath(video, manifest.MainPlaylist) +
		"?video=" + url.QueryEscape(video)
}

func (m *ModuleCtx) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	video := r.URL.Query().Get("video")
	if video == "" {
		http.Error(w, "400 video name not specified", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	err := playTmpl.Execute(w, struct {
		Video  string
		Source string
	}{
		Video:  video,
		Source: m.Source(video),
	})
	if err != nil {
		m.logger.Err(err).Msg("unable to render player")
	}
}
