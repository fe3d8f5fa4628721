package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

//go:embed catalog.html
var catalogHTML string

var catalogTmpl = template.Must(template.New("catalog").Parse(catalogHTML))

type ModuleCtx struct {
	logger     zerolog.Logger
	pathPrefix string
	config     Config
	lister     Lister
}

func New(pathPrefix string, config *Config, lister Lister) *ModuleCtx {
	return &ModuleCtx{
		logger:     log.With().Str("module", "catalog").Logger(),
		pathPrefix: "/" + strings.Trim(pathPrefix, "/"),
		config:     config.withDefaultValues(),
		lister:     lister,
	}
}

func (m *ModuleCtx) Shutdown() {
}

func (m *ModuleCtx) videos(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	return m.lister.ListAssets(ctx, "")
}

func (m *ModuleCtx) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := "/" + strings.Trim(strings.TrimPrefix(r.URL.Path, m.pathPrefix), "/")

	switch p {
	case "/":
		m.serveLibrary(w, r)
	case "/videos":
		m.serveList(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (m *ModuleCtx) serveList(w http.ResponseWriter, r *http.Request) {
	videos, err := m.videos(r.Context())
	if err != nil {
		m.logger.Err(err).Msg("unable to list videos")
		http.Error(w, "500 unable to list videos", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_ = json.NewEncoder(w).Encode(videos)
}

func (m *ModuleCtx) serveLibrary(w http.ResponseWriter, r *http.Request) {
	videos, err := m.videos(r.Context())
	if err != nil {
		m.logger.Err(err).Msg("unable to list videos")
		http.Error(w, "500 unable to list videos", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	err = catalogTmpl.Execute(w, struct {
		Videos     []string
		PlayerPath string
	}{
		Videos:     videos,
		PlayerPath: m.config.PlayerPath,
	})
	if err != nil {
		m.logger.Err(err).Msg("unable to render library")
	}
}
