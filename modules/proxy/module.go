package proxy

import (
	"errors"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/m1k1o/go-hlspack/pkg/manifest"
	"github.com/m1k1o/go-hlspack/pkg/proxy"
	"github.com/m1k1o/go-hlspack/pkg/storage"
)

var videoRegex = regexp.MustCompile(`^[0-9A-Za-z_.-]+$`)

var (
	ErrMissingVideo = errors.New("video name not specified")
	ErrInvalidVideo = errors.New("invalid video name")
	ErrUnknownKind  = errors.New("unsupported object type")
)

type ModuleCtx struct {
	logger     zerolog.Logger
	pathPrefix string
	config     Config

	layout  manifest.Layout
	manager proxy.Manager
}

func New(pathPrefix string, config *Config, presigner proxy.Presigner) *ModuleCtx {
	cfg := config.withDefaultValues()

	return &ModuleCtx{
		logger:     log.With().Str("module", "proxy").Logger(),
		pathPrefix: pathPrefix,
		config:     cfg,

		layout:  presigner.Layout(),
		manager: proxy.New(&cfg.Config, presigner),
	}
}

func (m *ModuleCtx) Shutdown() {
}

func validVideo(video string) bool {
	return videoRegex.MatchString(video) && video != "." && video != ".."
}

// RecoverVideo finds the video a request belongs to: the video query
// parameter first, then the video parameter of the referring page.
func RecoverVideo(r *http.Request) (string, error) {
	video := r.URL.Query().Get("video")

	if video == "" {
		if ref, err := url.Parse(r.Referer()); err == nil {
			video = ref.Query().Get("video")
		}
	}

	if video == "" {
		return "", nil
	}
	if !validVideo(video) {
		return "", ErrInvalidVideo
	}
	return video, nil
}

// Resolve maps a path relative to the module onto a stored object.
// Accepted forms are <folder>/<video>/<file>, <key folder>/<file> and a bare
// <file>, which needs the video recovered from the request.
func (m *ModuleCtx) Resolve(r *http.Request, rel string) (proxy.Object, error) {
	p, err := storage.CleanPath(rel)
	if err != nil {
		return proxy.Object{}, err
	}

	var video, name string
	parts := strings.Split(p, "/")

	switch {
	case len(parts) == 3:
		video, name = parts[1], parts[2]
		if !validVideo(video) {
			return proxy.Object{}, ErrInvalidVideo
		}
	case len(parts) == 2 && parts[0] == m.layout.KeyFolder && manifest.KindOf(parts[1]) == manifest.KindKey:
		// the video only annotates logs here
		video, _ = RecoverVideo(r)
		return proxy.Object{Path: m.layout.KeyPath(parts[1]), Video: video}, nil
	case len(parts) == 1:
		name = parts[0]
		if video, err = RecoverVideo(r); err != nil {
			return proxy.Object{}, err
		}
		if video == "" {
			return proxy.Object{}, ErrMissingVideo
		}
	default:
		return proxy.Object{}, storage.ErrInvalidPath
	}

	obj := proxy.Object{Video: video}
	switch manifest.KindOf(name) {
	case manifest.KindManifest:
		obj.Path = m.layout.ManifestPath(video, name)
	case manifest.KindSegment:
		obj.Path = path.Join(m.layout.MediaFolder, video, name)
	case manifest.KindKey:
		obj.Path = m.layout.KeyPath(name)
	default:
		return proxy.Object{}, ErrUnknownKind
	}
	return obj, nil
}

func (m *ModuleCtx) publicBase(r *http.Request) string {
	if m.config.PublicURL != "" {
		return strings.TrimRight(m.config.PublicURL, "/")
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host

	if m.config.TrustProxy {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
			host = fwd
		}
	}

	return scheme + "://" + host + strings.TrimRight(m.pathPrefix, "/")
}

func (m *ModuleCtx) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, m.pathPrefix) {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodOptions:
		proxy.SetCORS(w)
		if m.config.CORSMaxAge > 0 {
			w.Header().Set("Access-Control-Max-Age", strconv.Itoa(int(m.config.CORSMaxAge.Seconds())))
		}
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet, http.MethodHead:
	default:
		http.Error(w, "405 method not allowed", http.StatusMethodNotAllowed)
		return
	}

	obj, err := m.Resolve(r, strings.TrimPrefix(r.URL.Path, m.pathPrefix))
	if err != nil {
		m.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("unable to resolve object")
		http.Error(w, "400 "+err.Error(), http.StatusBadRequest)
		return
	}

	obj.BaseURL = m.publicBase(r)
	m.manager.ServeObject(w, r, obj)
}
