package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/m1k1o/go-hlspack/pkg/manifest"
	"github.com/m1k1o/go-hlspack/pkg/storage"
)

var errFetchTimeout = errors.New("fetch timeout")

// forwarded so single file segments can be fetched as byte ranges
var rangeHeaders = []string{"Range", "If-Range"}

type ManagerCtx struct {
	logger    zerolog.Logger
	config    Config
	presigner Presigner
	client    *http.Client
}

func New(config *Config, presigner Presigner) *ManagerCtx {
	return &ManagerCtx{
		logger:    log.With().Str("module", "proxy").Str("submodule", "manager").Logger(),
		config:    config.withDefaultValues(),
		presigner: presigner,
		client:    &http.Client{},
	}
}

func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Range, Content-Type")
	w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")
}

func (m *ManagerCtx) isTimeout(ctx context.Context, err error) bool {
	if errors.Is(context.Cause(ctx), errFetchTimeout) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// ServeObject presigns, fetches and relays a stored object. Manifests are
// rewritten to obj.BaseURL.
func (m *ManagerCtx) ServeObject(w http.ResponseWriter, r *http.Request, obj Object) {
	logger := m.logger.With().Str("object", obj.Path).Str("video", obj.Video).Logger()
	SetCORS(w)

	// bounded until the backend answers, manifests until they are read
	ctx, cancel := context.WithCancelCause(r.Context())
	defer cancel(nil)

	deadline := time.AfterFunc(m.config.FetchTimeout, func() { cancel(errFetchTimeout) })
	defer deadline.Stop()

	url, err := m.presigner.GeneratePresignedURL(ctx, obj.Path, m.config.PresignExpiry)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			http.Error(w, "404 object not found", http.StatusNotFound)
		case errors.Is(err, storage.ErrInvalidPath):
			http.Error(w, "400 invalid object path", http.StatusBadRequest)
		case m.isTimeout(ctx, err):
			logger.Warn().Err(err).Msg("storage timeout")
			http.Error(w, "504 storage timeout", http.StatusGatewayTimeout)
		default:
			logger.Err(err).Msg("unable to presign object")
			http.Error(w, "500 "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		logger.Err(err).Msg("unable to create request")
		http.Error(w, "500 "+err.Error(), http.StatusInternalServerError)
		return
	}

	// manifests are rewritten as a whole
	isManifest := manifest.KindOf(obj.Path) == manifest.KindManifest
	if !isManifest {
		for _, h := range rangeHeaders {
			if v := r.Header.Get(h); v != "" {
				req.Header.Set(h, v)
			}
		}
	}

	resp, err := m.client.Do(req)
	if err != nil {
		if m.isTimeout(ctx, err) {
			logger.Warn().Msg("upstream timeout")
			http.Error(w, "504 upstream timeout", http.StatusGatewayTimeout)
			return
		}

		logger.Err(err).Msg("unable to fetch object")
		http.Error(w, "500 "+err.Error(), http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && (isManifest || resp.StatusCode != http.StatusPartialContent) {
		logger.Warn().Int("code", resp.StatusCode).Msg("invalid upstream response")
		http.Error(w, fmt.Sprintf("%d upstream error", resp.StatusCode), resp.StatusCode)
		return
	}

	w.Header().Set("Content-Type", manifest.ContentType(obj.Path))
	if cc := manifest.CacheControl(obj.Path); cc != "" {
		w.Header().Set("Cache-Control", cc)
	}

	if isManifest {
		m.serveManifest(ctx, w, r, resp, obj)
		return
	}

	// segments and keys stream once the backend answered, bounded by stalls only
	deadline.Stop()

	for _, h := range []string{"Content-Range", "Accept-Ranges", "Last-Modified", "ETag"} {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
	if resp.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	w.WriteHeader(resp.StatusCode)

	if r.Method == http.MethodHead {
		return
	}

	body := &idleReader{r: resp.Body, timer: deadline, idle: m.config.IdleTimeout}
	if _, err := io.Copy(w, body); err != nil {
		if m.isTimeout(ctx, err) {
			logger.Warn().Msg("upstream stalled")
			return
		}
		logger.Debug().Err(err).Msg("copy interrupted")
	}
}

// idleReader arms timer for the duration of every upstream read.
type idleReader struct {
	r     io.Reader
	timer *time.Timer
	idle  time.Duration
}

func (i *idleReader) Read(p []byte) (int, error) {
	i.timer.Reset(i.idle)
	n, err := i.r.Read(p)
	i.timer.Stop()
	return n, err
}

func (m *ManagerCtx) serveManifest(ctx context.Context, w http.ResponseWriter, r *http.Request, resp *http.Response, obj Object) {
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		if m.isTimeout(ctx, err) {
			http.Error(w, "504 upstream timeout", http.StatusGatewayTimeout)
			return
		}

		m.logger.Err(err).Str("object", obj.Path).Msg("unable to read manifest")
		http.Error(w, "500 "+err.Error(), http.StatusInternalServerError)
		return
	}

	text := manifest.Rewrite(string(buf), manifest.Binding{
		VideoName: obj.Video,
		BaseURL:   obj.BaseURL,
		Layout:    m.presigner.Layout(),
	})

	w.Header().Set("Content-Length", strconv.Itoa(len(text)))
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.WriteString(w, text)
}
