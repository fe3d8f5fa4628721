package serve

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m1k1o/go-hlspack/internal/config"
	"github.com/m1k1o/go-hlspack/internal/server"
	"github.com/m1k1o/go-hlspack/pkg/storage"
)

type unreachableBucket struct {
	*storage.MemoryBucket
}

func (unreachableBucket) Check(ctx context.Context) error {
	return errors.New("connection refused")
}

func newMain(t *testing.T, bucket storage.Bucket) *server.ServerManagerCtx {
	t.Helper()

	gateway, err := storage.New(storage.Config{}, bucket, nil)
	require.NoError(t, err)

	main := NewCommand(&config.Storage{Timeout: time.Second})
	main.DeliveryConfig.FetchTimeout = 5 * time.Second
	main.Preflight()

	s := server.New(&server.Config{Bind: "127.0.0.1:0"})
	main.Mount(s, gateway)

	main.server = s
	t.Cleanup(main.shutdown)
	return s
}

func publish(t *testing.T) *storage.MemoryBucket {
	t.Helper()

	bucket := storage.NewMemoryBucket("videos")
	backend := httptest.NewServer(bucket)
	t.Cleanup(backend.Close)
	bucket.BaseURL = backend.URL

	objects := map[string]string{
		"manifests/demo1/stream.m3u8": "#EXTM3U\n#EXT-X-KEY:METHOD=AES-128,URI=\"https://cdn.example.com/keys/abc.key\"\nhttps://cdn.example.com/media/demo1/demo1.ts\n",
		"manifests/demo1/iframe.m3u8": "#EXTM3U\n#EXT-X-I-FRAMES-ONLY\n",
		"media/demo1/demo1.ts":        "segment-bytes",
		"keys/abc.key":                "0123456789abcdef",
	}
	for key, data := range objects {
		require.NoError(t, bucket.Put(context.Background(), key, strings.NewReader(data), int64(len(data)), storage.ObjectMeta{}))
	}
	return bucket
}

func get(s http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestMount(t *testing.T) {
	s := newMain(t, publish(t))

	tests := []struct {
		name     string
		target   string
		code     int
		contains string
	}{
		{name: "catalog", target: "/", code: http.StatusOK, contains: "demo1"},
		{name: "videos", target: "/videos", code: http.StatusOK, contains: `["demo1"]`},
		{name: "player", target: "/player?video=demo1", code: http.StatusOK, contains: "/proxy/manifests/demo1/stream.m3u8?video=demo1"},
		{name: "player without video", target: "/player", code: http.StatusBadRequest},
		{name: "proxied segment", target: "/proxy/media/demo1/demo1.ts", code: http.StatusOK, contains: "segment-bytes"},
		{name: "proxied key", target: "/proxy/keys/abc.key", code: http.StatusOK, contains: "0123456789abcdef"},
		{name: "health", target: "/health", code: http.StatusOK, contains: `"status":"ok"`},
		{name: "ping", target: "/ping", code: http.StatusOK, contains: "pong"},
		{name: "unknown", target: "/nope", code: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(s, tt.target)

			assert.Equal(t, tt.code, rec.Code)
			if tt.contains != "" {
				assert.Contains(t, rec.Body.String(), tt.contains)
			}
		})
	}
}

func TestMountProxyRewritesManifest(t *testing.T) {
	s := newMain(t, publish(t))

	rec := get(s, "/proxy/manifests/demo1/stream.m3u8?video=demo1")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "#EXTM3U\n"+
		"#EXT-X-KEY:METHOD=AES-128,URI=\"https://cdn.example.com/keys/abc.key\"\n"+
		"https://cdn.example.com/media/demo1/demo1.ts\n", rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthUnavailable(t *testing.T) {
	s := newMain(t, unreachableBucket{storage.NewMemoryBucket("videos")})

	rec := get(s, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status healthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, "unavailable", status.Status)
	assert.Contains(t, status.Error, "connection refused")
}
