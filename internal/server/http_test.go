package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouting(t *testing.T) {
	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "app.js"), []byte("console.log(1)"), 0644))

	s := New(&Config{Bind: "127.0.0.1:0", Static: static, PProf: true})
	s.Handle("/proxy/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("proxy:" + r.URL.Path))
	}))
	s.Mount(func(r *chi.Mux) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("ok"))
		})
	})

	tests := []struct {
		name   string
		method string
		target string
		code   int
		body   string
	}{
		{name: "ping", method: http.MethodGet, target: "/ping", code: http.StatusOK, body: "pong"},
		{name: "mounted", method: http.MethodGet, target: "/health", code: http.StatusOK, body: "ok"},
		{name: "handled prefix", method: http.MethodGet, target: "/proxy/", code: http.StatusOK, body: "proxy:/proxy/"},
		{name: "handled subtree", method: http.MethodOptions, target: "/proxy/media/demo/demo.ts", code: http.StatusOK, body: "proxy:/proxy/media/demo/demo.ts"},
		{name: "static", method: http.MethodGet, target: "/static/app.js", code: http.StatusOK, body: "console.log(1)"},
		{name: "pprof", method: http.MethodGet, target: "/debug/pprof/", code: http.StatusOK},
		{name: "not found", method: http.MethodGet, target: "/missing", code: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))

			assert.Equal(t, tt.code, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}
