package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/asafaviv-devops/image-gallery/internal/config"
	"github.com/asafaviv-devops/image-gallery/internal/metrics"
	"github.com/asafaviv-devops/image-gallery/internal/repository"
	"github.com/asafaviv-devops/image-gallery/internal/service"
)

func newTestRouter(t *testing.T, origins []string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: "0"},
		App:    config.AppConfig{Env: "test", MaxUploadSize: 1 << 20, ThumbnailSize: 300, CORSOrigins: origins},
	}
	reg := prometheus.NewRegistry()
	gallery := service.NewGalleryService(repository.NewMemoryRepository("test"), cfg, zap.NewNop())
	return NewRouter(cfg, gallery, metrics.New(reg, "test"), reg, zap.NewNop())
}

func get(r http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	r := newTestRouter(t, []string{"*"})

	w := get(r, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, err := uuid.Parse(w.Header().Get(requestIDHeader))
	assert.NoError(t, err)

	w = get(r, "/health", http.Header{requestIDHeader: {"abc-123"}})
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}

func TestRoutes(t *testing.T) {
	r := newTestRouter(t, []string{"*"})

	tests := []struct {
		path string
		want int
	}{
		{"/", http.StatusOK},
		{"/health", http.StatusOK},
		{"/api/images", http.StatusOK},
		{"/api/images/missing.png", http.StatusNotFound},
		{"/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, get(r, tt.path, nil).Code)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, []string{"*"})
	get(r, "/api/images", nil)

	w := get(r, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "app_info")
	assert.Contains(t, body, `http_requests_total{method="GET",path="/api/images",status="200"} 1`)
}

func TestCORS(t *testing.T) {
	t.Run("any origin", func(t *testing.T) {
		r := newTestRouter(t, []string{"*"})
		w := get(r, "/health", http.Header{"Origin": {"http://other.local"}})
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("allow list", func(t *testing.T) {
		r := newTestRouter(t, []string{"http://gallery.local"})

		w := get(r, "/health", http.Header{"Origin": {"http://gallery.local"}})
		assert.Equal(t, "http://gallery.local", w.Header().Get("Access-Control-Allow-Origin"))

		w = get(r, "/health", http.Header{"Origin": {"http://evil.local"}})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestCorsConfig(t *testing.T) {
	assert.True(t, corsConfig(nil).AllowAllOrigins)
	assert.True(t, corsConfig([]string{"*"}).AllowAllOrigins)

	c := corsConfig([]string{"http://a", "http://b"})
	assert.False(t, c.AllowAllOrigins)
	assert.Equal(t, []string{"http://a", "http://b"}, c.AllowOrigins)
	assert.Contains(t, c.AllowHeaders, requestIDHeader)
}
