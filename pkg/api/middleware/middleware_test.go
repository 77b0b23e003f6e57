package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(handlers...)
	r.GET("/api/backups", func(c *gin.Context) {
		c.String(http.StatusOK, RequestID(c))
	})
	r.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func serve(r http.Handler, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthKeySources(t *testing.T) {
	r := newEngine(Auth("secret"))

	tests := []struct {
		name   string
		target string
		header map[string]string
		want   int
	}{
		{"missing", "/api/backups", nil, http.StatusUnauthorized},
		{"wrong header", "/api/backups", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"prefix of key", "/api/backups", map[string]string{"X-API-Key": "secre"}, http.StatusUnauthorized},
		{"header", "/api/backups", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"bearer", "/api/backups", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"basic is ignored", "/api/backups", map[string]string{"Authorization": "Basic secret"}, http.StatusUnauthorized},
		{"query", "/api/backups?api_key=secret", nil, http.StatusOK},
		{"wrong query", "/api/backups?api_key=x", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, tt.target, tt.header)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, w.Code)
			}
			if w.Code == http.StatusUnauthorized && !strings.Contains(w.Body.String(), "invalid api key") {
				t.Fatalf("unexpected body %s", w.Body.String())
			}
		})
	}
}

func TestAuthDisabledWithoutKey(t *testing.T) {
	w := serve(newEngine(Auth("")), "/api/backups", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRequestLogAssignsID(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	r := newEngine(RequestLog(log))

	w := serve(r, "/api/backups", nil)
	id := w.Header().Get(RequestIDHeader)
	if !strings.HasPrefix(id, "req_") {
		t.Fatalf("expected generated request id, got %q", id)
	}
	if w.Body.String() != id {
		t.Fatalf("handler saw %q, header has %q", w.Body.String(), id)
	}
	if !strings.Contains(buf.String(), "request_id="+id) || !strings.Contains(buf.String(), "status=200") {
		t.Fatalf("request not logged: %s", buf.String())
	}

	w = serve(r, "/api/backups", map[string]string{RequestIDHeader: "abc-123"})
	if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("caller id not kept, got %q", got)
	}
}

func TestRequestLogHealthAtDebug(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	r := newEngine(RequestLog(log))

	serve(r, "/health", nil)
	if buf.Len() != 0 {
		t.Fatalf("health check logged at info: %s", buf.String())
	}
}
