package netlog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarcFord/netlog/internal/config"
	"github.com/MarcFord/netlog/internal/level"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestForwarder builds a Forwarder writing to a JSON file backend and
// returns it with the log path.
func newTestForwarder(t *testing.T, mutate func(*config.Config), opts ...Option) (*Forwarder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.log")

	cfg := &config.Config{}
	cfg.App.Name = "test-app"
	cfg.App.Service = "test-app"
	cfg.App.Environment = "test"
	cfg.AppLog.Level = "ERROR"
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8080
	cfg.RequestLog.RequestIDHeader = "X-Request-ID"
	cfg.Backends = []config.Backend{
		{
			Name: "local", Type: config.TypeFile, Enabled: true,
			Path: path, Format: "json", Level: "trace",
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	f, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(f.Close)
	return f, path
}

func readRecords(t *testing.T, f *Forwarder, path string) []map[string]interface{} {
	t.Helper()
	f.Close()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var recs []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		recs = append(recs, rec)
	}
	return recs
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := &config.Config{} // missing app name
	_, err := New(cfg)
	assert.Error(t, err)

	_, err = New(nil)
	assert.Error(t, err)
}

func TestNewAppliesDefaultsToHandBuiltConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.App.Name = "hand-built"
	cfg.App.Environment = "test"
	cfg.Backends = []config.Backend{
		{Name: "ibm", Type: config.TypeIBM, Enabled: true, IngestionKey: "k"},
		{Name: "az", Type: config.TypeAzure, Enabled: true, WorkspaceID: "w", WorkspaceKey: "c2VjcmV0"},
	}

	f, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(f.Close)

	assert.Equal(t, "https://logs.logdna.com/logs/ingest", cfg.Backends[0].URL)
	assert.Equal(t, "AppLogs", cfg.Backends[1].LogType)
	assert.Equal(t, "X-Request-ID", cfg.RequestLog.RequestIDHeader)
	assert.ElementsMatch(t, []string{"ibm", "az"}, f.Backends())
}

func TestNewRejectsBadSkipPattern(t *testing.T) {
	cfg := &config.Config{}
	cfg.App.Name = "a"
	cfg.App.Environment = "test"
	cfg.AppLog.Level = "WARN"
	cfg.Server.Host = "h"
	cfg.Server.Port = 8080
	cfg.RequestLog.SkipPaths = []string{"[bad"}

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestForwarderDirectLogging(t *testing.T) {
	f, path := newTestForwarder(t, nil)

	f.Info(context.Background(), "plain info", Fields{"order_id": 7})
	f.Error(context.Background(), "it broke")

	recs := readRecords(t, f, path)
	require.Len(t, recs, 2)

	assert.Equal(t, "plain info", recs[0]["msg"])
	assert.Equal(t, float64(level.Info), recs[0]["level"])
	assert.Equal(t, float64(7), recs[0]["order_id"])
	assert.Equal(t, "test-app", recs[0]["name"])
	assert.Equal(t, "test", recs[0]["environment"])

	assert.Equal(t, "it broke", recs[1]["msg"])
	assert.Equal(t, float64(level.Error), recs[1]["level"])
}

func TestMiddlewareEmitsAccessRecord(t *testing.T) {
	f, path := newTestForwarder(t, nil)

	router := gin.New()
	router.Use(f.Middleware())
	router.GET("/items", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/items", nil)
	req.Header.Set("User-Agent", "test-agent/2.0")
	req.Header.Set("X-Request-ID", "req-42")
	req.RemoteAddr = "203.0.113.5:1234"
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))

	recs := readRecords(t, f, path)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, "GET /items", rec["msg"])
	assert.Equal(t, float64(level.Info), rec["level"])
	assert.Equal(t, float64(200), rec["status"])
	assert.Equal(t, "req-42", rec["request_id"])
	assert.Equal(t, "203.0.113.5", rec["remote_addr"])
	assert.Equal(t, "test-agent/2.0", rec["user_agent"])
	assert.Contains(t, rec, "duration_ms")
}

func TestMiddlewareStatusSeverity(t *testing.T) {
	f, path := newTestForwarder(t, nil)

	router := gin.New()
	router.Use(f.Middleware())
	router.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	router.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, p := range []string{"/missing", "/boom"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", p, nil))
	}

	recs := readRecords(t, f, path)
	require.Len(t, recs, 2)
	assert.Equal(t, float64(level.Warn), recs[0]["level"])
	assert.Equal(t, float64(level.Error), recs[1]["level"])
}

func TestMiddlewareSkipPaths(t *testing.T) {
	f, path := newTestForwarder(t, func(cfg *config.Config) {
		cfg.RequestLog.SkipPaths = []string{"/health", "/internal/*"}
	})

	router := gin.New()
	router.Use(f.Middleware())
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/internal/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/api", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, p := range []string{"/health", "/internal/metrics", "/api"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", p, nil))
	}

	recs := readRecords(t, f, path)
	require.Len(t, recs, 1)
	assert.Equal(t, "GET /api", recs[0]["msg"])
}

func TestMiddlewareDisabledRequestLog(t *testing.T) {
	f, path := newTestForwarder(t, func(cfg *config.Config) {
		cfg.RequestLog.Disabled = true
	})

	router := gin.New()
	router.Use(f.Middleware())
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/x", nil))

	f.Close()
	data, _ := os.ReadFile(path)
	assert.Empty(t, strings.TrimSpace(string(data)))
}

func TestHandlerLoggingCarriesRequestContext(t *testing.T) {
	f, path := newTestForwarder(t, nil, WithUserFunc(func(r *http.Request) string {
		return r.Header.Get("X-User")
	}))

	router := gin.New()
	router.Use(f.Middleware())
	router.POST("/orders", func(c *gin.Context) {
		f.Warn(c.Request.Context(), "stock low", Fields{"sku": "A-1"})
		c.Status(http.StatusCreated)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/orders", nil)
	req.Header.Set("X-User", "alice")
	router.ServeHTTP(w, req)

	recs := readRecords(t, f, path)
	require.Len(t, recs, 2, "handler record plus access record")

	handlerRec := recs[0]
	assert.Equal(t, "stock low", handlerRec["msg"])
	assert.Equal(t, "A-1", handlerRec["sku"])
	assert.Equal(t, "alice", handlerRec["user"])
	assert.NotEmpty(t, handlerRec["request_id"])
	assert.Equal(t, handlerRec["request_id"], recs[1]["request_id"],
		"handler and access records share the request id")
}

func TestBackendMinLevelFiltering(t *testing.T) {
	f, path := newTestForwarder(t, func(cfg *config.Config) {
		cfg.Backends[0].Level = "error"
	})

	f.Info(context.Background(), "dropped")
	f.Error(context.Background(), "kept")

	recs := readRecords(t, f, path)
	require.Len(t, recs, 1)
	assert.Equal(t, "kept", recs[0]["msg"])
}

func TestEnvironmentFiltering(t *testing.T) {
	f, _ := newTestForwarder(t, func(cfg *config.Config) {
		cfg.Backends[0].Environments = []string{"production", "prod-*"}
	})
	assert.Empty(t, f.Backends(), "backend scoped to production is not built in test env")

	f2, _ := newTestForwarder(t, func(cfg *config.Config) {
		cfg.Backends[0].Environments = []string{"test"}
	})
	assert.Equal(t, []string{"local"}, f2.Backends())
}

func TestLevelForStatus(t *testing.T) {
	assert.Equal(t, level.Info, levelForStatus(200))
	assert.Equal(t, level.Info, levelForStatus(302))
	assert.Equal(t, level.Warn, levelForStatus(404))
	assert.Equal(t, level.Error, levelForStatus(500))
	assert.Equal(t, level.Error, levelForStatus(503))
}
