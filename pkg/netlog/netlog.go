// Package netlog forwards application log records to remote logging
// backends (Graylog/GELF, AWS CloudWatch Logs, Google Cloud Logging,
// Azure Monitor, IBM Cloud Logs, OCI Logging) and to local files, with
// per-request HTTP context stamped onto every record.
package netlog

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gobwas/glob"

	"github.com/MarcFord/netlog/internal/applog"
	"github.com/MarcFord/netlog/internal/config"
	"github.com/MarcFord/netlog/internal/dispatch"
	"github.com/MarcFord/netlog/internal/iputil"
	"github.com/MarcFord/netlog/internal/level"
	"github.com/MarcFord/netlog/internal/record"
	"github.com/MarcFord/netlog/internal/reqctx"
)

// Fields carries extra key/value pairs for a log record.
type Fields map[string]interface{}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithUserFunc sets the callback resolving the authenticated user for a
// request. The returned name lands in the record's "user" field.
func WithUserFunc(fn func(r *http.Request) string) Option {
	return func(f *Forwarder) {
		f.userFn = fn
	}
}

// Forwarder dispatches log records to the configured backends.
type Forwarder struct {
	cfg            *config.Config
	manager        *dispatch.Manager
	builder        *record.Builder
	userFn         reqctx.UserFunc
	skipGlobs      []glob.Glob
	trustedProxies []*net.IPNet
}

// New validates the configuration, initializes every backend active in
// the configured environment, and returns a ready Forwarder.
func New(cfg *config.Config, opts ...Option) (*Forwarder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	config.ApplyDefaults(cfg)
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := applog.Default().SetLevelFromString(cfg.AppLog.Level); err != nil {
		return nil, err
	}

	trustedProxies, err := iputil.ParseCIDRs(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("invalid trusted_proxies: %w", err)
	}

	skipGlobs := make([]glob.Glob, 0, len(cfg.RequestLog.SkipPaths))
	for _, p := range cfg.RequestLog.SkipPaths {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid skip_paths pattern '%s': %w", p, err)
		}
		skipGlobs = append(skipGlobs, g)
	}

	f := &Forwarder{
		cfg:            cfg,
		manager:        dispatch.NewManager(),
		builder:        record.NewBuilder(cfg.App.Name, cfg.App.Service, cfg.App.Environment),
		skipGlobs:      skipGlobs,
		trustedProxies: trustedProxies,
	}
	for _, opt := range opts {
		opt(f)
	}

	if err := f.manager.InitBackends(cfg.App.Environment, cfg.Backends); err != nil {
		return nil, err
	}
	return f, nil
}

// Middleware captures request context for downstream log calls and emits
// one access record per request after the handler chain runs.
func (f *Forwarder) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if max := f.cfg.Server.RequestLimits.MaxBodySize; max > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(max))
		}

		clientIP := iputil.ClientIP(c.Request, f.trustedProxies, f.cfg.Server.ClientIPHeader)
		info := reqctx.Capture(c.Request, clientIP, f.cfg.RequestLog.RequestIDHeader, f.userFn)
		c.Request = c.Request.WithContext(reqctx.NewContext(c.Request.Context(), info))
		c.Writer.Header().Set(f.cfg.RequestLog.RequestIDHeader, info.RequestID)

		start := time.Now()
		c.Next()

		if f.cfg.RequestLog.Disabled || f.skipPath(c.Request.URL.Path) {
			return
		}

		status := c.Writer.Status()
		rec := f.builder.Build(levelForStatus(status),
			fmt.Sprintf("%s %s", c.Request.Method, c.Request.URL.Path),
			info,
			map[string]interface{}{
				"status":      status,
				"duration_ms": float64(time.Since(start).Microseconds()) / 1000.0,
				"bytes_out":   c.Writer.Size(),
			})
		f.manager.Dispatch(rec)
	}
}

func (f *Forwarder) skipPath(path string) bool {
	for _, g := range f.skipGlobs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// levelForStatus maps an HTTP response status onto a record severity.
func levelForStatus(status int) level.Level {
	switch {
	case status >= 500:
		return level.Error
	case status >= 400:
		return level.Warn
	default:
		return level.Info
	}
}

// log builds and dispatches one record, merging request context from ctx
// when the request passed through Middleware.
func (f *Forwarder) log(ctx context.Context, lvl level.Level, msg string, fields []Fields) {
	var extra map[string]interface{}
	if len(fields) > 0 {
		extra = make(map[string]interface{})
		for _, fs := range fields {
			for k, v := range fs {
				extra[k] = v
			}
		}
	}
	rec := f.builder.Build(lvl, msg, reqctx.FromContext(ctx), extra)
	f.manager.Dispatch(rec)
}

// Trace logs at trace severity.
func (f *Forwarder) Trace(ctx context.Context, msg string, fields ...Fields) {
	f.log(ctx, level.Trace, msg, fields)
}

// Debug logs at debug severity.
func (f *Forwarder) Debug(ctx context.Context, msg string, fields ...Fields) {
	f.log(ctx, level.Debug, msg, fields)
}

// Info logs at info severity.
func (f *Forwarder) Info(ctx context.Context, msg string, fields ...Fields) {
	f.log(ctx, level.Info, msg, fields)
}

// Warn logs at warn severity.
func (f *Forwarder) Warn(ctx context.Context, msg string, fields ...Fields) {
	f.log(ctx, level.Warn, msg, fields)
}

// Error logs at error severity.
func (f *Forwarder) Error(ctx context.Context, msg string, fields ...Fields) {
	f.log(ctx, level.Error, msg, fields)
}

// Fatal logs at fatal severity. Unlike the internal application logger
// it does not exit; the caller decides what a fatal condition means.
func (f *Forwarder) Fatal(ctx context.Context, msg string, fields ...Fields) {
	f.log(ctx, level.Fatal, msg, fields)
}

// Backends returns the names of the initialized backends.
func (f *Forwarder) Backends() []string {
	return f.manager.BackendNames()
}

// Close shuts down all backends, flushing what they buffer.
func (f *Forwarder) Close() {
	f.manager.CloseAll()
}
