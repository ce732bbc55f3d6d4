package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/MarcFord/netlog/internal/applog"
	"github.com/MarcFord/netlog/internal/config"
	"github.com/MarcFord/netlog/internal/iputil"
	"github.com/MarcFord/netlog/internal/version"
)

// Dependencies holds the dependencies needed by the server.
type Dependencies struct {
	Config *config.Config
	// AccessLog is the request logging middleware the server mounts on
	// every route. May be nil.
	AccessLog gin.HandlerFunc
}

// Server is the host HTTP application: health and version endpoints with
// the request logging middleware applied, plus CORS and per-IP rate
// limiting the way an embedding service would run it.
type Server struct {
	router    *gin.Engine
	config    *config.Config
	appLogger *applog.Logger
	httpSrv   *http.Server

	limiters   map[string]*rate.Limiter
	limiterMu  sync.Mutex
	rateLimit  rate.Limit
	burstLimit int
}

// NewServer creates a new server instance with its dependencies.
func NewServer(deps Dependencies) *Server {
	if deps.Config == nil {
		panic("server: Config dependency cannot be nil")
	}

	if deps.Config.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	if deps.Config.Server.CORS.Enabled {
		router.Use(corsMiddleware(deps.Config.Server.CORS.AllowedOrigins, deps.Config.Server.CORS.MaxAge))
	}
	if deps.AccessLog != nil {
		router.Use(deps.AccessLog)
	}

	s := &Server{
		router:    router,
		config:    deps.Config,
		appLogger: applog.Default(),
		limiters:  make(map[string]*rate.Limiter),
	}

	if deps.Config.Server.RequestLimits.RateLimit > 0 {
		// Requests per minute to requests per second
		s.rateLimit = rate.Limit(float64(deps.Config.Server.RequestLimits.RateLimit) / 60.0)
		s.burstLimit = deps.Config.Server.RequestLimits.RateLimit
		s.appLogger.Info("Rate limiting enabled: rate=%.2f req/sec, burst=%d", s.rateLimit, s.burstLimit)
	} else {
		s.rateLimit = rate.Inf
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.HEAD("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	s.router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, version.GetInfo())
	})

	if s.rateLimit != rate.Inf {
		s.router.Use(s.rateLimitMiddleware())
	}
}

// Router exposes the gin engine so an embedding application can add its
// own routes.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// rateLimitMiddleware limits requests per client IP.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	parsedTrustedProxies, err := iputil.ParseCIDRs(s.config.Server.TrustedProxies)
	if err != nil {
		s.appLogger.Error("Failed to parse trusted proxies for rate limiter: %v", err)
		return func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error (rate limiter config)"})
		}
	}

	return func(c *gin.Context) {
		ip := iputil.ClientIP(c.Request, parsedTrustedProxies, s.config.Server.ClientIPHeader)

		s.limiterMu.Lock()
		limiter, exists := s.limiters[ip]
		if !exists {
			limiter = rate.NewLimiter(s.rateLimit, s.burstLimit)
			s.limiters[ip] = limiter
		}
		s.limiterMu.Unlock()

		if !limiter.Allow() {
			s.appLogger.Info("Rate limit exceeded for IP: %s", ip)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}

		c.Next()
	}
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.appLogger.Info("Starting server on %s", addr)
	s.httpSrv = &http.Server{Addr: addr, Handler: s.router}
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// corsMiddleware creates a middleware for CORS.
func corsMiddleware(allowedOrigins []string, maxAge int) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		found := false
		for _, allowedOrigin := range allowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
				found = true
				break
			}
		}

		if !found {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusForbidden)
			} else {
				c.Next()
			}
			return
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if maxAge > 0 {
			c.Writer.Header().Set("Access-Control-Max-Age", strconv.Itoa(maxAge))
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
