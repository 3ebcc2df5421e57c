// Package api exposes the translation pipeline over HTTP: a one-shot batch
// endpoint, a WebSocket streaming endpoint, and the cache administration
// surface used by debug tooling.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/lingobridge/lingobridge/internal/api/middleware"
	"github.com/lingobridge/lingobridge/internal/cache"
	"github.com/lingobridge/lingobridge/internal/config"
	"github.com/lingobridge/lingobridge/internal/logging"
	"github.com/lingobridge/lingobridge/internal/translate"
)

// Server is the HTTP front of the service.
type Server struct {
	engine  *gin.Engine
	server  *http.Server
	store   *config.Store
	service *translate.Service
	cache   *cache.TranslationCache
}

// NewServer wires routes and middleware. The config store is read per
// request so hot reloads take effect without a restart.
func NewServer(store *config.Store, service *translate.Service, translationCache *cache.TranslationCache) *Server {
	cfg := store.Load()
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(logging.GinLogger())
	engine.Use(logging.GinRecovery())
	engine.Use(corsMiddleware(store))
	engine.Use(middleware.PrometheusMiddleware())

	s := &Server{
		engine:  engine,
		store:   store,
		service: service,
		cache:   translationCache,
		server: &http.Server{
			Addr:    cfg.Addr(),
			Handler: engine,
		},
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", middleware.MetricsHandler())

	v1 := s.engine.Group("/v1")
	v1.POST("/translate", s.handleTranslate)
	v1.GET("/translate/stream", s.handleTranslateStream)
	v1.GET("/cache/stats", s.handleCacheStats)
	v1.GET("/cache/entries", s.handleCacheEntries)
	v1.DELETE("/cache", s.handleCacheClear)
}

// Handler exposes the engine for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start blocks serving requests until Stop is called.
func (s *Server) Start() error {
	log.Infof("API server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	log.Debug("stopping API server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// corsMiddleware adds CORS headers on every response. The allow list comes
// from the active config snapshot; an empty list allows any origin.
func corsMiddleware(store *config.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := strings.TrimSpace(c.GetHeader("Origin"))

		var allowOrigins []string
		if cfg := store.Load(); cfg != nil {
			allowOrigins = cfg.CORS.AllowOrigins
		}

		allowedOrigin := ""
		if origin != "" {
			switch {
			case len(allowOrigins) == 0:
				allowedOrigin = "*"
			case originAllowed(allowOrigins, origin):
				allowedOrigin = origin
			}
		}

		if allowedOrigin != "" {
			c.Header("Access-Control-Allow-Origin", allowedOrigin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "*")
			if allowedOrigin != "*" {
				c.Header("Vary", "Origin")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func originAllowed(allowOrigins []string, origin string) bool {
	for _, allowed := range allowOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "" {
			continue
		}
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
