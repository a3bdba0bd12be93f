// Package web assembles the storefront document server: probes, the access
// gate and the static document shell.
package web

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"pi-storefront/internal/common/config"
	"pi-storefront/internal/common/middleware"
	"pi-storefront/internal/features/gate"
	gatemw "pi-storefront/internal/features/gate/middleware"
	"pi-storefront/internal/platform/metrics"
)

const (
	serviceName = "pi-storefront"
	indexFile   = "index.html"
)

// HealthChecker is a dependency the readiness probe must reach.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewRouter builds the gin engine. checks maps a dependency name to its
// checker; an empty map makes the server ready as soon as it listens.
func NewRouter(cfg *config.Config, logger zerolog.Logger, checks map[string]HealthChecker) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.ErrorHandler(logger))
	router.Use(middleware.Logger(logger, gateLogFields))
	router.Use(metrics.Middleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Server.Origin}
	corsConfig.AllowMethods = []string{"GET", "HEAD", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Accept", middleware.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	g := gate.New(gate.Config{
		Enabled:        cfg.Gate.Enabled,
		PlatformMarker: cfg.Gate.PlatformMarker,
		ExemptPrefixes: cfg.Gate.ExemptPrefixes,
	})
	router.Use(gatemw.RequirePiBrowser(g, logger))

	setupProbes(router, checks)
	router.GET(metrics.Path, gin.WrapH(metrics.Handler()))

	shell := &shell{dir: cfg.Server.StaticDir, logger: logger}
	router.NoRoute(shell.serve)

	return router
}

// gateLogFields tags the access log line with the gate outcome. The logger
// runs before the gate, so the decision is present once c.Next returns.
func gateLogFields(c *gin.Context, ev *zerolog.Event) *zerolog.Event {
	d, ok := gatemw.DecisionFrom(c)
	if !ok {
		return ev
	}
	switch {
	case d.Err != nil:
		return ev.Str("gate", metrics.GateError)
	case d.Allow:
		return ev.Str("gate", metrics.GateAllow)
	default:
		return ev.Str("gate", metrics.GateRedirect).Str("gate_reason", d.RedirectReason)
	}
}

func setupProbes(router *gin.Engine, checks map[string]HealthChecker) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
			"service":   serviceName,
		})
	})

	// Liveness probe
	router.GET("/live", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// Readiness probe
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		for name, check := range checks {
			if err := check.HealthCheck(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unready",
					"error":   name + " unavailable",
					"details": err.Error(),
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "ready",
			"timestamp": time.Now().UTC(),
		})
	})
}

// shell serves files from dir and falls back to index.html so client-side
// routes resolve to the document shell.
type shell struct {
	dir    string
	logger zerolog.Logger
}

func (s *shell) serve(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	// Clean against "/" so the result cannot climb out of dir.
	name := filepath.Join(s.dir, filepath.FromSlash(path.Clean("/"+c.Request.URL.Path)))
	if info, err := os.Stat(name); err == nil && info.Mode().IsRegular() {
		c.File(name)
		return
	}

	index := filepath.Join(s.dir, indexFile)
	if _, err := os.Stat(index); err != nil {
		s.logger.Warn().Str("static_dir", s.dir).Msg("Document shell missing")
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	c.File(index)
}
