// Package statusserver is the optional HTTP control surface (§4.F): a
// minimal gin router exposing liveness, run progress, and Prometheus
// metrics. The engine runs identically with it disabled, matching
// spec.md's CLI/batch-first external interface.
package statusserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sdamache/memorybench/pkg/executor"
	"github.com/sdamache/memorybench/pkg/plan"
	"github.com/sdamache/memorybench/pkg/version"
)

// Server wraps a gin router bound to the current run's plan and progress
// tracker. It is read-only: the executor is the sole writer of the
// underlying progress counters.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server

	plan     *plan.Plan
	progress *executor.Progress
}

// New builds a Server for the given run. registry is the Prometheus
// registerer the executor's Metrics were constructed against; pass the
// same one so GET /metrics reports the counters the executor is updating.
func New(addr string, p *plan.Plan, progress *executor.Progress, registry *prometheus.Registry) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:   router,
		plan:     p,
		progress: progress,
	}

	router.GET("/healthz", s.handleHealthz)
	router.GET("/status", s.handleStatus)
	if registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start runs the HTTP server in a goroutine; call Shutdown to stop it.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("status server stopped unexpectedly", "error", err)
		}
	}()
	slog.Info("status server listening", "addr", s.httpServer.Addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Full()})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"run_id":         s.plan.RunID,
		"timestamp":      s.plan.Timestamp,
		"concurrency":    s.plan.Concurrency,
		"eligible_count": s.plan.EligibleCount,
		"skipped_count":  s.plan.SkippedCount,
		"entries":        s.progress.Snapshot(),
	})
}

// Addr returns the bound address, for logging and tests.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler exposes the underlying router for tests that want to drive it
// with httptest.NewServer without binding a real port.
func (s *Server) Handler() http.Handler {
	return s.router
}
