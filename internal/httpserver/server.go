// Package httpserver serves the scrape endpoint and the health API.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/netobserv-lab/gnmi-exporter/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server exposes /metrics for Prometheus plus a small JSON API for
// probes and operators.
type Server struct {
	addr      string
	registry  *prometheus.Registry
	health    model.HealthSource
	logger    *zap.Logger
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates the HTTP server. The registry holds only the
// telemetry collector; Go runtime metrics are deliberately absent.
func NewServer(addr string, registry *prometheus.Registry, health model.HealthSource, logger *zap.Logger) *Server {
	if addr == "" {
		addr = "0.0.0.0:9273"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:     addr,
		registry: registry,
		health:   health,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	s.registerRoutes(r)

	s.server = &http.Server{
		Handler:           r,
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()
	s.logger.Info("http server listening", zap.String("addr", s.addr))

	go s.server.Serve(listener)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) registerRoutes(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	r.GET("/api/health", s.handleHealth)
	r.GET("/api/targets", s.handleTargets)
}

// handleHealth reports aggregate session health. It returns 503 only
// when no target is making progress, so a single flapping device never
// fails the probe.
func (s *Server) handleHealth(c *gin.Context) {
	health := s.health.Health()

	states := make(map[string]int)
	healthy := 0
	for _, h := range health {
		states[h.StateName]++
		switch h.State {
		case model.StateStreaming, model.StateSyncing, model.StateConnecting, model.StateIdle:
			healthy++
		}
	}

	status := http.StatusOK
	text := "ok"
	if len(health) > 0 && healthy == 0 {
		status = http.StatusServiceUnavailable
		text = "degraded"
	}

	c.JSON(status, gin.H{
		"status":  text,
		"uptime":  time.Since(s.startTime).String(),
		"targets": len(health),
		"states":  states,
	})
}

func (s *Server) handleTargets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"targets": s.health.Health()})
}
