package httpserver

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/probe/internal/model"
	"github.com/tinytelemetry/probe/internal/runner"
)

// ProgressSource provides the live view of the current run.
type ProgressSource interface {
	Snapshot() runner.Progress
}

// Server exposes run progress and the run index over HTTP.
type Server struct {
	addr      string
	progress  ProgressSource
	runs      model.RunReader
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a status API server. runs may be nil when no run index is
// configured; the run endpoints then answer 503.
func NewServer(addr string, progress ProgressSource, runs model.RunReader) *Server {
	if addr == "" {
		addr = "127.0.0.1:3300"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		progress:  progress,
		runs:      runs,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/progress", s.handleProgress)
	r.GET("/api/runs", s.handleRuns)
	r.GET("/api/runs/:id/latency", s.handleRunLatency)
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.routes(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.addr = listener.Addr().String()
	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Addr returns the listen address, resolved once Start has run.
func (s *Server) Addr() string {
	return s.addr
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	p := s.progress.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).String(),
		"active":    p.Active,
		"processed": p.Processed,
	})
}

func (s *Server) handleProgress(c *gin.Context) {
	c.JSON(http.StatusOK, s.progress.Snapshot())
}

func (s *Server) handleRuns(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run index disabled"})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	runs, err := s.runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}
	if runs == nil {
		runs = []model.RunRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

func (s *Server) handleRunLatency(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run index disabled"})
		return
	}
	id := c.Param("id")

	stats, err := s.runs.LatencyStats(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read latency stats"})
		return
	}
	errs, err := s.runs.ErrorBreakdown(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read error breakdown"})
		return
	}
	if errs == nil {
		errs = []model.ErrorCount{}
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":  id,
		"latency": stats,
		"errors":  errs,
	})
}
