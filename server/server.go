// Package server exposes the orchestration pipeline over HTTP: a
// streaming chat endpoint, a health check reporting circuit breaker
// state, and prometheus metrics.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskpilot/taskpilot/breaker"
	"github.com/taskpilot/taskpilot/config"
	"github.com/taskpilot/taskpilot/observability"
	"github.com/taskpilot/taskpilot/orchestrator"
	"github.com/taskpilot/taskpilot/request"
	"github.com/taskpilot/taskpilot/stream"
)

// chatRequest is the POST /chat body.
type chatRequest struct {
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// Server wires the HTTP surface to the orchestrator.
type Server struct {
	engine           *gin.Engine
	admitter         *request.Admitter
	orch             *orchestrator.Orchestrator
	toolBreaker      *breaker.Breaker
	reasoningBreaker *breaker.Breaker
	streamCfg        config.StreamConfig
	logger           *slog.Logger
	started          time.Time
}

// New builds the HTTP server around an orchestrator and the two
// dependency breakers it reports on.
func New(orch *orchestrator.Orchestrator, admitter *request.Admitter,
	toolBreaker, reasoningBreaker *breaker.Breaker,
	streamCfg config.StreamConfig, logger *slog.Logger) *Server {

	s := &Server{
		engine:           gin.New(),
		admitter:         admitter,
		orch:             orch,
		toolBreaker:      toolBreaker,
		reasoningBreaker: reasoningBreaker,
		streamCfg:        streamCfg,
		logger:           logger,
		started:          time.Now(),
	}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.POST("/chat", s.handleChat)
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Run blocks serving HTTP on addr.
func (s *Server) Run(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	return s.engine.Run(addr)
}

// handleChat admits the request, then streams orchestration events as
// SSE until a terminal event or client disconnect. Admission failures
// are reported as plain JSON before any stream bytes are written.
func (s *Server) handleChat(c *gin.Context) {
	var body chatRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		observability.RecordRequestRejected("malformed_body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	requestID := body.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	req, err := s.admitter.Admit(body.Message)
	if err != nil {
		reason := "invalid"
		var admErr *request.AdmissionError
		if errors.As(err, &admErr) {
			reason = admErr.Reason.String()
		}
		observability.RecordRequestRejected(reason)
		s.logger.Info("request rejected", "request_id", requestID, "reason", reason)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      err.Error(),
			"error_code": reason,
			"request_id": requestID,
		})
		return
	}
	observability.RecordRequestAccepted()

	rc := request.Tag(req, requestID, s.logger)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Request-ID", rc.ID)
	c.Status(http.StatusOK)

	observability.StreamOpened()
	start := time.Now()
	defer func() {
		observability.StreamClosed()
		observability.RecordStreamDuration(time.Since(start).Seconds())
	}()

	ctx := c.Request.Context()
	sink := stream.NewSink(s.streamCfg.EventBuffer, rc.ID, rc.Logger)

	go s.orch.Run(ctx, rc, sink)

	if err := stream.Pump(ctx, c.Writer, c.Writer, sink.Events(), s.streamCfg.HeartbeatInterval); err != nil {
		// Client disconnect: cancel the run and let the orchestrator
		// unwind without a terminal event.
		sink.Cancel()
		rc.Logger.Info("stream closed by client", "error", err)
		return
	}
	rc.Logger.Debug("stream completed", "duration_ms", time.Since(start).Milliseconds())
}

// handleHealth reports service liveness and the state of both
// dependency breakers. Any non-closed breaker degrades the status.
func (s *Server) handleHealth(c *gin.Context) {
	tool := s.toolBreaker.Snapshot()
	reason := s.reasoningBreaker.Snapshot()

	status := "ok"
	if tool.State != "closed" || reason.State != "closed" {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         status,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"circuit_breakers": gin.H{
			"tool_backend":      tool,
			"reasoning_backend": reason,
		},
	})
}
