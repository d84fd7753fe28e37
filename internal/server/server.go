package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/escalation"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/logging"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/metrics"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/monitor"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/orchestrator"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/store"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/ws"
)

// Server is the HTTP surface: notification intake, operator alert actions,
// delivery reports, provider webhooks and websocket endpoints.
type Server struct {
	orch      *orchestrator.Orchestrator
	engine    *escalation.Engine
	monitor   *monitor.Monitor
	analytics store.AnalyticsStore
	wsHub     *ws.Hub
	collector *metrics.Collector
	keyHashes []string

	http *http.Server
}

func New(addr string, orch *orchestrator.Orchestrator, engine *escalation.Engine, mon *monitor.Monitor, analytics store.AnalyticsStore, wsHub *ws.Hub, collector *metrics.Collector, keyHashes []string) *Server {
	s := &Server{
		orch:      orch,
		engine:    engine,
		monitor:   mon,
		analytics: analytics,
		wsHub:     wsHub,
		collector: collector,
		keyHashes: keyHashes,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.handleHealthz)
	r.GET("/metrics", gin.WrapH(collector.Handler()))

	// Provider callbacks authenticate out of band (signed URLs, provider
	// allowlists) so they sit outside the API key gate.
	r.POST("/webhooks/email", s.handleEmailWebhook)
	r.POST("/webhooks/sms", s.handleSMSWebhook)

	r.GET("/ws", s.handleUserSocket)
	r.GET("/ws/operator", s.handleOperatorSocket)

	api := r.Group("/api/v1", s.requireAPIKey())
	{
		api.POST("/notifications", s.handleCreateNotification)
		api.POST("/notifications/:id/read", s.handleMarkRead)
		api.POST("/notifications/:id/actioned", s.handleMarkActioned)

		api.GET("/alerts", s.handleListAlerts)
		api.GET("/alerts/history", s.handleAlertHistory)
		api.GET("/alerts/stats", s.handleAlertStats)
		api.POST("/alerts/:id/acknowledge", s.handleAcknowledge)
		api.POST("/alerts/:id/resolve", s.handleResolve)

		api.GET("/monitoring/status", s.handleMonitoringStatus)
		api.GET("/monitoring/thresholds", s.handleGetThresholds)
		api.PUT("/monitoring/thresholds", s.handleSetThresholds)

		api.GET("/escalation/rules", s.handleListRules)
		api.PUT("/escalation/rules/:type", s.handleSetRule)

		api.GET("/reports/delivery", s.handleDeliveryReport)
	}

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	log.Info("http server listening",
		slog.String("code", "HTTP_START"),
		slog.String("addr", s.http.Addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("http server shutting down", slog.String("code", "HTTP_STOP"))
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.FromContext(c.Request.Context()).Debug("request",
			slog.String("code", "HTTP_REQ"),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("took", time.Since(start)))
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
