package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/escalation"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/monitor"
)

func (s *Server) handleListAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alerts": s.engine.ActiveAlerts()})
}

func (s *Server) handleAlertHistory(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
			return
		}
		limit = n
	}
	alerts, err := s.engine.History(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (s *Server) handleAlertStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Statistics())
}

type alertActionRequest struct {
	By    string `json:"by" binding:"required"`
	Notes string `json:"notes"`
}

func (s *Server) handleAcknowledge(c *gin.Context) {
	var req alertActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "by is required"})
		return
	}
	alert, err := s.engine.Acknowledge(c.Request.Context(), c.Param("id"), req.By, req.Notes)
	if err != nil {
		respondAlertErr(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (s *Server) handleResolve(c *gin.Context) {
	var req alertActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "by is required"})
		return
	}
	alert, err := s.engine.Resolve(c.Request.Context(), c.Param("id"), req.By, req.Notes)
	if err != nil {
		respondAlertErr(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

func respondAlertErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, escalation.ErrAlertNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
	case errors.Is(err, escalation.ErrAlreadyAcknowledged):
		c.JSON(http.StatusConflict, gin.H{"error": "alert already acknowledged"})
	case errors.Is(err, escalation.ErrAlreadyResolved):
		c.JSON(http.StatusConflict, gin.H{"error": "alert already resolved"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (s *Server) handleMonitoringStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.Status())
}

func (s *Server) handleGetThresholds(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.GetThresholds())
}

func (s *Server) handleSetThresholds(c *gin.Context) {
	var req monitor.Thresholds
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed thresholds"})
		return
	}
	c.JSON(http.StatusOK, s.monitor.SetThresholds(req))
}

func (s *Server) handleListRules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rules": s.engine.Rules()})
}

func (s *Server) handleSetRule(c *gin.Context) {
	var rule domain.EscalationRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed rule"})
		return
	}
	t := domain.AlertType(c.Param("type"))
	if err := s.engine.SetRule(t, rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"type": t, "rule": rule})
}

// handleDeliveryReport returns aggregate and hourly delivery statistics over
// an arbitrary window, defaulting to the trailing 24 hours.
func (s *Server) handleDeliveryReport(c *gin.Context) {
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC 3339"})
			return
		}
		from = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC 3339"})
			return
		}
		to = t
	}
	if !from.Before(to) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must precede to"})
		return
	}

	window, err := s.analytics.Window(c.Request.Context(), from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}
	trend, err := s.analytics.Trend(c.Request.Context(), from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trend"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"window": window, "trend": trend})
}
