package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/orchestrator"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/store"
)

func (s *Server) handleCreateNotification(c *gin.Context) {
	var spec orchestrator.CreateSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	id, err := s.orch.CreateNotification(c.Request.Context(), spec)
	if err != nil {
		if errors.Is(err, orchestrator.ErrInvalidSpec) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create notification"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id})
}

type engagementRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (s *Server) handleMarkRead(c *gin.Context) {
	var req engagementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	if err := s.orch.MarkRead(c.Request.Context(), c.Param("id"), req.UserID); err != nil {
		respondStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

func (s *Server) handleMarkActioned(c *gin.Context) {
	var req engagementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	if err := s.orch.MarkActioned(c.Request.Context(), c.Param("id"), req.UserID); err != nil {
		respondStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "actioned"})
}

// emailWebhook is the delivery status callback posted by the email provider.
type emailWebhook struct {
	MessageID string `json:"message_id" binding:"required"`
	Event     string `json:"event" binding:"required"`
	Reason    string `json:"reason"`
}

func (s *Server) handleEmailWebhook(c *gin.Context) {
	var hook emailWebhook
	if err := c.ShouldBindJSON(&hook); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message_id and event are required"})
		return
	}
	err := s.orch.HandleProviderStatus(c.Request.Context(), domain.ChannelEmail, hook.MessageID, hook.Event, hook.Reason)
	if err != nil {
		respondStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}

type smsWebhook struct {
	MessageID string `json:"message_id" binding:"required"`
	Status    string `json:"status" binding:"required"`
	Error     string `json:"error"`
}

func (s *Server) handleSMSWebhook(c *gin.Context) {
	var hook smsWebhook
	if err := c.ShouldBindJSON(&hook); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message_id and status are required"})
		return
	}
	err := s.orch.HandleProviderStatus(c.Request.Context(), domain.ChannelSMS, hook.MessageID, hook.Status, hook.Error)
	if err != nil {
		respondStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}

func respondStoreErr(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
