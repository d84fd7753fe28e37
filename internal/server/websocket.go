package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleUserSocket attaches a user's realtime notification stream.
func (s *Server) handleUserSocket(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	if err := s.wsHub.Serve(c.Writer, c.Request, userID, false); err != nil {
		// Serve replies with the upgrade failure itself.
		return
	}
}

// handleOperatorSocket attaches an operator console to the pipeline event
// stream. Operators authenticate with the same API key as the REST surface.
func (s *Server) handleOperatorSocket(c *gin.Context) {
	if len(s.keyHashes) > 0 {
		key := c.Query("api_key")
		if key == "" {
			key = c.GetHeader("x-api-key")
		}
		if !s.matchAnyKey(key) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}
	}
	operatorID := c.Query("operator_id")
	if operatorID == "" {
		operatorID = "operator"
	}
	_ = s.wsHub.Serve(c.Writer, c.Request, operatorID, true)
}
