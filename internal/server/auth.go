package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/security"
)

// requireAPIKey validates the x-api-key header against the configured key
// hashes. With no hashes configured the gate is open, for local development.
func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(s.keyHashes) == 0 {
			c.Next()
			return
		}
		key := c.GetHeader("x-api-key")
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}
		if !s.matchAnyKey(key) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}
		c.Next()
	}
}

func (s *Server) matchAnyKey(key string) bool {
	if key == "" {
		return false
	}
	for _, hash := range s.keyHashes {
		if security.MatchKey(key, hash) {
			return true
		}
	}
	return false
}
