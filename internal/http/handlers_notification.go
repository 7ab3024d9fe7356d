// README: Notification inbox endpoints.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"leaflift/internal/types"
)

func (s *Server) handleListNotifications(c *gin.Context) {
	userID := types.ID(c.Param("userId"))
	if userID == "" {
		badRequest(c, "userId is required")
		return
	}
	list, err := s.notifications.ListByUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

func (s *Server) handleMarkNotificationRead(c *gin.Context) {
	if err := s.notifications.MarkRead(c.Request.Context(), types.ID(c.Param("id"))); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
