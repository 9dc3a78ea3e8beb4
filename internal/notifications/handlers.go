package notifications

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/atelier/internal/auth"
	"github.com/atelierhq/atelier/internal/logging"
)

// Handlers provides HTTP endpoints for user notifications.
type Handlers struct {
	service *Service
}

// NewHandlers creates notification HTTP handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// ListByUser handles GET /v1/users/:id/notifications
// Users can only read their own notifications.
func (h *Handlers) ListByUser(c *gin.Context) {
	userID := c.Param("id")
	if auth.UserID(c) != userID {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "You can only read your own notifications.",
		})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	items, err := h.service.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		logging.L(c.Request.Context()).Error("notification list failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list notifications.",
		})
		return
	}
	if items == nil {
		items = []*Notification{}
	}

	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

// MarkRead handles POST /v1/notifications/:id/read
func (h *Handlers) MarkRead(c *gin.Context) {
	err := h.service.MarkRead(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Unknown notification.",
			})
			return
		}
		logging.L(c.Request.Context()).Error("notification mark read failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to mark notification read.",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"read": true})
}
