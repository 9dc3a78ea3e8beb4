package reputation

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/atelier/internal/logging"
)

// Handlers provides HTTP endpoints for strike queries.
type Handlers struct {
	service *Service
}

// NewHandlers creates reputation HTTP handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// ListByUser handles GET /v1/users/:id/strikes
// Strike history is visible to any authenticated marketplace user,
// the same way a seller rating would be.
func (h *Handlers) ListByUser(c *gin.Context) {
	userID := c.Param("id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	strikes, err := h.service.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		logging.L(c.Request.Context()).Error("strike list failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list strikes.",
		})
		return
	}
	if strikes == nil {
		strikes = []*Strike{}
	}

	count, err := h.service.CountByUser(c.Request.Context(), userID)
	if err != nil {
		logging.L(c.Request.Context()).Error("strike count failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to count strikes.",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":  userID,
		"total":   count,
		"strikes": strikes,
	})
}
