package activity

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/atelier/internal/logging"
)

// Handlers provides HTTP endpoints for the dispute activity trail.
type Handlers struct {
	service *Service
}

// NewHandlers creates activity HTTP handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// ListByDispute handles GET /v1/disputes/:id/activity
func (h *Handlers) ListByDispute(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	records, err := h.service.ListByDispute(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		logging.L(c.Request.Context()).Error("activity list failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list activity.",
		})
		return
	}
	if records == nil {
		records = []*Record{}
	}

	c.JSON(http.StatusOK, gin.H{"activity": records})
}
