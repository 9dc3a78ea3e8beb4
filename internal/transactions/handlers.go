package transactions

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/atelier/internal/logging"
)

// Handlers provides admin HTTP endpoints for seeding transaction status.
type Handlers struct {
	service *Service
}

// NewHandlers creates transaction HTTP handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRequest seeds or replaces a transaction record.
type RegisterRequest struct {
	Ref            string `json:"ref" binding:"required"`
	Kind           Kind   `json:"kind" binding:"required"`
	CustomerID     string `json:"customerId" binding:"required"`
	CounterpartyID string `json:"counterpartyId" binding:"required"`
	Status         string `json:"status" binding:"required"`
}

// Register handles POST /v1/admin/transactions
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	tx, err := h.service.Register(c.Request.Context(), req.Ref, req.Kind, req.CustomerID, req.CounterpartyID, req.Status)
	if err != nil {
		if errors.Is(err, ErrUnknownStatus) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "unknown_status",
				"message": "Status is not valid for this transaction kind.",
			})
			return
		}
		logging.L(c.Request.Context()).Error("transaction register failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to register transaction.",
		})
		return
	}

	c.JSON(http.StatusOK, tx)
}

// SetStatusRequest transitions a transaction's status.
type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// SetStatus handles POST /v1/admin/transactions/:ref/status
func (h *Handlers) SetStatus(c *gin.Context) {
	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	tx, err := h.service.SetStatus(c.Request.Context(), c.Param("ref"), req.Status)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Unknown transaction.",
			})
		case errors.Is(err, ErrUnknownStatus):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "unknown_status",
				"message": "Status is not valid for this transaction kind.",
			})
		default:
			logging.L(c.Request.Context()).Error("transaction status update failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to update status.",
			})
		}
		return
	}

	c.JSON(http.StatusOK, tx)
}

// Get handles GET /v1/admin/transactions/:ref
func (h *Handlers) Get(c *gin.Context) {
	tx, err := h.service.Get(c.Request.Context(), c.Param("ref"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Unknown transaction.",
			})
			return
		}
		logging.L(c.Request.Context()).Error("transaction lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to look up transaction.",
		})
		return
	}

	c.JSON(http.StatusOK, tx)
}
