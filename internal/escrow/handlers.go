package escrow

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/atelier/internal/logging"
)

// Handlers provides HTTP endpoints for escrow operations.
type Handlers struct {
	service *Service
}

// NewHandlers creates escrow HTTP handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// DepositRequest is the admin deposit payload.
type DepositRequest struct {
	TransactionRef string `json:"transactionRef" binding:"required"`
	AmountCents    int64  `json:"amountCents" binding:"required"`
}

// Deposit handles POST /v1/admin/escrow/deposits
func (h *Handlers) Deposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	acct, err := h.service.Deposit(c.Request.Context(), req.TransactionRef, req.AmountCents)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_amount",
				"message": "Deposit amount must be positive.",
			})
		case errors.Is(err, ErrAlreadyReleased):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "already_released",
				"message": "Escrow for this transaction has already been released.",
			})
		default:
			logging.L(c.Request.Context()).Error("escrow deposit failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to record deposit.",
			})
		}
		return
	}

	c.JSON(http.StatusOK, acct)
}

// GetBalance handles GET /v1/escrow/:ref/balance
func (h *Handlers) GetBalance(c *gin.Context) {
	ref := c.Param("ref")

	balance, err := h.service.Balance(c.Request.Context(), ref)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No escrow account for this transaction.",
			})
			return
		}
		logging.L(c.Request.Context()).Error("escrow balance lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to look up balance.",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactionRef": ref,
		"balanceCents":   balance,
	})
}
