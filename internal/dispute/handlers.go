package dispute

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/atelier/internal/auth"
	"github.com/atelierhq/atelier/internal/escrow"
	"github.com/atelierhq/atelier/internal/logging"
	"github.com/atelierhq/atelier/internal/pagination"
)

// Handlers provides HTTP endpoints for the dispute engine.
type Handlers struct {
	service *Service
}

// NewHandlers creates dispute HTTP handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// File handles POST /v1/disputes
func (h *Handlers) File(c *gin.Context) {
	var req FileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	d, err := h.service.File(c.Request.Context(), auth.UserID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// Get handles GET /v1/disputes/:id
func (h *Handlers) Get(c *gin.Context) {
	d, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !d.IsParty(auth.UserID(c)) && !auth.IsAdmin(c) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "Only the dispute parties may view this dispute.",
		})
		return
	}
	c.JSON(http.StatusOK, d)
}

// List handles GET /v1/disputes
//
// Non-admin callers only see disputes they are a party to.
func (h *Handlers) List(c *gin.Context) {
	filter := ListFilter{
		FiledBy: c.Query("filedBy"),
		Stage:   Stage(c.Query("stage")),
		Status:  Status(c.Query("status")),
	}
	if !auth.IsAdmin(c) {
		filter.Party = auth.UserID(c)
	} else if party := c.Query("party"); party != "" {
		filter.Party = party
	}

	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "The cursor parameter is not valid.",
		})
		return
	}
	if cursor != nil {
		filter.CursorCreatedAt = &cursor.CreatedAt
		filter.CursorID = cursor.ID
	}

	items, next, hasMore, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"disputes":   items,
		"nextCursor": next,
		"hasMore":    hasMore,
	})
}

// OfferRequest is the partial refund proposal payload.
type OfferRequest struct {
	AmountCents int64 `json:"amountCents" binding:"required"`
}

// ProposeOffer handles POST /v1/disputes/:id/offer
func (h *Handlers) ProposeOffer(c *gin.Context) {
	var req OfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	d, err := h.service.ProposeOffer(c.Request.Context(), c.Param("id"), auth.UserID(c), req.AmountCents)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// RespondRequest is the offer response payload.
type RespondRequest struct {
	Accept *bool `json:"accept" binding:"required"`
}

// RespondToOffer handles POST /v1/disputes/:id/offer/respond
func (h *Handlers) RespondToOffer(c *gin.Context) {
	var req RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	d, err := h.service.RespondToOffer(c.Request.Context(), c.Param("id"), auth.UserID(c), *req.Accept)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// Withdraw handles POST /v1/disputes/:id/withdraw
func (h *Handlers) Withdraw(c *gin.Context) {
	d, err := h.service.Withdraw(c.Request.Context(), c.Param("id"), auth.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// Resolve handles POST /v1/admin/disputes/:id/resolve
func (h *Handlers) Resolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}
	req.ResolvedBy = auth.UserID(c)

	d, err := h.service.Resolve(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// Stats handles GET /v1/admin/disputes/stats
func (h *Handlers) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// writeError maps engine errors to HTTP responses. Validation failures
// are 400, authorization 403, missing disputes 404, stage and version
// conflicts 409, eligibility rejections 422, ledger outages 502.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrBothRefs),
		errors.Is(err, ErrNoRef),
		errors.Is(err, ErrCategoryPhase),
		errors.Is(err, ErrDescriptionTooShort),
		errors.Is(err, ErrTooManyImages),
		errors.Is(err, ErrTooManyVideos),
		errors.Is(err, ErrInvalidOutcome),
		errors.Is(err, ErrReasonRequired),
		errors.Is(err, ErrInvalidOfferAmount),
		errors.Is(err, escrow.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": err.Error(),
		})

	case errors.Is(err, ErrNotParty),
		errors.Is(err, ErrNotFiler),
		errors.Is(err, ErrOwnOffer):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": err.Error(),
		})

	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Dispute not found.",
		})

	case errors.Is(err, ErrInvalidStage),
		errors.Is(err, ErrAlreadyResolved),
		errors.Is(err, ErrNoPendingOffer),
		errors.Is(err, ErrPendingOfferExists),
		errors.Is(err, ErrVersionConflict),
		errors.Is(err, escrow.ErrInsufficientBalance),
		errors.Is(err, escrow.ErrAllocationMismatch),
		errors.Is(err, escrow.ErrAlreadyReleased):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "conflict",
			"message": err.Error(),
		})

	// A disputed transaction with no escrow account is a caller-visible
	// state, not an internal failure.
	case errors.Is(err, escrow.ErrAccountNotFound):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "no_escrow_account",
			"message": "No escrow account exists for this transaction.",
		})

	case errors.Is(err, ErrNotEligible),
		errors.Is(err, ErrOpenDisputeExists),
		errors.Is(err, ErrFilingWindowClosed),
		errors.Is(err, ErrStatusNotQualifying):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "not_eligible",
			"message": err.Error(),
		})

	case errors.Is(err, ErrLedgerUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "ledger_unavailable",
			"message": "The escrow ledger is unavailable. Retry the same request.",
		})

	default:
		logging.L(c.Request.Context()).Error("dispute request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Something went wrong.",
		})
	}
}
