// Package dispute implements the dispute resolution engine for
// marketplace transactions.
//
// A dispute attaches to exactly one order or customization request and
// moves through three stages: a 48-hour negotiation window where the
// parties can settle with a partial refund offer, admin review once
// that window passes (or when negotiation fails), and resolved. Stages
// only move forward. Funds held in escrow move exactly once, when a
// resolution is applied.
package dispute

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Validation errors.
var (
	ErrBothRefs            = errors.New("dispute cannot reference both an order and a customization request")
	ErrNoRef               = errors.New("dispute must reference an order or a customization request")
	ErrCategoryPhase       = errors.New("category does not match the transaction type")
	ErrDescriptionTooShort = errors.New("description must be at least 20 characters")
	ErrTooManyImages       = errors.New("at most 5 evidence images are allowed")
	ErrTooManyVideos       = errors.New("at most 1 evidence video is allowed")
	ErrInvalidOutcome      = errors.New("unknown resolution outcome")
	ErrReasonRequired      = errors.New("a resolution reason is required")
)

// Eligibility errors.
var (
	ErrNotEligible         = errors.New("transaction is not eligible for a dispute")
	ErrOpenDisputeExists   = errors.New("transaction already has an open dispute")
	ErrFilingWindowClosed  = errors.New("the 5-day filing window has closed")
	ErrStatusNotQualifying = errors.New("transaction status does not allow disputes")
)

// State conflict errors.
var (
	ErrNotFound           = errors.New("dispute not found")
	ErrInvalidStage       = errors.New("operation not allowed in the dispute's current stage")
	ErrAlreadyResolved    = errors.New("dispute is already resolved")
	ErrNoPendingOffer     = errors.New("dispute has no pending offer")
	ErrPendingOfferExists = errors.New("dispute already has a pending offer")
	ErrInvalidOfferAmount = errors.New("offer amount must be positive and within the escrow balance")
	ErrVersionConflict    = errors.New("dispute was modified concurrently")
)

// Authorization errors.
var (
	ErrNotParty = errors.New("caller is not a party to this dispute")
	ErrNotFiler = errors.New("only the filing party may do this")
	ErrOwnOffer = errors.New("cannot respond to your own offer")
)

// Ledger errors.
var ErrLedgerUnavailable = errors.New("escrow ledger unavailable, retry later")

// NegotiationWindow is how long the parties have to settle before a
// dispute escalates to admin review.
const NegotiationWindow = 48 * time.Hour

// FilingWindow is how long after the last qualifying status change a
// dispute may be filed. The boundary itself is inclusive.
const FilingWindow = 120 * time.Hour

// Stage is the dispute's position in its lifecycle. Stages are monotonic.
type Stage string

const (
	StageNegotiation Stage = "negotiation"
	StageAdminReview Stage = "admin_review"
	StageResolved    Stage = "resolved"
)

// Status is the coarse open/closed flag used for listing and the
// one-open-dispute-per-transaction rule.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Category classifies the complaint. Design categories apply to
// customization requests, shipping categories to orders.
type Category string

const (
	CategoryDesignNotAsAgreed    Category = "design_not_as_agreed"
	CategoryDesignUnresponsive   Category = "design_unresponsive"
	CategoryDesignQuality        Category = "design_quality"
	CategoryDesignDeadlineMissed Category = "design_deadline_missed"

	CategoryShippingDamaged     Category = "shipping_damaged"
	CategoryShippingNotReceived Category = "shipping_not_received"
	CategoryShippingWrongItem   Category = "shipping_wrong_item"
	CategoryShippingCounterfeit Category = "shipping_counterfeit"
)

var designCategories = map[Category]bool{
	CategoryDesignNotAsAgreed:    true,
	CategoryDesignUnresponsive:   true,
	CategoryDesignQuality:        true,
	CategoryDesignDeadlineMissed: true,
}

var shippingCategories = map[Category]bool{
	CategoryShippingDamaged:     true,
	CategoryShippingNotReceived: true,
	CategoryShippingWrongItem:   true,
	CategoryShippingCounterfeit: true,
}

// Outcome is the final disposition of a resolved dispute.
type Outcome string

const (
	OutcomeRefunded      Outcome = "refunded"
	OutcomePartialRefund Outcome = "partial_refund"
	OutcomeReleased      Outcome = "released"
	OutcomeDismissed     Outcome = "dismissed"
	OutcomeWithdrawn     Outcome = "withdrawn"
)

// OfferStatus is the state of a partial refund offer.
type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferRejected OfferStatus = "rejected"
)

// TransactionRef points a dispute at exactly one transaction.
type TransactionRef struct {
	OrderID                string `json:"orderId,omitempty"`
	CustomizationRequestID string `json:"customizationRequestId,omitempty"`
}

// Validate enforces the exactly-one rule.
func (r TransactionRef) Validate() error {
	if r.OrderID != "" && r.CustomizationRequestID != "" {
		return ErrBothRefs
	}
	if r.OrderID == "" && r.CustomizationRequestID == "" {
		return ErrNoRef
	}
	return nil
}

// Ref returns the canonical transaction reference string.
func (r TransactionRef) Ref() string {
	if r.OrderID != "" {
		return r.OrderID
	}
	return r.CustomizationRequestID
}

// IsOrder reports whether the reference points at an order.
func (r TransactionRef) IsOrder() bool {
	return r.OrderID != ""
}

// CategoryAllowed checks the category against the transaction phase.
func (r TransactionRef) CategoryAllowed(c Category) bool {
	if r.IsOrder() {
		return shippingCategories[c]
	}
	return designCategories[c]
}

// Offer is a partial refund proposed by one party during negotiation.
// Amounts flow toward the customer regardless of who proposes.
type Offer struct {
	ProposedBy  string      `json:"proposedBy"`
	AmountCents int64       `json:"amountCents"`
	Status      OfferStatus `json:"status"`
	ProposedAt  time.Time   `json:"proposedAt"`
	RespondedAt *time.Time  `json:"respondedAt,omitempty"`
}

// Resolution is the final disposition record. It exists only on
// resolved disputes; the transition methods are the sole way to set it.
type Resolution struct {
	Outcome            Outcome   `json:"outcome"`
	Reason             string    `json:"reason"`
	PartialRefundCents int64     `json:"partialRefundCents,omitempty"`
	StrikeIssued       bool      `json:"strikeIssued"`
	AdminNotes         string    `json:"adminNotes,omitempty"`
	ResolvedBy         string    `json:"resolvedBy,omitempty"`
	ResolvedAt         time.Time `json:"resolvedAt"`
}

// Dispute is the aggregate root.
type Dispute struct {
	ID             string         `json:"id"`
	Ref            TransactionRef `json:"ref"`
	Category       Category       `json:"category"`
	Description    string         `json:"description"`
	EvidenceImages []string       `json:"evidenceImages,omitempty"`
	EvidenceVideo  string         `json:"evidenceVideo,omitempty"`

	FiledBy string `json:"filedBy"`
	Against string `json:"against"`

	Stage               Stage       `json:"stage"`
	Status              Status      `json:"status"`
	NegotiationDeadline time.Time   `json:"negotiationDeadline"`
	Offer               *Offer      `json:"offer,omitempty"`
	Resolution          *Resolution `json:"resolution,omitempty"`

	// Version is the optimistic concurrency token. Every successful
	// update increments it; stale writers get ErrVersionConflict.
	Version int `json:"version"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsTerminal reports whether the dispute has reached its final stage.
func (d *Dispute) IsTerminal() bool {
	return d.Stage == StageResolved
}

// IsParty reports whether userID is one of the two dispute parties.
func (d *Dispute) IsParty(userID string) bool {
	return userID == d.FiledBy || userID == d.Against
}

// Counterparty returns the other side of the dispute.
func (d *Dispute) Counterparty(userID string) string {
	if userID == d.FiledBy {
		return d.Against
	}
	return d.FiledBy
}

// PendingOffer returns the offer if one is awaiting a response.
func (d *Dispute) PendingOffer() *Offer {
	if d.Offer != nil && d.Offer.Status == OfferPending {
		return d.Offer
	}
	return nil
}

// Overdue reports whether the negotiation deadline has passed.
// The deadline instant itself still counts as within the window.
func (d *Dispute) Overdue(now time.Time) bool {
	return d.Stage == StageNegotiation && now.After(d.NegotiationDeadline)
}

// escalate moves a negotiation-stage dispute to admin review. The
// pending offer, if any, is left untouched; the admin sees it.
func (d *Dispute) escalate(now time.Time) {
	d.Stage = StageAdminReview
	d.UpdatedAt = now
}

// resolve stamps the dispute with its final disposition.
func (d *Dispute) resolve(res Resolution) {
	d.Stage = StageResolved
	d.Status = StatusClosed
	d.Resolution = &res
	d.UpdatedAt = res.ResolvedAt
}

// FileRequest carries the filing parameters.
type FileRequest struct {
	OrderID                string   `json:"orderId"`
	CustomizationRequestID string   `json:"customizationRequestId"`
	Category               Category `json:"category" binding:"required"`
	Description            string   `json:"description" binding:"required"`
	EvidenceImages         []string `json:"evidenceImages"`
	EvidenceVideos         []string `json:"evidenceVideos"`
}

// validate checks everything that doesn't need the transaction registry.
func (req *FileRequest) validate() (TransactionRef, error) {
	ref := TransactionRef{
		OrderID:                strings.TrimSpace(req.OrderID),
		CustomizationRequestID: strings.TrimSpace(req.CustomizationRequestID),
	}
	if err := ref.Validate(); err != nil {
		return ref, err
	}
	if !ref.CategoryAllowed(req.Category) {
		return ref, ErrCategoryPhase
	}
	if len(strings.TrimSpace(req.Description)) < 20 {
		return ref, ErrDescriptionTooShort
	}
	if len(req.EvidenceImages) > 5 {
		return ref, ErrTooManyImages
	}
	if len(req.EvidenceVideos) > 1 {
		return ref, ErrTooManyVideos
	}
	return ref, nil
}

// video returns the single evidence video URL, if any.
func (req *FileRequest) video() string {
	if len(req.EvidenceVideos) == 1 {
		return req.EvidenceVideos[0]
	}
	return ""
}

// ListFilter selects disputes for listing.
type ListFilter struct {
	FiledBy string
	Party   string // matches either side
	Stage   Stage
	Status  Status
	// Cursor pagination: only disputes created strictly before
	// (CursorCreatedAt, CursorID) are returned, newest first.
	CursorCreatedAt *time.Time
	CursorID        string
	Limit           int
}

// Store persists disputes.
type Store interface {
	Create(ctx context.Context, d *Dispute) error
	Get(ctx context.Context, id string) (*Dispute, error)
	// Update applies d only if the stored version equals expectedVersion,
	// then increments the version. Returns ErrVersionConflict otherwise.
	Update(ctx context.Context, d *Dispute, expectedVersion int) error
	// FindOpenByTransaction returns the open dispute for a transaction
	// ref, or ErrNotFound when there is none.
	FindOpenByTransaction(ctx context.Context, transactionRef string) (*Dispute, error)
	// List returns up to filter.Limit+1 disputes so callers can compute
	// a next-page cursor.
	List(ctx context.Context, filter ListFilter) ([]*Dispute, error)
	// ListOverdue returns open negotiation-stage disputes whose deadline
	// is before the given instant.
	ListOverdue(ctx context.Context, before time.Time, limit int) ([]*Dispute, error)
	// OpenTransactionRefs returns the transaction refs of all open disputes.
	OpenTransactionRefs(ctx context.Context) ([]string, error)
}
