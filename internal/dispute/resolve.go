package dispute

import (
	"context"
	"strings"

	"github.com/atelierhq/atelier/internal/escrow"
	"github.com/atelierhq/atelier/internal/metrics"
	"github.com/atelierhq/atelier/internal/traces"
)

// ResolveRequest carries an admin ruling.
type ResolveRequest struct {
	Outcome            Outcome `json:"outcome" binding:"required"`
	Reason             string  `json:"reason" binding:"required"`
	PartialRefundCents int64   `json:"partialRefundCents"`
	IssueStrike        bool    `json:"issueStrike"`
	AdminNotes         string  `json:"adminNotes"`
	ResolvedBy         string  `json:"-"`
}

func (req *ResolveRequest) validate() error {
	switch req.Outcome {
	case OutcomeRefunded, OutcomePartialRefund, OutcomeReleased, OutcomeDismissed:
	default:
		return ErrInvalidOutcome
	}
	if strings.TrimSpace(req.Reason) == "" {
		return ErrReasonRequired
	}
	if req.Outcome == OutcomePartialRefund && req.PartialRefundCents <= 0 {
		return ErrInvalidOfferAmount
	}
	return nil
}

// Resolve applies an admin ruling to a dispute under review.
//
// The funds move in two phases: first the escrow release, keyed by the
// dispute ID so a retry after a partial failure cannot pay twice, then
// the version-checked persist of the final state. A ledger failure
// leaves the dispute in admin review; the admin retries the same
// ruling and the release key dedupes the payout.
func (s *Service) Resolve(ctx context.Context, id string, req ResolveRequest) (*Dispute, error) {
	ctx, span := traces.StartSpan(ctx, "dispute.Resolve",
		traces.DisputeID(id), traces.Outcome(string(req.Outcome)))
	defer span.End()

	if err := req.validate(); err != nil {
		return nil, err
	}

	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.IsTerminal() {
		return nil, ErrAlreadyResolved
	}
	if d.Stage != StageAdminReview {
		return nil, ErrInvalidStage
	}

	span.SetAttributes(traces.TransactionRef(d.Ref.Ref()))

	// A release already recorded under the dispute's key means a prior
	// resolution attempt paid out and only the persist failed. The
	// retry skips the ledger phase; recomputing allocations against the
	// drained account would reject the ruling it already applied.
	released, err := s.alreadyReleased(ctx, d)
	if err != nil {
		return nil, err
	}
	if !released {
		allocs, err := s.resolutionAllocations(ctx, d, req)
		if err != nil {
			return nil, err
		}
		if allocs != nil {
			if err := s.release(ctx, d, allocs); err != nil {
				return nil, err
			}
		}
	}

	now := s.now().UTC()
	expected := d.Version
	d.resolve(Resolution{
		Outcome:            req.Outcome,
		Reason:             req.Reason,
		PartialRefundCents: req.PartialRefundCents,
		StrikeIssued:       req.IssueStrike,
		AdminNotes:         req.AdminNotes,
		ResolvedBy:         req.ResolvedBy,
		ResolvedAt:         now,
	})
	if err := s.store.Update(ctx, d, expected); err != nil {
		return nil, err
	}

	metrics.DisputesResolvedTotal.WithLabelValues(string(req.Outcome)).Inc()
	s.emit(ctx, eventResolved(d))
	if req.IssueStrike {
		s.emit(ctx, eventStrike(d, strikeTarget(d), req.Reason))
	}

	return d, nil
}

// resolutionAllocations maps an outcome to escrow allocations. A nil
// slice with a nil error means no funds move (dismissed: escrow settles
// through the normal fulfillment flow).
func (s *Service) resolutionAllocations(ctx context.Context, d *Dispute, req ResolveRequest) ([]escrow.Allocation, error) {
	if req.Outcome == OutcomeDismissed {
		return nil, nil
	}

	balance, err := s.ledger.Balance(ctx, d.Ref.Ref())
	if err != nil {
		return nil, translateLedgerErr(err)
	}

	switch req.Outcome {
	case OutcomeRefunded:
		return []escrow.Allocation{{Party: d.FiledBy, AmountCents: balance}}, nil
	case OutcomeReleased:
		return []escrow.Allocation{{Party: d.Against, AmountCents: balance}}, nil
	default: // partial_refund
		return refundAllocations(d, balance, req.PartialRefundCents)
	}
}

// strikeTarget is the party found at fault: the respondent when the
// filer won anything, the filer when the claim failed.
func strikeTarget(d *Dispute) string {
	switch d.Resolution.Outcome {
	case OutcomeRefunded, OutcomePartialRefund:
		return d.Against
	default:
		return d.FiledBy
	}
}
