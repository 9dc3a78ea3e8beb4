package dispute

import (
	"context"

	"github.com/atelierhq/atelier/internal/metrics"
)

// ProposeOffer puts a partial refund on the table during negotiation.
// Either party may propose; the amount always flows to the filer
// (the customer). Only one offer can be pending at a time.
func (s *Service) ProposeOffer(ctx context.Context, id, callerID string, amountCents int64) (*Dispute, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !d.IsParty(callerID) {
		return nil, ErrNotParty
	}
	if d.IsTerminal() {
		return nil, ErrAlreadyResolved
	}
	if d.Stage != StageNegotiation {
		return nil, ErrInvalidStage
	}
	if d.PendingOffer() != nil {
		return nil, ErrPendingOfferExists
	}

	balance, err := s.ledger.Balance(ctx, d.Ref.Ref())
	if err != nil {
		return nil, translateLedgerErr(err)
	}
	if amountCents <= 0 || amountCents > balance {
		return nil, ErrInvalidOfferAmount
	}

	now := s.now().UTC()
	expected := d.Version
	d.Offer = &Offer{
		ProposedBy:  callerID,
		AmountCents: amountCents,
		Status:      OfferPending,
		ProposedAt:  now,
	}
	d.UpdatedAt = now
	if err := s.store.Update(ctx, d, expected); err != nil {
		return nil, err
	}

	metrics.OffersTotal.WithLabelValues("proposed").Inc()
	s.emit(ctx, eventOfferProposed(d))

	return d, nil
}

// RespondToOffer accepts or rejects the pending offer. Only the
// counterparty of the proposer may respond.
//
// Accepting settles the dispute: one idempotent escrow release pays
// the offered amount to the filer and the remainder to the other side,
// then the dispute is persisted as resolved with outcome
// partial_refund. No strike is issued for a mutual settlement.
// Rejecting marks the offer rejected and negotiation continues.
func (s *Service) RespondToOffer(ctx context.Context, id, callerID string, accept bool) (*Dispute, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !d.IsParty(callerID) {
		return nil, ErrNotParty
	}
	if d.IsTerminal() {
		return nil, ErrAlreadyResolved
	}
	if d.Stage != StageNegotiation {
		return nil, ErrInvalidStage
	}
	offer := d.PendingOffer()
	if offer == nil {
		return nil, ErrNoPendingOffer
	}
	if callerID == offer.ProposedBy {
		return nil, ErrOwnOffer
	}

	now := s.now().UTC()
	expected := d.Version

	if !accept {
		d.Offer.Status = OfferRejected
		d.Offer.RespondedAt = &now
		d.UpdatedAt = now
		if err := s.store.Update(ctx, d, expected); err != nil {
			return nil, err
		}
		metrics.OffersTotal.WithLabelValues("rejected").Inc()
		s.emit(ctx, eventOfferRejected(d))
		return d, nil
	}

	// Phase 1: move the funds, keyed by dispute ID so a retry after a
	// crash cannot pay twice. A release already on record means an
	// earlier accept paid out and only the persist failed; skip
	// straight to phase 2.
	released, err := s.alreadyReleased(ctx, d)
	if err != nil {
		return nil, err
	}
	if !released {
		balance, err := s.ledger.Balance(ctx, d.Ref.Ref())
		if err != nil {
			return nil, translateLedgerErr(err)
		}
		allocs, err := refundAllocations(d, balance, offer.AmountCents)
		if err != nil {
			return nil, err
		}
		if err := s.release(ctx, d, allocs); err != nil {
			return nil, err
		}
	}

	// Phase 2: persist as final. A version conflict here is retryable;
	// the release key protects the funds.
	d.Offer.Status = OfferAccepted
	d.Offer.RespondedAt = &now
	d.resolve(Resolution{
		Outcome:            OutcomePartialRefund,
		Reason:             "mutual negotiation",
		PartialRefundCents: offer.AmountCents,
		ResolvedAt:         now,
	})
	if err := s.store.Update(ctx, d, expected); err != nil {
		return nil, err
	}

	metrics.OffersTotal.WithLabelValues("accepted").Inc()
	metrics.DisputesResolvedTotal.WithLabelValues(string(OutcomePartialRefund)).Inc()
	s.emit(ctx, eventOfferAccepted(d))
	s.emit(ctx, eventResolved(d))

	return d, nil
}
