package dispute

import (
	"fmt"

	"github.com/atelierhq/atelier/internal/outbox"
)

// event is a lifecycle event queued for the durable outbox. The
// "notify" and "message" payload keys drive the notification sink.
type event struct {
	eventType string
	disputeID string
	payload   map[string]interface{}
}

func eventFiled(d *Dispute) event {
	return event{outbox.EventDisputeFiled, d.ID, map[string]interface{}{
		"transactionRef": d.Ref.Ref(),
		"category":       string(d.Category),
		"filedBy":        d.FiledBy,
		"against":        d.Against,
		"deadline":       d.NegotiationDeadline,
		"notify":         []string{d.Against},
		"message":        fmt.Sprintf("A dispute was filed against you (%s). You have 48 hours to negotiate.", d.Category),
	}}
}

func eventOfferProposed(d *Dispute) event {
	offer := d.Offer
	return event{outbox.EventOfferProposed, d.ID, map[string]interface{}{
		"transactionRef": d.Ref.Ref(),
		"proposedBy":     offer.ProposedBy,
		"amountCents":    offer.AmountCents,
		"notify":         []string{d.Counterparty(offer.ProposedBy)},
		"message":        "A partial refund was offered on your dispute.",
	}}
}

func eventOfferAccepted(d *Dispute) event {
	return event{outbox.EventOfferAccepted, d.ID, map[string]interface{}{
		"transactionRef": d.Ref.Ref(),
		"amountCents":    d.Resolution.PartialRefundCents,
		"notify":         []string{d.FiledBy, d.Against},
		"message":        "The partial refund offer was accepted. The dispute is settled.",
	}}
}

func eventOfferRejected(d *Dispute) event {
	offer := d.Offer
	return event{outbox.EventOfferRejected, d.ID, map[string]interface{}{
		"transactionRef": d.Ref.Ref(),
		"proposedBy":     offer.ProposedBy,
		"notify":         []string{offer.ProposedBy},
		"message":        "Your partial refund offer was rejected.",
	}}
}

func eventEscalated(d *Dispute) event {
	return event{outbox.EventDisputeEscalated, d.ID, map[string]interface{}{
		"transactionRef": d.Ref.Ref(),
		"notify":         []string{d.FiledBy, d.Against},
		"message":        "The negotiation window has closed. The dispute is now under admin review.",
	}}
}

func eventWithdrawn(d *Dispute) event {
	return event{outbox.EventDisputeWithdrawn, d.ID, map[string]interface{}{
		"transactionRef": d.Ref.Ref(),
		"notify":         []string{d.Against},
		"message":        "The dispute against you was withdrawn.",
	}}
}

func eventResolved(d *Dispute) event {
	res := d.Resolution
	return event{outbox.EventDisputeResolved, d.ID, map[string]interface{}{
		"transactionRef":     d.Ref.Ref(),
		"outcome":            string(res.Outcome),
		"reason":             res.Reason,
		"partialRefundCents": res.PartialRefundCents,
		"strikeIssued":       res.StrikeIssued,
		"notify":             []string{d.FiledBy, d.Against},
		"message":            fmt.Sprintf("Your dispute was resolved: %s.", res.Outcome),
	}}
}

func eventStrike(d *Dispute, userID, reason string) event {
	return event{outbox.EventReputationStrike, d.ID, map[string]interface{}{
		"userId": userID,
		"reason": reason,
	}}
}
