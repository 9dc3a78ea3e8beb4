package dispute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/atelierhq/atelier/internal/metrics"
)

// Timer periodically escalates disputes whose negotiation window has
// closed. Escalation also happens lazily on every read, so the sweeper
// only catches disputes nobody is looking at; its interval bounds how
// stale the admin queue can get.
type Timer struct {
	service  *Service
	store    Store
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewTimer creates a new escalation sweeper.
func NewTimer(service *Service, store Store, interval time.Duration, logger *slog.Logger) *Timer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Timer{
		service:  service,
		store:    store,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the sweeper loop is actively running.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// Start begins the escalation loop. Call in a goroutine.
func (t *Timer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.safeEscalateOverdue(ctx)
		}
	}
}

// Stop signals the sweeper to stop.
func (t *Timer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *Timer) safeEscalateOverdue(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in dispute sweeper", "panic", fmt.Sprint(r))
		}
	}()
	t.escalateOverdue(ctx)
}

func (t *Timer) escalateOverdue(ctx context.Context) {
	now := t.service.now().UTC()

	overdue, err := t.store.ListOverdue(ctx, now, 100)
	if err != nil {
		t.logger.Warn("failed to list overdue disputes", "error", err)
		return
	}

	for _, d := range overdue {
		expected := d.Version
		d.escalate(now)
		if err := t.store.Update(ctx, d, expected); err != nil {
			// A version conflict means a concurrent read already advanced it.
			if !errors.Is(err, ErrVersionConflict) {
				t.logger.Warn("failed to escalate dispute",
					"disputeId", d.ID, "error", err)
			}
			continue
		}

		metrics.DisputesEscalatedTotal.WithLabelValues("sweeper").Inc()
		t.service.emit(ctx, eventEscalated(d))
		t.logger.Info("escalated dispute to admin review",
			"disputeId", d.ID, "transactionRef", d.Ref.Ref(),
			"deadline", d.NegotiationDeadline)
	}
}
