package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/atelierhq/atelier/internal/metrics"
	"github.com/atelierhq/atelier/internal/retry"
)

// Worker drains pending outbox events to registered sinks.
type Worker struct {
	store    Store
	sinks    []Sink
	interval time.Duration
	batch    int
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewWorker creates an outbox delivery worker.
func NewWorker(store Store, sinks []Sink, logger *slog.Logger) *Worker {
	return &Worker{
		store:    store,
		sinks:    sinks,
		interval: 5 * time.Second,
		batch:    100,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the worker loop is actively running.
func (w *Worker) Running() bool {
	return w.running.Load()
}

// Start begins the delivery loop. Call in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.running.Store(true)
	defer w.running.Store(false)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.safeDrain(ctx)
		}
	}
}

// Stop signals the worker to stop.
func (w *Worker) Stop() {
	select {
	case w.stop <- struct{}{}:
	default:
	}
}

// Drain delivers all currently pending events once. Exposed for tests
// and for a final flush during shutdown.
func (w *Worker) Drain(ctx context.Context) {
	events, err := w.store.ListPending(ctx, w.batch)
	if err != nil {
		w.logger.Warn("failed to list pending outbox events", "error", err)
		return
	}

	for _, event := range events {
		w.deliver(ctx, event)
	}
}

func (w *Worker) safeDrain(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic in outbox worker", "panic", fmt.Sprint(r))
		}
	}()
	w.Drain(ctx)
}

// deliver pushes one event to every sink that hasn't seen it yet.
// Each sink delivery is retried briefly; a sink that keeps failing
// leaves the event pending for the next pass.
func (w *Worker) deliver(ctx context.Context, event *Event) {
	var failed []string

	for _, sink := range w.sinks {
		if event.Delivered(sink.Name()) {
			continue
		}

		err := retry.Do(ctx, 3, 100*time.Millisecond, func() error {
			return sink.Deliver(ctx, event)
		})
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", sink.Name(), err))
			metrics.OutboxDeliveriesTotal.WithLabelValues("failed").Inc()
			w.logger.Warn("outbox delivery failed",
				"event", event.ID, "type", event.Type, "sink", sink.Name(), "error", err)
			continue
		}

		event.DeliveredSinks = append(event.DeliveredSinks, sink.Name())
		complete := w.allDelivered(event)
		if err := w.store.MarkSinkDelivered(ctx, event.ID, sink.Name(), complete, time.Now().UTC()); err != nil {
			w.logger.Warn("failed to mark outbox delivery",
				"event", event.ID, "sink", sink.Name(), "error", err)
			return
		}
		metrics.OutboxDeliveriesTotal.WithLabelValues("delivered").Inc()
	}

	if len(failed) > 0 {
		if err := w.store.MarkAttempt(ctx, event.ID, strings.Join(failed, "; ")); err != nil {
			w.logger.Warn("failed to record outbox attempt", "event", event.ID, "error", err)
		}
	}
}

func (w *Worker) allDelivered(event *Event) bool {
	for _, sink := range w.sinks {
		if !event.Delivered(sink.Name()) {
			return false
		}
	}
	return true
}
