package dispute

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/atelierhq/atelier/internal/escrow"
	"github.com/atelierhq/atelier/internal/transactions"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// testClock is a mutable clock shared by the service and the gate.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock { return &testClock{now: baseTime} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeStatuses map[string]*transactions.StatusInfo

func (f fakeStatuses) GetStatus(ctx context.Context, ref string) (*transactions.StatusInfo, error) {
	if info, ok := f[ref]; ok {
		cp := *info
		return &cp, nil
	}
	return nil, transactions.ErrNotFound
}

// fakeLedger mimics the escrow service: balances, releases keyed by
// idempotency key, and an injectable one-shot failure.
type fakeLedger struct {
	balances     map[string]int64
	releases     map[string]*escrow.Release
	failNext     error
	releaseCalls int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances: make(map[string]int64),
		releases: make(map[string]*escrow.Release),
	}
}

func (f *fakeLedger) Balance(ctx context.Context, ref string) (int64, error) {
	b, ok := f.balances[ref]
	if !ok {
		return 0, escrow.ErrAccountNotFound
	}
	return b, nil
}

func (f *fakeLedger) PriorRelease(ctx context.Context, key string) (*escrow.Release, bool, error) {
	rel, ok := f.releases[key]
	return rel, ok, nil
}

func (f *fakeLedger) Release(ctx context.Context, ref, key string, allocs []escrow.Allocation) (*escrow.Release, error) {
	f.releaseCalls++
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}
	if prior, ok := f.releases[key]; ok {
		return prior, nil
	}
	balance, ok := f.balances[ref]
	if !ok {
		return nil, escrow.ErrAccountNotFound
	}
	var sum int64
	for _, a := range allocs {
		if a.AmountCents <= 0 {
			return nil, escrow.ErrInvalidAmount
		}
		sum += a.AmountCents
	}
	if sum > balance {
		return nil, escrow.ErrInsufficientBalance
	}
	if sum != balance {
		return nil, escrow.ErrAllocationMismatch
	}
	f.balances[ref] = 0
	rel := &escrow.Release{
		Key:            key,
		TransactionRef: ref,
		Allocations:    append([]escrow.Allocation(nil), allocs...),
	}
	f.releases[key] = rel
	return rel, nil
}

// flakyStore fails the next Update once, simulating a persist failure
// between the escrow release and the final write.
type flakyStore struct {
	Store
	failNext error
}

func (f *flakyStore) Update(ctx context.Context, d *Dispute, expectedVersion int) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	return f.Store.Update(ctx, d, expectedVersion)
}

type emitted struct {
	eventType string
	disputeID string
	payload   map[string]interface{}
}

type recordingEmitter struct {
	events []emitted
}

func (r *recordingEmitter) Emit(ctx context.Context, eventType, disputeID string, payload map[string]interface{}) error {
	r.events = append(r.events, emitted{eventType, disputeID, payload})
	return nil
}

func (r *recordingEmitter) types() []string {
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.eventType
	}
	return out
}

func (r *recordingEmitter) has(eventType string) bool {
	for _, e := range r.events {
		if e.eventType == eventType {
			return true
		}
	}
	return false
}

type engine struct {
	svc     *Service
	store   *MemoryStore
	ledger  *fakeLedger
	emitter *recordingEmitter
	clock   *testClock
	txs     fakeStatuses
}

func newEngine() *engine {
	clock := newTestClock()
	store := NewMemoryStore()
	ledger := newFakeLedger()
	emitter := &recordingEmitter{}
	txs := fakeStatuses{}
	gate := NewGate(txs, store)
	svc := NewService(store, gate, ledger, emitter).WithClock(clock.Now)
	return &engine{svc: svc, store: store, ledger: ledger, emitter: emitter, clock: clock, txs: txs}
}

// withFlakyStore rebuilds the service on a store whose next Update can
// be made to fail.
func (e *engine) withFlakyStore() *flakyStore {
	flaky := &flakyStore{Store: e.store}
	gate := NewGate(e.txs, flaky)
	e.svc = NewService(flaky, gate, e.ledger, e.emitter).WithClock(e.clock.Now)
	return flaky
}

// seedOrder registers a shipped order with escrowed funds, last status
// change at the current test clock.
func (e *engine) seedOrder(ref string, balanceCents int64) {
	e.txs[ref] = &transactions.StatusInfo{
		Ref:                ref,
		Kind:               transactions.KindOrder,
		CustomerID:         "user_cust",
		CounterpartyID:     "user_shop",
		Status:             transactions.OrderShipped,
		LastStatusChangeAt: e.clock.Now(),
	}
	e.ledger.balances[ref] = balanceCents
}

func (e *engine) file(t *testing.T, ref string) *Dispute {
	t.Helper()
	d, err := e.svc.File(context.Background(), "user_cust", FileRequest{
		OrderID:     ref,
		Category:    CategoryShippingDamaged,
		Description: "The package arrived crushed and the contents are broken.",
	})
	if err != nil {
		t.Fatalf("file dispute: %v", err)
	}
	return d
}

func TestFileCreatesDispute(t *testing.T) {
	e := newEngine()
	e.seedOrder("order_1", 10000)

	d := e.file(t, "order_1")

	if d.Stage != StageNegotiation || d.Status != StatusOpen {
		t.Errorf("expected open negotiation dispute, got %s/%s", d.Stage, d.Status)
	}
	if d.Version != 1 {
		t.Errorf("expected version 1, got %d", d.Version)
	}
	if d.FiledBy != "user_cust" || d.Against != "user_shop" {
		t.Errorf("unexpected parties: %s vs %s", d.FiledBy, d.Against)
	}
	want := baseTime.Add(48 * time.Hour)
	if !d.NegotiationDeadline.Equal(want) {
		t.Errorf("expected deadline %v, got %v", want, d.NegotiationDeadline)
	}
	if !e.emitter.has("dispute.filed") {
		t.Errorf("expected filed event, got %v", e.emitter.types())
	}
}

func TestFileRejectsNonCustomer(t *testing.T) {
	e := newEngine()
	e.seedOrder("order_1", 10000)

	_, err := e.svc.File(context.Background(), "user_shop", FileRequest{
		OrderID:     "order_1",
		Category:    CategoryShippingDamaged,
		Description: "Trying to file against my own customer somehow.",
	})
	if !errors.Is(err, ErrNotParty) {
		t.Errorf("expected ErrNotParty, got %v", err)
	}
}

func TestLazyEscalationOnGet(t *testing.T) {
	e := newEngine()
	e.seedOrder("order_1", 10000)
	d := e.file(t, "order_1")

	// At the deadline instant the dispute is still in negotiation.
	e.clock.Advance(48 * time.Hour)
	got, err := e.svc.Get(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Stage != StageNegotiation {
		t.Errorf("expected negotiation at the deadline instant, got %s", got.Stage)
	}

	e.clock.Advance(time.Hour)
	got, err = e.svc.Get(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("get after deadline: %v", err)
	}
	if got.Stage != StageAdminReview {
		t.Errorf("expected admin_review after deadline, got %s", got.Stage)
	}
	if got.Version != 2 {
		t.Errorf("expected version bump on escalation, got %d", got.Version)
	}
	if !e.emitter.has("dispute.escalated") {
		t.Errorf("expected escalated event, got %v", e.emitter.types())
	}
}

func TestWithdraw(t *testing.T) {
	e := newEngine()
	e.seedOrder("order_1", 10000)
	d := e.file(t, "order_1")

	if _, err := e.svc.Withdraw(context.Background(), d.ID, "user_shop"); !errors.Is(err, ErrNotFiler) {
		t.Errorf("expected ErrNotFiler for counterparty, got %v", err)
	}
	if _, err := e.svc.Withdraw(context.Background(), d.ID, "user_other"); !errors.Is(err, ErrNotParty) {
		t.Errorf("expected ErrNotParty for stranger, got %v", err)
	}

	got, err := e.svc.Withdraw(context.Background(), d.ID, "user_cust")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got.Stage != StageResolved || got.Status != StatusClosed {
		t.Errorf("expected resolved/closed, got %s/%s", got.Stage, got.Status)
	}
	if got.Resolution == nil || got.Resolution.Outcome != OutcomeWithdrawn {
		t.Errorf("expected withdrawn outcome, got %+v", got.Resolution)
	}
	if e.ledger.releaseCalls != 0 {
		t.Errorf("withdraw must not touch the ledger, got %d release calls", e.ledger.releaseCalls)
	}

	if _, err := e.svc.Withdraw(context.Background(), d.ID, "user_cust"); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("expected ErrAlreadyResolved on second withdraw, got %v", err)
	}
}

func TestWithdrawFreesTransactionForRefiling(t *testing.T) {
	e := newEngine()
	e.seedOrder("order_1", 10000)
	d := e.file(t, "order_1")

	if _, err := e.svc.Withdraw(context.Background(), d.ID, "user_cust"); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	second := e.file(t, "order_1")
	if second.ID == d.ID {
		t.Errorf("expected a new dispute after withdrawal")
	}
}

func TestStats(t *testing.T) {
	e := newEngine()
	e.seedOrder("order_1", 10000)
	e.seedOrder("order_2", 2500)
	e.file(t, "order_1")
	e.file(t, "order_2")

	stats, err := e.svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats["openDisputes"] != 2 {
		t.Errorf("expected 2 open disputes, got %v", stats["openDisputes"])
	}
	if stats["escrowAtRiskCents"] != int64(12500) {
		t.Errorf("expected 12500 at risk, got %v", stats["escrowAtRiskCents"])
	}
}

func TestListPagination(t *testing.T) {
	e := newEngine()
	ctx := context.Background()

	refs := []string{"order_a", "order_b", "order_c"}
	for _, ref := range refs {
		e.seedOrder(ref, 1000)
		e.file(t, ref)
		e.clock.Advance(time.Minute)
	}

	page1, cursor, hasMore, err := e.svc.List(ctx, ListFilter{Party: "user_cust", Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page1) != 2 || !hasMore || cursor == "" {
		t.Fatalf("expected 2 items with a next cursor, got %d hasMore=%v", len(page1), hasMore)
	}
	// Newest first.
	if page1[0].Ref.Ref() != "order_c" {
		t.Errorf("expected order_c first, got %s", page1[0].Ref.Ref())
	}

	page2, _, hasMore, err := e.svc.List(ctx, ListFilter{
		Party:           "user_cust",
		Limit:           2,
		CursorCreatedAt: &page1[1].CreatedAt,
		CursorID:        page1[1].ID,
	})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(page2) != 1 || hasMore {
		t.Fatalf("expected final page of 1, got %d hasMore=%v", len(page2), hasMore)
	}
	if page2[0].Ref.Ref() != "order_a" {
		t.Errorf("expected order_a last, got %s", page2[0].Ref.Ref())
	}
}

func TestListFiltersByStage(t *testing.T) {
	e := newEngine()
	ctx := context.Background()

	e.seedOrder("order_1", 1000)
	d1 := e.file(t, "order_1")
	e.clock.Advance(time.Minute)
	e.seedOrder("order_2", 1000)
	e.file(t, "order_2")

	// Push only the first dispute past its deadline and commit the
	// escalation with a read.
	e.clock.Advance(48 * time.Hour)
	if _, err := e.svc.Get(ctx, d1.ID); err != nil {
		t.Fatalf("get: %v", err)
	}

	items, _, _, err := e.svc.List(ctx, ListFilter{Stage: StageAdminReview, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].Ref.Ref() != "order_1" {
		t.Fatalf("expected only order_1 under admin review, got %d items", len(items))
	}
}
