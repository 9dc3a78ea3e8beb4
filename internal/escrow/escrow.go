// Package escrow holds buyer funds per transaction until a dispute or
// delivery outcome releases them.
//
// Each order or customization request has at most one escrow account,
// keyed by its transaction reference. Funds enter via Deposit (the
// payment pipeline upstream of this service) and leave exactly once via
// Release, which splits the full balance across one or more parties.
// Releases are idempotent: retrying with the same key returns the
// original result without moving funds again.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atelierhq/atelier/internal/metrics"
)

var (
	ErrAccountNotFound     = errors.New("escrow account not found")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient escrow balance")
	ErrAllocationMismatch  = errors.New("allocations must sum to the account balance")
	ErrAlreadyReleased     = errors.New("escrow already released")
)

// Account holds escrowed funds for a single transaction.
// Amounts are in cents to avoid floating point drift.
type Account struct {
	TransactionRef string    `json:"transactionRef"`
	BalanceCents   int64     `json:"balanceCents"`
	Released       bool      `json:"released"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Allocation assigns part of a released balance to a party.
type Allocation struct {
	Party       string `json:"party"`
	AmountCents int64  `json:"amountCents"`
}

// Release records a completed release of an account's balance.
type Release struct {
	Key            string       `json:"key"`
	TransactionRef string       `json:"transactionRef"`
	Allocations    []Allocation `json:"allocations"`
	ReleasedAt     time.Time    `json:"releasedAt"`
}

// Store persists escrow accounts and release records.
type Store interface {
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, transactionRef string) (*Account, error)
	Deposit(ctx context.Context, transactionRef string, amountCents int64) (*Account, error)
	// Release atomically marks the account released and records the
	// release under key. If key was already used, it returns the prior
	// release and moved=false without touching the account.
	Release(ctx context.Context, transactionRef, key string, allocations []Allocation) (rel *Release, moved bool, err error)
	GetRelease(ctx context.Context, key string) (*Release, error)
	// SumBalances returns the total balance in cents across the given refs.
	SumBalances(ctx context.Context, transactionRefs []string) (int64, error)
}

// Service implements escrow business logic.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a new escrow service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// WithClock overrides the service clock. Used in tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Deposit adds funds to a transaction's escrow account, creating the
// account on first deposit.
func (s *Service) Deposit(ctx context.Context, transactionRef string, amountCents int64) (*Account, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}

	acct, err := s.store.Deposit(ctx, transactionRef, amountCents)
	if errors.Is(err, ErrAccountNotFound) {
		now := s.now().UTC()
		acct = &Account{
			TransactionRef: transactionRef,
			BalanceCents:   amountCents,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.store.CreateAccount(ctx, acct); err != nil {
			return nil, fmt.Errorf("create escrow account: %w", err)
		}
		return acct, nil
	}
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// Balance returns the current balance for a transaction's account.
func (s *Service) Balance(ctx context.Context, transactionRef string) (int64, error) {
	acct, err := s.store.GetAccount(ctx, transactionRef)
	if err != nil {
		return 0, err
	}
	return acct.BalanceCents, nil
}

// Release pays out the full account balance across the given allocations.
//
// The key makes the operation idempotent: callers retrying after a
// failure reuse the same key and get the recorded release back instead
// of a double payout. Allocations must be positive and sum exactly to
// the account balance.
func (s *Service) Release(ctx context.Context, transactionRef, key string, allocations []Allocation) (*Release, error) {
	if key == "" {
		return nil, fmt.Errorf("release key required")
	}
	if len(allocations) == 0 {
		return nil, ErrInvalidAmount
	}
	for _, a := range allocations {
		if a.AmountCents <= 0 || a.Party == "" {
			return nil, ErrInvalidAmount
		}
	}

	rel, moved, err := s.store.Release(ctx, transactionRef, key, allocations)
	if err != nil {
		metrics.EscrowReleasesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if moved {
		metrics.EscrowReleasesTotal.WithLabelValues("released").Inc()
	} else {
		metrics.EscrowReleasesTotal.WithLabelValues("idempotent_replay").Inc()
	}
	return rel, nil
}

// PriorRelease returns the release already recorded under key, if any.
// Callers use it to detect a payout whose follow-up persist failed, so
// a retry can skip the ledger call instead of re-validating amounts
// against a drained account.
func (s *Service) PriorRelease(ctx context.Context, key string) (*Release, bool, error) {
	rel, err := s.store.GetRelease(ctx, key)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rel, true, nil
}

// AtRisk returns the total balance in cents across the given transaction refs.
// Used for the open-dispute exposure gauge.
func (s *Service) AtRisk(ctx context.Context, transactionRefs []string) (int64, error) {
	if len(transactionRefs) == 0 {
		return 0, nil
	}
	return s.store.SumBalances(ctx, transactionRefs)
}

// validateAllocations checks allocations against a balance. Shared by stores.
func validateAllocations(balance int64, allocations []Allocation) error {
	var sum int64
	for _, a := range allocations {
		if a.AmountCents <= 0 {
			return ErrInvalidAmount
		}
		sum += a.AmountCents
	}
	if sum > balance {
		return ErrInsufficientBalance
	}
	if sum != balance {
		return ErrAllocationMismatch
	}
	return nil
}
