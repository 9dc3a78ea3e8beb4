// Package transactions tracks the lifecycle status of orders and
// customization requests.
//
// The dispute engine only needs two facts about a transaction: its
// current status and when that status last changed. Order fulfillment
// and customization workflows live in other services; they report
// status transitions here (or ops seeds them through the admin API).
package transactions

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("transaction not found")
	ErrUnknownStatus = errors.New("unknown status for transaction kind")
)

// Kind distinguishes the two transaction types that can carry a dispute.
type Kind string

const (
	KindOrder         Kind = "order"
	KindCustomization Kind = "customization"
)

// Order statuses.
const (
	OrderPending   = "pending"
	OrderPaid      = "paid"
	OrderShipped   = "shipped"
	OrderDelivered = "delivered"
	OrderCompleted = "completed"
	OrderCancelled = "cancelled"
)

// Customization request statuses.
const (
	CustomizationRequested        = "requested"
	CustomizationAccepted         = "accepted"
	CustomizationInProgress       = "in_progress"
	CustomizationAwaitingApproval = "awaiting_customer_approval"
	CustomizationApproved         = "approved"
	CustomizationCancelled        = "cancelled"
)

var validStatuses = map[Kind]map[string]bool{
	KindOrder: {
		OrderPending: true, OrderPaid: true, OrderShipped: true,
		OrderDelivered: true, OrderCompleted: true, OrderCancelled: true,
	},
	KindCustomization: {
		CustomizationRequested: true, CustomizationAccepted: true,
		CustomizationInProgress: true, CustomizationAwaitingApproval: true,
		CustomizationApproved: true, CustomizationCancelled: true,
	},
}

// Transaction is the status record for one order or customization request.
type Transaction struct {
	Ref                string    `json:"ref"`
	Kind               Kind      `json:"kind"`
	CustomerID         string    `json:"customerId"`
	CounterpartyID     string    `json:"counterpartyId"` // shop owner or designer
	Status             string    `json:"status"`
	LastStatusChangeAt time.Time `json:"lastStatusChangeAt"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// StatusInfo is the subset the dispute eligibility gate consumes.
type StatusInfo struct {
	Ref                string
	Kind               Kind
	CustomerID         string
	CounterpartyID     string
	Status             string
	LastStatusChangeAt time.Time
}

// Store persists transaction status records.
type Store interface {
	Upsert(ctx context.Context, tx *Transaction) error
	Get(ctx context.Context, ref string) (*Transaction, error)
	SetStatus(ctx context.Context, ref, status string, at time.Time) (*Transaction, error)
}

// StatusProvider is what the dispute engine depends on.
type StatusProvider interface {
	GetStatus(ctx context.Context, ref string) (*StatusInfo, error)
}

// Service implements transaction status bookkeeping with a read cache.
type Service struct {
	store Store
	cache *statusCache
	now   func() time.Time
}

// NewService creates a transaction service. Status reads go through a
// bounded TTL cache so a burst of dispute filings doesn't hammer the store.
func NewService(store Store) *Service {
	now := time.Now
	return &Service{
		store: store,
		cache: newStatusCache(defaultCacheCapacity, defaultCacheTTL, now),
		now:   now,
	}
}

// WithClock overrides the service and cache clock. Used in tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.cache = newStatusCache(defaultCacheCapacity, defaultCacheTTL, now)
	return s
}

// Register creates or replaces a transaction record.
func (s *Service) Register(ctx context.Context, ref string, kind Kind, customerID, counterpartyID, status string) (*Transaction, error) {
	if !validStatuses[kind][status] {
		return nil, ErrUnknownStatus
	}
	now := s.now().UTC()
	tx := &Transaction{
		Ref:                ref,
		Kind:               kind,
		CustomerID:         customerID,
		CounterpartyID:     counterpartyID,
		Status:             status,
		LastStatusChangeAt: now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.Upsert(ctx, tx); err != nil {
		return nil, err
	}
	s.cache.invalidate(ref)
	return tx, nil
}

// SetStatus records a status transition with its timestamp.
func (s *Service) SetStatus(ctx context.Context, ref, status string) (*Transaction, error) {
	existing, err := s.store.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !validStatuses[existing.Kind][status] {
		return nil, ErrUnknownStatus
	}
	tx, err := s.store.SetStatus(ctx, ref, status, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.cache.invalidate(ref)
	return tx, nil
}

// Get returns the full transaction record, bypassing the cache.
func (s *Service) Get(ctx context.Context, ref string) (*Transaction, error) {
	return s.store.Get(ctx, ref)
}

// GetStatus serves the dispute eligibility gate through the cache.
func (s *Service) GetStatus(ctx context.Context, ref string) (*StatusInfo, error) {
	if info, ok := s.cache.get(ref); ok {
		return info, nil
	}
	tx, err := s.store.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	info := &StatusInfo{
		Ref:                tx.Ref,
		Kind:               tx.Kind,
		CustomerID:         tx.CustomerID,
		CounterpartyID:     tx.CounterpartyID,
		Status:             tx.Status,
		LastStatusChangeAt: tx.LastStatusChangeAt,
	}
	s.cache.put(ref, info)
	return info, nil
}
