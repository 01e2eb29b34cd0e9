package storage

import (
	"context"
	"errors"
	"time"

	"procurement-signals/internal/domain"
)

var (
	// ErrNotConfigured indicates the storage backend was not initialised.
	ErrNotConfigured = errors.New("storage: backend not configured")
)

// AlertStore is the append-only alert log. Implementations assign ids from a
// monotonic counter and keep records in id order, which is also time order
// because a single writer appends.
type AlertStore interface {
	// Append stores a new alert and returns it with its assigned id.
	Append(ctx context.Context, alert domain.Alert) (domain.Alert, error)
	// List returns every alert, oldest first.
	List(ctx context.Context) ([]domain.Alert, error)
	// ListSince returns alerts with timestamp >= since, oldest first.
	ListSince(ctx context.Context, since time.Time) ([]domain.Alert, error)
	// SetRead marks one alert read. It returns domain.ErrNotFound for unknown ids.
	SetRead(ctx context.Context, id int64) error
	// MarkAllRead marks every unread alert read and returns how many changed.
	MarkAllRead(ctx context.Context) (int, error)
	// PruneBefore deletes alerts older than cutoff and returns how many were removed.
	PruneBefore(ctx context.Context, cutoff time.Time) (int, error)
	// TrimTo keeps only the newest keep alerts and returns how many were removed.
	TrimTo(ctx context.Context, keep int) (int, error)
	Close() error
}

// FirstPurchaseOrderSeq is the sequence number of the first purchase order.
const FirstPurchaseOrderSeq = 1001

// PurchaseOrderStore persists purchase orders. Sequence numbers come from a
// counter record, so they are never reused.
type PurchaseOrderStore interface {
	// CreatePurchaseOrder allocates the next sequence number, lets build fill in
	// the order for it and stores the result. When build fails nothing is
	// stored and the number is not consumed.
	CreatePurchaseOrder(ctx context.Context, build func(seq int64) (domain.PurchaseOrder, error)) (domain.PurchaseOrder, error)
	// GetPurchaseOrder returns domain.ErrNotFound for unknown numbers.
	GetPurchaseOrder(ctx context.Context, number string) (domain.PurchaseOrder, error)
	// ListPurchaseOrders returns orders newest first. An empty status matches
	// every order; limit <= 0 means no limit.
	ListPurchaseOrders(ctx context.Context, status domain.POStatus, limit int) ([]domain.PurchaseOrder, error)
	// UpdatePurchaseOrder replaces a stored order. It returns domain.ErrNotFound
	// for unknown numbers.
	UpdatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) error
}

// Store is everything the service persists.
type Store interface {
	AlertStore
	PurchaseOrderStore
}
