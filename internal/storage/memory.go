package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"procurement-signals/internal/domain"
)

// MemoryStore keeps the alert log and purchase orders in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	alerts []domain.Alert
	nextID int64

	orders    []domain.PurchaseOrder
	nextPOSeq int64
}

// NewMemoryStore returns an empty log whose first id is 1.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1, nextPOSeq: FirstPurchaseOrderSeq}
}

// Append implements AlertStore.
func (m *MemoryStore) Append(_ context.Context, alert domain.Alert) (domain.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	alert.ID = m.nextID
	m.nextID++
	m.alerts = append(m.alerts, alert)
	return alert, nil
}

// List implements AlertStore.
func (m *MemoryStore) List(_ context.Context) ([]domain.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Alert, len(m.alerts))
	copy(out, m.alerts)
	return out, nil
}

// ListSince implements AlertStore.
func (m *MemoryStore) ListSince(_ context.Context, since time.Time) ([]domain.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Alert, 0)
	for _, a := range m.alerts {
		if !a.Timestamp.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

// SetRead implements AlertStore.
func (m *MemoryStore) SetRead(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == id {
			m.alerts[i].Read = true
			return nil
		}
	}
	return fmt.Errorf("%w: alert %d", domain.ErrNotFound, id)
}

// MarkAllRead implements AlertStore.
func (m *MemoryStore) MarkAllRead(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := 0
	for i := range m.alerts {
		if !m.alerts[i].Read {
			m.alerts[i].Read = true
			changed++
		}
	}
	return changed, nil
}

// PruneBefore implements AlertStore.
func (m *MemoryStore) PruneBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := make([]domain.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if !a.Timestamp.Before(cutoff) {
			kept = append(kept, a)
		}
	}
	removed := len(m.alerts) - len(kept)
	m.alerts = kept
	return removed, nil
}

// TrimTo implements AlertStore.
func (m *MemoryStore) TrimTo(_ context.Context, keep int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if keep < 0 || len(m.alerts) <= keep {
		return 0, nil
	}
	removed := len(m.alerts) - keep
	m.alerts = append([]domain.Alert(nil), m.alerts[removed:]...)
	return removed, nil
}

// Close implements AlertStore.
func (m *MemoryStore) Close() error {
	return nil
}

// CreatePurchaseOrder implements PurchaseOrderStore.
func (m *MemoryStore) CreatePurchaseOrder(_ context.Context, build func(seq int64) (domain.PurchaseOrder, error)) (domain.PurchaseOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	po, err := build(m.nextPOSeq)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	for _, existing := range m.orders {
		if existing.Number == po.Number {
			return domain.PurchaseOrder{}, fmt.Errorf("purchase order %s already exists", po.Number)
		}
	}
	m.nextPOSeq++
	m.orders = append(m.orders, po)
	return po, nil
}

// GetPurchaseOrder implements PurchaseOrderStore.
func (m *MemoryStore) GetPurchaseOrder(_ context.Context, number string) (domain.PurchaseOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, po := range m.orders {
		if po.Number == number {
			return po, nil
		}
	}
	return domain.PurchaseOrder{}, fmt.Errorf("%w: purchase order %s", domain.ErrNotFound, number)
}

// ListPurchaseOrders implements PurchaseOrderStore.
func (m *MemoryStore) ListPurchaseOrders(_ context.Context, status domain.POStatus, limit int) ([]domain.PurchaseOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.PurchaseOrder, 0)
	for i := len(m.orders) - 1; i >= 0; i-- {
		if status != "" && m.orders[i].Status != status {
			continue
		}
		out = append(out, m.orders[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// UpdatePurchaseOrder implements PurchaseOrderStore.
func (m *MemoryStore) UpdatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.orders {
		if m.orders[i].Number == po.Number {
			m.orders[i] = po
			return nil
		}
	}
	return fmt.Errorf("%w: purchase order %s", domain.ErrNotFound, po.Number)
}

var _ Store = (*MemoryStore)(nil)
