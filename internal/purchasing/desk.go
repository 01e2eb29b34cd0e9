package purchasing

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"procurement-signals/internal/clock"
	"procurement-signals/internal/domain"
	"procurement-signals/internal/storage"
)

// Desk raises and tracks purchase orders. Status updates hold mu so two
// concurrent transitions of the same order cannot both read the old status.
type Desk struct {
	mu     sync.Mutex
	store  storage.PurchaseOrderStore
	clock  clock.Clock
	logger zerolog.Logger
	opts   Options
}

// NewDesk builds a desk over store.
func NewDesk(store storage.PurchaseOrderStore, clk clock.Clock, logger zerolog.Logger, opts Options) *Desk {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Desk{
		store:  store,
		clock:  clk,
		logger: logger.With().Str("component", "purchasing").Logger(),
		opts:   opts.withDefaults(),
	}
}

// Options returns the effective order defaults.
func (d *Desk) Options() Options {
	return d.opts
}

// Raise numbers, prices and stores a new DRAFT order.
func (d *Desk) Raise(ctx context.Context, req Request, in Inputs) (domain.PurchaseOrder, error) {
	now := d.clock.Now()
	po, err := d.store.CreatePurchaseOrder(ctx, func(seq int64) (domain.PurchaseOrder, error) {
		return Build(seq, now, req, in, d.opts)
	})
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	d.logger.Info().
		Str("po_number", po.Number).
		Str("material", po.Material.Name).
		Str("vendor", po.Vendor.Name).
		Float64("total", po.Financial.TotalAmount).
		Msg("采购单已生成")
	return po, nil
}

// Get returns one order by number.
func (d *Desk) Get(ctx context.Context, number string) (domain.PurchaseOrder, error) {
	return d.store.GetPurchaseOrder(ctx, strings.TrimSpace(number))
}

// List returns orders newest first, optionally filtered by status.
func (d *Desk) List(ctx context.Context, status domain.POStatus, limit int) ([]domain.PurchaseOrder, error) {
	return d.store.ListPurchaseOrders(ctx, status, limit)
}

// UpdateStatus moves an order along the lifecycle. Approving or rejecting
// also settles the pending manager and finance steps.
func (d *Desk) UpdateStatus(ctx context.Context, number string, next domain.POStatus, by string) (domain.PurchaseOrder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	po, err := d.store.GetPurchaseOrder(ctx, strings.TrimSpace(number))
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	if !po.Status.CanMoveTo(next) {
		return domain.PurchaseOrder{}, fmt.Errorf("%w: purchase order %s cannot move from %s to %s",
			domain.ErrInvalidInput, po.Number, po.Status, next)
	}

	by = strings.TrimSpace(by)
	if by == "" {
		by = "system"
	}
	now := d.clock.Now().UTC()
	prev := po.Status
	po.Status = next
	po.UpdatedAt = &now
	po.UpdatedBy = by

	// 存储层可能共享切片, 修改前先复制
	approvals := append([]domain.POApproval(nil), po.Approvals...)
	if next == domain.POStatusApproved || next == domain.POStatusRejected {
		for i := range approvals {
			if approvals[i].Role == "requester" || approvals[i].Status != "PENDING" {
				continue
			}
			approvals[i].Name = by
			approvals[i].Status = string(next)
			approvals[i].Date = now.Format(expectedDateLayout)
		}
	}
	if next == domain.POStatusDraft {
		for i := range approvals {
			if approvals[i].Role == "requester" {
				continue
			}
			approvals[i] = domain.POApproval{Role: approvals[i].Role, Name: "Pending", Status: "PENDING"}
		}
	}
	po.Approvals = approvals

	if err := d.store.UpdatePurchaseOrder(ctx, po); err != nil {
		return domain.PurchaseOrder{}, err
	}
	d.logger.Info().
		Str("po_number", po.Number).
		Str("from", string(prev)).
		Str("to", string(next)).
		Str("by", by).
		Msg("采购单状态已更新")
	return po, nil
}
