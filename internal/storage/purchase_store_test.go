package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"procurement-signals/internal/domain"
)

func draftOrder(seq int64, material string) domain.PurchaseOrder {
	return domain.PurchaseOrder{
		Number:    fmt.Sprintf("PO-202603-%04d", seq),
		Seq:       seq,
		Status:    domain.POStatusDraft,
		CreatedAt: base,
		CreatedBy: "tester",
		Material:  domain.POLine{Name: material, Quantity: 100, Unit: "tons", UnitPrice: 8000},
		Approvals: []domain.POApproval{{Role: "manager", Name: "Pending", Status: "PENDING"}},
	}
}

func TestPurchaseOrderSequenceStartsAtFirstSeq(t *testing.T) {
	for name, store := range stores(t) {
		ctx := context.Background()
		for i, material := range []string{"Copper", "Steel"} {
			po, err := store.CreatePurchaseOrder(ctx, func(seq int64) (domain.PurchaseOrder, error) {
				return draftOrder(seq, material), nil
			})
			if err != nil {
				t.Fatalf("[%s] 创建采购单不应报错: %v", name, err)
			}
			if want := int64(FirstPurchaseOrderSeq + i); po.Seq != want {
				t.Fatalf("[%s] 序号应为 %d, 实际 %d", name, want, po.Seq)
			}
		}
		got, err := store.GetPurchaseOrder(ctx, "PO-202603-1002")
		if err != nil {
			t.Fatalf("[%s] 查询采购单不应报错: %v", name, err)
		}
		if got.Material.Name != "Steel" || len(got.Approvals) != 1 {
			t.Fatalf("[%s] 采购单内容未保留: %+v", name, got)
		}
	}
}

func TestPurchaseOrderBuildErrorDoesNotConsumeSeq(t *testing.T) {
	for name, store := range stores(t) {
		ctx := context.Background()
		boom := errors.New("boom")
		if _, err := store.CreatePurchaseOrder(ctx, func(int64) (domain.PurchaseOrder, error) {
			return domain.PurchaseOrder{}, boom
		}); !errors.Is(err, boom) {
			t.Fatalf("[%s] 应返回构建错误, 实际 %v", name, err)
		}
		po, err := store.CreatePurchaseOrder(ctx, func(seq int64) (domain.PurchaseOrder, error) {
			return draftOrder(seq, "Copper"), nil
		})
		if err != nil {
			t.Fatalf("[%s] 创建采购单不应报错: %v", name, err)
		}
		if po.Seq != FirstPurchaseOrderSeq {
			t.Fatalf("[%s] 构建失败不应占用序号, 实际 %d", name, po.Seq)
		}
		all, _ := store.ListPurchaseOrders(ctx, "", 0)
		if len(all) != 1 {
			t.Fatalf("[%s] 应只有 1 张采购单, 实际 %d", name, len(all))
		}
	}
}

func TestListPurchaseOrdersFiltersAndLimits(t *testing.T) {
	for name, store := range stores(t) {
		ctx := context.Background()
		for _, material := range []string{"Copper", "Steel", "Aluminum"} {
			if _, err := store.CreatePurchaseOrder(ctx, func(seq int64) (domain.PurchaseOrder, error) {
				return draftOrder(seq, material), nil
			}); err != nil {
				t.Fatalf("[%s] 创建采购单不应报错: %v", name, err)
			}
		}
		submitted, _ := store.GetPurchaseOrder(ctx, "PO-202603-1002")
		submitted.Status = domain.POStatusSubmitted
		if err := store.UpdatePurchaseOrder(ctx, submitted); err != nil {
			t.Fatalf("[%s] 更新采购单不应报错: %v", name, err)
		}

		all, err := store.ListPurchaseOrders(ctx, "", 0)
		if err != nil || len(all) != 3 {
			t.Fatalf("[%s] 应有 3 张采购单, 实际 %d (%v)", name, len(all), err)
		}
		if all[0].Material.Name != "Aluminum" {
			t.Fatalf("[%s] 应按最新优先排序, 实际首条 %s", name, all[0].Material.Name)
		}
		limited, _ := store.ListPurchaseOrders(ctx, "", 2)
		if len(limited) != 2 {
			t.Fatalf("[%s] limit=2 应返回 2 条, 实际 %d", name, len(limited))
		}
		drafts, _ := store.ListPurchaseOrders(ctx, domain.POStatusDraft, 0)
		if len(drafts) != 2 {
			t.Fatalf("[%s] 草稿应有 2 张, 实际 %d", name, len(drafts))
		}
		only, _ := store.ListPurchaseOrders(ctx, domain.POStatusSubmitted, 0)
		if len(only) != 1 || only[0].Material.Name != "Steel" {
			t.Fatalf("[%s] 已提交应只有 Steel, 实际 %+v", name, only)
		}
	}
}

func TestPurchaseOrderNotFound(t *testing.T) {
	for name, store := range stores(t) {
		ctx := context.Background()
		if _, err := store.GetPurchaseOrder(ctx, "PO-202603-9999"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("[%s] 未知单号应返回 NOT_FOUND, 实际 %v", name, err)
		}
		if err := store.UpdatePurchaseOrder(ctx, draftOrder(9999, "Copper")); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("[%s] 更新未知单号应返回 NOT_FOUND, 实际 %v", name, err)
		}
	}
}

func TestPostgresPurchaseOrdersNotConfigured(t *testing.T) {
	var store *PostgresStore
	if _, err := store.ListPurchaseOrders(context.Background(), "", 0); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("未配置连接池应返回 ErrNotConfigured, 实际 %v", err)
	}
}
