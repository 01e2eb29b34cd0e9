package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"procurement-signals/internal/clock"
	"procurement-signals/internal/domain"
	"procurement-signals/internal/forecast"
	"procurement-signals/internal/purchasing"
	"procurement-signals/internal/storage"
)

func newPurchasingService(t *testing.T) *Service {
	t.Helper()
	desk := purchasing.NewDesk(storage.NewMemoryStore(), clock.Fixed{T: now}, zerolog.Nop(), purchasing.Options{})
	svc := New(&stubSource{doc: marketDocument()}, forecast.NewLinear(), nil, nil, clock.Fixed{T: now}, Options{
		Horizon:            7,
		HistoryDays:        30,
		PreferredSuppliers: map[string]string{"copper": "Prime Suppliers Ltd."},
		Purchasing:         desk,
	}, zerolog.Nop())
	if _, err := svc.RunCycle(context.Background(), now); err != nil {
		t.Fatalf("周期不应失败: %v", err)
	}
	return svc
}

func TestRaisePurchaseOrderUsesCheapestVendor(t *testing.T) {
	svc := newPurchasingService(t)
	po, err := svc.RaisePurchaseOrder(context.Background(), purchasing.Request{Material: "copper"})
	if err != nil {
		t.Fatalf("生成采购单不应报错: %v", err)
	}
	if po.Number != "PO-202603-1001" || po.Material.Name != "Copper" {
		t.Fatalf("单号或物料名错误: %s %s", po.Number, po.Material.Name)
	}
	if po.Vendor.Name != "Global Metals Inc." || po.Financial.Subtotal != 11000 || po.Financial.TotalAmount != 12980 {
		t.Fatalf("应按最便宜供应商计价: %+v %+v", po.Vendor, po.Financial)
	}
	if po.Delivery.ExpectedDate != "2026-03-17" || po.Recommendation.Label != domain.LabelBuyNow {
		t.Fatalf("交付日期或建议上下文错误: %+v %+v", po.Delivery, po.Recommendation)
	}

	named, err := svc.RaisePurchaseOrder(context.Background(), purchasing.Request{Material: "Copper", Vendor: "Prime Suppliers Ltd.", Quantity: 150})
	if err != nil {
		t.Fatalf("指定供应商不应报错: %v", err)
	}
	if named.Number != "PO-202603-1002" || named.Financial.PotentialSavings != -3000 {
		t.Fatalf("高于市场价的报价节省应为负值: %s %+v", named.Number, named.Financial)
	}
	list, _ := svc.PurchaseOrders().List(context.Background(), domain.POStatusDraft, 0)
	if len(list) != 2 {
		t.Fatalf("应有 2 张草稿采购单, 实际 %d", len(list))
	}
}

func TestRaisePurchaseOrderFailures(t *testing.T) {
	svc := newPurchasingService(t)
	ctx := context.Background()
	cases := []struct {
		name string
		req  purchasing.Request
		want error
	}{
		{"unknown material", purchasing.Request{Material: "Gold"}, domain.ErrNotFound},
		{"failed forecast", purchasing.Request{Material: "Steel"}, domain.ErrInsufficientData},
		{"no vendors", purchasing.Request{Material: "Aluminum"}, domain.ErrInsufficientData},
		{"unknown vendor", purchasing.Request{Material: "Copper", Vendor: "Nobody"}, domain.ErrNotFound},
		{"below minimum order", purchasing.Request{Material: "Copper", Quantity: 10}, domain.ErrInvalidInput},
	}
	for _, tc := range cases {
		if _, err := svc.RaisePurchaseOrder(ctx, tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("[%s] 期望 %v, 实际 %v", tc.name, tc.want, err)
		}
	}

	bare, _ := newService(&stubSource{doc: marketDocument()})
	if _, err := bare.RaisePurchaseOrder(ctx, purchasing.Request{Material: "Copper"}); err == nil {
		t.Fatal("未配置采购时应报错")
	}
}

func TestNegotiationRecommendations(t *testing.T) {
	svc := newPurchasingService(t)
	all, err := svc.SupplierComparisons()
	if err != nil {
		t.Fatalf("供应商比较不应报错: %v", err)
	}
	if len(all) != 1 || all[0].Material != "Copper" {
		t.Fatalf("只有 Copper 配置了首选供应商: %+v", all)
	}
	if all[0].MarketAverage != 120 || all[0].DifferencePct != 8.33 {
		t.Fatalf("市场均价或差异错误: %+v", all[0])
	}
	negotiations, err := svc.NegotiationRecommendations()
	if err != nil || len(negotiations) != 1 || !negotiations[0].ShouldNegotiate {
		t.Fatalf("高出均价 8.33%% 应建议议价: %+v (%v)", negotiations, err)
	}
}
