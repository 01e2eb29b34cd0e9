package purchasing

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"procurement-signals/internal/clock"
	"procurement-signals/internal/domain"
	"procurement-signals/internal/storage"
)

var raisedAt = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

func copperInputs() Inputs {
	return Inputs{
		Recommendation: domain.Recommendation{
			Material:       "Copper",
			CurrentPrice:   8200,
			PriceChangePct: 3.5,
			Label:          domain.LabelBuyNow,
			Reason:         "prices rising",
			Confidence:     domain.ConfidenceHigh,
			BestDay:        1,
		},
		Vendor: domain.Vendor{
			Name:         "Metro Metals",
			Price:        8000,
			Rating:       4.5,
			DeliveryDays: 5,
			MinOrder:     50,
		},
		Inventory: domain.InventoryRecord{
			Material:         "Copper",
			CurrentStock:     250,
			MinThreshold:     100,
			DailyConsumption: 40,
			Location:         "Dock 3",
		},
	}
}

func TestNumberFormat(t *testing.T) {
	if got := Number(raisedAt, 1001); got != "PO-202603-1001" {
		t.Fatalf("单号格式错误: %s", got)
	}
	if got := Number(raisedAt, 7); got != "PO-202603-0007" {
		t.Fatalf("序号应补零到 4 位: %s", got)
	}
}

func TestBuildPricesOrder(t *testing.T) {
	po, err := Build(1001, raisedAt, Request{Material: "Copper", Quantity: 120, Requester: "Li Wei"}, copperInputs(), Options{})
	if err != nil {
		t.Fatalf("生成采购单不应报错: %v", err)
	}
	if po.Number != "PO-202603-1001" || po.Status != domain.POStatusDraft {
		t.Fatalf("单号或状态错误: %s %s", po.Number, po.Status)
	}
	f := po.Financial
	if f.Subtotal != 960000 || f.TaxAmount != 172800 || f.TotalAmount != 1132800 {
		t.Fatalf("金额计算错误: %+v", f)
	}
	if f.TaxRate != DefaultTaxRate || f.Currency != DefaultCurrency {
		t.Fatalf("默认税率或币种错误: %+v", f)
	}
	if f.PotentialSavings != 24000 {
		t.Fatalf("节省金额应为 (8200-8000)*120=24000, 实际 %v", f.PotentialSavings)
	}
	if po.Delivery.ExpectedDate != "2026-03-15" || po.Delivery.DeliveryAddress != "Dock 3" {
		t.Fatalf("交付信息错误: %+v", po.Delivery)
	}
	if po.Vendor.PaymentTerms != "Net 30" || po.Vendor.Reliability != "Medium" {
		t.Fatalf("供应商默认值错误: %+v", po.Vendor)
	}
	if po.Inventory.DaysRemaining != 6.3 {
		t.Fatalf("剩余天数应为 6.3, 实际 %v", po.Inventory.DaysRemaining)
	}
	if len(po.Terms) != 5 || len(po.Approvals) != 3 || po.Approvals[0].Status != "APPROVED" || po.Approvals[1].Status != "PENDING" {
		t.Fatalf("条款或审批链错误: %v %+v", po.Terms, po.Approvals)
	}
	if po.CreatedBy != "Li Wei" || po.Delivery.ContactPerson != "Li Wei" {
		t.Fatalf("申请人未保留: %s", po.CreatedBy)
	}
}

func TestBuildDefaults(t *testing.T) {
	in := copperInputs()
	in.Inventory.Location = ""
	in.Inventory.DailyConsumption = 0
	in.Recommendation.CurrentPrice = 0
	po, err := Build(1002, raisedAt, Request{Material: "Copper"}, in, Options{TaxRate: 0.1, DeliveryAddress: "Main Yard"})
	if err != nil {
		t.Fatalf("生成采购单不应报错: %v", err)
	}
	if po.Material.Quantity != DefaultQuantity || po.CreatedBy != DefaultRequester {
		t.Fatalf("数量或申请人默认值错误: %v %s", po.Material.Quantity, po.CreatedBy)
	}
	if po.Delivery.DeliveryAddress != "Main Yard" {
		t.Fatalf("应使用配置的默认地址, 实际 %s", po.Delivery.DeliveryAddress)
	}
	if po.Financial.TaxAmount != 80000 || po.Financial.PotentialSavings != 0 {
		t.Fatalf("无市场价时节省应为 0, 税额应为 80000: %+v", po.Financial)
	}
	if po.Inventory.DaysRemaining != 250 {
		t.Fatalf("日耗为 0 时按 1 计算, 实际 %v", po.Inventory.DaysRemaining)
	}
}

func TestBuildRejectsBadQuantity(t *testing.T) {
	cases := map[string]float64{
		"negative":  -5,
		"nan":       math.NaN(),
		"inf":       math.Inf(1),
		"below min": 20,
	}
	for name, qty := range cases {
		_, err := Build(1001, raisedAt, Request{Material: "Copper", Quantity: qty}, copperInputs(), Options{})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("[%s] 应返回 INVALID_INPUT, 实际 %v", name, err)
		}
	}
}

func TestSelectVendor(t *testing.T) {
	vendors := []domain.Vendor{
		{Name: "Prime Suppliers Ltd.", Price: 130},
		{Name: "Budget Metals", Price: 110},
		{Name: "Metro Metals", Price: 120},
	}
	v, err := SelectVendor(vendors, "")
	if err != nil || v.Name != "Budget Metals" {
		t.Fatalf("未指定时应选最便宜的供应商, 实际 %s (%v)", v.Name, err)
	}
	v, err = SelectVendor(vendors, "metro metals")
	if err != nil || v.Name != "Metro Metals" {
		t.Fatalf("应按名称匹配供应商, 实际 %s (%v)", v.Name, err)
	}
	if _, err := SelectVendor(vendors, "Nobody"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("未知供应商应返回 NOT_FOUND, 实际 %v", err)
	}
	if _, err := SelectVendor(nil, ""); !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("无报价应返回 INSUFFICIENT_DATA, 实际 %v", err)
	}
}

func newDesk() *Desk {
	return NewDesk(storage.NewMemoryStore(), clock.Fixed{T: raisedAt}, zerolog.Nop(), Options{})
}

func TestDeskRaiseNumbersSequentially(t *testing.T) {
	desk := newDesk()
	ctx := context.Background()
	first, err := desk.Raise(ctx, Request{Material: "Copper"}, copperInputs())
	if err != nil {
		t.Fatalf("生成采购单不应报错: %v", err)
	}
	if _, err := desk.Raise(ctx, Request{Material: "Copper", Quantity: 1}, copperInputs()); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("低于起订量应被拒绝, 实际 %v", err)
	}
	second, err := desk.Raise(ctx, Request{Material: "Copper"}, copperInputs())
	if err != nil {
		t.Fatalf("生成采购单不应报错: %v", err)
	}
	if first.Number != "PO-202603-1001" || second.Number != "PO-202603-1002" {
		t.Fatalf("被拒绝的请求不应占用单号: %s %s", first.Number, second.Number)
	}
	list, _ := desk.List(ctx, "", 0)
	if len(list) != 2 || list[0].Number != second.Number {
		t.Fatalf("列表应最新优先, 实际 %+v", list)
	}
}

func TestDeskLifecycle(t *testing.T) {
	desk := newDesk()
	ctx := context.Background()
	po, err := desk.Raise(ctx, Request{Material: "Copper"}, copperInputs())
	if err != nil {
		t.Fatalf("生成采购单不应报错: %v", err)
	}

	if _, err := desk.UpdateStatus(ctx, po.Number, domain.POStatusOrdered, "ops"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("草稿不能直接下单, 实际 %v", err)
	}
	if _, err := desk.UpdateStatus(ctx, po.Number, domain.POStatusSubmitted, "Li Wei"); err != nil {
		t.Fatalf("提交不应报错: %v", err)
	}
	approved, err := desk.UpdateStatus(ctx, po.Number, domain.POStatusApproved, "Zhang Min")
	if err != nil {
		t.Fatalf("审批不应报错: %v", err)
	}
	if approved.UpdatedBy != "Zhang Min" || approved.UpdatedAt == nil || !approved.UpdatedAt.Equal(raisedAt) {
		t.Fatalf("更新人或时间未记录: %+v", approved)
	}
	for _, a := range approved.Approvals[1:] {
		if a.Status != "APPROVED" || a.Name != "Zhang Min" {
			t.Fatalf("审批链应被更新: %+v", approved.Approvals)
		}
	}

	for _, next := range []domain.POStatus{domain.POStatusOrdered, domain.POStatusReceived} {
		if _, err := desk.UpdateStatus(ctx, po.Number, next, "ops"); err != nil {
			t.Fatalf("状态 %s 不应报错: %v", next, err)
		}
	}
	if _, err := desk.UpdateStatus(ctx, po.Number, domain.POStatusCancelled, "ops"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("已收货为终态, 实际 %v", err)
	}
	stored, _ := desk.Get(ctx, po.Number)
	if stored.Status != domain.POStatusReceived {
		t.Fatalf("最终状态应为 RECEIVED, 实际 %s", stored.Status)
	}
	if _, err := desk.UpdateStatus(ctx, "PO-202603-9999", domain.POStatusSubmitted, "ops"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("未知单号应返回 NOT_FOUND, 实际 %v", err)
	}
}

func TestDeskRejectedOrderReturnsToDraft(t *testing.T) {
	desk := newDesk()
	ctx := context.Background()
	po, _ := desk.Raise(ctx, Request{Material: "Copper"}, copperInputs())
	_, _ = desk.UpdateStatus(ctx, po.Number, domain.POStatusSubmitted, "")
	rejected, err := desk.UpdateStatus(ctx, po.Number, domain.POStatusRejected, "Finance")
	if err != nil || rejected.Approvals[2].Status != "REJECTED" {
		t.Fatalf("驳回应更新审批链: %+v (%v)", rejected.Approvals, err)
	}
	draft, err := desk.UpdateStatus(ctx, po.Number, domain.POStatusDraft, "Li Wei")
	if err != nil {
		t.Fatalf("驳回后应可退回草稿: %v", err)
	}
	if draft.Approvals[1].Status != "PENDING" || draft.Approvals[0].Status != "APPROVED" {
		t.Fatalf("退回草稿应重置待审步骤: %+v", draft.Approvals)
	}
}

func TestParsePOStatus(t *testing.T) {
	if s, err := domain.ParsePOStatus(" submitted "); err != nil || s != domain.POStatusSubmitted {
		t.Fatalf("应忽略大小写与空白, 实际 %s (%v)", s, err)
	}
	if _, err := domain.ParsePOStatus("shipped"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("未知状态应返回 INVALID_INPUT, 实际 %v", err)
	}
}
