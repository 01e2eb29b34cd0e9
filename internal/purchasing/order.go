// Package purchasing turns a buy recommendation into a numbered purchase order
// and moves it through the approval lifecycle.
package purchasing

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"procurement-signals/internal/domain"
)

const (
	DefaultTaxRate         = 0.18
	DefaultCurrency        = "USD"
	DefaultQuantity        = 100.0
	DefaultDeliveryAddress = "Warehouse A"
	DefaultRequester       = "Procurement Manager"

	defaultUnit         = "tons"
	defaultPaymentTerms = "Net 30"
	defaultReliability  = "Medium"
	expectedDateLayout  = "2006-01-02"
)

var defaultTerms = []string{
	"Payment terms as per vendor agreement",
	"Quality inspection upon delivery",
	"Penalties for late delivery as per contract",
	"Material specifications as per industry standards",
	"Insurance coverage during transit",
}

// Options carry the order defaults that come from configuration. Zero values
// fall back to the package defaults.
type Options struct {
	TaxRate         float64
	Currency        string
	DefaultQuantity float64
	DeliveryAddress string
}

func (o Options) withDefaults() Options {
	if o.TaxRate <= 0 || o.TaxRate >= 1 || math.IsNaN(o.TaxRate) {
		o.TaxRate = DefaultTaxRate
	}
	if o.Currency == "" {
		o.Currency = DefaultCurrency
	}
	if o.DefaultQuantity <= 0 || math.IsNaN(o.DefaultQuantity) || math.IsInf(o.DefaultQuantity, 0) {
		o.DefaultQuantity = DefaultQuantity
	}
	if o.DeliveryAddress == "" {
		o.DeliveryAddress = DefaultDeliveryAddress
	}
	return o
}

// Request is what a caller asks for. Zero Quantity means the configured
// default; an empty Vendor means the cheapest quote.
type Request struct {
	Material  string  `json:"material"`
	Quantity  float64 `json:"quantity,omitempty"`
	Requester string  `json:"requester,omitempty"`
	Vendor    string  `json:"vendor,omitempty"`
}

// Inputs are the signals an order is priced from.
type Inputs struct {
	Recommendation domain.Recommendation
	Vendor         domain.Vendor
	Inventory      domain.InventoryRecord
}

// Number formats an order number as PO-YYYYMM-NNNN.
func Number(at time.Time, seq int64) string {
	return fmt.Sprintf("PO-%s-%04d", at.UTC().Format("200601"), seq)
}

// SelectVendor returns the named vendor, or the cheapest one when name is empty.
func SelectVendor(vendors []domain.Vendor, name string) (domain.Vendor, error) {
	if len(vendors) == 0 {
		return domain.Vendor{}, fmt.Errorf("%w: no vendor quotes", domain.ErrInsufficientData)
	}
	if name = strings.TrimSpace(name); name != "" {
		for _, v := range vendors {
			if strings.EqualFold(v.Name, name) {
				return v, nil
			}
		}
		return domain.Vendor{}, fmt.Errorf("%w: vendor %s", domain.ErrNotFound, name)
	}
	best := vendors[0]
	for _, v := range vendors[1:] {
		if v.Price < best.Price {
			best = v
		}
	}
	return best, nil
}

// Build prices a DRAFT order. It is pure: numbering and persistence belong to
// the caller.
func Build(seq int64, at time.Time, req Request, in Inputs, opts Options) (domain.PurchaseOrder, error) {
	opts = opts.withDefaults()

	qty := req.Quantity
	if qty == 0 {
		qty = opts.DefaultQuantity
	}
	if math.IsNaN(qty) || math.IsInf(qty, 0) || qty <= 0 {
		return domain.PurchaseOrder{}, fmt.Errorf("%w: quantity must be a positive number, got %v", domain.ErrInvalidInput, req.Quantity)
	}
	v := in.Vendor
	if math.IsNaN(v.Price) || math.IsInf(v.Price, 0) || v.Price <= 0 {
		return domain.PurchaseOrder{}, fmt.Errorf("%w: vendor %s has no usable price", domain.ErrInvalidInput, v.Name)
	}
	if v.MinOrder > 0 && qty < float64(v.MinOrder) {
		return domain.PurchaseOrder{}, fmt.Errorf("%w: quantity %v below %s minimum order %d", domain.ErrInvalidInput, qty, v.Name, v.MinOrder)
	}

	requester := strings.TrimSpace(req.Requester)
	if requester == "" {
		requester = DefaultRequester
	}
	marketPrice := in.Recommendation.CurrentPrice
	if marketPrice <= 0 {
		marketPrice = v.Price
	}

	quantity := decimal.NewFromFloat(qty)
	unitPrice := decimal.NewFromFloat(v.Price)
	subtotal := quantity.Mul(unitPrice)
	tax := subtotal.Mul(decimal.NewFromFloat(opts.TaxRate))
	savings := decimal.NewFromFloat(marketPrice).Sub(unitPrice).Mul(quantity)

	at = at.UTC()
	address := in.Inventory.Location
	if address == "" {
		address = opts.DeliveryAddress
	}
	unit := in.Inventory.Unit
	if unit == "" {
		unit = defaultUnit
	}
	terms := v.PaymentTerms
	if terms == "" {
		terms = defaultPaymentTerms
	}
	reliability := v.Reliability
	if reliability == "" {
		reliability = defaultReliability
	}
	daysRemaining := in.Inventory.CurrentStock / math.Max(in.Inventory.DailyConsumption, 1)

	return domain.PurchaseOrder{
		Number:    Number(at, seq),
		Seq:       seq,
		Status:    domain.POStatusDraft,
		CreatedAt: at,
		CreatedBy: requester,
		Material: domain.POLine{
			Name:               in.Recommendation.Material,
			Quantity:           qty,
			Unit:               unit,
			UnitPrice:          domain.Round2(v.Price),
			CurrentMarketPrice: domain.Round2(marketPrice),
		},
		Vendor: domain.POVendor{
			Name:         v.Name,
			Rating:       v.Rating,
			PaymentTerms: terms,
			MinOrder:     v.MinOrder,
			Reliability:  reliability,
		},
		Delivery: domain.PODelivery{
			ExpectedDate:    at.AddDate(0, 0, v.DeliveryDays).Format(expectedDateLayout),
			DeliveryDays:    v.DeliveryDays,
			DeliveryAddress: address,
			ContactPerson:   requester,
		},
		Financial: domain.POFinancial{
			Subtotal:         subtotal.Round(2).InexactFloat64(),
			TaxRate:          opts.TaxRate,
			TaxAmount:        tax.Round(2).InexactFloat64(),
			TotalAmount:      subtotal.Add(tax).Round(2).InexactFloat64(),
			Currency:         opts.Currency,
			PotentialSavings: savings.Round(2).InexactFloat64(),
		},
		Recommendation: domain.PORecommendation{
			Label:          in.Recommendation.Label,
			Reason:         in.Recommendation.Reason,
			Confidence:     in.Recommendation.Confidence,
			PriceChangePct: in.Recommendation.PriceChangePct,
			BestDay:        in.Recommendation.BestDay,
		},
		Inventory: domain.POInventory{
			CurrentStock:     in.Inventory.CurrentStock,
			MinThreshold:     in.Inventory.MinThreshold,
			DailyConsumption: in.Inventory.DailyConsumption,
			DaysRemaining:    decimal.NewFromFloat(daysRemaining).Round(1).InexactFloat64(),
		},
		Terms: append([]string(nil), defaultTerms...),
		Approvals: []domain.POApproval{
			{Role: "requester", Name: requester, Status: "APPROVED", Date: at.Format(expectedDateLayout)},
			{Role: "manager", Name: "Pending", Status: "PENDING"},
			{Role: "finance", Name: "Pending", Status: "PENDING"},
		},
	}, nil
}
