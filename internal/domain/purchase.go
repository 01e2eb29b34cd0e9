package domain

import (
	"fmt"
	"strings"
	"time"
)

// POStatus is the lifecycle state of a purchase order.
type POStatus string

const (
	POStatusDraft     POStatus = "DRAFT"
	POStatusSubmitted POStatus = "SUBMITTED"
	POStatusApproved  POStatus = "APPROVED"
	POStatusRejected  POStatus = "REJECTED"
	POStatusOrdered   POStatus = "ORDERED"
	POStatusReceived  POStatus = "RECEIVED"
	POStatusCancelled POStatus = "CANCELLED"
)

// poTransitions lists the statuses each status may move to. RECEIVED and
// CANCELLED are terminal; a REJECTED order can be reworked as a draft.
var poTransitions = map[POStatus][]POStatus{
	POStatusDraft:     {POStatusSubmitted, POStatusCancelled},
	POStatusSubmitted: {POStatusApproved, POStatusRejected, POStatusCancelled},
	POStatusApproved:  {POStatusOrdered, POStatusCancelled},
	POStatusRejected:  {POStatusDraft, POStatusCancelled},
	POStatusOrdered:   {POStatusReceived, POStatusCancelled},
	POStatusReceived:  nil,
	POStatusCancelled: nil,
}

// ParsePOStatus accepts a status case-insensitively.
func ParsePOStatus(raw string) (POStatus, error) {
	s := POStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := poTransitions[s]; !ok {
		return "", fmt.Errorf("%w: unknown purchase order status %q", ErrInvalidInput, raw)
	}
	return s, nil
}

// CanMoveTo reports whether the lifecycle allows s -> next.
func (s POStatus) CanMoveTo(next POStatus) bool {
	for _, allowed := range poTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// POLine is the ordered material.
type POLine struct {
	Name               string  `json:"name"`
	Quantity           float64 `json:"quantity"`
	Unit               string  `json:"unit"`
	UnitPrice          float64 `json:"unit_price"`
	CurrentMarketPrice float64 `json:"current_market_price"`
}

// POVendor is the supplier snapshot copied onto the order.
type POVendor struct {
	Name         string  `json:"name"`
	Rating       float64 `json:"rating"`
	PaymentTerms string  `json:"payment_terms"`
	MinOrder     int     `json:"min_order"`
	Reliability  string  `json:"reliability"`
}

// PODelivery describes when and where the goods arrive.
type PODelivery struct {
	ExpectedDate    string `json:"expected_date"`
	DeliveryDays    int    `json:"delivery_days"`
	DeliveryAddress string `json:"delivery_address"`
	ContactPerson   string `json:"contact_person"`
}

// POFinancial holds the order totals.
type POFinancial struct {
	Subtotal         float64 `json:"subtotal"`
	TaxRate          float64 `json:"tax_rate"`
	TaxAmount        float64 `json:"tax_amount"`
	TotalAmount      float64 `json:"total_amount"`
	Currency         string  `json:"currency"`
	PotentialSavings float64 `json:"potential_savings"`
}

// PORecommendation is the forecast context the order was raised under.
type PORecommendation struct {
	Label          Label      `json:"recommendation"`
	Reason         string     `json:"reason"`
	Confidence     Confidence `json:"confidence"`
	PriceChangePct float64    `json:"price_change_pct"`
	BestDay        int        `json:"best_day_to_buy"`
}

// POInventory is the stock position when the order was raised.
type POInventory struct {
	CurrentStock     float64 `json:"current_stock"`
	MinThreshold     float64 `json:"min_threshold"`
	DailyConsumption float64 `json:"daily_consumption"`
	DaysRemaining    float64 `json:"days_remaining"`
}

// POApproval is one step of the approval chain.
type POApproval struct {
	Role   string `json:"role"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Date   string `json:"date,omitempty"`
}

// PurchaseOrder is a generated order. Number is unique and never reused.
type PurchaseOrder struct {
	Number         string           `json:"po_number"`
	Seq            int64            `json:"seq"`
	Status         POStatus         `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	CreatedBy      string           `json:"created_by"`
	UpdatedAt      *time.Time       `json:"last_updated,omitempty"`
	UpdatedBy      string           `json:"last_updated_by,omitempty"`
	Material       POLine           `json:"material"`
	Vendor         POVendor         `json:"vendor"`
	Delivery       PODelivery       `json:"delivery"`
	Financial      POFinancial      `json:"financial"`
	Recommendation PORecommendation `json:"recommendation_context"`
	Inventory      POInventory      `json:"inventory_context"`
	Terms          []string         `json:"terms"`
	Approvals      []POApproval     `json:"approvals"`
}
