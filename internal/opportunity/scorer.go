package opportunity

import (
	"fmt"

	"procurement-signals/internal/domain"
)

const (
	weightPrice     = 0.4
	weightInventory = 0.3
	weightVendor    = 0.2
	weightMarket    = 0.1

	neutral = 50.0
)

// Score combines price timing, inventory urgency, vendor quality and market
// stability into a 0-100 procurement opportunity. Any absent input falls back
// to a neutral 50; only when every input is absent does it fail.
func Score(material string, rec *domain.Recommendation, inventory map[string]domain.InventoryRecord, vendors []domain.Vendor, insight *domain.SupplyChainInsight) (domain.OpportunityScore, error) {
	inv, hasInventory := inventory[material]
	if rec == nil && !hasInventory && len(vendors) == 0 && insight == nil {
		return domain.OpportunityScore{}, fmt.Errorf("%w: no opportunity inputs for %s", domain.ErrMissingSignal, material)
	}

	b := domain.OpportunityBreakdown{
		PriceOpportunity: priceOpportunity(rec),
		InventoryNeed:    neutral,
		VendorQuality:    neutral,
		MarketStability:  neutral,
	}
	if hasInventory {
		b.InventoryNeed = inventoryNeed(inv)
	}
	if best, ok := cheapestVendor(vendors); ok {
		b.VendorQuality = domain.Round2(best.Rating / 5.0 * 100)
	}
	if insight != nil {
		b.MarketStability = insight.HealthScore
	}

	total := domain.Round2(b.PriceOpportunity*weightPrice +
		b.InventoryNeed*weightInventory +
		b.VendorQuality*weightVendor +
		b.MarketStability*weightMarket)

	return domain.OpportunityScore{
		Material:       material,
		Score:          total,
		Breakdown:      b,
		Recommendation: advice(total),
	}, nil
}

func priceOpportunity(rec *domain.Recommendation) float64 {
	if rec == nil {
		return neutral
	}
	switch rec.Label {
	case domain.LabelBuyNow:
		return 100
	case domain.LabelMonitor:
		return 50
	default:
		return 10
	}
}

func inventoryNeed(r domain.InventoryRecord) float64 {
	switch {
	case r.CurrentStock < r.MinThreshold:
		return 100
	case r.CurrentStock < r.MinThreshold*1.2:
		return 70
	default:
		return 20
	}
}

// cheapestVendor returns the first vendor with the lowest price.
func cheapestVendor(vendors []domain.Vendor) (domain.Vendor, bool) {
	if len(vendors) == 0 {
		return domain.Vendor{}, false
	}
	best := vendors[0]
	for _, v := range vendors[1:] {
		if v.Price < best.Price {
			best = v
		}
	}
	return best, true
}

func advice(score float64) string {
	switch {
	case score >= 80:
		return "Excellent opportunity. Conditions are highly favorable for procurement."
	case score >= 60:
		return "Good opportunity. Consider procuring now to take advantage of the current conditions."
	case score >= 40:
		return "Fair opportunity. You may want to wait for more favorable conditions."
	default:
		return "Not recommended. It is advised to wait for a better opportunity."
	}
}
