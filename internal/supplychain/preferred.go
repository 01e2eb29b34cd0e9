package supplychain

import (
	"fmt"

	"procurement-signals/internal/domain"
)

const (
	// DefaultNegotiationThresholdPct is how far above market average a preferred price must be to negotiate.
	DefaultNegotiationThresholdPct = 5.0

	suggestedDiscount = 0.95
)

// ComparePreferred compares the preferred supplier's quote with the average
// of all vendor quotes for the material.
func ComparePreferred(material, preferred string, vendors []domain.Vendor, thresholdPct float64) (domain.PreferredSupplierComparison, error) {
	if preferred == "" {
		return domain.PreferredSupplierComparison{}, fmt.Errorf("%w: no preferred supplier configured for %s", domain.ErrNotFound, material)
	}
	if len(vendors) == 0 {
		return domain.PreferredSupplierComparison{}, fmt.Errorf("%w: no vendor quotes for %s", domain.ErrInsufficientData, material)
	}

	sum := 0.0
	preferredPrice := 0.0
	for _, v := range vendors {
		sum += v.Price
		if v.Name == preferred {
			preferredPrice = v.Price
		}
	}
	if preferredPrice <= 0 {
		return domain.PreferredSupplierComparison{}, fmt.Errorf("%w: preferred supplier %s has no quote for %s", domain.ErrNotFound, preferred, material)
	}

	avg := sum / float64(len(vendors))
	diffPct := (preferredPrice - avg) / avg * 100

	cmp := domain.PreferredSupplierComparison{
		Material:          material,
		PreferredSupplier: preferred,
		PreferredPrice:    domain.Round2(preferredPrice),
		MarketAverage:     domain.Round2(avg),
		DifferencePct:     domain.Round2(diffPct),
		ShouldNegotiate:   diffPct >= thresholdPct,
	}
	if cmp.ShouldNegotiate {
		suggested := avg * suggestedDiscount
		cmp.SuggestedPrice = domain.Round2(suggested)
		cmp.PotentialSavings = domain.Round2(preferredPrice - suggested)
		cmp.Message = fmt.Sprintf("Negotiate with %s to reduce price from $%s to around $%s (5%% below market average)",
			preferred, domain.Money(preferredPrice), domain.Money(suggested))
	} else {
		cmp.Message = fmt.Sprintf("Current price is competitive. No immediate negotiation needed with %s", preferred)
	}
	return cmp, nil
}
