package supplychain

import (
	"fmt"
	"math"
	"strings"

	"procurement-signals/internal/domain"
)

type substitute struct {
	material    string
	efficiency  float64
	feasibility float64
	useCase     string
}

var substitutions = map[string][]substitute{
	"copper": {
		{"Aluminum", 0.6, 0.7, "Electrical applications with modified design"},
		{"Copper Alloy", 0.9, 0.8, "High-performance applications"},
	},
	"aluminum": {
		{"Steel", 0.8, 0.6, "Structural applications"},
		{"Plastic Composite", 0.4, 0.5, "Non-critical lightweight applications"},
	},
	"steel": {
		{"Aluminum", 0.7, 0.6, "Weight-sensitive applications"},
		{"Stainless Steel", 1.2, 0.9, "Corrosion-resistant applications"},
	},
}

// Alternatives lists substitutes whose current market price is within
// threshold (as a ratio) of currentPrice. Substitutes without a known
// market price are skipped.
func Alternatives(material string, currentPrice float64, marketPrices map[string]float64, threshold float64) []domain.AlternativeMaterial {
	if currentPrice <= 0 {
		return nil
	}
	var out []domain.AlternativeMaterial
	for _, sub := range substitutions[strings.ToLower(material)] {
		price, ok := lookupPrice(marketPrices, sub.material)
		if !ok || price <= 0 {
			continue
		}
		ratio := price / currentPrice
		if math.Abs(ratio-1) > threshold {
			continue
		}
		out = append(out, domain.AlternativeMaterial{
			Material:        sub.material,
			CostRatio:       domain.Round2(ratio),
			PriceDifference: domain.Round2(price - currentPrice),
			EfficiencyRatio: sub.efficiency,
			Feasibility:     sub.feasibility,
			UseCase:         sub.useCase,
			Recommendation:  alternativeAdvice(sub, ratio),
		})
	}
	return out
}

func lookupPrice(prices map[string]float64, material string) (float64, bool) {
	if p, ok := prices[material]; ok {
		return p, true
	}
	for k, p := range prices {
		if strings.EqualFold(k, material) {
			return p, true
		}
	}
	return 0, false
}

func alternativeAdvice(sub substitute, ratio float64) string {
	switch {
	case ratio < 1:
		return fmt.Sprintf("%s is %.1f%% cheaper; consider for %s", sub.material, (1-ratio)*100, strings.ToLower(sub.useCase))
	case ratio > 1:
		return fmt.Sprintf("%s is %.1f%% more expensive; only for %s", sub.material, (ratio-1)*100, strings.ToLower(sub.useCase))
	default:
		return fmt.Sprintf("%s costs the same; consider for %s", sub.material, strings.ToLower(sub.useCase))
	}
}
