package supplychain

import (
	"fmt"
	"math"
	"sort"

	"procurement-signals/internal/domain"
)

const (
	timeWeight = 0.6
	costWeight = 0.4
)

// RankLeadTimes scores vendors on delivery speed and cost against basePrice
// and returns them best first. Ties keep vendor list order.
func RankLeadTimes(vendors []domain.Vendor, basePrice float64) []domain.LeadTimeOption {
	out := make([]domain.LeadTimeOption, 0, len(vendors))
	for _, v := range vendors {
		timeScore := math.Max(0, 100-float64(v.DeliveryDays)*5)
		cost := 0.0
		if basePrice > 0 {
			cost = math.Max(0, 100-(v.Price-basePrice)/basePrice*50)
		}
		combined := timeScore*timeWeight + cost*costWeight
		out = append(out, domain.LeadTimeOption{
			VendorName:         v.Name,
			DeliveryDays:       v.DeliveryDays,
			Price:              v.Price,
			TimeScore:          domain.Round2(timeScore),
			CostEfficiency:     domain.Round2(cost),
			CombinedScore:      domain.Round2(combined),
			Recommendation:     leadTimeAdvice(combined, v.Name),
			OptimalOrderTiming: orderTiming(v.DeliveryDays),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CombinedScore > out[j].CombinedScore })
	return out
}

func leadTimeAdvice(score float64, name string) string {
	switch {
	case score >= 80:
		return fmt.Sprintf("Highly recommended - Best time/cost balance for %s", name)
	case score >= 60:
		return fmt.Sprintf("Good option with balanced delivery and cost for %s", name)
	case score >= 40:
		return fmt.Sprintf("Consider %s if faster delivery is more important than cost", name)
	default:
		return fmt.Sprintf("%s has high delivery time or cost - consider alternatives", name)
	}
}

func orderTiming(days int) string {
	switch {
	case days <= 5:
		return fmt.Sprintf("Order 1-2 days before needed (fast delivery: %d days)", days)
	case days <= 10:
		return fmt.Sprintf("Order 3-5 days before needed (medium delivery: %d days)", days)
	default:
		return fmt.Sprintf("Order 1-2 weeks before needed (slow delivery: %d days)", days)
	}
}
