package risk

import (
	"fmt"
	"math"

	"procurement-signals/internal/domain"
)

const (
	weightFinancial = 0.30
	weightDelivery  = 0.25
	weightQuality   = 0.20
	weightGeo       = 0.15
	weightCapacity  = 0.10

	maxRating           = 5.0
	deliveryHorizonDays = 30.0
	capacityFloor       = 10
	capacitySpan        = 990.0
)

// Scorer computes the weighted five-factor vendor risk. Scores are
// recomputed on every call; nothing is cached across snapshots.
type Scorer struct {
	geo GeoRiskSource
}

// NewScorer builds a Scorer. A nil source uses the fixed baseline.
func NewScorer(geo GeoRiskSource) *Scorer {
	if geo == nil {
		geo = FixedGeoRisk{Value: BaselineGeoRisk}
	}
	return &Scorer{geo: geo}
}

// Score rates a single vendor for material. 0 is best, 100 is worst.
func (s *Scorer) Score(v domain.Vendor, material string) domain.VendorRisk {
	ratingRisk := domain.Clamp((maxRating-v.Rating)/4.0*100, 0, 100)
	breakdown := domain.RiskBreakdown{
		FinancialStability:  ratingRisk,
		DeliveryPerformance: math.Min(float64(v.DeliveryDays)/deliveryHorizonDays*100, 100),
		QualityScore:        ratingRisk,
		GeographicRisk:      s.geographicRisk(v, material),
		SupplyCapacity:      supplyCapacityRisk(v.MinOrder),
	}

	score := breakdown.FinancialStability*weightFinancial +
		breakdown.DeliveryPerformance*weightDelivery +
		breakdown.QualityScore*weightQuality +
		breakdown.GeographicRisk*weightGeo +
		breakdown.SupplyCapacity*weightCapacity
	score = domain.Clamp(score, 0, 100)

	return domain.VendorRisk{
		VendorName: v.Name,
		RiskScore:  domain.Round2(score),
		RiskLevel:  domain.LevelForRisk(score),
		Breakdown: domain.RiskBreakdown{
			FinancialStability:  domain.Round2(breakdown.FinancialStability),
			DeliveryPerformance: domain.Round2(breakdown.DeliveryPerformance),
			QualityScore:        domain.Round2(breakdown.QualityScore),
			GeographicRisk:      domain.Round2(breakdown.GeographicRisk),
			SupplyCapacity:      domain.Round2(breakdown.SupplyCapacity),
		},
		Recommendation: recommendation(score, v.Name),
	}
}

// geographicRisk falls back to the baseline when the feed returns a non-number.
func (s *Scorer) geographicRisk(v domain.Vendor, material string) float64 {
	geo := s.geo.GeographicRisk(v, material)
	if math.IsNaN(geo) || math.IsInf(geo, 0) {
		return BaselineGeoRisk
	}
	return domain.Clamp(geo, 0, 100)
}

// ScoreAll rates every vendor in list order.
func (s *Scorer) ScoreAll(vendors []domain.Vendor, material string) []domain.VendorRisk {
	out := make([]domain.VendorRisk, 0, len(vendors))
	for _, v := range vendors {
		out = append(out, s.Score(v, material))
	}
	return out
}

func supplyCapacityRisk(minOrder int) float64 {
	if minOrder <= capacityFloor {
		return 0
	}
	return math.Min(float64(minOrder-capacityFloor)/capacitySpan*100, 100)
}

func recommendation(score float64, name string) string {
	switch domain.LevelForRisk(score) {
	case domain.RiskLow:
		return fmt.Sprintf("Procure from %s - Low risk vendor", name)
	case domain.RiskMedium:
		return fmt.Sprintf("Consider %s - Medium risk, monitor closely", name)
	case domain.RiskHigh:
		return fmt.Sprintf("Use with caution - High risk vendor (%s)", name)
	default:
		return fmt.Sprintf("Avoid %s - Critical risk, seek alternatives", name)
	}
}
