package supplychain

import (
	"fmt"
	"sort"
	"strings"

	"procurement-signals/internal/domain"
	"procurement-signals/internal/risk"
)

const (
	// DefaultBasePrice is the lead-time cost reference for materials without a configured base price.
	DefaultBasePrice = 1000.0
	// DefaultAlternativeThreshold is the maximum |cost ratio - 1| for a substitute to be listed.
	DefaultAlternativeThreshold = 0.15

	neutralVendorRisk = 50.0
)

// DefaultBasePrices are the per-ton reference prices used in cost efficiency.
func DefaultBasePrices() map[string]float64 {
	return map[string]float64{"Copper": 8000, "Aluminum": 2200, "Steel": 750}
}

// Options tune the analyzer.
type Options struct {
	BasePrices           map[string]float64
	AlternativeThreshold float64
}

// Analyzer derives supply chain insights from the current vendor snapshot.
type Analyzer struct {
	scorer     *risk.Scorer
	disruption risk.DisruptionModel
	opts       Options
}

// NewAnalyzer wires the vendor scorer and disruption model.
func NewAnalyzer(scorer *risk.Scorer, disruption risk.DisruptionModel, opts Options) *Analyzer {
	if scorer == nil {
		scorer = risk.NewScorer(nil)
	}
	if disruption == nil {
		disruption = risk.BaselineDisruption{}
	}
	if opts.BasePrices == nil {
		opts.BasePrices = DefaultBasePrices()
	}
	if opts.AlternativeThreshold <= 0 {
		opts.AlternativeThreshold = DefaultAlternativeThreshold
	}
	return &Analyzer{scorer: scorer, disruption: disruption, opts: opts}
}

// VendorRisks scores every vendor for material.
func (a *Analyzer) VendorRisks(material string, vendors []domain.Vendor) []domain.VendorRisk {
	return a.scorer.ScoreAll(vendors, material)
}

// BasePrice returns the cost reference for material.
func (a *Analyzer) BasePrice(material string) float64 {
	if p, ok := lookupPrice(a.opts.BasePrices, material); ok && p > 0 {
		return p
	}
	return DefaultBasePrice
}

// Insights computes the full supply chain picture for material. marketPrices
// holds current prices of other materials and feeds the substitute analysis.
func (a *Analyzer) Insights(material string, currentPrice float64, vendors []domain.Vendor, marketPrices map[string]float64) domain.SupplyChainInsight {
	risks := a.VendorRisks(material, vendors)

	avgRisk := neutralVendorRisk
	if len(risks) > 0 {
		sum := 0.0
		for _, r := range risks {
			sum += r.RiskScore
		}
		avgRisk = sum / float64(len(risks))
	}

	disruption := a.disruption.Assess(material)
	health := domain.Clamp(100-(avgRisk+disruption.Score)/2, 0, 100)

	alternatives := Alternatives(material, currentPrice, marketPrices, a.opts.AlternativeThreshold)
	ranking := RankLeadTimes(vendors, a.BasePrice(material))

	return domain.SupplyChainInsight{
		Material:        material,
		HealthScore:     domain.Round2(health),
		HealthLevel:     domain.LevelForHealth(health),
		AvgVendorRisk:   domain.Round2(avgRisk),
		VendorRisks:     risks,
		Alternatives:    alternatives,
		Disruption:      disruption,
		LeadTimeRanking: ranking,
		Recommendations: domain.InsightRecommendations{
			VendorSelection:  vendorSelection(risks),
			Timing:           timingAdvice(ranking),
			RiskMitigation:   disruption.Mitigations,
			CostOptimization: costAdvice(alternatives),
		},
	}
}

func vendorSelection(risks []domain.VendorRisk) []string {
	if len(risks) == 0 {
		return nil
	}
	sorted := make([]domain.VendorRisk, len(risks))
	copy(sorted, risks)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RiskScore < sorted[j].RiskScore })

	best := sorted[0]
	out := []string{fmt.Sprintf("Primary recommendation: %s (Risk Score: %.2f, Level: %s)", best.VendorName, best.RiskScore, best.RiskLevel)}

	var medium []string
	for _, r := range risks {
		if r.RiskScore >= 20 && r.RiskScore < 50 {
			medium = append(medium, r.VendorName)
			if len(medium) == 2 {
				break
			}
		}
	}
	if len(medium) > 0 {
		out = append(out, fmt.Sprintf("Secondary options: %s (Medium risk - consider for diversification)", strings.Join(medium, ", ")))
	}
	return out
}

func timingAdvice(ranking []domain.LeadTimeOption) []string {
	if len(ranking) == 0 {
		return []string{"No lead time optimization data available"}
	}
	best := ranking[0]
	return []string{fmt.Sprintf("Best option: %s with combined score of %.2f. %s.", best.VendorName, best.CombinedScore, best.OptimalOrderTiming)}
}

func costAdvice(alts []domain.AlternativeMaterial) []string {
	out := make([]string, 0, len(alts))
	for _, alt := range alts {
		out = append(out, alt.Recommendation)
	}
	return out
}
