package supplychain

import (
	"errors"
	"math"
	"strings"
	"testing"

	"procurement-signals/internal/domain"
	"procurement-signals/internal/risk"
)

func sampleVendors() []domain.Vendor {
	return []domain.Vendor{
		{Name: "Global Metals Inc.", Price: 8450, Rating: 4.5, DeliveryDays: 7, MinOrder: 100, PaymentTerms: "Net 30", Reliability: "High"},
		{Name: "Prime Suppliers Ltd.", Price: 8300, Rating: 3.8, DeliveryDays: 12, MinOrder: 200, PaymentTerms: "Net 60", Reliability: "Medium"},
		{Name: "Elite Resources Group", Price: 8600, Rating: 4.8, DeliveryDays: 5, MinOrder: 50, PaymentTerms: "Advance", Reliability: "High"},
	}
}

func newTestAnalyzer() *Analyzer {
	return NewAnalyzer(risk.NewScorer(risk.FixedGeoRisk{Value: 20}), risk.BaselineDisruption{}, Options{})
}

func TestInsightsEmptyVendorsUsesNeutralRisk(t *testing.T) {
	got := newTestAnalyzer().Insights("Copper", 8000, nil, nil)
	if got.AvgVendorRisk != 50 || got.HealthScore != 50 || got.HealthLevel != domain.HealthFair {
		t.Fatalf("无供应商时应使用中性风险 50: %+v", got)
	}
	if len(got.Recommendations.VendorSelection) != 0 {
		t.Fatal("无供应商时不应有推荐")
	}
	if got.Recommendations.Timing[0] != "No lead time optimization data available" {
		t.Fatalf("timing 不正确: %v", got.Recommendations.Timing)
	}
}

func TestInsightsAggregatesVendors(t *testing.T) {
	got := newTestAnalyzer().Insights("Copper", 8000, sampleVendors(), nil)

	if len(got.VendorRisks) != 3 {
		t.Fatalf("应对每个供应商打分, 实际 %d", len(got.VendorRisks))
	}
	if got.HealthLevel != domain.HealthGood || math.Abs(got.HealthScore-65.67) > 0.02 {
		t.Fatalf("健康分应约为 65.67/GOOD, 实际 %v/%s", got.HealthScore, got.HealthLevel)
	}

	sel := got.Recommendations.VendorSelection
	if len(sel) != 2 || !strings.HasPrefix(sel[0], "Primary recommendation: Elite Resources Group") {
		t.Fatalf("首选供应商不正确: %v", sel)
	}
	if sel[1] != "Secondary options: Prime Suppliers Ltd. (Medium risk - consider for diversification)" {
		t.Fatalf("次选供应商不正确: %s", sel[1])
	}

	order := []string{"Elite Resources Group", "Global Metals Inc.", "Prime Suppliers Ltd."}
	for i, opt := range got.LeadTimeRanking {
		if opt.VendorName != order[i] {
			t.Fatalf("交期排名第 %d 位应为 %s, 实际 %s", i+1, order[i], opt.VendorName)
		}
	}
	if got.LeadTimeRanking[0].CombinedScore != 83.5 {
		t.Fatalf("Elite 综合分应为 83.5, 实际 %v", got.LeadTimeRanking[0].CombinedScore)
	}
	if !strings.Contains(got.Recommendations.Timing[0], "fast delivery: 5 days") {
		t.Fatalf("timing 不正确: %s", got.Recommendations.Timing[0])
	}
	if len(got.Recommendations.RiskMitigation) != 2 {
		t.Fatalf("应带出缓解策略: %v", got.Recommendations.RiskMitigation)
	}
}

func TestInsightsHealthClamped(t *testing.T) {
	a := NewAnalyzer(risk.NewScorer(risk.FixedGeoRisk{Value: 100}), fixedDisruption{score: 100}, Options{})
	worst := []domain.Vendor{{Name: "W", Price: 1, Rating: 0, DeliveryDays: 90, MinOrder: 5000}}
	got := a.Insights("Copper", 8000, worst, nil)
	if got.HealthScore < 0 || got.HealthLevel != domain.HealthPoor {
		t.Fatalf("健康分应截断且为 POOR: %+v", got)
	}
}

type fixedDisruption struct{ score float64 }

func (f fixedDisruption) Assess(material string) domain.DisruptionRisk {
	return domain.DisruptionRisk{Material: material, Score: f.score, Level: domain.LevelForRisk(f.score)}
}

func TestAlternativesFilterByCostRatio(t *testing.T) {
	got := Alternatives("Steel", 750, map[string]float64{"Aluminum": 800, "Stainless Steel": 900}, DefaultAlternativeThreshold)
	if len(got) != 1 || got[0].Material != "Aluminum" {
		t.Fatalf("只有 Aluminum 在 15%% 内: %+v", got)
	}
	if got[0].CostRatio != 1.07 || got[0].EfficiencyRatio != 0.7 {
		t.Fatalf("成本比/效率不正确: %+v", got[0])
	}
	if none := Alternatives("Copper", 8000, map[string]float64{"Aluminum": 2200}, DefaultAlternativeThreshold); len(none) != 0 {
		t.Fatalf("成本差距过大的替代品应被过滤: %+v", none)
	}
	if unknown := Alternatives("Copper", 8000, nil, DefaultAlternativeThreshold); len(unknown) != 0 {
		t.Fatal("未知价格的替代品应被跳过")
	}
}

func TestRankLeadTimesStableOnTies(t *testing.T) {
	vendors := []domain.Vendor{
		{Name: "A", Price: 750, DeliveryDays: 10},
		{Name: "B", Price: 750, DeliveryDays: 10},
	}
	got := RankLeadTimes(vendors, 750)
	if got[0].VendorName != "A" || got[1].VendorName != "B" {
		t.Fatalf("同分时应保持原始顺序: %+v", got)
	}
	if got[0].OptimalOrderTiming != "Order 3-5 days before needed (medium delivery: 10 days)" {
		t.Fatalf("下单时机不正确: %s", got[0].OptimalOrderTiming)
	}
}

func TestComparePreferred(t *testing.T) {
	vendors := []domain.Vendor{{Name: "A", Price: 100}, {Name: "B", Price: 100}, {Name: "Pref", Price: 115}}
	got, err := ComparePreferred("Copper", "Pref", vendors, DefaultNegotiationThresholdPct)
	if err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	if !got.ShouldNegotiate || got.MarketAverage != 105 || got.SuggestedPrice != 99.75 || got.PotentialSavings != 15.25 {
		t.Fatalf("议价结果不正确: %+v", got)
	}

	cheap, err := ComparePreferred("Copper", "A", vendors, DefaultNegotiationThresholdPct)
	if err != nil || cheap.ShouldNegotiate {
		t.Fatalf("价格低于均值时不应议价: %+v %v", cheap, err)
	}

	if _, err := ComparePreferred("Copper", "Missing", vendors, 5); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("未知首选供应商应返回 ErrNotFound, 实际 %v", err)
	}
	if _, err := ComparePreferred("Copper", "", vendors, 5); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("未配置首选供应商应返回 ErrNotFound, 实际 %v", err)
	}
}
