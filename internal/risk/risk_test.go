package risk

import (
	"math"
	"reflect"
	"strings"
	"testing"

	"procurement-signals/internal/domain"
)

func TestScorePerfectVendorOnlyGeoContributes(t *testing.T) {
	s := NewScorer(nil)
	got := s.Score(domain.Vendor{Name: "Elite Resources Group", Price: 8600, Rating: 5, DeliveryDays: 0, MinOrder: 10}, "Copper")

	b := got.Breakdown
	if b.FinancialStability != 0 || b.QualityScore != 0 || b.SupplyCapacity != 0 || b.DeliveryPerformance != 0 {
		t.Fatalf("满分供应商只有地缘风险应非零: %+v", b)
	}
	if got.RiskScore != 3 {
		t.Fatalf("期望 20*0.15=3, 实际 %v", got.RiskScore)
	}
	if got.RiskLevel != domain.RiskLow || got.Recommendation != "Procure from Elite Resources Group - Low risk vendor" {
		t.Fatalf("等级/建议不正确: %s / %s", got.RiskLevel, got.Recommendation)
	}
}

func TestScoreWeightedFactors(t *testing.T) {
	s := NewScorer(FixedGeoRisk{Value: 20})
	v := domain.Vendor{Name: "Prime Suppliers Ltd.", Price: 8300, Rating: 3.8, DeliveryDays: 12, MinOrder: 200}
	got := s.Score(v, "Copper")

	// rating risk 30, delivery 40, capacity 190/990*100
	capacity := 190.0 / 990 * 100
	want := 30*0.3 + 40*0.25 + 30*0.2 + 20*0.15 + capacity*0.1
	if math.Abs(got.RiskScore-domain.Round2(want)) > 1e-9 {
		t.Fatalf("期望 %.2f, 实际 %v", want, got.RiskScore)
	}
	if got.RiskLevel != domain.RiskMedium || !strings.HasPrefix(got.Recommendation, "Consider Prime Suppliers Ltd.") {
		t.Fatalf("应为 MEDIUM: %+v", got)
	}
}

func TestScoreClampsGeographicRisk(t *testing.T) {
	v := domain.Vendor{Name: "X", Price: 1, Rating: 5, MinOrder: 10}
	high := NewScorer(FixedGeoRisk{Value: 250}).Score(v, "Steel")
	if high.Breakdown.GeographicRisk != 100 || high.RiskScore != 15 {
		t.Fatalf("地缘风险应截断到 100: %+v", high)
	}
	low := NewScorer(FixedGeoRisk{Value: -40}).Score(v, "Steel")
	if low.Breakdown.GeographicRisk != 0 || low.RiskScore != 0 {
		t.Fatalf("地缘风险应截断到 0: %+v", low)
	}
}

func TestScoreNonFiniteGeographicRiskUsesBaseline(t *testing.T) {
	v := domain.Vendor{Name: "X", Price: 1, Rating: 5, MinOrder: 10}
	for _, geo := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		got := NewScorer(FixedGeoRisk{Value: geo}).Score(v, "Steel")
		if got.Breakdown.GeographicRisk != BaselineGeoRisk || got.RiskScore != 3 {
			t.Fatalf("非数值地缘风险应回落到基线 %v: %+v", BaselineGeoRisk, got)
		}
	}
}

func TestScoreAlwaysInRange(t *testing.T) {
	s := NewScorer(NewSimulatedGeoRisk(7))
	worst := domain.Vendor{Name: "Worst", Price: 1, Rating: 0, DeliveryDays: 365, MinOrder: 100000}
	for i := 0; i < 50; i++ {
		got := s.Score(worst, "Copper")
		if got.RiskScore < 0 || got.RiskScore > 100 {
			t.Fatalf("风险分越界: %v", got.RiskScore)
		}
		if got.RiskLevel != domain.RiskCritical && got.RiskScore >= 80 {
			t.Fatalf("等级与分数不一致: %+v", got)
		}
	}
}

func TestSimulatedGeoRiskBoundsAndSeed(t *testing.T) {
	a, b := NewSimulatedGeoRisk(42), NewSimulatedGeoRisk(42)
	for i := 0; i < 200; i++ {
		x := a.GeographicRisk(domain.Vendor{}, "Copper")
		if x < 10 || x > 40 {
			t.Fatalf("扰动应在 [10,40], 实际 %v", x)
		}
		if y := b.GeographicRisk(domain.Vendor{}, "Copper"); x != y {
			t.Fatal("相同种子应产生相同序列")
		}
	}
}

func TestBaselineDisruptionDeterministic(t *testing.T) {
	m := BaselineDisruption{}
	copper := m.Assess("Copper")
	if copper.Score != 50 || copper.Level != domain.RiskHigh {
		t.Fatalf("Copper 基线应为 50/HIGH, 实际 %v/%s", copper.Score, copper.Level)
	}
	if steel := m.Assess("Steel"); steel.Score != 45 {
		t.Fatalf("Steel 基线应为 45, 实际 %v", steel.Score)
	}
	if other := m.Assess("Nickel"); other.Score != 40 || len(other.AlternativeSources) != 1 {
		t.Fatalf("未知材料基线不正确: %+v", other)
	}
	if !reflect.DeepEqual(copper, m.Assess("Copper")) {
		t.Fatal("基线模型应确定")
	}
}

func TestSimulatedDisruptionRanges(t *testing.T) {
	m := NewSimulatedDisruption(99)
	for i := 0; i < 100; i++ {
		d := m.Assess("Aluminum")
		if d.Score < 25 || d.Score > 75 {
			t.Fatalf("Aluminum 分数应在 [25,75], 实际 %v", d.Score)
		}
		if n := len(d.Factors); n < 2 || n > 4 {
			t.Fatalf("风险因素数量应为 2-4, 实际 %d", n)
		}
		if n := len(d.Mitigations); n < 2 || n > 3 {
			t.Fatalf("缓解策略数量应为 2-3, 实际 %d", n)
		}
		seen := map[string]bool{}
		for _, f := range d.Factors {
			if seen[f] {
				t.Fatalf("风险因素不应重复: %v", d.Factors)
			}
			seen[f] = true
		}
	}
}

func TestSimulatedDisruptionSeeded(t *testing.T) {
	a := NewSimulatedDisruption(5).Assess("Steel")
	b := NewSimulatedDisruption(5).Assess("Steel")
	if !reflect.DeepEqual(a, b) {
		t.Fatal("相同种子应产生相同评估")
	}
}
