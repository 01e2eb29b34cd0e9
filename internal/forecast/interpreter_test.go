package forecast

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"procurement-signals/internal/domain"
)

func curveOf(values ...float64) domain.ForecastCurve {
	start := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	c := domain.ForecastCurve{Material: "Copper"}
	for i, v := range values {
		c.Points = append(c.Points, domain.ForecastPoint{Date: start.AddDate(0, 0, i), Point: v, Lower: v * 0.95, Upper: v * 1.05})
	}
	return c
}

func flat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestInterpretRisingCurve(t *testing.T) {
	rec, err := Interpret("Copper", 100, curveOf(102, 103, 104, 105, 106, 107, 108))
	if err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	if rec.AvgForecast != 105 || rec.PriceChangePct != 5 {
		t.Fatalf("均值/涨幅不正确: %+v", rec)
	}
	if rec.Label != domain.LabelBuyNow || rec.Confidence != domain.ConfidenceHigh {
		t.Fatalf("期望 BUY_NOW/HIGH, 实际 %s/%s", rec.Label, rec.Confidence)
	}
	if rec.BestDay != 1 {
		t.Fatalf("最佳购买日应为 1, 实际 %d", rec.BestDay)
	}
	if !strings.Contains(rec.Reason, "rise by 5.0%") {
		t.Fatalf("reason 不正确: %s", rec.Reason)
	}
}

func TestInterpretFallingCurve(t *testing.T) {
	rec, err := Interpret("Copper", 100, curveOf(99, 98, 97, 96, 95, 94, 93))
	if err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	if rec.PriceChangePct != -4 || rec.Label != domain.LabelWait || rec.Confidence != domain.ConfidenceHigh {
		t.Fatalf("期望 WAIT/HIGH -4%%, 实际 %+v", rec)
	}
	if rec.BestDay != 7 || rec.PotentialSavings != 7 {
		t.Fatalf("期望第 7 天、节省 7.0, 实际 %d / %v", rec.BestDay, rec.PotentialSavings)
	}
}

func TestInterpretFlatAtCurrentPriceIsStable(t *testing.T) {
	rec, err := Interpret("Copper", 100, curveOf(flat(100, 7)...))
	if err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	if rec.PriceChangePct != 0 || rec.Label != domain.LabelMonitor || rec.Confidence != domain.ConfidenceMedium {
		t.Fatalf("平价曲线应为 MONITOR/MEDIUM, 实际 %+v", rec)
	}
}

func TestInterpretFlatSlightlyAbove(t *testing.T) {
	// savings 0, loss 0.3 > 0*1.5: upside risk dominates.
	rec, err := Interpret("Copper", 100, curveOf(flat(100.3, 7)...))
	if err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	if rec.PriceChangePct != 0.3 {
		t.Fatalf("涨幅应为 0.3, 实际 %v", rec.PriceChangePct)
	}
	if rec.Label != domain.LabelBuyNow || rec.Confidence != domain.ConfidenceMedium {
		t.Fatalf("期望 BUY_NOW/MEDIUM, 实际 %s/%s", rec.Label, rec.Confidence)
	}
	if rec.PotentialSavings != 0 {
		t.Fatalf("节省应为 0, 实际 %v", rec.PotentialSavings)
	}
}

func TestInterpretBoundariesRouteToStableBand(t *testing.T) {
	up, err := Interpret("Steel", 100, curveOf(flat(101, 7)...))
	if err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	if up.PriceChangePct != 1 || up.Confidence != domain.ConfidenceMedium || !strings.Contains(up.Reason, "Buy before increase") {
		t.Fatalf("+1.0%% 应走稳定区间分支, 实际 %+v", up)
	}

	down, err := Interpret("Steel", 100, curveOf(flat(99, 7)...))
	if err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	if down.PriceChangePct != -1 || down.Label != domain.LabelWait || down.Confidence != domain.ConfidenceMedium {
		t.Fatalf("-1.0%% 应走稳定区间分支, 实际 %+v", down)
	}
	if !strings.Contains(down.Reason, "Wait for better opportunity") {
		t.Fatalf("reason 不正确: %s", down.Reason)
	}
}

func TestInterpretMediumConfidenceMove(t *testing.T) {
	rec, err := Interpret("Aluminum", 100, curveOf(flat(101.5, 7)...))
	if err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	if rec.Label != domain.LabelBuyNow || rec.Confidence != domain.ConfidenceMedium {
		t.Fatalf("1.5%% 涨幅应为 BUY_NOW/MEDIUM, 实际 %s/%s", rec.Label, rec.Confidence)
	}
}

func TestInterpretBestDayTiesResolveToFirst(t *testing.T) {
	rec, err := Interpret("Copper", 100, curveOf(101, 97, 99, 97, 100))
	if err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	if rec.BestDay != 2 {
		t.Fatalf("并列最低价应取第一个, 实际 %d", rec.BestDay)
	}
}

func TestInterpretErrors(t *testing.T) {
	if _, err := Interpret("Copper", 100, domain.ForecastCurve{}); !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("空曲线应返回 ErrInsufficientData, 实际 %v", err)
	}
	if _, err := Interpret("Copper", 0, curveOf(1, 2)); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("非正价格应返回 ErrInvalidInput, 实际 %v", err)
	}
}

func TestInterpretRejectsNonFiniteNumbers(t *testing.T) {
	cases := []struct {
		name    string
		current float64
		curve   domain.ForecastCurve
	}{
		{"当前价格 +Inf", math.Inf(1), curveOf(100, 100)},
		{"当前价格 NaN", math.NaN(), curveOf(100, 100)},
		{"预测点 NaN", 100, curveOf(100, math.NaN())},
		{"预测点 -Inf", 100, curveOf(math.Inf(-1), 100)},
	}
	for _, tc := range cases {
		if _, err := Interpret("Copper", tc.current, tc.curve); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("%s: 应返回 ErrInvalidInput, 实际 %v", tc.name, err)
		}
	}
}
