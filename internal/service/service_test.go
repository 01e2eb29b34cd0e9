package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"procurement-signals/internal/alerting"
	"procurement-signals/internal/clock"
	"procurement-signals/internal/domain"
	"procurement-signals/internal/forecast"
	"procurement-signals/internal/risk"
	"procurement-signals/internal/snapshot"
	"procurement-signals/internal/storage"
	"procurement-signals/internal/supplychain"
)

var now = time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)

type stubSource struct {
	doc snapshot.Document
	err error
}

func (s *stubSource) Load(context.Context) (*snapshot.Snapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return snapshot.Build(s.doc, now, zerolog.Nop()), nil
}

func rows(material string, prices ...float64) []snapshot.PriceRow {
	out := make([]snapshot.PriceRow, 0, len(prices))
	start := now.AddDate(0, 0, -len(prices))
	for i, p := range prices {
		out = append(out, snapshot.PriceRow{
			Date:     start.AddDate(0, 0, i).Format("2006-01-02"),
			Material: material,
			Price:    p,
		})
	}
	return out
}

func marketDocument() snapshot.Document {
	var prices []snapshot.PriceRow
	prices = append(prices, rows("Copper", 100, 102, 104, 106, 108, 110)...)
	prices = append(prices, rows("Steel", 750)...)
	prices = append(prices, rows("Aluminum", 220, 218, 216, 214, 212, 200)...)
	return snapshot.Document{
		Materials: []string{"Copper", "Aluminum", "Steel"},
		Prices:    prices,
		Vendors: map[string][]domain.Vendor{
			"Copper": {
				{Name: "Global Metals Inc.", Price: 110, Rating: 4.5, DeliveryDays: 7, MinOrder: 25},
				{Name: "Prime Suppliers Ltd.", Price: 130, Rating: 3.9, DeliveryDays: 12, MinOrder: 100},
			},
		},
		Inventory: map[string]domain.InventoryRecord{
			"Copper": {CurrentStock: 50, MinThreshold: 100, MaxCapacity: 1000, DailyConsumption: 20},
		},
	}
}

func newService(src snapshot.Source) (*Service, *storage.MemoryStore) {
	store := storage.NewMemoryStore()
	engine := alerting.NewEngine(store, nil, clock.Fixed{T: now}, alerting.Options{}, zerolog.Nop())
	svc := New(src, forecast.NewLinear(), nil, engine, clock.Fixed{T: now}, Options{
		Horizon:            7,
		HistoryDays:        30,
		PriceThresholdPct:  5,
		InventoryThreshold: 100,
		RetentionDays:      30,
		PreferredSuppliers: map[string]string{"copper": "Prime Suppliers Ltd."},
	}, zerolog.Nop())
	return svc, store
}

func TestReadsBeforeFirstCycle(t *testing.T) {
	svc, _ := newService(&stubSource{doc: marketDocument()})
	if _, err := svc.Recommendation("Copper"); !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("首个周期前应返回 INSUFFICIENT_DATA, 实际 %v", err)
	}
}

func TestRunCycleIsolatesFailures(t *testing.T) {
	svc, _ := newService(&stubSource{doc: marketDocument()})
	st, err := svc.RunCycle(context.Background(), now)
	if err != nil {
		t.Fatalf("周期不应失败: %v", err)
	}
	if st.CycleID == "" {
		t.Fatal("周期应有 id")
	}
	if _, ok := st.Failures["Steel"]; !ok {
		t.Fatalf("只有一条价格的 Steel 应记录失败: %+v", st.Failures)
	}

	rec, err := svc.Recommendation("copper")
	if err != nil {
		t.Fatalf("Copper 应有建议: %v", err)
	}
	if rec.Label != domain.LabelBuyNow {
		t.Fatalf("上涨趋势应为 BUY_NOW, 实际 %s", rec.Label)
	}
	alu, err := svc.Recommendation("Aluminum")
	if err != nil || alu.Label != domain.LabelWait {
		t.Fatalf("下跌趋势应为 WAIT, 实际 %+v (%v)", alu, err)
	}
	if _, err := svc.Recommendation("Steel"); !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("失败物料应返回 INSUFFICIENT_DATA, 实际 %v", err)
	}
	if _, err := svc.Recommendation("Gold"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("未知物料应返回 NOT_FOUND, 实际 %v", err)
	}

	recs, _ := svc.Recommendations()
	if len(recs) != 2 || recs[0].Material != "Copper" || recs[1].Material != "Aluminum" {
		t.Fatalf("建议应按物料顺序返回, 实际 %+v", recs)
	}
}

func TestRunCycleRaisesAlerts(t *testing.T) {
	svc, store := newService(&stubSource{doc: marketDocument()})
	if _, err := svc.RunCycle(context.Background(), now); err != nil {
		t.Fatalf("周期不应失败: %v", err)
	}
	all, _ := store.List(context.Background())

	byType := make(map[domain.AlertType]int)
	for _, a := range all {
		byType[a.Type]++
	}
	if byType[domain.AlertLowInventory] != 1 {
		t.Fatalf("Copper 库存 2.5 天应触发 LOW_INVENTORY: %+v", byType)
	}
	if byType[domain.AlertForecastBuy] != 1 || byType[domain.AlertForecastWait] != 1 {
		t.Fatalf("应有预测告警: %+v", byType)
	}
	// Aluminum 212 -> 200
	if byType[domain.AlertPriceDrop] != 1 {
		t.Fatalf("应有 PRICE_DROP: %+v", byType)
	}

	if _, err := svc.RunCycle(context.Background(), now); err != nil {
		t.Fatalf("周期不应失败: %v", err)
	}
	again, _ := store.List(context.Background())
	if len(again) != len(all) {
		t.Fatalf("同一时刻重复周期应被去重, 之前 %d 之后 %d", len(all), len(again))
	}
}

func TestFailedLoadKeepsPreviousState(t *testing.T) {
	src := &stubSource{doc: marketDocument()}
	svc, _ := newService(src)
	first, _ := svc.RunCycle(context.Background(), now)

	src.err = fmt.Errorf("disk gone")
	if _, err := svc.RunCycle(context.Background(), now.Add(time.Hour)); err == nil {
		t.Fatal("加载失败应返回错误")
	}
	st, err := svc.State()
	if err != nil || st.CycleID != first.CycleID {
		t.Fatalf("加载失败时应保留旧状态")
	}
}

func TestOnDemandScoring(t *testing.T) {
	svc, _ := newService(&stubSource{doc: marketDocument()})
	if _, err := svc.RunCycle(context.Background(), now); err != nil {
		t.Fatalf("周期不应失败: %v", err)
	}

	risks, err := svc.VendorRisks("Copper")
	if err != nil || len(risks) != 2 {
		t.Fatalf("应返回 2 个供应商风险, 实际 %d (%v)", len(risks), err)
	}
	if _, err := svc.VendorRisks("Aluminum"); !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("无报价应返回 INSUFFICIENT_DATA, 实际 %v", err)
	}

	insight, err := svc.Insights("Copper")
	if err != nil || len(insight.LeadTimeRanking) != 2 {
		t.Fatalf("洞察不正确: %+v (%v)", insight, err)
	}

	score, err := svc.OpportunityScore("Copper")
	if err != nil {
		t.Fatalf("机会评分不应报错: %v", err)
	}
	if score.Breakdown.PriceOpportunity != 100 || score.Breakdown.InventoryNeed != 100 || score.Breakdown.VendorQuality != 90 {
		t.Fatalf("机会评分分项不正确: %+v", score.Breakdown)
	}

	cmp, err := svc.PreferredSupplier("Copper")
	if err != nil {
		t.Fatalf("首选供应商对比不应报错: %v", err)
	}
	if cmp.MarketAverage != 120 || !cmp.ShouldNegotiate {
		t.Fatalf("对比结果不正确: %+v", cmp)
	}
	if _, err := svc.PreferredSupplier("Aluminum"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("未配置首选供应商应返回 NOT_FOUND, 实际 %v", err)
	}
}

func TestDashboard(t *testing.T) {
	svc, _ := newService(&stubSource{doc: marketDocument()})
	if _, err := svc.RunCycle(context.Background(), now); err != nil {
		t.Fatalf("周期不应失败: %v", err)
	}
	dash, err := svc.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("看板不应报错: %v", err)
	}
	if len(dash.Materials) != 3 {
		t.Fatalf("应有 3 个物料, 实际 %d", len(dash.Materials))
	}
	copper := dash.Materials[0]
	if copper.Recommendation == nil || copper.Opportunity == nil || copper.Inventory == nil {
		t.Fatalf("Copper 行信息不完整: %+v", copper)
	}
	if copper.DaysRemaining != 2.5 {
		t.Fatalf("剩余天数应为 2.5, 实际 %v", copper.DaysRemaining)
	}
	steel := dash.Materials[2]
	if steel.Failure == "" || steel.Recommendation != nil {
		t.Fatalf("Steel 应显示失败原因: %+v", steel)
	}
	if dash.Alerts.Total == 0 {
		t.Fatal("看板应包含告警汇总")
	}
}

func TestDashboardHealthMatchesMarketStability(t *testing.T) {
	analyzer := supplychain.NewAnalyzer(nil, risk.NewSimulatedDisruption(7), supplychain.Options{})
	svc := New(&stubSource{doc: marketDocument()}, forecast.NewLinear(), analyzer, nil, clock.Fixed{T: now}, Options{}, zerolog.Nop())
	if _, err := svc.RunCycle(context.Background(), now); err != nil {
		t.Fatalf("周期不应失败: %v", err)
	}
	dash, err := svc.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("看板不应报错: %v", err)
	}

	copper := dash.Materials[0]
	if copper.HealthScore == nil || copper.Opportunity == nil {
		t.Fatalf("Copper 应有健康度和机会评分: %+v", copper)
	}
	if *copper.HealthScore != copper.Opportunity.Breakdown.MarketStability {
		t.Fatalf("同一行的健康度 %v 与 market_stability %v 应一致", *copper.HealthScore, copper.Opportunity.Breakdown.MarketStability)
	}

	aluminum := dash.Materials[1]
	if aluminum.HealthScore != nil || aluminum.HealthLevel != "" {
		t.Fatalf("无供应商的物料不应显示健康度: %+v", aluminum)
	}
	if aluminum.Opportunity == nil || aluminum.Opportunity.Breakdown.MarketStability != 50 {
		t.Fatalf("无供应商时 market_stability 应为 50: %+v", aluminum.Opportunity)
	}
}

func TestPreviewDoesNotPublish(t *testing.T) {
	svc, store := newService(&stubSource{doc: marketDocument()})
	p, err := svc.Preview(context.Background(), "aluminum")
	if err != nil {
		t.Fatalf("预览不应报错: %v", err)
	}
	if p.Material != "Aluminum" || len(p.History) != 6 || len(p.Forecast.Points) != 7 {
		t.Fatalf("预览结果不正确: %+v", p)
	}
	if _, err := svc.State(); !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("预览不应发布状态, 实际 %v", err)
	}
	if all, _ := store.List(context.Background()); len(all) != 0 {
		t.Fatalf("预览不应产生告警, 实际 %d", len(all))
	}
	if _, err := svc.Preview(context.Background(), "Steel"); !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("无价格的物料应返回 INSUFFICIENT_DATA, 实际 %v", err)
	}
}

func TestCheckAlertsReusesCurrentState(t *testing.T) {
	store := storage.NewMemoryStore()
	at := now
	engine := alerting.NewEngine(store, nil, clock.Func(func() time.Time { return at }), alerting.Options{}, zerolog.Nop())
	src := &stubSource{doc: marketDocument()}
	svc := New(src, forecast.NewLinear(), nil, engine, clock.Fixed{T: now}, Options{
		PriceThresholdPct:  5,
		InventoryThreshold: 100,
		RetentionDays:      30,
	}, zerolog.Nop())

	if _, err := svc.CheckAlerts(context.Background()); !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("首个周期前应返回 INSUFFICIENT_DATA, 实际 %v", err)
	}
	if _, err := svc.RunCycle(context.Background(), now); err != nil {
		t.Fatalf("周期不应失败: %v", err)
	}
	first, _ := store.List(context.Background())

	n, err := svc.CheckAlerts(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("去重窗口内不应重复告警, 实际 %d (%v)", n, err)
	}

	// 检查不重新加载行情
	src.err = errors.New("feed down")
	at = now.Add(25 * time.Hour)
	n, err = svc.CheckAlerts(context.Background())
	if err != nil || n == 0 {
		t.Fatalf("窗口过期后应重新告警, 实际 %d (%v)", n, err)
	}
	all, _ := store.List(context.Background())
	if len(all) != len(first)+n {
		t.Fatalf("告警数应增加 %d, 之前 %d 之后 %d", n, len(first), len(all))
	}

	bare := New(src, forecast.NewLinear(), nil, nil, clock.Fixed{T: now}, Options{}, zerolog.Nop())
	src.err = nil
	if _, err := bare.RunCycle(context.Background(), now); err != nil {
		t.Fatalf("周期不应失败: %v", err)
	}
	if _, err := bare.CheckAlerts(context.Background()); err == nil {
		t.Fatal("未配置告警引擎时应报错")
	}
}
