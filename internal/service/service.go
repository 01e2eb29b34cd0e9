package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"procurement-signals/internal/alerting"
	"procurement-signals/internal/clock"
	"procurement-signals/internal/domain"
	"procurement-signals/internal/forecast"
	"procurement-signals/internal/opportunity"
	"procurement-signals/internal/purchasing"
	"procurement-signals/internal/snapshot"
	"procurement-signals/internal/supplychain"
)

const (
	forecastConcurrency      = 4
	defaultPriceThresholdPct = 5.0
)

// Options tune the refresh cycle.
type Options struct {
	Horizon                 int
	HistoryDays             int
	PriceThresholdPct       float64
	InventoryThreshold      float64
	RetentionDays           int
	PreferredSuppliers      map[string]string
	NegotiationThresholdPct float64
	// Purchasing raises purchase orders; nil disables them.
	Purchasing *purchasing.Desk
}

// State is the result of one refresh cycle. It is never modified after it is
// published; a new cycle publishes a new State.
type State struct {
	CycleID         string                           `json:"cycle_id"`
	UpdatedAt       time.Time                        `json:"updated_at"`
	Snapshot        *snapshot.Snapshot               `json:"-"`
	Forecasts       map[string]domain.ForecastCurve  `json:"-"`
	Recommendations map[string]domain.Recommendation `json:"-"`
	Failures        map[string]string                `json:"failures,omitempty"`
}

// Service orchestrates snapshot loading, forecasting, scoring and alerting.
type Service struct {
	source     snapshot.Source
	forecaster forecast.Forecaster
	analyzer   *supplychain.Analyzer
	alerts     *alerting.Engine
	clock      clock.Clock
	opts       Options
	logger     zerolog.Logger

	cycleMu sync.Mutex
	state   atomic.Pointer[State]
}

// New constructs the service.
func New(source snapshot.Source, forecaster forecast.Forecaster, analyzer *supplychain.Analyzer, alerts *alerting.Engine, clk clock.Clock, opts Options, logger zerolog.Logger) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	if analyzer == nil {
		analyzer = supplychain.NewAnalyzer(nil, nil, supplychain.Options{})
	}
	if opts.Horizon <= 0 {
		opts.Horizon = 7
	}
	if opts.HistoryDays < 2 {
		opts.HistoryDays = 30
	}
	if opts.PriceThresholdPct <= 0 {
		opts.PriceThresholdPct = defaultPriceThresholdPct
	}
	if opts.NegotiationThresholdPct <= 0 {
		opts.NegotiationThresholdPct = supplychain.DefaultNegotiationThresholdPct
	}
	return &Service{
		source:     source,
		forecaster: forecaster,
		analyzer:   analyzer,
		alerts:     alerts,
		clock:      clk,
		opts:       opts,
		logger:     logger.With().Str("component", "service").Logger(),
	}
}

// Alerts exposes the alert engine.
func (s *Service) Alerts() *alerting.Engine {
	return s.alerts
}

// Tick adapts RunCycle to the scheduler.
func (s *Service) Tick(ctx context.Context, at time.Time) error {
	_, err := s.RunCycle(ctx, at)
	return err
}

// RunCycle loads a snapshot, forecasts and interprets every material, publishes
// the new state and then runs the alert checks and the retention sweep. A
// failing material is recorded and skipped. Cycles never overlap.
func (s *Service) RunCycle(ctx context.Context, at time.Time) (*State, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	cycleID := uuid.NewString()
	log := s.logger.With().Str("cycle_id", cycleID).Logger()

	snap, err := s.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	state := &State{
		CycleID:         cycleID,
		UpdatedAt:       at,
		Snapshot:        snap,
		Forecasts:       make(map[string]domain.ForecastCurve, len(snap.Materials)),
		Recommendations: make(map[string]domain.Recommendation, len(snap.Materials)),
		Failures:        make(map[string]string),
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(forecastConcurrency)
	for _, material := range snap.Materials {
		material := material
		g.Go(func() error {
			curve, rec, err := s.scoreMaterial(ctx, snap, material)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				state.Failures[material] = err.Error()
				log.Error().Err(err).Str("material", material).Str("kind", domain.Kind(err)).Msg("物料评分失败, 跳过")
				return nil
			}
			state.Forecasts[material] = curve
			state.Recommendations[material] = rec
			return nil
		})
	}
	_ = g.Wait()

	s.state.Store(state)
	log.Info().
		Int("materials", len(snap.Materials)).
		Int("recommendations", len(state.Recommendations)).
		Int("failures", len(state.Failures)).
		Msg("刷新周期完成")

	s.runAlerts(ctx, state, log)
	return state, nil
}

func (s *Service) scoreMaterial(ctx context.Context, snap *snapshot.Snapshot, material string) (domain.ForecastCurve, domain.Recommendation, error) {
	history := snap.History(material, s.opts.HistoryDays)
	if len(history) == 0 {
		return domain.ForecastCurve{}, domain.Recommendation{}, fmt.Errorf("%w: no price history for %s", domain.ErrInsufficientData, material)
	}
	if s.forecaster == nil {
		return domain.ForecastCurve{}, domain.Recommendation{}, errors.New("forecaster not configured")
	}
	curve, err := s.forecaster.Forecast(ctx, material, history, s.opts.Horizon)
	if err != nil {
		return domain.ForecastCurve{}, domain.Recommendation{}, fmt.Errorf("forecast %s: %w", material, err)
	}
	current := history[len(history)-1].Price
	rec, err := forecast.Interpret(material, current, curve)
	if err != nil {
		return domain.ForecastCurve{}, domain.Recommendation{}, fmt.Errorf("interpret %s: %w", material, err)
	}
	return curve, rec, nil
}

func (s *Service) runAlerts(ctx context.Context, state *State, log zerolog.Logger) int {
	if s.alerts == nil {
		return 0
	}
	snap := state.Snapshot
	created := 0
	record := func(name string, alerts []domain.Alert, err error) {
		created += len(alerts)
		if err != nil {
			log.Error().Err(err).Str("check", name).Msg("告警检查失败")
		}
	}

	alerts, err := s.alerts.CheckPrice(ctx, snap.CurrentPrices(), snap.PreviousPrices(), s.opts.PriceThresholdPct)
	record("price", alerts, err)
	alerts, err = s.alerts.CheckInventory(ctx, snap.Inventory, s.opts.InventoryThreshold)
	record("inventory", alerts, err)
	alerts, err = s.alerts.CheckForecast(ctx, state.Recommendations)
	record("forecast", alerts, err)
	alerts, err = s.alerts.CheckReorder(ctx, snap.Inventory, state.Recommendations)
	record("reorder", alerts, err)

	if _, err := s.alerts.ClearOld(ctx, s.opts.RetentionDays); err != nil {
		log.Error().Err(err).Msg("清理过期告警失败")
	}
	log.Debug().Int("alerts_created", created).Msg("告警检查完成")
	return created
}

// CheckAlerts runs the price, inventory, forecast and reorder checks against
// the current state without refreshing it. Alerts still inside their dedup
// window are not raised again.
func (s *Service) CheckAlerts(ctx context.Context) (int, error) {
	st, err := s.State()
	if err != nil {
		return 0, err
	}
	if s.alerts == nil {
		return 0, errors.New("alert engine not configured")
	}
	log := s.logger.With().Str("cycle_id", st.CycleID).Str("trigger", "manual").Logger()
	return s.runAlerts(ctx, st, log), nil
}

// Preview is a one-off forecast of a single material.
type Preview struct {
	Material       string
	History        []domain.PricePoint
	Forecast       domain.ForecastCurve
	Recommendation domain.Recommendation
}

// Preview loads a fresh snapshot and forecasts material without publishing
// state or running the alert checks.
func (s *Service) Preview(ctx context.Context, material string) (Preview, error) {
	snap, err := s.source.Load(ctx)
	if err != nil {
		return Preview{}, fmt.Errorf("load snapshot: %w", err)
	}
	name, ok := snap.Canonical(material)
	if !ok {
		return Preview{}, fmt.Errorf("%w: material %q", domain.ErrNotFound, material)
	}
	curve, rec, err := s.scoreMaterial(ctx, snap, name)
	if err != nil {
		return Preview{}, err
	}
	return Preview{
		Material:       name,
		History:        snap.History(name, s.opts.HistoryDays),
		Forecast:       curve,
		Recommendation: rec,
	}, nil
}

// State returns the latest published state.
func (s *Service) State() (*State, error) {
	st := s.state.Load()
	if st == nil {
		return nil, fmt.Errorf("%w: no refresh cycle has completed yet", domain.ErrInsufficientData)
	}
	return st, nil
}

func (s *Service) resolve(material string) (*State, string, error) {
	st, err := s.State()
	if err != nil {
		return nil, "", err
	}
	name, ok := st.Snapshot.Canonical(material)
	if !ok {
		return nil, "", fmt.Errorf("%w: material %q", domain.ErrNotFound, material)
	}
	return st, name, nil
}

// Recommendation returns the interpreted forecast for material.
func (s *Service) Recommendation(material string) (domain.Recommendation, error) {
	st, name, err := s.resolve(material)
	if err != nil {
		return domain.Recommendation{}, err
	}
	rec, ok := st.Recommendations[name]
	if !ok {
		return domain.Recommendation{}, failureError(st, name)
	}
	return rec, nil
}

// Recommendations lists every available recommendation in material order.
func (s *Service) Recommendations() ([]domain.Recommendation, error) {
	st, err := s.State()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Recommendation, 0, len(st.Recommendations))
	for _, m := range st.Snapshot.Materials {
		if rec, ok := st.Recommendations[m]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Forecast returns the forecast curve for material.
func (s *Service) Forecast(material string) (domain.ForecastCurve, error) {
	st, name, err := s.resolve(material)
	if err != nil {
		return domain.ForecastCurve{}, err
	}
	curve, ok := st.Forecasts[name]
	if !ok {
		return domain.ForecastCurve{}, failureError(st, name)
	}
	return curve, nil
}

// History returns the price history of material, oldest first.
func (s *Service) History(material string) ([]domain.PricePoint, error) {
	st, name, err := s.resolve(material)
	if err != nil {
		return nil, err
	}
	return st.Snapshot.Prices[name], nil
}

// VendorRisks scores every vendor quoting material.
func (s *Service) VendorRisks(material string) ([]domain.VendorRisk, error) {
	st, name, err := s.resolve(material)
	if err != nil {
		return nil, err
	}
	vendors := st.Snapshot.Vendors[name]
	if len(vendors) == 0 {
		return nil, fmt.Errorf("%w: no vendor quotes for %s", domain.ErrInsufficientData, name)
	}
	return s.analyzer.VendorRisks(name, vendors), nil
}

// Insights computes the supply chain picture of material.
func (s *Service) Insights(material string) (domain.SupplyChainInsight, error) {
	st, name, err := s.resolve(material)
	if err != nil {
		return domain.SupplyChainInsight{}, err
	}
	return s.insights(st, name), nil
}

func (s *Service) insights(st *State, name string) domain.SupplyChainInsight {
	current, _ := st.Snapshot.CurrentPrice(name)
	return s.analyzer.Insights(name, current, st.Snapshot.Vendors[name], st.Snapshot.CurrentPrices())
}

// OpportunityScore aggregates the available signals for material.
func (s *Service) OpportunityScore(material string) (domain.OpportunityScore, error) {
	st, name, err := s.resolve(material)
	if err != nil {
		return domain.OpportunityScore{}, err
	}
	return s.opportunity(st, name, s.insightFor(st, name))
}

// insightFor returns nil for a material without vendor quotes; the opportunity
// score then treats market stability as unknown.
func (s *Service) insightFor(st *State, name string) *domain.SupplyChainInsight {
	if len(st.Snapshot.Vendors[name]) == 0 {
		return nil
	}
	in := s.insights(st, name)
	return &in
}

func (s *Service) opportunity(st *State, name string, insight *domain.SupplyChainInsight) (domain.OpportunityScore, error) {
	var rec *domain.Recommendation
	if r, ok := st.Recommendations[name]; ok {
		rec = &r
	}
	return opportunity.Score(name, rec, st.Snapshot.Inventory, st.Snapshot.Vendors[name], insight)
}

// PreferredSupplier compares the configured preferred vendor with the market.
func (s *Service) PreferredSupplier(material string) (domain.PreferredSupplierComparison, error) {
	st, name, err := s.resolve(material)
	if err != nil {
		return domain.PreferredSupplierComparison{}, err
	}
	return supplychain.ComparePreferred(name, s.preferredFor(name), st.Snapshot.Vendors[name], s.opts.NegotiationThresholdPct)
}

// preferredFor looks the material up case-insensitively; config keys arrive lower-cased.
func (s *Service) preferredFor(material string) string {
	if v, ok := s.opts.PreferredSuppliers[material]; ok {
		return v
	}
	for k, v := range s.opts.PreferredSuppliers {
		if strings.EqualFold(k, material) {
			return v
		}
	}
	return ""
}

// SupplierComparisons compares the preferred supplier of every material.
// Materials without a configured or quoted preferred supplier are skipped.
func (s *Service) SupplierComparisons() ([]domain.PreferredSupplierComparison, error) {
	st, err := s.State()
	if err != nil {
		return nil, err
	}
	out := make([]domain.PreferredSupplierComparison, 0, len(st.Snapshot.Materials))
	for _, m := range st.Snapshot.Materials {
		cmp, err := supplychain.ComparePreferred(m, s.preferredFor(m), st.Snapshot.Vendors[m], s.opts.NegotiationThresholdPct)
		switch {
		case err == nil:
			out = append(out, cmp)
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInsufficientData):
		default:
			return nil, err
		}
	}
	return out, nil
}

// NegotiationRecommendations keeps only the comparisons that advise negotiating.
func (s *Service) NegotiationRecommendations() ([]domain.PreferredSupplierComparison, error) {
	all, err := s.SupplierComparisons()
	if err != nil {
		return nil, err
	}
	out := make([]domain.PreferredSupplierComparison, 0, len(all))
	for _, cmp := range all {
		if cmp.ShouldNegotiate {
			out = append(out, cmp)
		}
	}
	return out, nil
}

// PurchaseOrders exposes the purchasing desk, nil when not configured.
func (s *Service) PurchaseOrders() *purchasing.Desk {
	return s.opts.Purchasing
}

// RaisePurchaseOrder prices an order for req.Material from the latest cycle's
// recommendation, the chosen vendor quote and the stock position.
func (s *Service) RaisePurchaseOrder(ctx context.Context, req purchasing.Request) (domain.PurchaseOrder, error) {
	desk := s.opts.Purchasing
	if desk == nil {
		return domain.PurchaseOrder{}, errors.New("purchasing not configured")
	}
	st, name, err := s.resolve(req.Material)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	rec, ok := st.Recommendations[name]
	if !ok {
		return domain.PurchaseOrder{}, failureError(st, name)
	}
	vendor, err := purchasing.SelectVendor(st.Snapshot.Vendors[name], req.Vendor)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	inv, ok := st.Snapshot.Inventory[name]
	if !ok {
		return domain.PurchaseOrder{}, fmt.Errorf("%w: no inventory record for %s", domain.ErrInsufficientData, name)
	}
	req.Material = name
	return desk.Raise(ctx, req, purchasing.Inputs{Recommendation: rec, Vendor: vendor, Inventory: inv})
}

func failureError(st *State, name string) error {
	if reason, ok := st.Failures[name]; ok {
		return fmt.Errorf("%w: %s", domain.ErrInsufficientData, reason)
	}
	return fmt.Errorf("%w: no recommendation for %s", domain.ErrInsufficientData, name)
}
