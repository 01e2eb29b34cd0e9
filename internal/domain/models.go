package domain

import "time"

// Label is the procurement action derived from a forecast.
type Label string

const (
	LabelBuyNow  Label = "BUY_NOW"
	LabelWait    Label = "WAIT"
	LabelMonitor Label = "MONITOR"
)

// Confidence grades a recommendation.
type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// RiskLevel buckets a 0-100 risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// LevelForRisk maps a risk score to its level: <20 LOW, <50 MEDIUM, <80 HIGH.
func LevelForRisk(score float64) RiskLevel {
	switch {
	case score < 20:
		return RiskLow
	case score < 50:
		return RiskMedium
	case score < 80:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// HealthLevel buckets a 0-100 supply chain health score.
type HealthLevel string

const (
	HealthExcellent HealthLevel = "EXCELLENT"
	HealthGood      HealthLevel = "GOOD"
	HealthFair      HealthLevel = "FAIR"
	HealthPoor      HealthLevel = "POOR"
)

// LevelForHealth maps a health score to its level.
func LevelForHealth(score float64) HealthLevel {
	switch {
	case score >= 80:
		return HealthExcellent
	case score >= 60:
		return HealthGood
	case score >= 40:
		return HealthFair
	default:
		return HealthPoor
	}
}

// PricePoint is one daily observation for a material.
type PricePoint struct {
	Material string    `json:"material"`
	Date     time.Time `json:"date"`
	Price    float64   `json:"price"`
	Volume   float64   `json:"volume"`
	Source   string    `json:"source"`
}

// ForecastPoint is a single day of a forecast curve.
type ForecastPoint struct {
	Date  time.Time `json:"date"`
	Point float64   `json:"yhat"`
	Lower float64   `json:"yhat_lower"`
	Upper float64   `json:"yhat_upper"`
}

// ForecastCurve holds the forecast horizon for a material.
type ForecastCurve struct {
	Material string          `json:"material"`
	Points   []ForecastPoint `json:"forecast"`
}

// Recommendation is the interpreted forecast for a material.
type Recommendation struct {
	Material         string     `json:"material"`
	CurrentPrice     float64    `json:"current_price"`
	AvgForecast      float64    `json:"avg_forecast_price"`
	MinForecast      float64    `json:"min_forecast_price"`
	MaxForecast      float64    `json:"max_forecast_price"`
	PriceChangePct   float64    `json:"price_change_pct"`
	Label            Label      `json:"recommendation"`
	Reason           string     `json:"reason"`
	Confidence       Confidence `json:"confidence"`
	BestDay          int        `json:"best_day_to_buy"`
	PotentialSavings float64    `json:"potential_savings"`
}

// Vendor is one supplier quote for a material.
type Vendor struct {
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	Rating       float64 `json:"rating"`
	DeliveryDays int     `json:"delivery_days"`
	MinOrder     int     `json:"min_order"`
	PaymentTerms string  `json:"payment_terms"`
	Reliability  string  `json:"reliability"`
}

// RiskBreakdown lists the per-factor vendor risk values.
type RiskBreakdown struct {
	FinancialStability  float64 `json:"financial_stability"`
	DeliveryPerformance float64 `json:"delivery_performance"`
	QualityScore        float64 `json:"quality_score"`
	GeographicRisk      float64 `json:"geographic_risk"`
	SupplyCapacity      float64 `json:"supply_capacity"`
}

// VendorRisk is the scored risk of a single vendor.
type VendorRisk struct {
	VendorName     string        `json:"vendor_name"`
	RiskScore      float64       `json:"risk_score"`
	RiskLevel      RiskLevel     `json:"risk_level"`
	Breakdown      RiskBreakdown `json:"risk_breakdown"`
	Recommendation string        `json:"recommendation"`
}

// InventoryRecord is the current stock position of a material.
type InventoryRecord struct {
	Material         string  `json:"material"`
	CurrentStock     float64 `json:"current_stock"`
	Unit             string  `json:"unit,omitempty"`
	MinThreshold     float64 `json:"min_threshold"`
	MaxCapacity      float64 `json:"max_capacity"`
	DailyConsumption float64 `json:"daily_consumption"`
	Status           string  `json:"status"`
	Location         string  `json:"location"`
}

// DaysRemaining estimates how long current stock lasts at the daily consumption rate.
func (r InventoryRecord) DaysRemaining() float64 {
	if r.DailyConsumption <= 0 {
		return 0
	}
	return r.CurrentStock / r.DailyConsumption
}

// DisruptionRisk is the material-level supply interruption estimate.
type DisruptionRisk struct {
	Material           string    `json:"material"`
	Score              float64   `json:"disruption_risk_score"`
	Level              RiskLevel `json:"risk_level"`
	Factors            []string  `json:"risk_factors"`
	Mitigations        []string  `json:"mitigation_strategies"`
	AlternativeSources []string  `json:"alternative_sources"`
	RecommendedActions []string  `json:"recommended_actions"`
}

// AlternativeMaterial is a substitute whose cost is close to the original.
type AlternativeMaterial struct {
	Material        string  `json:"material"`
	CostRatio       float64 `json:"cost_ratio"`
	PriceDifference float64 `json:"price_difference"`
	EfficiencyRatio float64 `json:"efficiency_ratio"`
	Feasibility     float64 `json:"feasibility"`
	UseCase         string  `json:"use_case"`
	Recommendation  string  `json:"recommendation"`
}

// LeadTimeOption ranks a vendor by delivery time and cost efficiency.
type LeadTimeOption struct {
	VendorName         string  `json:"vendor_name"`
	DeliveryDays       int     `json:"delivery_days"`
	Price              float64 `json:"price"`
	TimeScore          float64 `json:"time_score"`
	CostEfficiency     float64 `json:"cost_efficiency"`
	CombinedScore      float64 `json:"combined_score"`
	Recommendation     string  `json:"recommendation"`
	OptimalOrderTiming string  `json:"optimal_order_timing"`
}

// InsightRecommendations bundles the narrative procurement advice.
type InsightRecommendations struct {
	VendorSelection  []string `json:"vendor_selection"`
	Timing           []string `json:"timing"`
	RiskMitigation   []string `json:"risk_mitigation"`
	CostOptimization []string `json:"cost_optimization"`
}

// SupplyChainInsight aggregates vendor and disruption risk for a material.
type SupplyChainInsight struct {
	Material        string                 `json:"material"`
	HealthScore     float64                `json:"overall_health_score"`
	HealthLevel     HealthLevel            `json:"health_level"`
	AvgVendorRisk   float64                `json:"avg_vendor_risk"`
	VendorRisks     []VendorRisk           `json:"vendor_risk_analysis"`
	Alternatives    []AlternativeMaterial  `json:"alternative_materials"`
	Disruption      DisruptionRisk         `json:"disruption_risk"`
	LeadTimeRanking []LeadTimeOption       `json:"lead_time_optimization"`
	Recommendations InsightRecommendations `json:"recommendations"`
}

// OpportunityBreakdown lists the four opportunity components.
type OpportunityBreakdown struct {
	PriceOpportunity float64 `json:"price_opportunity"`
	InventoryNeed    float64 `json:"inventory_need"`
	VendorQuality    float64 `json:"vendor_quality"`
	MarketStability  float64 `json:"market_stability"`
}

// OpportunityScore is the weighted procurement opportunity for a material.
type OpportunityScore struct {
	Material       string               `json:"material"`
	Score          float64              `json:"score"`
	Breakdown      OpportunityBreakdown `json:"breakdown"`
	Recommendation string               `json:"recommendation"`
}

// PreferredSupplierComparison compares a preferred vendor to the market average.
type PreferredSupplierComparison struct {
	Material          string  `json:"material"`
	PreferredSupplier string  `json:"preferred_supplier"`
	PreferredPrice    float64 `json:"preferred_price"`
	MarketAverage     float64 `json:"market_average"`
	DifferencePct     float64 `json:"difference_pct"`
	ShouldNegotiate   bool    `json:"should_negotiate"`
	SuggestedPrice    float64 `json:"suggested_price"`
	PotentialSavings  float64 `json:"potential_savings"`
	Message           string  `json:"message"`
}
