package forecast

import (
	"fmt"
	"math"

	"procurement-signals/internal/domain"
)

const (
	risePct       = 1.0
	strongMovePct = 2.0
	lossFactor    = 1.5
)

// Interpret turns a forecast curve into a BUY_NOW / WAIT / MONITOR recommendation.
// It is a pure function of currentPrice and curve.
func Interpret(material string, currentPrice float64, curve domain.ForecastCurve) (domain.Recommendation, error) {
	if len(curve.Points) == 0 {
		return domain.Recommendation{}, fmt.Errorf("%w: no forecast points for %s", domain.ErrInsufficientData, material)
	}
	if math.IsNaN(currentPrice) || math.IsInf(currentPrice, 0) || currentPrice <= 0 {
		return domain.Recommendation{}, fmt.Errorf("%w: current price for %s must be positive", domain.ErrInvalidInput, material)
	}
	for i, p := range curve.Points {
		if math.IsNaN(p.Point) || math.IsInf(p.Point, 0) {
			return domain.Recommendation{}, fmt.Errorf("%w: forecast day %d for %s is not a number", domain.ErrInvalidInput, i+1, material)
		}
	}

	sum := 0.0
	minPrice, maxPrice := curve.Points[0].Point, curve.Points[0].Point
	bestIdx := 0
	for i, p := range curve.Points {
		sum += p.Point
		if p.Point < minPrice {
			minPrice = p.Point
			bestIdx = i
		}
		if p.Point > maxPrice {
			maxPrice = p.Point
		}
	}
	avg := sum / float64(len(curve.Points))
	changePct := (avg - currentPrice) * 100 / currentPrice

	savings := math.Max(0, currentPrice-minPrice)
	loss := maxPrice - currentPrice

	rec := domain.Recommendation{
		Material:         material,
		CurrentPrice:     domain.Round2(currentPrice),
		AvgForecast:      domain.Round2(avg),
		MinForecast:      domain.Round2(minPrice),
		MaxForecast:      domain.Round2(maxPrice),
		PriceChangePct:   domain.Round2(changePct),
		Confidence:       domain.ConfidenceMedium,
		BestDay:          bestIdx + 1,
		PotentialSavings: domain.Round2(savings),
	}

	switch {
	case changePct > risePct:
		rec.Label = domain.LabelBuyNow
		rec.Reason = fmt.Sprintf("Price expected to rise by %.1f%% in next %d days", changePct, len(curve.Points))
		if changePct > strongMovePct {
			rec.Confidence = domain.ConfidenceHigh
		}
	case changePct < -risePct:
		rec.Label = domain.LabelWait
		rec.Reason = fmt.Sprintf("Price expected to drop by %.1f%% in next %d days", math.Abs(changePct), len(curve.Points))
		if changePct < -strongMovePct {
			rec.Confidence = domain.ConfidenceHigh
		}
	case savings > loss:
		rec.Label = domain.LabelWait
		rec.Reason = fmt.Sprintf("Price may drop to $%s/ton. Wait for better opportunity", domain.Money(minPrice))
	case loss > savings*lossFactor:
		rec.Label = domain.LabelBuyNow
		rec.Reason = fmt.Sprintf("Price may rise to $%s/ton. Buy before increase", domain.Money(maxPrice))
	default:
		rec.Label = domain.LabelMonitor
		rec.Reason = "Price expected to remain stable. Monitor for changes"
	}

	return rec, nil
}
