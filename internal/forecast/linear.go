package forecast

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"procurement-signals/internal/domain"
)

const (
	linearLowerBand = 0.95
	linearUpperBand = 1.05
)

// Linear fits an ordinary least squares trend over the history index and
// extends it day by day. Bounds are a fixed +/-5% band around the trend.
type Linear struct{}

// NewLinear returns the trend forecaster.
func NewLinear() Linear {
	return Linear{}
}

// Forecast implements Forecaster.
func (Linear) Forecast(ctx context.Context, material string, history []domain.PricePoint, horizon int) (domain.ForecastCurve, error) {
	if horizon <= 0 {
		return domain.ForecastCurve{}, fmt.Errorf("%w: horizon must be positive", domain.ErrInvalidInput)
	}
	if len(history) < 2 {
		return domain.ForecastCurve{}, fmt.Errorf("%w: need at least 2 price points for %s, got %d", domain.ErrInsufficientData, material, len(history))
	}

	points := make([]domain.PricePoint, len(history))
	copy(points, history)
	sort.SliceStable(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	slope, intercept := fitLine(points)
	dates := DaysAfter(points[len(points)-1].Date, horizon)

	curve := domain.ForecastCurve{Material: material, Points: make([]domain.ForecastPoint, 0, horizon)}
	for step := 0; step < horizon; step++ {
		x := float64(len(points) + step)
		yhat := intercept + slope*x
		lo, hi := yhat*linearLowerBand, yhat*linearUpperBand
		curve.Points = append(curve.Points, domain.ForecastPoint{
			Date:  dates[step],
			Point: yhat,
			Lower: math.Min(lo, hi),
			Upper: math.Max(lo, hi),
		})
	}
	return curve, nil
}

func fitLine(points []domain.PricePoint) (slope, intercept float64) {
	n := float64(len(points))
	var sumX, sumY, sumXY, sumXX float64
	for i, p := range points {
		x := float64(i)
		sumX += x
		sumY += p.Price
		sumXY += x * p.Price
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

// DaysAfter builds consecutive daily dates following last.
func DaysAfter(last time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = last.AddDate(0, 0, i+1)
	}
	return out
}

var _ Forecaster = Linear{}
