package forecast

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"procurement-signals/internal/domain"
)

// Forecaster produces a daily forecast curve from a price history.
type Forecaster interface {
	Forecast(ctx context.Context, material string, history []domain.PricePoint, horizon int) (domain.ForecastCurve, error)
}

// Fallback tries Primary first and falls back to Secondary on any error.
type Fallback struct {
	Primary   Forecaster
	Secondary Forecaster
	logger    zerolog.Logger
}

// NewFallback chains two forecasters.
func NewFallback(primary, secondary Forecaster, logger zerolog.Logger) *Fallback {
	return &Fallback{
		Primary:   primary,
		Secondary: secondary,
		logger:    logger.With().Str("component", "forecast_fallback").Logger(),
	}
}

// Forecast implements Forecaster.
func (f *Fallback) Forecast(ctx context.Context, material string, history []domain.PricePoint, horizon int) (domain.ForecastCurve, error) {
	if f.Primary != nil {
		curve, err := f.Primary.Forecast(ctx, material, history, horizon)
		if err == nil {
			return curve, nil
		}
		if f.Secondary == nil {
			return domain.ForecastCurve{}, err
		}
		f.logger.Warn().Err(err).Str("material", material).Msg("primary forecaster failed, using fallback")
	}
	if f.Secondary == nil {
		return domain.ForecastCurve{}, fmt.Errorf("no forecaster configured")
	}
	return f.Secondary.Forecast(ctx, material, history, horizon)
}

var _ Forecaster = (*Fallback)(nil)
