package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"procurement-signals/internal/domain"
)

const forecastPath = "/forecast"

// HTTPOptions parameterise the remote forecasting model client.
type HTTPOptions struct {
	BaseURL   string
	Timeout   time.Duration
	RetryMax  int
	UserAgent string
}

// HTTPForecaster calls an external time-series model over HTTP.
type HTTPForecaster struct {
	opts    HTTPOptions
	client  *retryablehttp.Client
	baseURL string
	logger  zerolog.Logger
}

// NewHTTPForecaster constructs the remote forecaster.
func NewHTTPForecaster(opts HTTPOptions, logger zerolog.Logger) *HTTPForecaster {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	log := logger.With().Str("component", "forecast_http").Logger()

	client := retryablehttp.NewClient()
	client.RetryMax = opts.RetryMax
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = leveledLogger{log}

	return &HTTPForecaster{
		opts:    opts,
		client:  client,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		logger:  log,
	}
}

type historyPoint struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

type forecastRequest struct {
	Material string         `json:"material"`
	Horizon  int            `json:"horizon"`
	History  []historyPoint `json:"history"`
}

// Forecast implements Forecaster.
func (f *HTTPForecaster) Forecast(ctx context.Context, material string, history []domain.PricePoint, horizon int) (domain.ForecastCurve, error) {
	if f.baseURL == "" {
		return domain.ForecastCurve{}, fmt.Errorf("forecast service url not configured")
	}
	if len(history) == 0 {
		return domain.ForecastCurve{}, fmt.Errorf("%w: no price history for %s", domain.ErrInsufficientData, material)
	}

	payload := forecastRequest{Material: material, Horizon: horizon, History: make([]historyPoint, 0, len(history))}
	for _, p := range history {
		payload.History = append(payload.History, historyPoint{Date: p.Date.Format(time.DateOnly), Price: p.Price})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.ForecastCurve{}, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+forecastPath, body)
	if err != nil {
		return domain.ForecastCurve{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(f.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.ForecastCurve{}, fmt.Errorf("call forecast service: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ForecastCurve{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return domain.ForecastCurve{}, parseHTTPError(resp.StatusCode, raw)
	}

	curve, err := parseCurve(material, raw, history[len(history)-1].Date)
	if err != nil {
		return domain.ForecastCurve{}, err
	}
	if horizon > 0 && len(curve.Points) > horizon {
		curve.Points = curve.Points[len(curve.Points)-horizon:]
	}
	if err := curve.Validate(); err != nil {
		return domain.ForecastCurve{}, err
	}

	f.logger.Debug().Str("material", material).Int("points", len(curve.Points)).Msg("forecast received")
	return curve, nil
}

func parseCurve(material string, raw []byte, lastObserved time.Time) (domain.ForecastCurve, error) {
	if !gjson.ValidBytes(raw) {
		return domain.ForecastCurve{}, fmt.Errorf("%w: forecast response is not valid JSON", domain.ErrInvalidInput)
	}
	rows := gjson.GetBytes(raw, "forecast").Array()
	curve := domain.ForecastCurve{Material: material, Points: make([]domain.ForecastPoint, 0, len(rows))}
	fallbackDates := DaysAfter(lastObserved, len(rows))

	for i, row := range rows {
		yhat := row.Get("yhat")
		if !yhat.Exists() {
			return domain.ForecastCurve{}, fmt.Errorf("%w: forecast row %d missing yhat", domain.ErrInvalidInput, i)
		}
		point := domain.ForecastPoint{
			Date:  fallbackDates[i],
			Point: yhat.Float(),
			Lower: yhat.Float(),
			Upper: yhat.Float(),
		}
		if lo := row.Get("yhat_lower"); lo.Exists() {
			point.Lower = lo.Float()
		}
		if hi := row.Get("yhat_upper"); hi.Exists() {
			point.Upper = hi.Float()
		}
		if ds := row.Get("ds").String(); ds != "" {
			if parsed, err := parseDate(ds); err == nil {
				point.Date = parsed
			}
		}
		curve.Points = append(curve.Points, point)
	}
	return curve, nil
}

func parseDate(v string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.DateTime, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", v)
}

func parseHTTPError(status int, payload []byte) error {
	if msg := gjson.GetBytes(payload, "error").String(); msg != "" {
		return fmt.Errorf("forecast service error (%d): %s", status, msg)
	}
	if msg := gjson.GetBytes(payload, "message").String(); msg != "" {
		return fmt.Errorf("forecast service error (%d): %s", status, msg)
	}
	if len(payload) > 0 {
		return fmt.Errorf("forecast service error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("forecast service error (%d)", status)
}

// leveledLogger routes retryablehttp diagnostics through zerolog.
type leveledLogger struct {
	log zerolog.Logger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.log.Error().Fields(kv).Msg(msg) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.log.Debug().Fields(kv).Msg(msg) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.log.Debug().Fields(kv).Msg(msg) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.log.Warn().Fields(kv).Msg(msg) }

var _ Forecaster = (*HTTPForecaster)(nil)
var _ retryablehttp.LeveledLogger = leveledLogger{}
