package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"procurement-signals/internal/domain"
	"procurement-signals/internal/service"
)

// Export renders a material's price history and forecast band as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Material == "" {
		return errors.New("--material is required")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	svc, closeSource, err := a.previewService(ctx)
	if err != nil {
		return err
	}
	if closeSource != nil {
		defer closeSource()
	}

	preview, err := svc.Preview(ctx, opts.Material)
	if err != nil {
		return err
	}

	history := downsamplePoints(preview.History, opts.MaxPoints)
	a.Logger.Info().
		Str("material", preview.Material).
		Int("total", len(preview.History)).
		Int("exported", len(history)).
		Int("forecast_days", len(preview.Forecast.Points)).
		Str("recommendation", string(preview.Recommendation.Label)).
		Msg("exporting price history")

	if opts.CSVPath != "" {
		if err := writeCSV(opts.CSVPath, history, preview.Forecast); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writePNG(opts.PNGPath, preview.Material, history, preview.Forecast); err != nil {
			return err
		}
	}

	return nil
}

// previewService wires only what a one-off forecast needs: no alert log.
func (a *App) previewService(ctx context.Context) (*service.Service, func() error, error) {
	source, closeSource, err := a.newSource(ctx)
	if err != nil {
		return nil, nil, err
	}
	svc := service.New(source, a.newForecaster(), a.newAnalyzer(), nil, a.Clock, service.Options{
		Horizon:     a.Config.Forecast.Horizon,
		HistoryDays: a.Config.Forecast.HistoryDays,
	}, a.Logger)
	return svc, closeSource, nil
}

func downsamplePoints(points []domain.PricePoint, max int) []domain.PricePoint {
	if max <= 1 || len(points) <= max {
		return points
	}

	result := make([]domain.PricePoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writeCSV(path string, history []domain.PricePoint, curve domain.ForecastCurve) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"date", "kind", "price", "lower", "upper"}); err != nil {
		return err
	}

	for _, p := range history {
		record := []string{p.Date.Format(time.DateOnly), "history", formatPrice(p.Price), "", ""}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	for _, p := range curve.Points {
		record := []string{p.Date.Format(time.DateOnly), "forecast", formatPrice(p.Point), formatPrice(p.Lower), formatPrice(p.Upper)}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writePNG(path, material string, history []domain.PricePoint, curve domain.ForecastCurve) error {
	if len(history) < 2 && len(curve.Points) < 2 {
		return errors.New("not enough points to render a chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	hx := make([]time.Time, len(history))
	hy := make([]float64, len(history))
	for i, p := range history {
		hx[i] = p.Date
		hy[i] = p.Price
	}

	fx := make([]time.Time, len(curve.Points))
	point := make([]float64, len(curve.Points))
	lower := make([]float64, len(curve.Points))
	upper := make([]float64, len(curve.Points))
	for i, p := range curve.Points {
		fx[i] = p.Date
		point[i] = p.Point
		lower[i] = p.Lower
		upper[i] = p.Upper
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	band := chart.Style{StrokeWidth: 1, StrokeDashArray: []float64{4, 4}}
	graph := chart.Chart{
		Title:  material,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{Name: "History", XValues: hx, YValues: hy},
			chart.TimeSeries{Name: "Forecast", XValues: fx, YValues: point},
			chart.TimeSeries{Name: "Lower", XValues: fx, YValues: lower, Style: band},
			chart.TimeSeries{Name: "Upper", XValues: fx, YValues: upper, Style: band},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatPrice(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
