package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"procurement-signals/internal/domain"
)

// Show prints recent alerts, newest first.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	rt, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	alerts, err := rt.engine.Recent(ctx, opts.Limit, opts.UnreadOnly)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(a.Out, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tTime (UTC)\tSeverity\tType\tMaterial\tRead\tMessage")
	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%d\t%s\t%s\t%s\t%s\t%t\t%s\n",
			alert.ID,
			alert.Timestamp.UTC().Format(time.RFC3339),
			alert.Severity,
			alert.Type,
			alert.Material,
			alert.Read,
			sanitizeInline(alert.Message),
		)
	}
	return writer.Flush()
}

// Score runs one refresh cycle and prints the per-material signals.
func (a *App) Score(ctx context.Context) error {
	rt, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.service.RunCycle(ctx, a.Clock.Now()); err != nil {
		return err
	}
	dash, err := rt.service.Dashboard(ctx)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Material\tPrice\tSignal\tChange%\tConfidence\tHealth\tOpportunity\tAction\tNote")
	for _, row := range dash.Materials {
		signal, change, confidence := "-", "-", "-"
		if rec := row.Recommendation; rec != nil {
			signal = string(rec.Label)
			change = fmt.Sprintf("%+.2f", rec.PriceChangePct)
			confidence = string(rec.Confidence)
		}
		health := "-"
		if row.HealthScore != nil {
			health = fmt.Sprintf("%.1f (%s)", *row.HealthScore, row.HealthLevel)
		}
		score, action := "-", "-"
		if opp := row.Opportunity; opp != nil {
			score = fmt.Sprintf("%.1f", opp.Score)
			action = opp.Recommendation
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			row.Material,
			domain.Money(row.CurrentPrice),
			signal,
			change,
			confidence,
			health,
			score,
			action,
			sanitizeInline(row.Failure),
		)
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "\nalerts: %d total, %d unread\n", dash.Alerts.Total, dash.Alerts.Unread)
	return nil
}

// MarkRead flags one alert, or every alert when all is set.
func (a *App) MarkRead(ctx context.Context, id int64, all bool) error {
	rt, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if all {
		n, err := rt.engine.MarkAllAsRead(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "marked %d alerts as read\n", n)
		return nil
	}
	if _, err := rt.engine.MarkAsRead(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "alert %d marked as read\n", id)
	return nil
}

// SimulateAlert 用给定的前后价格走一遍价格告警流程。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if opts.ThresholdPct <= 0 {
		opts.ThresholdPct = a.Config.Alerting.PriceThresholdPct
	}
	rt, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	alerts, err := rt.engine.CheckPrice(ctx,
		map[string]float64{opts.Material: opts.Current},
		map[string]float64{opts.Material: opts.Previous},
		opts.ThresholdPct,
	)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(a.Out, "no alert raised (below threshold or suppressed by the dedup window)")
		return nil
	}
	for _, alert := range alerts {
		fmt.Fprintf(a.Out, "#%d %s %s: %s\n", alert.ID, alert.Severity, alert.Type, alert.Message)
	}
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
