package alerting

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"procurement-signals/internal/clock"
	"procurement-signals/internal/domain"
	"procurement-signals/internal/storage"
)

const (
	defaultRecentLimit      = 10
	defaultMaxCapacity      = 1000.0
	highInventoryRatio      = 0.9
	criticalDaysRemaining   = 3.0
	warningDaysRemaining    = 7.0
	reorderWindowLowerDays  = 7.0
	reorderWindowUpperDays  = 14.0
	defaultRetentionDays    = 30
	defaultInventoryMinimum = 100.0
)

// Windows maps an alert type to its dedup window. A zero window never suppresses.
type Windows map[domain.AlertType]time.Duration

// DefaultWindows returns the built-in dedup windows.
func DefaultWindows() Windows {
	return Windows{
		domain.AlertPriceDrop:     time.Hour,
		domain.AlertPriceIncrease: time.Hour,
		domain.AlertLowInventory:  6 * time.Hour,
		domain.AlertHighInventory: 24 * time.Hour,
		domain.AlertForecastBuy:   24 * time.Hour,
		domain.AlertForecastWait:  24 * time.Hour,
		domain.AlertReorderNow:    24 * time.Hour,
		domain.AlertReorderWait:   24 * time.Hour,
	}
}

// ParseWindows overlays configured windows (keyed by lower or upper case type
// name) on the defaults.
func ParseWindows(raw map[string]time.Duration) (Windows, error) {
	windows := DefaultWindows()
	for key, d := range raw {
		typ := domain.AlertType(strings.ToUpper(strings.TrimSpace(key)))
		if !typ.Valid() {
			return nil, fmt.Errorf("%w: unknown alert type %q in windows", domain.ErrInvalidInput, key)
		}
		if d < 0 {
			return nil, fmt.Errorf("%w: negative window for %s", domain.ErrInvalidInput, typ)
		}
		windows[typ] = d
	}
	return windows, nil
}

// Options tune the engine.
type Options struct {
	Windows       Windows
	RetentionDays int
	// MaxAlerts caps the log after each retention sweep; zero disables the cap.
	MaxAlerts int
}

// Engine owns the alert log. Every write (append, read flag, sweep) holds mu so
// id assignment and dedup checks never race; notifications are sent after the
// lock is released.
type Engine struct {
	mu       sync.Mutex
	store    storage.AlertStore
	notifier Notifier
	clock    clock.Clock
	opts     Options
	logger   zerolog.Logger
}

// NewEngine wires the alert store and notification channel.
func NewEngine(store storage.AlertStore, notifier Notifier, clk clock.Clock, opts Options, logger zerolog.Logger) *Engine {
	if clk == nil {
		clk = clock.Real{}
	}
	if opts.Windows == nil {
		opts.Windows = DefaultWindows()
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = defaultRetentionDays
	}
	return &Engine{
		store:    store,
		notifier: notifier,
		clock:    clk,
		opts:     opts,
		logger:   logger.With().Str("component", "alert_engine").Logger(),
	}
}

// CreateAlert appends an alert unless an alert with the same material and type
// exists inside that type's dedup window. created is false when suppressed.
func (e *Engine) CreateAlert(ctx context.Context, typ domain.AlertType, material, message string, severity domain.Severity) (alert domain.Alert, created bool, err error) {
	if !typ.Valid() {
		return domain.Alert{}, false, fmt.Errorf("%w: alert type %q", domain.ErrInvalidInput, typ)
	}
	if !severity.Valid() {
		return domain.Alert{}, false, fmt.Errorf("%w: severity %q", domain.ErrInvalidInput, severity)
	}
	if strings.TrimSpace(material) == "" {
		return domain.Alert{}, false, fmt.Errorf("%w: material is required", domain.ErrInvalidInput)
	}

	e.mu.Lock()
	alert, created, err = e.appendLocked(ctx, typ, material, message, severity)
	e.mu.Unlock()
	if err != nil || !created {
		return alert, created, err
	}

	e.logger.Info().
		Int64("alert_id", alert.ID).
		Str("type", string(alert.Type)).
		Str("severity", string(alert.Severity)).
		Str("material", alert.Material).
		Msg(alert.Message)
	e.notify(ctx, alert)
	return alert, true, nil
}

func (e *Engine) appendLocked(ctx context.Context, typ domain.AlertType, material, message string, severity domain.Severity) (domain.Alert, bool, error) {
	now := e.clock.Now()
	if window := e.opts.Windows[typ]; window > 0 {
		cutoff := now.Add(-window)
		recent, err := e.store.ListSince(ctx, cutoff)
		if err != nil {
			return domain.Alert{}, false, fmt.Errorf("load recent alerts: %w", err)
		}
		if hasRecent(recent, material, typ, cutoff) {
			e.logger.Debug().Str("type", string(typ)).Str("material", material).Dur("window", window).Msg("告警在去重窗口内, 跳过")
			return domain.Alert{}, false, nil
		}
	}

	stored, err := e.store.Append(ctx, domain.Alert{
		Timestamp: now,
		Type:      typ,
		Material:  material,
		Message:   message,
		Severity:  severity,
	})
	if err != nil {
		return domain.Alert{}, false, fmt.Errorf("append alert: %w", err)
	}
	return stored, true, nil
}

// hasRecent scans newest first and stops at the first alert older than cutoff.
func hasRecent(alerts []domain.Alert, material string, typ domain.AlertType, cutoff time.Time) bool {
	for i := len(alerts) - 1; i >= 0; i-- {
		a := alerts[i]
		if a.Timestamp.Before(cutoff) {
			return false
		}
		if a.Material == material && a.Type == typ {
			return true
		}
	}
	return false
}

func (e *Engine) notify(ctx context.Context, alert domain.Alert) {
	if e.notifier == nil || !alert.Severity.Notifiable() {
		return
	}
	if err := e.notifier.Notify(ctx, alert); err != nil {
		e.logger.Error().Err(err).Int64("alert_id", alert.ID).Msg("发送告警通知失败")
	}
}

// CheckPrice raises PRICE_DROP / PRICE_INCREASE for materials whose price moved
// by at least thresholdPct since the previous reading.
func (e *Engine) CheckPrice(ctx context.Context, current, previous map[string]float64, thresholdPct float64) ([]domain.Alert, error) {
	if math.IsNaN(thresholdPct) || thresholdPct <= 0 {
		return nil, fmt.Errorf("%w: price threshold must be positive, got %v", domain.ErrInvalidInput, thresholdPct)
	}
	var out []domain.Alert
	for _, material := range sortedKeys(current) {
		cur := current[material]
		prev, ok := previous[material]
		if !ok || prev <= 0 || math.IsNaN(cur) {
			continue
		}
		change := (cur - prev) / prev * 100

		var (
			typ      domain.AlertType
			severity domain.Severity
			message  string
		)
		switch {
		case change <= -thresholdPct:
			typ, severity = domain.AlertPriceDrop, domain.SeverityWarning
			message = fmt.Sprintf("%s price dropped %.1f%% to $%s/ton. Consider buying!", material, math.Abs(change), domain.Money(cur))
		case change >= thresholdPct:
			typ, severity = domain.AlertPriceIncrease, domain.SeverityInfo
			message = fmt.Sprintf("%s price increased %.1f%% to $%s/ton.", material, change, domain.Money(cur))
		default:
			continue
		}
		if err := e.collect(ctx, &out, typ, material, message, severity); err != nil {
			return out, err
		}
	}
	return out, nil
}

// CheckInventory raises LOW_INVENTORY below the reorder threshold and
// HIGH_INVENTORY above 90% of capacity. threshold stands in for records
// without their own minimum.
func (e *Engine) CheckInventory(ctx context.Context, inventory map[string]domain.InventoryRecord, threshold float64) ([]domain.Alert, error) {
	if threshold <= 0 {
		threshold = defaultInventoryMinimum
	}
	var out []domain.Alert
	for _, material := range sortedKeys(inventory) {
		rec := inventory[material]
		if rec.DailyConsumption <= 0 {
			e.logger.Warn().Str("material", material).Msg("日消耗量无效, 跳过库存检查")
			continue
		}
		minimum := rec.MinThreshold
		if minimum <= 0 {
			minimum = threshold
		}

		if rec.CurrentStock < minimum {
			days := rec.DaysRemaining()
			switch {
			case days < criticalDaysRemaining:
				msg := fmt.Sprintf("%s inventory CRITICAL: %.1f tons remaining (~%.1f days). Immediate action required!", material, rec.CurrentStock, days)
				if err := e.collect(ctx, &out, domain.AlertLowInventory, material, msg, domain.SeverityCritical); err != nil {
					return out, err
				}
			case days < warningDaysRemaining:
				msg := fmt.Sprintf("%s inventory low: %.1f tons remaining (~%.1f days). Plan reorder soon.", material, rec.CurrentStock, days)
				if err := e.collect(ctx, &out, domain.AlertLowInventory, material, msg, domain.SeverityWarning); err != nil {
					return out, err
				}
			}
		}

		capacity := rec.MaxCapacity
		if capacity <= 0 {
			capacity = defaultMaxCapacity
		}
		if rec.CurrentStock > capacity*highInventoryRatio {
			msg := fmt.Sprintf("%s inventory high: %.1f tons (%.1f%% of capacity). Consider reducing orders.", material, rec.CurrentStock, rec.CurrentStock/capacity*100)
			if err := e.collect(ctx, &out, domain.AlertHighInventory, material, msg, domain.SeverityInfo); err != nil {
				return out, err
			}
		}
	}
	return out, nil
}

// CheckForecast turns BUY_NOW and WAIT recommendations into alerts.
func (e *Engine) CheckForecast(ctx context.Context, recs map[string]domain.Recommendation) ([]domain.Alert, error) {
	var out []domain.Alert
	for _, material := range sortedKeys(recs) {
		rec := recs[material]
		var (
			typ      domain.AlertType
			severity domain.Severity
		)
		switch rec.Label {
		case domain.LabelBuyNow:
			typ, severity = domain.AlertForecastBuy, domain.SeverityWarning
		case domain.LabelWait:
			typ, severity = domain.AlertForecastWait, domain.SeverityInfo
		default:
			continue
		}
		msg := fmt.Sprintf("%s: %s Action: %s", material, rec.Reason, actionText(rec.Label))
		if err := e.collect(ctx, &out, typ, material, msg, severity); err != nil {
			return out, err
		}
	}
	return out, nil
}

// CheckReorder combines stock cover with the price outlook, but only inside the
// reorder window of 7 to 14 days (both exclusive).
func (e *Engine) CheckReorder(ctx context.Context, inventory map[string]domain.InventoryRecord, recs map[string]domain.Recommendation) ([]domain.Alert, error) {
	var out []domain.Alert
	for _, material := range sortedKeys(inventory) {
		rec, ok := recs[material]
		if !ok {
			continue
		}
		inv := inventory[material]
		if inv.DailyConsumption <= 0 {
			continue
		}
		days := inv.DaysRemaining()
		if days <= reorderWindowLowerDays || days >= reorderWindowUpperDays {
			continue
		}
		switch rec.Label {
		case domain.LabelBuyNow:
			msg := fmt.Sprintf("%s: Optimal reorder time! Stock: %.1f days remaining + Favorable price forecast.", material, days)
			if err := e.collect(ctx, &out, domain.AlertReorderNow, material, msg, domain.SeverityWarning); err != nil {
				return out, err
			}
		case domain.LabelWait:
			msg := fmt.Sprintf("%s: Stock low (%.1f days) but prices expected to drop. Monitor closely.", material, days)
			if err := e.collect(ctx, &out, domain.AlertReorderWait, material, msg, domain.SeverityInfo); err != nil {
				return out, err
			}
		}
	}
	return out, nil
}

func (e *Engine) collect(ctx context.Context, out *[]domain.Alert, typ domain.AlertType, material, message string, severity domain.Severity) error {
	alert, created, err := e.CreateAlert(ctx, typ, material, message, severity)
	if err != nil {
		return err
	}
	if created {
		*out = append(*out, alert)
	}
	return nil
}

// Recent returns up to limit alerts, newest first. limit <= 0 means 10.
func (e *Engine) Recent(ctx context.Context, limit int, unreadOnly bool) ([]domain.Alert, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	all, err := e.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	out := make([]domain.Alert, 0, len(all))
	for _, a := range all {
		if unreadOnly && a.Read {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkAsRead flags one alert as read. Unknown ids return false with an error
// wrapping domain.ErrNotFound.
func (e *Engine) MarkAsRead(ctx context.Context, id int64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.SetRead(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

// MarkAllAsRead flags every unread alert and returns how many changed.
func (e *Engine) MarkAllAsRead(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, err := e.store.MarkAllRead(ctx)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return n, nil
}

// Summary counts the whole log.
func (e *Engine) Summary(ctx context.Context) (domain.AlertSummary, error) {
	all, err := e.store.List(ctx)
	if err != nil {
		return domain.AlertSummary{}, fmt.Errorf("list alerts: %w", err)
	}
	summary := domain.AlertSummary{
		Total:      len(all),
		BySeverity: make(map[domain.Severity]int),
		ByType:     make(map[domain.AlertType]int),
	}
	for _, a := range all {
		if !a.Read {
			summary.Unread++
		}
		summary.BySeverity[a.Severity]++
		summary.ByType[a.Type]++
	}
	return summary, nil
}

// ClearOld removes alerts older than days (the configured retention when
// days <= 0) and then caps the log at MaxAlerts. It returns how many were removed.
func (e *Engine) ClearOld(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		days = e.opts.RetentionDays
	}
	cutoff := e.clock.Now().Add(-time.Duration(days) * 24 * time.Hour)

	e.mu.Lock()
	defer e.mu.Unlock()

	removed, err := e.store.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune alerts: %w", err)
	}
	if e.opts.MaxAlerts > 0 {
		trimmed, err := e.store.TrimTo(ctx, e.opts.MaxAlerts)
		if err != nil {
			return removed, fmt.Errorf("trim alerts: %w", err)
		}
		removed += trimmed
	}
	if removed > 0 {
		e.logger.Info().Int("removed", removed).Time("cutoff", cutoff).Msg("已清理过期告警")
	}
	return removed, nil
}

func actionText(label domain.Label) string {
	return strings.ReplaceAll(string(label), "_", " ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
