package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"procurement-signals/internal/domain"
)

// MaterialView is one row of the dashboard.
type MaterialView struct {
	Material       string                   `json:"material"`
	CurrentPrice   float64                  `json:"current_price"`
	Recommendation *domain.Recommendation   `json:"recommendation,omitempty"`
	Opportunity    *domain.OpportunityScore `json:"opportunity,omitempty"`
	HealthScore    *float64                 `json:"health_score,omitempty"`
	HealthLevel    domain.HealthLevel       `json:"health_level,omitempty"`
	Inventory      *domain.InventoryRecord  `json:"inventory,omitempty"`
	DaysRemaining  float64                  `json:"days_remaining,omitempty"`
	Failure        string                   `json:"failure,omitempty"`
}

// Dashboard is the per-material overview plus the alert summary.
type Dashboard struct {
	CycleID     string              `json:"cycle_id"`
	UpdatedAt   time.Time           `json:"updated_at"`
	GeneratedAt time.Time           `json:"generated_at"`
	Materials   []MaterialView      `json:"materials"`
	Alerts      domain.AlertSummary `json:"alerts"`
}

// Dashboard assembles every material's signals from the current state.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	st, err := s.State()
	if err != nil {
		return Dashboard{}, err
	}

	out := Dashboard{
		CycleID:     st.CycleID,
		UpdatedAt:   st.UpdatedAt,
		GeneratedAt: s.clock.Now(),
		Materials:   make([]MaterialView, 0, len(st.Snapshot.Materials)),
	}
	for _, m := range st.Snapshot.Materials {
		view := MaterialView{Material: m, Failure: st.Failures[m]}
		if p, ok := st.Snapshot.CurrentPrice(m); ok {
			view.CurrentPrice = p
		}
		if rec, ok := st.Recommendations[m]; ok {
			view.Recommendation = &rec
		}
		if inv, ok := st.Snapshot.Inventory[m]; ok {
			view.Inventory = &inv
			view.DaysRemaining = domain.Round2(inv.DaysRemaining())
		}
		// one insight per row so health and market_stability agree
		insight := s.insightFor(st, m)
		if insight != nil {
			view.HealthScore = &insight.HealthScore
			view.HealthLevel = insight.HealthLevel
		}

		score, err := s.opportunity(st, m, insight)
		switch {
		case err == nil:
			view.Opportunity = &score
		case errors.Is(err, domain.ErrMissingSignal):
		default:
			return Dashboard{}, fmt.Errorf("opportunity %s: %w", m, err)
		}
		out.Materials = append(out.Materials, view)
	}

	if s.alerts != nil {
		summary, err := s.alerts.Summary(ctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("读取告警汇总失败")
		} else {
			out.Alerts = summary
		}
	}
	return out, nil
}
