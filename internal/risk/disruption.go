package risk

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"procurement-signals/internal/domain"
)

// DisruptionModel estimates the supply interruption risk of a material.
type DisruptionModel interface {
	Assess(material string) domain.DisruptionRisk
}

var sourceCountries = map[string][]string{
	"copper":   {"Chile", "Peru", "China", "United States", "Australia"},
	"aluminum": {"China", "Russia", "Canada", "United States", "India"},
	"steel":    {"China", "India", "Japan", "United States", "Russia"},
}

func factorTemplates(m string) []string {
	return []string{
		fmt.Sprintf("Geopolitical tensions affecting %s supply routes", m),
		fmt.Sprintf("Weather conditions impacting %s production", m),
		fmt.Sprintf("Transportation disruptions in key %s shipping lanes", m),
		fmt.Sprintf("Seasonal demand fluctuations for %s", m),
		fmt.Sprintf("Currency fluctuations affecting %s import costs", m),
	}
}

func mitigationTemplates(m string) []string {
	return []string{
		fmt.Sprintf("Diversify %s suppliers across different regions", m),
		fmt.Sprintf("Increase safety stock levels for %s", m),
		fmt.Sprintf("Negotiate flexible delivery schedules with %s vendors", m),
		fmt.Sprintf("Explore alternative %s sources or substitute materials", m),
		fmt.Sprintf("Establish strategic partnerships with key %s suppliers", m),
	}
}

func actionTemplates(m string) []string {
	return []string{
		fmt.Sprintf("Monitor %s supply chain closely", m),
		fmt.Sprintf("Review %s inventory levels and reorder points", m),
		fmt.Sprintf("Engage with %s suppliers about potential disruptions", m),
		fmt.Sprintf("Research alternative %s options or sources", m),
		fmt.Sprintf("Adjust %s procurement strategy based on risk", m),
	}
}

func countriesFor(material string) []string {
	if c, ok := sourceCountries[strings.ToLower(material)]; ok {
		return c
	}
	return []string{material + " sources"}
}

// materialBias is the [lo, hi] score add-on for materials with known exposure.
func materialBias(material string) (int, int) {
	switch strings.ToLower(material) {
	case "copper", "aluminum":
		return 5, 15
	case "steel":
		return 0, 10
	default:
		return 0, 0
	}
}

// BaselineDisruption is the deterministic stub: the midpoint of the base
// range [20,60] plus the midpoint of the material bias, with a fixed
// selection of factors and strategies.
type BaselineDisruption struct{}

// Assess implements DisruptionModel.
func (BaselineDisruption) Assess(material string) domain.DisruptionRisk {
	lo, hi := materialBias(material)
	score := domain.Clamp(float64(40+(lo+hi)/2), 0, 100)
	countries := countriesFor(material)
	return domain.DisruptionRisk{
		Material:           material,
		Score:              score,
		Level:              domain.LevelForRisk(score),
		Factors:            factorTemplates(material)[:3],
		Mitigations:        mitigationTemplates(material)[:2],
		AlternativeSources: countries[:min(2, len(countries))],
		RecommendedActions: actionTemplates(material)[:1],
	}
}

// SimulatedDisruption draws scores and narratives from a seeded source.
type SimulatedDisruption struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedDisruption seeds the model. Seed 0 uses the wall clock.
func NewSimulatedDisruption(seed int64) *SimulatedDisruption {
	return &SimulatedDisruption{rng: newRand(seed)}
}

// Assess implements DisruptionModel.
func (s *SimulatedDisruption) Assess(material string) domain.DisruptionRisk {
	s.mu.Lock()
	defer s.mu.Unlock()

	score := 20 + s.rng.Intn(41)
	if lo, hi := materialBias(material); hi > 0 {
		score += lo + s.rng.Intn(hi-lo+1)
	}
	value := domain.Clamp(float64(score), 0, 100)

	return domain.DisruptionRisk{
		Material:           material,
		Score:              value,
		Level:              domain.LevelForRisk(value),
		Factors:            s.sample(factorTemplates(material), 2, 4),
		Mitigations:        s.sample(mitigationTemplates(material), 2, 3),
		AlternativeSources: s.sample(countriesFor(material), 2, 3),
		RecommendedActions: s.sample(actionTemplates(material), 1, 2),
	}
}

// sample picks between lo and hi distinct items. Caller holds s.mu.
func (s *SimulatedDisruption) sample(items []string, lo, hi int) []string {
	hi = min(hi, len(items))
	lo = min(lo, hi)
	n := lo
	if hi > lo {
		n += s.rng.Intn(hi - lo + 1)
	}
	picked := make([]string, 0, n)
	for _, idx := range s.rng.Perm(len(items))[:n] {
		picked = append(picked, items[idx])
	}
	return picked
}

var _ DisruptionModel = BaselineDisruption{}
var _ DisruptionModel = (*SimulatedDisruption)(nil)
