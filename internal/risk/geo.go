package risk

import (
	"math/rand"
	"sync"
	"time"

	"procurement-signals/internal/domain"
)

// BaselineGeoRisk is the geographic risk assumed when no feed is available.
const BaselineGeoRisk = 20.0

// GeoRiskSource supplies the geographic/policy risk factor for a vendor.
// Values outside [0,100] are clamped by the Scorer.
type GeoRiskSource interface {
	GeographicRisk(v domain.Vendor, material string) float64
}

// FixedGeoRisk returns the same value for every vendor.
type FixedGeoRisk struct {
	Value float64
}

// GeographicRisk implements GeoRiskSource.
func (f FixedGeoRisk) GeographicRisk(domain.Vendor, string) float64 {
	return f.Value
}

// SimulatedGeoRisk perturbs the baseline by a uniform draw in [-10, +20].
// It exists for demo datasets; seed it for reproducible output.
type SimulatedGeoRisk struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedGeoRisk seeds the perturbation. Seed 0 uses the wall clock.
func NewSimulatedGeoRisk(seed int64) *SimulatedGeoRisk {
	return &SimulatedGeoRisk{rng: newRand(seed)}
}

// GeographicRisk implements GeoRiskSource.
func (s *SimulatedGeoRisk) GeographicRisk(domain.Vendor, string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return BaselineGeoRisk - 10 + s.rng.Float64()*30
}

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

var _ GeoRiskSource = FixedGeoRisk{}
var _ GeoRiskSource = (*SimulatedGeoRisk)(nil)
