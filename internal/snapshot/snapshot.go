// Package snapshot loads the market picture (price history, vendor quotes,
// inventory) the scoring cycle runs against.
package snapshot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"procurement-signals/internal/domain"
)

// Source produces a fresh snapshot.
type Source interface {
	Load(ctx context.Context) (*Snapshot, error)
}

// Snapshot is read-only once built; callers must not mutate its maps.
type Snapshot struct {
	Materials []string                          `json:"materials"`
	Prices    map[string][]domain.PricePoint    `json:"prices"`
	Vendors   map[string][]domain.Vendor        `json:"vendors"`
	Inventory map[string]domain.InventoryRecord `json:"inventory"`
	LoadedAt  time.Time                         `json:"loaded_at"`
}

// Document is the serialised form shared by the file and redis sources.
type Document struct {
	Materials []string                          `json:"materials"`
	Prices    []PriceRow                        `json:"prices"`
	Vendors   map[string][]domain.Vendor        `json:"vendors"`
	Inventory map[string]domain.InventoryRecord `json:"inventory"`
}

// PriceRow is a price observation with a plain date string.
type PriceRow struct {
	Date     string  `json:"date"`
	Material string  `json:"material"`
	Price    float64 `json:"price"`
	Volume   float64 `json:"volume"`
	Source   string  `json:"source"`
}

// Build validates a document and assembles the snapshot. Invalid records are
// dropped and logged; the first vendor with a given name wins.
func Build(doc Document, loadedAt time.Time, logger zerolog.Logger) *Snapshot {
	snap := &Snapshot{
		Prices:    make(map[string][]domain.PricePoint),
		Vendors:   make(map[string][]domain.Vendor),
		Inventory: make(map[string]domain.InventoryRecord),
		LoadedAt:  loadedAt,
	}

	for _, row := range doc.Prices {
		point, err := row.toPoint()
		if err == nil {
			err = point.Validate()
		}
		if err != nil {
			logger.Warn().Err(err).Str("material", row.Material).Str("date", row.Date).Msg("丢弃无效价格记录")
			continue
		}
		snap.Prices[point.Material] = append(snap.Prices[point.Material], point)
	}
	for material, points := range snap.Prices {
		sort.SliceStable(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
		snap.Prices[material] = points
	}

	for material, vendors := range doc.Vendors {
		seen := make(map[string]bool, len(vendors))
		kept := make([]domain.Vendor, 0, len(vendors))
		for _, v := range vendors {
			if err := v.Validate(); err != nil {
				logger.Warn().Err(err).Str("material", material).Msg("丢弃无效供应商记录")
				continue
			}
			if seen[v.Name] {
				logger.Warn().Str("material", material).Str("vendor", v.Name).Msg("丢弃重复供应商")
				continue
			}
			seen[v.Name] = true
			kept = append(kept, v)
		}
		if len(kept) > 0 {
			snap.Vendors[material] = kept
		}
	}

	for material, rec := range doc.Inventory {
		if rec.Material == "" {
			rec.Material = material
		}
		if err := rec.Validate(); err != nil {
			logger.Warn().Err(err).Str("material", material).Msg("丢弃无效库存记录")
			continue
		}
		snap.Inventory[material] = rec
	}

	snap.Materials = materialList(doc.Materials, snap)
	return snap
}

func (r PriceRow) toPoint() (domain.PricePoint, error) {
	date, err := parseDate(r.Date)
	if err != nil {
		return domain.PricePoint{}, err
	}
	return domain.PricePoint{
		Material: strings.TrimSpace(r.Material),
		Date:     date,
		Price:    r.Price,
		Volume:   r.Volume,
		Source:   r.Source,
	}, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable date %q", domain.ErrInvalidInput, raw)
}

// materialList keeps the declared order and appends any other material seen in
// the data, sorted.
func materialList(declared []string, snap *Snapshot) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(declared))
	for _, m := range declared {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	var extra []string
	add := func(m string) {
		if !seen[m] {
			seen[m] = true
			extra = append(extra, m)
		}
	}
	for m := range snap.Prices {
		add(m)
	}
	for m := range snap.Vendors {
		add(m)
	}
	for m := range snap.Inventory {
		add(m)
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// Document converts the snapshot back to its serialised form.
func (s *Snapshot) Document() Document {
	doc := Document{
		Materials: append([]string(nil), s.Materials...),
		Vendors:   s.Vendors,
		Inventory: s.Inventory,
	}
	for _, m := range s.Materials {
		for _, p := range s.Prices[m] {
			doc.Prices = append(doc.Prices, PriceRow{
				Date:     p.Date.Format("2006-01-02"),
				Material: p.Material,
				Price:    p.Price,
				Volume:   p.Volume,
				Source:   p.Source,
			})
		}
	}
	return doc
}

// Canonical resolves a material name case-insensitively.
func (s *Snapshot) Canonical(material string) (string, bool) {
	material = strings.TrimSpace(material)
	for _, m := range s.Materials {
		if m == material {
			return m, true
		}
	}
	for _, m := range s.Materials {
		if strings.EqualFold(m, material) {
			return m, true
		}
	}
	return "", false
}

// History returns the last n price points of material, oldest first.
func (s *Snapshot) History(material string, n int) []domain.PricePoint {
	points := s.Prices[material]
	if n > 0 && len(points) > n {
		points = points[len(points)-n:]
	}
	return points
}

// CurrentPrice is the latest close of material.
func (s *Snapshot) CurrentPrice(material string) (float64, bool) {
	points := s.Prices[material]
	if len(points) == 0 {
		return 0, false
	}
	return points[len(points)-1].Price, true
}

// PreviousPrice is the close before the latest one.
func (s *Snapshot) PreviousPrice(material string) (float64, bool) {
	points := s.Prices[material]
	if len(points) < 2 {
		return 0, false
	}
	return points[len(points)-2].Price, true
}

// CurrentPrices maps every material with history to its latest close.
func (s *Snapshot) CurrentPrices() map[string]float64 {
	out := make(map[string]float64, len(s.Prices))
	for m := range s.Prices {
		if p, ok := s.CurrentPrice(m); ok {
			out[m] = p
		}
	}
	return out
}

// PreviousPrices maps every material with at least two closes to the prior one.
func (s *Snapshot) PreviousPrices() map[string]float64 {
	out := make(map[string]float64, len(s.Prices))
	for m := range s.Prices {
		if p, ok := s.PreviousPrice(m); ok {
			out[m] = p
		}
	}
	return out
}
