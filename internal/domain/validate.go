package domain

import (
	"fmt"
	"math"
	"strings"
)

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate checks a price observation.
func (p PricePoint) Validate() error {
	if strings.TrimSpace(p.Material) == "" {
		return fmt.Errorf("%w: price point material is empty", ErrInvalidInput)
	}
	if p.Date.IsZero() {
		return fmt.Errorf("%w: price point for %s has no date", ErrInvalidInput, p.Material)
	}
	if !finite(p.Price) || p.Price <= 0 {
		return fmt.Errorf("%w: price for %s must be positive, got %v", ErrInvalidInput, p.Material, p.Price)
	}
	if !finite(p.Volume) || p.Volume < 0 {
		return fmt.Errorf("%w: volume for %s cannot be negative", ErrInvalidInput, p.Material)
	}
	return nil
}

// Validate checks that a curve is non-empty and every bound brackets its point.
func (c ForecastCurve) Validate() error {
	if len(c.Points) == 0 {
		return fmt.Errorf("%w: forecast curve for %s is empty", ErrInsufficientData, c.Material)
	}
	for i, p := range c.Points {
		if !finite(p.Point) || !finite(p.Lower) || !finite(p.Upper) {
			return fmt.Errorf("%w: forecast day %d for %s is not a number", ErrInvalidInput, i+1, c.Material)
		}
		if p.Lower > p.Point || p.Point > p.Upper {
			return fmt.Errorf("%w: forecast day %d for %s violates lower <= point <= upper", ErrInvalidInput, i+1, c.Material)
		}
	}
	return nil
}

// Validate checks a vendor quote.
func (v Vendor) Validate() error {
	if strings.TrimSpace(v.Name) == "" {
		return fmt.Errorf("%w: vendor name is empty", ErrInvalidInput)
	}
	if !finite(v.Price) || v.Price <= 0 {
		return fmt.Errorf("%w: vendor %s price must be positive", ErrInvalidInput, v.Name)
	}
	if !finite(v.Rating) || v.Rating < 0 || v.Rating > 5 {
		return fmt.Errorf("%w: vendor %s rating must be within [0,5]", ErrInvalidInput, v.Name)
	}
	if v.DeliveryDays < 0 {
		return fmt.Errorf("%w: vendor %s delivery_days cannot be negative", ErrInvalidInput, v.Name)
	}
	if v.MinOrder < 0 {
		return fmt.Errorf("%w: vendor %s min_order cannot be negative", ErrInvalidInput, v.Name)
	}
	return nil
}

// Validate checks an inventory record.
func (r InventoryRecord) Validate() error {
	if strings.TrimSpace(r.Material) == "" {
		return fmt.Errorf("%w: inventory material is empty", ErrInvalidInput)
	}
	if !finite(r.CurrentStock) || r.CurrentStock < 0 {
		return fmt.Errorf("%w: inventory for %s has negative stock", ErrInvalidInput, r.Material)
	}
	if !finite(r.DailyConsumption) || r.DailyConsumption <= 0 {
		return fmt.Errorf("%w: inventory for %s needs positive daily_consumption", ErrInvalidInput, r.Material)
	}
	if !finite(r.MinThreshold) || r.MinThreshold < 0 || !finite(r.MaxCapacity) || r.MaxCapacity < 0 {
		return fmt.Errorf("%w: inventory thresholds for %s cannot be negative", ErrInvalidInput, r.Material)
	}
	return nil
}
