package domain

import "errors"

var (
	// ErrInvalidInput marks malformed or out-of-range numeric input, e.g. a non-positive price.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInsufficientData marks an empty forecast curve or missing price history.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrMissingSignal is returned when every opportunity-score input is absent.
	ErrMissingSignal = errors.New("missing signal")
	// ErrNotFound marks an unknown alert id or material.
	ErrNotFound = errors.New("not found")
)

// Kind maps an error to its taxonomy name. Unclassified errors return "INTERNAL".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrInsufficientData):
		return "INSUFFICIENT_DATA"
	case errors.Is(err, ErrMissingSignal):
		return "MISSING_SIGNAL"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	default:
		return "INTERNAL"
	}
}
