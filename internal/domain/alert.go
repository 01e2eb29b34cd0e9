package domain

import "time"

// Severity grades an alert.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// Notifiable reports whether alerts of this severity go to the notification channels.
func (s Severity) Notifiable() bool {
	return s == SeverityWarning || s == SeverityCritical
}

// AlertType is the trigger kind of an alert.
type AlertType string

const (
	AlertPriceDrop     AlertType = "PRICE_DROP"
	AlertPriceIncrease AlertType = "PRICE_INCREASE"
	AlertLowInventory  AlertType = "LOW_INVENTORY"
	AlertHighInventory AlertType = "HIGH_INVENTORY"
	AlertForecastBuy   AlertType = "FORECAST_BUY"
	AlertForecastWait  AlertType = "FORECAST_WAIT"
	AlertReorderNow    AlertType = "REORDER_NOW"
	AlertReorderWait   AlertType = "REORDER_WAIT"
	AlertManual        AlertType = "MANUAL"
)

// AlertTypes lists every known trigger kind.
var AlertTypes = []AlertType{
	AlertPriceDrop, AlertPriceIncrease, AlertLowInventory, AlertHighInventory,
	AlertForecastBuy, AlertForecastWait, AlertReorderNow, AlertReorderWait, AlertManual,
}

// Valid reports whether t is a known alert type.
func (t AlertType) Valid() bool {
	for _, known := range AlertTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Alert is one entry of the append-only alert log.
type Alert struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      AlertType `json:"type"`
	Material  string    `json:"material"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Read      bool      `json:"read"`
}

// Validate rejects records that cannot be interpreted, e.g. rows written by an older schema.
func (a Alert) Validate() error {
	if a.ID <= 0 {
		return ErrInvalidInput
	}
	if a.Timestamp.IsZero() || !a.Type.Valid() || !a.Severity.Valid() {
		return ErrInvalidInput
	}
	return nil
}

// AlertSummary counts alerts by read state, severity and type.
type AlertSummary struct {
	Total      int               `json:"total"`
	Unread     int               `json:"unread"`
	BySeverity map[Severity]int  `json:"by_severity"`
	ByType     map[AlertType]int `json:"by_type"`
}
