package readings

import (
	"context"
	"time"
)

// Kind is the closed set of reading types the platform understands. Payloads
// may carry other type tags; those parse to KindUnknown and are stored but
// never matched against alert rules.
type Kind string

const (
	KindTemperature   Kind = "temperature"
	KindHumidity      Kind = "humidity"
	KindPressure      Kind = "pressure"
	KindWaterDetected Kind = "water_detected"
	KindPresence      Kind = "presence"
	KindUnknown       Kind = "unknown"
)

// ParseKind maps a raw type tag onto the known kinds.
func ParseKind(value string) Kind {
	switch Kind(value) {
	case KindTemperature, KindHumidity, KindPressure, KindWaterDetected, KindPresence:
		return Kind(value)
	default:
		return KindUnknown
	}
}

// RawReading is one entry of an inbound batch, before validation.
type RawReading struct {
	Type  string  `json:"type"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Reading is one validated, timestamped measurement. Immutable once written;
// readings are append-only.
type Reading struct {
	DeviceID   string
	Type       string
	Kind       Kind
	Value      float64
	Unit       string
	RecordedAt time.Time
}

// ReadingRepository persists reading batches.
type ReadingRepository interface {
	// InsertBatch writes all readings in one atomic multi-row insert.
	// Either every row commits or none does.
	InsertBatch(ctx context.Context, batch []Reading) error
}
