package readings

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrEmptyBatch indicates the inbound batch had no entries.
	ErrEmptyBatch = errors.New("readings: empty batch")
	// ErrMissingType indicates an entry without a reading type tag.
	ErrMissingType = errors.New("readings: missing reading type")
	// ErrInvalidValue indicates a non-finite reading value.
	ErrInvalidValue = errors.New("readings: value is not a finite number")
	// ErrMissingUnit indicates an entry without a unit string.
	ErrMissingUnit = errors.New("readings: missing unit")
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// SystemClock returns wall-clock time in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Normalizer validates raw batches into typed readings.
type Normalizer struct {
	clock Clock
}

// NewNormalizer constructs a normalizer with an injected clock so batch
// timestamps are deterministic under test.
func NewNormalizer(clock Clock) *Normalizer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Normalizer{clock: clock}
}

// Normalize validates every entry and stamps the whole batch with a single
// server-side recorded_at. A device does not supply per-reading timestamps;
// one ingestion request is one instant. Input order is preserved: when a type
// repeats within a batch the last entry is the latest.
func (n *Normalizer) Normalize(deviceID string, raw []RawReading) ([]Reading, error) {
	if n == nil {
		return nil, errors.New("readings: nil normalizer")
	}
	if len(raw) == 0 {
		return nil, ErrEmptyBatch
	}

	recordedAt := n.clock.Now().UTC()
	batch := make([]Reading, 0, len(raw))
	for i, entry := range raw {
		if entry.Type == "" {
			return nil, fmt.Errorf("reading %d: %w", i, ErrMissingType)
		}
		if math.IsNaN(entry.Value) || math.IsInf(entry.Value, 0) {
			return nil, fmt.Errorf("reading %d (%s): %w", i, entry.Type, ErrInvalidValue)
		}
		if entry.Unit == "" {
			return nil, fmt.Errorf("reading %d (%s): %w", i, entry.Type, ErrMissingUnit)
		}
		batch = append(batch, Reading{
			DeviceID:   deviceID,
			Type:       entry.Type,
			Kind:       ParseKind(entry.Type),
			Value:      entry.Value,
			Unit:       entry.Unit,
			RecordedAt: recordedAt,
		})
	}
	return batch, nil
}

// IsValidationError reports whether err belongs to the normalizer taxonomy.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyBatch) ||
		errors.Is(err, ErrMissingType) ||
		errors.Is(err, ErrInvalidValue) ||
		errors.Is(err, ErrMissingUnit)
}
