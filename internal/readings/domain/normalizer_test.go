package readings

import (
	"errors"
	"math"
	"testing"
	"time"
)

type fixedClock struct {
	at time.Time
}

func (c fixedClock) Now() time.Time { return c.at }

func TestNormalizeEmptyBatch(t *testing.T) {
	n := NewNormalizer(fixedClock{at: time.Unix(1700000000, 0)})
	if _, err := n.Normalize("dev-1", nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestNormalizeRejectsNonFiniteValues(t *testing.T) {
	n := NewNormalizer(fixedClock{at: time.Unix(1700000000, 0)})
	for _, value := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := n.Normalize("dev-1", []RawReading{{Type: "temperature", Value: value, Unit: "°F"}})
		if !errors.Is(err, ErrInvalidValue) {
			t.Fatalf("value %v: expected ErrInvalidValue, got %v", value, err)
		}
	}
}

func TestNormalizeRejectsMissingFields(t *testing.T) {
	n := NewNormalizer(fixedClock{at: time.Unix(1700000000, 0)})

	_, err := n.Normalize("dev-1", []RawReading{{Type: "", Value: 1, Unit: "°F"}})
	if !errors.Is(err, ErrMissingType) {
		t.Fatalf("expected ErrMissingType, got %v", err)
	}

	_, err = n.Normalize("dev-1", []RawReading{{Type: "temperature", Value: 1}})
	if !errors.Is(err, ErrMissingUnit) {
		t.Fatalf("expected ErrMissingUnit, got %v", err)
	}
}

func TestNormalizeSharedTimestampAndOrder(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := NewNormalizer(fixedClock{at: at})
	batch, err := n.Normalize("dev-1", []RawReading{
		{Type: "temperature", Value: 40, Unit: "°F"},
		{Type: "humidity", Value: 55, Unit: "%"},
		{Type: "temperature", Value: 20, Unit: "°F"},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("expected 3 readings, got %d", len(batch))
	}
	for i, reading := range batch {
		if !reading.RecordedAt.Equal(at) {
			t.Fatalf("reading %d: expected shared timestamp %v, got %v", i, at, reading.RecordedAt)
		}
		if reading.DeviceID != "dev-1" {
			t.Fatalf("reading %d: unexpected device %s", i, reading.DeviceID)
		}
	}
	// input order preserved; the trailing temperature entry is the latest
	if batch[0].Value != 40 || batch[2].Value != 20 {
		t.Fatalf("order not preserved: %v", batch)
	}
}

func TestParseKindUnknownFallback(t *testing.T) {
	if kind := ParseKind("temperature"); kind != KindTemperature {
		t.Fatalf("expected temperature kind, got %s", kind)
	}
	if kind := ParseKind("co2"); kind != KindUnknown {
		t.Fatalf("expected unknown kind, got %s", kind)
	}
}
