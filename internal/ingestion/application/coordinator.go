package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	alertapp "property-monitor/internal/alerts/application"
	alerts "property-monitor/internal/alerts/domain"
	devices "property-monitor/internal/devices/domain"
	"property-monitor/internal/observability/metrics"
	readings "property-monitor/internal/readings/domain"
)

// ErrStorage wraps failures of the primary reading write.
var ErrStorage = errors.New("ingestion: storage failure")

// AlertEvaluator raises alerts for newly ingested readings.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, device *devices.Device, batch []readings.Reading) ([]alerts.Alert, error)
}

// LatestRecorder mirrors the newest reading per type into a hot cache.
type LatestRecorder interface {
	StoreBatch(ctx context.Context, batch []readings.Reading) error
}

// Result reports one accepted ingestion.
type Result struct {
	Stored          int
	Alerts          []alerts.Alert
	AlertsEvaluated bool
	LastSeenUpdated bool
}

// Coordinator orchestrates one ingestion request: authenticate, normalize,
// persist, update liveness, evaluate alerts.
type Coordinator struct {
	auth       *devices.Authenticator
	normalizer *readings.Normalizer
	readings   readings.ReadingRepository
	devices    devices.DeviceRepository
	evaluator  AlertEvaluator
	latest     LatestRecorder
	logger     *log.Logger
}

// CoordinatorOption customizes the coordinator.
type CoordinatorOption func(*Coordinator)

// WithEvaluator wires the alert evaluator. Without one, ingestion still
// succeeds and results report AlertsEvaluated=false.
func WithEvaluator(evaluator AlertEvaluator) CoordinatorOption {
	return func(c *Coordinator) {
		c.evaluator = evaluator
	}
}

// WithLatestRecorder wires the hot latest-reading cache.
func WithLatestRecorder(latest LatestRecorder) CoordinatorOption {
	return func(c *Coordinator) {
		c.latest = latest
	}
}

// NewCoordinator constructs a coordinator.
func NewCoordinator(auth *devices.Authenticator, normalizer *readings.Normalizer, readingRepo readings.ReadingRepository, deviceRepo devices.DeviceRepository, logger *log.Logger, opts ...CoordinatorOption) (*Coordinator, error) {
	if auth == nil {
		return nil, errors.New("ingestion: nil authenticator")
	}
	if normalizer == nil {
		return nil, errors.New("ingestion: nil normalizer")
	}
	if readingRepo == nil {
		return nil, errors.New("ingestion: nil reading repository")
	}
	if deviceRepo == nil {
		return nil, errors.New("ingestion: nil device repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	coordinator := &Coordinator{
		auth:       auth,
		normalizer: normalizer,
		readings:   readingRepo,
		devices:    deviceRepo,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(coordinator)
	}
	return coordinator, nil
}

// Ingest processes one inbound batch. Authentication and validation failures
// are terminal with no side effects. A failed reading write is terminal. The
// liveness update and alert evaluation are secondary: their failures are
// logged and surfaced in the Result but never escalated. Stored readings are
// authoritative, the rest is derived.
func (c *Coordinator) Ingest(ctx context.Context, deviceID, apiKey string, raw []readings.RawReading) (*Result, error) {
	if c == nil {
		return nil, errors.New("ingestion: nil coordinator")
	}
	start := time.Now()

	device, err := c.auth.Authenticate(ctx, deviceID, apiKey)
	if err != nil {
		c.observeFailure(start, err)
		return nil, err
	}

	batch, err := c.normalizer.Normalize(device.ID, raw)
	if err != nil {
		c.observeFailure(start, err)
		return nil, err
	}
	if unknown := countUnknown(batch); unknown > 0 {
		c.logger.Printf("ingest: device=%s batch carries %d unknown reading type(s)", device.ID, unknown)
	}

	// readings commit before liveness: last_seen must never run ahead of data
	if err := c.readings.InsertBatch(ctx, batch); err != nil {
		c.observeFailure(start, fmt.Errorf("%w: %v", ErrStorage, err))
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	result := &Result{Stored: len(batch)}
	ingestedAt := batch[0].RecordedAt

	if err := c.devices.UpdateLastSeen(ctx, device.ID, ingestedAt); err != nil {
		c.logger.Printf("ingest: device=%s last_seen update failed: %v", device.ID, err)
	} else {
		result.LastSeenUpdated = true
	}

	if c.latest != nil {
		if err := c.latest.StoreBatch(ctx, batch); err != nil {
			c.logger.Printf("ingest: device=%s latest cache update failed: %v", device.ID, err)
		}
	}

	if c.evaluator != nil {
		created, err := c.evaluator.Evaluate(ctx, device, batch)
		if err != nil {
			// advisory: ingestion durability is primary
			c.logger.Printf("ingest: device=%s alert evaluation failed: %v", device.ID, err)
			result.Alerts = created
		} else {
			result.AlertsEvaluated = true
			result.Alerts = created
		}
	}

	metrics.ObserveIngest(metrics.IngestResultSuccess, time.Since(start))
	metrics.AddReadingsStored(result.Stored)
	return result, nil
}

func (c *Coordinator) observeFailure(start time.Time, err error) {
	metrics.ObserveIngest(metrics.IngestResultError, time.Since(start))
	metrics.IncIngestError(failureReason(err))
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, devices.ErrDeviceNotFound):
		return "device_not_found"
	case errors.Is(err, devices.ErrInvalidAPIKey):
		return "invalid_api_key"
	case errors.Is(err, readings.ErrEmptyBatch):
		return "empty_batch"
	case errors.Is(err, readings.ErrMissingType):
		return "missing_type"
	case errors.Is(err, readings.ErrInvalidValue):
		return "invalid_value"
	case errors.Is(err, readings.ErrMissingUnit):
		return "missing_unit"
	case errors.Is(err, ErrStorage):
		return "storage"
	default:
		return "unknown"
	}
}

func countUnknown(batch []readings.Reading) int {
	count := 0
	for _, reading := range batch {
		if reading.Kind == readings.KindUnknown {
			count++
		}
	}
	return count
}

var _ AlertEvaluator = (*alertapp.Evaluator)(nil)
