package application

import (
	"context"
	"errors"
	"time"

	alerts "property-monitor/internal/alerts/domain"
	devices "property-monitor/internal/devices/domain"
	"property-monitor/internal/observability/metrics"
	readings "property-monitor/internal/readings/domain"
)

// RuleStore loads alert rules.
type RuleStore interface {
	// ListEnabledForProperty returns enabled rules for the property whose
	// reading type is in readingTypes.
	ListEnabledForProperty(ctx context.Context, propertyID string, readingTypes []string) ([]alerts.Rule, error)
}

// AlertStore persists alerts.
type AlertStore interface {
	FindUnacknowledged(ctx context.Context, ruleID, deviceID string) (*alerts.Alert, error)
	Create(ctx context.Context, alert *alerts.Alert) error
}

// AlertNotifier publishes alert lifecycle events.
type AlertNotifier interface {
	Notify(ctx context.Context, event AlertEvent)
}

// AlertEvent represents a lifecycle update.
type AlertEvent struct {
	Type       string       `json:"type"`
	PropertyID string       `json:"property_id"`
	Alert      alerts.Alert `json:"alert"`
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Evaluator checks newly ingested readings against the configured rules and
// raises alerts.
type Evaluator struct {
	rules    RuleStore
	alerts   AlertStore
	notifier AlertNotifier
	clock    Clock
	dedupe   bool
}

// EvaluatorOption customizes the evaluator.
type EvaluatorOption func(*Evaluator)

// WithNotifier assigns a notifier.
func WithNotifier(notifier AlertNotifier) EvaluatorOption {
	return func(e *Evaluator) {
		e.notifier = notifier
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) EvaluatorOption {
	return func(e *Evaluator) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithDedupe toggles suppression of re-triggers while a prior alert for the
// same rule and device remains unacknowledged. On by default; turning it off
// raises a fresh alert on every violating batch.
func WithDedupe(enabled bool) EvaluatorOption {
	return func(e *Evaluator) {
		e.dedupe = enabled
	}
}

// NewEvaluator constructs an evaluator.
func NewEvaluator(rules RuleStore, alertStore AlertStore, opts ...EvaluatorOption) (*Evaluator, error) {
	if rules == nil {
		return nil, errors.New("alerts: nil rule store")
	}
	if alertStore == nil {
		return nil, errors.New("alerts: nil alert store")
	}
	evaluator := &Evaluator{
		rules:  rules,
		alerts: alertStore,
		clock:  systemClock{},
		dedupe: true,
	}
	for _, opt := range opts {
		opt(evaluator)
	}
	return evaluator, nil
}

// Evaluate matches the batch against the property's enabled rules and returns
// the alerts it created. Only the latest reading of each type counts; within a
// batch the last entry of a type wins. Nothing triggering is a normal outcome,
// not an error.
func (e *Evaluator) Evaluate(ctx context.Context, device *devices.Device, batch []readings.Reading) ([]alerts.Alert, error) {
	if e == nil {
		return nil, errors.New("alerts: nil evaluator")
	}
	if device == nil {
		return nil, errors.New("alerts: nil device")
	}
	if len(batch) == 0 {
		return nil, nil
	}

	latest := latestByType(batch)
	if len(latest) == 0 {
		return nil, nil
	}
	types := make([]string, 0, len(latest))
	for readingType := range latest {
		types = append(types, readingType)
	}

	rules, err := e.rules.ListEnabledForProperty(ctx, device.PropertyID, types)
	if err != nil {
		return nil, err
	}

	var created []alerts.Alert
	for _, rule := range rules {
		reading, ok := latest[rule.ReadingType]
		if !ok {
			continue
		}
		if !rule.Triggers(reading.Value) {
			continue
		}
		if e.dedupe {
			existing, err := e.alerts.FindUnacknowledged(ctx, rule.ID, device.ID)
			if err != nil {
				return created, err
			}
			if existing != nil {
				metrics.IncAlertEvent("suppressed")
				continue
			}
		}
		createdAt := e.clock.Now().UTC()
		alert := alerts.Alert{
			ID:           alerts.BuildAlertID(rule.ID, device.ID, createdAt),
			RuleID:       rule.ID,
			DeviceID:     device.ID,
			Value:        reading.Value,
			Message:      alerts.BuildMessage(rule.ReadingType, rule.Condition, reading.Value, rule.Threshold),
			Acknowledged: false,
			CreatedAt:    createdAt,
		}
		if err := e.alerts.Create(ctx, &alert); err != nil {
			if errors.Is(err, alerts.ErrDuplicateAlert) {
				// concurrent trigger lost the race; the other request's alert stands
				metrics.IncAlertEvent("suppressed")
				continue
			}
			return created, err
		}
		metrics.IncAlertEvent("triggered")
		if e.notifier != nil {
			e.notifier.Notify(ctx, AlertEvent{Type: "triggered", PropertyID: device.PropertyID, Alert: alert})
		}
		created = append(created, alert)
	}
	return created, nil
}

// latestByType keeps the last reading of each known type; readings carrying an
// unknown type tag never match a rule.
func latestByType(batch []readings.Reading) map[string]readings.Reading {
	latest := make(map[string]readings.Reading, len(batch))
	for _, reading := range batch {
		if reading.Kind == readings.KindUnknown {
			continue
		}
		latest[reading.Type] = reading
	}
	return latest
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
