package application

import (
	"context"
	"testing"
	"time"

	alerts "property-monitor/internal/alerts/domain"
	devices "property-monitor/internal/devices/domain"
	readings "property-monitor/internal/readings/domain"
)

type stubRuleStore struct {
	rules          []alerts.Rule
	requestedTypes []string
}

func (s *stubRuleStore) ListEnabledForProperty(_ context.Context, _ string, readingTypes []string) ([]alerts.Rule, error) {
	s.requestedTypes = readingTypes
	return s.rules, nil
}

type stubAlertStore struct {
	existing map[string]*alerts.Alert
	created  []alerts.Alert
}

func (s *stubAlertStore) FindUnacknowledged(_ context.Context, ruleID, deviceID string) (*alerts.Alert, error) {
	if s.existing == nil {
		return nil, nil
	}
	return s.existing[ruleID+"|"+deviceID], nil
}

func (s *stubAlertStore) Create(_ context.Context, alert *alerts.Alert) error {
	s.created = append(s.created, *alert)
	if s.existing == nil {
		s.existing = make(map[string]*alerts.Alert)
	}
	s.existing[alert.RuleID+"|"+alert.DeviceID] = alert
	return nil
}

type fixedClock struct {
	at time.Time
}

func (c fixedClock) Now() time.Time { return c.at }

func tempBelowFreezing() alerts.Rule {
	return alerts.Rule{
		ID:          "rule-1",
		PropertyID:  "prop-1",
		ReadingType: "temperature",
		Condition:   alerts.ConditionBelow,
		Threshold:   32,
		Enabled:     true,
	}
}

func testDevice() *devices.Device {
	return &devices.Device{ID: "D1", PropertyID: "prop-1", APIKey: "abc123", Type: devices.TypeTemperature}
}

func reading(readingType string, value float64) readings.Reading {
	return readings.Reading{
		DeviceID:   "D1",
		Type:       readingType,
		Kind:       readings.ParseKind(readingType),
		Value:      value,
		Unit:       "°F",
		RecordedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestEvaluateTriggersBelow(t *testing.T) {
	ruleStore := &stubRuleStore{rules: []alerts.Rule{tempBelowFreezing()}}
	alertStore := &stubAlertStore{}
	evaluator, err := NewEvaluator(ruleStore, alertStore, WithClock(fixedClock{at: time.Unix(1700000000, 0)}))
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}

	created, err := evaluator.Evaluate(context.Background(), testDevice(), []readings.Reading{reading("temperature", 28.5)})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(created))
	}
	alert := created[0]
	if alert.Value != 28.5 {
		t.Fatalf("expected trigger value 28.5, got %v", alert.Value)
	}
	if alert.Message != "temperature is below threshold (28.5 vs 32)" {
		t.Fatalf("unexpected message %q", alert.Message)
	}
	if alert.Acknowledged {
		t.Fatal("new alert must be unacknowledged")
	}
}

func TestEvaluateDedupeSuppressesSecondTrigger(t *testing.T) {
	ruleStore := &stubRuleStore{rules: []alerts.Rule{tempBelowFreezing()}}
	alertStore := &stubAlertStore{}
	evaluator, err := NewEvaluator(ruleStore, alertStore)
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}

	first, err := evaluator.Evaluate(context.Background(), testDevice(), []readings.Reading{reading("temperature", 28.5)})
	if err != nil {
		t.Fatalf("first evaluate: %v", err)
	}
	second, err := evaluator.Evaluate(context.Background(), testDevice(), []readings.Reading{reading("temperature", 28.5)})
	if err != nil {
		t.Fatalf("second evaluate: %v", err)
	}
	if len(first) != 1 || len(second) != 0 {
		t.Fatalf("expected exactly one alert across both runs, got %d then %d", len(first), len(second))
	}
	if len(alertStore.created) != 1 {
		t.Fatalf("expected 1 stored alert, got %d", len(alertStore.created))
	}
}

func TestEvaluateDedupeDisabled(t *testing.T) {
	ruleStore := &stubRuleStore{rules: []alerts.Rule{tempBelowFreezing()}}
	alertStore := &stubAlertStore{}
	evaluator, err := NewEvaluator(ruleStore, alertStore, WithDedupe(false))
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := evaluator.Evaluate(context.Background(), testDevice(), []readings.Reading{reading("temperature", 28.5)}); err != nil {
			t.Fatalf("evaluate %d: %v", i, err)
		}
	}
	if len(alertStore.created) != 2 {
		t.Fatalf("expected 2 stored alerts with dedupe off, got %d", len(alertStore.created))
	}
}

func TestEvaluateBoundaryNeverTriggers(t *testing.T) {
	above := tempBelowFreezing()
	above.ID = "rule-above"
	above.Condition = alerts.ConditionAbove

	ruleStore := &stubRuleStore{rules: []alerts.Rule{tempBelowFreezing(), above}}
	alertStore := &stubAlertStore{}
	evaluator, err := NewEvaluator(ruleStore, alertStore)
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}

	created, err := evaluator.Evaluate(context.Background(), testDevice(), []readings.Reading{reading("temperature", 32)})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("threshold equality triggered %d alerts", len(created))
	}
}

func TestEvaluateLastReadingOfTypeWins(t *testing.T) {
	ruleStore := &stubRuleStore{rules: []alerts.Rule{tempBelowFreezing()}}
	alertStore := &stubAlertStore{}
	evaluator, err := NewEvaluator(ruleStore, alertStore)
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}

	created, err := evaluator.Evaluate(context.Background(), testDevice(), []readings.Reading{
		reading("temperature", 40),
		reading("temperature", 20),
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(created))
	}
	if created[0].Value != 20 {
		t.Fatalf("expected last-one-wins value 20, got %v", created[0].Value)
	}
}

func TestEvaluateSkipsUnknownTypesAndFiltersRequest(t *testing.T) {
	ruleStore := &stubRuleStore{}
	alertStore := &stubAlertStore{}
	evaluator, err := NewEvaluator(ruleStore, alertStore)
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}

	_, err = evaluator.Evaluate(context.Background(), testDevice(), []readings.Reading{
		reading("temperature", 70),
		reading("co2", 900),
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(ruleStore.requestedTypes) != 1 || ruleStore.requestedTypes[0] != "temperature" {
		t.Fatalf("expected rule lookup for [temperature], got %v", ruleStore.requestedTypes)
	}
}

func TestEvaluateToleratesDuplicateRace(t *testing.T) {
	ruleStore := &stubRuleStore{rules: []alerts.Rule{tempBelowFreezing()}}
	alertStore := &racingAlertStore{}
	evaluator, err := NewEvaluator(ruleStore, alertStore)
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}

	created, err := evaluator.Evaluate(context.Background(), testDevice(), []readings.Reading{reading("temperature", 28.5)})
	if err != nil {
		t.Fatalf("duplicate race must not fail evaluation: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("expected 0 alerts after losing the race, got %d", len(created))
	}
}

// racingAlertStore simulates a concurrent request inserting the same alert
// between the dedupe check and the create.
type racingAlertStore struct{}

func (racingAlertStore) FindUnacknowledged(_ context.Context, _, _ string) (*alerts.Alert, error) {
	return nil, nil
}

func (racingAlertStore) Create(_ context.Context, _ *alerts.Alert) error {
	return alerts.ErrDuplicateAlert
}

type captureNotifier struct {
	events []AlertEvent
}

func (n *captureNotifier) Notify(_ context.Context, event AlertEvent) {
	n.events = append(n.events, event)
}

func TestEvaluateNotifiesWithDeviceProperty(t *testing.T) {
	ruleStore := &stubRuleStore{rules: []alerts.Rule{tempBelowFreezing()}}
	alertStore := &stubAlertStore{}
	notifier := &captureNotifier{}
	evaluator, err := NewEvaluator(ruleStore, alertStore, WithNotifier(notifier))
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}

	if _, err := evaluator.Evaluate(context.Background(), testDevice(), []readings.Reading{reading("temperature", 28.5)}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(notifier.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(notifier.events))
	}
	event := notifier.events[0]
	if event.Type != "triggered" {
		t.Fatalf("event type = %q", event.Type)
	}
	if event.PropertyID != "prop-1" {
		t.Fatalf("event property = %q, want prop-1", event.PropertyID)
	}
}
