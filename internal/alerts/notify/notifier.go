package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	alertapp "property-monitor/internal/alerts/application"
	alerts "property-monitor/internal/alerts/domain"
	devices "property-monitor/internal/devices/domain"
)

// RuleReader loads alert rules for rendering.
type RuleReader interface {
	GetByID(ctx context.Context, id string) (*alerts.Rule, error)
}

// DeviceReader loads device metadata for rendering.
type DeviceReader interface {
	GetByID(ctx context.Context, id string) (*devices.Device, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders alert events and sends them through a channel, with an
// optional cooldown per alert and suppression of identical content within a
// dedupe window.
type Notifier struct {
	rules        RuleReader
	devices      DeviceReader
	channel      Channel
	template     *Template
	clock        Clock
	mu           sync.Mutex
	sent         map[string]sendRecord
	cooldown     time.Duration
	dedupeWindow time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the same alert.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// NewNotifier constructs a notifier.
func NewNotifier(rules RuleReader, deviceReader DeviceReader, channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, fmt.Errorf("alert notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		rules:    rules,
		devices:  deviceReader,
		channel:  channel,
		template: template,
		clock:    systemClock{},
		sent:     make(map[string]sendRecord),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify implements AlertNotifier.
func (n *Notifier) Notify(ctx context.Context, event alertapp.AlertEvent) {
	if n == nil || n.channel == nil {
		return
	}
	data := n.buildTemplateData(ctx, event)
	content, err := n.template.Render(data)
	if err != nil {
		return
	}
	if !n.shouldSend(event.Alert.ID, event.Type, content) {
		return
	}
	if err := n.channel.Send(ctx, content); err != nil {
		return
	}
	n.markSent(event.Alert.ID, event.Type, content)
}

func (n *Notifier) buildTemplateData(ctx context.Context, event alertapp.AlertEvent) TemplateData {
	alert := event.Alert
	deviceName := alert.DeviceID
	if n.devices != nil {
		if device, err := n.devices.GetByID(ctx, alert.DeviceID); err == nil && device != nil && device.Name != "" {
			deviceName = device.Name
		}
	}
	readingType := ""
	condition := ""
	threshold := ""
	if n.rules != nil {
		if rule, err := n.rules.GetByID(ctx, alert.RuleID); err == nil && rule != nil {
			readingType = rule.ReadingType
			condition = string(rule.Condition)
			threshold = formatFloat(rule.Threshold)
		}
	}
	thresholdText := threshold
	if condition != "" && threshold != "" {
		thresholdText = fmt.Sprintf("%s %s", condition, threshold)
	}
	return TemplateData{
		Device:       deviceName,
		DeviceID:     alert.DeviceID,
		ReadingType:  readingType,
		Condition:    condition,
		TriggerValue: formatFloat(alert.Value),
		Threshold:    thresholdText,
		Time:         alert.CreatedAt.UTC().Format(time.RFC3339),
		Message:      alert.Message,
		Event:        event.Type,
	}
}

func (n *Notifier) shouldSend(alertID, eventType, content string) bool {
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	key := alertID + "|" + eventType
	hash := contentHash(content)
	now := n.clock.Now()

	n.mu.Lock()
	defer n.mu.Unlock()
	record, ok := n.sent[key]
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(alertID, eventType, content string) {
	key := alertID + "|" + eventType
	n.mu.Lock()
	n.sent[key] = sendRecord{at: n.clock.Now(), hash: contentHash(content)}
	n.mu.Unlock()
}

func contentHash(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'g', -1, 64)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
