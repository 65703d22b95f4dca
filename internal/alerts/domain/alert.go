package alerts

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Alert records a rule violation until acknowledged. Alerts are created only
// by rule evaluation and are never deleted by the core.
type Alert struct {
	ID           string    `json:"id"`
	RuleID       string    `json:"rule_id"`
	DeviceID     string    `json:"device_id"`
	Value        float64   `json:"value"`
	Message      string    `json:"message"`
	Acknowledged bool      `json:"acknowledged"`
	CreatedAt    time.Time `json:"created_at"`
}

// BuildMessage renders the human-readable alert text.
func BuildMessage(readingType string, condition Condition, value, threshold float64) string {
	return fmt.Sprintf("%s is %s threshold (%s vs %s)",
		readingType, condition, formatValue(value), formatValue(threshold))
}

// BuildAlertID derives a stable alert id from its trigger.
func BuildAlertID(ruleID, deviceID string, createdAt time.Time) string {
	sum := sha1.Sum([]byte(ruleID + "|" + deviceID + "|" + createdAt.Format(time.RFC3339Nano)))
	return "alert-" + hex.EncodeToString(sum[:8])
}

func formatValue(value float64) string {
	return strconv.FormatFloat(value, 'g', -1, 64)
}
