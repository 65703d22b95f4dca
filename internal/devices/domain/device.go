package devices

import (
	"context"
	"errors"
	"time"
)

// DeviceType tags the hardware capability of a registered unit.
type DeviceType string

const (
	TypeTemperature DeviceType = "temperature"
	TypeWaterLeak   DeviceType = "water_leak"
	TypePresence    DeviceType = "presence"
	TypeMultiSensor DeviceType = "multi_sensor"
)

// Valid returns true when the device type is supported.
func (t DeviceType) Valid() bool {
	switch t {
	case TypeTemperature, TypeWaterLeak, TypePresence, TypeMultiSensor:
		return true
	default:
		return false
	}
}

var (
	// ErrDeviceNotFound indicates no device is registered under the claimed id.
	ErrDeviceNotFound = errors.New("devices: device not found")
	// ErrInvalidAPIKey indicates the presented credential does not match.
	ErrInvalidAPIKey = errors.New("devices: invalid api key")
)

// Device is a registered network sensor unit.
type Device struct {
	ID         string
	PropertyID string
	Name       string
	Type       DeviceType
	APIKey     string
	LastSeen   *time.Time
	CreatedAt  time.Time
}

// DeviceRepository persists and loads device records.
type DeviceRepository interface {
	GetByID(ctx context.Context, id string) (*Device, error)
	// UpdateLastSeen advances last_seen to seenAt. last_seen is monotonic
	// non-decreasing: a stale timestamp must never rewind it.
	UpdateLastSeen(ctx context.Context, id string, seenAt time.Time) error
}
