package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	devices "property-monitor/internal/devices/domain"
)

// DeviceRepository is a Postgres repository for devices.
type DeviceRepository struct {
	db *sql.DB
}

// NewDeviceRepository constructs a repository.
func NewDeviceRepository(db *sql.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// GetByID fetches a device by id. Returns nil when absent.
func (r *DeviceRepository) GetByID(ctx context.Context, id string) (*devices.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device repo: nil db")
	}
	if id == "" {
		return nil, errors.New("device repo: empty id")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, property_id, name, device_type, api_key, last_seen, created_at
FROM devices
WHERE id = $1`, id)

	var device devices.Device
	var deviceType string
	var lastSeen sql.NullTime
	if err := row.Scan(
		&device.ID,
		&device.PropertyID,
		&device.Name,
		&deviceType,
		&device.APIKey,
		&lastSeen,
		&device.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	device.Type = devices.DeviceType(deviceType)
	device.CreatedAt = device.CreatedAt.UTC()
	if lastSeen.Valid {
		seen := lastSeen.Time.UTC()
		device.LastSeen = &seen
	}
	return &device, nil
}

// UpdateLastSeen advances last_seen. GREATEST keeps it monotonic under
// concurrent writers: last-writer-wins converges to the newest timestamp.
func (r *DeviceRepository) UpdateLastSeen(ctx context.Context, id string, seenAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("device repo: nil db")
	}
	if id == "" || seenAt.IsZero() {
		return errors.New("device repo: invalid last_seen update")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE devices
SET last_seen = GREATEST(COALESCE(last_seen, to_timestamp(0)), $1)
WHERE id = $2`, seenAt.UTC(), id)
	return err
}
