package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	alerts "property-monitor/internal/alerts/domain"
)

// AlertRepository is a Postgres repository for alerts.
//
// The schema carries a partial unique index on (rule_id, device_id) where
// acknowledged = FALSE, so concurrent duplicate triggers collapse to one row.
type AlertRepository struct {
	db *sql.DB
}

// NewAlertRepository constructs a repository.
func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create inserts a new alert. A unique violation maps to ErrDuplicateAlert so
// the evaluator can treat the lost race as suppression.
func (r *AlertRepository) Create(ctx context.Context, alert *alerts.Alert) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	if alert == nil {
		return errors.New("alert repo: nil alert")
	}
	if alert.ID == "" || alert.RuleID == "" || alert.DeviceID == "" {
		return errors.New("alert repo: missing fields")
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO alerts (id, alert_rule_id, device_id, value, message, acknowledged, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		alert.ID,
		alert.RuleID,
		alert.DeviceID,
		alert.Value,
		alert.Message,
		alert.Acknowledged,
		alert.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return alerts.ErrDuplicateAlert
	}
	return err
}

// FindUnacknowledged returns the open alert for a rule+device pair, or nil.
func (r *AlertRepository) FindUnacknowledged(ctx context.Context, ruleID, deviceID string) (*alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	if ruleID == "" || deviceID == "" {
		return nil, errors.New("alert repo: invalid query")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, alert_rule_id, device_id, value, message, acknowledged, created_at
FROM alerts
WHERE alert_rule_id = $1 AND device_id = $2 AND acknowledged = FALSE
ORDER BY created_at DESC
LIMIT 1`, ruleID, deviceID)
	return scanAlert(row)
}

// GetByID fetches an alert by id. Returns nil when absent.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, alert_rule_id, device_id, value, message, acknowledged, created_at
FROM alerts
WHERE id = $1`, id)
	return scanAlert(row)
}

// MarkAcknowledged flags an alert as acknowledged.
func (r *AlertRepository) MarkAcknowledged(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE alerts
SET acknowledged = TRUE
WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return alerts.ErrNotFound
	}
	return nil
}

// ListByProperty lists alerts raised by devices of a property, newest first.
// Acknowledged history stays; the core never deletes alerts.
func (r *AlertRepository) ListByProperty(ctx context.Context, propertyID string, onlyOpen bool, from, to time.Time) ([]alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	if propertyID == "" {
		return nil, errors.New("alert repo: empty property id")
	}
	query := `
SELECT a.id, a.alert_rule_id, a.device_id, a.value, a.message, a.acknowledged, a.created_at
FROM alerts a
JOIN devices d ON d.id = a.device_id
WHERE d.property_id = $1 AND a.created_at >= $2 AND a.created_at < $3`
	args := []any{propertyID, from.UTC(), to.UTC()}
	if onlyOpen {
		query += " AND a.acknowledged = FALSE"
	}
	query += " ORDER BY a.created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alerts.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *alert)
	}
	return result, rows.Err()
}

type alertScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row alertScanner) (*alerts.Alert, error) {
	var alert alerts.Alert
	if err := row.Scan(
		&alert.ID,
		&alert.RuleID,
		&alert.DeviceID,
		&alert.Value,
		&alert.Message,
		&alert.Acknowledged,
		&alert.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	alert.CreatedAt = alert.CreatedAt.UTC()
	return &alert, nil
}
