package postgres

import (
	"context"
	"database/sql"
	"errors"

	alerts "property-monitor/internal/alerts/domain"
)

// RuleRepository is a Postgres repository for alert rules. Rules are authored
// by the dashboard; the core only reads them.
type RuleRepository struct {
	db *sql.DB
}

// NewRuleRepository constructs a repository.
func NewRuleRepository(db *sql.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// ListEnabledForProperty returns enabled rules for a property whose reading
// type matches one of readingTypes. Disabled rules never reach the evaluator.
func (r *RuleRepository) ListEnabledForProperty(ctx context.Context, propertyID string, readingTypes []string) ([]alerts.Rule, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert rule repo: nil db")
	}
	if propertyID == "" {
		return nil, errors.New("alert rule repo: empty property id")
	}
	if len(readingTypes) == 0 {
		return nil, nil
	}

	// pgx stdlib encodes []string as text[]
	rows, err := r.db.QueryContext(ctx, `
SELECT id, property_id, reading_type, condition, threshold, enabled, created_at
FROM alert_rules
WHERE property_id = $1 AND enabled = TRUE AND reading_type = ANY($2)
ORDER BY created_at`, propertyID, readingTypes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alerts.Rule
	for rows.Next() {
		var rule alerts.Rule
		var condition string
		if err := rows.Scan(
			&rule.ID,
			&rule.PropertyID,
			&rule.ReadingType,
			&condition,
			&rule.Threshold,
			&rule.Enabled,
			&rule.CreatedAt,
		); err != nil {
			return nil, err
		}
		rule.Condition = alerts.Condition(condition)
		rule.CreatedAt = rule.CreatedAt.UTC()
		result = append(result, rule)
	}
	return result, rows.Err()
}

// GetByID loads a rule by id. Returns nil when absent.
func (r *RuleRepository) GetByID(ctx context.Context, id string) (*alerts.Rule, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert rule repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, property_id, reading_type, condition, threshold, enabled, created_at
FROM alert_rules
WHERE id = $1`, id)

	var rule alerts.Rule
	var condition string
	if err := row.Scan(
		&rule.ID,
		&rule.PropertyID,
		&rule.ReadingType,
		&condition,
		&rule.Threshold,
		&rule.Enabled,
		&rule.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rule.Condition = alerts.Condition(condition)
	rule.CreatedAt = rule.CreatedAt.UTC()
	return &rule, nil
}
