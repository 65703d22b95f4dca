package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	readings "property-monitor/internal/readings/domain"
)

const defaultReadingsTable = "sensor_readings"

// ReadingRepository is a Postgres repository for sensor readings.
type ReadingRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*ReadingRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *ReadingRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewReadingRepository constructs a repository with default table name.
func NewReadingRepository(db *sql.DB, opts ...RepositoryOption) *ReadingRepository {
	repo := &ReadingRepository{db: db, table: defaultReadingsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// InsertBatch writes the whole batch with a single multi-row INSERT inside a
// transaction. Row-by-row inserts would let concurrent batches interleave and
// corrupt latest-reading queries; one statement bounds that window.
func (r *ReadingRepository) InsertBatch(ctx context.Context, batch []readings.Reading) error {
	if r == nil || r.db == nil {
		return errors.New("reading repo: nil db")
	}
	if len(batch) == 0 {
		return nil
	}

	var query strings.Builder
	fmt.Fprintf(&query, "INSERT INTO %s (device_id, reading_type, value, unit, recorded_at) VALUES ", r.table)
	args := make([]any, 0, len(batch)*5)
	for i, reading := range batch {
		if reading.DeviceID == "" || reading.Type == "" || reading.RecordedAt.IsZero() {
			return errors.New("reading repo: invalid reading")
		}
		if i > 0 {
			query.WriteString(", ")
		}
		base := i * 5
		fmt.Fprintf(&query, "($%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5)
		args = append(args, reading.DeviceID, reading.Type, reading.Value, reading.Unit, reading.RecordedAt.UTC())
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query.String(), args...); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// LatestByDevice returns the newest reading per type for a device, feeding the
// dashboard when the hot cache misses.
func (r *ReadingRepository) LatestByDevice(ctx context.Context, deviceID string) ([]readings.Reading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if deviceID == "" {
		return nil, errors.New("reading repo: empty device id")
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT DISTINCT ON (reading_type) device_id, reading_type, value, unit, recorded_at
FROM %s
WHERE device_id = $1
ORDER BY reading_type, recorded_at DESC, id DESC`, r.table), deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []readings.Reading
	for rows.Next() {
		var reading readings.Reading
		if err := rows.Scan(&reading.DeviceID, &reading.Type, &reading.Value, &reading.Unit, &reading.RecordedAt); err != nil {
			return nil, err
		}
		reading.Kind = readings.ParseKind(reading.Type)
		reading.RecordedAt = reading.RecordedAt.UTC()
		result = append(result, reading)
	}
	return result, rows.Err()
}
