package apihttp

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"property-monitor/internal/auth"
	devices "property-monitor/internal/devices/domain"
	readings "property-monitor/internal/readings/domain"
)

const timeLayout = time.RFC3339

// LatestSource answers point lookups for the newest reading of a device+type.
// Misses return nil with no error.
type LatestSource interface {
	Latest(ctx context.Context, deviceID, readingType string) (*readings.Reading, error)
}

// LatestStore answers the full latest-per-type query from durable storage.
type LatestStore interface {
	LatestByDevice(ctx context.Context, deviceID string) ([]readings.Reading, error)
}

// DeviceGetter resolves devices for scope checks.
type DeviceGetter interface {
	GetByID(ctx context.Context, id string) (*devices.Device, error)
}

type latestReadingView struct {
	Type       string    `json:"type"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	RecordedAt time.Time `json:"recorded_at"`
}

// LatestReadingsHandler serves the per-device dashboard snapshot.
type LatestReadingsHandler struct {
	devices DeviceGetter
	store   LatestStore
	cache   LatestSource
}

// NewLatestReadingsHandler constructs a LatestReadingsHandler. cache may be
// nil; lookups then always hit the store.
func NewLatestReadingsHandler(devs DeviceGetter, store LatestStore, cache LatestSource) (*LatestReadingsHandler, error) {
	if devs == nil {
		return nil, errors.New("latest handler: nil device getter")
	}
	if store == nil {
		return nil, errors.New("latest handler: nil store")
	}
	return &LatestReadingsHandler{devices: devs, store: store, cache: cache}, nil
}

// ServeHTTP handles GET /api/v1/readings/latest.
func (h *LatestReadingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		http.Error(w, "device_id is required", http.StatusBadRequest)
		return
	}

	device, err := h.devices.GetByID(r.Context(), deviceID)
	if err != nil {
		http.Error(w, "device lookup error", http.StatusInternalServerError)
		return
	}
	if device == nil {
		http.Error(w, "device not found", http.StatusNotFound)
		return
	}
	if err := auth.EnsurePropertyScope(r.Context(), device.PropertyID); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if readingType := r.URL.Query().Get("type"); readingType != "" {
		h.serveSingle(w, r, deviceID, readingType)
		return
	}

	list, err := h.store.LatestByDevice(r.Context(), deviceID)
	if err != nil {
		http.Error(w, "query readings error", http.StatusInternalServerError)
		return
	}
	views := make([]latestReadingView, 0, len(list))
	for _, reading := range list {
		views = append(views, latestReadingView{
			Type:       reading.Type,
			Value:      reading.Value,
			Unit:       reading.Unit,
			RecordedAt: reading.RecordedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(views)
}

// serveSingle prefers the cache for a single-type lookup, then the store.
func (h *LatestReadingsHandler) serveSingle(w http.ResponseWriter, r *http.Request, deviceID, readingType string) {
	var hit *readings.Reading
	if h.cache != nil {
		cached, err := h.cache.Latest(r.Context(), deviceID, readingType)
		if err == nil {
			hit = cached
		}
	}
	if hit == nil {
		list, err := h.store.LatestByDevice(r.Context(), deviceID)
		if err != nil {
			http.Error(w, "query readings error", http.StatusInternalServerError)
			return
		}
		for i := range list {
			if list[i].Type == readingType {
				hit = &list[i]
				break
			}
		}
	}
	if hit == nil {
		http.Error(w, "no reading for type", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(latestReadingView{
		Type:       hit.Type,
		Value:      hit.Value,
		Unit:       hit.Unit,
		RecordedAt: hit.RecordedAt,
	})
}

// ExportReadingsCSVHandler serves reading history CSV exports.
type ExportReadingsCSVHandler struct {
	db      *sql.DB
	devices DeviceGetter
}

// NewExportReadingsCSVHandler constructs a ExportReadingsCSVHandler.
func NewExportReadingsCSVHandler(db *sql.DB, devs DeviceGetter) *ExportReadingsCSVHandler {
	return &ExportReadingsCSVHandler{db: db, devices: devs}
}

// ServeHTTP handles GET /api/v1/exports/readings.csv.
func (h *ExportReadingsCSVHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.db == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		http.Error(w, "device_id is required", http.StatusBadRequest)
		return
	}

	from, err := parseTimeQuery(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	if h.devices != nil {
		device, err := h.devices.GetByID(r.Context(), deviceID)
		if err != nil {
			http.Error(w, "device lookup error", http.StatusInternalServerError)
			return
		}
		if device == nil {
			http.Error(w, "device not found", http.StatusNotFound)
			return
		}
		if err := auth.EnsurePropertyScope(r.Context(), device.PropertyID); err != nil {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	rows, err := queryReadingHistory(r.Context(), h.db, deviceID, from, to)
	if err != nil {
		http.Error(w, "query readings error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{
		"device_id",
		"reading_type",
		"value",
		"unit",
		"recorded_at",
	})
	for _, row := range rows {
		_ = writer.Write([]string{
			row.DeviceID,
			row.Type,
			strconv.FormatFloat(row.Value, 'g', -1, 64),
			row.Unit,
			row.RecordedAt.Format(timeLayout),
		})
	}
	writer.Flush()
}

func queryReadingHistory(ctx context.Context, db *sql.DB, deviceID string, from, to time.Time) ([]readings.Reading, error) {
	rows, err := db.QueryContext(ctx, `
SELECT
	device_id,
	reading_type,
	value,
	unit,
	recorded_at
FROM sensor_readings
WHERE device_id = $1
	AND recorded_at >= $2
	AND recorded_at < $3
ORDER BY recorded_at ASC, id ASC`, deviceID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []readings.Reading
	for rows.Next() {
		var row readings.Reading
		if err := rows.Scan(
			&row.DeviceID,
			&row.Type,
			&row.Value,
			&row.Unit,
			&row.RecordedAt,
		); err != nil {
			return nil, err
		}
		row.Kind = readings.ParseKind(row.Type)
		row.RecordedAt = row.RecordedAt.UTC()
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, errors.New(key + " is required")
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}
