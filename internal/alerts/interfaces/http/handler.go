package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	alerts "property-monitor/internal/alerts/domain"
	"property-monitor/internal/audit"
	"property-monitor/internal/auth"
	devices "property-monitor/internal/devices/domain"
)

const timeLayout = time.RFC3339

// AlertStore exposes the alert persistence operations the API needs.
type AlertStore interface {
	ListByProperty(ctx context.Context, propertyID string, onlyOpen bool, from, to time.Time) ([]alerts.Alert, error)
	GetByID(ctx context.Context, id string) (*alerts.Alert, error)
	MarkAcknowledged(ctx context.Context, id string) error
}

// DeviceReader resolves the device an alert belongs to, which carries the
// property the alert is scoped by.
type DeviceReader interface {
	GetByID(ctx context.Context, id string) (*devices.Device, error)
}

// Handler provides alert HTTP endpoints.
type Handler struct {
	store       AlertStore
	devices     DeviceReader
	auditLogger audit.Logger
}

// NewHandler constructs a handler. auditLogger may be nil.
func NewHandler(store AlertStore, deviceReader DeviceReader, auditLogger audit.Logger) (*Handler, error) {
	if store == nil {
		return nil, errors.New("alerts handler: nil store")
	}
	if deviceReader == nil {
		return nil, errors.New("alerts handler: nil device reader")
	}
	return &Handler{store: store, devices: deviceReader, auditLogger: auditLogger}, nil
}

// ServeHTTP handles /api/v1/alerts and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/alerts":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleList(w, r)
		return
	case strings.HasPrefix(r.URL.Path, "/api/v1/alerts/"):
		h.handleAction(w, r)
		return
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	propertyID := r.URL.Query().Get("property_id")
	if propertyID == "" {
		http.Error(w, "property_id is required", http.StatusBadRequest)
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
	onlyOpen := r.URL.Query().Get("open") == "true"

	if err := auth.EnsurePropertyScope(r.Context(), propertyID); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	list, err := h.store.ListByProperty(r.Context(), propertyID, onlyOpen, from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []alerts.Alert{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/alerts/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "ack" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id := parts[0]

	alert, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if alert == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	device, err := h.devices.GetByID(r.Context(), alert.DeviceID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if device == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err := auth.EnsurePropertyScope(r.Context(), device.PropertyID); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if err := h.store.MarkAcknowledged(r.Context(), id); err != nil {
		if errors.Is(err, alerts.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	alert.Acknowledged = true
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(alert)
	h.logAudit(r, alert, device, "alert.ack")
}

func (h *Handler) logAudit(r *http.Request, alert *alerts.Alert, device *devices.Device, action string) {
	if h.auditLogger == nil || device == nil {
		return
	}
	// The entry is keyed by the alert's own property, not the caller's scope;
	// the scope check above guarantees they agree for scoped callers.
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		PropertyID:   device.PropertyID,
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "alert",
		ResourceID:   alert.ID,
		DeviceID:     alert.DeviceID,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
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
