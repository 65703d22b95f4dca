package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	devices "property-monitor/internal/devices/domain"
	ingestion "property-monitor/internal/ingestion/application"
	readings "property-monitor/internal/readings/domain"
)

// IngestHandler is the single externally reachable ingestion endpoint.
// Devices authenticate per request with credentials carried in the body.
type IngestHandler struct {
	coordinator *ingestion.Coordinator
	logger      *log.Logger
}

// NewIngestHandler constructs an ingest handler.
func NewIngestHandler(coordinator *ingestion.Coordinator, logger *log.Logger) (*IngestHandler, error) {
	if coordinator == nil {
		return nil, errors.New("ingest handler: nil coordinator")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &IngestHandler{coordinator: coordinator, logger: logger}, nil
}

type ingestRequest struct {
	DeviceID string                `json:"device_id"`
	APIKey   string                `json:"api_key"`
	Readings []readings.RawReading `json:"readings"`
}

// ServeHTTP ingests a batch of sensor readings.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body error")
		return
	}
	defer r.Body.Close()

	var req ingestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.DeviceID == "" || req.APIKey == "" || req.Readings == nil {
		writeError(w, http.StatusBadRequest, "Missing required fields: device_id, api_key, readings")
		return
	}

	result, err := h.coordinator.Ingest(r.Context(), req.DeviceID, req.APIKey, req.Readings)
	if err != nil {
		h.respondError(w, req.DeviceID, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Inserted %d readings", result.Stored),
	})
}

func (h *IngestHandler) respondError(w http.ResponseWriter, deviceID string, err error) {
	switch {
	case errors.Is(err, devices.ErrDeviceNotFound):
		writeError(w, http.StatusNotFound, "Device not found")
	case errors.Is(err, devices.ErrInvalidAPIKey):
		writeError(w, http.StatusUnauthorized, "Invalid API key")
	case readings.IsValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ingestion.ErrStorage):
		h.logger.Printf("ingest: device=%s insert error: %v", deviceID, err)
		writeError(w, http.StatusInternalServerError, "Failed to insert readings")
	default:
		h.logger.Printf("ingest: device=%s error: %v", deviceID, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// setCORSHeaders mirrors the permissive policy every response carries.
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type, x-api-key")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
