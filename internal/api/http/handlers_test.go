package apihttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"property-monitor/internal/auth"
	devices "property-monitor/internal/devices/domain"
	readings "property-monitor/internal/readings/domain"
)

type stubDeviceGetter struct {
	device *devices.Device
}

func (s *stubDeviceGetter) GetByID(context.Context, string) (*devices.Device, error) {
	return s.device, nil
}

type stubLatestStore struct {
	list  []readings.Reading
	calls int
}

func (s *stubLatestStore) LatestByDevice(context.Context, string) ([]readings.Reading, error) {
	s.calls++
	return s.list, nil
}

type stubLatestSource struct {
	reading *readings.Reading
}

func (s *stubLatestSource) Latest(context.Context, string, string) (*readings.Reading, error) {
	return s.reading, nil
}

func testDevice() *devices.Device {
	return &devices.Device{ID: "device-1", PropertyID: "property-a", Name: "Cabin Thermostat", Type: devices.TypeTemperature, APIKey: "abc123"}
}

func testReading(readingType string, value float64) readings.Reading {
	return readings.Reading{
		DeviceID:   "device-1",
		Type:       readingType,
		Kind:       readings.ParseKind(readingType),
		Value:      value,
		Unit:       "C",
		RecordedAt: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestLatestReadingsHandlerListsAllTypes(t *testing.T) {
	store := &stubLatestStore{list: []readings.Reading{
		testReading("temperature", 21.5),
		testReading("humidity", 40),
	}}
	h, err := NewLatestReadingsHandler(&stubDeviceGetter{device: testDevice()}, store, nil)
	if err != nil {
		t.Fatalf("NewLatestReadingsHandler: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/readings/latest?device_id=device-1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var views []latestReadingView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("views = %+v, want 2 entries", views)
	}
}

func TestLatestReadingsHandlerUnknownDevice(t *testing.T) {
	h, err := NewLatestReadingsHandler(&stubDeviceGetter{}, &stubLatestStore{}, nil)
	if err != nil {
		t.Fatalf("NewLatestReadingsHandler: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/readings/latest?device_id=missing", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestLatestReadingsHandlerCacheHitSkipsStore(t *testing.T) {
	cached := testReading("temperature", 22.5)
	store := &stubLatestStore{}
	h, err := NewLatestReadingsHandler(&stubDeviceGetter{device: testDevice()}, store, &stubLatestSource{reading: &cached})
	if err != nil {
		t.Fatalf("NewLatestReadingsHandler: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/readings/latest?device_id=device-1&type=temperature", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if store.calls != 0 {
		t.Fatalf("store queried %d times on cache hit", store.calls)
	}

	var view latestReadingView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Value != 22.5 {
		t.Fatalf("value = %v, want 22.5", view.Value)
	}
}

func TestLatestReadingsHandlerCacheMissFallsBack(t *testing.T) {
	store := &stubLatestStore{list: []readings.Reading{testReading("temperature", 19)}}
	h, err := NewLatestReadingsHandler(&stubDeviceGetter{device: testDevice()}, store, &stubLatestSource{})
	if err != nil {
		t.Fatalf("NewLatestReadingsHandler: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/readings/latest?device_id=device-1&type=temperature", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if store.calls != 1 {
		t.Fatalf("store calls = %d, want 1", store.calls)
	}
}

func TestLatestReadingsHandlerForeignPropertyForbidden(t *testing.T) {
	h, err := NewLatestReadingsHandler(&stubDeviceGetter{device: testDevice()}, &stubLatestStore{}, nil)
	if err != nil {
		t.Fatalf("NewLatestReadingsHandler: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/readings/latest?device_id=device-1", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "property-b", auth.RoleViewer, "user-1"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}
