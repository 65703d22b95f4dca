package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	alerts "property-monitor/internal/alerts/domain"
	"property-monitor/internal/auth"
)

// AlertReport carries everything a rendered report needs.
type AlertReport struct {
	PropertyID string
	From       time.Time
	To         time.Time
	Alerts     []alerts.Alert
}

func (rep AlertReport) openCount() int {
	open := 0
	for _, a := range rep.Alerts {
		if !a.Acknowledged {
			open++
		}
	}
	return open
}

// BuildAlertReportPDF renders a minimal PDF for an alert report.
func BuildAlertReportPDF(rep AlertReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Property Alert Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Property: %s", rep.PropertyID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Window: %s to %s", rep.From.Format(time.RFC3339), rep.To.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Alerts: %d (%d open)", len(rep.Alerts), rep.openCount()))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(35, 6, "Time", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Device", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Value", "1", 0, "C", false, 0, "")
	pdf.CellFormat(85, 6, "Message", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Ack", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, a := range rep.Alerts {
		pdf.CellFormat(35, 6, a.CreatedAt.Format("2006-01-02 15:04"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, a.DeviceID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, strconv.FormatFloat(a.Value, 'g', -1, 64), "1", 0, "R", false, 0, "")
		pdf.CellFormat(85, 6, a.Message, "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, strconv.FormatBool(a.Acknowledged), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildAlertReportXLSX renders a minimal XLSX for an alert report.
func BuildAlertReportXLSX(rep AlertReport) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	alertsSheet := "alerts"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(alertsSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Property Alert Report")
	_ = f.SetCellValue(summarySheet, "A3", "Property")
	_ = f.SetCellValue(summarySheet, "B3", rep.PropertyID)
	_ = f.SetCellValue(summarySheet, "A4", "From")
	_ = f.SetCellValue(summarySheet, "B4", rep.From.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A5", "To")
	_ = f.SetCellValue(summarySheet, "B5", rep.To.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A6", "Alerts")
	_ = f.SetCellValue(summarySheet, "B6", len(rep.Alerts))
	_ = f.SetCellValue(summarySheet, "A7", "Open")
	_ = f.SetCellValue(summarySheet, "B7", rep.openCount())

	_ = f.SetCellValue(alertsSheet, "A1", "Time")
	_ = f.SetCellValue(alertsSheet, "B1", "Device")
	_ = f.SetCellValue(alertsSheet, "C1", "Value")
	_ = f.SetCellValue(alertsSheet, "D1", "Message")
	_ = f.SetCellValue(alertsSheet, "E1", "Acknowledged")
	for i, a := range rep.Alerts {
		row := i + 2
		_ = f.SetCellValue(alertsSheet, fmt.Sprintf("A%d", row), a.CreatedAt.Format(time.RFC3339))
		_ = f.SetCellValue(alertsSheet, fmt.Sprintf("B%d", row), a.DeviceID)
		_ = f.SetCellValue(alertsSheet, fmt.Sprintf("C%d", row), a.Value)
		_ = f.SetCellValue(alertsSheet, fmt.Sprintf("D%d", row), a.Message)
		_ = f.SetCellValue(alertsSheet, fmt.Sprintf("E%d", row), a.Acknowledged)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportHandler serves alert report downloads.
type ExportHandler struct {
	store  AlertStore
	format string
}

// NewExportHandler constructs an export handler for "pdf" or "xlsx".
func NewExportHandler(store AlertStore, format string) (*ExportHandler, error) {
	if store == nil {
		return nil, fmt.Errorf("export handler: nil store")
	}
	if format != "pdf" && format != "xlsx" {
		return nil, fmt.Errorf("export handler: unsupported format %q", format)
	}
	return &ExportHandler{store: store, format: format}, nil
}

// ServeHTTP handles GET /api/v1/exports/alerts.{pdf,xlsx}.
func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
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
	if err := auth.EnsurePropertyScope(r.Context(), propertyID); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	list, err := h.store.ListByProperty(r.Context(), propertyID, false, from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	rep := AlertReport{PropertyID: propertyID, From: from, To: to, Alerts: list}

	var (
		data        []byte
		contentType string
	)
	switch h.format {
	case "pdf":
		data, err = BuildAlertReportPDF(rep)
		contentType = "application/pdf"
	case "xlsx":
		data, err = BuildAlertReportXLSX(rep)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		http.Error(w, "export "+h.format+" error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
