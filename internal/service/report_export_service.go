package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/noah-isme/sma-timetable-validator/internal/constraint"
	"github.com/noah-isme/sma-timetable-validator/internal/dto"
	"github.com/noah-isme/sma-timetable-validator/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-validator/pkg/errors"
	"github.com/noah-isme/sma-timetable-validator/pkg/export"
)

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
}

// RenderedReport is a violation report serialised into a file format.
type RenderedReport struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ReportExportService renders sweep reports as CSV or PDF tables.
type ReportExportService struct {
	renderers map[models.ReportFormat]datasetRenderer
}

// NewReportExportService constructs the exporter. Nil renderers fall back to
// the package defaults.
func NewReportExportService(csv, pdf datasetRenderer) *ReportExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ReportExportService{renderers: map[models.ReportFormat]datasetRenderer{
		models.ReportFormatCSV: csv,
		models.ReportFormatPDF: pdf,
	}}
}

// ParseReportFormat resolves a format name; empty defaults to CSV.
func ParseReportFormat(raw string) (models.ReportFormat, error) {
	switch f := models.ReportFormat(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return models.ReportFormatCSV, nil
	case models.ReportFormatCSV, models.ReportFormatPDF:
		return f, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", raw))
	}
}

// Render serialises report in the requested format.
func (s *ReportExportService) Render(report *dto.ValidationReport, format models.ReportFormat) (*RenderedReport, error) {
	if report == nil {
		return nil, fmt.Errorf("report is nil")
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	payload, err := renderer.Render(reportDataset(report))
	if err != nil {
		return nil, fmt.Errorf("render %s report: %w", format, err)
	}
	name := report.TimetableID
	if name == "" {
		name = report.ReportID
	}
	return &RenderedReport{
		Filename:    fmt.Sprintf("validation-%s.%s", name, format),
		ContentType: renderer.ContentType(),
		Payload:     payload,
	}, nil
}

func reportDataset(report *dto.ValidationReport) export.Dataset {
	status := "VALID"
	if !report.IsValid {
		status = "INVALID"
	}
	counts := report.Summary.ViolationsBySeverity
	subtitle := []string{
		fmt.Sprintf("Report %s generated %s", report.ReportID, report.GeneratedAt.Format("2006-01-02 15:04 MST")),
		fmt.Sprintf("Status %s, %d of %d constraints applied, %.1f ms", status,
			report.Summary.AppliedConstraints, report.Summary.TotalConstraints, report.Summary.ExecutionTimeMs),
		fmt.Sprintf("Errors %d, warnings %d, info %d",
			counts[constraint.SeverityError], counts[constraint.SeverityWarning], counts[constraint.SeverityInfo]),
	}
	title := "Timetable validation report"
	if report.TimetableID != "" {
		title = fmt.Sprintf("%s %s", title, report.TimetableID)
	}

	rows := make([]map[string]string, len(report.Violations))
	for i, v := range report.Violations {
		rows[i] = map[string]string{
			"no":       strconv.Itoa(i + 1),
			"severity": string(v.Severity),
			"code":     v.Code,
			"message":  v.Message,
			"slots":    describeSlots(v.AffectedSchedules),
		}
	}

	return export.Dataset{
		Title:    title,
		Subtitle: subtitle,
		Columns: []export.Column{
			{Key: "no", Title: "No", Width: 0.5},
			{Key: "severity", Title: "Severity", Width: 1},
			{Key: "code", Title: "Code", Width: 2.5},
			{Key: "message", Title: "Message", Width: 4},
			{Key: "slots", Title: "Affected slots", Width: 2.5},
		},
		Rows: rows,
	}
}

func describeSlots(items []constraint.AffectedSchedule) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%s %s P%d", item.ClassID, constraint.DayName(item.DayOfWeek), item.Period))
	}
	return strings.Join(parts, "; ")
}
