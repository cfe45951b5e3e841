package export

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/formbridge/formbridge/internal/extract"
)

// Service produces XLSX review workbooks from extraction results, so flagged
// fields can be corrected by hand before form submission.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// ResultXLSX renders one extraction result as a workbook: a Fields sheet with
// every field's status and provenance, and an Errors sheet with the report.
func (s *Service) ResultXLSX(schemaKey string, res *extract.Result) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	const fieldsSheet = "Fields"
	const errorsSheet = "Errors"

	idx, err := f.NewSheet(fieldsSheet)
	if err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(errorsSheet); err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	_ = f.DeleteSheet("Sheet1")

	headers := []string{"Field Path", "Value", "Status", "Source", "Confidence", "Alternatives"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(fieldsSheet, cell, h)
	}

	row := 2
	for _, fd := range res.Fields {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(fieldsSheet, cell, v)
		}
		write(1, fd.Path)
		if fd.Value != nil {
			write(2, extract.FormatValue(fd.Value))
		}
		write(3, string(fd.Status))
		write(4, string(fd.Provenance))
		if fd.Confidence > 0 {
			write(5, fmt.Sprintf("%.2f", fd.Confidence))
		}
		if len(fd.Alternatives) > 0 {
			alts := ""
			for i, a := range fd.Alternatives {
				if i > 0 {
					alts += "; "
				}
				alts += fmt.Sprintf("%s=%s", a.Provenance, extract.FormatValue(a.Value))
			}
			write(6, truncate(alts, 140))
		}
		row++
	}

	errHeaders := []string{"Field Path", "Kind", "Message"}
	for i, h := range errHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(errorsSheet, cell, h)
	}
	for i, e := range res.Errors {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, i+2)
			_ = f.SetCellValue(errorsSheet, cell, v)
		}
		write(1, e.Path)
		write(2, string(e.Kind))
		write(3, e.Message)
	}

	// Widen the path and value columns
	_ = f.SetColWidth(fieldsSheet, "A", "A", 32)
	_ = f.SetColWidth(fieldsSheet, "B", "B", 40)
	_ = f.SetColWidth(fieldsSheet, "F", "F", 48)
	_ = f.SetColWidth(errorsSheet, "A", "A", 32)
	_ = f.SetColWidth(errorsSheet, "C", "C", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"schema_key", schemaKey,
		"fields", len(res.Fields),
		"errors", len(res.Errors),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
