// Package export renders a job's reconciled review table as an XLSX
// workbook for download.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/docscreen-io/docscreen/internal/review"
)

// Service produces XLSX bytes from the reconciled review table.
type Service struct {
	review *review.Service
	logger *slog.Logger
}

func NewService(reviewSvc *review.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{review: reviewSvc, logger: logger}
}

// ExportReviewXLSX returns an XLSX workbook (as bytes) with one row per
// reconciled entity for the job.
func (s *Service) ExportReviewXLSX(ctx context.Context, jobID uuid.UUID) ([]byte, error) {
	start := time.Now()

	records, err := s.review.Table(ctx, jobID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	const sheet = "Review"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		_, err := f.NewSheet(sheet)
		if err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Entity Name",
		"Entity Value",
		"Comparison",
		"Confidence",
		"Reviewed",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, rec := range records {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, rec.Name)
		write(2, rec.Value)
		write(3, rec.Comparison)
		if rec.Confidence != nil {
			write(4, *rec.Confidence)
		} else {
			write(4, "")
		}
		write(5, rec.Reviewed)
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 28)
	_ = f.SetColWidth(sheet, "B", "B", 48)
	_ = f.SetColWidth(sheet, "C", "C", 14)
	_ = f.SetColWidth(sheet, "D", "D", 12)
	_ = f.SetColWidth(sheet, "E", "E", 10)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"job_id", jobID.String(),
		"rows", len(records),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
