package service

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"plate-history-service/internal/repository"
)

const exportSheet = "History"

var exportHeader = []string{
	"Plate", "Normalized", "Confidence %", "OCR Engine", "Category",
	"Province", "Plate Type", "Color", "Valid Format", "Source",
	"Image URL", "Captured At", "Processing ms",
}

// ExportHistory writes the filtered, sorted history to an xlsx workbook.
// The same compiled filter predicate drives the export and the paged
// history view; only pagination differs.
func (s *HistoryService) ExportHistory(ctx context.Context, query HistoryQuery) (*excelize.File, error) {
	conds := repository.CompileFilters(query.Filters)
	sortTerms := repository.CompileSort(query.Sort)

	rows, err := s.repo.FetchAll(ctx, sortTerms, conds)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to fetch history rows for export")
		return nil, fmt.Errorf("export history: %w", err)
	}

	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return nil, fmt.Errorf("rename export sheet: %w", err)
	}

	for col, title := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("build header cell: %w", err)
		}
		if err := f.SetCellValue(exportSheet, cell, title); err != nil {
			return nil, fmt.Errorf("write header cell: %w", err)
		}
	}

	for i, row := range rows {
		values := exportRow(row)
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, fmt.Errorf("build cell name: %w", err)
			}
			if err := f.SetCellValue(exportSheet, cell, value); err != nil {
				return nil, fmt.Errorf("write cell: %w", err)
			}
		}
	}

	s.log.Info().Int("rows", len(rows)).Msg("built history export workbook")
	return f, nil
}

func exportRow(row repository.DetectedPlateResult) []any {
	values := []any{
		row.RawPlate,
		strOrEmpty(row.NormalizedPlate),
		nil, // confidence, set below when present
		strOrEmpty(row.OCREngine),
		strOrEmpty(row.VehicleCategory),
		strOrEmpty(row.ProvinceName),
		strOrEmpty(row.PlateType),
		strOrEmpty(row.Color),
		nil, // validity
		"",  // source
		"",  // image url
		"",  // captured at
		nil, // processing ms
	}
	if row.Confidence != nil {
		values[2] = repository.FractionToPercent(*row.Confidence)
	}
	if row.IsValidFormat != nil {
		values[8] = *row.IsValidFormat
	}
	if row.Detection != nil {
		values[9] = row.Detection.Source
		values[10] = row.Detection.ImageURL
		values[11] = row.Detection.CapturedAt.Format("2006-01-02 15:04:05")
		if row.Detection.ProcessingTimeMs != nil {
			values[12] = *row.Detection.ProcessingTimeMs
		}
	}
	return values
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
