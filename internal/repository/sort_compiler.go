package repository

// Sort ids accepted from clients.
const (
	SortPlateNumber     = "plateNumber"
	SortConfidence      = "confidence"
	SortDate            = "date"
	SortProvinceName    = "provinceName"
	SortIsValid         = "isValid"
	SortOCREngine       = "ocrEngine"
	SortNormalizedPlate = "normalizedPlate"
	SortSource          = "source"
	SortProcessingTime  = "processingTime"
)

// SortSpec is one requested ordering key; specs compose left to right as
// primary, secondary, ... keys.
type SortSpec struct {
	ID         string
	Descending bool
}

// DefaultOrder is most-recent-first detection time, used when no sort is
// requested and as the per-position fallback for unrecognized sort ids.
const DefaultOrder = "detections.captured_at DESC"

var sortColumns = map[string]string{
	SortPlateNumber:     "detected_plate_results.raw_plate",
	SortConfidence:      "detected_plate_results.confidence",
	SortDate:            "detections.captured_at",
	SortProvinceName:    "detected_plate_results.province_name",
	SortIsValid:         "detected_plate_results.is_valid_format",
	SortOCREngine:       "detected_plate_results.ocr_engine",
	SortNormalizedPlate: "detected_plate_results.normalized_plate",
	SortSource:          "detections.source",
	SortProcessingTime:  "detections.processing_time_ms",
}

// CompileSort maps sort specs onto ordering terms. Every requested key
// yields exactly one term: unknown ids fall back to DefaultOrder at their
// position instead of being dropped. Final ties are left to the database.
func CompileSort(specs []SortSpec) []string {
	if len(specs) == 0 {
		return []string{DefaultOrder}
	}

	terms := make([]string, 0, len(specs))
	for _, spec := range specs {
		column, ok := sortColumns[spec.ID]
		if !ok {
			terms = append(terms, DefaultOrder)
			continue
		}
		direction := " ASC"
		if spec.Descending {
			direction = " DESC"
		}
		terms = append(terms, column+direction)
	}
	return terms
}
