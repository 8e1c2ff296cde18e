package repository

import (
	"strings"
	"time"

	"github.com/jinzhu/now"

	"plate-history-service/internal/domain/recognition"
)

// Filter ids accepted from clients. Anything else is ignored so that newer
// frontends can send fields this build does not know about yet.
const (
	FilterPlateNumber     = "plateNumber"
	FilterNormalizedPlate = "normalizedPlate"
	FilterProvinceName    = "provinceName"
	FilterOCREngine       = "ocrEngine"
	FilterVehicleType     = "vehicleType"
	FilterSource          = "source"
	FilterIsValid         = "isValid"
	FilterConfidence      = "confidence"
	FilterProcessingTime  = "processingTime"
	FilterDate            = "date"
)

// FilterSpec is one client-supplied filter entry. Value carries whatever
// the transport layer parsed: string, bool, RangeBounds or DateRange. Each
// compile function validates its own value and drops anything it cannot
// use.
type FilterSpec struct {
	ID    string
	Value any
}

// Condition is a single WHERE fragment with its bind arguments. The page
// query and the count query apply the same compiled slice, so their
// predicates cannot diverge.
type Condition struct {
	Expr string
	Args []any
}

// RangeBounds is an optionally one-sided numeric range. Min and Max may
// arrive in separate FilterSpec entries sharing one id; CompileFilters
// merges them before building the condition.
type RangeBounds struct {
	Min *float64
	Max *float64
}

// DateRange selects whole calendar days: From is floored to the start of
// its day, To covers its entire day.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// Confidence crosses this boundary in two units: clients send percentages
// (0-100), storage holds fractions (0-1). All conversion happens here.
func PercentToFraction(percent float64) float64 {
	return percent / 100
}

func FractionToPercent(fraction float64) float64 {
	return fraction * 100
}

var knownOCREngines = map[string]struct{}{
	"tesseract": {},
	"easyocr":   {},
	"paddleocr": {},
	"openalpr":  {},
}

type compileFunc func(value any) (Condition, bool)

var filterCompilers = map[string]compileFunc{
	FilterPlateNumber:     substringFilter("detected_plate_results.raw_plate"),
	FilterNormalizedPlate: substringFilter("detected_plate_results.normalized_plate"),
	FilterProvinceName:    substringFilter("detected_plate_results.province_name"),
	FilterOCREngine:       compileOCREngine,
	FilterVehicleType:     compileVehicleType,
	FilterSource:          compileSource,
	FilterIsValid:         compileIsValid,
	FilterConfidence:      rangeFilter("detected_plate_results.confidence", PercentToFraction),
	FilterProcessingTime:  rangeFilter("detections.processing_time_ms", nil),
	FilterDate:            compileDateRange,
}

// CompileFilters turns client filter specs into AND-combined conditions.
// Unknown ids, empty strings and out-of-enum values produce no condition;
// an empty result means "match everything".
func CompileFilters(specs []FilterSpec) []Condition {
	merged := mergeRangeSpecs(specs)

	var conds []Condition
	for _, spec := range merged {
		compile, ok := filterCompilers[spec.ID]
		if !ok {
			continue
		}
		if cond, ok := compile(spec.Value); ok {
			conds = append(conds, cond)
		}
	}
	return conds
}

// mergeRangeSpecs collapses repeated range entries for one id into a
// single RangeBounds at the position of the first occurrence. Non-range
// specs pass through untouched.
func mergeRangeSpecs(specs []FilterSpec) []FilterSpec {
	merged := make([]FilterSpec, 0, len(specs))
	seen := make(map[string]int)

	for _, spec := range specs {
		if spec.ID != FilterConfidence && spec.ID != FilterProcessingTime {
			merged = append(merged, spec)
			continue
		}
		bounds, ok := spec.Value.(RangeBounds)
		if !ok {
			continue
		}
		if idx, dup := seen[spec.ID]; dup {
			prev := merged[idx].Value.(RangeBounds)
			if bounds.Min != nil {
				prev.Min = bounds.Min
			}
			if bounds.Max != nil {
				prev.Max = bounds.Max
			}
			merged[idx].Value = prev
			continue
		}
		seen[spec.ID] = len(merged)
		merged = append(merged, FilterSpec{ID: spec.ID, Value: bounds})
	}
	return merged
}

// substringFilter matches case-insensitively anywhere in the column.
// LOWER on both sides keeps the behavior identical across Postgres and the
// SQLite test database.
func substringFilter(column string) compileFunc {
	return func(value any) (Condition, bool) {
		s, ok := value.(string)
		if !ok {
			return Condition{}, false
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return Condition{}, false
		}
		pattern := "%" + strings.ToLower(s) + "%"
		return Condition{Expr: "LOWER(" + column + ") LIKE ?", Args: []any{pattern}}, true
	}
}

func compileOCREngine(value any) (Condition, bool) {
	s, ok := value.(string)
	if !ok {
		return Condition{}, false
	}
	if _, known := knownOCREngines[s]; !known {
		return Condition{}, false
	}
	return Condition{Expr: "detected_plate_results.ocr_engine = ?", Args: []any{s}}, true
}

func compileVehicleType(value any) (Condition, bool) {
	s, ok := value.(string)
	if !ok || !recognition.VehicleCategory(s).Valid() {
		return Condition{}, false
	}
	return Condition{Expr: "detected_plate_results.vehicle_category = ?", Args: []any{s}}, true
}

func compileSource(value any) (Condition, bool) {
	s, ok := value.(string)
	if !ok || !recognition.Source(s).Valid() {
		return Condition{}, false
	}
	return Condition{Expr: "detections.source = ?", Args: []any{s}}, true
}

func compileIsValid(value any) (Condition, bool) {
	b, ok := value.(bool)
	if !ok {
		return Condition{}, false
	}
	return Condition{Expr: "detected_plate_results.is_valid_format = ?", Args: []any{b}}, true
}

// rangeFilter builds a one- or two-sided numeric range. convert, when set,
// maps the client unit to the storage unit before comparison.
func rangeFilter(column string, convert func(float64) float64) compileFunc {
	return func(value any) (Condition, bool) {
		bounds, ok := value.(RangeBounds)
		if !ok || (bounds.Min == nil && bounds.Max == nil) {
			return Condition{}, false
		}

		adjust := func(v float64) float64 {
			if convert != nil {
				return convert(v)
			}
			return v
		}

		switch {
		case bounds.Min != nil && bounds.Max != nil:
			return Condition{
				Expr: column + " >= ? AND " + column + " <= ?",
				Args: []any{adjust(*bounds.Min), adjust(*bounds.Max)},
			}, true
		case bounds.Min != nil:
			return Condition{Expr: column + " >= ?", Args: []any{adjust(*bounds.Min)}}, true
		default:
			return Condition{Expr: column + " <= ?", Args: []any{adjust(*bounds.Max)}}, true
		}
	}
}

// compileDateRange keeps the inclusive-day semantics: >= start of the From
// day, < start of the day after the To day. A {from: D, to: D} range
// therefore matches every timestamp inside day D.
func compileDateRange(value any) (Condition, bool) {
	r, ok := value.(DateRange)
	if !ok || (r.From == nil && r.To == nil) {
		return Condition{}, false
	}

	const column = "detections.captured_at"

	var from, to *time.Time
	if r.From != nil {
		t := now.With(*r.From).BeginningOfDay()
		from = &t
	}
	if r.To != nil {
		t := now.With(*r.To).BeginningOfDay().AddDate(0, 0, 1)
		to = &t
	}

	switch {
	case from != nil && to != nil:
		return Condition{Expr: column + " >= ? AND " + column + " < ?", Args: []any{*from, *to}}, true
	case from != nil:
		return Condition{Expr: column + " >= ?", Args: []any{*from}}, true
	default:
		return Condition{Expr: column + " < ?", Args: []any{*to}}, true
	}
}
