package repository

import (
	"testing"
	"time"
)

func TestCompileFiltersEmpty(t *testing.T) {
	if conds := CompileFilters(nil); len(conds) != 0 {
		t.Errorf("CompileFilters(nil) = %d conditions, want 0", len(conds))
	}
	if conds := CompileFilters([]FilterSpec{}); len(conds) != 0 {
		t.Errorf("CompileFilters([]) = %d conditions, want 0", len(conds))
	}
}

func TestCompileFiltersUnknownIDIgnored(t *testing.T) {
	conds := CompileFilters([]FilterSpec{
		{ID: "futureField", Value: "whatever"},
		{ID: FilterPlateNumber, Value: "ABC"},
	})
	if len(conds) != 1 {
		t.Fatalf("got %d conditions, want 1", len(conds))
	}
}

func TestCompileFiltersStringFields(t *testing.T) {
	tests := []struct {
		name     string
		spec     FilterSpec
		wantExpr string
		wantArg  any
	}{
		{
			name:     "plate number substring lowercased",
			spec:     FilterSpec{ID: FilterPlateNumber, Value: "ABC123"},
			wantExpr: "LOWER(detected_plate_results.raw_plate) LIKE ?",
			wantArg:  "%abc123%",
		},
		{
			name:     "normalized plate",
			spec:     FilterSpec{ID: FilterNormalizedPlate, Value: "51g"},
			wantExpr: "LOWER(detected_plate_results.normalized_plate) LIKE ?",
			wantArg:  "%51g%",
		},
		{
			name:     "province name trimmed",
			spec:     FilterSpec{ID: FilterProvinceName, Value: "  Hanoi  "},
			wantExpr: "LOWER(detected_plate_results.province_name) LIKE ?",
			wantArg:  "%hanoi%",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conds := CompileFilters([]FilterSpec{tt.spec})
			if len(conds) != 1 {
				t.Fatalf("got %d conditions, want 1", len(conds))
			}
			if conds[0].Expr != tt.wantExpr {
				t.Errorf("expr = %q, want %q", conds[0].Expr, tt.wantExpr)
			}
			if len(conds[0].Args) != 1 || conds[0].Args[0] != tt.wantArg {
				t.Errorf("args = %v, want [%v]", conds[0].Args, tt.wantArg)
			}
		})
	}
}

func TestCompileFiltersEmptyStringProducesNoCondition(t *testing.T) {
	conds := CompileFilters([]FilterSpec{
		{ID: FilterPlateNumber, Value: ""},
		{ID: FilterProvinceName, Value: "   "},
	})
	if len(conds) != 0 {
		t.Errorf("got %d conditions, want 0", len(conds))
	}
}

func TestCompileFiltersEnumValidation(t *testing.T) {
	tests := []struct {
		name string
		spec FilterSpec
		want int
	}{
		{"known ocr engine", FilterSpec{ID: FilterOCREngine, Value: "tesseract"}, 1},
		{"unknown ocr engine", FilterSpec{ID: FilterOCREngine, Value: "magic-ocr"}, 0},
		{"known vehicle type", FilterSpec{ID: FilterVehicleType, Value: "car"}, 1},
		{"unknown vehicle type", FilterSpec{ID: FilterVehicleType, Value: "spaceship"}, 0},
		{"known source", FilterSpec{ID: FilterSource, Value: "upload"}, 1},
		{"unknown source", FilterSpec{ID: FilterSource, Value: "webcam"}, 0},
		{"non-string enum value", FilterSpec{ID: FilterSource, Value: 42}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(CompileFilters([]FilterSpec{tt.spec})); got != tt.want {
				t.Errorf("got %d conditions, want %d", got, tt.want)
			}
		})
	}
}

func TestCompileFiltersValidityFlag(t *testing.T) {
	conds := CompileFilters([]FilterSpec{{ID: FilterIsValid, Value: true}})
	if len(conds) != 1 {
		t.Fatalf("got %d conditions, want 1", len(conds))
	}
	if conds[0].Args[0] != true {
		t.Errorf("arg = %v, want true", conds[0].Args[0])
	}

	// non-boolean input is ignored, not an error
	if conds := CompileFilters([]FilterSpec{{ID: FilterIsValid, Value: "true"}}); len(conds) != 0 {
		t.Errorf("non-boolean validity value produced %d conditions, want 0", len(conds))
	}
}

func TestCompileFiltersConfidenceConvertsPercentToFraction(t *testing.T) {
	min := 50.0
	conds := CompileFilters([]FilterSpec{
		{ID: FilterConfidence, Value: RangeBounds{Min: &min}},
	})
	if len(conds) != 1 {
		t.Fatalf("got %d conditions, want 1", len(conds))
	}
	if conds[0].Expr != "detected_plate_results.confidence >= ?" {
		t.Errorf("expr = %q", conds[0].Expr)
	}
	if conds[0].Args[0] != 0.5 {
		t.Errorf("arg = %v, want 0.5", conds[0].Args[0])
	}
}

func TestCompileFiltersMergesSplitRangeEntries(t *testing.T) {
	min, max := 50.0, 90.0
	conds := CompileFilters([]FilterSpec{
		{ID: FilterConfidence, Value: RangeBounds{Min: &min}},
		{ID: FilterConfidence, Value: RangeBounds{Max: &max}},
	})
	if len(conds) != 1 {
		t.Fatalf("split range compiled to %d conditions, want 1", len(conds))
	}
	if conds[0].Expr != "detected_plate_results.confidence >= ? AND detected_plate_results.confidence <= ?" {
		t.Errorf("expr = %q", conds[0].Expr)
	}
	if len(conds[0].Args) != 2 || conds[0].Args[0] != 0.5 || conds[0].Args[1] != 0.9 {
		t.Errorf("args = %v, want [0.5 0.9]", conds[0].Args)
	}
}

func TestCompileFiltersProcessingTimeKeepsUnit(t *testing.T) {
	max := 1500.0
	conds := CompileFilters([]FilterSpec{
		{ID: FilterProcessingTime, Value: RangeBounds{Max: &max}},
	})
	if len(conds) != 1 {
		t.Fatalf("got %d conditions, want 1", len(conds))
	}
	if conds[0].Expr != "detections.processing_time_ms <= ?" {
		t.Errorf("expr = %q", conds[0].Expr)
	}
	if conds[0].Args[0] != 1500.0 {
		t.Errorf("arg = %v, want 1500", conds[0].Args[0])
	}
}

func TestCompileFiltersDateRangeCoversWholeToDay(t *testing.T) {
	day := time.Date(2026, 3, 5, 14, 30, 12, 0, time.UTC)
	conds := CompileFilters([]FilterSpec{
		{ID: FilterDate, Value: DateRange{From: &day, To: &day}},
	})
	if len(conds) != 1 {
		t.Fatalf("got %d conditions, want 1", len(conds))
	}
	if conds[0].Expr != "detections.captured_at >= ? AND detections.captured_at < ?" {
		t.Errorf("expr = %q", conds[0].Expr)
	}

	wantFrom := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	wantTo := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)
	if got := conds[0].Args[0].(time.Time); !got.Equal(wantFrom) {
		t.Errorf("from = %v, want %v", got, wantFrom)
	}
	if got := conds[0].Args[1].(time.Time); !got.Equal(wantTo) {
		t.Errorf("to = %v, want %v", got, wantTo)
	}
}

func TestCompileFiltersDateRangeOneSided(t *testing.T) {
	day := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)

	conds := CompileFilters([]FilterSpec{{ID: FilterDate, Value: DateRange{From: &day}}})
	if len(conds) != 1 || conds[0].Expr != "detections.captured_at >= ?" {
		t.Fatalf("from-only range compiled to %+v", conds)
	}

	conds = CompileFilters([]FilterSpec{{ID: FilterDate, Value: DateRange{To: &day}}})
	if len(conds) != 1 || conds[0].Expr != "detections.captured_at < ?" {
		t.Fatalf("to-only range compiled to %+v", conds)
	}
	wantTo := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)
	if got := conds[0].Args[0].(time.Time); !got.Equal(wantTo) {
		t.Errorf("to bound = %v, want %v", got, wantTo)
	}
}

func TestConfidenceUnitRoundTrip(t *testing.T) {
	for _, percent := range []float64{0, 12.5, 25, 50, 75, 100} {
		if got := FractionToPercent(PercentToFraction(percent)); got != percent {
			t.Errorf("round trip of %v = %v", percent, got)
		}
	}
}
