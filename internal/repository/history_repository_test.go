package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&LicensePlate{}, &Detection{}, &DetectedPlateResult{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testDetection(source string, capturedAt time.Time) *Detection {
	return &Detection{
		Source:     source,
		ImageURL:   "uploads/frame.jpg",
		CapturedAt: capturedAt,
	}
}

func plateResult(plate string, confidence float64) DetectedPlateResult {
	engine := "tesseract"
	return DetectedPlateResult{
		RawPlate:   plate,
		Confidence: &confidence,
		OCREngine:  &engine,
	}
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestSaveRecognitionEmptyResultsIsNoOp(t *testing.T) {
	db := newTestDB(t)
	repo := NewHistoryRepository(db)

	saved, err := repo.SaveRecognition(context.Background(), testDetection("upload", time.Now().UTC()), nil)
	if err != nil {
		t.Fatalf("SaveRecognition: %v", err)
	}
	if saved != nil {
		t.Errorf("saved = %+v, want nil", saved)
	}
	if n := countRows(t, db, &Detection{}); n != 0 {
		t.Errorf("detections = %d, want 0", n)
	}
}

func TestSaveRecognitionPersistsAllRows(t *testing.T) {
	db := newTestDB(t)
	repo := NewHistoryRepository(db)

	results := []DetectedPlateResult{
		plateResult("51G-12345", 0.93),
		plateResult("30A-98765", 0.71),
	}
	saved, err := repo.SaveRecognition(context.Background(), testDetection("camera", time.Now().UTC()), results)
	if err != nil {
		t.Fatalf("SaveRecognition: %v", err)
	}
	if saved == nil {
		t.Fatal("saved = nil")
	}
	if len(saved.Results) != 2 {
		t.Errorf("reloaded results = %d, want 2", len(saved.Results))
	}
	for _, result := range saved.Results {
		if result.DetectionID != saved.ID {
			t.Errorf("result %s points at detection %s, want %s", result.RawPlate, result.DetectionID, saved.ID)
		}
		if result.PlateID == nil {
			t.Errorf("result %s has no plate link", result.RawPlate)
		}
	}
	if n := countRows(t, db, &LicensePlate{}); n != 2 {
		t.Errorf("license_plates = %d, want 2", n)
	}
}

func TestSaveRecognitionDeduplicatesPlates(t *testing.T) {
	db := newTestDB(t)
	repo := NewHistoryRepository(db)
	ctx := context.Background()

	// Same plate twice within one response, then again in a second response.
	first := []DetectedPlateResult{
		plateResult("51G-12345", 0.93),
		plateResult("51G-12345", 0.88),
		plateResult("30A-98765", 0.71),
	}
	if _, err := repo.SaveRecognition(ctx, testDetection("camera", time.Now().UTC()), first); err != nil {
		t.Fatalf("first SaveRecognition: %v", err)
	}

	second := []DetectedPlateResult{plateResult("51G-12345", 0.80)}
	if _, err := repo.SaveRecognition(ctx, testDetection("upload", time.Now().UTC()), second); err != nil {
		t.Fatalf("second SaveRecognition: %v", err)
	}

	if n := countRows(t, db, &LicensePlate{}); n != 2 {
		t.Errorf("license_plates = %d, want 2", n)
	}
	if n := countRows(t, db, &DetectedPlateResult{}); n != 4 {
		t.Errorf("detected_plate_results = %d, want 4", n)
	}

	// Both sightings of the repeated plate resolve to the same row.
	var plate LicensePlate
	if err := db.First(&plate, "plate_number = ?", "51G-12345").Error; err != nil {
		t.Fatalf("load plate: %v", err)
	}
	var linked int64
	if err := db.Model(&DetectedPlateResult{}).Where("plate_id = ?", plate.ID).Count(&linked).Error; err != nil {
		t.Fatalf("count linked: %v", err)
	}
	if linked != 3 {
		t.Errorf("results linked to repeated plate = %d, want 3", linked)
	}
}

func TestSaveRecognitionRollsBackOnFailure(t *testing.T) {
	db := newTestDB(t)

	// Fail the final insert of the transaction so every earlier write has to
	// be undone.
	boom := errors.New("result insert failed")
	err := db.Callback().Create().Before("gorm:create").Register("test_fail_results", func(tx *gorm.DB) {
		if tx.Statement.Table == "detected_plate_results" {
			tx.AddError(boom)
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	repo := NewHistoryRepository(db)
	results := []DetectedPlateResult{plateResult("51G-12345", 0.93)}
	_, err = repo.SaveRecognition(context.Background(), testDetection("camera", time.Now().UTC()), results)
	if !errors.Is(err, boom) {
		t.Fatalf("SaveRecognition err = %v, want %v", err, boom)
	}

	if n := countRows(t, db, &Detection{}); n != 0 {
		t.Errorf("detections = %d, want 0 after rollback", n)
	}
	if n := countRows(t, db, &LicensePlate{}); n != 0 {
		t.Errorf("license_plates = %d, want 0 after rollback", n)
	}
	if n := countRows(t, db, &DetectedPlateResult{}); n != 0 {
		t.Errorf("detected_plate_results = %d, want 0 after rollback", n)
	}
}

// seedHistory inserts n single-result detections with strictly increasing
// capture times starting at base, one minute apart.
func seedHistory(t *testing.T, repo *HistoryRepository, n int, base time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		detection := testDetection("camera", base.Add(time.Duration(i)*time.Minute))
		results := []DetectedPlateResult{plateResult(fmt.Sprintf("51G-%05d", i), 0.5+float64(i%5)/10)}
		if _, err := repo.SaveRecognition(context.Background(), detection, results); err != nil {
			t.Fatalf("seed row %d: %v", i, err)
		}
	}
}

func TestFetchPagePaginationAndTotal(t *testing.T) {
	db := newTestDB(t)
	repo := NewHistoryRepository(db)
	seedHistory(t, repo, 25, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))

	sortTerms := CompileSort(nil)

	rows, total, err := repo.FetchPage(context.Background(), Pagination{Index: 0, Size: 10}, sortTerms, nil)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(rows) != 10 {
		t.Errorf("page 0 rows = %d, want 10", len(rows))
	}
	if total != 25 {
		t.Errorf("total = %d, want 25", total)
	}

	rows, total, err = repo.FetchPage(context.Background(), Pagination{Index: 2, Size: 10}, sortTerms, nil)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(rows) != 5 {
		t.Errorf("page 2 rows = %d, want 5", len(rows))
	}
	if total != 25 {
		t.Errorf("total = %d, want 25", total)
	}
}

func TestFetchPageDefaultSortNewestFirst(t *testing.T) {
	db := newTestDB(t)
	repo := NewHistoryRepository(db)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	seedHistory(t, repo, 5, base)

	rows, _, err := repo.FetchPage(context.Background(), Pagination{Index: 0, Size: 10}, CompileSort(nil), nil)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("rows = %d, want 5", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if rows[i-1].Detection == nil || rows[i].Detection == nil {
			t.Fatal("detection not preloaded")
		}
		if rows[i-1].Detection.CapturedAt.Before(rows[i].Detection.CapturedAt) {
			t.Errorf("rows out of order at %d: %v before %v", i, rows[i-1].Detection.CapturedAt, rows[i].Detection.CapturedAt)
		}
	}
}

func TestFetchPageConfidenceFilter(t *testing.T) {
	db := newTestDB(t)
	repo := NewHistoryRepository(db)
	ctx := context.Background()

	for i, confidence := range []float64{0.3, 0.6, 0.9} {
		results := []DetectedPlateResult{plateResult(fmt.Sprintf("51G-%05d", i), confidence)}
		if _, err := repo.SaveRecognition(ctx, testDetection("camera", time.Now().UTC()), results); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	min := 50.0
	conds := CompileFilters([]FilterSpec{{ID: FilterConfidence, Value: RangeBounds{Min: &min}}})
	rows, total, err := repo.FetchPage(ctx, Pagination{Index: 0, Size: 10}, CompileSort(nil), conds)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(rows) != 2 || total != 2 {
		t.Errorf("rows = %d, total = %d, want 2 and 2", len(rows), total)
	}
	for _, row := range rows {
		if row.Confidence == nil || *row.Confidence < 0.5 {
			t.Errorf("row %s confidence %v below threshold", row.RawPlate, row.Confidence)
		}
	}
}

func TestFetchPageDateFilterCoversWholeDay(t *testing.T) {
	db := newTestDB(t)
	repo := NewHistoryRepository(db)
	ctx := context.Background()

	days := []time.Time{
		time.Date(2026, 3, 4, 23, 59, 0, 0, time.UTC),
		time.Date(2026, 3, 5, 0, 0, 1, 0, time.UTC),
		time.Date(2026, 3, 5, 23, 59, 59, 0, time.UTC),
		time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC),
	}
	for i, capturedAt := range days {
		results := []DetectedPlateResult{plateResult(fmt.Sprintf("51G-%05d", i), 0.9)}
		if _, err := repo.SaveRecognition(ctx, testDetection("camera", capturedAt), results); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	day := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	conds := CompileFilters([]FilterSpec{{ID: FilterDate, Value: DateRange{From: &day, To: &day}}})
	rows, total, err := repo.FetchPage(ctx, Pagination{Index: 0, Size: 10}, CompileSort(nil), conds)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(rows) != 2 || total != 2 {
		t.Errorf("rows = %d, total = %d, want the two captures inside March 5", len(rows), total)
	}
}

func TestFilterOptionsDistinctSortedNonEmpty(t *testing.T) {
	db := newTestDB(t)
	repo := NewHistoryRepository(db)
	ctx := context.Background()

	seed := []struct {
		source   string
		engine   *string
		category *string
	}{
		{"camera", ptr("tesseract"), ptr("car")},
		{"camera", ptr("easyocr"), ptr("truck")},
		{"upload", ptr("tesseract"), nil},
		{"upload", ptr(""), ptr("car")},
	}
	for i, row := range seed {
		result := plateResult(fmt.Sprintf("51G-%05d", i), 0.9)
		result.OCREngine = row.engine
		result.VehicleCategory = row.category
		if _, err := repo.SaveRecognition(ctx, testDetection(row.source, time.Now().UTC()), []DetectedPlateResult{result}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	opts, err := repo.FilterOptions(ctx)
	if err != nil {
		t.Fatalf("FilterOptions: %v", err)
	}
	assertStrings(t, "ocrEngines", opts.OCREngines, []string{"easyocr", "tesseract"})
	assertStrings(t, "vehicleTypes", opts.VehicleTypes, []string{"car", "truck"})
	assertStrings(t, "sources", opts.Sources, []string{"camera", "upload"})
}

func ptr(s string) *string { return &s }

func assertStrings(t *testing.T, name string, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("%s = %v, want %v", name, got, want)
		return
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%s = %v, want %v", name, got, want)
			return
		}
	}
}
