package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Pagination is a zero-based page index with a page size already clamped
// by the caller.
type Pagination struct {
	Index int
	Size  int
}

// FilterOptions are the distinct values currently present for each
// filterable enumerable column.
type FilterOptions struct {
	OCREngines   []string `json:"ocrEngines"`
	VehicleTypes []string `json:"vehicleTypes"`
	Sources      []string `json:"sources"`
}

// SaveRecognition persists one recognition response atomically: the
// Detection row, the deduplicated LicensePlate rows and all result rows
// either all land or none do. The detection and result ids are generated
// here; callers pass rows with PlateID and DetectionID unset.
//
// Plate dedup runs as upsert-then-re-read: the ON CONFLICT DO NOTHING
// insert never fails on an existing plate number, and the follow-up read
// resolves ids for both new and pre-existing rows, so two concurrent
// ingestions of an overlapping plate set converge on the same LicensePlate
// rows.
//
// On success the returned Detection is re-fetched from storage rather than
// assembled from in-transaction values, so it matches what a subsequent
// history read would see.
func (r *HistoryRepository) SaveRecognition(ctx context.Context, detection *Detection, results []DetectedPlateResult) (*Detection, error) {
	if len(results) == 0 {
		return nil, nil
	}

	detection.ID = uuid.New()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(detection).Error; err != nil {
			return fmt.Errorf("create detection: %w", err)
		}

		numbers := distinctPlateNumbers(results)

		plateIDs := make(map[string]uuid.UUID, len(numbers))
		if len(numbers) > 0 {
			plates := make([]LicensePlate, 0, len(numbers))
			for _, number := range numbers {
				plates = append(plates, LicensePlate{ID: uuid.New(), PlateNumber: number})
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "plate_number"}},
				DoNothing: true,
			}).Create(&plates).Error
			if err != nil {
				return fmt.Errorf("upsert plates: %w", err)
			}

			var stored []LicensePlate
			if err := tx.Where("plate_number IN ?", numbers).Find(&stored).Error; err != nil {
				return fmt.Errorf("resolve plate ids: %w", err)
			}
			for _, plate := range stored {
				plateIDs[plate.PlateNumber] = plate.ID
			}
		}

		for i := range results {
			results[i].ID = uuid.New()
			results[i].DetectionID = detection.ID
			if id, ok := plateIDs[results[i].RawPlate]; ok {
				results[i].PlateID = &id
			}
		}

		if err := tx.Create(&results).Error; err != nil {
			return fmt.Errorf("create plate results: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var saved Detection
	err = r.db.WithContext(ctx).
		Preload("Results").
		First(&saved, "id = ?", detection.ID).Error
	if err != nil {
		return nil, fmt.Errorf("reload detection: %w", err)
	}
	return &saved, nil
}

// distinctPlateNumbers collects the set of non-empty plate strings across
// the response, preserving first-seen order.
func distinctPlateNumbers(results []DetectedPlateResult) []string {
	seen := make(map[string]struct{}, len(results))
	numbers := make([]string, 0, len(results))
	for _, result := range results {
		if result.RawPlate == "" {
			continue
		}
		if _, dup := seen[result.RawPlate]; dup {
			continue
		}
		seen[result.RawPlate] = struct{}{}
		numbers = append(numbers, result.RawPlate)
	}
	return numbers
}

// filtered builds the joined base query with every compiled condition
// applied. Both the page query and the count query start from here, which
// is what keeps their predicates identical.
func (r *HistoryRepository) filtered(ctx context.Context, conds []Condition) *gorm.DB {
	query := r.db.WithContext(ctx).
		Model(&DetectedPlateResult{}).
		Joins("LEFT JOIN detections ON detections.id = detected_plate_results.detection_id").
		Joins("LEFT JOIN license_plates ON license_plates.id = detected_plate_results.plate_id")
	for _, cond := range conds {
		query = query.Where(cond.Expr, cond.Args...)
	}
	return query
}

// FetchPage runs the result-page query and the matching total-count query.
// The two are independent reads and run concurrently; under heavy
// concurrent writes they may observe slightly different snapshots, which
// is acceptable.
func (r *HistoryRepository) FetchPage(ctx context.Context, page Pagination, sortTerms []string, conds []Condition) ([]DetectedPlateResult, int64, error) {
	var (
		rows  []DetectedPlateResult
		total int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.filtered(gctx, conds).
			Order(strings.Join(sortTerms, ", ")).
			Limit(page.Size).
			Offset(page.Index * page.Size).
			Preload("Detection").
			Preload("Plate").
			Find(&rows).Error
	})
	g.Go(func() error {
		return r.filtered(gctx, conds).Count(&total).Error
	})
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("fetch history page: %w", err)
	}
	return rows, total, nil
}

// FetchAll returns the entire filtered, ordered result set. Used by the
// export endpoint, which has no pagination.
func (r *HistoryRepository) FetchAll(ctx context.Context, sortTerms []string, conds []Condition) ([]DetectedPlateResult, error) {
	var rows []DetectedPlateResult
	err := r.filtered(ctx, conds).
		Order(strings.Join(sortTerms, ", ")).
		Preload("Detection").
		Preload("Plate").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch history rows: %w", err)
	}
	return rows, nil
}

// FilterOptions returns the distinct non-null, non-empty values present
// for each enumerable filter column, each sorted ascending. The three
// queries are independent and run concurrently. Nothing is fabricated: a
// value appears only if some stored row carries it.
func (r *HistoryRepository) FilterOptions(ctx context.Context) (FilterOptions, error) {
	var opts FilterOptions

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.db.WithContext(gctx).
			Model(&DetectedPlateResult{}).
			Distinct("ocr_engine").
			Where("ocr_engine IS NOT NULL AND ocr_engine <> ''").
			Order("ocr_engine ASC").
			Pluck("ocr_engine", &opts.OCREngines).Error
	})
	g.Go(func() error {
		return r.db.WithContext(gctx).
			Model(&DetectedPlateResult{}).
			Distinct("vehicle_category").
			Where("vehicle_category IS NOT NULL AND vehicle_category <> ''").
			Order("vehicle_category ASC").
			Pluck("vehicle_category", &opts.VehicleTypes).Error
	})
	g.Go(func() error {
		return r.db.WithContext(gctx).
			Model(&Detection{}).
			Distinct("source").
			Where("source IS NOT NULL AND source <> ''").
			Order("source ASC").
			Pluck("source", &opts.Sources).Error
	})
	if err := g.Wait(); err != nil {
		return FilterOptions{}, fmt.Errorf("load filter options: %w", err)
	}
	return opts, nil
}
