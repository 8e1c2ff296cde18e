package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,

	// license_plates: one row per distinct plate string ever seen.
	// plate_number is stored exactly as received, uniqueness is enforced
	// here so ingestion can rely on ON CONFLICT DO NOTHING.
	`CREATE TABLE IF NOT EXISTS license_plates (
		id              UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		plate_number    TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_license_plates_plate_number ON license_plates(plate_number);`,

	// detections: one row per recognition request that yielded at least
	// one plate. Empty or failed recognizer responses never create a row.
	`CREATE TABLE IF NOT EXISTS detections (
		id                  UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		source              TEXT NOT NULL,
		image_url           TEXT NOT NULL,
		processed_image_url TEXT,
		captured_at         TIMESTAMPTZ NOT NULL,
		processing_time_ms  BIGINT,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_detections_captured_at ON detections(captured_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_detections_source ON detections(source);`,

	// detected_plate_results: one row per plate found within one
	// detection. The plate link is informational only, hence SET NULL.
	`CREATE TABLE IF NOT EXISTS detected_plate_results (
		id                  UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		detection_id        UUID NOT NULL REFERENCES detections(id) ON DELETE CASCADE,
		plate_id            UUID REFERENCES license_plates(id) ON DELETE SET NULL,
		raw_plate           TEXT NOT NULL,
		normalized_plate    TEXT,
		confidence          NUMERIC(6,5),
		bounding_box        JSONB,
		ocr_engine          TEXT,
		vehicle_category    TEXT,
		province_code       TEXT,
		province_name       TEXT,
		plate_type          TEXT,
		color               TEXT,
		is_valid_format     BOOLEAN,
		format_description  TEXT,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_detected_plate_results_detection_id ON detected_plate_results(detection_id);`,
	`CREATE INDEX IF NOT EXISTS idx_detected_plate_results_plate_id ON detected_plate_results(plate_id);`,
	`CREATE INDEX IF NOT EXISTS idx_detected_plate_results_normalized_plate ON detected_plate_results(normalized_plate);`,
	`CREATE INDEX IF NOT EXISTS idx_detected_plate_results_confidence ON detected_plate_results(confidence);`,
	`CREATE INDEX IF NOT EXISTS idx_detected_plate_results_ocr_engine ON detected_plate_results(ocr_engine);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
