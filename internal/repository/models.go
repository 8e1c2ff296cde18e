package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

func (LicensePlate) TableName() string {
	return "license_plates"
}

func (Detection) TableName() string {
	return "detections"
}

func (DetectedPlateResult) TableName() string {
	return "detected_plate_results"
}

// LicensePlate holds one row per distinct plate string ever seen. Rows are
// created lazily on first sighting and never deleted by this service.
type LicensePlate struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	PlateNumber string    `gorm:"not null;uniqueIndex"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Detection is one recognition request that yielded at least one plate.
type Detection struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	Source            string    `gorm:"not null"`
	ImageURL          string    `gorm:"not null"`
	ProcessedImageURL *string
	CapturedAt        time.Time `gorm:"not null"`
	ProcessingTimeMs  *int64
	CreatedAt         time.Time

	Results []DetectedPlateResult `gorm:"foreignKey:DetectionID;constraint:OnDelete:CASCADE"`
}

// DetectedPlateResult is one plate found within one Detection. The plate
// link is informational, a deleted LicensePlate leaves it null.
type DetectedPlateResult struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey"`
	DetectionID       uuid.UUID  `gorm:"type:uuid;not null"`
	PlateID           *uuid.UUID `gorm:"type:uuid"`
	RawPlate          string     `gorm:"not null"`
	NormalizedPlate   *string
	Confidence        *float64
	BoundingBox       datatypes.JSON `gorm:"type:jsonb"`
	OCREngine         *string        `gorm:"column:ocr_engine"`
	VehicleCategory   *string
	ProvinceCode      *string
	ProvinceName      *string
	PlateType         *string
	Color             *string
	IsValidFormat     *bool
	FormatDescription *string
	CreatedAt         time.Time

	Detection *Detection    `gorm:"foreignKey:DetectionID"`
	Plate     *LicensePlate `gorm:"foreignKey:PlateID"`
}
