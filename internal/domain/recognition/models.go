package recognition

import "strings"

// Source identifies how the image that produced a detection entered the
// system.
type Source string

const (
	SourceUpload Source = "upload"
	SourceCamera Source = "camera"
	SourceImport Source = "import"
	SourceAPI    Source = "api"
)

func (s Source) Valid() bool {
	switch s {
	case SourceUpload, SourceCamera, SourceImport, SourceAPI:
		return true
	default:
		return false
	}
}

func Sources() []Source {
	return []Source{SourceUpload, SourceCamera, SourceImport, SourceAPI}
}

// VehicleCategory is the fixed classification the analysis step may assign
// to the vehicle carrying a plate.
type VehicleCategory string

const (
	CategoryCar        VehicleCategory = "car"
	CategoryMotorcycle VehicleCategory = "motorcycle"
	CategoryTruck      VehicleCategory = "truck"
	CategoryBus        VehicleCategory = "bus"
	CategoryTrailer    VehicleCategory = "trailer"
)

func (c VehicleCategory) Valid() bool {
	switch c {
	case CategoryCar, CategoryMotorcycle, CategoryTruck, CategoryBus, CategoryTrailer:
		return true
	default:
		return false
	}
}

func Categories() []VehicleCategory {
	return []VehicleCategory{CategoryCar, CategoryMotorcycle, CategoryTruck, CategoryBus, CategoryTrailer}
}

// CategoryFromString maps a category string reported by the recognizer to
// the fixed enumeration. Unrecognized values yield nil, they are stored as
// unclassified rather than rejected.
func CategoryFromString(raw string) *VehicleCategory {
	c := VehicleCategory(strings.ToLower(strings.TrimSpace(raw)))
	if !c.Valid() {
		return nil
	}
	return &c
}

// Box is the bounding rectangle of a detected plate in image coordinates.
type Box struct {
	XMin float64 `json:"xmin"`
	YMin float64 `json:"ymin"`
	XMax float64 `json:"xmax"`
	YMax float64 `json:"ymax"`
}

// Analysis carries the optional post-OCR interpretation of a plate string.
type Analysis struct {
	NormalizedPlate   string `json:"normalized_plate"`
	ProvinceCode      string `json:"province_code"`
	ProvinceName      string `json:"province_name"`
	PlateType         string `json:"plate_type"`
	VehicleCategory   string `json:"vehicle_category"`
	Color             string `json:"color"`
	IsValidFormat     bool   `json:"is_valid_format"`
	FormatDescription string `json:"format_description"`
}

// PlateDetection is one plate found within one recognizer call.
type PlateDetection struct {
	Plate      string    `json:"plate"`
	Confidence float64   `json:"confidence"`
	Box        Box       `json:"box"`
	Engine     string    `json:"engine"`
	Analysis   *Analysis `json:"analysis,omitempty"`
}

// Response is the full payload returned by the external recognition
// service for one image.
//
// ProcessingTime is declared as any: the recognizer is not consistent about
// the field and may send a number, a numeric string or nothing at all.
// Callers coerce it with service-level helpers; non-numeric values are
// stored as null.
type Response struct {
	Results           []PlateDetection `json:"results"`
	ProcessingTime    any              `json:"processing_time,omitempty"`
	ProcessedImageURL string           `json:"processed_image_url,omitempty"`
	CameraID          string           `json:"camera_id,omitempty"`
	Timestamp         string           `json:"timestamp,omitempty"`
}
