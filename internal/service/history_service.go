package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"plate-history-service/internal/domain/recognition"
	"plate-history-service/internal/repository"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

type HistoryService struct {
	repo *repository.HistoryRepository
	log  zerolog.Logger
}

func NewHistoryService(repo *repository.HistoryRepository, log zerolog.Logger) *HistoryService {
	return &HistoryService{
		repo: repo,
		log:  log,
	}
}

// Ingest stores one recognition response. A response with no detections is
// not an error: nothing is written and nil is returned, so callers can
// tell "nothing found" (nil, nil) apart from a storage failure (nil, err).
func (s *HistoryService) Ingest(ctx context.Context, resp *recognition.Response, source recognition.Source, identifier string) (*DetectionInfo, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: recognition response is required", ErrInvalidInput)
	}
	if !source.Valid() {
		return nil, fmt.Errorf("%w: unknown source %q", ErrInvalidInput, source)
	}

	if len(resp.Results) == 0 {
		s.log.Debug().
			Str("source", string(source)).
			Str("image", identifier).
			Msg("recognition response has no detections, nothing to store")
		return nil, nil
	}

	detection := &repository.Detection{
		Source:           string(source),
		ImageURL:         identifier,
		CapturedAt:       time.Now().UTC(),
		ProcessingTimeMs: processingMillis(resp.ProcessingTime),
	}
	if resp.ProcessedImageURL != "" {
		url := resp.ProcessedImageURL
		detection.ProcessedImageURL = &url
	}

	rows := make([]repository.DetectedPlateResult, 0, len(resp.Results))
	for _, det := range resp.Results {
		rows = append(rows, buildResultRow(det))
	}

	saved, err := s.repo.SaveRecognition(ctx, detection, rows)
	if err != nil {
		s.log.Error().
			Err(err).
			Str("source", string(source)).
			Str("image", identifier).
			Int("detections", len(resp.Results)).
			Msg("failed to save recognition response")
		return nil, fmt.Errorf("save recognition: %w", err)
	}

	s.log.Info().
		Str("detection_id", saved.ID.String()).
		Str("source", string(source)).
		Int("plates", len(saved.Results)).
		Msg("stored recognition response")

	info := detectionInfo(saved)
	return &info, nil
}

// buildResultRow maps one detected plate onto a storage row. Analysis
// fields stay null when the recognizer sent no analysis object; a reported
// vehicle category outside the fixed enumeration is silently dropped.
func buildResultRow(det recognition.PlateDetection) repository.DetectedPlateResult {
	confidence := det.Confidence
	row := repository.DetectedPlateResult{
		RawPlate:    det.Plate,
		Confidence:  &confidence,
		BoundingBox: boundingBoxJSON(det.Box),
	}
	if det.Engine != "" {
		engine := det.Engine
		row.OCREngine = &engine
	}

	a := det.Analysis
	if a == nil {
		return row
	}

	if a.NormalizedPlate != "" {
		normalized := a.NormalizedPlate
		row.NormalizedPlate = &normalized
	}
	if a.ProvinceCode != "" {
		code := a.ProvinceCode
		row.ProvinceCode = &code
	}
	if a.ProvinceName != "" {
		name := a.ProvinceName
		row.ProvinceName = &name
	}
	if a.PlateType != "" {
		plateType := a.PlateType
		row.PlateType = &plateType
	}
	if a.Color != "" {
		color := a.Color
		row.Color = &color
	}
	valid := a.IsValidFormat
	row.IsValidFormat = &valid
	if a.FormatDescription != "" {
		desc := a.FormatDescription
		row.FormatDescription = &desc
	}
	if category := recognition.CategoryFromString(a.VehicleCategory); category != nil {
		value := string(*category)
		row.VehicleCategory = &value
	}
	return row
}

// processingMillis coerces the recognizer's loosely typed processing-time
// field to whole milliseconds. Non-numeric values become null.
func processingMillis(value any) *int64 {
	var ms float64
	switch v := value.(type) {
	case float64:
		ms = v
	case int64:
		ms = float64(v)
	case int:
		ms = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil
		}
		ms = f
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil
		}
		ms = f
	default:
		return nil
	}
	rounded := int64(math.Round(ms))
	return &rounded
}

func boundingBoxJSON(box recognition.Box) datatypes.JSON {
	raw, err := json.Marshal(box)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

// HistoryQuery is the already-parsed history request: pagination, ordered
// sort keys and an open set of filter specs.
type HistoryQuery struct {
	PageIndex int
	PageSize  int
	Sort      []repository.SortSpec
	Filters   []repository.FilterSpec
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

func (q *HistoryQuery) clamp() {
	if q.PageIndex < 0 {
		q.PageIndex = 0
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
}

// History returns one page of the filtered, sorted detection history plus
// the total number of matching rows.
func (s *HistoryService) History(ctx context.Context, query HistoryQuery) (*HistoryPage, error) {
	query.clamp()

	conds := repository.CompileFilters(query.Filters)
	sortTerms := repository.CompileSort(query.Sort)

	rows, total, err := s.repo.FetchPage(ctx, repository.Pagination{
		Index: query.PageIndex,
		Size:  query.PageSize,
	}, sortTerms, conds)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to fetch history page")
		return nil, fmt.Errorf("fetch history: %w", err)
	}

	page := &HistoryPage{
		Rows:          make([]HistoryRow, 0, len(rows)),
		TotalRowCount: total,
	}
	for _, row := range rows {
		page.Rows = append(page.Rows, historyRow(row))
	}
	return page, nil
}

// FilterOptions lists the distinct values present for each enumerable
// filter column, to populate client filter choices.
func (s *HistoryService) FilterOptions(ctx context.Context) (repository.FilterOptions, error) {
	opts, err := s.repo.FilterOptions(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load filter options")
		return repository.FilterOptions{}, fmt.Errorf("filter options: %w", err)
	}
	return opts, nil
}

type PlateInfo struct {
	ID          string `json:"id"`
	PlateNumber string `json:"plateNumber"`
}

type DetectionSummary struct {
	ID                string    `json:"id"`
	Source            string    `json:"source"`
	ImageURL          string    `json:"imageUrl"`
	ProcessedImageURL *string   `json:"processedImageUrl,omitempty"`
	CapturedAt        time.Time `json:"capturedAt"`
	ProcessingTimeMs  *int64    `json:"processingTimeMs,omitempty"`
}

type ResultInfo struct {
	ID                string           `json:"id"`
	RawPlate          string           `json:"rawPlate"`
	NormalizedPlate   *string          `json:"normalizedPlate,omitempty"`
	ConfidencePercent *float64         `json:"confidencePercent,omitempty"`
	BoundingBox       *recognition.Box `json:"boundingBox,omitempty"`
	OCREngine         *string          `json:"ocrEngine,omitempty"`
	VehicleCategory   *string          `json:"vehicleCategory,omitempty"`
	ProvinceCode      *string          `json:"provinceCode,omitempty"`
	ProvinceName      *string          `json:"provinceName,omitempty"`
	PlateType         *string          `json:"plateType,omitempty"`
	Color             *string          `json:"color,omitempty"`
	IsValidFormat     *bool            `json:"isValidFormat,omitempty"`
	FormatDescription *string          `json:"formatDescription,omitempty"`
}

type DetectionInfo struct {
	DetectionSummary
	Results []ResultInfo `json:"results"`
}

// HistoryRow is one flattened history entry: the result's own fields plus
// its parent detection and optional plate as sub-objects. The sub-objects
// stay nested, their fields are never merged into the row.
type HistoryRow struct {
	ResultInfo
	Detection *DetectionSummary `json:"detection"`
	Plate     *PlateInfo        `json:"plate"`
}

type HistoryPage struct {
	Rows          []HistoryRow `json:"rows"`
	TotalRowCount int64        `json:"totalRowCount"`
}

func detectionSummary(d *repository.Detection) *DetectionSummary {
	if d == nil {
		return nil
	}
	return &DetectionSummary{
		ID:                d.ID.String(),
		Source:            d.Source,
		ImageURL:          d.ImageURL,
		ProcessedImageURL: d.ProcessedImageURL,
		CapturedAt:        d.CapturedAt,
		ProcessingTimeMs:  d.ProcessingTimeMs,
	}
}

func detectionInfo(d *repository.Detection) DetectionInfo {
	info := DetectionInfo{
		DetectionSummary: *detectionSummary(d),
		Results:          make([]ResultInfo, 0, len(d.Results)),
	}
	for _, row := range d.Results {
		info.Results = append(info.Results, resultInfo(row))
	}
	return info
}

func resultInfo(row repository.DetectedPlateResult) ResultInfo {
	info := ResultInfo{
		ID:                row.ID.String(),
		RawPlate:          row.RawPlate,
		NormalizedPlate:   row.NormalizedPlate,
		OCREngine:         row.OCREngine,
		VehicleCategory:   row.VehicleCategory,
		ProvinceCode:      row.ProvinceCode,
		ProvinceName:      row.ProvinceName,
		PlateType:         row.PlateType,
		Color:             row.Color,
		IsValidFormat:     row.IsValidFormat,
		FormatDescription: row.FormatDescription,
	}
	if row.Confidence != nil {
		percent := repository.FractionToPercent(*row.Confidence)
		info.ConfidencePercent = &percent
	}
	if len(row.BoundingBox) > 0 {
		var box recognition.Box
		if err := json.Unmarshal(row.BoundingBox, &box); err == nil {
			info.BoundingBox = &box
		}
	}
	return info
}

func historyRow(row repository.DetectedPlateResult) HistoryRow {
	out := HistoryRow{
		ResultInfo: resultInfo(row),
		Detection:  detectionSummary(row.Detection),
	}
	if row.Plate != nil {
		out.Plate = &PlateInfo{
			ID:          row.Plate.ID.String(),
			PlateNumber: row.Plate.PlateNumber,
		}
	}
	return out
}
