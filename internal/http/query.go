package http

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"plate-history-service/internal/repository"
	"plate-history-service/internal/service"
)

var stringFilterParams = []string{
	repository.FilterPlateNumber,
	repository.FilterNormalizedPlate,
	repository.FilterProvinceName,
	repository.FilterOCREngine,
	repository.FilterVehicleType,
	repository.FilterSource,
}

// parseHistoryQuery maps raw query parameters onto the typed history
// request. Parsing stays permissive: anything that does not parse simply
// contributes no filter, matching the compiler's treatment of unknown
// ids.
func parseHistoryQuery(values url.Values) service.HistoryQuery {
	query := service.HistoryQuery{}

	if raw := values.Get("pageIndex"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			query.PageIndex = n
		}
	}
	query.PageSize = 10
	if raw := values.Get("pageSize"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			query.PageSize = n
		}
	}

	if sortBy := strings.TrimSpace(values.Get("sortBy")); sortBy != "" {
		query.Sort = append(query.Sort, repository.SortSpec{
			ID:         sortBy,
			Descending: strings.EqualFold(values.Get("sortDir"), "desc"),
		})
	}

	for _, param := range stringFilterParams {
		if raw := strings.TrimSpace(values.Get(param)); raw != "" {
			query.Filters = append(query.Filters, repository.FilterSpec{ID: param, Value: raw})
		}
	}

	if raw := values.Get("isValid"); raw != "" {
		if b, err := strconv.ParseBool(raw); err == nil {
			query.Filters = append(query.Filters, repository.FilterSpec{ID: repository.FilterIsValid, Value: b})
		}
	}

	// Min and Max arrive as separate specs sharing one id; the filter
	// compiler merges them into a single range condition.
	query.Filters = appendRangeFilter(query.Filters, repository.FilterConfidence,
		values.Get("confidenceMin"), values.Get("confidenceMax"))
	query.Filters = appendRangeFilter(query.Filters, repository.FilterProcessingTime,
		values.Get("processingTimeMin"), values.Get("processingTimeMax"))

	if dateRange, ok := parseDateRange(values.Get("from"), values.Get("to")); ok {
		query.Filters = append(query.Filters, repository.FilterSpec{ID: repository.FilterDate, Value: dateRange})
	}

	return query
}

func appendRangeFilter(filters []repository.FilterSpec, id, rawMin, rawMax string) []repository.FilterSpec {
	if min, err := strconv.ParseFloat(rawMin, 64); err == nil {
		filters = append(filters, repository.FilterSpec{ID: id, Value: repository.RangeBounds{Min: &min}})
	}
	if max, err := strconv.ParseFloat(rawMax, 64); err == nil {
		filters = append(filters, repository.FilterSpec{ID: id, Value: repository.RangeBounds{Max: &max}})
	}
	return filters
}

func parseDateRange(rawFrom, rawTo string) (repository.DateRange, bool) {
	dateRange := repository.DateRange{
		From: parseDate(rawFrom),
		To:   parseDate(rawTo),
	}
	return dateRange, dateRange.From != nil || dateRange.To != nil
}

func parseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}
