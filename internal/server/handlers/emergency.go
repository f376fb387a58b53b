package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ev119/erlocator/internal/core"
	"github.com/ev119/erlocator/internal/core/engine"
	apperrors "github.com/ev119/erlocator/internal/errors"
	"github.com/ev119/erlocator/internal/observability"
)

// EnrichmentHeader carries the merge outcome on enriched searches. The body is
// identical whether or not live capacity was merged.
const EnrichmentHeader = "X-Capacity-Enrichment"

const maxNumOfRows = 1000

// EmergencyService is the pipeline behind the emergency endpoints.
type EmergencyService interface {
	Search(ctx context.Context, q core.GeoQuery) (*core.FacilityList, error)
	Merge(ctx context.Context, q core.GeoQuery) (*core.FacilityList, engine.MergeReport, error)
}

// SuccessResponse wraps every successful emergency response.
type SuccessResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// EmergencyHandler serves the facility search endpoints.
type EmergencyHandler struct {
	Service EmergencyService
}

// SearchEmergency returns the plain nearby facility list.
func (h *EmergencyHandler) SearchEmergency(w http.ResponseWriter, r *http.Request) {
	q, err := parseGeoQuery(r)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, err.Error()))
		return
	}

	list, err := h.Service.Search(r.Context(), q)
	if err != nil {
		respondWithError(w, r, apperrors.WrapLookupFailure(r.Context(), err))
		return
	}

	writeSuccess(w, list)
}

// SearchEmergencyWithStatus returns the facility list with live capacity
// merged in where available.
func (h *EmergencyHandler) SearchEmergencyWithStatus(w http.ResponseWriter, r *http.Request) {
	q, err := parseGeoQuery(r)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, err.Error()))
		return
	}

	list, report, err := h.Service.Merge(r.Context(), q)
	if err != nil {
		respondWithError(w, r, apperrors.WrapLookupFailure(r.Context(), err))
		return
	}

	if logger := observability.ServerLogger; logger != nil {
		logger.Debug("Enriched search served",
			zap.String("outcome", string(report.Outcome)),
			zap.Int("pairs_seen", report.PairsSeen),
			zap.Int("pairs_queried", report.PairsQueried),
			zap.Int("realtime_requests", report.RealtimeRequests),
			zap.Int("matched_items", report.MatchedItems))
	}

	w.Header().Set(EnrichmentHeader, string(report.Outcome))
	writeSuccess(w, list)
}

func parseGeoQuery(r *http.Request) (core.GeoQuery, error) {
	values := r.URL.Query()

	lon, err := requiredFloat(values.Get("lon"), "lon", -180, 180)
	if err != nil {
		return core.GeoQuery{}, err
	}
	lat, err := requiredFloat(values.Get("lat"), "lat", -90, 90)
	if err != nil {
		return core.GeoQuery{}, err
	}
	pageNo, err := optionalInt(values.Get("pageNo"), "pageNo", core.DefaultPageNo, 1<<20)
	if err != nil {
		return core.GeoQuery{}, err
	}
	numOfRows, err := optionalInt(values.Get("numOfRows"), "numOfRows", core.DefaultNumOfRows, maxNumOfRows)
	if err != nil {
		return core.GeoQuery{}, err
	}

	return core.GeoQuery{Longitude: lon, Latitude: lat, PageNo: pageNo, NumOfRows: numOfRows}, nil
}

func requiredFloat(raw, name string, min, max float64) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s must be between %g and %g", name, min, max)
	}
	return v, nil
}

func optionalInt(raw, name string, def, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if v < 1 || v > max {
		return 0, fmt.Errorf("%s must be between 1 and %d", name, max)
	}
	return v, nil
}
