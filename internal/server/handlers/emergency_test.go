package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ev119/erlocator/internal/core"
	"github.com/ev119/erlocator/internal/core/engine"
	"github.com/ev119/erlocator/internal/core/upstream"
	apperrors "github.com/ev119/erlocator/internal/errors"
)

type stubEmergencyService struct {
	list   *core.FacilityList
	report engine.MergeReport
	err    error

	lastQuery core.GeoQuery
	merged    bool
}

func (s *stubEmergencyService) Search(ctx context.Context, q core.GeoQuery) (*core.FacilityList, error) {
	s.lastQuery = q
	return s.list, s.err
}

func (s *stubEmergencyService) Merge(ctx context.Context, q core.GeoQuery) (*core.FacilityList, engine.MergeReport, error) {
	s.lastQuery = q
	s.merged = true
	return s.list, s.report, s.err
}

func sampleList() *core.FacilityList {
	hvec := "4"
	return &core.FacilityList{
		Header: core.ResponseHeader{ResultCode: "00", ResultMsg: "NORMAL SERVICE."},
		Body: core.FacilityListBody{
			Items: []*core.FacilityItem{
				{FacilityID: "A1100010", Name: "Seoul ER", Address: "Seoul Jongno-gu Daehak-ro 101", CapacityEmergency: &hvec},
				{FacilityID: "A1100011", Name: "Other ER", Address: "Seoul Jongno-gu Daehak-ro 103"},
			},
			NumOfRows:  10,
			PageNo:     1,
			TotalCount: 2,
		},
	}
}

func decodeSuccess(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSearchEmergency(t *testing.T) {
	svc := &stubEmergencyService{list: sampleList()}
	h := &EmergencyHandler{Service: svc}

	req := httptest.NewRequest(http.MethodGet, "/api/emergency/search-emergency?lon=126.99&lat=37.58", nil)
	rec := httptest.NewRecorder()
	h.SearchEmergency(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, svc.merged)
	require.Empty(t, rec.Header().Get(EnrichmentHeader))
	require.Equal(t, core.GeoQuery{Longitude: 126.99, Latitude: 37.58, PageNo: 1, NumOfRows: 10}, svc.lastQuery)

	body := decodeSuccess(t, rec)
	require.Equal(t, "success", body["message"])
	data := body["data"].(map[string]any)
	items := data["body"].(map[string]any)["items"].([]any)
	require.Len(t, items, 2)

	first := items[0].(map[string]any)
	require.Equal(t, "A1100010", first["hpid"])
	require.Equal(t, "4", first["hvec"])

	second := items[1].(map[string]any)
	require.Contains(t, second, "hvec")
	require.Nil(t, second["hvec"])
}

func TestSearchEmergencyWithStatusSetsOutcomeHeader(t *testing.T) {
	svc := &stubEmergencyService{list: sampleList(), report: engine.MergeReport{Outcome: engine.OutcomeQuotaFallback}}
	h := &EmergencyHandler{Service: svc}

	req := httptest.NewRequest(http.MethodGet, "/api/emergency/search-emergency-with-status?lon=126.99&lat=37.58&pageNo=2&numOfRows=30", nil)
	rec := httptest.NewRecorder()
	h.SearchEmergencyWithStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, svc.merged)
	require.Equal(t, "quota_fallback", rec.Header().Get(EnrichmentHeader))
	require.Equal(t, 2, svc.lastQuery.PageNo)
	require.Equal(t, 30, svc.lastQuery.NumOfRows)
	require.Equal(t, "success", decodeSuccess(t, rec)["message"])
}

func TestSearchEmergencyRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"missing lon", "lat=37.5"},
		{"missing lat", "lon=127"},
		{"lon not a number", "lon=east&lat=37.5"},
		{"lat out of range", "lon=127&lat=91"},
		{"page zero", "lon=127&lat=37.5&pageNo=0"},
		{"rows too large", "lon=127&lat=37.5&numOfRows=5000"},
		{"rows not an int", "lon=127&lat=37.5&numOfRows=ten"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubEmergencyService{list: sampleList()}
			h := &EmergencyHandler{Service: svc}

			rec := httptest.NewRecorder()
			h.SearchEmergencyWithStatus(rec, httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.False(t, svc.merged)

			var body apperrors.HTTPErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, apperrors.CodeInvalidInput, body.Error.Code)
		})
	}
}

func TestSearchEmergencyBaseFailureIsBadGateway(t *testing.T) {
	svc := &stubEmergencyService{err: &upstream.BaseLookupError{StatusCode: http.StatusInternalServerError}}
	h := &EmergencyHandler{Service: svc}

	for _, handler := range []http.HandlerFunc{h.SearchEmergency, h.SearchEmergencyWithStatus} {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/x?lon=127&lat=37.5", nil))

		require.Equal(t, http.StatusBadGateway, rec.Code)
		var body apperrors.HTTPErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, apperrors.CodeExternalService, body.Error.Code)
		require.Empty(t, rec.Header().Get(EnrichmentHeader))
	}
}
