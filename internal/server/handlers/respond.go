package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/ev119/erlocator/internal/errors"
)

// ErrorResponder renders err as the HTTP error body.
type ErrorResponder func(http.ResponseWriter, *http.Request, error)

var errorResponder ErrorResponder = apperrors.RespondWithError

// SetHTTPErrorResponder replaces the responder used by every handler in this
// package. A nil responder restores the default JSON envelope writer.
func SetHTTPErrorResponder(fn ErrorResponder) {
	if fn == nil {
		fn = apperrors.RespondWithError
	}
	errorResponder = fn
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	errorResponder(w, r, err)
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, SuccessResponse{Message: "success", Data: data})
}
