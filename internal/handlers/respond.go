package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/stanstork/alumni-sync/internal/apperrors"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// statusFor maps an error kind to the HTTP status reported to the caller.
func statusFor(err error) int {
	switch apperrors.Classify(err) {
	case apperrors.KindValidationFailure:
		return http.StatusBadRequest
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict, apperrors.KindReferentialViolation:
		return http.StatusConflict
	case apperrors.KindPermissionDenied:
		return http.StatusForbidden
	case apperrors.KindTransientTransport:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, message string, err error) {
	http.Error(w, message+": "+err.Error(), statusFor(err))
}

func idFromPath(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}
