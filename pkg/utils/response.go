package utils

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/lumehealth/lume/backend/internal/apperr"
)

// RespondJSON writes a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// RespondError writes a JSON error body.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// RespondAppError maps a classified service error onto an HTTP status. The
// client never sees upstream auth details, only the classification.
func RespondAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	switch kind {
	case apperr.KindValidation:
		RespondError(w, http.StatusBadRequest, err.Error())
	case apperr.KindAuth:
		RespondError(w, http.StatusBadGateway, "upstream authentication failed")
	case apperr.KindTimeout:
		RespondError(w, http.StatusGatewayTimeout, "upstream timed out")
	case apperr.KindNetwork, apperr.KindUpstream, apperr.KindStorage:
		RespondError(w, http.StatusBadGateway, "upstream request failed")
	default:
		RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
