package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pawsaarthi/rescue-api/config"
	"github.com/pawsaarthi/rescue-api/models"
)

// StatusFor maps a workflow error to its HTTP status code
func StatusFor(err error) int {
	switch models.KindOf(err) {
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindForbidden:
		return http.StatusForbidden
	case models.KindInvalidTransition:
		return http.StatusConflict
	case models.KindInsufficientFunds:
		return http.StatusPaymentRequired
	case models.KindLocationRequired, models.KindBadRequest:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// WriteError writes err with the status its kind maps to. Workflow errors
// carry their own message.
func WriteError(w http.ResponseWriter, message string, err error) {
	status := StatusFor(err)
	var werr *models.Error
	if status == http.StatusInternalServerError || !errors.As(err, &werr) {
		config.ErrorStatus(message, status, w, err)
		return
	}
	config.ErrorStatus(werr.Message, status, w, err)
}

// WriteJSON writes v with the given status
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
