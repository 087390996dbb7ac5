package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/punchamoorthee/chapterbudget/internal/domain"
	"github.com/punchamoorthee/chapterbudget/internal/logging"
	"github.com/sirupsen/logrus"
)

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrIdempotencyMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondWithServiceError writes err with its mapped status. Internal errors are
// logged and replaced by a generic message.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, logger logrus.FieldLogger, funcName string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logging.LogError(requestLogger(r, logger), "api", funcName, r.URL.Path, nil, err)
		respondWithError(w, code, "Internal Server Error")
		return
	}
	respondWithError(w, code, err.Error())
}
