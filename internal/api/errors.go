package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/meridell/daybook/internal/journal"
	"github.com/meridell/daybook/internal/storage"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// quotaError writes the 429 payload with the window reset time, plus any
// extra fields the caller wants to carry (e.g. the persisted user message).
func quotaError(w http.ResponseWriter, qe *journal.QuotaError, extra map[string]any) {
	body := map[string]any{
		"error": map[string]any{
			"message": "daily AI quota exhausted",
			"type":    "rate_limit_error",
		},
		"remaining": qe.Remaining,
		"reset_at":  qe.ResetAt.Format(time.RFC3339),
	}
	for k, v := range extra {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(body)
}

// serviceError maps orchestrator errors onto HTTP statuses.
func serviceError(w http.ResponseWriter, err error) {
	var qe *journal.QuotaError
	switch {
	case errors.As(err, &qe):
		quotaError(w, qe, nil)
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "entry not found")
	case errors.Is(err, journal.ErrDuplicateJournalForDay):
		httpError(w, http.StatusConflict, "conflict", "a journal entry already exists for today")
	case errors.Is(err, journal.ErrEmptyContent),
		errors.Is(err, journal.ErrEmptyMessage),
		errors.Is(err, journal.ErrInvalidMood):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, journal.ErrGenerationFailed):
		httpError(w, http.StatusBadGateway, "api_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
