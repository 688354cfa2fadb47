package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"closeus-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// Reason codes sent to clients
const (
	ReasonInternal = "INTERNAL"
	ReasonBadBody  = "INVALID_BODY"
)

type errorMapping struct {
	err    error
	status int
	reason string
}

var errorMappings = []errorMapping{
	{services.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
	{services.ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND"},
	{services.ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
	{services.ErrAlreadyPaired, http.StatusBadRequest, "ALREADY_PAIRED"},
	{services.ErrNoCouple, http.StatusNotFound, "NO_COUPLE"},
	{services.ErrInvalidKey, http.StatusNotFound, "INVALID_KEY"},
	{services.ErrKeyAlreadyUsed, http.StatusBadRequest, "KEY_ALREADY_USED"},
	{services.ErrKeyExpired, http.StatusBadRequest, "KEY_EXPIRED"},
	{services.ErrSelfPairing, http.StatusBadRequest, "SELF_PAIRING"},
	{services.ErrNotPaired, http.StatusNotFound, "NOT_PAIRED"},
	{services.ErrNoQuestionAvailable, http.StatusNotFound, "NONE_AVAILABLE"},
	{services.ErrQuestionNotFound, http.StatusNotFound, "QUESTION_NOT_FOUND"},
	{services.ErrAnswerNotFound, http.StatusNotFound, "ANSWER_NOT_FOUND"},
	{services.ErrMissingText, http.StatusBadRequest, "MISSING_TEXT"},
	{services.ErrInvalidMessage, http.StatusBadRequest, "INVALID_MESSAGE"},
	{services.ErrMediaUnavailable, http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE"},
}

// classifyError maps a service error to an HTTP status, reason code and a
// message safe to show the client. Unknown errors collapse to INTERNAL.
func classifyError(err error) (int, string, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.reason, err.Error()
		}
	}
	return http.StatusInternalServerError, ReasonInternal, "Internal server error"
}

// respondJSON writes v as JSON with the given status
func respondJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int, reason string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message, Reason: reason})
}

// respondServiceError logs unexpected failures and renders err for the client
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	status, reason, message := classifyError(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg(action)
	} else {
		log.Debug().Err(err).Str("path", r.URL.Path).Str("reason", reason).Msg(action)
	}
	respondError(w, message, status, reason)
}

// decodeJSON reads the request body into v, answering 400 on failure
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest, ReasonBadBody)
		return false
	}
	return true
}
