package http

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/ownerportal/internal/apperr"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError logs err with the request logger and answers with the status and
// code derived from its apperr kind. msg is what the caller sees; when empty a
// generic text for the status is used. err's own text is never sent.
func WriteError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := apperr.HTTPStatus(err)

	event := zerolog.Ctx(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		event = zerolog.Ctx(r.Context()).Error()
	}
	event.Err(err).Int("status", status).Msg("request failed")

	if msg == "" {
		msg = GenericMessage(status)
	}

	WriteJSON(w, status, ErrorResponse{
		Success: false,
		Error:   msg,
		Code:    apperr.Code(err),
	})
}

// GenericMessage is the user-safe text for a status code.
func GenericMessage(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "authentication required"
	case http.StatusForbidden:
		return "not allowed"
	case http.StatusBadRequest:
		return "invalid request"
	case http.StatusNotFound:
		return "not found"
	case http.StatusConflict:
		return "already exists"
	case http.StatusTooManyRequests:
		return "too many requests, try again later"
	case http.StatusGatewayTimeout:
		return "the request timed out, try again"
	default:
		return "something went wrong"
	}
}
