package apperr

import (
	"errors"
	"net/http"
)

// Error kinds. Every error surfaced by the portal core wraps exactly one of these.
var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrExceedsBalance     = errors.New("exceeds available balance")
	ErrConflict           = errors.New("already exists")
	ErrUpstreamTimeout    = errors.New("upstream timeout")
	ErrUpstream           = errors.New("upstream error")
	ErrVerificationFailed = errors.New("internal verification failure")
	ErrRateLimited        = errors.New("rate limited")
)

// Error is a named error that belongs to one of the kinds above.
type Error struct {
	Kind error
	Msg  string
}

// New returns an error with the given message that matches kind via errors.Is.
func New(kind error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

// Narrower errors used by the payout and storage flows.
var (
	ErrNoCompany   = New(ErrNotFound, "no company found")
	ErrInvalidFile = New(ErrValidation, "invalid file")
)

// Code returns the typed error code exposed to API callers.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoCompany):
		return "NoCompany"
	case errors.Is(err, ErrInvalidFile):
		return "InvalidFile"
	case errors.Is(err, ErrExceedsBalance):
		return "ExceedsBalance"
	case errors.Is(err, ErrUnauthenticated):
		return "Unauthenticated"
	case errors.Is(err, ErrForbidden):
		return "Forbidden"
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrConflict):
		return "ConflictAlreadyExists"
	case errors.Is(err, ErrRateLimited):
		return "RateLimited"
	case errors.Is(err, ErrUpstreamTimeout):
		return "UpstreamTimeout"
	case errors.Is(err, ErrVerificationFailed):
		return "InternalVerificationFailure"
	default:
		return "UpstreamError"
	}
}

// HTTPStatus maps an error to the status code used by the HTTP surface.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrValidation), errors.Is(err, ErrExceedsBalance):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
