package store

import (
	"github.com/wolfeidau/ownerportal/internal/apperr"
)

// Sentinel errors for common error conditions.
// Each one matches an apperr kind via errors.Is.
var (
	ErrIdentityNotFound      = apperr.New(apperr.ErrNotFound, "identity not found")
	ErrIdentityAlreadyExists = apperr.New(apperr.ErrConflict, "identity already exists")

	ErrSessionNotFound = apperr.New(apperr.ErrUnauthenticated, "session not found")
	ErrSessionExpired  = apperr.New(apperr.ErrUnauthenticated, "session expired")

	ErrCompanyNotFound      = apperr.New(apperr.ErrNotFound, "company not found")
	ErrCompanyAlreadyExists = apperr.New(apperr.ErrConflict, "company already exists for owner")
	ErrUnknownCompanyField  = apperr.New(apperr.ErrValidation, "unknown company field")
	ErrCompanyNotOwned      = apperr.New(apperr.ErrForbidden, "company owned by another user")

	ErrMemberAlreadyExists = apperr.New(apperr.ErrConflict, "company member already exists")

	// ErrNoCompany and ErrExceedsBalance are the two failures of the payout procedure.
	ErrNoCompany      = apperr.ErrNoCompany
	ErrExceedsBalance = apperr.New(apperr.ErrExceedsBalance, "amount exceeds available balance")

	// ErrInvalidPayoutAmount is raised for amounts that are not positive whole cents.
	ErrInvalidPayoutAmount = apperr.New(apperr.ErrValidation, "payout amount must be positive whole cents")
)
