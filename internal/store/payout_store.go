package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wolfeidau/ownerportal/internal/models"
)

// CreatePayoutParams are the inputs of the balance-funded payout procedure.
type CreatePayoutParams struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	InvoiceKey  string
	Description string
}

// PayoutStore defines the storage operations on payout requests.
type PayoutStore interface {
	// CreateFromBalance atomically debits the owner's company and records a
	// pending payout request. Either both happen or neither does.
	// Returns ErrNoCompany or ErrExceedsBalance.
	CreateFromBalance(ctx context.Context, params CreatePayoutParams) (*models.PayoutRequest, error)

	// ListByUser returns the user's payout requests, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.PayoutRequest, error)
}
