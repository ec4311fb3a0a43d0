package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayoutStatus is the lifecycle state of a payout request.
type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"
	PayoutApproved  PayoutStatus = "approved"
	PayoutConfirmed PayoutStatus = "confirmed"
	PayoutPaid      PayoutStatus = "paid"
	PayoutProcessed PayoutStatus = "processed"
	PayoutRejected  PayoutStatus = "rejected"
)

// PayoutRequest is a request to withdraw funds from a company's available balance.
// It is created pending and only changed by back-office processing afterwards.
type PayoutRequest struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	CompanyID   uuid.UUID
	InvoiceKey  string // storage key, never a public URL
	Amount      *decimal.Decimal
	Description string
	Status      PayoutStatus
	AdminNotes  *string
	ProcessedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
