package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wolfeidau/ownerportal/internal/models"
	"github.com/wolfeidau/ownerportal/internal/store"
)

// PayoutStore implements store.PayoutStore on top of a CompanyStore.
// The debit and the insert happen under the company store's write lock.
type PayoutStore struct {
	companies *CompanyStore
	failNext  error
}

// NewPayoutStore creates a payout store sharing state with companies.
func NewPayoutStore(companies *CompanyStore) *PayoutStore {
	return &PayoutStore{companies: companies}
}

// FailNextInsert makes the next insert step fail after the balance check.
func (s *PayoutStore) FailNextInsert(err error) {
	s.companies.mu.Lock()
	defer s.companies.mu.Unlock()

	s.failNext = err
}

// CreateFromBalance debits the owner's company and records a pending request.
func (s *PayoutStore) CreateFromBalance(ctx context.Context, params store.CreatePayoutParams) (*models.PayoutRequest, error) {
	if !params.Amount.IsPositive() || !params.Amount.Equal(params.Amount.Round(2)) {
		return nil, store.ErrInvalidPayoutAmount
	}

	s.companies.mu.Lock()
	defer s.companies.mu.Unlock()

	companyID, exists := s.companies.byOwner[params.UserID]
	if !exists {
		return nil, store.ErrNoCompany
	}
	company := s.companies.companies[companyID]

	if params.Amount.GreaterThan(company.AvailableBalance) {
		return nil, store.ErrExceedsBalance
	}

	// Insert failures happen before any state is touched, which is the
	// in-memory equivalent of rolling back the transaction.
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	amount := params.Amount
	req := &models.PayoutRequest{
		ID:          id,
		UserID:      params.UserID,
		CompanyID:   companyID,
		InvoiceKey:  params.InvoiceKey,
		Amount:      &amount,
		Description: params.Description,
		Status:      models.PayoutPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	company.AvailableBalance = company.AvailableBalance.Sub(params.Amount)
	company.PendingPayoutAmount = company.PendingPayoutAmount.Add(params.Amount)
	company.UpdatedAt = now
	s.companies.payouts[id] = req

	clone := *req
	return &clone, nil
}

// ListByUser returns the user's payout requests, newest first.
func (s *PayoutStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.PayoutRequest, error) {
	s.companies.mu.RLock()
	defer s.companies.mu.RUnlock()

	var result []*models.PayoutRequest
	for _, p := range s.companies.payouts {
		if p.UserID == userID {
			clone := *p
			result = append(result, &clone)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}
