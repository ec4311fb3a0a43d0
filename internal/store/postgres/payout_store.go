package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/wolfeidau/ownerportal/internal/models"
	"github.com/wolfeidau/ownerportal/internal/store"
)

const payoutColumns = `
	id, user_id, company_id, invoice_key, amount::text, description,
	status, admin_notes, processed_at, created_at, updated_at`

// PayoutStore implements store.PayoutStore using PostgreSQL.
type PayoutStore struct {
	pool *pgxpool.Pool
}

// NewPayoutStore creates a new PostgreSQL-backed payout store.
func NewPayoutStore(pool *pgxpool.Pool) *PayoutStore {
	return &PayoutStore{pool: pool}
}

// CreateFromBalance calls create_payout_from_balance, which debits the
// owner's company and inserts the request in the same transaction. The
// inserted row comes back from the same call.
func (s *PayoutStore) CreateFromBalance(ctx context.Context, params store.CreatePayoutParams) (*models.PayoutRequest, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate payout id: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+payoutColumns+` FROM create_payout_from_balance($1, $2, $3::numeric, $4, $5)`,
		id,
		params.UserID,
		params.Amount.String(),
		params.InvoiceKey,
		params.Description,
	)
	if err != nil {
		return nil, mapPostgresError(err)
	}

	// plpgsql errors surface while the rows are read, not from Query.
	req, err := pgx.CollectExactlyOneRow(rows, scanPayout)
	if err != nil {
		return nil, mapPostgresError(err)
	}

	log.Info().
		Str("payout_id", req.ID.String()).
		Str("user_id", params.UserID.String()).
		Str("amount", params.Amount.StringFixed(2)).
		Msg("Created payout request from balance")

	return req, nil
}

// ListByUser returns the user's payout requests, newest first.
func (s *PayoutStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.PayoutRequest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+payoutColumns+` FROM payout_requests WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list payout requests: %w", err)
	}

	payouts, err := pgx.CollectRows(rows, scanPayout)
	if err != nil {
		return nil, fmt.Errorf("failed to scan payout requests: %w", err)
	}
	return payouts, nil
}

func scanPayout(row pgx.CollectableRow) (*models.PayoutRequest, error) {
	var (
		p      models.PayoutRequest
		amount *string
		status string
	)
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.CompanyID,
		&p.InvoiceKey,
		&amount,
		&p.Description,
		&status,
		&p.AdminNotes,
		&p.ProcessedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if amount != nil {
		d, err := decimal.NewFromString(*amount)
		if err != nil {
			return nil, fmt.Errorf("invalid payout amount %q: %w", *amount, err)
		}
		p.Amount = &d
	}
	p.Status = models.PayoutStatus(status)

	return &p, nil
}
