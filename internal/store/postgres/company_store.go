package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/wolfeidau/ownerportal/internal/models"
	"github.com/wolfeidau/ownerportal/internal/store"
)

// Balances are read as text and parsed into decimal.Decimal to keep exact cents.
const companyColumns = `
	id, name, owner_id, email, phone,
	available_balance::text, pending_payout_amount::text,
	verification_status, locale, currency, timezone,
	created_at, updated_at`

// companyFieldColumns whitelists the columns ApplyChanges may write.
var companyFieldColumns = map[string]string{
	models.CompanyFieldName:     "name",
	models.CompanyFieldEmail:    "email",
	models.CompanyFieldPhone:    "phone",
	models.CompanyFieldLocale:   "locale",
	models.CompanyFieldCurrency: "currency",
	models.CompanyFieldTimezone: "timezone",
	models.CompanyFieldOwnerID:  "owner_id",
}

// CompanyStore implements store.CompanyStore using PostgreSQL.
type CompanyStore struct {
	pool *pgxpool.Pool
}

// NewCompanyStore creates a new PostgreSQL-backed company store.
func NewCompanyStore(pool *pgxpool.Pool) *CompanyStore {
	return &CompanyStore{pool: pool}
}

// Create inserts a company. A second company for the same owner fails on
// idx_companies_owner_id and returns ErrCompanyAlreadyExists.
func (s *CompanyStore) Create(ctx context.Context, company *models.Company) error {
	query := `
		INSERT INTO companies (
			id, name, owner_id, email, phone,
			available_balance, pending_payout_amount,
			verification_status, locale, currency, timezone,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.pool.Exec(ctx, query,
		company.ID,
		company.Name,
		company.OwnerID,
		company.Email,
		company.Phone,
		company.AvailableBalance.String(),
		company.PendingPayoutAmount.String(),
		string(company.VerificationStatus),
		company.Locale,
		company.Currency,
		company.Timezone,
		company.CreatedAt,
		company.UpdatedAt,
	)
	if err != nil {
		return mapPostgresError(err)
	}

	log.Debug().Str("company_id", company.ID.String()).Msg("Created company")
	return nil
}

// Get retrieves a company by ID.
func (s *CompanyStore) Get(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	return scanCompany(s.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id))
}

// GetByOwner retrieves the company owned by ownerID.
func (s *CompanyStore) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Company, error) {
	return scanCompany(s.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE owner_id = $1`, ownerID))
}

// FindLegacyByUser looks for an unowned company linked through cars first,
// then through an active owner membership.
func (s *CompanyStore) FindLegacyByUser(ctx context.Context, userID uuid.UUID) (*models.Company, error) {
	query := `
		WITH linked AS (
			SELECT company_id, 1 AS priority, created_at
			FROM cars
			WHERE owner_id = $1 AND company_id IS NOT NULL
			UNION ALL
			SELECT company_id, 2 AS priority, created_at
			FROM company_members
			WHERE user_id = $1 AND role = 'owner' AND is_active
		)
		SELECT ` + prefixed("c", companyColumns) + `
		FROM companies c
		JOIN linked l ON l.company_id = c.id
		WHERE c.owner_id IS NULL
		ORDER BY l.priority, l.created_at
		LIMIT 1
	`

	return scanCompany(s.pool.QueryRow(ctx, query, userID))
}

// ApplyChanges writes all changes in one UPDATE. OnlyIfNull fields are
// written as COALESCE(col, $n) so an existing value always wins. The WHERE
// clause only matches unowned rows or rows owned by userID.
func (s *CompanyStore) ApplyChanges(ctx context.Context, id, userID uuid.UUID, changes []models.FieldChange) (*models.Company, error) {
	if len(changes) == 0 {
		company, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if company.OwnerID != nil && *company.OwnerID != userID {
			return nil, store.ErrCompanyNotOwned
		}
		return company, nil
	}

	sets := make([]string, 0, len(changes)+1)
	args := []any{id, userID}
	for _, change := range changes {
		column, ok := companyFieldColumns[change.Field]
		if !ok {
			return nil, fmt.Errorf("%w: %s", store.ErrUnknownCompanyField, change.Field)
		}
		if err := checkFieldValue(change); err != nil {
			return nil, err
		}

		args = append(args, change.Value)
		placeholder := fmt.Sprintf("$%d", len(args))
		if change.Policy == models.OnlyIfNull {
			sets = append(sets, fmt.Sprintf("%s = COALESCE(%s, %s)", column, column, placeholder))
		} else {
			sets = append(sets, fmt.Sprintf("%s = %s", column, placeholder))
		}
	}
	sets = append(sets, "updated_at = now()")

	query := `UPDATE companies SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 AND (owner_id IS NULL OR owner_id = $2) RETURNING ` + companyColumns

	company, err := scanCompany(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, store.ErrCompanyNotFound) {
		// tell a missing row apart from one that belongs to someone else
		if _, getErr := s.Get(ctx, id); getErr == nil {
			return nil, store.ErrCompanyNotOwned
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	log.Debug().Str("company_id", id.String()).Int("fields", len(changes)).Msg("Updated company")
	return company, nil
}

// checkFieldValue rejects values whose Go type does not match the column.
func checkFieldValue(change models.FieldChange) error {
	switch change.Field {
	case models.CompanyFieldOwnerID:
		if _, ok := change.Value.(uuid.UUID); ok {
			return nil
		}
	default:
		if _, ok := change.Value.(string); ok {
			return nil
		}
	}
	return fmt.Errorf("%w: %s has type %T", store.ErrUnknownCompanyField, change.Field, change.Value)
}

func scanCompany(row pgx.Row) (*models.Company, error) {
	var (
		company          models.Company
		available        string
		pending          string
		verificationText string
	)

	err := row.Scan(
		&company.ID,
		&company.Name,
		&company.OwnerID,
		&company.Email,
		&company.Phone,
		&available,
		&pending,
		&verificationText,
		&company.Locale,
		&company.Currency,
		&company.Timezone,
		&company.CreatedAt,
		&company.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrCompanyNotFound
		}
		return nil, mapPostgresError(err)
	}

	if company.AvailableBalance, err = decimal.NewFromString(available); err != nil {
		return nil, fmt.Errorf("invalid available_balance %q: %w", available, err)
	}
	if company.PendingPayoutAmount, err = decimal.NewFromString(pending); err != nil {
		return nil, fmt.Errorf("invalid pending_payout_amount %q: %w", pending, err)
	}
	company.VerificationStatus = models.VerificationStatus(verificationText)

	return &company, nil
}

// prefixed qualifies each column in a column list with alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
