package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wolfeidau/ownerportal/internal/store"
)

// Constraint names from migrations/1_initial_schema.sql.
const (
	constraintIdentityEmail = "idx_identities_email_lower"
	constraintCompanyOwner  = "idx_companies_owner_id"
	constraintMemberUnique  = "company_members_company_id_user_id_key"
	constraintMemberCompany = "company_members_company_id_fkey"
)

// payoutFailures maps messages raised by create_payout_from_balance to sentinels.
// Anything not listed stays an opaque upstream error.
var payoutFailures = []struct {
	substr string
	err    error
}{
	{substr: "exceeds available balance", err: store.ErrExceedsBalance},
	{substr: "no company found", err: store.ErrNoCompany},
	{substr: "invalid payout amount", err: store.ErrInvalidPayoutAmount},
}

// mapPostgresError maps PostgreSQL-specific errors to sentinel errors.
// Returns the original error if it's not a PostgreSQL error or doesn't match known patterns.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		switch pgErr.ConstraintName {
		case constraintIdentityEmail:
			return store.ErrIdentityAlreadyExists
		case constraintCompanyOwner:
			return store.ErrCompanyAlreadyExists
		case constraintMemberUnique:
			return store.ErrMemberAlreadyExists
		}
		return fmt.Errorf("unique constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.ForeignKeyViolation:
		if pgErr.ConstraintName == constraintMemberCompany {
			return store.ErrCompanyNotFound
		}
		return fmt.Errorf("foreign key violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.RaiseException:
		for _, f := range payoutFailures {
			if strings.Contains(pgErr.Message, f.substr) {
				return f.err
			}
		}
		return fmt.Errorf("procedure raised: %w", err)

	case pgerrcode.CheckViolation:
		return fmt.Errorf("check constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return fmt.Errorf("transaction conflict (retryable): %w", err)

	case pgerrcode.QueryCanceled:
		return fmt.Errorf("query canceled: %w", err)

	default:
		return fmt.Errorf("postgres error [%s]: %s: %w", pgErr.Code, pgErr.Message, err)
	}
}
