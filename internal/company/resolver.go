// Package company resolves the partner role and the company a partner owns,
// and serves the company profile.
package company

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/wolfeidau/ownerportal/internal/apperr"
	"github.com/wolfeidau/ownerportal/internal/models"
	"github.com/wolfeidau/ownerportal/internal/store"
	"github.com/wolfeidau/ownerportal/internal/telemetry"
	"github.com/wolfeidau/ownerportal/internal/timeout"
)

// Resolver finds or lazily creates the company owned by a user.
type Resolver struct {
	companies store.CompanyStore
	timeouts  timeout.Policy

	// newBackOff builds the policy for re-reading after losing a create race.
	newBackOff func() backoff.BackOff
	maxTries   uint
}

// NewResolver creates a company resolver.
func NewResolver(companies store.CompanyStore, timeouts timeout.Policy) *Resolver {
	return &Resolver{
		companies: companies,
		timeouts:  timeouts,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 25 * time.Millisecond
			b.MaxInterval = 500 * time.Millisecond
			return b
		},
		maxTries: 5,
	}
}

// Resolve returns the user's company without creating one.
// Returns apperr.ErrNoCompany when there is none.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID) (*models.Company, error) {
	company, err := timeout.Do(ctx, r.timeouts, timeout.Query, func(ctx context.Context) (*models.Company, error) {
		return r.lookup(ctx, userID)
	})
	if errors.Is(err, store.ErrCompanyNotFound) {
		return nil, apperr.ErrNoCompany
	}
	return company, err
}

// ResolveOrCreate returns the user's company, creating it on first use. The
// storage layer allows one company per owner; a caller that loses the create
// race re-reads and returns the winner's company.
func (r *Resolver) ResolveOrCreate(ctx context.Context, userID uuid.UUID, email string) (*models.Company, error) {
	company, err := timeout.Do(ctx, r.timeouts, timeout.Query, func(ctx context.Context) (*models.Company, error) {
		return r.lookup(ctx, userID)
	})
	if err == nil {
		return company, nil
	}
	if !errors.Is(err, store.ErrCompanyNotFound) {
		return nil, err
	}

	company = newCompany(userID, email)
	err = r.timeouts.Run(ctx, timeout.Write, func(ctx context.Context) error {
		return r.companies.Create(ctx, company)
	})
	switch {
	case err == nil:
		telemetry.Add(ctx, telemetry.GetMetrics().CompaniesCreatedTotal)
		zerolog.Ctx(ctx).Info().
			Str("user_id", userID.String()).
			Str("company_id", company.ID.String()).
			Msg("Created company")
		return company, nil
	case errors.Is(err, store.ErrCompanyAlreadyExists):
		zerolog.Ctx(ctx).Debug().Str("user_id", userID.String()).Msg("Lost company create race, re-reading")
		return r.rereadByOwner(ctx, userID)
	default:
		return nil, err
	}
}

func (r *Resolver) lookup(ctx context.Context, userID uuid.UUID) (*models.Company, error) {
	company, err := r.companies.GetByOwner(ctx, userID)
	if !errors.Is(err, store.ErrCompanyNotFound) {
		return company, err
	}

	// Deprecated: rows created before owner_id existed are only reachable
	// through cars or an owner membership.
	company, err = r.companies.FindLegacyByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if company.OwnerID != nil {
		// claimed by someone else; never expose it through the shim
		return nil, store.ErrCompanyNotFound
	}

	telemetry.Add(ctx, telemetry.GetMetrics().LegacyLinkageHits)
	zerolog.Ctx(ctx).Warn().
		Str("user_id", userID.String()).
		Str("company_id", company.ID.String()).
		Msg("Company resolved through legacy linkage")
	return company, nil
}

func (r *Resolver) rereadByOwner(ctx context.Context, userID uuid.UUID) (*models.Company, error) {
	read := func() (*models.Company, error) {
		company, err := timeout.Do(ctx, r.timeouts, timeout.Query, func(ctx context.Context) (*models.Company, error) {
			return r.companies.GetByOwner(ctx, userID)
		})
		if err != nil && !errors.Is(err, store.ErrCompanyNotFound) {
			return nil, backoff.Permanent(err)
		}
		return company, err
	}

	company, err := backoff.Retry(ctx, read,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(r.maxTries),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read company after create conflict: %w", err)
	}
	return company, nil
}

func newCompany(userID uuid.UUID, email string) *models.Company {
	now := time.Now()
	owner := userID
	return &models.Company{
		ID:                  uuid.Must(uuid.NewV7()),
		Name:                PlaceholderName(userID, email),
		OwnerID:             &owner,
		AvailableBalance:    decimal.Zero,
		PendingPayoutAmount: decimal.Zero,
		VerificationStatus:  models.VerificationPending,
		Locale:              models.DefaultLocale,
		Currency:            models.DefaultCurrency,
		Timezone:            models.DefaultTimezone,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// PlaceholderName names a company created before the partner filled in the
// profile: "<local-part>'s Company", or "Company <first 8 of id>" without email.
func PlaceholderName(userID uuid.UUID, email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	if local != "" {
		return local + "'s Company"
	}
	return "Company " + userID.String()[:8]
}
