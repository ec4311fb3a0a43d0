package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/ownerportal/internal/models"
	"github.com/wolfeidau/ownerportal/internal/store"
)

const identityColumns = `id, email, role, invited_at, last_sign_in_at, created_at, updated_at`

// IdentityStore implements store.IdentityStore using PostgreSQL.
type IdentityStore struct {
	pool *pgxpool.Pool
}

// NewIdentityStore creates a new PostgreSQL-backed identity store.
func NewIdentityStore(pool *pgxpool.Pool) *IdentityStore {
	return &IdentityStore{pool: pool}
}

// Create inserts a new identity.
func (s *IdentityStore) Create(ctx context.Context, identity *models.Identity) error {
	query := `
		INSERT INTO identities (id, email, role, invited_at, last_sign_in_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		identity.ID,
		identity.Email,
		roleValue(identity.Role),
		identity.InvitedAt,
		identity.LastSignInAt,
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	if err != nil {
		return mapPostgresError(err)
	}

	log.Debug().Str("user_id", identity.ID.String()).Msg("Created identity")
	return nil
}

// Get retrieves an identity by ID.
func (s *IdentityStore) Get(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
	return scanIdentity(row)
}

// GetByEmail retrieves an identity by email, ignoring case.
func (s *IdentityStore) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE lower(email) = lower($1)`, email)
	return scanIdentity(row)
}

// SetRoleIfUnset writes role only when the stored claim is NULL or not a known role.
func (s *IdentityStore) SetRoleIfUnset(ctx context.Context, id uuid.UUID, role models.Role) (bool, error) {
	query := `
		UPDATE identities
		SET role = $2, updated_at = now()
		WHERE id = $1
		  AND (role IS NULL OR role NOT IN ('partner', 'admin'))
	`

	result, err := s.pool.Exec(ctx, query, id, roleValue(role))
	if err != nil {
		return false, fmt.Errorf("failed to set role: %w", mapPostgresError(err))
	}
	if result.RowsAffected() == 1 {
		return true, nil
	}

	// Nothing changed: either the identity is gone or someone set the role first.
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM identities WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check identity: %w", err)
	}
	if !exists {
		return false, store.ErrIdentityNotFound
	}
	return false, nil
}

// SetRole overwrites the stored role claim.
func (s *IdentityStore) SetRole(ctx context.Context, id uuid.UUID, role models.Role) error {
	result, err := s.pool.Exec(ctx, `UPDATE identities SET role = $2, updated_at = now() WHERE id = $1`, id, roleValue(role))
	if err != nil {
		return fmt.Errorf("failed to set role: %w", mapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return store.ErrIdentityNotFound
	}

	log.Debug().Str("user_id", id.String()).Stringer("role", role).Msg("Set identity role")
	return nil
}

// TouchSignIn records a successful sign in.
func (s *IdentityStore) TouchSignIn(ctx context.Context, id uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `UPDATE identities SET last_sign_in_at = $2 WHERE id = $1`, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record sign in: %w", err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrIdentityNotFound
	}
	return nil
}

// Delete hard-deletes an identity. Sessions and memberships cascade.
func (s *IdentityStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete identity: %w", mapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return store.ErrIdentityNotFound
	}

	log.Info().Str("user_id", id.String()).Msg("Deleted identity")
	return nil
}

func scanIdentity(row pgx.Row) (*models.Identity, error) {
	var (
		identity models.Identity
		role     *string
	)
	err := row.Scan(
		&identity.ID,
		&identity.Email,
		&role,
		&identity.InvitedAt,
		&identity.LastSignInAt,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	identity.Role = models.ParseRolePtr(role)
	return &identity, nil
}

// roleValue stores RoleUnset as NULL.
func roleValue(r models.Role) *string {
	if !r.IsSet() {
		return nil
	}
	s := string(r)
	return &s
}
