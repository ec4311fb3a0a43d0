package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/ownerportal/internal/models"
)

// MemberStore implements store.MemberStore using PostgreSQL.
type MemberStore struct {
	pool *pgxpool.Pool
}

func NewMemberStore(pool *pgxpool.Pool) *MemberStore {
	return &MemberStore{pool: pool}
}

// Create links a user to a company.
func (s *MemberStore) Create(ctx context.Context, member *models.CompanyMember) error {
	query := `
		INSERT INTO company_members (id, company_id, user_id, role, is_active, invited_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		member.ID,
		member.CompanyID,
		member.UserID,
		string(member.Role),
		member.IsActive,
		member.InvitedBy,
		member.CreatedAt,
		member.UpdatedAt,
	)
	if err != nil {
		return mapPostgresError(err)
	}

	log.Debug().
		Str("company_id", member.CompanyID.String()).
		Str("user_id", member.UserID.String()).
		Str("role", string(member.Role)).
		Msg("Created company member")

	return nil
}

// ListByCompany returns members of a company ordered by creation time.
func (s *MemberStore) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*models.CompanyMember, error) {
	query := `
		SELECT id, company_id, user_id, role, is_active, invited_by, created_at, updated_at
		FROM company_members
		WHERE company_id = $1
		ORDER BY created_at
	`

	rows, err := s.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list company members: %w", err)
	}

	members, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.CompanyMember, error) {
		var (
			m    models.CompanyMember
			role string
		)
		if err := row.Scan(&m.ID, &m.CompanyID, &m.UserID, &role, &m.IsActive, &m.InvitedBy, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.Role = models.MemberRole(role)
		return &m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan company members: %w", err)
	}

	return members, nil
}
