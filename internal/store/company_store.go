package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/ownerportal/internal/models"
)

// CompanyStore defines the storage operations on companies.
// At most one company may exist per owner; implementations enforce this
// themselves rather than relying on callers.
type CompanyStore interface {
	// Create creates a new company.
	// Returns ErrCompanyAlreadyExists if the owner already has a company.
	Create(ctx context.Context, company *models.Company) error

	// Get retrieves a company by ID.
	Get(ctx context.Context, id uuid.UUID) (*models.Company, error)

	// GetByOwner retrieves the company owned by ownerID.
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Company, error)

	// FindLegacyByUser finds a company linked to userID through cars or an
	// owner membership. Only historical rows without owner_id are reachable this way.
	FindLegacyByUser(ctx context.Context, userID uuid.UUID) (*models.Company, error)

	// ApplyChanges writes field changes honoring each change's policy and
	// returns the stored company. The write only happens when the company has
	// no owner yet or is owned by userID; otherwise nothing is stored and
	// ErrCompanyNotOwned is returned.
	ApplyChanges(ctx context.Context, id, userID uuid.UUID, changes []models.FieldChange) (*models.Company, error)
}

// MemberStore defines the storage operations on company members.
type MemberStore interface {
	// Create returns ErrMemberAlreadyExists if the user is already linked to the company.
	Create(ctx context.Context, member *models.CompanyMember) error

	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*models.CompanyMember, error)
}
