package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/ownerportal/internal/models"
)

// IdentityStore persists identity records and their role claim.
type IdentityStore interface {
	// Create creates a new identity.
	// Returns ErrIdentityAlreadyExists if the email is already registered.
	Create(ctx context.Context, identity *models.Identity) error

	// Get retrieves an identity by ID.
	// Returns ErrIdentityNotFound if the identity doesn't exist.
	Get(ctx context.Context, id uuid.UUID) (*models.Identity, error)

	// GetByEmail retrieves an identity by its (case-insensitive) email.
	GetByEmail(ctx context.Context, email string) (*models.Identity, error)

	// SetRoleIfUnset sets role only if the stored role is NULL or unrecognized.
	// Returns true if the row was changed.
	SetRoleIfUnset(ctx context.Context, id uuid.UUID, role models.Role) (bool, error)

	// SetRole overwrites the stored role.
	SetRole(ctx context.Context, id uuid.UUID, role models.Role) error

	// TouchSignIn records a successful sign in.
	TouchSignIn(ctx context.Context, id uuid.UUID) error

	// Delete hard-deletes an identity and its sessions.
	Delete(ctx context.Context, id uuid.UUID) error
}
