package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the single authorization tag carried on an identity.
// The zero value is RoleUnset.
type Role string

const (
	RoleUnset   Role = ""
	RolePartner Role = "partner"
	RoleAdmin   Role = "admin"
)

// ParseRole converts the untyped role claim stored on an identity.
// Unrecognized values are treated as unset.
func ParseRole(s string) Role {
	switch Role(s) {
	case RolePartner:
		return RolePartner
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUnset
	}
}

// ParseRolePtr is ParseRole for nullable columns.
func ParseRolePtr(s *string) Role {
	if s == nil {
		return RoleUnset
	}
	return ParseRole(*s)
}

// IsSet returns true for partner and admin.
func (r Role) IsSet() bool {
	return r != RoleUnset
}

// String returns "unset" for the zero value so it reads well in logs.
func (r Role) String() string {
	if r == RoleUnset {
		return "unset"
	}
	return string(r)
}

// Identity is the identity record owned by the identity service.
type Identity struct {
	ID           uuid.UUID // UUIDv7
	Email        string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
	InvitedAt    *time.Time
	LastSignInAt *time.Time
}

// Principal returns the authenticated view of the identity.
func (i *Identity) Principal() *Principal {
	return &Principal{
		ID:    i.ID,
		Email: i.Email,
		Role:  i.Role,
	}
}

// Principal is an authenticated caller. It is always derived from a validated
// session, never from request input.
type Principal struct {
	ID    uuid.UUID
	Email string
	Role  Role
}

// IsAdmin returns true if the principal carries the admin role.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}
