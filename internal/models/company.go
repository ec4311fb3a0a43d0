package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VerificationStatus of a company profile.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

// Default settings applied to companies created on first use.
const (
	DefaultLocale   = "en"
	DefaultCurrency = "EUR"
	DefaultTimezone = "Europe/Paris"
)

// Company is the business entity a partner owns. It is the unit of balance
// and resource ownership.
type Company struct {
	ID                  uuid.UUID
	Name                string
	OwnerID             *uuid.UUID // set once, then immutable
	Email               *string
	Phone               *string // write-once
	AvailableBalance    decimal.Decimal
	PendingPayoutAmount decimal.Decimal
	VerificationStatus  VerificationStatus
	Locale              string
	Currency            string
	Timezone            string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// OwnedBy returns true if the company's owner is userID.
func (c *Company) OwnedBy(userID uuid.UUID) bool {
	return c.OwnerID != nil && *c.OwnerID == userID
}

// MemberRole is the role of a user inside a company.
type MemberRole string

const (
	MemberRoleOwner  MemberRole = "owner"
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

// ParseMemberRole parses a member role, defaulting empty input to member.
func ParseMemberRole(s string) (MemberRole, bool) {
	switch MemberRole(s) {
	case "":
		return MemberRoleMember, true
	case MemberRoleOwner, MemberRoleAdmin, MemberRoleMember:
		return MemberRole(s), true
	default:
		return "", false
	}
}

// CompanyMember links an identity to a company.
type CompanyMember struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
	UserID    uuid.UUID
	Role      MemberRole
	IsActive  bool
	InvitedBy *uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}
