// Package provision lets admins create partner users inside an existing company.
package provision

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/ownerportal/internal/apperr"
	"github.com/wolfeidau/ownerportal/internal/auth"
	"github.com/wolfeidau/ownerportal/internal/identity"
	"github.com/wolfeidau/ownerportal/internal/models"
	"github.com/wolfeidau/ownerportal/internal/store"
	"github.com/wolfeidau/ownerportal/internal/telemetry"
	"github.com/wolfeidau/ownerportal/internal/timeout"
)

// Errors returned to callers. They never say which input was wrong or whether
// the email already had an account.
var (
	ErrInvalidRequest = apperr.New(apperr.ErrValidation, "invalid request")
	ErrFailed         = apperr.New(apperr.ErrUpstream, "unable to create user")
	ErrTimedOut       = apperr.New(apperr.ErrUpstreamTimeout, "request timed out")
)

// Identities is the part of the identity service used for provisioning.
type Identities interface {
	InviteUser(ctx context.Context, email string) (*models.Identity, error)
	SetRole(ctx context.Context, id uuid.UUID, role models.Role) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// CreateUserRequest is the admin's input.
type CreateUserRequest struct {
	Email     string `json:"email"`
	CompanyID string `json:"company_id"`
	Role      string `json:"role,omitempty"`
}

// Compensation records the cleanup attempted after a partial failure.
type Compensation struct {
	Attempted bool
	Err       error
}

// Result describes a provisioning run.
type Result struct {
	UserID       uuid.UUID
	Compensation Compensation
}

// Service provisions partner users.
type Service struct {
	identities Identities
	companies  store.CompanyStore
	members    store.MemberStore
	gate       *auth.Gate
	timeouts   timeout.Policy
}

// NewService creates a provisioning service.
func NewService(identities Identities, companies store.CompanyStore, members store.MemberStore, gate *auth.Gate, timeouts timeout.Policy) *Service {
	if gate == nil {
		gate = auth.NewGate(nil)
	}
	return &Service{
		identities: identities,
		companies:  companies,
		members:    members,
		gate:       gate,
		timeouts:   timeouts,
	}
}

// CreatePartnerUser invites email as a partner and links them to the company.
// If linking fails after the identity was created, the identity is deleted
// best-effort and the original failure is returned.
func (s *Service) CreatePartnerUser(ctx context.Context, admin *models.Principal, req CreateUserRequest) (Result, error) {
	if err := s.gate.Check(ctx, admin, auth.ActionCreateUser); err != nil {
		return Result{}, err
	}

	log := zerolog.Ctx(ctx).With().Str("admin_id", admin.ID.String()).Logger()

	email, companyID, role, err := req.validate()
	if err != nil {
		return Result{}, err
	}
	log = log.With().Str("company_id", companyID.String()).Logger()

	err = s.timeouts.Run(ctx, timeout.Query, func(ctx context.Context) error {
		_, err := s.companies.Get(ctx, companyID)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrCompanyNotFound) {
			log.Info().Msg("Provisioning rejected, company not found")
			return Result{}, ErrInvalidRequest
		}
		return Result{}, s.fail(ctx, log, "lookup company", err)
	}

	invited, err := s.identities.InviteUser(ctx, email)
	if err != nil {
		return Result{}, s.fail(ctx, log, "invite user", err)
	}

	result := Result{UserID: invited.ID}
	log = log.With().Str("user_id", invited.ID.String()).Logger()

	if err := s.link(ctx, admin, invited, companyID, role); err != nil {
		result.Compensation = s.compensate(ctx, log, invited.ID)
		return result, s.fail(ctx, log, "link user", err)
	}

	telemetry.Add(ctx, telemetry.GetMetrics().UsersProvisionedTotal, "member_role", string(role))
	log.Info().Str("member_role", string(role)).Msg("Provisioned partner user")
	return result, nil
}

func (s *Service) link(ctx context.Context, admin *models.Principal, invited *models.Identity, companyID uuid.UUID, role models.MemberRole) error {
	if err := s.identities.SetRole(ctx, invited.ID, models.RolePartner); err != nil {
		return err
	}

	now := time.Now()
	inviter := admin.ID
	member := &models.CompanyMember{
		ID:        uuid.Must(uuid.NewV7()),
		CompanyID: companyID,
		UserID:    invited.ID,
		Role:      role,
		IsActive:  true,
		InvitedBy: &inviter,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.timeouts.Run(ctx, timeout.Write, func(ctx context.Context) error {
		return s.members.Create(ctx, member)
	})
}

// compensate deletes the identity created by a failed run. Its outcome is
// only logged and reported in the Result.
func (s *Service) compensate(ctx context.Context, log zerolog.Logger, userID uuid.UUID) Compensation {
	err := s.identities.DeleteUser(context.WithoutCancel(ctx), userID)

	outcome := "deleted"
	if err != nil {
		outcome = "failed"
		log.Error().Err(err).Msg("Failed to delete identity after provisioning failure")
	} else {
		log.Warn().Msg("Deleted identity after provisioning failure")
	}
	telemetry.Add(ctx, telemetry.GetMetrics().CompensationsTotal, "outcome", outcome)

	return Compensation{Attempted: true, Err: err}
}

func (s *Service) fail(ctx context.Context, log zerolog.Logger, step string, err error) error {
	log.Error().Err(err).Str("step", step).Msg("Provisioning failed")
	telemetry.Add(ctx, telemetry.GetMetrics().ProvisionFailuresTotal, "step", step)

	if errors.Is(err, apperr.ErrUpstreamTimeout) {
		return ErrTimedOut
	}
	return ErrFailed
}

func (r CreateUserRequest) validate() (string, uuid.UUID, models.MemberRole, error) {
	email, err := identity.NormalizeEmail(r.Email)
	if err != nil {
		return "", uuid.Nil, "", ErrInvalidRequest
	}

	companyID, err := uuid.Parse(strings.TrimSpace(r.CompanyID))
	if err != nil || companyID == uuid.Nil {
		return "", uuid.Nil, "", ErrInvalidRequest
	}

	role, ok := models.ParseMemberRole(strings.TrimSpace(r.Role))
	if !ok {
		return "", uuid.Nil, "", ErrInvalidRequest
	}

	return email, companyID, role, nil
}
