package company

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/ownerportal/internal/apperr"
	"github.com/wolfeidau/ownerportal/internal/auth"
	"github.com/wolfeidau/ownerportal/internal/models"
	"github.com/wolfeidau/ownerportal/internal/telemetry"
)

// RoleAction reports what ResolveOrAssignRole did.
type RoleAction string

const (
	// ActionAssigned means the partner role was written by this call.
	ActionAssigned RoleAction = "assigned"
	// ActionVerified means the caller already was a partner.
	ActionVerified RoleAction = "verified"
	// ActionRejected means the caller holds another role, which is left alone.
	ActionRejected RoleAction = "rejected"
)

// RoleResult is the outcome of ResolveOrAssignRole.
type RoleResult struct {
	Role   models.Role
	Action RoleAction
}

// RoleStore is the part of the identity service the role resolver needs.
type RoleStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	SetRoleIfUnset(ctx context.Context, id uuid.UUID, role models.Role) (bool, error)
}

// RoleResolver assigns the partner role on first use.
type RoleResolver struct {
	identities RoleStore
	gate       *auth.Gate
}

// NewRoleResolver creates a role resolver.
func NewRoleResolver(identities RoleStore, gate *auth.Gate) *RoleResolver {
	if gate == nil {
		gate = auth.NewGate(nil)
	}
	return &RoleResolver{identities: identities, gate: gate}
}

// ResolveOrAssignRole returns the caller's role, setting it to partner when
// it is unset. An existing role is never changed and admin is never assigned.
// Safe to call repeatedly and concurrently.
func (r *RoleResolver) ResolveOrAssignRole(ctx context.Context, p *models.Principal) (RoleResult, error) {
	if err := r.gate.Check(ctx, p, auth.ActionAssignRole); err != nil {
		return RoleResult{}, err
	}

	if p.Role.IsSet() {
		return existing(p.Role), nil
	}

	changed, err := r.identities.SetRoleIfUnset(ctx, p.ID, models.RolePartner)
	if err != nil {
		return RoleResult{}, err
	}

	// The write may have been applied partially or by a concurrent caller;
	// trust only what reads back.
	identity, err := r.identities.GetUser(ctx, p.ID)
	if err != nil {
		return RoleResult{}, err
	}

	log := zerolog.Ctx(ctx)
	if !changed {
		if !identity.Role.IsSet() {
			log.Error().Str("user_id", p.ID.String()).Msg("Role still unset after conditional update")
			return RoleResult{}, apperr.ErrVerificationFailed
		}
		return existing(identity.Role), nil
	}

	if identity.Role != models.RolePartner {
		log.Error().
			Str("user_id", p.ID.String()).
			Stringer("role", identity.Role).
			Msg("Role verification failed after assignment")
		return RoleResult{}, apperr.ErrVerificationFailed
	}

	telemetry.Add(ctx, telemetry.GetMetrics().RoleAssignmentsTotal, "role", string(models.RolePartner))
	log.Info().Str("user_id", p.ID.String()).Msg("Assigned partner role")
	return RoleResult{Role: models.RolePartner, Action: ActionAssigned}, nil
}

func existing(role models.Role) RoleResult {
	if role == models.RolePartner {
		return RoleResult{Role: role, Action: ActionVerified}
	}
	return RoleResult{Role: role, Action: ActionRejected}
}
