package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/ownerportal/internal/apperr"
	"github.com/wolfeidau/ownerportal/internal/models"
	"github.com/wolfeidau/ownerportal/internal/ratelimit"
	"github.com/wolfeidau/ownerportal/internal/telemetry"
)

// Action describes what a caller is about to do.
type Action struct {
	// Name identifies the action in logs, metrics and rate limit rules.
	Name string

	RequireAdmin bool

	// RequireOwnership denies unless the principal is ResourceOwnerID.
	// uuid.Nil means the owner could not be determined and always denies.
	RequireOwnership bool
	ResourceOwnerID  uuid.UUID
}

// Named actions used by the services.
var (
	ActionAssignRole    = Action{Name: "assign-role"}
	ActionCreatePayout  = Action{Name: "create-payout"}
	ActionListPayouts   = Action{Name: "list-payouts"}
	ActionViewCompany   = Action{Name: "view-company"}
	ActionUpdateCompany = Action{Name: "update-company"}
	ActionCreateUser    = Action{Name: "admin-user", RequireAdmin: true}
)

// OwnedResource returns an action on a resource owned by owner.
func OwnedResource(name string, owner uuid.UUID) Action {
	return Action{Name: name, RequireOwnership: true, ResourceOwnerID: owner}
}

// DenyReason explains a denial.
type DenyReason string

const (
	ReasonUnauthenticated DenyReason = "unauthenticated"
	ReasonForbidden       DenyReason = "forbidden"
)

// Decision is the result of Authorize.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

func allow() Decision                 { return Decision{Allowed: true} }
func deny(reason DenyReason) Decision { return Decision{Reason: reason} }

// Err returns nil for Allow, otherwise an error matching the apperr kind.
func (d Decision) Err() error {
	switch {
	case d.Allowed:
		return nil
	case d.Reason == ReasonUnauthenticated:
		return apperr.ErrUnauthenticated
	default:
		return apperr.ErrForbidden
	}
}

// Authorize decides whether p may perform a. Rules are checked in order and
// the first match wins; anything not explicitly allowed is denied.
func Authorize(p *models.Principal, a Action) Decision {
	if p == nil || p.ID == uuid.Nil {
		return deny(ReasonUnauthenticated)
	}
	if a.RequireAdmin && p.Role != models.RoleAdmin {
		return deny(ReasonForbidden)
	}
	if a.RequireOwnership && (a.ResourceOwnerID == uuid.Nil || a.ResourceOwnerID != p.ID) {
		return deny(ReasonForbidden)
	}
	return allow()
}

// Gate runs the rate limiter and then Authorize. It is called by every
// mutating or sensitive read operation before touching storage.
type Gate struct {
	limiter *ratelimit.Limiter
}

// NewGate creates a gate. A nil limiter disables per-principal limiting.
func NewGate(limiter *ratelimit.Limiter) *Gate {
	return &Gate{limiter: limiter}
}

// Check returns nil when p may perform a. Hits are counted per principal and
// action before the decision so denied callers are limited too.
func (g *Gate) Check(ctx context.Context, p *models.Principal, a Action) error {
	if g.limiter != nil && p != nil {
		if err := g.limiter.Allow(ctx, a.Name, p.ID.String()); err != nil {
			telemetry.Add(ctx, telemetry.GetMetrics().RateLimitedTotal, "action", a.Name)
			return err
		}
	}

	d := Authorize(p, a)
	if d.Allowed {
		return nil
	}

	event := zerolog.Ctx(ctx).Warn().Str("action", a.Name).Str("reason", string(d.Reason))
	if p != nil {
		event = event.Str("user_id", p.ID.String()).Stringer("role", p.Role)
	}
	event.Msg("Authorization denied")

	telemetry.Add(ctx, telemetry.GetMetrics().AuthzDenialsTotal, "action", a.Name, "reason", string(d.Reason))
	return d.Err()
}
