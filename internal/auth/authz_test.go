package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/ownerportal/internal/apperr"
	"github.com/wolfeidau/ownerportal/internal/models"
	"github.com/wolfeidau/ownerportal/internal/ratelimit"
)

func TestAuthorize(t *testing.T) {
	partner := &models.Principal{ID: uuid.New(), Email: "p@example.com", Role: models.RolePartner}
	admin := &models.Principal{ID: uuid.New(), Email: "a@example.com", Role: models.RoleAdmin}
	unset := &models.Principal{ID: uuid.New(), Email: "u@example.com"}

	tests := []struct {
		name      string
		principal *models.Principal
		action    Action
		allowed   bool
		reason    DenyReason
	}{
		{name: "no principal", principal: nil, action: ActionCreatePayout, reason: ReasonUnauthenticated},
		{name: "nil id", principal: &models.Principal{Role: models.RoleAdmin}, action: ActionCreatePayout, reason: ReasonUnauthenticated},
		{name: "no principal beats admin rule", principal: nil, action: ActionCreateUser, reason: ReasonUnauthenticated},
		{name: "partner on admin action", principal: partner, action: ActionCreateUser, reason: ReasonForbidden},
		{name: "unset role on admin action", principal: unset, action: ActionCreateUser, reason: ReasonForbidden},
		{name: "admin on admin action", principal: admin, action: ActionCreateUser, allowed: true},
		{name: "partner on plain action", principal: partner, action: ActionCreatePayout, allowed: true},
		{name: "owner of resource", principal: partner, action: OwnedResource("invoice", partner.ID), allowed: true},
		{name: "someone else's resource", principal: partner, action: OwnedResource("invoice", uuid.New()), reason: ReasonForbidden},
		{name: "admin is not the owner", principal: admin, action: OwnedResource("invoice", partner.ID), reason: ReasonForbidden},
		{name: "unknown owner", principal: partner, action: OwnedResource("invoice", uuid.Nil), reason: ReasonForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Authorize(tt.principal, tt.action)
			require.Equal(t, tt.allowed, d.Allowed)
			require.Equal(t, tt.reason, d.Reason)
			if tt.allowed {
				require.NoError(t, d.Err())
			} else {
				require.Error(t, d.Err())
			}
		})
	}
}

func TestDecision_Err(t *testing.T) {
	require.ErrorIs(t, deny(ReasonUnauthenticated).Err(), apperr.ErrUnauthenticated)
	require.ErrorIs(t, deny(ReasonForbidden).Err(), apperr.ErrForbidden)
	require.ErrorIs(t, Decision{}.Err(), apperr.ErrForbidden)
}

func TestGate_Check(t *testing.T) {
	ctx := context.Background()
	partner := &models.Principal{ID: uuid.New(), Role: models.RolePartner}

	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryCounter(), ratelimit.Rules{
		Default: ratelimit.Rule{Limit: 2, Window: time.Minute},
	})
	gate := NewGate(limiter)

	require.NoError(t, gate.Check(ctx, partner, ActionCreatePayout))
	require.NoError(t, gate.Check(ctx, partner, ActionCreatePayout))
	require.ErrorIs(t, gate.Check(ctx, partner, ActionCreatePayout), apperr.ErrRateLimited)

	// other actions have their own counter
	require.NoError(t, gate.Check(ctx, partner, ActionListPayouts))

	require.ErrorIs(t, gate.Check(ctx, nil, ActionListPayouts), apperr.ErrUnauthenticated)
	require.ErrorIs(t, gate.Check(ctx, partner, ActionCreateUser), apperr.ErrForbidden)

	require.NoError(t, NewGate(nil).Check(ctx, partner, ActionCreatePayout))
}
