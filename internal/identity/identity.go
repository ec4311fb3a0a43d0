// Package identity is the identity service: sessions, invitations and the
// role claim stored on each identity.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/ownerportal/internal/apperr"
	"github.com/wolfeidau/ownerportal/internal/auth"
	"github.com/wolfeidau/ownerportal/internal/models"
	"github.com/wolfeidau/ownerportal/internal/notify"
	"github.com/wolfeidau/ownerportal/internal/store"
	"github.com/wolfeidau/ownerportal/internal/timeout"
)

// Config configures the identity service.
type Config struct {
	Identities store.IdentityStore
	Sessions   store.SessionStore
	Invites    *auth.InviteTokens
	Notifier   notify.Notifier
	Timeouts   timeout.Policy

	// SessionTTL is the lifetime of a new session. Default: 24 hours.
	SessionTTL time.Duration

	// BaseURL is the public URL of the portal, used in invitation links.
	BaseURL string
}

// Service implements the identity operations used by the rest of the portal.
type Service struct {
	identities store.IdentityStore
	sessions   store.SessionStore
	invites    *auth.InviteTokens
	notifier   notify.Notifier
	timeouts   timeout.Policy
	sessionTTL time.Duration
	baseURL    string
}

// NewService creates an identity service.
func NewService(cfg Config) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.LogNotifier{}
	}
	return &Service{
		identities: cfg.Identities,
		sessions:   cfg.Sessions,
		invites:    cfg.Invites,
		notifier:   cfg.Notifier,
		timeouts:   cfg.Timeouts,
		sessionTTL: cfg.SessionTTL,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// ValidateSession resolves an opaque session token to a principal. The role
// is read from the identity row on every call.
func (s *Service) ValidateSession(ctx context.Context, token string) (*models.Principal, error) {
	sessionID, err := uuid.Parse(token)
	if err != nil {
		return nil, apperr.ErrUnauthenticated
	}

	var identity *models.Identity
	err = s.timeouts.Run(ctx, timeout.Auth, func(ctx context.Context) error {
		session, err := s.sessions.Get(ctx, sessionID)
		if err != nil {
			return err
		}

		identity, err = s.identities.Get(ctx, session.UserID)
		if err != nil {
			if errors.Is(err, store.ErrIdentityNotFound) {
				return apperr.ErrUnauthenticated
			}
			return err
		}

		if err := s.sessions.UpdateLastUsed(ctx, sessionID); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to touch session")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return identity.Principal(), nil
}

// CreateSession starts a session for the user and returns it. The session ID
// is the only value given to the browser.
func (s *Service) CreateSession(ctx context.Context, userID uuid.UUID, userAgent, ip string) (*models.Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	now := time.Now()
	session := &models.Session{
		SessionID:  id,
		UserID:     userID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.sessionTTL),
		LastUsedAt: now,
		UserAgent:  userAgent,
		IPAddress:  ip,
	}

	err = s.timeouts.Run(ctx, timeout.Write, func(ctx context.Context) error {
		return s.sessions.Create(ctx, session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// EndSession deletes the session behind token. Unknown tokens are ignored.
func (s *Service) EndSession(ctx context.Context, token string) error {
	sessionID, err := uuid.Parse(token)
	if err != nil {
		return nil
	}

	err = s.timeouts.Run(ctx, timeout.Write, func(ctx context.Context) error {
		return s.sessions.Delete(ctx, sessionID)
	})
	if errors.Is(err, store.ErrSessionNotFound) {
		return nil
	}
	return err
}

// GetUser reads an identity.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	return timeout.Do(ctx, s.timeouts, timeout.Auth, func(ctx context.Context) (*models.Identity, error) {
		return s.identities.Get(ctx, id)
	})
}

// SetRoleIfUnset writes role only while the stored claim is unset.
func (s *Service) SetRoleIfUnset(ctx context.Context, id uuid.UUID, role models.Role) (bool, error) {
	return timeout.Do(ctx, s.timeouts, timeout.Write, func(ctx context.Context) (bool, error) {
		return s.identities.SetRoleIfUnset(ctx, id, role)
	})
}

// SetRole overwrites the role claim. Admin-only callers.
func (s *Service) SetRole(ctx context.Context, id uuid.UUID, role models.Role) error {
	return s.timeouts.Run(ctx, timeout.Write, func(ctx context.Context) error {
		return s.identities.SetRole(ctx, id, role)
	})
}

// DeleteUser hard-deletes an identity and its sessions.
func (s *Service) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return s.timeouts.Run(ctx, timeout.Write, func(ctx context.Context) error {
		ended, err := s.sessions.DeleteByUser(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to end sessions: %w", err)
		}
		if ended > 0 {
			zerolog.Ctx(ctx).Info().Str("user_id", id.String()).Int("sessions", ended).Msg("Ended sessions of deleted user")
		}
		return s.identities.Delete(ctx, id)
	})
}

// SweepSessions deletes expired sessions every interval until ctx is done.
// A non-positive interval disables sweeping.
func (s *Service) SweepSessions(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Service) sweepOnce(ctx context.Context) int {
	var deleted int
	err := s.timeouts.Run(ctx, timeout.Write, func(ctx context.Context) error {
		var err error
		deleted, err = s.sessions.DeleteExpired(ctx)
		return err
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to delete expired sessions")
		return 0
	}
	if deleted > 0 {
		zerolog.Ctx(ctx).Debug().Int("deleted", deleted).Msg("Deleted expired sessions")
	}
	return deleted
}

// InviteUser creates an identity without a role and queues an invitation
// carrying a signed accept link. No password is created here.
func (s *Service) InviteUser(ctx context.Context, email string) (*models.Identity, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate user id: %w", err)
	}

	now := time.Now()
	identity := &models.Identity{
		ID:        id,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
		InvitedAt: &now,
	}

	err = s.timeouts.Run(ctx, timeout.Write, func(ctx context.Context) error {
		return s.identities.Create(ctx, identity)
	})
	if err != nil {
		return nil, err
	}

	token, expires, err := s.invites.Issue(identity.ID, identity.Email)
	if err == nil {
		err = s.timeouts.Run(ctx, timeout.Write, func(ctx context.Context) error {
			return s.notifier.NotifyInvitation(ctx, notify.Invitation{
				UserID:    identity.ID,
				Email:     identity.Email,
				AcceptURL: s.acceptURL(token),
				ExpiresAt: expires,
			})
		})
	}
	if err != nil {
		// An identity nobody can activate is useless; remove it.
		if delErr := s.DeleteUser(context.WithoutCancel(ctx), identity.ID); delErr != nil {
			zerolog.Ctx(ctx).Error().Err(delErr).Str("user_id", identity.ID.String()).Msg("Failed to remove identity after invitation failure")
		}
		return nil, fmt.Errorf("invitation not sent: %w", errors.Join(err, apperr.ErrUpstream))
	}

	zerolog.Ctx(ctx).Info().Str("user_id", identity.ID.String()).Msg("Invited user")
	return identity, nil
}

// AcceptInvite verifies an invitation token and returns the invited identity.
func (s *Service) AcceptInvite(ctx context.Context, token string) (*models.Identity, error) {
	claims, err := s.invites.Parse(token)
	if err != nil {
		return nil, err
	}
	userID, _ := claims.UserID()

	identity, err := s.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrIdentityNotFound) {
			return nil, auth.ErrInvalidInvite
		}
		return nil, err
	}
	if !strings.EqualFold(identity.Email, claims.Email) {
		return nil, auth.ErrInvalidInvite
	}

	s.touchSignIn(ctx, identity.ID)
	return identity, nil
}

// SignInWithEmail returns the identity for an email verified by the OAuth
// provider, creating it with an unset role on first sign in.
func (s *Service) SignInWithEmail(ctx context.Context, email string) (*models.Identity, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	identity, err := s.getOrCreate(ctx, email, timeout.Login)
	if err != nil {
		return nil, err
	}

	s.touchSignIn(ctx, identity.ID)
	return identity, nil
}

// BootstrapAdmin creates or promotes the identity for email to admin. This is
// the only path that grants the admin role.
func (s *Service) BootstrapAdmin(ctx context.Context, email string) (*models.Identity, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	identity, err := s.getOrCreate(ctx, email, timeout.Write)
	if err != nil {
		return nil, err
	}

	if err := s.SetRole(ctx, identity.ID, models.RoleAdmin); err != nil {
		return nil, err
	}
	identity.Role = models.RoleAdmin

	zerolog.Ctx(ctx).Info().Str("user_id", identity.ID.String()).Msg("Granted admin role")
	return identity, nil
}

func (s *Service) getOrCreate(ctx context.Context, email string, class timeout.Class) (*models.Identity, error) {
	return timeout.Do(ctx, s.timeouts, class, func(ctx context.Context) (*models.Identity, error) {
		identity, err := s.identities.GetByEmail(ctx, email)
		if err == nil {
			return identity, nil
		}
		if !errors.Is(err, store.ErrIdentityNotFound) {
			return nil, err
		}

		now := time.Now()
		identity = &models.Identity{
			ID:        uuid.Must(uuid.NewV7()),
			Email:     email,
			CreatedAt: now,
			UpdatedAt: now,
		}
		err = s.identities.Create(ctx, identity)
		if errors.Is(err, store.ErrIdentityAlreadyExists) {
			// concurrent first sign in
			return s.identities.GetByEmail(ctx, email)
		}
		if err != nil {
			return nil, err
		}
		return identity, nil
	})
}

func (s *Service) touchSignIn(ctx context.Context, id uuid.UUID) {
	err := s.timeouts.Run(ctx, timeout.Write, func(ctx context.Context) error {
		return s.identities.TouchSignIn(ctx, id)
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("user_id", id.String()).Msg("Failed to record sign in")
	}
}

func (s *Service) acceptURL(token string) string {
	return s.baseURL + "/invite/accept?token=" + url.QueryEscape(token)
}

// ErrInvalidEmail is returned for addresses that are not a bare addr-spec.
var ErrInvalidEmail = apperr.New(apperr.ErrValidation, "invalid email")

// NormalizeEmail accepts a bare address (no display name) and lowercases it.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}
