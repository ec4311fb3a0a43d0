package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/wolfeidau/ownerportal/internal/apperr"
)

const (
	inviteIssuer   = "ownerportal"
	inviteAudience = "invite"
)

// ErrInvalidInvite is returned for expired, tampered or foreign invitation tokens.
var ErrInvalidInvite = apperr.New(apperr.ErrUnauthenticated, "invalid invitation")

// InviteClaims are carried in an invitation token.
type InviteClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UserID returns the invited identity's ID.
func (c *InviteClaims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// InviteTokens issues and verifies HS256 invitation tokens.
type InviteTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewInviteTokens creates an issuer. The secret must be at least 32 bytes.
func NewInviteTokens(secret []byte, ttl time.Duration) (*InviteTokens, error) {
	if len(secret) < 32 {
		return nil, errors.New("invite signing secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &InviteTokens{secret: secret, ttl: ttl, now: time.Now}, nil
}

// Issue signs an invitation for the identity.
func (t *InviteTokens) Issue(userID uuid.UUID, email string) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)

	claims := &InviteClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    inviteIssuer,
			Audience:  jwt.ClaimStrings{inviteAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign invitation: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies an invitation token and returns its claims.
func (t *InviteTokens) Parse(token string) (*InviteClaims, error) {
	claims := &InviteClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(inviteIssuer),
		jwt.WithAudience(inviteAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInvite, err)
	}

	if _, err := claims.UserID(); err != nil {
		return nil, ErrInvalidInvite
	}
	return claims, nil
}
