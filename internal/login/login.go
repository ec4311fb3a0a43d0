// Package login signs users in through an OAuth provider or an invitation
// link and issues the opaque session cookie.
package login

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/ownerportal/internal/auth"
	httpx "github.com/wolfeidau/ownerportal/internal/http"
	"github.com/wolfeidau/ownerportal/internal/models"
	"github.com/wolfeidau/ownerportal/internal/ratelimit"
	"github.com/wolfeidau/ownerportal/internal/timeout"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const stateCookieName = "state"

// Rate limit endpoint names.
const (
	EndpointLogin        = "login"
	EndpointInviteAccept = "invite-accept"
)

// ErrNoVerifiedEmail is returned when the provider has no verified email for the user.
var ErrNoVerifiedEmail = errors.New("no verified email address")

// Identities is the part of the identity service used to sign users in.
type Identities interface {
	SignInWithEmail(ctx context.Context, email string) (*models.Identity, error)
	AcceptInvite(ctx context.Context, token string) (*models.Identity, error)
	CreateSession(ctx context.Context, userID uuid.UUID, userAgent, ip string) (*models.Session, error)
	EndSession(ctx context.Context, token string) error
}

// Config configures the OAuth provider and session cookies.
type Config struct {
	// Provider is "github" or "oidc". OIDC needs the three endpoint URLs.
	Provider     string
	ClientID     string
	ClientSecret string
	CallbackURL  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string

	SessionTTL time.Duration

	// InsecureCookies drops the Secure flag for local development over http.
	InsecureCookies bool

	// AfterLogin is where users land after signing in. Default: "/".
	AfterLogin string

	Timeouts timeout.Policy
	Limiter  *ratelimit.Limiter
}

// Handler serves the login endpoints.
type Handler struct {
	identities  Identities
	config      *oauth2.Config
	provider    string
	userInfoURL string
	sessionTTL  time.Duration
	secure      bool
	afterLogin  string
	timeouts    timeout.Policy
	limiter     *ratelimit.Limiter
}

// New creates the login handler.
func New(identities Identities, cfg Config) (*Handler, error) {
	if identities == nil {
		return nil, errors.New("identity service is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.CallbackURL == "" {
		return nil, errors.New("client ID, client secret, and callback URL are required")
	}
	if cfg.SessionTTL <= 0 {
		return nil, errors.New("session TTL must be greater than 0")
	}
	if cfg.AfterLogin == "" {
		cfg.AfterLogin = "/"
	}

	h := &Handler{
		identities: identities,
		provider:   cfg.Provider,
		sessionTTL: cfg.SessionTTL,
		secure:     !cfg.InsecureCookies,
		afterLogin: cfg.AfterLogin,
		timeouts:   cfg.Timeouts,
		limiter:    cfg.Limiter,
	}

	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.CallbackURL,
		Scopes:       cfg.Scopes,
	}

	switch cfg.Provider {
	case "github":
		oc.Endpoint = github.Endpoint
		if len(oc.Scopes) == 0 {
			oc.Scopes = []string{"user:email"}
		}
		h.userInfoURL = "https://api.github.com/user/emails"
	case "oidc":
		if cfg.AuthURL == "" || cfg.TokenURL == "" || cfg.UserInfoURL == "" {
			return nil, errors.New("oidc provider requires auth, token, and userinfo URLs")
		}
		oc.Endpoint = oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL}
		if len(oc.Scopes) == 0 {
			oc.Scopes = []string{"openid", "email"}
		}
		h.userInfoURL = cfg.UserInfoURL
	default:
		return nil, fmt.Errorf("unsupported oauth provider %q", cfg.Provider)
	}

	h.config = oc
	return h, nil
}

func (h *Handler) saveState(w http.ResponseWriter) string {
	state := rand.Text()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300, // 5 minutes - enough time for OAuth flow
	})

	return state
}

// LoginHandler redirects to the provider's consent page.
func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	zerolog.Ctx(r.Context()).Debug().Str("provider", h.provider).Msg("Initiating OAuth flow")

	state := h.saveState(w)
	http.Redirect(w, r, h.config.AuthCodeURL(state), http.StatusFound)
}

// CallbackHandler completes the OAuth flow and starts a session.
func (h *Handler) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := zerolog.Ctx(ctx)

	if !h.allow(w, r, EndpointLogin) {
		return
	}

	state := r.FormValue("state")
	code := r.FormValue("code")

	if state == "" || code == "" {
		log.Warn().Msg("OAuth callback missing state or code")
		http.Error(w, "Authentication failed", http.StatusBadRequest)
		return
	}

	cookie, err := r.Cookie(stateCookieName)
	if err != nil {
		log.Warn().Err(err).Msg("OAuth callback missing state cookie")
		http.Error(w, "Authentication failed", http.StatusBadRequest)
		return
	}

	if !validState(state, cookie.Value) {
		log.Warn().Msg("OAuth callback state mismatch")
		http.Error(w, "Authentication failed", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	var email string
	err = h.timeouts.Run(ctx, timeout.Login, func(ctx context.Context) error {
		token, err := h.config.Exchange(ctx, code)
		if err != nil {
			return fmt.Errorf("failed to exchange code: %w", err)
		}
		email, err = h.fetchEmail(ctx, token)
		return err
	})
	if err != nil {
		log.Warn().Err(err).Msg("OAuth sign in failed")
		http.Error(w, "Authentication failed", http.StatusBadRequest)
		return
	}

	identity, err := h.identities.SignInWithEmail(ctx, email)
	if err != nil {
		log.Error().Err(err).Msg("Failed to resolve identity")
		http.Error(w, "Authentication failed", http.StatusInternalServerError)
		return
	}

	if err := h.startSession(w, r, identity); err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, h.afterLogin, http.StatusFound)
}

// InviteAcceptHandler signs in the user named by a valid invitation token.
func (h *Handler) InviteAcceptHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.allow(w, r, EndpointInviteAccept) {
		return
	}

	identity, err := h.identities.AcceptInvite(ctx, r.URL.Query().Get("token"))
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Invitation rejected")
		http.Error(w, "Invitation is invalid or has expired", http.StatusBadRequest)
		return
	}

	if err := h.startSession(w, r, identity); err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, h.afterLogin, http.StatusFound)
}

// LogoutHandler ends the session and clears the cookie.
func (h *Handler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.identities.EndSession(r.Context(), cookie.Value); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Failed to end session")
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, identity *models.Identity) error {
	session, err := h.identities.CreateSession(r.Context(), identity.ID, r.UserAgent(), httpx.ClientIPFromRequest(r))
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to create session")
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    session.SessionID.String(),
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.sessionTTL.Seconds()),
	})

	zerolog.Ctx(r.Context()).Info().Str("user_id", identity.ID.String()).Msg("User signed in")
	return nil
}

func (h *Handler) allow(w http.ResponseWriter, r *http.Request, endpoint string) bool {
	if h.limiter == nil {
		return true
	}
	if err := h.limiter.Allow(r.Context(), endpoint, httpx.ClientIPFromRequest(r)); err != nil {
		httpx.WriteError(w, r, err, httpx.GenericMessage(http.StatusTooManyRequests))
		return false
	}
	return true
}

type providerEmail struct {
	Email         string `json:"email"`
	Primary       bool   `json:"primary"`
	Verified      bool   `json:"verified"`
	EmailVerified bool   `json:"email_verified"`
}

// fetchEmail returns the user's verified email from the provider.
func (h *Handler) fetchEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	client := h.config.Client(ctx, token)
	resp, err := client.Get(h.userInfoURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("user info endpoint returned HTTP %d", resp.StatusCode)
	}

	if h.provider == "github" {
		var emails []providerEmail
		if err := json.NewDecoder(resp.Body).Decode(&emails); err != nil {
			return "", fmt.Errorf("failed to decode user emails: %w", err)
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				return e.Email, nil
			}
		}
		return "", ErrNoVerifiedEmail
	}

	var info providerEmail
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("failed to decode user info: %w", err)
	}
	if info.Email == "" || !info.EmailVerified {
		return "", ErrNoVerifiedEmail
	}
	return info.Email, nil
}

// validState compares the callback state with the cookie in constant time.
func validState(got, want string) bool {
	return want != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
