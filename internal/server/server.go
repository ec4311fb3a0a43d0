// Package server exposes the portal operations over HTTP.
package server

import (
	"net/http"

	"filippo.io/csrf"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/ownerportal/internal/auth"
	"github.com/wolfeidau/ownerportal/internal/company"
	httpx "github.com/wolfeidau/ownerportal/internal/http"
	"github.com/wolfeidau/ownerportal/internal/logger"
	"github.com/wolfeidau/ownerportal/internal/login"
	"github.com/wolfeidau/ownerportal/internal/payout"
	"github.com/wolfeidau/ownerportal/internal/provision"
	"github.com/wolfeidau/ownerportal/internal/ratelimit"
)

// Config wires the services behind the HTTP surface.
type Config struct {
	Sessions  auth.SessionResolver
	Roles     *company.RoleResolver
	Profiles  *company.ProfileService
	Payouts   *payout.Service
	Provision *provision.Service

	// Login is optional; without it the sign-in routes are not registered.
	Login *login.Handler

	// Files serves signed object URLs when objects are kept in memory.
	Files http.Handler

	// Limiter applies the per client IP and route limits. Nil disables them.
	Limiter *ratelimit.Limiter

	ClientIP    httpx.ClientIP
	CORSOrigins []string
	Logger      zerolog.Logger
}

// Server is the portal HTTP server.
type Server struct {
	cfg Config
}

// New creates a server.
func New(cfg Config) *Server {
	return &Server{cfg: cfg}
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() (http.Handler, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if s.cfg.Login != nil {
		mux.HandleFunc("GET /login", s.cfg.Login.LoginHandler)
		mux.HandleFunc("GET /oauth/callback", s.cfg.Login.CallbackHandler)
		mux.HandleFunc("POST /logout", s.cfg.Login.LogoutHandler)
		mux.HandleFunc("GET /invite/accept", s.cfg.Login.InviteAcceptHandler)
	}

	if s.cfg.Files != nil {
		mux.Handle("GET /files/", s.cfg.Files)
	}

	session := auth.SessionMiddleware(s.cfg.Sessions)
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.Handle(pattern, session(s.limit(endpoint, h)))
	}

	route("POST /assign-role", "assign-role", s.assignRole)
	route("POST /admin/create-user", "admin-user", s.createUser)
	route("POST /payouts", "create-payout", s.createPayout)
	route("GET /payouts", "list-payouts", s.listPayouts)
	route("GET /payouts/invoice", payout.ActionInvoiceAccess, s.invoice)
	route("GET /payouts/invoice-url", payout.ActionInvoiceAccess, s.invoiceURL)
	route("GET /company", "view-company", s.getCompany)
	route("PATCH /company", "update-company", s.updateCompany)

	protection := csrf.New()
	for _, origin := range s.cfg.CORSOrigins {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			return nil, err
		}
	}

	var handler http.Handler = mux
	handler = protection.Handler(handler)
	handler = logger.Requests(s.cfg.Logger, httpx.ClientIPFromRequest)(handler)
	handler = s.cfg.ClientIP.Middleware()(handler)
	handler = cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}).Handler(handler)

	return gzhttp.GzipHandler(handler), nil
}

// limit counts requests per client IP and route. Principal-level limits are
// applied separately by the authorization gate.
func (s *Server) limit(endpoint string, next http.HandlerFunc) http.Handler {
	if s.cfg.Limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.cfg.Limiter.Allow(r.Context(), endpoint, "ip:"+httpx.ClientIPFromRequest(r)); err != nil {
			httpx.WriteError(w, r, err, "")
			return
		}
		next(w, r)
	})
}
