// Package payout creates balance-funded payout requests and serves their
// invoice files.
package payout

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/wolfeidau/ownerportal/internal/apperr"
	"github.com/wolfeidau/ownerportal/internal/auth"
	"github.com/wolfeidau/ownerportal/internal/company"
	"github.com/wolfeidau/ownerportal/internal/models"
	"github.com/wolfeidau/ownerportal/internal/storage"
	"github.com/wolfeidau/ownerportal/internal/store"
	"github.com/wolfeidau/ownerportal/internal/telemetry"
	"github.com/wolfeidau/ownerportal/internal/timeout"
)

const (
	maxDescriptionLength = 1000

	// ActionInvoiceAccess names invoice reads for authorization and rate limiting.
	ActionInvoiceAccess = "invoice-access"
)

// ErrInvalidAmount is returned for amounts that are not positive money values.
var ErrInvalidAmount = apperr.New(apperr.ErrValidation, "invalid amount")

// ErrInvalidDescription is returned for overlong descriptions.
var ErrInvalidDescription = apperr.New(apperr.ErrValidation, "invalid description")

// ErrInvalidInvoicePath is returned for invoice keys outside any owner namespace.
var ErrInvalidInvoicePath = apperr.New(apperr.ErrValidation, "invalid invoice path")

// CreateRequest is a request to withdraw from the caller's available balance.
type CreateRequest struct {
	Amount      decimal.Decimal
	Description string
	Invoice     *Upload // optional
}

// Balance is the caller's company balance.
type Balance struct {
	CompanyID           string          `json:"companyId"`
	AvailableBalance    decimal.Decimal `json:"availableBalance"`
	PendingPayoutAmount decimal.Decimal `json:"pendingPayoutAmount"`
	Currency            string          `json:"currency"`
}

// Config configures the payout service.
type Config struct {
	Payouts  store.PayoutStore
	Resolver *company.Resolver
	Objects  storage.ObjectStore
	Gate     *auth.Gate
	Timeouts timeout.Policy

	// SignedURLTTL is the lifetime of invoice URLs. Default: 15 minutes.
	SignedURLTTL time.Duration
}

// Service implements the payout operations.
type Service struct {
	payouts  store.PayoutStore
	resolver *company.Resolver
	objects  storage.ObjectStore
	gate     *auth.Gate
	timeouts timeout.Policy
	urlTTL   time.Duration
	now      func() time.Time
}

// NewService creates a payout service.
func NewService(cfg Config) *Service {
	if cfg.Gate == nil {
		cfg.Gate = auth.NewGate(nil)
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = 15 * time.Minute
	}
	return &Service{
		payouts:  cfg.Payouts,
		resolver: cfg.Resolver,
		objects:  cfg.Objects,
		gate:     cfg.Gate,
		timeouts: cfg.Timeouts,
		urlTTL:   cfg.SignedURLTTL,
		now:      time.Now,
	}
}

// ParseAmount parses a positive amount with at most two decimal places.
func ParseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !validAmount(amount) {
		return decimal.Zero, ErrInvalidAmount
	}
	return amount, nil
}

// validAmount reports whether d is positive with whole cents.
func validAmount(d decimal.Decimal) bool {
	return d.IsPositive() && d.Equal(d.Round(2))
}

// CreateFromBalance debits the caller's company and records a pending payout
// request in one storage-side transaction. An invoice, if given, is stored
// first and is left in place if the transaction fails. Every call creates a
// new request.
func (s *Service) CreateFromBalance(ctx context.Context, p *models.Principal, req CreateRequest) (*models.PayoutRequest, error) {
	if err := s.gate.Check(ctx, p, auth.ActionCreatePayout); err != nil {
		return nil, err
	}

	if !validAmount(req.Amount) {
		return nil, s.reject(ctx, ErrInvalidAmount)
	}
	description := strings.TrimSpace(req.Description)
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return nil, s.reject(ctx, ErrInvalidDescription)
	}

	log := zerolog.Ctx(ctx).With().Str("user_id", p.ID.String()).Logger()

	var invoiceKey string
	if req.Invoice != nil {
		key, err := s.storeInvoice(ctx, p, req.Invoice)
		if err != nil {
			return nil, s.reject(ctx, err)
		}
		invoiceKey = key
	}

	payout, err := timeout.Do(ctx, s.timeouts, timeout.Write, func(ctx context.Context) (*models.PayoutRequest, error) {
		return s.payouts.CreateFromBalance(ctx, store.CreatePayoutParams{
			UserID:      p.ID,
			Amount:      req.Amount,
			InvoiceKey:  invoiceKey,
			Description: description,
		})
	})
	if err != nil {
		if invoiceKey != "" {
			telemetry.Add(ctx, telemetry.GetMetrics().InvoicesOrphanTotal)
			log.Warn().Str("invoice_key", invoiceKey).Msg("Invoice orphaned by failed payout")
		}
		log.Info().Err(err).Str("amount", req.Amount.String()).Msg("Payout rejected")
		return nil, s.reject(ctx, err)
	}

	telemetry.Add(ctx, telemetry.GetMetrics().PayoutsCreatedTotal)
	log.Info().
		Str("payout_id", payout.ID.String()).
		Str("company_id", payout.CompanyID.String()).
		Str("amount", req.Amount.String()).
		Msg("Payout requested")
	return payout, nil
}

func (s *Service) storeInvoice(ctx context.Context, p *models.Principal, upload *Upload) (string, error) {
	contentType, ext, err := upload.validate()
	if err != nil {
		return "", err
	}

	key, err := storage.NewKey(p.ID, ext, s.now())
	if err != nil {
		return "", err
	}

	err = s.timeouts.Run(ctx, timeout.Upload, func(ctx context.Context) error {
		return s.objects.Put(ctx, key, upload.Data, contentType)
	})
	if err != nil {
		return "", err
	}

	telemetry.Add(ctx, telemetry.GetMetrics().InvoicesStoredTotal, "content_type", contentType)
	return key, nil
}

func (s *Service) reject(ctx context.Context, err error) error {
	telemetry.Add(ctx, telemetry.GetMetrics().PayoutsRejectedTotal, "reason", apperr.Code(err))
	return err
}

// ListPayouts returns the caller's payout requests, newest first.
func (s *Service) ListPayouts(ctx context.Context, p *models.Principal) ([]*models.PayoutRequest, error) {
	if err := s.gate.Check(ctx, p, auth.ActionListPayouts); err != nil {
		return nil, err
	}
	return timeout.Do(ctx, s.timeouts, timeout.Query, func(ctx context.Context) ([]*models.PayoutRequest, error) {
		return s.payouts.ListByUser(ctx, p.ID)
	})
}

// Balance returns the balance of the caller's company.
func (s *Service) Balance(ctx context.Context, p *models.Principal) (*Balance, error) {
	if err := s.gate.Check(ctx, p, auth.ActionViewCompany); err != nil {
		return nil, err
	}
	c, err := s.resolver.Resolve(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &Balance{
		CompanyID:           c.ID.String(),
		AvailableBalance:    c.AvailableBalance,
		PendingPayoutAmount: c.PendingPayoutAmount,
		Currency:            c.Currency,
	}, nil
}

// InvoiceURL returns a short-lived URL for an invoice the caller owns.
func (s *Service) InvoiceURL(ctx context.Context, p *models.Principal, key string) (string, time.Time, error) {
	if err := s.checkInvoice(ctx, p, key); err != nil {
		return "", time.Time{}, err
	}

	expires := s.now().Add(s.urlTTL)
	url, err := timeout.Do(ctx, s.timeouts, timeout.Query, func(ctx context.Context) (string, error) {
		return s.objects.SignedURL(ctx, key, s.urlTTL)
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return url, expires, nil
}

// OpenInvoice returns the bytes of an invoice the caller owns. The caller
// must close the reader.
func (s *Service) OpenInvoice(ctx context.Context, p *models.Principal, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	if err := s.checkInvoice(ctx, p, key); err != nil {
		return nil, storage.ObjectInfo{}, err
	}

	// no timeout here: the body is streamed after this returns
	body, info, err := s.objects.Get(ctx, key)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	return body, info, nil
}

// InvoiceKeyFromURL maps a signed invoice URL back to its key.
func (s *Service) InvoiceKeyFromURL(rawURL string) (string, error) {
	key, err := s.objects.KeyFromURL(rawURL)
	if err != nil {
		return "", ErrInvalidInvoicePath
	}
	return key, nil
}

func (s *Service) checkInvoice(ctx context.Context, p *models.Principal, key string) error {
	if p == nil {
		return s.gate.Check(ctx, nil, auth.Action{Name: ActionInvoiceAccess})
	}
	owner, ok := storage.OwnerOf(key)
	if !ok {
		return ErrInvalidInvoicePath
	}
	return s.gate.Check(ctx, p, auth.OwnedResource(ActionInvoiceAccess, owner))
}

// UserMessage returns the message shown to the caller for a payout error.
// Only a fixed set of failures get a specific message.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, apperr.ErrExceedsBalance):
		return "amount exceeds available balance"
	case errors.Is(err, apperr.ErrNoCompany):
		return "no company found"
	case errors.Is(err, apperr.ErrInvalidFile):
		return "invalid file"
	case errors.Is(err, ErrInvalidAmount):
		return "amount must be a positive value"
	case errors.Is(err, apperr.ErrValidation):
		return "invalid request"
	case errors.Is(err, apperr.ErrRateLimited):
		return "too many requests, try again later"
	case errors.Is(err, apperr.ErrUpstreamTimeout):
		return "request timed out, try again"
	default:
		return "unable to process payout"
	}
}
