package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wolfeidau/ownerportal/internal/apperr"
	"github.com/wolfeidau/ownerportal/internal/auth"
	"github.com/wolfeidau/ownerportal/internal/company"
	httpx "github.com/wolfeidau/ownerportal/internal/http"
	"github.com/wolfeidau/ownerportal/internal/models"
	"github.com/wolfeidau/ownerportal/internal/payout"
	"github.com/wolfeidau/ownerportal/internal/provision"
)

const (
	maxJSONBody = 64 << 10
	// room for the multipart envelope and text fields
	maxPayoutBody = payout.MaxInvoiceSize + 1<<20
)

var errInvalidBody = apperr.New(apperr.ErrValidation, "invalid request body")

type assignRoleResponse struct {
	Success bool   `json:"success"`
	Role    string `json:"role"`
	Action  string `json:"action"`
}

func (s *Server) assignRole(w http.ResponseWriter, r *http.Request) {
	result, err := s.cfg.Roles.ResolveOrAssignRole(r.Context(), auth.PrincipalFromContext(r.Context()))
	if err != nil {
		httpx.WriteError(w, r, err, "")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, assignRoleResponse{
		Success: true,
		Role:    result.Role.String(),
		Action:  string(result.Action),
	})
}

type successResponse struct {
	Success bool `json:"success"`
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req provision.CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, provision.ErrInvalidRequest, "")
		return
	}

	if _, err := s.cfg.Provision.CreatePartnerUser(r.Context(), auth.PrincipalFromContext(r.Context()), req); err != nil {
		httpx.WriteError(w, r, err, "")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, successResponse{Success: true})
}

type createPayoutResponse struct {
	Success  bool   `json:"success"`
	PayoutID string `json:"payoutId"`
}

func (s *Server) createPayout(w http.ResponseWriter, r *http.Request) {
	req, err := readPayoutForm(w, r)
	if err != nil {
		httpx.WriteError(w, r, err, payout.UserMessage(err))
		return
	}

	created, err := s.cfg.Payouts.CreateFromBalance(r.Context(), auth.PrincipalFromContext(r.Context()), req)
	if err != nil {
		httpx.WriteError(w, r, err, payout.UserMessage(err))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, createPayoutResponse{Success: true, PayoutID: created.ID.String()})
}

func readPayoutForm(w http.ResponseWriter, r *http.Request) (payout.CreateRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPayoutBody)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return payout.CreateRequest{}, apperr.ErrInvalidFile
		}
		return payout.CreateRequest{}, errInvalidBody
	}

	amount, err := payout.ParseAmount(r.FormValue("amount"))
	if err != nil {
		return payout.CreateRequest{}, err
	}
	req := payout.CreateRequest{
		Amount:      amount,
		Description: r.FormValue("description"),
	}

	file, header, err := r.FormFile("invoice")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return req, nil
	case err != nil:
		return payout.CreateRequest{}, apperr.ErrInvalidFile
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, payout.MaxInvoiceSize+1))
	if err != nil {
		return payout.CreateRequest{}, fmt.Errorf("failed to read invoice: %w", err)
	}
	req.Invoice = &payout.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}
	return req, nil
}

type payoutView struct {
	ID          string           `json:"id"`
	CompanyID   string           `json:"companyId"`
	Amount      *decimal.Decimal `json:"amount"`
	Description string           `json:"description"`
	Status      string           `json:"status"`
	InvoicePath string           `json:"invoicePath,omitempty"`
	AdminNotes  *string          `json:"adminNotes,omitempty"`
	ProcessedAt *time.Time       `json:"processedAt,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

type listPayoutsResponse struct {
	Success bool            `json:"success"`
	Payouts []payoutView    `json:"payouts"`
	Balance *payout.Balance `json:"balance,omitempty"`
}

func (s *Server) listPayouts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := auth.PrincipalFromContext(ctx)

	payouts, err := s.cfg.Payouts.ListPayouts(ctx, p)
	if err != nil {
		httpx.WriteError(w, r, err, "")
		return
	}

	resp := listPayoutsResponse{Success: true, Payouts: make([]payoutView, 0, len(payouts))}
	for _, pr := range payouts {
		resp.Payouts = append(resp.Payouts, newPayoutView(pr))
	}

	// no company yet means no balance, not an error
	balance, err := s.cfg.Payouts.Balance(ctx, p)
	switch {
	case err == nil:
		resp.Balance = balance
	case !errors.Is(err, apperr.ErrNoCompany):
		httpx.WriteError(w, r, err, "")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}

func newPayoutView(pr *models.PayoutRequest) payoutView {
	return payoutView{
		ID:          pr.ID.String(),
		CompanyID:   pr.CompanyID.String(),
		Amount:      pr.Amount,
		Description: pr.Description,
		Status:      string(pr.Status),
		InvoicePath: pr.InvoiceKey,
		AdminNotes:  pr.AdminNotes,
		ProcessedAt: pr.ProcessedAt,
		CreatedAt:   pr.CreatedAt,
	}
}

// invoiceKey reads the path parameter, which is either a storage key or a
// signed URL previously handed out for one.
func (s *Server) invoiceKey(r *http.Request) (string, error) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		return "", payout.ErrInvalidInvoicePath
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return s.cfg.Payouts.InvoiceKeyFromURL(path)
	}
	return path, nil
}

func (s *Server) invoice(w http.ResponseWriter, r *http.Request) {
	key, err := s.invoiceKey(r)
	if err != nil {
		httpx.WriteError(w, r, err, "")
		return
	}

	body, info, err := s.cfg.Payouts.OpenInvoice(r.Context(), auth.PrincipalFromContext(r.Context()), key)
	if err != nil {
		httpx.WriteError(w, r, err, "")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Content-Disposition", "inline")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, no-store")
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

type invoiceURLResponse struct {
	Success   bool      `json:"success"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) invoiceURL(w http.ResponseWriter, r *http.Request) {
	key, err := s.invoiceKey(r)
	if err != nil {
		httpx.WriteError(w, r, err, "")
		return
	}

	url, expires, err := s.cfg.Payouts.InvoiceURL(r.Context(), auth.PrincipalFromContext(r.Context()), key)
	if err != nil {
		httpx.WriteError(w, r, err, "")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, invoiceURLResponse{Success: true, URL: url, ExpiresAt: expires})
}

type companyView struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Email               *string         `json:"email"`
	Phone               *string         `json:"phone"`
	AvailableBalance    decimal.Decimal `json:"availableBalance"`
	PendingPayoutAmount decimal.Decimal `json:"pendingPayoutAmount"`
	VerificationStatus  string          `json:"verificationStatus"`
	Locale              string          `json:"locale"`
	Currency            string          `json:"currency"`
	Timezone            string          `json:"timezone"`
}

type companyResponse struct {
	Success bool        `json:"success"`
	Company companyView `json:"company"`
}

func newCompanyResponse(c *models.Company) companyResponse {
	return companyResponse{Success: true, Company: companyView{
		ID:                  c.ID.String(),
		Name:                c.Name,
		Email:               c.Email,
		Phone:               c.Phone,
		AvailableBalance:    c.AvailableBalance,
		PendingPayoutAmount: c.PendingPayoutAmount,
		VerificationStatus:  string(c.VerificationStatus),
		Locale:              c.Locale,
		Currency:            c.Currency,
		Timezone:            c.Timezone,
	}}
}

func (s *Server) getCompany(w http.ResponseWriter, r *http.Request) {
	c, err := s.cfg.Profiles.GetProfile(r.Context(), auth.PrincipalFromContext(r.Context()))
	if err != nil {
		httpx.WriteError(w, r, err, "")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newCompanyResponse(c))
}

func (s *Server) updateCompany(w http.ResponseWriter, r *http.Request) {
	var upd company.Update
	if err := decodeJSON(w, r, &upd); err != nil {
		httpx.WriteError(w, r, errInvalidBody, "")
		return
	}

	c, err := s.cfg.Profiles.UpdateProfile(r.Context(), auth.PrincipalFromContext(r.Context()), upd)
	if err != nil {
		httpx.WriteError(w, r, err, "")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newCompanyResponse(c))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
