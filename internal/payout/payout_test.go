package payout

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/ownerportal/internal/apperr"
	"github.com/wolfeidau/ownerportal/internal/company"
	"github.com/wolfeidau/ownerportal/internal/models"
	"github.com/wolfeidau/ownerportal/internal/storage"
	"github.com/wolfeidau/ownerportal/internal/store/memory"
	"github.com/wolfeidau/ownerportal/internal/timeout"
)

var pdfBytes = []byte("%PDF-1.7\n1 0 obj\n<< /Type /Catalog >>\nendobj\n")

type fixture struct {
	svc       *Service
	companies *memory.CompanyStore
	payouts   *memory.PayoutStore
	objects   *storage.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	companies := memory.NewCompanyStore()
	objects, err := storage.NewMemoryStore("http://localhost:8080/files", []byte("secret"))
	require.NoError(t, err)

	f := &fixture{
		companies: companies,
		payouts:   memory.NewPayoutStore(companies),
		objects:   objects,
	}
	policy := timeout.DefaultPolicy()
	f.svc = NewService(Config{
		Payouts:  f.payouts,
		Resolver: company.NewResolver(companies, policy),
		Objects:  objects,
		Timeouts: policy,
	})
	return f
}

// partnerWithBalance creates a partner owning a company with the given balance.
func (f *fixture) partnerWithBalance(t *testing.T, balance string) *models.Principal {
	t.Helper()

	p := &models.Principal{ID: uuid.Must(uuid.NewV7()), Email: "jane@example.com", Role: models.RolePartner}
	owner := p.ID
	c := &models.Company{
		ID:                 uuid.Must(uuid.NewV7()),
		Name:               "Jane Cars",
		OwnerID:            &owner,
		VerificationStatus: models.VerificationVerified,
		Currency:           models.DefaultCurrency,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
	require.NoError(t, f.companies.Create(context.Background(), c))
	require.NoError(t, f.companies.SetBalance(c.ID, balance))
	return p
}

func (f *fixture) available(t *testing.T, p *models.Principal) string {
	t.Helper()
	b, err := f.svc.Balance(context.Background(), p)
	require.NoError(t, err)
	return b.AvailableBalance.StringFixed(2)
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  bool
	}{
		{in: "500", want: "500"},
		{in: " 0.01 ", want: "0.01"},
		{in: "12.50", want: "12.5"},
		{in: "0", err: true},
		{in: "-5", err: true},
		{in: "1.001", err: true},
		{in: "abc", err: true},
		{in: "", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.err {
				require.ErrorIs(t, err, apperr.ErrValidation)
				return
			}
			require.NoError(t, err)
			require.True(t, amount(tt.want).Equal(got))
		})
	}
}

func TestCreateFromBalance_exactBalanceThenOneCent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.partnerWithBalance(t, "500.00")

	payout, err := f.svc.CreateFromBalance(ctx, p, CreateRequest{Amount: amount("500"), Description: "March"})
	require.NoError(t, err)
	require.Equal(t, models.PayoutPending, payout.Status)
	require.True(t, payout.Amount.Equal(amount("500")))
	require.Equal(t, "March", payout.Description)
	require.Equal(t, "0.00", f.available(t, p))

	_, err = f.svc.CreateFromBalance(ctx, p, CreateRequest{Amount: amount("0.01")})
	require.ErrorIs(t, err, apperr.ErrExceedsBalance)
	require.Equal(t, "amount exceeds available balance", UserMessage(err))
	require.Equal(t, "0.00", f.available(t, p))

	list, err := f.svc.ListPayouts(ctx, p)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestCreateFromBalance_notIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.partnerWithBalance(t, "100")

	req := CreateRequest{Amount: amount("30"), Description: "same"}
	first, err := f.svc.CreateFromBalance(ctx, p, req)
	require.NoError(t, err)
	second, err := f.svc.CreateFromBalance(ctx, p, req)
	require.NoError(t, err)

	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, "40.00", f.available(t, p))

	b, err := f.svc.Balance(ctx, p)
	require.NoError(t, err)
	require.True(t, b.PendingPayoutAmount.Equal(amount("60")))
}

func TestCreateFromBalance_rejectsNonPositiveBeforeStorage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// no company: a storage call would report NoCompany instead
	p := &models.Principal{ID: uuid.New(), Role: models.RolePartner}

	for _, a := range []string{"0", "-10"} {
		_, err := f.svc.CreateFromBalance(ctx, p, CreateRequest{Amount: amount(a)})
		require.ErrorIs(t, err, ErrInvalidAmount)
	}
}

func TestCreateFromBalance_rejectsFractionalCents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.partnerWithBalance(t, "100.00")

	for _, a := range []string{"0.005", "1.234", "99.999"} {
		_, err := f.svc.CreateFromBalance(ctx, p, CreateRequest{Amount: amount(a)})
		require.ErrorIs(t, err, ErrInvalidAmount, a)
	}

	b, err := f.svc.Balance(ctx, p)
	require.NoError(t, err)
	require.True(t, b.AvailableBalance.Equal(amount("100")), b.AvailableBalance.String())
	require.True(t, b.PendingPayoutAmount.IsZero())

	list, err := f.svc.ListPayouts(ctx, p)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestBalance_hidesCompanyOwnedByAnotherUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.partnerWithBalance(t, "250.00")
	owned, err := f.companies.GetByOwner(ctx, owner.ID)
	require.NoError(t, err)

	other := &models.Principal{ID: uuid.New(), Role: models.RolePartner}
	f.companies.LinkCar(other.ID, owned.ID)

	_, err = f.svc.Balance(ctx, other)
	require.ErrorIs(t, err, apperr.ErrNoCompany)
}

func TestCreateFromBalance_noCompany(t *testing.T) {
	f := newFixture(t)
	p := &models.Principal{ID: uuid.New(), Role: models.RolePartner}

	_, err := f.svc.CreateFromBalance(context.Background(), p, CreateRequest{Amount: amount("1")})
	require.ErrorIs(t, err, apperr.ErrNoCompany)
	require.Equal(t, "no company found", UserMessage(err))
}

func TestCreateFromBalance_failedInsertLeavesBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.partnerWithBalance(t, "100")

	f.payouts.FailNextInsert(errors.New("relation \"payout_requests\" does not exist"))

	_, err := f.svc.CreateFromBalance(ctx, p, CreateRequest{Amount: amount("10")})
	require.Error(t, err)
	require.Equal(t, "unable to process payout", UserMessage(err))
	require.Equal(t, "100.00", f.available(t, p))

	list, err := f.svc.ListPayouts(ctx, p)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestCreateFromBalance_withInvoice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.partnerWithBalance(t, "100")

	payout, err := f.svc.CreateFromBalance(ctx, p, CreateRequest{
		Amount:  amount("10"),
		Invoice: &Upload{Filename: "inv.pdf", ContentType: "application/pdf", Data: pdfBytes},
	})
	require.NoError(t, err)
	require.True(t, storage.OwnedBy(payout.InvoiceKey, p.ID))

	body, info, err := f.svc.OpenInvoice(ctx, p, payout.InvoiceKey)
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Equal(t, pdfBytes, data)
	require.Equal(t, "application/pdf", info.ContentType)
}

func TestCreateFromBalance_invoiceStoredEvenWhenPayoutFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.partnerWithBalance(t, "5")

	_, err := f.svc.CreateFromBalance(ctx, p, CreateRequest{
		Amount:  amount("10"),
		Invoice: &Upload{ContentType: "application/pdf", Data: pdfBytes},
	})
	require.ErrorIs(t, err, apperr.ErrExceedsBalance)
	require.Equal(t, "5.00", f.available(t, p))
}

func TestCreateFromBalance_invalidInvoice(t *testing.T) {
	pngHeader := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	tests := []struct {
		name   string
		upload *Upload
	}{
		{name: "empty", upload: &Upload{ContentType: "application/pdf"}},
		{name: "too large", upload: &Upload{ContentType: "application/pdf", Data: append(append([]byte{}, pdfBytes...), make([]byte, MaxInvoiceSize)...)}},
		{name: "unsupported type", upload: &Upload{ContentType: "text/plain", Data: []byte("hello")}},
		{name: "declared pdf is png", upload: &Upload{ContentType: "application/pdf", Data: pngHeader}},
		{name: "declared png is html", upload: &Upload{ContentType: "image/png", Data: []byte("<html><script></script></html>")}},
		{name: "malformed type", upload: &Upload{ContentType: "image/", Data: pngHeader}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			p := f.partnerWithBalance(t, "100")

			_, err := f.svc.CreateFromBalance(context.Background(), p, CreateRequest{Amount: amount("1"), Invoice: tt.upload})
			require.ErrorIs(t, err, apperr.ErrInvalidFile)
			require.Equal(t, "invalid file", UserMessage(err))
			require.Equal(t, "100.00", f.available(t, p))
		})
	}
}

func TestInvoiceAccess_ownership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.partnerWithBalance(t, "100")
	other := &models.Principal{ID: uuid.New(), Role: models.RolePartner}

	payout, err := f.svc.CreateFromBalance(ctx, owner, CreateRequest{
		Amount:  amount("1"),
		Invoice: &Upload{ContentType: "application/pdf", Data: pdfBytes},
	})
	require.NoError(t, err)

	signed, expires, err := f.svc.InvoiceURL(ctx, owner, payout.InvoiceKey)
	require.NoError(t, err)
	require.True(t, expires.After(time.Now()))

	// a signed URL maps back to a key only its uploader may open
	key, err := f.svc.InvoiceKeyFromURL(signed)
	require.NoError(t, err)
	require.Equal(t, payout.InvoiceKey, key)

	_, _, err = f.svc.OpenInvoice(ctx, other, key)
	require.ErrorIs(t, err, apperr.ErrForbidden)
	_, _, err = f.svc.InvoiceURL(ctx, other, key)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, _, err = f.svc.OpenInvoice(ctx, owner, owner.ID.String()+"/../"+other.ID.String()+"/x.pdf")
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, _, err = f.svc.OpenInvoice(ctx, owner, owner.ID.String()+"/missing.pdf")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, _, err = f.svc.OpenInvoice(ctx, nil, key)
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestUserMessage_hidesBackendText(t *testing.T) {
	err := errors.New(`duplicate key value violates unique constraint "payout_requests_pkey"`)
	require.Equal(t, "unable to process payout", UserMessage(err))
}
