package company

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/ownerportal/internal/apperr"
	"github.com/wolfeidau/ownerportal/internal/models"
	"github.com/wolfeidau/ownerportal/internal/store/memory"
	"github.com/wolfeidau/ownerportal/internal/timeout"
)

func ptr(s string) *string { return &s }

func newProfileService(t *testing.T) (*ProfileService, *memory.CompanyStore) {
	t.Helper()
	companies := memory.NewCompanyStore()
	policy := timeout.DefaultPolicy()
	return NewProfileService(companies, NewResolver(companies, policy), nil, policy), companies
}

func partner() *models.Principal {
	return &models.Principal{ID: uuid.Must(uuid.NewV7()), Email: "jane@example.com", Role: models.RolePartner}
}

func TestUpdateProfile_createsCompanyOnFirstSave(t *testing.T) {
	ctx := context.Background()
	svc, _ := newProfileService(t)
	p := partner()

	_, err := svc.GetProfile(ctx, p)
	require.ErrorIs(t, err, apperr.ErrNoCompany)

	company, err := svc.UpdateProfile(ctx, p, Update{Name: ptr("  Jane Cars  "), Currency: ptr("usd")})
	require.NoError(t, err)
	require.Equal(t, "Jane Cars", company.Name)
	require.Equal(t, "USD", company.Currency)
	require.True(t, company.OwnedBy(p.ID))

	got, err := svc.GetProfile(ctx, p)
	require.NoError(t, err)
	require.Equal(t, company.ID, got.ID)
}

func TestUpdateProfile_phoneIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	svc, _ := newProfileService(t)
	p := partner()

	company, err := svc.UpdateProfile(ctx, p, Update{Phone: ptr("+33 1 23 45 67 89")})
	require.NoError(t, err)
	require.Equal(t, "+33 1 23 45 67 89", *company.Phone)

	company, err = svc.UpdateProfile(ctx, p, Update{Phone: ptr("+44 20 7946 0000"), Name: ptr("Renamed")})
	require.NoError(t, err)
	require.Equal(t, "+33 1 23 45 67 89", *company.Phone)
	require.Equal(t, "Renamed", company.Name)
}

func TestUpdateProfile_claimsLegacyCompany(t *testing.T) {
	ctx := context.Background()
	svc, companies := newProfileService(t)
	p := partner()

	legacy := &models.Company{ID: uuid.New(), Name: "Old Garage", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, companies.Create(ctx, legacy))
	companies.LinkCar(p.ID, legacy.ID)

	company, err := svc.UpdateProfile(ctx, p, Update{Email: ptr("Garage@Example.com")})
	require.NoError(t, err)
	require.Equal(t, legacy.ID, company.ID)
	require.True(t, company.OwnedBy(p.ID))
	require.Equal(t, "garage@example.com", *company.Email)

	owned, err := companies.GetByOwner(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, legacy.ID, owned.ID)
}

func TestProfile_linkedNonOwnerCannotReadOrChange(t *testing.T) {
	ctx := context.Background()
	svc, companies := newProfileService(t)
	owner := partner()
	other := partner()

	owned, err := svc.UpdateProfile(ctx, owner, Update{Name: ptr("Owner Cars")})
	require.NoError(t, err)
	companies.LinkCar(other.ID, owned.ID)

	_, err = svc.GetProfile(ctx, other)
	require.ErrorIs(t, err, apperr.ErrNoCompany)

	// the shim no longer resolves it, so other gets a company of their own
	created, err := svc.UpdateProfile(ctx, other, Update{Name: ptr("Hijacked")})
	require.NoError(t, err)
	require.NotEqual(t, owned.ID, created.ID)

	stored, err := companies.Get(ctx, owned.ID)
	require.NoError(t, err)
	require.Equal(t, "Owner Cars", stored.Name)
	require.True(t, stored.OwnedBy(owner.ID))
}

// claimingStore lets another user claim the legacy company right after the
// caller's lookup found it unowned.
type claimingStore struct {
	*memory.CompanyStore
	claimer uuid.UUID
}

func (s *claimingStore) FindLegacyByUser(ctx context.Context, userID uuid.UUID) (*models.Company, error) {
	company, err := s.CompanyStore.FindLegacyByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	_, err = s.CompanyStore.ApplyChanges(ctx, company.ID, s.claimer, []models.FieldChange{
		change(models.CompanyFieldOwnerID, s.claimer),
	})
	return company, err
}

func TestUpdateProfile_refusesCompanyClaimedConcurrently(t *testing.T) {
	ctx := context.Background()
	companies := &claimingStore{CompanyStore: memory.NewCompanyStore(), claimer: uuid.New()}
	policy := timeout.DefaultPolicy()
	svc := NewProfileService(companies, NewResolver(companies, policy), nil, policy)
	p := partner()

	legacy := &models.Company{ID: uuid.New(), Name: "Old Garage", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, companies.Create(ctx, legacy))
	companies.LinkCar(p.ID, legacy.ID)

	_, err := svc.UpdateProfile(ctx, p, Update{Name: ptr("Hijacked")})
	require.ErrorIs(t, err, apperr.ErrForbidden)

	stored, err := companies.Get(ctx, legacy.ID)
	require.NoError(t, err)
	require.Equal(t, "Old Garage", stored.Name)
	require.True(t, stored.OwnedBy(companies.claimer))
}

func TestUpdateProfile_validation(t *testing.T) {
	tests := []struct {
		name string
		upd  Update
	}{
		{name: "empty name", upd: Update{Name: ptr("   ")}},
		{name: "bad email", upd: Update{Email: ptr("Jane <jane@example.com>")}},
		{name: "bad phone", upd: Update{Phone: ptr("call me")}},
		{name: "short phone", upd: Update{Phone: ptr("123")}},
		{name: "bad currency", upd: Update{Currency: ptr("EURO")}},
		{name: "bad locale", upd: Update{Locale: ptr("e")}},
		{name: "bad timezone", upd: Update{Timezone: ptr("Europe/Paris; DROP")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, companies := newProfileService(t)
			p := partner()

			_, err := svc.UpdateProfile(context.Background(), p, tt.upd)
			require.ErrorIs(t, err, apperr.ErrValidation)

			// validation happens before the company is created
			_, err = companies.GetByOwner(context.Background(), p.ID)
			require.Error(t, err)
		})
	}
}

func TestGetProfile_unauthenticated(t *testing.T) {
	svc, _ := newProfileService(t)
	_, err := svc.GetProfile(context.Background(), nil)
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)
}
