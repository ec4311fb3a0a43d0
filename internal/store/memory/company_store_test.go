package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/ownerportal/internal/models"
	"github.com/wolfeidau/ownerportal/internal/store"
)

func newCompany(t *testing.T, owner *uuid.UUID) *models.Company {
	t.Helper()

	id, err := uuid.NewV7()
	require.NoError(t, err)

	now := time.Now()
	return &models.Company{
		ID:                 id,
		Name:               "Test Rentals",
		OwnerID:            owner,
		VerificationStatus: models.VerificationPending,
		Locale:             models.DefaultLocale,
		Currency:           models.DefaultCurrency,
		Timezone:           models.DefaultTimezone,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func TestCompanyStore_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("second company for same owner is rejected", func(t *testing.T) {
		st := NewCompanyStore()
		owner := uuid.New()

		require.NoError(t, st.Create(ctx, newCompany(t, &owner)))

		err := st.Create(ctx, newCompany(t, &owner))
		require.ErrorIs(t, err, store.ErrCompanyAlreadyExists)
	})

	t.Run("companies without owner do not collide", func(t *testing.T) {
		st := NewCompanyStore()

		require.NoError(t, st.Create(ctx, newCompany(t, nil)))
		require.NoError(t, st.Create(ctx, newCompany(t, nil)))
	})

	t.Run("get by owner", func(t *testing.T) {
		st := NewCompanyStore()
		owner := uuid.New()
		company := newCompany(t, &owner)
		require.NoError(t, st.Create(ctx, company))

		got, err := st.GetByOwner(ctx, owner)
		require.NoError(t, err)
		require.Equal(t, company.ID, got.ID)

		_, err = st.GetByOwner(ctx, uuid.New())
		require.ErrorIs(t, err, store.ErrCompanyNotFound)
	})
}

func TestCompanyStore_ApplyChanges(t *testing.T) {
	ctx := context.Background()
	st := NewCompanyStore()
	company := newCompany(t, nil)
	require.NoError(t, st.Create(ctx, company))

	owner := uuid.New()
	updated, err := st.ApplyChanges(ctx, company.ID, owner, []models.FieldChange{
		{Field: models.CompanyFieldPhone, Value: "+33100000000", Policy: models.OnlyIfNull},
		{Field: models.CompanyFieldName, Value: "Renamed", Policy: models.Overwrite},
		{Field: models.CompanyFieldOwnerID, Value: owner, Policy: models.OnlyIfNull},
	})
	require.NoError(t, err)
	require.Equal(t, "+33100000000", *updated.Phone)
	require.Equal(t, "Renamed", updated.Name)
	require.True(t, updated.OwnedBy(owner))

	// write-once fields keep their first value
	updated, err = st.ApplyChanges(ctx, company.ID, owner, []models.FieldChange{
		{Field: models.CompanyFieldPhone, Value: "+33199999999", Policy: models.OnlyIfNull},
		{Field: models.CompanyFieldOwnerID, Value: uuid.New(), Policy: models.OnlyIfNull},
	})
	require.NoError(t, err)
	require.Equal(t, "+33100000000", *updated.Phone)
	require.True(t, updated.OwnedBy(owner))

	byOwner, err := st.GetByOwner(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, company.ID, byOwner.ID)

	_, err = st.ApplyChanges(ctx, company.ID, owner, []models.FieldChange{
		{Field: "available_balance", Value: "100", Policy: models.Overwrite},
	})
	require.ErrorIs(t, err, store.ErrUnknownCompanyField)
}

func TestCompanyStore_ApplyChanges_refusesOtherOwner(t *testing.T) {
	ctx := context.Background()
	st := NewCompanyStore()
	owner := uuid.New()
	company := newCompany(t, &owner)
	require.NoError(t, st.Create(ctx, company))

	intruder := uuid.New()
	_, err := st.ApplyChanges(ctx, company.ID, intruder, []models.FieldChange{
		{Field: models.CompanyFieldName, Value: "Hijacked", Policy: models.Overwrite},
		{Field: models.CompanyFieldOwnerID, Value: intruder, Policy: models.OnlyIfNull},
	})
	require.ErrorIs(t, err, store.ErrCompanyNotOwned)

	got, err := st.Get(ctx, company.ID)
	require.NoError(t, err)
	require.Equal(t, "Test Rentals", got.Name)
	require.True(t, got.OwnedBy(owner))
}

func TestCompanyStore_FindLegacyByUser(t *testing.T) {
	ctx := context.Background()
	st := NewCompanyStore()
	members := NewMemberStore(st)

	carCompany := newCompany(t, nil)
	require.NoError(t, st.Create(ctx, carCompany))
	carOwner := uuid.New()
	st.LinkCar(carOwner, carCompany.ID)

	got, err := st.FindLegacyByUser(ctx, carOwner)
	require.NoError(t, err)
	require.Equal(t, carCompany.ID, got.ID)

	memberCompany := newCompany(t, nil)
	require.NoError(t, st.Create(ctx, memberCompany))
	memberOwner := uuid.New()
	require.NoError(t, members.Create(ctx, &models.CompanyMember{
		ID:        uuid.New(),
		CompanyID: memberCompany.ID,
		UserID:    memberOwner,
		Role:      models.MemberRoleOwner,
		IsActive:  true,
	}))

	got, err = st.FindLegacyByUser(ctx, memberOwner)
	require.NoError(t, err)
	require.Equal(t, memberCompany.ID, got.ID)

	_, err = st.FindLegacyByUser(ctx, uuid.New())
	require.ErrorIs(t, err, store.ErrCompanyNotFound)
}

func TestCompanyStore_FindLegacyByUser_skipsOwnedCompanies(t *testing.T) {
	ctx := context.Background()
	st := NewCompanyStore()
	members := NewMemberStore(st)

	owner := uuid.New()
	company := newCompany(t, &owner)
	require.NoError(t, st.Create(ctx, company))

	carOwner := uuid.New()
	st.LinkCar(carOwner, company.ID)
	_, err := st.FindLegacyByUser(ctx, carOwner)
	require.ErrorIs(t, err, store.ErrCompanyNotFound)

	memberOwner := uuid.New()
	require.NoError(t, members.Create(ctx, &models.CompanyMember{
		ID:        uuid.New(),
		CompanyID: company.ID,
		UserID:    memberOwner,
		Role:      models.MemberRoleOwner,
		IsActive:  true,
	}))
	_, err = st.FindLegacyByUser(ctx, memberOwner)
	require.ErrorIs(t, err, store.ErrCompanyNotFound)
}

func TestMemberStore_Create(t *testing.T) {
	ctx := context.Background()
	st := NewCompanyStore()
	members := NewMemberStore(st)
	company := newCompany(t, nil)
	require.NoError(t, st.Create(ctx, company))

	member := &models.CompanyMember{
		ID:        uuid.New(),
		CompanyID: company.ID,
		UserID:    uuid.New(),
		Role:      models.MemberRoleMember,
		IsActive:  true,
	}
	require.NoError(t, members.Create(ctx, member))

	dup := *member
	dup.ID = uuid.New()
	require.ErrorIs(t, members.Create(ctx, &dup), store.ErrMemberAlreadyExists)

	require.ErrorIs(t, members.Create(ctx, &models.CompanyMember{
		ID:        uuid.New(),
		CompanyID: uuid.New(),
		UserID:    uuid.New(),
	}), store.ErrCompanyNotFound)

	list, err := members.ListByCompany(ctx, company.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
