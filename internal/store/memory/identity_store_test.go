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

func TestIdentityStore(t *testing.T) {
	ctx := context.Background()
	st := NewIdentityStore()

	identity := &models.Identity{
		ID:        uuid.New(),
		Email:     "Owner@Example.com",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, st.Create(ctx, identity))

	t.Run("email is unique case-insensitively", func(t *testing.T) {
		err := st.Create(ctx, &models.Identity{ID: uuid.New(), Email: "owner@example.com"})
		require.ErrorIs(t, err, store.ErrIdentityAlreadyExists)
	})

	t.Run("set role if unset only writes once", func(t *testing.T) {
		changed, err := st.SetRoleIfUnset(ctx, identity.ID, models.RolePartner)
		require.NoError(t, err)
		require.True(t, changed)

		changed, err = st.SetRoleIfUnset(ctx, identity.ID, models.RoleAdmin)
		require.NoError(t, err)
		require.False(t, changed)

		got, err := st.GetByEmail(ctx, "owner@example.com")
		require.NoError(t, err)
		require.Equal(t, models.RolePartner, got.Role)
	})

	t.Run("unrecognized claim reads as unset and can be replaced", func(t *testing.T) {
		other := &models.Identity{ID: uuid.New(), Email: "legacy@example.com"}
		require.NoError(t, st.Create(ctx, other))
		st.SetRawRole(other.ID, "superuser")

		got, err := st.Get(ctx, other.ID)
		require.NoError(t, err)
		require.Equal(t, models.RoleUnset, got.Role)

		changed, err := st.SetRoleIfUnset(ctx, other.ID, models.RolePartner)
		require.NoError(t, err)
		require.True(t, changed)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, st.Delete(ctx, identity.ID))
		_, err := st.Get(ctx, identity.ID)
		require.ErrorIs(t, err, store.ErrIdentityNotFound)
		require.ErrorIs(t, st.Delete(ctx, identity.ID), store.ErrIdentityNotFound)
	})
}
