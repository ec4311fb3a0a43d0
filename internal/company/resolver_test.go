package company

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/ownerportal/internal/apperr"
	"github.com/wolfeidau/ownerportal/internal/models"
	"github.com/wolfeidau/ownerportal/internal/store"
	"github.com/wolfeidau/ownerportal/internal/store/memory"
	"github.com/wolfeidau/ownerportal/internal/timeout"
)

func TestPlaceholderName(t *testing.T) {
	id := uuid.MustParse("0192b3c4-d5e6-7f80-9abc-def012345678")

	require.Equal(t, "jane's Company", PlaceholderName(id, "jane@example.com"))
	require.Equal(t, "Company 0192b3c4", PlaceholderName(id, ""))
	require.Equal(t, "Company 0192b3c4", PlaceholderName(id, "@example.com"))
}

func TestResolveOrCreate_createsWithDefaults(t *testing.T) {
	ctx := context.Background()
	companies := memory.NewCompanyStore()
	resolver := NewResolver(companies, timeout.DefaultPolicy())
	userID := uuid.New()

	_, err := resolver.Resolve(ctx, userID)
	require.ErrorIs(t, err, apperr.ErrNoCompany)

	company, err := resolver.ResolveOrCreate(ctx, userID, "jane@example.com")
	require.NoError(t, err)
	require.True(t, company.OwnedBy(userID))
	require.Equal(t, "jane's Company", company.Name)
	require.Equal(t, models.VerificationPending, company.VerificationStatus)
	require.Equal(t, models.DefaultLocale, company.Locale)
	require.Equal(t, models.DefaultCurrency, company.Currency)
	require.Equal(t, models.DefaultTimezone, company.Timezone)
	require.True(t, company.AvailableBalance.IsZero())

	again, err := resolver.ResolveOrCreate(ctx, userID, "jane@example.com")
	require.NoError(t, err)
	require.Equal(t, company.ID, again.ID)
}

func TestResolveOrCreate_concurrentFirstCalls(t *testing.T) {
	ctx := context.Background()
	companies := memory.NewCompanyStore()
	resolver := NewResolver(companies, timeout.DefaultPolicy())
	userID := uuid.New()

	const callers = 10
	ids := make([]uuid.UUID, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := resolver.ResolveOrCreate(ctx, userID, "jane@example.com")
			require.NoError(t, err)
			ids[i] = c.ID
		}()
	}
	wg.Wait()

	owned, err := companies.GetByOwner(ctx, userID)
	require.NoError(t, err)
	for _, id := range ids {
		require.Equal(t, owned.ID, id)
	}
}

// racingStore hides the winner's company from the first lookup so the
// resolver always takes the create-conflict path.
type racingStore struct {
	*memory.CompanyStore
	mu     sync.Mutex
	misses int
}

func (s *racingStore) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.misses > 0 {
		s.misses--
		return nil, store.ErrCompanyNotFound
	}
	return s.CompanyStore.GetByOwner(ctx, ownerID)
}

func TestResolveOrCreate_rereadsAfterConflict(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	companies := &racingStore{CompanyStore: memory.NewCompanyStore()}
	winner := newCompany(userID, "")
	require.NoError(t, companies.Create(ctx, winner))

	// miss the initial lookup and the first re-read
	companies.misses = 2

	resolver := NewResolver(companies, timeout.DefaultPolicy())
	company, err := resolver.ResolveOrCreate(ctx, userID, "jane@example.com")
	require.NoError(t, err)
	require.Equal(t, winner.ID, company.ID)
}

func TestResolve_legacyLinkage(t *testing.T) {
	ctx := context.Background()
	companies := memory.NewCompanyStore()
	resolver := NewResolver(companies, timeout.DefaultPolicy())
	userID := uuid.New()

	legacy := &models.Company{
		ID:                 uuid.New(),
		Name:               "Old Garage",
		VerificationStatus: models.VerificationVerified,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
	require.NoError(t, companies.Create(ctx, legacy))
	companies.LinkCar(userID, legacy.ID)

	company, err := resolver.Resolve(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, legacy.ID, company.ID)

	// ResolveOrCreate must not create a second company for a legacy user.
	company, err = resolver.ResolveOrCreate(ctx, userID, "old@example.com")
	require.NoError(t, err)
	require.Equal(t, legacy.ID, company.ID)
}

// leakyLegacyStore returns a company from the legacy lookup regardless of owner.
type leakyLegacyStore struct {
	*memory.CompanyStore
	company *models.Company
}

func (s *leakyLegacyStore) FindLegacyByUser(ctx context.Context, userID uuid.UUID) (*models.Company, error) {
	return s.company, nil
}

func TestResolve_legacyLinkageIgnoresOwnedCompany(t *testing.T) {
	ctx := context.Background()
	ownerID := uuid.New()
	owned := newCompany(ownerID, "owner@example.com")

	companies := &leakyLegacyStore{CompanyStore: memory.NewCompanyStore(), company: owned}
	require.NoError(t, companies.Create(ctx, owned))
	resolver := NewResolver(companies, timeout.DefaultPolicy())

	_, err := resolver.Resolve(ctx, uuid.New())
	require.ErrorIs(t, err, apperr.ErrNoCompany)

	got, err := resolver.Resolve(ctx, ownerID)
	require.NoError(t, err)
	require.Equal(t, owned.ID, got.ID)
}
