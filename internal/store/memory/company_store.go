package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/ownerportal/internal/models"
	"github.com/wolfeidau/ownerportal/internal/store"
)

// CompanyStore implements store.CompanyStore using in-memory storage.
// Member and payout stores created from it share its lock, which is what
// makes the payout debit and insert atomic.
// This implementation is for testing only - data is lost on restart.
type CompanyStore struct {
	mu sync.RWMutex

	companies map[uuid.UUID]*models.Company       // company_id -> Company
	byOwner   map[uuid.UUID]uuid.UUID             // owner_id -> company_id
	cars      map[uuid.UUID]uuid.UUID             // legacy: car owner user_id -> company_id
	members   map[uuid.UUID]*models.CompanyMember // member_id -> CompanyMember
	payouts   map[uuid.UUID]*models.PayoutRequest // payout_id -> PayoutRequest
}

// NewCompanyStore creates a new in-memory company store.
func NewCompanyStore() *CompanyStore {
	return &CompanyStore{
		companies: make(map[uuid.UUID]*models.Company),
		byOwner:   make(map[uuid.UUID]uuid.UUID),
		cars:      make(map[uuid.UUID]uuid.UUID),
		members:   make(map[uuid.UUID]*models.CompanyMember),
		payouts:   make(map[uuid.UUID]*models.PayoutRequest),
	}
}

// Create creates a new company, rejecting a second company for the same owner.
func (s *CompanyStore) Create(ctx context.Context, company *models.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.companies[company.ID]; exists {
		return store.ErrCompanyAlreadyExists
	}
	if company.OwnerID != nil {
		if _, exists := s.byOwner[*company.OwnerID]; exists {
			return store.ErrCompanyAlreadyExists
		}
		s.byOwner[*company.OwnerID] = company.ID
	}

	s.companies[company.ID] = cloneCompany(company)
	return nil
}

// Get retrieves a company by ID.
func (s *CompanyStore) Get(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	company, exists := s.companies[id]
	if !exists {
		return nil, store.ErrCompanyNotFound
	}
	return cloneCompany(company), nil
}

// GetByOwner retrieves the company owned by ownerID.
func (s *CompanyStore) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byOwner[ownerID]
	if !exists {
		return nil, store.ErrCompanyNotFound
	}
	return cloneCompany(s.companies[id]), nil
}

// LinkCar records a legacy car ownership row linking userID to companyID.
func (s *CompanyStore) LinkCar(userID, companyID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cars[userID] = companyID
}

// FindLegacyByUser finds an unowned company through cars, then owner memberships.
func (s *CompanyStore) FindLegacyByUser(ctx context.Context, userID uuid.UUID) (*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.cars[userID]; ok {
		if company, ok := s.companies[id]; ok && company.OwnerID == nil {
			return cloneCompany(company), nil
		}
	}

	for _, m := range s.members {
		if m.UserID == userID && m.Role == models.MemberRoleOwner && m.IsActive {
			if company, ok := s.companies[m.CompanyID]; ok && company.OwnerID == nil {
				return cloneCompany(company), nil
			}
		}
	}

	return nil, store.ErrCompanyNotFound
}

// ApplyChanges writes the changes, skipping OnlyIfNull fields that are already set.
func (s *CompanyStore) ApplyChanges(ctx context.Context, id, userID uuid.UUID, changes []models.FieldChange) (*models.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.companies[id]
	if !exists {
		return nil, store.ErrCompanyNotFound
	}
	if current.OwnerID != nil && *current.OwnerID != userID {
		return nil, store.ErrCompanyNotOwned
	}

	updated := cloneCompany(current)
	for _, change := range changes {
		if err := applyChange(updated, change); err != nil {
			return nil, err
		}
	}

	if updated.OwnerID != nil && (current.OwnerID == nil || *current.OwnerID != *updated.OwnerID) {
		if other, taken := s.byOwner[*updated.OwnerID]; taken && other != id {
			return nil, store.ErrCompanyAlreadyExists
		}
		s.byOwner[*updated.OwnerID] = id
	}

	updated.UpdatedAt = time.Now()
	s.companies[id] = updated
	return cloneCompany(updated), nil
}

// SetBalance sets a company's available balance. Balance is credited by
// back-office processes outside this service; tests use this to seed it.
func (s *CompanyStore) SetBalance(id uuid.UUID, available string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	company, exists := s.companies[id]
	if !exists {
		return store.ErrCompanyNotFound
	}
	amount, err := parseDecimal(available)
	if err != nil {
		return err
	}
	company.AvailableBalance = amount
	return nil
}

func applyChange(c *models.Company, change models.FieldChange) error {
	switch change.Field {
	case models.CompanyFieldOwnerID:
		v, ok := change.Value.(uuid.UUID)
		if !ok {
			return fmt.Errorf("%w: owner_id", store.ErrUnknownCompanyField)
		}
		if change.Policy == models.OnlyIfNull && c.OwnerID != nil {
			return nil
		}
		c.OwnerID = &v
		return nil
	case models.CompanyFieldPhone:
		return setOptional(&c.Phone, change)
	case models.CompanyFieldEmail:
		return setOptional(&c.Email, change)
	}

	v, ok := change.Value.(string)
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrUnknownCompanyField, change.Field)
	}

	var target *string
	switch change.Field {
	case models.CompanyFieldName:
		target = &c.Name
	case models.CompanyFieldLocale:
		target = &c.Locale
	case models.CompanyFieldCurrency:
		target = &c.Currency
	case models.CompanyFieldTimezone:
		target = &c.Timezone
	default:
		return fmt.Errorf("%w: %s", store.ErrUnknownCompanyField, change.Field)
	}
	if change.Policy == models.OnlyIfNull && *target != "" {
		return nil
	}
	*target = v
	return nil
}

func setOptional(field **string, change models.FieldChange) error {
	v, ok := change.Value.(string)
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrUnknownCompanyField, change.Field)
	}
	if change.Policy == models.OnlyIfNull && *field != nil {
		return nil
	}
	*field = &v
	return nil
}

func cloneCompany(c *models.Company) *models.Company {
	clone := *c
	if c.OwnerID != nil {
		owner := *c.OwnerID
		clone.OwnerID = &owner
	}
	if c.Email != nil {
		email := *c.Email
		clone.Email = &email
	}
	if c.Phone != nil {
		phone := *c.Phone
		clone.Phone = &phone
	}
	return &clone
}
