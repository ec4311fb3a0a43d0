package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/wolfeidau/ownerportal/internal/models"
	"github.com/wolfeidau/ownerportal/internal/store"
)

// MemberStore implements store.MemberStore on top of a CompanyStore.
type MemberStore struct {
	companies *CompanyStore
	failNext  error
}

// NewMemberStore creates a member store sharing state with companies.
func NewMemberStore(companies *CompanyStore) *MemberStore {
	return &MemberStore{companies: companies}
}

// FailNextCreate makes the next Create return err. Used to exercise rollback paths.
func (s *MemberStore) FailNextCreate(err error) {
	s.companies.mu.Lock()
	defer s.companies.mu.Unlock()

	s.failNext = err
}

// Create links a user to a company.
func (s *MemberStore) Create(ctx context.Context, member *models.CompanyMember) error {
	s.companies.mu.Lock()
	defer s.companies.mu.Unlock()

	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}

	if _, exists := s.companies.companies[member.CompanyID]; !exists {
		return store.ErrCompanyNotFound
	}

	for _, m := range s.companies.members {
		if m.CompanyID == member.CompanyID && m.UserID == member.UserID {
			return store.ErrMemberAlreadyExists
		}
	}

	clone := *member
	s.companies.members[member.ID] = &clone
	return nil
}

// ListByCompany returns members of a company ordered by creation time.
func (s *MemberStore) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*models.CompanyMember, error) {
	s.companies.mu.RLock()
	defer s.companies.mu.RUnlock()

	var result []*models.CompanyMember
	for _, m := range s.companies.members {
		if m.CompanyID == companyID {
			clone := *m
			result = append(result, &clone)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}
