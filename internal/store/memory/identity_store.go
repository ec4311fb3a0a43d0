package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/ownerportal/internal/models"
	"github.com/wolfeidau/ownerportal/internal/store"
)

// IdentityStore implements store.IdentityStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type IdentityStore struct {
	mu sync.RWMutex

	identities map[uuid.UUID]*models.Identity // id -> Identity
	byEmail    map[string]uuid.UUID           // lower(email) -> id
	rawRoles   map[uuid.UUID]string           // role claims exactly as written
}

// NewIdentityStore creates a new in-memory identity store.
func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		identities: make(map[uuid.UUID]*models.Identity),
		byEmail:    make(map[string]uuid.UUID),
		rawRoles:   make(map[uuid.UUID]string),
	}
}

// Create creates a new identity in memory.
func (s *IdentityStore) Create(ctx context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(identity.Email)
	if _, exists := s.byEmail[email]; exists {
		return store.ErrIdentityAlreadyExists
	}
	if _, exists := s.identities[identity.ID]; exists {
		return store.ErrIdentityAlreadyExists
	}

	clone := *identity
	s.identities[identity.ID] = &clone
	s.byEmail[email] = identity.ID
	s.rawRoles[identity.ID] = string(identity.Role)

	return nil
}

// Get retrieves an identity by ID.
func (s *IdentityStore) Get(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, exists := s.identities[id]
	if !exists {
		return nil, store.ErrIdentityNotFound
	}

	clone := *identity
	clone.Role = models.ParseRole(s.rawRoles[id])
	return &clone, nil
}

// GetByEmail retrieves an identity by email.
func (s *IdentityStore) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	s.mu.RLock()
	id, exists := s.byEmail[strings.ToLower(email)]
	s.mu.RUnlock()

	if !exists {
		return nil, store.ErrIdentityNotFound
	}
	return s.Get(ctx, id)
}

// SetRoleIfUnset sets the role only while the stored claim is empty or unrecognized.
func (s *IdentityStore) SetRoleIfUnset(ctx context.Context, id uuid.UUID, role models.Role) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, exists := s.identities[id]
	if !exists {
		return false, store.ErrIdentityNotFound
	}

	if models.ParseRole(s.rawRoles[id]).IsSet() {
		return false, nil
	}

	s.rawRoles[id] = string(role)
	identity.Role = role
	identity.UpdatedAt = time.Now()
	return true, nil
}

// SetRole overwrites the stored role.
func (s *IdentityStore) SetRole(ctx context.Context, id uuid.UUID, role models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, exists := s.identities[id]
	if !exists {
		return store.ErrIdentityNotFound
	}

	s.rawRoles[id] = string(role)
	identity.Role = role
	identity.UpdatedAt = time.Now()
	return nil
}

// SetRawRole stores an arbitrary role claim, bypassing the typed boundary.
// Tests use it to simulate claims written by other systems.
func (s *IdentityStore) SetRawRole(id uuid.UUID, raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rawRoles[id] = raw
}

// TouchSignIn records a successful sign in.
func (s *IdentityStore) TouchSignIn(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, exists := s.identities[id]
	if !exists {
		return store.ErrIdentityNotFound
	}

	now := time.Now()
	identity.LastSignInAt = &now
	return nil
}

// Delete removes an identity.
func (s *IdentityStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, exists := s.identities[id]
	if !exists {
		return store.ErrIdentityNotFound
	}

	delete(s.byEmail, strings.ToLower(identity.Email))
	delete(s.identities, id)
	delete(s.rawRoles, id)
	return nil
}
