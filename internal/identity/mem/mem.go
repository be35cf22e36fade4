// Package mem provides an in-memory identity.Store used by tests and local
// development. Writes are atomic under a single mutex; keys mirror the
// persisted layout ("org:username" for users, "id:"/"email:" prefixes for
// the two mapping index entries).
package mem

import (
	"context"
	"sort"
	"strings"
	"sync"

	"dachido.org/internal/identity"
)

var _ identity.Store = (*Store)(nil)

// Store holds all three record kinds behind one lock.
type Store struct {
	mu       sync.RWMutex
	users    map[string]identity.User
	orgs     map[string]identity.Organization
	mappings map[string]identity.Mapping
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:    make(map[string]identity.User),
		orgs:     make(map[string]identity.Organization),
		mappings: make(map[string]identity.Mapping),
	}
}

func (s *Store) Users() identity.UserStore                 { return (*userStore)(s) }
func (s *Store) Organizations() identity.OrganizationStore { return (*orgStore)(s) }
func (s *Store) Mappings() identity.MappingStore           { return (*mappingStore)(s) }

// Users ---------------------------------------------------------------------

type userStore Store

func (s *userStore) Get(_ context.Context, organization, username string) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[identity.UserKey(organization, username)]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return &u, nil
}

func (s *userStore) List(_ context.Context) ([]*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*identity.User, 0, len(s.users))
	for _, u := range s.users {
		u := u
		out = append(out, &u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (s *userStore) FindByEmail(_ context.Context, email string) (*identity.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, identity.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			u := u
			return &u, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (s *userStore) Create(_ context.Context, u *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := u.Key()
	if _, exists := s.users[key]; exists {
		return identity.ErrConflict
	}
	s.users[key] = *u
	return nil
}

func (s *userStore) Put(_ context.Context, u *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Key()] = *u
	return nil
}

func (s *userStore) Delete(_ context.Context, organization, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := identity.UserKey(organization, username)
	if _, ok := s.users[key]; !ok {
		return identity.ErrNotFound
	}
	delete(s.users, key)
	return nil
}

// Organizations -------------------------------------------------------------

type orgStore Store

func (s *orgStore) Get(_ context.Context, name string) (*identity.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgs[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return &org, nil
}

func (s *orgStore) List(_ context.Context) ([]*identity.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*identity.Organization, 0, len(s.orgs))
	for _, org := range s.orgs {
		org := org
		out = append(out, &org)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *orgStore) Create(_ context.Context, org *identity.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := strings.ToLower(strings.TrimSpace(org.Name))
	if _, exists := s.orgs[name]; exists {
		return identity.ErrConflict
	}
	stored := *org
	stored.Name = name
	s.orgs[name] = stored
	return nil
}

// Mappings ------------------------------------------------------------------

type mappingStore Store

func idKey(externalID string) string { return "id:" + externalID }
func emailKey(email string) string   { return "email:" + email }

func (s *mappingStore) GetByExternalID(_ context.Context, externalID string) (*identity.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mappings[idKey(externalID)]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return &m, nil
}

func (s *mappingStore) GetByEmail(_ context.Context, email string) (*identity.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mappings[emailKey(identity.NormalizeEmail(email))]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return &m, nil
}

func (s *mappingStore) Create(_ context.Context, m *identity.Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.mappings[idKey(m.ExternalID)]; exists {
		return identity.ErrConflict
	}
	s.write(m)
	return nil
}

func (s *mappingStore) Put(_ context.Context, m *identity.Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write(m)
	return nil
}

// write stores both index entries; the caller holds the lock.
func (s *mappingStore) write(m *identity.Mapping) {
	s.mappings[idKey(m.ExternalID)] = *m
	if m.Email != "" {
		s.mappings[emailKey(m.Email)] = *m
	}
}
