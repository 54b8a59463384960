package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests and single-node development runs.
// The CAS semantics match the Postgres implementation: the generation check
// and swap happen under one lock acquisition.
type MemStore struct {
	mu       sync.Mutex
	users    map[string]User
	families map[string]SessionFamily
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		users:    make(map[string]User),
		families: make(map[string]SessionFamily),
	}
}

func (s *MemStore) Users(context.Context) UserStore       { return (*memUserStore)(s) }
func (s *MemStore) Families(context.Context) FamilyStore  { return (*memFamilyStore)(s) }

type memUserStore MemStore

func (s *memUserStore) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = *u
	return nil
}

func (s *memUserStore) Find(ctx context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *memUserStore) FindByEmail(ctx context.Context, clinicID, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ClinicID == clinicID && strings.EqualFold(u.Email, email) {
			out := u
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

type memFamilyStore MemStore

func (s *memFamilyStore) Create(ctx context.Context, fam *SessionFamily) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.families[fam.ID] = *fam
	return nil
}

func (s *memFamilyStore) Get(ctx context.Context, id string) (*SessionFamily, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fam, ok := s.families[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := fam
	return &out, nil
}

func (s *memFamilyStore) CASAdvanceGeneration(ctx context.Context, familyID string, fromGeneration int64, newRefreshHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fam, ok := s.families[familyID]
	if !ok || fam.Revoked || fam.Generation != fromGeneration {
		return false, nil
	}
	fam.Generation++
	fam.RefreshHash = newRefreshHash
	fam.RotatedAt = time.Now().UTC()
	s.families[familyID] = fam
	return true, nil
}

func (s *memFamilyStore) Revoke(ctx context.Context, familyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fam, ok := s.families[familyID]
	if !ok {
		return nil
	}
	fam.Revoked = true
	s.families[familyID] = fam
	return nil
}
