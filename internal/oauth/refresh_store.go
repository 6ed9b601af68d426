package oauth

import (
	"sync"

	"github.com/google/uuid"
)

// RefreshGrant is the context behind an outstanding refresh token. A grant is
// replaced wholesale on every rotation; the old and new token never coexist.
type RefreshGrant struct {
	ClientID string
	UserID   string
	Scopes   []string
}

// RefreshStore holds outstanding refresh tokens. Like CodeStore, redemption
// is an atomic Take so a token can only ever be rotated once.
type RefreshStore struct {
	mu     sync.Mutex
	grants map[string]RefreshGrant
}

// NewRefreshStore creates an empty in-memory refresh token store.
func NewRefreshStore() *RefreshStore {
	return &RefreshStore{grants: make(map[string]RefreshGrant)}
}

// Store records the grant and returns the new opaque refresh token.
func (s *RefreshStore) Store(grant RefreshGrant) string {
	token := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[token] = grant
	return token
}

// Get returns the grant without consuming it.
func (s *RefreshStore) Get(token string) (RefreshGrant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	grant, ok := s.grants[token]
	return grant, ok
}

// Take removes the grant and returns it. Concurrent rotation attempts for
// the same token succeed exactly once.
func (s *RefreshStore) Take(token string) (RefreshGrant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	grant, ok := s.grants[token]
	if ok {
		delete(s.grants, token)
	}
	return grant, ok
}

// Delete removes the grant if present. Deleting an unknown token is a no-op;
// revocation is idempotent.
func (s *RefreshStore) Delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, token)
}
