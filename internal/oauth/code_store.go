package oauth

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// authorizationCodeTTL bounds the lifetime of an unredeemed code. Codes are
// single-use either way; the cap limits the window for a leaked code.
const authorizationCodeTTL = 10 * time.Minute

// AuthorizationCode is the redemption context recorded when a user completes
// the login step. It is consumed exactly once by the token exchange.
type AuthorizationCode struct {
	ClientID      string
	UserID        string
	RedirectURI   string
	CodeChallenge string
	Scopes        []string
	State         string
}

type storedCode struct {
	AuthorizationCode
	expiresAt time.Time
}

// CodeStore holds issued authorization codes until redemption or expiry.
// All access goes through the mutex so Take is an atomic read-then-delete.
type CodeStore struct {
	mu    sync.Mutex
	codes map[string]storedCode
	ttl   time.Duration
}

// NewCodeStore creates an empty in-memory code store.
func NewCodeStore() *CodeStore {
	return &CodeStore{
		codes: make(map[string]storedCode),
		ttl:   authorizationCodeTTL,
	}
}

// Store records the code and returns its opaque identifier. Identifiers are
// crypto-random UUIDs, never reused and not guessable from prior issuance.
func (s *CodeStore) Store(code AuthorizationCode) string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[id] = storedCode{AuthorizationCode: code, expiresAt: time.Now().Add(s.ttl)}
	return id
}

// Get returns the code without consuming it. Expired codes report absent.
func (s *CodeStore) Get(id string) (AuthorizationCode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.codes[id]
	if !ok || time.Now().After(stored.expiresAt) {
		return AuthorizationCode{}, false
	}
	return stored.AuthorizationCode, true
}

// Take removes the code and returns it. Two concurrent Take calls for the
// same id yield exactly one hit; the entry is gone afterwards regardless of
// what the caller decides about the exchange.
func (s *CodeStore) Take(id string) (AuthorizationCode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.codes[id]
	if !ok {
		return AuthorizationCode{}, false
	}
	delete(s.codes, id)
	if time.Now().After(stored.expiresAt) {
		return AuthorizationCode{}, false
	}
	return stored.AuthorizationCode, true
}

// Delete removes the code if present.
func (s *CodeStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, id)
}
