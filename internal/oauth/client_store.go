package oauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrClientNotFound indicates the client id is not registered.
	ErrClientNotFound = errors.New("oauth client not found")
	// ErrClientSecretMismatch indicates the presented client secret is wrong.
	ErrClientSecretMismatch = errors.New("oauth client secret mismatch")
)

// Client is a registered OAuth client. Instances are immutable once stored;
// re-registration replaces the whole record.
type Client struct {
	ID                      string
	Secret                  string // empty for public clients
	Name                    string
	RedirectURIs            []string
	Scope                   string
	GrantTypes              []string
	ResponseTypes           []string
	TokenEndpointAuthMethod string
	IssuedAt                int64
	SecretExpiresAt         int64 // 0 means the secret never expires
}

// Public reports whether the client authenticates without a secret.
func (c *Client) Public() bool {
	if c.TokenEndpointAuthMethod != "" {
		return c.TokenEndpointAuthMethod == "none"
	}
	return c.Secret == ""
}

// AllowsRedirectURI reports whether uri is acceptable for this client.
// A client registered without redirect URIs (the operator-seeded gateway
// client) accepts any URI; registered URIs require an exact match.
func (c *Client) AllowsRedirectURI(uri string) bool {
	if len(c.RedirectURIs) == 0 {
		return true
	}
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// ClientMetadata is the RFC 7591 registration request payload.
// All supplied fields are stored verbatim on the resulting client.
type ClientMetadata struct {
	Name                    string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	Scope                   string   `json:"scope"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

// ClientStore resolves and authenticates OAuth clients.
type ClientStore interface {
	GetClient(ctx context.Context, clientID string) (*Client, error)
	VerifySecret(ctx context.Context, clientID, secret string) error
}

// ClientRegistrar is the optional dynamic registration capability. Stores
// that do not support registration simply do not implement it, so the
// registration endpoint is only mounted when the capability exists.
type ClientRegistrar interface {
	RegisterClient(ctx context.Context, meta ClientMetadata) (*Client, error)
}

// MemoryClientStore keeps clients in a mutex-protected map. This is the
// default backing store; a process restart drops dynamic registrations.
type MemoryClientStore struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewMemoryClientStore creates a store pre-seeded with the given clients.
func NewMemoryClientStore(seed ...*Client) *MemoryClientStore {
	clients := make(map[string]*Client, len(seed))
	for _, client := range seed {
		clients[client.ID] = client
	}
	return &MemoryClientStore{clients: clients}
}

func (s *MemoryClientStore) GetClient(ctx context.Context, clientID string) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, ok := s.clients[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	return client, nil
}

func (s *MemoryClientStore) VerifySecret(ctx context.Context, clientID, secret string) error {
	client, err := s.GetClient(ctx, clientID)
	if err != nil {
		return err
	}
	if client.Public() && secret == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(client.Secret), []byte(secret)) != 1 {
		return ErrClientSecretMismatch
	}
	return nil
}

func (s *MemoryClientStore) put(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.ID] = client
}

// MemoryClientRegistry is a MemoryClientStore with dynamic registration
// enabled.
type MemoryClientRegistry struct {
	*MemoryClientStore
}

// NewMemoryClientRegistry creates a registration-capable in-memory store.
func NewMemoryClientRegistry(seed ...*Client) *MemoryClientRegistry {
	return &MemoryClientRegistry{MemoryClientStore: NewMemoryClientStore(seed...)}
}

// RegisterClient assigns a fresh client id, stamps the issuance time and
// stores the supplied metadata verbatim. Confidential clients get a generated
// secret which never expires.
func (r *MemoryClientRegistry) RegisterClient(ctx context.Context, meta ClientMetadata) (*Client, error) {
	client := newRegisteredClient(meta)
	r.put(client)
	return client, nil
}

// newRegisteredClient builds a Client from registration metadata, filling in
// the defaults the OAuth 2.1 flow expects.
func newRegisteredClient(meta ClientMetadata) *Client {
	client := &Client{
		ID:                      uuid.NewString(),
		Name:                    meta.Name,
		RedirectURIs:            meta.RedirectURIs,
		Scope:                   meta.Scope,
		GrantTypes:              meta.GrantTypes,
		ResponseTypes:           meta.ResponseTypes,
		TokenEndpointAuthMethod: meta.TokenEndpointAuthMethod,
		IssuedAt:                time.Now().Unix(),
		SecretExpiresAt:         0,
	}
	if client.TokenEndpointAuthMethod == "" {
		// MCP clients are public clients using PKCE
		client.TokenEndpointAuthMethod = "none"
	}
	if len(client.GrantTypes) == 0 {
		client.GrantTypes = []string{"authorization_code", "refresh_token"}
	}
	if len(client.ResponseTypes) == 0 {
		client.ResponseTypes = []string{"code"}
	}
	if client.TokenEndpointAuthMethod != "none" {
		client.Secret = uuid.NewString()
	}
	return client
}
