package oauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/nextmcp/nextcloud-mcp-gateway/internal/models"
)

// GormClientStore persists registered clients in a relational database so
// dynamic registrations survive a gateway restart. Tokens and codes stay in
// memory regardless; only the client registry is durable.
type GormClientStore struct {
	db *gorm.DB
}

// NewGormClientStore creates a database-backed client store.
func NewGormClientStore(db *gorm.DB) *GormClientStore {
	return &GormClientStore{db: db}
}

func (s *GormClientStore) GetClient(ctx context.Context, clientID string) (*Client, error) {
	var record models.OAuthClient
	if err := s.db.WithContext(ctx).Where("id = ?", clientID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	return clientFromRecord(&record), nil
}

// VerifySecret compares the presented secret against the stored bcrypt hash.
func (s *GormClientStore) VerifySecret(ctx context.Context, clientID, secret string) error {
	var record models.OAuthClient
	if err := s.db.WithContext(ctx).Where("id = ?", clientID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrClientNotFound
		}
		return err
	}
	if record.SecretHash == "" && secret == "" {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(record.SecretHash), []byte(secret)); err != nil {
		return ErrClientSecretMismatch
	}
	return nil
}

// GormClientRegistry is a GormClientStore with dynamic registration enabled.
type GormClientRegistry struct {
	*GormClientStore
}

// NewGormClientRegistry creates a registration-capable database-backed store.
func NewGormClientRegistry(db *gorm.DB) *GormClientRegistry {
	return &GormClientRegistry{GormClientStore: NewGormClientStore(db)}
}

// RegisterClient stores the metadata verbatim and returns the client with its
// plaintext secret. The secret is hashed at rest and not recoverable later.
func (r *GormClientRegistry) RegisterClient(ctx context.Context, meta ClientMetadata) (*Client, error) {
	client := newRegisteredClient(meta)

	var secretHash string
	if client.Secret != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(client.Secret), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		secretHash = string(hashed)
	}

	record := &models.OAuthClient{
		ID:                      client.ID,
		SecretHash:              secretHash,
		Name:                    client.Name,
		RedirectURIs:            strings.Join(client.RedirectURIs, " "),
		Scope:                   client.Scope,
		GrantTypes:              strings.Join(client.GrantTypes, " "),
		ResponseTypes:           strings.Join(client.ResponseTypes, " "),
		TokenEndpointAuthMethod: client.TokenEndpointAuthMethod,
		SecretExpiresAt:         client.SecretExpiresAt,
		CreatedAt:               time.Unix(client.IssuedAt, 0),
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return client, nil
}

// SeedClient inserts the operator-configured client if it is not present yet.
// The configured secret is hashed like a registered one.
func (s *GormClientStore) SeedClient(ctx context.Context, client *Client) error {
	var existing models.OAuthClient
	err := s.db.WithContext(ctx).Where("id = ?", client.ID).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	var secretHash string
	if client.Secret != "" {
		hashed, hashErr := bcrypt.GenerateFromPassword([]byte(client.Secret), bcrypt.DefaultCost)
		if hashErr != nil {
			return hashErr
		}
		secretHash = string(hashed)
	}
	record := &models.OAuthClient{
		ID:                      client.ID,
		SecretHash:              secretHash,
		Name:                    client.Name,
		RedirectURIs:            strings.Join(client.RedirectURIs, " "),
		Scope:                   client.Scope,
		GrantTypes:              strings.Join(client.GrantTypes, " "),
		ResponseTypes:           strings.Join(client.ResponseTypes, " "),
		TokenEndpointAuthMethod: client.TokenEndpointAuthMethod,
		SecretExpiresAt:         client.SecretExpiresAt,
	}
	return s.db.WithContext(ctx).Create(record).Error
}

// clientFromRecord maps a database row back to the domain client. The secret
// hash is deliberately not exposed.
func clientFromRecord(record *models.OAuthClient) *Client {
	return &Client{
		ID:                      record.ID,
		Name:                    record.Name,
		RedirectURIs:            strings.Fields(record.RedirectURIs),
		Scope:                   record.Scope,
		GrantTypes:              strings.Fields(record.GrantTypes),
		ResponseTypes:           strings.Fields(record.ResponseTypes),
		TokenEndpointAuthMethod: record.TokenEndpointAuthMethod,
		IssuedAt:                record.CreatedAt.Unix(),
		SecretExpiresAt:         record.SecretExpiresAt,
	}
}
