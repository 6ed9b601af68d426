package models

import (
	"time"
)

// OAuthClient is the persisted form of a registered OAuth client. Only the
// bcrypt hash of the secret is stored; the plaintext is returned to the
// registrant exactly once. List-valued metadata is space-separated, matching
// the wire encoding of RFC 7591 scope strings.
type OAuthClient struct {
	ID                      string `gorm:"primaryKey"`
	SecretHash              string
	Name                    string
	RedirectURIs            string
	Scope                   string
	GrantTypes              string
	ResponseTypes           string
	TokenEndpointAuthMethod string
	SecretExpiresAt         int64
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

func (OAuthClient) TableName() string {
	return "oauth_clients"
}
