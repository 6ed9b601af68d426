package oauth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	oautherrors "github.com/go-oauth2/oauth2/v4/errors"
	log "github.com/sirupsen/logrus"
)

// TokenResponse is the RFC 6749 token endpoint success payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
}

// AuthInfo is the verified identity attached to a resource request. It gates
// every tool invocation on the MCP surface.
type AuthInfo struct {
	Token     string
	ClientID  string
	UserID    string
	Scopes    []string
	ExpiresAt int64
}

// AuthorizeRequest carries the query parameters of a GET /oauth/authorize
// request that must survive the login round trip.
type AuthorizeRequest struct {
	ClientID      string
	RedirectURI   string
	CodeChallenge string
	State         string
	Scope         string
}

// Provider implements the authorization-code and refresh-token grants on top
// of the in-memory stores and the JWT codec. It holds no state of its own;
// all shared mutable state lives in the stores.
type Provider struct {
	clients ClientStore
	codes   *CodeStore
	refresh *RefreshStore
	codec   *TokenCodec
}

// NewProvider wires the provider with its backing stores.
func NewProvider(clients ClientStore, codes *CodeStore, refresh *RefreshStore, codec *TokenCodec) *Provider {
	return &Provider{
		clients: clients,
		codes:   codes,
		refresh: refresh,
		codec:   codec,
	}
}

// Clients exposes the configured client store.
func (p *Provider) Clients() ClientStore {
	return p.clients
}

// Authorize renders the login form addressed to the given client. The
// authorization request context travels in hidden fields so the subsequent
// POST to /auth/login can reconstruct it. No code is issued here.
func (p *Provider) Authorize(c *gin.Context, client *Client, req AuthorizeRequest) {
	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	err := RenderLoginForm(c.Writer, LoginFormData{
		ClientID:      req.ClientID,
		RedirectURI:   req.RedirectURI,
		CodeChallenge: req.CodeChallenge,
		State:         req.State,
		Scope:         req.Scope,
		ClientName:    client.Name,
	})
	if err != nil {
		log.WithError(err).Error("Failed to render login form")
	}
}

// IssueAuthCode records the redemption context and returns the opaque
// single-use code. Called only after the Nextcloud credential check passed.
func (p *Provider) IssueAuthCode(code AuthorizationCode) string {
	return p.codes.Store(code)
}

// ChallengeForAuthorizationCode returns the PKCE challenge recorded when the
// code was issued. It rejects unknown codes and codes issued to a different
// client, without consuming the code.
func (p *Provider) ChallengeForAuthorizationCode(client *Client, code string) (string, error) {
	grant, ok := p.codes.Get(code)
	if !ok {
		return "", oautherrors.ErrInvalidGrant
	}
	if grant.ClientID != client.ID {
		return "", oautherrors.ErrInvalidGrant
	}
	return grant.CodeChallenge, nil
}

// ExchangeAuthorizationCode redeems a code for a token pair. The code is
// consumed first, before any check: a redemption attempt with a mismatched
// client, redirect URI or PKCE verifier still invalidates it, so a code can
// never survive a failed attempt.
func (p *Provider) ExchangeAuthorizationCode(client *Client, code, codeVerifier, redirectURI string) (*TokenResponse, error) {
	grant, ok := p.codes.Take(code)
	if !ok {
		return nil, oautherrors.ErrInvalidGrant
	}
	if grant.ClientID != client.ID {
		log.WithFields(log.Fields{"client_id": client.ID}).Warn("Authorization code presented by a different client")
		return nil, oautherrors.ErrInvalidGrant
	}
	if redirectURI != "" && redirectURI != grant.RedirectURI {
		log.WithFields(log.Fields{"client_id": client.ID}).Warn("Authorization code redirect URI mismatch")
		return nil, oautherrors.ErrInvalidGrant
	}
	if grant.CodeChallenge != "" {
		if err := VerifyCodeChallenge(codeVerifier, grant.CodeChallenge); err != nil {
			log.WithFields(log.Fields{"client_id": client.ID}).Warn("PKCE verification failed")
			return nil, oautherrors.ErrInvalidGrant
		}
	}

	return p.mintTokens(client.ID, grant.UserID, grant.Scopes)
}

// ExchangeRefreshToken rotates a refresh token into a fresh token pair. The
// presented token is consumed atomically, so it cannot be rotated twice. A
// non-empty requestedScopes must be a subset of the original grant; the new
// pair carries the narrowed set.
func (p *Provider) ExchangeRefreshToken(client *Client, refreshToken string, requestedScopes []string) (*TokenResponse, error) {
	grant, ok := p.refresh.Take(refreshToken)
	if !ok {
		return nil, oautherrors.ErrInvalidGrant
	}
	if grant.ClientID != client.ID {
		log.WithFields(log.Fields{"client_id": client.ID}).Warn("Refresh token presented by a different client")
		return nil, oautherrors.ErrInvalidGrant
	}

	scopes := grant.Scopes
	if len(requestedScopes) > 0 {
		if !scopeSubset(requestedScopes, grant.Scopes) {
			return nil, oautherrors.ErrInvalidScope
		}
		scopes = requestedScopes
	}

	return p.mintTokens(client.ID, grant.UserID, scopes)
}

// VerifyAccessToken checks the bearer token and returns its claims. A missing
// signing secret surfaces as ErrNoSigningSecret; every other failure is the
// generic ErrInvalidAccessToken.
func (p *Provider) VerifyAccessToken(token string) (*AuthInfo, error) {
	claims, err := p.codec.Decode(token)
	if err != nil {
		return nil, err
	}
	return &AuthInfo{
		Token:     token,
		ClientID:  claims.ClientID,
		UserID:    claims.UserID,
		Scopes:    claims.Scopes,
		ExpiresAt: claims.ExpiresAt.Unix(),
	}, nil
}

// RevokeToken deletes the refresh token if it belongs to the calling client.
// Unknown tokens are a no-op: revocation is idempotent and never an error.
func (p *Provider) RevokeToken(client *Client, token string) {
	grant, ok := p.refresh.Get(token)
	if !ok {
		return
	}
	if grant.ClientID != client.ID {
		log.WithFields(log.Fields{"client_id": client.ID}).Warn("Revocation attempt for a token of a different client")
		return
	}
	p.refresh.Delete(token)
}

// mintTokens creates a fresh access/refresh token pair for the grant.
func (p *Provider) mintTokens(clientID, userID string, scopes []string) (*TokenResponse, error) {
	accessToken, err := p.codec.Encode(clientID, userID, scopes)
	if err != nil {
		return nil, err
	}
	refreshToken := p.refresh.Store(RefreshGrant{
		ClientID: clientID,
		UserID:   userID,
		Scopes:   scopes,
	})
	return &TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "bearer",
		ExpiresIn:    int(AccessTokenLifetime.Seconds()),
		RefreshToken: refreshToken,
		Scope:        strings.Join(scopes, " "),
	}, nil
}

// scopeSubset reports whether every requested scope was originally granted.
func scopeSubset(requested, granted []string) bool {
	allowed := make(map[string]bool, len(granted))
	for _, scope := range granted {
		allowed[scope] = true
	}
	for _, scope := range requested {
		if !allowed[scope] {
			return false
		}
	}
	return true
}
