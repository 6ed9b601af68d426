package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	oautherrors "github.com/go-oauth2/oauth2/v4/errors"
	log "github.com/sirupsen/logrus"

	"github.com/nextmcp/nextcloud-mcp-gateway/internal/oauth"
)

// OAuthController serves the OAuth 2.1 protocol endpoints. The paths are
// fixed: discovery clients resolve them from the metadata document.
type OAuthController struct {
	provider *oauth.Provider
	issuer   string
}

func NewOAuthController(provider *oauth.Provider, issuer string) *OAuthController {
	return &OAuthController{
		provider: provider,
		issuer:   strings.TrimRight(issuer, "/"),
	}
}

// Metadata serves the RFC 8414 authorization server metadata document.
// The registration endpoint is advertised only when the client store
// actually supports dynamic registration.
func (oc *OAuthController) Metadata(c *gin.Context) {
	metadata := gin.H{
		"issuer":                                oc.issuer,
		"authorization_endpoint":                oc.issuer + "/oauth/authorize",
		"token_endpoint":                        oc.issuer + "/oauth/token",
		"revocation_endpoint":                   oc.issuer + "/oauth/revoke",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code", "refresh_token"},
		"code_challenge_methods_supported":      []string{oauth.PKCEMethodS256},
		"token_endpoint_auth_methods_supported": []string{"none", "client_secret_post", "client_secret_basic"},
	}
	if _, ok := oc.provider.Clients().(oauth.ClientRegistrar); ok {
		metadata["registration_endpoint"] = oc.issuer + "/oauth/register"
	}
	c.JSON(http.StatusOK, metadata)
}

// ProtectedResourceMetadata serves the RFC 9728 document for the MCP
// resource, pointing resource clients back at this authorization server.
func (oc *OAuthController) ProtectedResourceMetadata(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"resource":                 oc.issuer + "/mcp",
		"authorization_servers":    []string{oc.issuer},
		"bearer_methods_supported": []string{"header"},
	})
}

// Authorize starts the authorization-code flow: it validates the request and
// renders the login form. No code is issued until credentials check out.
func (oc *OAuthController) Authorize(c *gin.Context) {
	clientID := c.Query("client_id")
	redirectURI := c.Query("redirect_uri")
	responseType := c.Query("response_type")
	codeChallenge := c.Query("code_challenge")
	codeChallengeMethod := c.Query("code_challenge_method")

	if clientID == "" || redirectURI == "" {
		respondOAuthError(c, oautherrors.ErrInvalidRequest)
		return
	}

	client, err := oc.provider.Clients().GetClient(c.Request.Context(), clientID)
	if err != nil {
		respondOAuthError(c, oautherrors.ErrInvalidClient)
		return
	}

	if !client.AllowsRedirectURI(redirectURI) {
		respondOAuthError(c, oautherrors.ErrInvalidRequest)
		return
	}

	if responseType != "code" {
		respondOAuthError(c, oautherrors.ErrUnsupportedResponseType)
		return
	}

	if codeChallenge == "" {
		respondOAuthError(c, oautherrors.ErrCodeChallengeRquired)
		return
	}
	if codeChallengeMethod != "" && codeChallengeMethod != oauth.PKCEMethodS256 {
		respondOAuthError(c, oautherrors.ErrUnsupportedCodeChallengeMethod)
		return
	}

	oc.provider.Authorize(c, client, oauth.AuthorizeRequest{
		ClientID:      clientID,
		RedirectURI:   redirectURI,
		CodeChallenge: codeChallenge,
		State:         c.Query("state"),
		Scope:         c.Query("scope"),
	})
}

// Token exchanges an authorization code or a refresh token for a token pair.
func (oc *OAuthController) Token(c *gin.Context) {
	client, err := oc.authenticateClient(c)
	if err != nil {
		respondOAuthError(c, oautherrors.ErrInvalidClient)
		return
	}

	var response *oauth.TokenResponse
	switch grantType := c.PostForm("grant_type"); grantType {
	case "authorization_code":
		code := c.PostForm("code")
		if code == "" {
			respondOAuthError(c, oautherrors.ErrInvalidRequest)
			return
		}
		response, err = oc.provider.ExchangeAuthorizationCode(client, code, c.PostForm("code_verifier"), c.PostForm("redirect_uri"))
	case "refresh_token":
		refreshToken := c.PostForm("refresh_token")
		if refreshToken == "" {
			respondOAuthError(c, oautherrors.ErrInvalidRequest)
			return
		}
		requestedScopes := strings.Fields(c.PostForm("scope"))
		response, err = oc.provider.ExchangeRefreshToken(client, refreshToken, requestedScopes)
	default:
		respondOAuthError(c, oautherrors.ErrUnsupportedGrantType)
		return
	}

	if err != nil {
		respondOAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// Register handles RFC 7591 dynamic client registration. The route is only
// mounted when the store implements ClientRegistrar, so reaching this
// handler means the capability exists.
func (oc *OAuthController) Register(c *gin.Context) {
	registrar, ok := oc.provider.Clients().(oauth.ClientRegistrar)
	if !ok {
		// Not mounted in this configuration; kept as a guard for direct use
		c.JSON(http.StatusNotFound, gin.H{"error": "registration_not_supported"})
		return
	}

	var meta oauth.ClientMetadata
	if err := c.ShouldBindJSON(&meta); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_client_metadata",
			"error_description": err.Error(),
		})
		return
	}
	if len(meta.RedirectURIs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_client_metadata",
			"error_description": "redirect_uris is required",
		})
		return
	}

	client, err := registrar.RegisterClient(c.Request.Context(), meta)
	if err != nil {
		log.WithError(err).Error("Dynamic client registration failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration_failed"})
		return
	}

	response := gin.H{
		"client_id":                  client.ID,
		"client_id_issued_at":        client.IssuedAt,
		"client_secret_expires_at":   client.SecretExpiresAt,
		"redirect_uris":              client.RedirectURIs,
		"grant_types":                client.GrantTypes,
		"response_types":             client.ResponseTypes,
		"token_endpoint_auth_method": client.TokenEndpointAuthMethod,
	}
	if client.Name != "" {
		response["client_name"] = client.Name
	}
	if client.Scope != "" {
		response["scope"] = client.Scope
	}
	if client.Secret != "" {
		// Plaintext secret is returned exactly once
		response["client_secret"] = client.Secret
	}
	c.JSON(http.StatusCreated, response)
}

// Revoke invalidates a refresh token (RFC 7009). Revoking an unknown token
// succeeds: the endpoint is idempotent by design.
func (oc *OAuthController) Revoke(c *gin.Context) {
	client, err := oc.authenticateClient(c)
	if err != nil {
		respondOAuthError(c, oautherrors.ErrInvalidClient)
		return
	}

	token := c.PostForm("token")
	if token == "" {
		respondOAuthError(c, oautherrors.ErrInvalidRequest)
		return
	}

	oc.provider.RevokeToken(client, token)
	c.Status(http.StatusOK)
}

// authenticateClient resolves the calling client from the form body
// (client_secret_post) or the Authorization header (client_secret_basic).
// Public clients present only their client_id.
func (oc *OAuthController) authenticateClient(c *gin.Context) (*oauth.Client, error) {
	clientID := c.PostForm("client_id")
	clientSecret := c.PostForm("client_secret")
	if basicID, basicSecret, ok := c.Request.BasicAuth(); ok {
		clientID = basicID
		clientSecret = basicSecret
	}
	if clientID == "" {
		return nil, oautherrors.ErrInvalidClient
	}

	client, err := oc.provider.Clients().GetClient(c.Request.Context(), clientID)
	if err != nil {
		return nil, oautherrors.ErrInvalidClient
	}
	if !client.Public() || clientSecret != "" {
		if err := oc.provider.Clients().VerifySecret(c.Request.Context(), clientID, clientSecret); err != nil {
			return nil, oautherrors.ErrInvalidClient
		}
	}
	return client, nil
}

// respondOAuthError writes the RFC 6749 error shape. Status codes and
// descriptions come from the shared oauth2 error tables; anything not in the
// tables is a server-side failure that must not leak details.
func respondOAuthError(c *gin.Context, err error) {
	if errors.Is(err, oauth.ErrNoSigningSecret) {
		log.WithError(err).Error("Token endpoint misconfigured")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             oautherrors.ErrServerError.Error(),
			"error_description": oautherrors.Descriptions[oautherrors.ErrServerError],
		})
		return
	}

	status, ok := oautherrors.StatusCodes[err]
	if !ok {
		log.WithError(err).Error("Unexpected token endpoint error")
		err = oautherrors.ErrServerError
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{
		"error":             err.Error(),
		"error_description": oautherrors.Descriptions[err],
	})
}
