package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	oautherrors "github.com/go-oauth2/oauth2/v4/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextmcp/nextcloud-mcp-gateway/internal/oauth"
)

const (
	testIssuer        = "http://localhost:8080"
	testSigningSecret = "test-signing-secret-32-characters!"
	testVerifier      = "test-verifier-value-0123456789-0123456789-0123456789"
	testRedirectURI   = "http://localhost:8090/callback"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(clients oauth.ClientStore) (*gin.Engine, *oauth.Provider) {
	provider := oauth.NewProvider(clients, oauth.NewCodeStore(), oauth.NewRefreshStore(), oauth.NewTokenCodec(testSigningSecret))
	controller := NewOAuthController(provider, testIssuer)

	router := gin.New()
	router.GET("/.well-known/oauth-authorization-server", controller.Metadata)
	router.GET("/.well-known/oauth-protected-resource", controller.ProtectedResourceMetadata)
	router.GET("/oauth/authorize", controller.Authorize)
	router.POST("/oauth/token", controller.Token)
	router.POST("/oauth/register", controller.Register)
	router.POST("/oauth/revoke", controller.Revoke)
	return router, provider
}

func defaultClients() *oauth.MemoryClientStore {
	return oauth.NewMemoryClientStore(&oauth.Client{
		ID:                      "test-client",
		Name:                    "Test Client",
		TokenEndpointAuthMethod: "none",
		RedirectURIs:            []string{testRedirectURI},
	})
}

func postForm(router *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func decodeJSON(t *testing.T, recorder *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return body
}

func issueCode(provider *oauth.Provider) string {
	return provider.IssueAuthCode(oauth.AuthorizationCode{
		ClientID:      "test-client",
		UserID:        "alice",
		RedirectURI:   testRedirectURI,
		CodeChallenge: oauth.ComputeCodeChallenge(testVerifier),
		Scopes:        []string{"mcp:read"},
	})
}

func TestMetadata(t *testing.T) {
	t.Run("without registration capability", func(t *testing.T) {
		router, _ := newTestRouter(defaultClients())

		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/.well-known/oauth-authorization-server", nil))
		require.Equal(t, http.StatusOK, recorder.Code)

		body := decodeJSON(t, recorder)
		assert.Equal(t, testIssuer, body["issuer"])
		assert.Equal(t, testIssuer+"/oauth/authorize", body["authorization_endpoint"])
		assert.Equal(t, testIssuer+"/oauth/token", body["token_endpoint"])
		assert.Equal(t, testIssuer+"/oauth/revoke", body["revocation_endpoint"])
		assert.Contains(t, body["code_challenge_methods_supported"], "S256")
		assert.NotContains(t, body, "registration_endpoint")
	})

	t.Run("with registration capability", func(t *testing.T) {
		router, _ := newTestRouter(oauth.NewMemoryClientRegistry())

		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/.well-known/oauth-authorization-server", nil))
		require.Equal(t, http.StatusOK, recorder.Code)

		body := decodeJSON(t, recorder)
		assert.Equal(t, testIssuer+"/oauth/register", body["registration_endpoint"])
	})
}

func TestProtectedResourceMetadata(t *testing.T) {
	router, _ := newTestRouter(defaultClients())

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/.well-known/oauth-protected-resource", nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeJSON(t, recorder)
	assert.Equal(t, testIssuer+"/mcp", body["resource"])
	assert.Contains(t, body["authorization_servers"], testIssuer)
}

func TestAuthorize(t *testing.T) {
	authorizeURL := func(params map[string]string) string {
		query := url.Values{}
		for key, value := range params {
			query.Set(key, value)
		}
		return "/oauth/authorize?" + query.Encode()
	}
	validParams := func() map[string]string {
		return map[string]string{
			"client_id":             "test-client",
			"redirect_uri":          testRedirectURI,
			"response_type":         "code",
			"code_challenge":        oauth.ComputeCodeChallenge(testVerifier),
			"code_challenge_method": "S256",
			"state":                 "xyz",
		}
	}

	t.Run("valid request renders the login form", func(t *testing.T) {
		router, _ := newTestRouter(defaultClients())

		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, authorizeURL(validParams()), nil))

		require.Equal(t, http.StatusOK, recorder.Code)
		assert.Contains(t, recorder.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, recorder.Body.String(), `name="username"`)
		assert.Contains(t, recorder.Body.String(), "Test Client")
	})

	errorCases := []struct {
		name     string
		mutate   func(params map[string]string)
		expected error
	}{
		{
			name:     "missing client_id",
			mutate:   func(p map[string]string) { delete(p, "client_id") },
			expected: oautherrors.ErrInvalidRequest,
		},
		{
			name:     "unknown client",
			mutate:   func(p map[string]string) { p["client_id"] = "unknown" },
			expected: oautherrors.ErrInvalidClient,
		},
		{
			name:     "unregistered redirect URI",
			mutate:   func(p map[string]string) { p["redirect_uri"] = "http://evil.example/cb" },
			expected: oautherrors.ErrInvalidRequest,
		},
		{
			name:     "wrong response type",
			mutate:   func(p map[string]string) { p["response_type"] = "token" },
			expected: oautherrors.ErrUnsupportedResponseType,
		},
		{
			name:     "missing code challenge",
			mutate:   func(p map[string]string) { delete(p, "code_challenge") },
			expected: oautherrors.ErrCodeChallengeRquired,
		},
		{
			name:     "plain challenge method",
			mutate:   func(p map[string]string) { p["code_challenge_method"] = "plain" },
			expected: oautherrors.ErrUnsupportedCodeChallengeMethod,
		},
	}

	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(defaultClients())
			params := validParams()
			tt.mutate(params)

			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, authorizeURL(params), nil))

			assert.Equal(t, oautherrors.StatusCodes[tt.expected], recorder.Code)
			body := decodeJSON(t, recorder)
			assert.Equal(t, tt.expected.Error(), body["error"])
		})
	}
}

func TestTokenAuthorizationCodeGrant(t *testing.T) {
	t.Run("successful exchange", func(t *testing.T) {
		router, provider := newTestRouter(defaultClients())
		code := issueCode(provider)

		recorder := postForm(router, "/oauth/token", url.Values{
			"grant_type":    {"authorization_code"},
			"client_id":     {"test-client"},
			"code":          {code},
			"code_verifier": {testVerifier},
			"redirect_uri":  {testRedirectURI},
		})

		require.Equal(t, http.StatusOK, recorder.Code)
		body := decodeJSON(t, recorder)
		assert.NotEmpty(t, body["access_token"])
		assert.NotEmpty(t, body["refresh_token"])
		assert.Equal(t, "bearer", body["token_type"])
		assert.Equal(t, float64(3600), body["expires_in"])
		assert.Equal(t, "mcp:read", body["scope"])
	})

	t.Run("code cannot be redeemed twice", func(t *testing.T) {
		router, provider := newTestRouter(defaultClients())
		code := issueCode(provider)
		form := url.Values{
			"grant_type":    {"authorization_code"},
			"client_id":     {"test-client"},
			"code":          {code},
			"code_verifier": {testVerifier},
			"redirect_uri":  {testRedirectURI},
		}

		require.Equal(t, http.StatusOK, postForm(router, "/oauth/token", form).Code)

		recorder := postForm(router, "/oauth/token", form)
		assert.Equal(t, oautherrors.StatusCodes[oautherrors.ErrInvalidGrant], recorder.Code)
		body := decodeJSON(t, recorder)
		assert.Equal(t, oautherrors.ErrInvalidGrant.Error(), body["error"])
	})

	t.Run("missing code", func(t *testing.T) {
		router, _ := newTestRouter(defaultClients())
		recorder := postForm(router, "/oauth/token", url.Values{
			"grant_type": {"authorization_code"},
			"client_id":  {"test-client"},
		})
		assert.Equal(t, oautherrors.StatusCodes[oautherrors.ErrInvalidRequest], recorder.Code)
	})

	t.Run("unsupported grant type", func(t *testing.T) {
		router, _ := newTestRouter(defaultClients())
		recorder := postForm(router, "/oauth/token", url.Values{
			"grant_type": {"password"},
			"client_id":  {"test-client"},
		})
		body := decodeJSON(t, recorder)
		assert.Equal(t, oautherrors.ErrUnsupportedGrantType.Error(), body["error"])
	})

	t.Run("unknown client", func(t *testing.T) {
		router, _ := newTestRouter(defaultClients())
		recorder := postForm(router, "/oauth/token", url.Values{
			"grant_type": {"authorization_code"},
			"client_id":  {"unknown"},
			"code":       {"whatever"},
		})
		assert.Equal(t, oautherrors.StatusCodes[oautherrors.ErrInvalidClient], recorder.Code)
	})
}

func TestTokenRefreshGrant(t *testing.T) {
	exchange := func(t *testing.T, router *gin.Engine, provider *oauth.Provider) map[string]interface{} {
		t.Helper()
		code := issueCode(provider)
		recorder := postForm(router, "/oauth/token", url.Values{
			"grant_type":    {"authorization_code"},
			"client_id":     {"test-client"},
			"code":          {code},
			"code_verifier": {testVerifier},
			"redirect_uri":  {testRedirectURI},
		})
		require.Equal(t, http.StatusOK, recorder.Code)
		return decodeJSON(t, recorder)
	}

	t.Run("rotation", func(t *testing.T) {
		router, provider := newTestRouter(defaultClients())
		first := exchange(t, router, provider)

		recorder := postForm(router, "/oauth/token", url.Values{
			"grant_type":    {"refresh_token"},
			"client_id":     {"test-client"},
			"refresh_token": {first["refresh_token"].(string)},
		})
		require.Equal(t, http.StatusOK, recorder.Code)
		second := decodeJSON(t, recorder)
		assert.NotEqual(t, first["refresh_token"], second["refresh_token"])

		// The old token is gone after rotation
		replay := postForm(router, "/oauth/token", url.Values{
			"grant_type":    {"refresh_token"},
			"client_id":     {"test-client"},
			"refresh_token": {first["refresh_token"].(string)},
		})
		assert.Equal(t, oautherrors.StatusCodes[oautherrors.ErrInvalidGrant], replay.Code)
	})

	t.Run("scope widening is rejected", func(t *testing.T) {
		router, provider := newTestRouter(defaultClients())
		first := exchange(t, router, provider)

		recorder := postForm(router, "/oauth/token", url.Values{
			"grant_type":    {"refresh_token"},
			"client_id":     {"test-client"},
			"refresh_token": {first["refresh_token"].(string)},
			"scope":         {"mcp:read mcp:admin"},
		})
		assert.Equal(t, oautherrors.StatusCodes[oautherrors.ErrInvalidScope], recorder.Code)
		body := decodeJSON(t, recorder)
		assert.Equal(t, oautherrors.ErrInvalidScope.Error(), body["error"])
	})

	t.Run("missing refresh token", func(t *testing.T) {
		router, _ := newTestRouter(defaultClients())
		recorder := postForm(router, "/oauth/token", url.Values{
			"grant_type": {"refresh_token"},
			"client_id":  {"test-client"},
		})
		assert.Equal(t, oautherrors.StatusCodes[oautherrors.ErrInvalidRequest], recorder.Code)
	})
}

func TestTokenClientAuthentication(t *testing.T) {
	confidential := oauth.NewMemoryClientStore(&oauth.Client{
		ID:                      "confidential-client",
		Secret:                  "s3cret",
		TokenEndpointAuthMethod: "client_secret_post",
		RedirectURIs:            []string{testRedirectURI},
	})

	t.Run("wrong secret", func(t *testing.T) {
		router, _ := newTestRouter(confidential)
		recorder := postForm(router, "/oauth/token", url.Values{
			"grant_type":    {"authorization_code"},
			"client_id":     {"confidential-client"},
			"client_secret": {"wrong"},
			"code":          {"whatever"},
		})
		assert.Equal(t, oautherrors.StatusCodes[oautherrors.ErrInvalidClient], recorder.Code)
	})

	t.Run("basic auth works", func(t *testing.T) {
		router, provider := newTestRouter(confidential)
		code := provider.IssueAuthCode(oauth.AuthorizationCode{
			ClientID:      "confidential-client",
			UserID:        "alice",
			RedirectURI:   testRedirectURI,
			CodeChallenge: oauth.ComputeCodeChallenge(testVerifier),
			Scopes:        []string{"mcp:read"},
		})

		form := url.Values{
			"grant_type":    {"authorization_code"},
			"code":          {code},
			"code_verifier": {testVerifier},
			"redirect_uri":  {testRedirectURI},
		}
		req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth("confidential-client", "s3cret")

		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, req)
		assert.Equal(t, http.StatusOK, recorder.Code)
	})
}

func TestRegister(t *testing.T) {
	t.Run("successful registration", func(t *testing.T) {
		router, _ := newTestRouter(oauth.NewMemoryClientRegistry())

		payload := `{"client_name":"Example App","redirect_uris":["http://localhost:8090/callback"]}`
		req := httptest.NewRequest(http.MethodPost, "/oauth/register", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, req)

		require.Equal(t, http.StatusCreated, recorder.Code)
		body := decodeJSON(t, recorder)
		assert.NotEmpty(t, body["client_id"])
		assert.Equal(t, "Example App", body["client_name"])
		assert.Equal(t, "none", body["token_endpoint_auth_method"])
		assert.NotContains(t, body, "client_secret")
	})

	t.Run("confidential registration returns the secret once", func(t *testing.T) {
		router, provider := newTestRouter(oauth.NewMemoryClientRegistry())

		payload := `{"redirect_uris":["http://localhost:8090/callback"],"token_endpoint_auth_method":"client_secret_post"}`
		req := httptest.NewRequest(http.MethodPost, "/oauth/register", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, req)

		require.Equal(t, http.StatusCreated, recorder.Code)
		body := decodeJSON(t, recorder)
		require.NotEmpty(t, body["client_secret"])

		// Lookup afterwards never returns the secret again
		stored, err := provider.Clients().GetClient(req.Context(), body["client_id"].(string))
		require.NoError(t, err)
		assert.NotEmpty(t, stored.ID)
	})

	t.Run("missing redirect_uris", func(t *testing.T) {
		router, _ := newTestRouter(oauth.NewMemoryClientRegistry())

		req := httptest.NewRequest(http.MethodPost, "/oauth/register", strings.NewReader(`{"client_name":"X"}`))
		req.Header.Set("Content-Type", "application/json")
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		body := decodeJSON(t, recorder)
		assert.Equal(t, "invalid_client_metadata", body["error"])
	})

	t.Run("store without registration capability", func(t *testing.T) {
		router, _ := newTestRouter(defaultClients())

		payload := `{"redirect_uris":["http://localhost:8090/callback"]}`
		req := httptest.NewRequest(http.MethodPost, "/oauth/register", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})
}

func TestRevoke(t *testing.T) {
	t.Run("revoked token stops refreshing", func(t *testing.T) {
		router, provider := newTestRouter(defaultClients())
		code := issueCode(provider)
		exchangeRecorder := postForm(router, "/oauth/token", url.Values{
			"grant_type":    {"authorization_code"},
			"client_id":     {"test-client"},
			"code":          {code},
			"code_verifier": {testVerifier},
			"redirect_uri":  {testRedirectURI},
		})
		require.Equal(t, http.StatusOK, exchangeRecorder.Code)
		refreshToken := decodeJSON(t, exchangeRecorder)["refresh_token"].(string)

		recorder := postForm(router, "/oauth/revoke", url.Values{
			"client_id": {"test-client"},
			"token":     {refreshToken},
		})
		assert.Equal(t, http.StatusOK, recorder.Code)

		replay := postForm(router, "/oauth/token", url.Values{
			"grant_type":    {"refresh_token"},
			"client_id":     {"test-client"},
			"refresh_token": {refreshToken},
		})
		assert.Equal(t, oautherrors.StatusCodes[oautherrors.ErrInvalidGrant], replay.Code)
	})

	t.Run("unknown token still returns 200", func(t *testing.T) {
		router, _ := newTestRouter(defaultClients())
		recorder := postForm(router, "/oauth/revoke", url.Values{
			"client_id": {"test-client"},
			"token":     {"no-such-token"},
		})
		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("missing token parameter", func(t *testing.T) {
		router, _ := newTestRouter(defaultClients())
		recorder := postForm(router, "/oauth/revoke", url.Values{
			"client_id": {"test-client"},
		})
		assert.Equal(t, oautherrors.StatusCodes[oautherrors.ErrInvalidRequest], recorder.Code)
	})
}

func TestTokenEndpointWithoutSigningSecret(t *testing.T) {
	provider := oauth.NewProvider(defaultClients(), oauth.NewCodeStore(), oauth.NewRefreshStore(), oauth.NewTokenCodec(""))
	controller := NewOAuthController(provider, testIssuer)
	router := gin.New()
	router.POST("/oauth/token", controller.Token)

	code := provider.IssueAuthCode(oauth.AuthorizationCode{
		ClientID:      "test-client",
		UserID:        "alice",
		RedirectURI:   testRedirectURI,
		CodeChallenge: oauth.ComputeCodeChallenge(testVerifier),
	})

	recorder := postForm(router, "/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {"test-client"},
		"code":          {code},
		"code_verifier": {testVerifier},
		"redirect_uri":  {testRedirectURI},
	})

	// Misconfiguration is a server error, never invalid_grant
	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	body := decodeJSON(t, recorder)
	assert.Equal(t, oautherrors.ErrServerError.Error(), body["error"])
}
