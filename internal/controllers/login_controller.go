package controllers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/nextmcp/nextcloud-mcp-gateway/internal/nextcloud"
	"github.com/nextmcp/nextcloud-mcp-gateway/internal/oauth"
)

// LoginController is the terminal step of the authorization leg. It verifies
// the submitted Nextcloud credentials against the OCS API and, on success,
// asks the provider for a single-use authorization code.
type LoginController struct {
	provider *oauth.Provider
	identity *nextcloud.IdentityClient
}

func NewLoginController(provider *oauth.Provider, identity *nextcloud.IdentityClient) *LoginController {
	return &LoginController{
		provider: provider,
		identity: identity,
	}
}

// Login handles the POST from the login form.
func (lc *LoginController) Login(c *gin.Context) {
	// Configuration check comes first: without a Nextcloud server there is
	// nothing to verify against, and no network I/O should be attempted.
	if lc.identity == nil || lc.identity.BaseURL() == "" {
		log.Error("Login attempted without NEXTCLOUD_URL configured")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_configuration_error"})
		return
	}

	username := c.PostForm("username")
	password := c.PostForm("password")
	form := oauth.LoginFormData{
		ClientID:      c.PostForm("client_id"),
		RedirectURI:   c.PostForm("redirect_uri"),
		CodeChallenge: c.PostForm("code_challenge"),
		State:         c.PostForm("state"),
		Scope:         c.PostForm("scope"),
	}

	if username == "" || password == "" || form.ClientID == "" || form.RedirectURI == "" || form.CodeChallenge == "" {
		form.Error = "All fields are required."
		lc.renderForm(c, http.StatusBadRequest, form)
		return
	}

	redirectURL, err := url.Parse(form.RedirectURI)
	if err != nil {
		form.Error = "The redirect URI is not valid."
		lc.renderForm(c, http.StatusBadRequest, form)
		return
	}

	if err := lc.identity.VerifyCredentials(c.Request.Context(), username, password); err != nil {
		if errors.Is(err, nextcloud.ErrInvalidCredentials) {
			form.Error = "Invalid username or password."
		} else {
			// Transport failure: log the cause, show the user a generic message
			log.WithError(err).Error("Nextcloud credential verification failed")
			form.Error = "Authentication failed. Please try again."
		}
		lc.renderForm(c, http.StatusOK, form)
		return
	}

	code := lc.provider.IssueAuthCode(oauth.AuthorizationCode{
		ClientID:      form.ClientID,
		UserID:        username,
		RedirectURI:   form.RedirectURI,
		CodeChallenge: form.CodeChallenge,
		Scopes:        strings.Fields(form.Scope),
		State:         form.State,
	})

	query := redirectURL.Query()
	query.Set("code", code)
	if form.State != "" {
		query.Set("state", form.State)
	}
	redirectURL.RawQuery = query.Encode()

	log.WithFields(log.Fields{"client_id": form.ClientID, "user": username}).Info("Authorization code issued")
	c.Redirect(http.StatusFound, redirectURL.String())
}

// renderForm re-renders the login page, preserving the authorization request
// context so the user can retry without re-navigating.
func (lc *LoginController) renderForm(c *gin.Context, status int, form oauth.LoginFormData) {
	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := oauth.RenderLoginForm(c.Writer, form); err != nil {
		log.WithError(err).Error("Failed to render login form")
	}
}
