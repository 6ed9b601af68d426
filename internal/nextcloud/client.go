package nextcloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// defaultTimeout bounds the credential check against the Nextcloud server.
// It is the only blocking network call on the authorization leg.
const defaultTimeout = 10 * time.Second

// ErrInvalidCredentials indicates Nextcloud rejected the username/password
// combination (non-2xx from the whoami endpoint).
var ErrInvalidCredentials = errors.New("invalid Nextcloud credentials")

// IdentityClient talks to the Nextcloud OCS API. The gateway never stores
// passwords; it only forwards them once to verify a login.
type IdentityClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewIdentityClient creates a client for the Nextcloud server at baseURL.
func NewIdentityClient(baseURL string) *IdentityClient {
	return &IdentityClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// BaseURL returns the configured Nextcloud server URL.
func (c *IdentityClient) BaseURL() string {
	return c.baseURL
}

// VerifyCredentials checks the username/password pair against the OCS
// "current user" endpoint using HTTP Basic auth. A non-2xx status means the
// credentials are wrong; transport failures are returned as-is so callers
// can distinguish them from a rejection.
func (c *IdentityClient) VerifyCredentials(ctx context.Context, username, password string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ocs/v2.php/cloud/user", nil)
	if err != nil {
		return fmt.Errorf("building credential check request: %w", err)
	}
	req.SetBasicAuth(username, password)
	req.Header.Set("OCS-APIRequest", "true")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("credential check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.WithFields(log.Fields{"status": resp.StatusCode, "username": username}).Debug("Nextcloud rejected credentials")
		return ErrInvalidCredentials
	}
	return nil
}

// Status is the public server status document from status.php.
type Status struct {
	Installed     bool   `json:"installed"`
	Maintenance   bool   `json:"maintenance"`
	Version       string `json:"version"`
	VersionString string `json:"versionstring"`
	Edition       string `json:"edition"`
	ProductName   string `json:"productname"`
}

// ServerStatus fetches the unauthenticated status.php document.
func (c *IdentityClient) ServerStatus(ctx context.Context) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status.php", nil)
	if err != nil {
		return nil, fmt.Errorf("building status request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from status.php", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading status response: %w", err)
	}
	var status Status
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("decoding status response: %w", err)
	}
	return &status, nil
}
