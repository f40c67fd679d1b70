// internal/common/auth/channelcreds.go
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"guestflow-engine/internal/common/errors"
)

// tokenRequestTimeout caps a single token fetch; the refresh job owns
// retries.
const tokenRequestTimeout = 30 * time.Second

// ChannelCredentialsClient fetches and caches the access token the outbound
// messaging channels authenticate with. A periodic job calls Refresh ahead
// of expiry so dispatch never blocks on a token fetch.
type ChannelCredentialsClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// TokenResponse holds the response from the credential service token endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope,omitempty"`
}

// NewChannelCredentialsClient creates a new instance of ChannelCredentialsClient.
func NewChannelCredentialsClient(baseURL, clientID, clientSecret string) *ChannelCredentialsClient {
	return &ChannelCredentialsClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: tokenRequestTimeout},
	}
}

// Refresh fetches a new access token using the client credentials flow and
// caches it with its expiry. Always fetches, regardless of cached state.
func (c *ChannelCredentialsClient) Refresh(ctx context.Context) error {
	tokenURL := fmt.Sprintf("%s/oauth/token", c.baseURL)

	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, "POST", tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return errors.NewCredentialRefreshFailedError(fmt.Errorf("create token request: %w", err))
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewCredentialRefreshFailedError(fmt.Errorf("execute token request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return errors.NewCredentialRefreshFailedError(
			fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body)))
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return errors.NewCredentialRefreshFailedError(fmt.Errorf("decode token response: %w", err))
	}

	c.mu.Lock()
	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	c.mu.Unlock()

	return nil
}

// Token returns the cached access token and whether it is still valid.
func (c *ChannelCredentialsClient) Token() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, c.accessToken != "" && c.tokenExpiry.After(time.Now())
}
