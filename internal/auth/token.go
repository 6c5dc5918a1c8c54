// Package auth exchanges a long-lived OAuth refresh token for short-lived
// bearer tokens and holds the current token for the run.
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

	"github.com/JonMunkholm/crmwriter/internal/logging"
)

// DefaultTokenURL is the token endpoint used when none is configured.
const DefaultTokenURL = "https://login.microsoftonline.com/common/oauth2/token"

// AuthError is returned when the token endpoint rejects the refresh. It is
// always fatal.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("token refresh failed: received %d - %s", e.StatusCode, e.Body)
}

// Credentials identify the client and the resource the token is issued for.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Resource     string // organization URL; a trailing slash is added if missing
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    json.Number `json:"expires_in"`
	RefreshToken string      `json:"refresh_token"`
}

// TokenManager holds the bearer token. Refresh replaces it under a write
// lock, so readers see either the old or the new token.
type TokenManager struct {
	tokenURL   string
	httpClient *http.Client

	mu          sync.RWMutex
	creds       Credentials
	accessToken string
	refreshedAt time.Time
}

// NewTokenManager creates a TokenManager. An empty tokenURL selects
// DefaultTokenURL; a nil httpClient selects a client with a 30s timeout.
func NewTokenManager(tokenURL string, creds Credentials, httpClient *http.Client) *TokenManager {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if !strings.HasSuffix(creds.Resource, "/") {
		creds.Resource += "/"
	}
	return &TokenManager{
		tokenURL:   tokenURL,
		httpClient: httpClient,
		creds:      creds,
	}
}

// Token returns the current bearer token, refreshing first if none is held.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.RLock()
	if m.accessToken != "" {
		token := m.accessToken
		m.mu.RUnlock()
		return token, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if m.accessToken != "" {
		return m.accessToken, nil
	}
	return m.refreshLocked(ctx)
}

// Refresh unconditionally exchanges the refresh token for a new bearer token.
func (m *TokenManager) Refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked(ctx)
}

// RefreshedAt reports when the current token was obtained.
func (m *TokenManager) RefreshedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refreshedAt
}

func (m *TokenManager) refreshLocked(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("client_id", m.creds.ClientID)
	form.Set("grant_type", "refresh_token")
	form.Set("client_secret", m.creds.ClientSecret)
	form.Set("resource", m.creds.Resource)
	form.Set("refresh_token", m.creds.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token refresh failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("token refresh failed: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("token refresh failed: decode response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: "response carries no access_token"}
	}

	m.accessToken = tr.AccessToken
	m.refreshedAt = time.Now()

	// Update refresh token if a new one was provided
	rotated := tr.RefreshToken != "" && tr.RefreshToken != m.creds.RefreshToken
	if rotated {
		m.creds.RefreshToken = tr.RefreshToken
	}

	logging.FromContext(ctx).Info("access token refreshed",
		"expires_in", tr.ExpiresIn.String(),
		"refresh_token_rotated", rotated,
	)
	return m.accessToken, nil
}
