package api

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/crmwriter/internal/logging"
)

// TokenSource supplies bearer tokens. *auth.TokenManager implements it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// ReauthPolicy re-issues a request exactly once after a 401, with a freshly
// refreshed token. A second 401 is returned to the caller as-is.
type ReauthPolicy struct {
	tokens TokenSource
}

// NewReauthPolicy creates a ReauthPolicy.
func NewReauthPolicy(tokens TokenSource) *ReauthPolicy {
	return &ReauthPolicy{tokens: tokens}
}

// Execute calls send with the current token and, on 401, once more with a
// refreshed one. Token errors are returned unchanged and are fatal.
func (p *ReauthPolicy) Execute(ctx context.Context, send func(ctx context.Context, token string) (*Response, error)) (*Response, error) {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := send(ctx, token)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	logging.FromContext(ctx).Info("access token rejected, refreshing")
	token, err = p.tokens.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	return send(ctx, token)
}

// Session is a Client whose requests carry a bearer token managed by a
// ReauthPolicy.
type Session struct {
	client *Client
	reauth *ReauthPolicy
}

// NewSession creates a Session.
func NewSession(client *Client, tokens TokenSource) *Session {
	return &Session{client: client, reauth: NewReauthPolicy(tokens)}
}

// Do executes req with authorization, retry and one re-authentication.
func (s *Session) Do(ctx context.Context, req *Request) (*Response, error) {
	return s.reauth.Execute(ctx, func(ctx context.Context, token string) (*Response, error) {
		return s.client.Do(ctx, req.withHeader("Authorization", "Bearer "+token))
	})
}
