package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/arunshreyas/Marketa/internal/domain"
)

// Signup creates an account and returns the issued token.
func (c *Client) Signup(ctx context.Context, req domain.SignupRequest) (*domain.AuthResponse, error) {
	var resp domain.AuthResponse
	if err := c.do(ctx, request{op: "signup", method: http.MethodPost, path: "/signup", body: req}, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("signup: %w: response has no token", domain.ErrInvalidPayload)
	}
	return &resp, nil
}

// Login exchanges credentials for a token. A 401 here means bad credentials;
// it does not touch the session.
func (c *Client) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResponse, error) {
	var resp domain.AuthResponse
	if err := c.do(ctx, request{op: "login", method: http.MethodPost, path: "/login", body: req}, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("login: %w: response has no token", domain.ErrInvalidPayload)
	}
	return &resp, nil
}

// OAuthURL returns the address that starts the provider's sign-in flow. The
// backend redirects back with the token in the query string.
func (c *Client) OAuthURL(provider domain.OAuthProvider) (string, error) {
	if !provider.Valid() {
		return "", fmt.Errorf("unsupported oauth provider %q", provider)
	}
	return c.baseURL + "/auth/" + string(provider), nil
}
