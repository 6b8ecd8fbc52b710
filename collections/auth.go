// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package collections

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielhkuo/quickly-elect/dispatch"
	"github.com/danielhkuo/quickly-elect/models"
)

// ErrNoCredentialStore is returned by SignOut on a client built without a store.
var ErrNoCredentialStore = errors.New("client has no credential store")

// SignUp creates an account and stores the returned session token.
func (c *Client) SignUp(ctx context.Context, req models.SignUpRequest) (models.User, error) {
	return c.startSession(ctx, "/signup", req)
}

// SignIn exchanges credentials for a session token. The token is persisted
// only when the server accepts the credentials.
func (c *Client) SignIn(ctx context.Context, email, password string) (models.User, error) {
	return c.startSession(ctx, "/login", models.SignInRequest{Email: email, Password: password})
}

func (c *Client) startSession(ctx context.Context, path string, body any) (models.User, error) {
	if c.creds == nil {
		return models.User{}, ErrNoCredentialStore
	}

	raw, err := c.d.Do(ctx, path, dispatch.Options{
		Method: http.MethodPost,
		Body:   body,
		// Retrying a rejected password only burns rate limit.
		Retries: dispatch.RetryCount(0),
	})
	if err != nil {
		return models.User{}, err
	}

	var resp models.SessionResponse
	if err := decodeBody(raw, &resp); err != nil {
		return models.User{}, err
	}
	if resp.Token == "" {
		return models.User{}, fmt.Errorf("session token missing from response")
	}
	if err := c.creds.Save(ctx, resp.Token); err != nil {
		return models.User{}, err
	}
	return resp.User, nil
}

// SignOut revokes the session server-side and always forgets it locally.
func (c *Client) SignOut(ctx context.Context) error {
	if c.creds == nil {
		return ErrNoCredentialStore
	}
	_, err := c.d.Do(ctx, "/logout", dispatch.Options{Method: http.MethodPost, Retries: dispatch.RetryCount(0)})
	if err != nil && !dispatch.IsAborted(err) {
		slog.Warn("server sign-out failed", "error", err)
	}
	return c.creds.Clear(ctx)
}

// CurrentUser returns the signed-in user.
func (c *Client) CurrentUser(ctx context.Context) (models.User, error) {
	raw, err := c.d.Do(ctx, "/users/me", dispatch.Options{Method: http.MethodGet})
	if err != nil {
		return models.User{}, err
	}
	var user models.User
	if err := decodeBody(raw, &user); err != nil {
		return models.User{}, err
	}
	return user, nil
}
