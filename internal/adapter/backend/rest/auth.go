package rest

import (
	"context"
	"net/http"

	"github.com/trackfit/trackfit/internal/adapter/backend"
	"github.com/trackfit/trackfit/internal/domain/user"
)

// The hosted auth API issues bearer tokens and keeps the accounts.
// The application only ever reads the account identity back; device
// metadata rides along for the service's session listing.

type sessionResponse struct {
	AccessToken string          `json:"access_token"`
	User        backend.Account `json:"user"`
}

func (c *Client) SignUp(ctx context.Context, email, password, displayName string, dev user.Device) (backend.Session, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data": map[string]any{
			"display_name": displayName,
		},
		"device": deviceBody(dev),
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/auth/v1/signup", body)
	if err != nil {
		return backend.Session{}, err
	}

	var resp sessionResponse
	if err := c.do(req, &resp); err != nil {
		return backend.Session{}, err
	}
	return backend.Session{Account: resp.User, AccessToken: resp.AccessToken}, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string, dev user.Device) (backend.Session, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"device":   deviceBody(dev),
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", body)
	if err != nil {
		return backend.Session{}, err
	}

	var resp sessionResponse
	if err := c.do(req, &resp); err != nil {
		return backend.Session{}, err
	}
	return backend.Session{Account: resp.User, AccessToken: resp.AccessToken}, nil
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/v1/logout", nil)
	if err != nil {
		return err
	}
	return c.do(withBearer(req, accessToken), nil)
}

func (c *Client) Validate(ctx context.Context, accessToken string) (backend.Account, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/auth/v1/user", nil)
	if err != nil {
		return backend.Account{}, err
	}

	var acc backend.Account
	if err := c.do(withBearer(req, accessToken), &acc); err != nil {
		return backend.Account{}, err
	}
	return acc, nil
}

func deviceBody(dev user.Device) map[string]any {
	return map[string]any{
		"browser":    dev.Browser,
		"os":         dev.OS,
		"ip_address": dev.IPAddress,
		"model":      dev.Model,
	}
}
