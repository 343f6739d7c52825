package api

import (
	"context"
	"net/http"

	"github.com/narvanalabs/travel-buddy/internal/models"
)

// LoginRequest is the body of POST /login/.
type LoginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Password        string `json:"password"`
}

// LoginResponse is the body returned by a successful login.
type LoginResponse struct {
	Tokens models.Tokens `json:"tokens"`
	User   models.User   `json:"user"`
}

// RefreshRequest is the body of POST /token/refresh/.
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// RefreshResponse carries the renewed access token.
type RefreshResponse struct {
	Access string `json:"access"`
}

// Login exchanges credentials for a token pair and the user's identity.
func (c *Client) Login(ctx context.Context, usernameOrEmail, password string) (*LoginResponse, error) {
	var resp LoginResponse
	err := c.do(ctx, http.MethodPost, "/login/", LoginRequest{
		UsernameOrEmail: usernameOrEmail,
		Password:        password,
	}, &resp, false)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// RefreshToken exchanges a refresh token for a new access token.
func (c *Client) RefreshToken(ctx context.Context, refresh string) (string, error) {
	var resp RefreshResponse
	if err := c.do(ctx, http.MethodPost, "/token/refresh/", RefreshRequest{Refresh: refresh}, &resp, false); err != nil {
		return "", err
	}
	return resp.Access, nil
}

// Profile fetches the signed-in user's profile.
func (c *Client) Profile(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.get(ctx, "/profile/", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CheckSubscription fetches the user's premium plan status.
func (c *Client) CheckSubscription(ctx context.Context) (*models.Subscription, error) {
	var sub models.Subscription
	if err := c.get(ctx, "/check-subscription/", &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}
