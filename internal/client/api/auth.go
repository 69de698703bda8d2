package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/cloudzz-dev/rosterchat/internal/models"
)

// Login exchanges credentials for a token. It never triggers the
// unauthorized handler: a rejected login is just a failed login.
func (c *Client) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	var out models.AuthResponse
	err := c.do(ctx, request{method: http.MethodPost, path: "/auth/login", body: req, out: &out})
	if err != nil {
		switch StatusCode(err) {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusBadRequest:
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if out.Token == "" {
		return nil, errors.New("login response carried no token")
	}
	return &out, nil
}

// Register creates an account. Backends answer either with an
// AuthResponse or with the created User; both shapes are accepted.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	var out struct {
		Token    string `json:"token"`
		UserID   string `json:"userId"`
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/register", body: req, out: &out}); err != nil {
		return nil, err
	}
	resp := &models.AuthResponse{Token: out.Token, UserID: out.UserID, Username: out.Username}
	if resp.UserID == "" {
		resp.UserID = out.ID
	}
	if resp.Username == "" {
		resp.Username = req.Username
	}
	return resp, nil
}
