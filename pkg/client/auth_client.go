package client

import (
	"context"
	"net/http"

	pkgerrors "github.com/pkg/errors"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name     string `json:"nombre"`
	Surname  string `json:"apellido"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"telefono,omitempty"`
	Address  string `json:"direccion,omitempty"`
	City     string `json:"ciudad,omitempty"`
}

type loginResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"accessToken"`
}

// Login exchanges credentials for a bearer token. The backend names the field
// either "token" or "accessToken".
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var res loginResponse
	if err := c.do(ctx, http.MethodPost, loginPath, nil, LoginRequest{Email: email, Password: password}, &res); err != nil {
		return "", pkgerrors.Wrap(err, "login failed")
	}
	if res.Token != "" {
		return res.Token, nil
	}
	if res.AccessToken != "" {
		return res.AccessToken, nil
	}
	return "", ErrNoToken
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	return pkgerrors.Wrap(c.do(ctx, http.MethodPost, registerPath, nil, req, nil), "register failed")
}
