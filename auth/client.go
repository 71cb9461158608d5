package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// LoginInput is the credentials payload for the backend's login endpoint.
type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Client signs in against the REST backend and stores the issued token in a
// Credential.
type Client struct {
	// BaseURL is the HTTP origin, e.g. "http://localhost:8000".
	BaseURL string
	// HTTP defaults to http.DefaultClient.
	HTTP *http.Client
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

// Login exchanges credentials for a bearer token and stores it in cred.
func (c *Client) Login(ctx context.Context, in LoginInput, cred *Credential) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode login input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint("/api/auth/login"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("login: unexpected status %d", res.StatusCode)
	}

	var out loginResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}
	if out.Token == "" {
		return fmt.Errorf("login: empty token in response")
	}

	cred.Set(out.Token)
	return nil
}

// Logout clears the stored credential. The backend session, if any, is left
// to expire on its own.
func (c *Client) Logout(cred *Credential) {
	cred.Clear()
}
