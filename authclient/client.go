package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/MrEthical07/authguard"
	"github.com/MrEthical07/authguard/session"
)

const (
	defaultLoginPath   = "/v1/login"
	defaultRefreshPath = "/v1/refresh"
	defaultTimeout     = 10 * time.Second

	// maxBodyBytes bounds how much of a response body is decoded.
	maxBodyBytes = 1 << 20
)

// Client talks to a token service. It is safe for concurrent use.
type Client struct {
	base        *url.URL
	httpClient  *http.Client
	loginPath   string
	refreshPath string
	userAgent   string
}

var _ authguard.Authenticator = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithPaths overrides the login and refresh endpoint paths.
func WithPaths(login, refresh string) Option {
	return func(cl *Client) {
		if login != "" {
			cl.loginPath = login
		}
		if refresh != "" {
			cl.refreshPath = refresh
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) { cl.userAgent = ua }
}

// New returns a Client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("base_url", baseURL).Wrap(err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, oops.Code("CONFIG_INVALID").With("base_url", baseURL).Errorf("base url must be http or https")
	}
	if u.Host == "" {
		return nil, oops.Code("CONFIG_INVALID").With("base_url", baseURL).Errorf("base url has no host")
	}

	c := &Client{
		base:        u,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		loginPath:   defaultLoginPath,
		refreshPath: defaultRefreshPath,
		userAgent:   "authguard",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	TOTPCode   string `json:"totp_code,omitempty"`
}

type userPayload struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

type loginResponse struct {
	User      userPayload `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt *time.Time  `json:"expires_at"`
}

type refreshRequest struct {
	Token string `json:"token"`
}

type refreshResponse struct {
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// Verify exchanges credentials for a token.
func (c *Client) Verify(ctx context.Context, creds authguard.Credentials) (authguard.Grant, error) {
	var out loginResponse
	err := c.post(ctx, c.loginPath, "", loginRequest{
		Identifier: creds.Identifier,
		Password:   creds.Password,
		TOTPCode:   creds.TOTPCode,
	}, &out, authguard.ErrInvalidCredentials)
	if err != nil {
		return authguard.Grant{}, err
	}
	if out.Token == "" || out.User.ID == "" {
		return authguard.Grant{}, oops.Code("AUTH_BAD_RESPONSE").
			With("endpoint", c.loginPath).
			Wrapf(authguard.ErrServiceUnavailable, "login response missing token or user id")
	}

	grant := authguard.Grant{
		User: session.Identity{
			ID:    out.User.ID,
			Name:  out.User.Name,
			Email: out.User.Email,
			Roles: out.User.Roles,
		},
		Token: out.Token,
	}
	if out.ExpiresAt != nil {
		grant.ExpiresAt = *out.ExpiresAt
	}
	return grant, nil
}

// Renew exchanges a live token for a fresh one.
func (c *Client) Renew(ctx context.Context, token string) (authguard.Renewal, error) {
	var out refreshResponse
	if err := c.post(ctx, c.refreshPath, token, refreshRequest{Token: token}, &out, authguard.ErrTokenExpired); err != nil {
		return authguard.Renewal{}, err
	}
	if out.Token == "" {
		return authguard.Renewal{}, oops.Code("AUTH_BAD_RESPONSE").
			With("endpoint", c.refreshPath).
			Wrapf(authguard.ErrServiceUnavailable, "refresh response missing token")
	}

	renewal := authguard.Renewal{Token: out.Token}
	if out.ExpiresAt != nil {
		renewal.ExpiresAt = *out.ExpiresAt
	}
	return renewal, nil
}

// post sends body as JSON and decodes a 2xx answer into out. rejected is the
// sentinel reported for 401 and 403.
func (c *Client) post(ctx context.Context, path, bearer string, body, out any, rejected error) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return oops.Code("AUTH_ENCODE").With("endpoint", path).Wrap(err)
	}

	endpoint := c.base.JoinPath(path).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return oops.Code("AUTH_REQUEST").With("endpoint", path).Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(path, err)
	}
	defer resp.Body.Close()

	if err := statusError(path, resp, rejected); err != nil {
		return err
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return oops.Code("AUTH_BAD_RESPONSE").
			With("endpoint", path).
			With("status", resp.StatusCode).
			Wrapf(authguard.ErrServiceUnavailable, "decode response: %v", err)
	}
	return nil
}

func transportError(path string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return oops.Code("AUTH_CANCELED").With("endpoint", path).Wrap(err)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return oops.Code("AUTH_TIMEOUT").With("endpoint", path).Wrapf(authguard.ErrTimeout, "%v", err)
	default:
		return oops.Code("AUTH_UNREACHABLE").With("endpoint", path).Wrapf(authguard.ErrServiceUnavailable, "%v", err)
	}
}

func statusError(path string, resp *http.Response, rejected error) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}

	builder := oops.Code("AUTH_STATUS").
		With("endpoint", path).
		With("status", code)
	if msg := readMessage(resp.Body); msg != "" {
		builder = builder.With("message", msg)
	}

	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return builder.Wrapf(rejected, "service answered %d", code)
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return builder.Wrapf(authguard.ErrTimeout, "service answered %d", code)
	default:
		return builder.Wrapf(authguard.ErrServiceUnavailable, "service answered %d", code)
	}
}

// readMessage extracts {"error": "..."} from an error body, if present.
func readMessage(r io.Reader) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.Error)
}
