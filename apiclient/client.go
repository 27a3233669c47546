// Package apiclient is the typed HTTP client for the portal's /auth endpoints.
// Responses are checked against the auth contract before they are decoded, and
// every failure is returned as an *authapi.Error.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/as2-portal-session/authapi"
	"github.com/jrsteele09/as2-portal-session/users"
	"github.com/rs/zerolog"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 1 << 20
)

type operation string

const (
	opLogin    operation = "login"
	opRegister operation = "register"
	opRefresh  operation = "refresh"
	opMe       operation = "me"
	opLogout   operation = "logout"
)

type validatable interface {
	Validate() error
}

type Client struct {
	baseURL   string
	http      *http.Client
	contract  *authapi.Contract
	userAgent string
	logger    zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout bounds every request, on top of any context deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		hc := *c.http
		hc.Timeout = timeout
		c.http = &hc
	}
}

// WithContract replaces the embedded contract. A nil contract disables response validation.
func WithContract(contract *authapi.Contract) Option {
	return func(c *Client) {
		c.contract = contract
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New returns a client for the portal API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	contract, err := authapi.DefaultContract()
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		http:      &http.Client{Timeout: defaultTimeout},
		contract:  contract,
		userAgent: "as2-portal-session",
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login exchanges credentials for a token pair and the user's profile.
func (c *Client) Login(ctx context.Context, credentials authapi.LoginRequest) (*authapi.TokenResponse, error) {
	var out authapi.TokenResponse
	if err := c.do(ctx, opLogin, http.MethodPost, authapi.PathLogin, "", credentials, http.StatusOK, &out); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, &authapi.Error{Kind: authapi.KindMalformedResponse, Status: http.StatusOK, Message: "login response has no user"}
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, registration authapi.RegisterRequest) (*users.Profile, error) {
	var out authapi.UserResponse
	if err := c.do(ctx, opRegister, http.MethodPost, authapi.PathRegister, "", registration, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Refresh exchanges refreshToken for a new pair. The previous refresh token is
// invalid afterwards.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*authapi.TokenResponse, error) {
	var out authapi.TokenResponse
	in := authapi.RefreshRequest{RefreshToken: refreshToken}
	if err := c.do(ctx, opRefresh, http.MethodPost, authapi.PathRefresh, "", in, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CurrentUser(ctx context.Context, accessToken string) (*users.Profile, error) {
	var out authapi.UserResponse
	if err := c.do(ctx, opMe, http.MethodGet, authapi.PathMe, accessToken, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Logout asks the backend to revoke the access token and delete the refresh token.
func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) error {
	in := authapi.LogoutRequest{RefreshToken: refreshToken}
	return c.do(ctx, opLogout, http.MethodPost, authapi.PathLogout, accessToken, in, http.StatusNoContent, nil)
}

func (c *Client) do(ctx context.Context, op operation, method, path, accessToken string, in any, wantStatus int, out validatable) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &authapi.Error{Kind: authapi.KindUnknown, Message: "encoding request", Err: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &authapi.Error{Kind: authapi.KindNetwork, Message: "building request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", authapi.TokenTypeBearer+" "+accessToken)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("op", string(op)).Dur("elapsed", time.Since(start)).Msg("auth api call failed")
		return &authapi.Error{Kind: authapi.KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &authapi.Error{Kind: authapi.KindNetwork, Status: resp.StatusCode, Message: "reading response", Err: err}
	}

	c.logger.Debug().
		Str("op", string(op)).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Str("request_id", req.Header.Get("X-Request-ID")).
		Msg("auth api call")

	if resp.StatusCode != wantStatus {
		return classify(op, resp.StatusCode, data)
	}

	if c.contract != nil {
		if err := c.contract.ValidateResponse(ctx, path, req, resp.StatusCode, resp.Header, data); err != nil {
			return &authapi.Error{Kind: authapi.KindMalformedResponse, Status: resp.StatusCode, Message: "response violates the auth contract", Err: err}
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &authapi.Error{Kind: authapi.KindMalformedResponse, Status: resp.StatusCode, Message: "decoding response", Err: err}
	}
	if err := out.Validate(); err != nil {
		return &authapi.Error{Kind: authapi.KindMalformedResponse, Status: resp.StatusCode, Err: err}
	}
	return nil
}

// classify maps a non-success response onto the error taxonomy. The body is
// decoded best effort since proxies in front of the portal may answer with HTML.
func classify(op operation, status int, data []byte) *authapi.Error {
	var er authapi.ErrorResponse
	_ = json.Unmarshal(data, &er)

	e := &authapi.Error{
		Status:  status,
		Code:    er.Error,
		Message: er.ErrorDescription,
		Fields:  er.Fields,
	}

	switch {
	case status >= http.StatusInternalServerError:
		e.Kind = authapi.KindServer
	case status == http.StatusTooManyRequests:
		e.Kind = authapi.KindRateLimited
	case status == http.StatusLocked || er.Error == authapi.CodeAccountLocked:
		e.Kind = authapi.KindAccountLocked
	case status == http.StatusUnauthorized && op == opLogin:
		e.Kind = authapi.KindInvalidCredentials
	case status == http.StatusForbidden && op == opLogin:
		e.Kind = authapi.KindAccountLocked
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = authapi.KindTokenInvalid
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		e.Kind = authapi.KindValidation
	case status == http.StatusConflict:
		e.Kind = authapi.KindValidation
		if len(e.Fields) == 0 {
			msg := er.ErrorDescription
			if msg == "" {
				msg = "email is already registered"
			}
			e.Fields = map[string]string{"email": msg}
		}
	case status >= 200 && status < 300:
		e.Kind = authapi.KindMalformedResponse
		e.Message = fmt.Sprintf("unexpected status %d", status)
	default:
		e.Kind = authapi.KindUnknown
	}
	return e
}
