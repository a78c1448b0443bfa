package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/myrecipebook/web-gateway/internal/models"
	"github.com/myrecipebook/web-gateway/internal/validation"
	"golang.org/x/oauth2"
)

const (
	// maxResponseBody caps how much of a backend response is read
	maxResponseBody = 1 << 20
)

var (
	// ErrUnavailable is returned when the backend cannot be reached or fails with a 5xx
	ErrUnavailable = errors.New("backend unavailable")
	// ErrMalformedResponse is returned when a 2xx body does not match the expected schema
	ErrMalformedResponse = errors.New("malformed backend response")
)

// APIError is a 4xx answer from the backend, with its error messages when present
type APIError struct {
	StatusCode int
	Messages   []string
}

func (e *APIError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, strings.Join(e.Messages, "; "))
}

// Client is a typed client for the MyRecipeBook REST backend
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (tests, custom transports)
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a backend client rooted at baseURL
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend root URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login posts credentials to /user/login and returns the validated login payload.
// A 4xx answer is returned as *APIError; transport failures and 5xx wrap ErrUnavailable.
func (c *Client) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	body := models.LoginRequest{Email: email, Password: password}

	resp, err := c.doJSON(ctx, c.httpClient, http.MethodPost, "/user/login", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode}
	}

	var out models.LoginResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := validation.Struct(out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return &out, nil
}

// Register creates a backend account
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) error {
	resp, err := c.doJSON(ctx, c.httpClient, http.MethodPost, "/user/register", req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// Logout revokes the backend session of accessToken. The bearer header is attached by
// an oauth2 static token source wrapping the client's transport.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return fmt.Errorf("logout requires an access token")
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	bearer := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	bearer.Timeout = c.httpClient.Timeout

	resp, err := c.doJSON(ctx, bearer, http.MethodPost, "/user/logout", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// RequestPasswordResetCode asks the backend to email a reset code
func (c *Client) RequestPasswordResetCode(ctx context.Context, email string) error {
	resp, err := c.doJSON(ctx, c.httpClient, http.MethodGet, "/user/get-reset-password-code/"+url.PathEscape(email), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// ResetPassword sets a new password using a previously emailed code
func (c *Client) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	resp, err := c.doJSON(ctx, c.httpClient, http.MethodPost, "/user/reset-password", req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// GoogleLoginURL returns the backend OAuth bridge URL that redirects back to returnURL
func (c *Client) GoogleLoginURL(returnURL string) string {
	return c.baseURL + "/user/login/google?returnUrl=" + url.QueryEscape(returnURL)
}

// Ping reports whether the backend answers HTTP at all
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, hc *http.Client, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	return resp, nil
}

// checkStatus maps non-2xx responses to ErrUnavailable (5xx) or *APIError (4xx)
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var be models.BackendError
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&be); err == nil {
		apiErr.Messages = be.ErrorMessages
	}
	return apiErr
}
