package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultBaseURL is the production MyGregor API.
	DefaultBaseURL = "https://api.mygregor.com"

	// defaultTimeout bounds every request when the caller sets none.
	defaultTimeout = 10 * time.Second

	// maxResponseSize caps how much of a response body is read.
	maxResponseSize = 4 << 20
)

// Logger defines the logging interface used by the Client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Client.
type Options struct {
	// BaseURL of the API. Default: https://api.mygregor.com
	BaseURL string

	// Timeout is applied to the default HTTP client. Ignored when HTTPClient is set.
	Timeout time.Duration

	// HTTPClient overrides the transport.
	HTTPClient *http.Client

	// Logger is optional.
	Logger Logger
}

// Client talks to the MyGregor cloud API with a bearer token.
//
// The only state is the token and its expiry. Expiry is recorded but not
// enforced; callers re-authenticate out of band. No request is retried.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     Logger

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// NewClient creates a Client without a token.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimSuffix(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	var logger Logger = noopLogger{}
	if opts.Logger != nil {
		logger = opts.Logger
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// SetAccessToken stores a bearer token. A positive expiresIn records when
// the token lapses; zero clears any previous expiry.
func (c *Client) SetAccessToken(token string, expiresIn time.Duration) {
	c.mu.Lock()
	c.token = token
	if expiresIn > 0 {
		c.expiresAt = time.Now().Add(expiresIn)
	} else {
		c.expiresAt = time.Time{}
	}
	expiresAt := c.expiresAt
	c.mu.Unlock()

	c.logger.Debug("cloud access token set", "expires_at", expiresAt)
}

// AccessToken returns the current bearer token, or "" when none is set.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// TokenExpiresAt returns the recorded expiry. ok is false when none was given.
func (c *Client) TokenExpiresAt() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expiresAt, !c.expiresAt.IsZero()
}

// authRequest is the body of POST /v2/auth.
type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authResponse is the body returned by POST /v2/auth.
type authResponse struct {
	Token             string      `json:"token"`
	TokenExpiresAfter json.Number `json:"token_expires_after"`
}

// Token is the result of a successful authentication.
type Token struct {
	AccessToken string
	ExpiresIn   time.Duration
}

// Authenticate exchanges credentials for a token and stores it on the client.
//
// A 400 answer means bad credentials and yields ErrUnauthorized; any other
// non-2xx answer yields an *APIError.
func (c *Client) Authenticate(ctx context.Context, username, password string) (Token, error) {
	const path = "/v2/auth"

	body, err := json.Marshal(authRequest{Email: username, Password: password})
	if err != nil {
		return Token{}, fmt.Errorf("encoding auth request: %w", err)
	}

	c.logger.Debug("authenticating with cloud", "user", username)
	status, data, err := c.send(ctx, http.MethodPost, path, "", body)
	if err != nil {
		return Token{}, err
	}

	if !isSuccess(status) {
		msg := errorMessage(data, fmt.Sprintf("Error %d on login", status))
		if status == http.StatusBadRequest {
			return Token{}, fmt.Errorf("%w: %s", ErrUnauthorized, msg)
		}
		return Token{}, &APIError{StatusCode: status, Message: msg}
	}

	var resp authResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return Token{}, fmt.Errorf("decoding auth response: %w", err)
	}
	if resp.Token == "" {
		return Token{}, &APIError{StatusCode: status, Message: "auth response carried no token"}
	}

	var expiresIn time.Duration
	if resp.TokenExpiresAfter != "" {
		secs, err := resp.TokenExpiresAfter.Int64()
		if err != nil {
			return Token{}, fmt.Errorf("decoding token_expires_after: %w", err)
		}
		expiresIn = time.Duration(secs) * time.Second
	}

	c.SetAccessToken(resp.Token, expiresIn)
	c.logger.Info("authenticated with cloud", "user", username)

	return Token{AccessToken: resp.Token, ExpiresIn: expiresIn}, nil
}

// do executes an authenticated request and decodes a successful body into out.
// out may be nil when the body is not needed.
func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	token := c.AccessToken()
	if token == "" {
		return fmt.Errorf("%w: access token not set", ErrUnauthorized)
	}

	var body []byte
	if payload != nil && (method == http.MethodPost || method == http.MethodPut) {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding %s %s request: %w", method, path, err)
		}
	}

	status, data, err := c.send(ctx, method, path, token, body)
	if err != nil {
		return err
	}

	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized,
			errorMessage(data, fmt.Sprintf("Error %d executing %s %s", status, method, path)))
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	case !isSuccess(status):
		return &APIError{
			StatusCode: status,
			Message:    errorMessage(data, fmt.Sprintf("Error %d executing %s %s", status, method, path)),
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// send performs one HTTP round trip and returns the status and body.
func (c *Client) send(ctx context.Context, method, path, token string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("creating %s %s request: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, fmt.Errorf("reading %s %s response: %w", method, path, err)
	}

	c.logger.Debug("cloud request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return resp.StatusCode, data, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// errorMessage extracts the server's "message" field, or returns fallback.
func errorMessage(data []byte, fallback string) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.Message == "" {
		return fallback
	}
	return body.Message
}
