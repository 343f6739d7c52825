// Package api provides a client for communicating with the travel-buddy API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/narvanalabs/travel-buddy/internal/errors"
)

// TokenSource supplies bearer tokens and renews them after a 401.
type TokenSource interface {
	// AccessToken returns the current access token, or "" when signed out.
	AccessToken() string
	// Refresh obtains a new access token. Implementations sign the user out
	// when refresh fails.
	Refresh(ctx context.Context) (string, error)
}

// Client is an API client for the travel-buddy backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the request timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: timeout}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new API client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTokenSource returns a new client that authenticates with ts.
func (c *Client) WithTokenSource(ts TokenSource) *Client {
	return &Client{
		baseURL:    c.baseURL,
		httpClient: c.httpClient,
		tokens:     ts,
		logger:     c.logger,
	}
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// MessageResponse is the acknowledgement body of membership mutations.
type MessageResponse struct {
	Message string `json:"message"`
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodGet, path, nil, result, true)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	return c.do(ctx, http.MethodPost, path, body, result, true)
}

// do performs an authenticated request. A 401 triggers one token refresh and
// one retry of the original request.
func (c *Client) do(ctx context.Context, method, path string, body, result any, auth bool) error {
	token := ""
	if auth && c.tokens != nil {
		token = c.tokens.AccessToken()
	}

	status, respBody, err := c.send(ctx, method, path, body, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && auth && c.tokens != nil {
		c.logger.Debug("access token rejected, refreshing", "method", method, "path", path)
		fresh, rerr := c.tokens.Refresh(ctx)
		if rerr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return apperrors.ErrSessionExpired.WithStatus(status).WithCause(rerr)
		}
		status, respBody, err = c.send(ctx, method, path, body, fresh)
		if err != nil {
			return err
		}
	}

	if status < 200 || status >= 300 {
		apiErr := apperrors.FromResponse(status, respBody)
		if apiErr.Kind == apperrors.KindAuthorization {
			c.logger.Warn("server rejected request the client allowed",
				"method", method,
				"path", path,
				"status", status,
				"code", apiErr.Code,
			)
		}
		return apiErr
	}

	if result == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return apperrors.New(apperrors.CodeInternal, "decoding response").WithCause(err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any, token string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		return 0, nil, apperrors.Transport(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		return 0, nil, apperrors.Transport(fmt.Errorf("reading response: %w", err))
	}

	return resp.StatusCode, respBody, nil
}

// IsCanceled reports whether err came from the caller abandoning the request.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
