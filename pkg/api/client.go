// Package api is the REST client for stream configuration and the initial
// log load.
package api

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
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/DeBrosOfficial/logwatch/pkg/auth"
	"github.com/DeBrosOfficial/logwatch/pkg/errors"
	"github.com/DeBrosOfficial/logwatch/pkg/logging"
	"github.com/DeBrosOfficial/logwatch/pkg/stream"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 5
	DefaultBurst     = 10

	// maxErrorBody bounds how much of a failed response is read.
	maxErrorBody = 64 << 10
)

// Client talks to the remote configuration API. It implements
// registry.Backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     auth.TokenSource
	limiter    *rate.Limiter
	logger     *logging.ColoredLogger
	decoder    *stream.Decoder
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit sets the client-side request rate.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.ColoredLogger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for baseURL, authenticating with tokens.
func NewClient(baseURL string, tokens auth.TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		tokens:     tokens,
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultBurst),
		logger:     logging.NewNopLogger(),
		decoder:    &stream.Decoder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// target names the object a request addresses, for NotFound errors.
type target struct {
	resource string
	id       string
}

// raw performs a request and returns the response body of a 2xx reply.
func (c *Client) raw(ctx context.Context, method, path string, body any, t target) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.NewConnectionFaultError("rate limit wait", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.NewInternalError("failed to marshal request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.NewInternalError("failed to create request", err)
	}

	token, err := c.tokens.Token()
	if err != nil {
		return nil, err
	}
	requestID := uuid.New().String()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewConnectionFaultError(method+" "+path, err)
	}
	defer resp.Body.Close()

	c.logger.ComponentDebug(logging.ComponentAPI, "Request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", requestID),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, errors.FromHTTPStatus(resp.StatusCode, data, t.resource, t.id)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewConnectionFaultError(fmt.Sprintf("read %s response", path), err)
	}
	return data, nil
}

// do performs a JSON request and decodes the reply into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any, t target) error {
	data, err := c.raw(ctx, method, path, body, t)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.NewProtocolError(fmt.Sprintf("decode %s response", path), data, err)
	}
	return nil
}
