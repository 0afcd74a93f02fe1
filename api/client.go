package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/izikwen-client/internal/errors"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	// RefreshPath is the endpoint that exchanges a refresh token for a new access token.
	RefreshPath = "/auth/refresh"

	DefaultTimeout = 15 * time.Second

	requestIDHeader = "X-Request-ID"
	maxResponseSize = 10 << 20
)

// Tokens is the part of the credential store the client reads and writes.
type Tokens interface {
	AccessToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) (string, error)
	SetAccessToken(ctx context.Context, token string) error
	ClearAll(ctx context.Context) error
}

// Client issues API requests with the stored bearer token attached and
// recovers transparently, once per request, from an expired access token.
type Client struct {
	baseURL     *url.URL
	httpClient  *http.Client
	tokens      Tokens
	coordinator *Coordinator
	metrics     *Metrics
	log         zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the underlying transport client. Its Timeout is kept as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithCoordinator shares a refresh coordinator between clients of one session.
func WithCoordinator(co *Coordinator) Option {
	return func(c *Client) {
		c.coordinator = co
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, tokens Tokens, options ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url scheme %q: %w", u.Scheme, errors.ErrInvalidInput)
	}
	if tokens == nil {
		return nil, fmt.Errorf("token store is required: %w", errors.ErrInvalidInput)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		tokens:     tokens,
		log:        log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	if c.coordinator == nil {
		c.coordinator = NewCoordinator()
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	return c, nil
}

// BaseURL returns the API root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Do sends req. A 401 is recovered by refreshing the access token and
// replaying req once; any other failure is returned unchanged. Non-2xx
// responses are returned as *StatusError. Unrecoverable 401s clear the stored
// credentials and wrap errors.ErrSessionExpired around the original error.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	cl, err := newCall(req, ulid.Make().String())
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, cl, "")
	if err != nil {
		resp, err = c.recoverUnauthorized(ctx, cl, err)
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.metrics.Requests.WithLabelValues(cl.method, outcome).Inc()
	return resp, err
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.doJSON(ctx, &Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, &Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, &Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body}, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, &Request{Method: http.MethodDelete, Path: path}, out)
}

func (c *Client) doJSON(ctx context.Context, req *Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// recoverUnauthorized is the response interceptor. It only acts on a 401 for
// a request that has not been retried yet.
func (c *Client) recoverUnauthorized(ctx context.Context, cl *call, original error) (*Response, error) {
	if !IsStatus(original, http.StatusUnauthorized) || cl.retried || cl.explicitAuth {
		return nil, original
	}

	logger := c.log.With().Str("request_id", cl.requestID).Str("path", cl.req.Path).Logger()

	// The refresh endpoint rejecting us is terminal; never refresh with the call that just failed.
	if isRefreshPath(cl.req.Path) {
		c.expire(ctx, logger)
		return nil, original
	}

	cl.retried = true

	refreshToken, err := c.tokens.RefreshToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("read refresh token: %w", err)
	}
	if refreshToken == "" {
		logger.Debug().Msg("No refresh token stored")
		c.expire(ctx, logger)
		return nil, fmt.Errorf("%w: %w: %w", errors.ErrSessionExpired, errors.ErrNoRefreshToken, original)
	}

	// Another request already rotated the token after this one was sent.
	if !c.coordinator.InFlight() {
		current, err := c.tokens.AccessToken(ctx)
		if err == nil && current != "" && current != cl.sentToken {
			logger.Debug().Msg("Access token rotated since request was sent, replaying")
			return c.replay(ctx, cl, current)
		}
	}

	newToken, leader, err := c.coordinator.Refresh(ctx, func(rctx context.Context) (string, error) {
		// A refresh that settled between the check above and now already rotated the token.
		if current, err := c.tokens.AccessToken(rctx); err == nil && current != "" && current != cl.sentToken {
			return current, nil
		}
		return c.refresh(rctx, logger, refreshToken)
	})
	if err != nil {
		switch {
		case leader:
			return nil, fmt.Errorf("%w: %w", errors.ErrSessionExpired, err)
		case errors.Is(err, errors.ErrRefreshRejected):
			// The refresher already cleared the credentials.
			return nil, fmt.Errorf("%w: %w", errors.ErrSessionExpired, original)
		default:
			return nil, err
		}
	}
	return c.replay(ctx, cl, newToken)
}

// refresh calls the refresh endpoint with the refresh token as bearer and
// persists the new access token. On any failure the stored credentials are
// cleared before the coordinator releases the waiters.
func (c *Client) refresh(ctx context.Context, logger zerolog.Logger, refreshToken string) (string, error) {
	logger.Info().Msg("Access token rejected, refreshing")

	cl, err := newCall(&Request{
		Method: http.MethodPost,
		Path:   RefreshPath,
		Body:   struct{}{},
	}, ulid.Make().String())
	if err != nil {
		return "", err
	}

	resp, err := c.send(ctx, cl, refreshToken)
	if err == nil {
		var payload struct {
			AccessToken string `json:"accessToken"`
		}
		err = resp.Decode(&payload)
		if err == nil && payload.AccessToken == "" {
			err = errors.ErrMissingAccessToken
		}
		if err == nil {
			err = c.tokens.SetAccessToken(ctx, payload.AccessToken)
		}
		if err == nil {
			c.metrics.Refreshes.WithLabelValues("success").Inc()
			logger.Info().Msg("Access token refreshed")
			return payload.AccessToken, nil
		}
	}

	c.metrics.Refreshes.WithLabelValues("failure").Inc()
	logger.Warn().Err(err).Msg("Token refresh failed")
	c.expire(ctx, logger)
	return "", err
}

// expire clears the stored credentials.
func (c *Client) expire(ctx context.Context, logger zerolog.Logger) {
	c.metrics.SessionExpired.Inc()
	if err := c.tokens.ClearAll(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to clear credentials")
	}
	logger.Warn().Msg("Session expired, credentials cleared")
}

func (c *Client) replay(ctx context.Context, cl *call, token string) (*Response, error) {
	c.metrics.Replays.Inc()
	return c.send(ctx, cl, token)
}

// send performs one HTTP attempt. bearer overrides the stored access token;
// when empty, the request interceptor reads the store.
func (c *Client) send(ctx context.Context, cl *call, bearer string) (*Response, error) {
	httpReq, err := c.newHTTPRequest(ctx, cl)
	if err != nil {
		return nil, err
	}

	if err := c.authorize(ctx, cl, httpReq, bearer); err != nil {
		return nil, err
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.log.Debug().Err(err).Str("request_id", cl.requestID).Str("method", cl.method).Str("path", cl.req.Path).Msg("Request failed")
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	c.log.Debug().
		Str("request_id", cl.requestID).
		Str("method", cl.method).
		Str("path", cl.req.Path).
		Int("status", httpResp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Request completed")

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &StatusError{
			StatusCode: httpResp.StatusCode,
			Method:     cl.method,
			Path:       cl.req.Path,
			Body:       body,
			RequestID:  cl.requestID,
		}
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
		RequestID:  cl.requestID,
	}, nil
}

// authorize is the request interceptor: it re-reads the access token on
// every attempt, since it may have just been rotated.
func (c *Client) authorize(ctx context.Context, cl *call, httpReq *http.Request, bearer string) error {
	if cl.explicitAuth && bearer == "" {
		return nil
	}
	if bearer == "" {
		stored, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return fmt.Errorf("read access token: %w", err)
		}
		bearer = stored
	}
	cl.sentToken = bearer
	if bearer == "" {
		return nil
	}
	(&oauth2.Token{AccessToken: bearer, TokenType: "Bearer"}).SetAuthHeader(httpReq)
	return nil
}

func (c *Client) newHTTPRequest(ctx context.Context, cl *call) (*http.Request, error) {
	u := c.baseURL.JoinPath(cl.req.Path)
	if len(cl.req.Query) > 0 {
		u.RawQuery = cl.req.Query.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		body = bytes.NewReader(cl.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, cl.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	for k, vs := range cl.req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if cl.body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(requestIDHeader, cl.requestID)
	return httpReq, nil
}

func isRefreshPath(path string) bool {
	return strings.Contains(path, RefreshPath)
}
