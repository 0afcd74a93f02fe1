package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultReconnectStep = 500 * time.Millisecond
	DefaultReconnectMax  = 8 * time.Second

	defaultReadLimit = 1 << 20
)

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Handler receives every inbound frame that parsed as JSON, uninterpreted.
type Handler func(msg any)

// Backoff returns the delay before reconnect attempt n: step × n, capped at max.
func Backoff(attempt int, step, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := step * time.Duration(attempt)
	if d > max || d < 0 {
		return max
	}
	return d
}

// Client keeps one websocket channel open for as long as it holds a token,
// reconnecting with linear backoff after every close.
type Client struct {
	baseURL    string
	path       string
	handler    Handler
	httpClient *http.Client
	step       time.Duration
	max        time.Duration
	readLimit  int64
	metrics    *Metrics
	onRetry    func(attempt int, delay time.Duration)
	log        zerolog.Logger

	lifecycle sync.Mutex // serialises Start, Stop and SetToken

	mu      sync.Mutex
	state   State
	token   string
	attempt int
	gen     uint64 // identifies the live session; stale sessions stop reporting
	cancel  context.CancelFunc
	done    chan struct{}
}

type Option func(*Client)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

func WithBackoff(step, max time.Duration) Option {
	return func(c *Client) {
		c.step = step
		c.max = max
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithReadLimit(n int64) Option {
	return func(c *Client) {
		c.readLimit = n
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithRetryNotify registers fn to be told about every scheduled reconnect.
func WithRetryNotify(fn func(attempt int, delay time.Duration)) Option {
	return func(c *Client) {
		c.onRetry = fn
	}
}

// New creates an idle client for the channel at baseURL+path. baseURL uses
// the ws or wss scheme.
func New(baseURL, path string, handler Handler, options ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse realtime url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("realtime url scheme %q must be ws or wss", u.Scheme)
	}
	if handler == nil {
		return nil, fmt.Errorf("realtime handler is required")
	}

	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		path:      path,
		handler:   handler,
		step:      DefaultReconnectStep,
		max:       DefaultReconnectMax,
		readLimit: defaultReadLimit,
		log:       log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	c.log = c.log.With().Str("channel", path).Logger()
	return c, nil
}

// Start connects with token. An empty token is a no-op; a different token
// replaces the running connection. The replaced session is cancelled but not
// waited for, so Start is safe to call from a token-change notification that
// fires while the handler is running.
func (c *Client) Start(token string) {
	if token == "" {
		return
	}
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	running, current := c.cancel != nil, c.token
	c.mu.Unlock()
	if running && current == token {
		return
	}
	c.detach()
	c.start(token)
}

// Stop tears the client down and waits for the session goroutine to exit. No
// reconnect is scheduled afterwards and calling it again is harmless. Stop
// must not be called from the handler.
func (c *Client) Stop() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if done := c.detach(); done != nil {
		<-done
		c.log.Debug().Msg("Realtime client stopped")
	}
}

// SetToken follows a session token change: the live connection is never
// patched, it is torn down and reopened. An empty token stops the client
// without waiting for the old session to finish.
func (c *Client) SetToken(token string) {
	if token == "" {
		c.lifecycle.Lock()
		defer c.lifecycle.Unlock()
		c.detach()
		return
	}
	c.Start(token)
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempt returns the reconnect counter, reset to zero by every successful open.
func (c *Client) Attempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

func (c *Client) start(token string) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.token = token
	c.attempt = 0
	c.cancel = cancel
	c.done = done
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	go c.run(ctx, token, gen, done)
}

// detach cancels the live session and marks the client idle. It returns the
// session's done channel, nil when nothing was running.
func (c *Client) detach() chan struct{} {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done, c.token = nil, nil, ""
	if cancel != nil {
		c.gen++
		c.attempt = 0
		c.setStateLocked(StateIdle)
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return done
}

func (c *Client) run(ctx context.Context, token string, gen uint64, done chan struct{}) {
	defer close(done)

	for {
		if !c.setState(gen, StateConnecting) {
			return
		}
		c.session(ctx, token, gen)
		if ctx.Err() != nil {
			return
		}

		attempt, ok := c.closed(gen)
		if !ok {
			return
		}

		delay := Backoff(attempt, c.step, c.max)
		c.metrics.Reconnects.WithLabelValues(c.path).Inc()
		c.log.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("Realtime reconnect scheduled")
		if c.onRetry != nil {
			c.onRetry(attempt, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session dials once and reads until the connection fails, the peer closes or
// ctx ends. Every way out counts as a close.
func (c *Client) session(ctx context.Context, token string, gen uint64) {
	conn, resp, err := websocket.Dial(ctx, c.endpoint(token), &websocket.DialOptions{
		HTTPClient: c.httpClient,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() == nil {
			c.log.Debug().Err(err).Msg("Realtime dial failed")
		}
		return
	}
	defer func() { _ = conn.CloseNow() }()
	conn.SetReadLimit(c.readLimit)

	if !c.opened(gen) {
		return
	}
	c.log.Info().Msg("Realtime connected")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "bye")
				return
			}
			c.log.Debug().Err(err).Int("status", int(websocket.CloseStatus(err))).Msg("Realtime connection closed")
			return
		}

		var msg any
		if err := json.Unmarshal(data, &msg); err != nil {
			c.metrics.Discarded.WithLabelValues(c.path).Inc()
			c.log.Debug().Err(err).Msg("Discarding malformed realtime frame")
			continue
		}
		c.deliver(msg)
	}
}

// deliver hands msg to the handler. A panicking handler loses the message,
// not the connection.
func (c *Client) deliver(msg any) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("Realtime handler panicked")
		}
	}()
	c.handler(msg)
}

func (c *Client) endpoint(token string) string {
	q := url.Values{}
	q.Set("token", token)
	return c.baseURL + c.path + "?" + q.Encode()
}

// setState records s for session gen. It reports false once gen has been
// replaced or stopped.
func (c *Client) setState(gen uint64, s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.setStateLocked(s)
	return true
}

func (c *Client) opened(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.attempt = 0
	c.setStateLocked(StateOpen)
	return true
}

// closed counts a close event of session gen and returns the new attempt.
func (c *Client) closed(gen uint64) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return 0, false
	}
	c.attempt++
	c.setStateLocked(StateClosed)
	return c.attempt, true
}

func (c *Client) setStateLocked(s State) {
	c.state = s
	c.metrics.State.WithLabelValues(c.path).Set(float64(s))
}
