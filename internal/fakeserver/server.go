// Package fakeserver is an in-memory stand-in for the Izikwen backend. It
// serves the REST and websocket surface the client talks to and lets tests
// steer token expiry, refresh outcomes and realtime traffic.
package fakeserver

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTwoFACode = "123456"
	signingSecret    = "fakeserver-signing-secret"
)

// Recorded is one request as the server saw it.
type Recorded struct {
	Method        string
	Path          string
	Query         string
	Authorization string
	RequestID     string
	Body          []byte
}

type Server struct {
	router *mux.Router
	routes []string
	log    zerolog.Logger
	signer *hmacSigner
	hub    *hub

	mu         sync.Mutex
	accounts   map[int64]*account
	access     map[string]int64 // access token -> account id
	refresh    map[string]int64 // refresh token -> account id
	twoFA      map[string]int64 // 2fa challenge token -> account id
	twoFACode  string
	orders     map[int64]*Order
	nextUserID int64
	nextOrder  int64
	queued     []string
	recorded   []Recorded

	refreshGate   chan struct{}
	refreshStatus int
	refreshCalls  int
}

type Option func(*Server)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// New builds a server with no accounts.
func New(options ...Option) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		log:       log.Logger,
		signer:    newHMACSigner(signingSecret),
		accounts:  make(map[int64]*account),
		access:    make(map[string]int64),
		refresh:   make(map[string]int64),
		twoFA:     make(map[string]int64),
		twoFACode: DefaultTwoFACode,
		orders:    make(map[int64]*Order),
	}
	for _, opt := range options {
		opt(s)
	}
	s.hub = newHub(s.log)
	s.initRoutes()
	return s
}

// Start serves a new Server on a local listener until t finishes.
func Start(t testing.TB, options ...Option) (*Server, string) {
	t.Helper()
	s := New(options...)
	ts := httptest.NewServer(s)
	t.Cleanup(func() {
		s.hub.closeAll()
		ts.Close()
	})
	return s, ts.URL
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler http.HandlerFunc) {
	s.routes = append(s.routes, pattern)
	parts := strings.SplitN(pattern, " ", 2)
	if len(parts) == 2 {
		s.router.HandleFunc(parts[1], handler).Methods(parts[0])
		return
	}
	s.router.HandleFunc(parts[0], handler)
}

// Routes lists the registered patterns in registration order.
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

// Requests returns the recorded requests for path, or all of them when path is empty.
func (s *Server) Requests(path string) []Recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Recorded
	for _, r := range s.recorded {
		if path == "" || r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (s *Server) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

// QueueAccessTokens makes the next issued access tokens take these values.
func (s *Server) QueueAccessTokens(tokens ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued = append(s.queued, tokens...)
}

// SeedTokens registers fixed token values for an account.
func (s *Server) SeedTokens(userID int64, accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if accessToken != "" {
		s.access[accessToken] = userID
	}
	if refreshToken != "" {
		s.refresh[refreshToken] = userID
	}
}

// ExpireAccessToken makes token fail authentication from now on.
func (s *Server) ExpireAccessToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.access, token)
}

func (s *Server) RevokeRefreshToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refresh, token)
}

// HoldRefresh blocks refresh calls until the returned func is called.
func (s *Server) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.refreshGate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.refreshGate == gate {
				s.refreshGate = nil
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// FailRefresh answers refresh calls with status. Zero restores normal behaviour.
func (s *Server) FailRefresh(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshStatus = status
}

func (s *Server) SetTwoFACode(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.twoFACode = code
}

// Broadcast sends a raw frame to every socket on channel.
func (s *Server) Broadcast(channel string, frame []byte) int {
	return s.hub.broadcast(channel, frame, nil)
}

// DropConnections closes every socket on channel from the server side.
func (s *Server) DropConnections(channel string) {
	s.hub.drop(channel)
}

// Connections returns the number of open sockets on channel.
func (s *Server) Connections(channel string) int {
	return s.hub.count(channel)
}

// Dials returns every token presented on channel, accepted or not.
func (s *Server) Dials(channel string) []string {
	return s.hub.dials(channel)
}

// RejectDials makes websocket upgrades on channel fail with 503 while on is true.
func (s *Server) RejectDials(channel string, on bool) {
	s.hub.reject(channel, on)
}

func (s *Server) issueAccessLocked(acc *account) (string, error) {
	if len(s.queued) > 0 {
		tok := s.queued[0]
		s.queued = s.queued[1:]
		s.access[tok] = acc.ID
		return tok, nil
	}
	tok, err := s.signer.accessToken(acc)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	s.access[tok] = acc.ID
	return tok, nil
}
