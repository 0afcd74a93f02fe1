package auth

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/jrsteele09/izikwen-client/api"
	"github.com/jrsteele09/izikwen-client/internal/errors"
	"github.com/jrsteele09/izikwen-client/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	PathRegister       = "/auth/register"
	PathLogin          = "/auth/login"
	PathVerify2FA      = "/auth/2fa/verify"
	PathLogoutAll      = "/auth/logout-all"
	PathMe             = "/me"
	PathChangePassword = "/security/change-password"
)

var twoFACodePattern = regexp.MustCompile(`^[0-9]{6}$`)

// CredentialStore is the part of the token store the auth service uses.
type CredentialStore interface {
	AccessToken(ctx context.Context) (string, error)
	SetTokens(ctx context.Context, accessToken, refreshToken string) error
	ClearAll(ctx context.Context) error
	DeviceID(ctx context.Context) (string, error)
}

// LoginResult is either a signed-in user or a pending 2FA challenge.
type LoginResult struct {
	Requires2FA bool
	TwoFAToken  string
	User        *users.User
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Requires2FA  bool   `json:"requires2FA"`
	TwoFAToken   string `json:"twoFaToken"`
}

// Service signs the device in and out and tracks the current user.
type Service struct {
	client *api.Client
	store  CredentialStore
	log    zerolog.Logger

	mu   sync.RWMutex
	user *users.User
}

type ServiceOption func(*Service)

func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.log = l
	}
}

func NewService(client *api.Client, store CredentialStore, options ...ServiceOption) *Service {
	s := &Service{
		client: client,
		store:  store,
		log:    log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// CurrentUser returns the signed-in user, or nil.
func (s *Service) CurrentUser() *users.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Service) Authenticated() bool {
	return s.CurrentUser() != nil
}

func (s *Service) Register(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return users.ErrMissingFields
	}
	if err := users.ValidateEmail(email); err != nil {
		return err
	}
	if len(password) < users.MinPasswordLength {
		return users.ErrPasswordTooShort
	}

	err := s.client.Post(ctx, PathRegister, map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	if api.IsStatus(err, http.StatusConflict) {
		return fmt.Errorf("%w: %w", ErrAccountExists, err)
	}
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	s.log.Info().Str("email", email).Msg("Account registered")
	return nil
}

// Login authenticates with email and password. When the account needs a
// second factor nothing is persisted and the challenge token is returned for
// Verify2FA.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, users.ErrMissingFields
	}

	deviceID, err := s.store.DeviceID(ctx)
	if err != nil {
		return nil, fmt.Errorf("device id: %w", err)
	}

	var resp tokenResponse
	err = s.client.Post(ctx, PathLogin, map[string]string{
		"email":    email,
		"password": password,
		"deviceId": deviceID,
	}, &resp)
	if api.IsStatus(err, http.StatusUnauthorized) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	if resp.Requires2FA {
		s.log.Info().Str("email", email).Msg("Login requires 2FA")
		return &LoginResult{Requires2FA: true, TwoFAToken: resp.TwoFAToken}, nil
	}

	user, err := s.signIn(ctx, resp)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user}, nil
}

// Verify2FA completes a login challenge. The challenge token is sent as the
// bearer of this one request and is never stored.
func (s *Service) Verify2FA(ctx context.Context, code, twoFAToken string, device Device) (*users.User, error) {
	code = strings.TrimSpace(code)
	if !twoFACodePattern.MatchString(code) {
		return nil, ErrInvalidCode
	}
	if twoFAToken == "" {
		return nil, ErrMissingTwoFAToken
	}

	deviceID, err := s.store.DeviceID(ctx)
	if err != nil {
		return nil, fmt.Errorf("device id: %w", err)
	}
	device = device.normalised()

	resp, err := s.client.Do(ctx, &api.Request{
		Method: http.MethodPost,
		Path:   PathVerify2FA,
		Body: map[string]string{
			"code":       code,
			"deviceId":   deviceID,
			"deviceName": device.Name,
			"platform":   device.Platform,
		},
		Header: http.Header{"Authorization": {"Bearer " + twoFAToken}},
	})
	if err != nil {
		return nil, fmt.Errorf("verify 2fa: %w", err)
	}

	var tokens tokenResponse
	if err := resp.Decode(&tokens); err != nil {
		return nil, err
	}
	return s.signIn(ctx, tokens)
}

// Me loads the signed-in user's profile.
func (s *Service) Me(ctx context.Context) (*users.User, error) {
	var u users.User
	if err := s.client.Get(ctx, PathMe, nil, &u); err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	s.setUser(&u)
	return &u, nil
}

// Restore resumes a stored session at startup. It returns nil when signed
// out. A stored session the server no longer accepts is cleared.
func (s *Service) Restore(ctx context.Context) (*users.User, error) {
	tok, err := s.store.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("read access token: %w", err)
	}
	if tok == "" {
		s.setUser(nil)
		return nil, nil
	}

	u, err := s.Me(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Stored session rejected, signing out")
		if cerr := s.store.ClearAll(ctx); cerr != nil {
			return nil, fmt.Errorf("clear credentials: %w", cerr)
		}
		s.setUser(nil)
		return nil, nil
	}
	return u, nil
}

// Logout forgets this device's session. The server is not told.
func (s *Service) Logout(ctx context.Context) error {
	s.setUser(nil)
	if err := s.store.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// LogoutAll revokes every session of the account server-side, then signs
// this device out.
func (s *Service) LogoutAll(ctx context.Context) error {
	if err := s.client.Post(ctx, PathLogoutAll, nil, nil); err != nil {
		return fmt.Errorf("logout all: %w", err)
	}
	return s.Logout(ctx)
}

// ChangePassword updates the password. Rotated tokens in the response replace
// the stored ones.
func (s *Service) ChangePassword(ctx context.Context, current, newPassword, confirm string) error {
	if err := users.ValidatePasswordChange(current, newPassword, confirm); err != nil {
		return err
	}

	var resp tokenResponse
	err := s.client.Post(ctx, PathChangePassword, map[string]string{
		"currentPassword": current,
		"newPassword":     newPassword,
	}, &resp)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}

	if resp.AccessToken != "" {
		if err := s.store.SetTokens(ctx, resp.AccessToken, resp.RefreshToken); err != nil {
			return fmt.Errorf("store rotated tokens: %w", err)
		}
	}
	s.log.Info().Msg("Password changed")
	return nil
}

func (s *Service) signIn(ctx context.Context, resp tokenResponse) (*users.User, error) {
	if resp.AccessToken == "" {
		return nil, ErrNoAccessToken
	}
	if err := s.store.SetTokens(ctx, resp.AccessToken, resp.RefreshToken); err != nil {
		return nil, fmt.Errorf("store tokens: %w", err)
	}
	u, err := s.Me(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("user_id", u.ID).Str("role", string(u.Role)).Msg("Signed in")
	return u, nil
}

func (s *Service) setUser(u *users.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

// IsInvalidInput reports whether err was rejected before reaching the server.
func IsInvalidInput(err error) bool {
	return errors.Is(err, errors.ErrInvalidInput)
}
