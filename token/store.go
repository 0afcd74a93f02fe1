package token

import (
	"context"
	"fmt"
	"sync"

	evbus "github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"github.com/jrsteele09/izikwen-client/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Fixed key names of the secure store. There is no schema versioning.
const (
	KeyAccessToken       = "izikwen_access_token"
	KeyRefreshToken      = "izikwen_refresh_token"
	KeyBiometricsEnabled = "izikwen_biometrics_enabled"
	KeyDeviceID          = "izikwen_device_id"
)

const topicAccessToken = "token:access"

// Store exposes the credential keys of a Repo as typed accessors. It is the
// single reader and writer of persisted credentials. Absent keys read as "".
type Store struct {
	repo Repo
	log  zerolog.Logger

	bus    evbus.Bus
	subsMu sync.Mutex
	subs   map[uint64]string // subscription id -> bus topic
	nextID uint64

	deviceMu sync.Mutex
}

type StoreOption func(*Store)

func WithLogger(l zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.log = l
	}
}

// NewStore wraps repo.
func NewStore(repo Repo, options ...StoreOption) *Store {
	s := &Store{
		repo: repo,
		log:  log.Logger,
		bus:  evbus.New(),
		subs: make(map[uint64]string),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Store) AccessToken(ctx context.Context) (string, error) {
	return s.get(ctx, KeyAccessToken)
}

func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	return s.get(ctx, KeyRefreshToken)
}

// SetTokens persists both tokens. Empty values are skipped, so a login
// response without a refresh token keeps the stored one.
func (s *Store) SetTokens(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken != "" {
		if err := s.repo.Set(ctx, KeyAccessToken, accessToken); err != nil {
			return fmt.Errorf("set access token: %w", err)
		}
	}
	if refreshToken != "" {
		if err := s.repo.Set(ctx, KeyRefreshToken, refreshToken); err != nil {
			return fmt.Errorf("set refresh token: %w", err)
		}
	}
	if accessToken != "" {
		s.publishAccessToken(accessToken)
	}
	return nil
}

func (s *Store) SetAccessToken(ctx context.Context, token string) error {
	if err := s.repo.Set(ctx, KeyAccessToken, token); err != nil {
		return fmt.Errorf("set access token: %w", err)
	}
	s.publishAccessToken(token)
	return nil
}

// RemoveTokens deletes the access and refresh tokens.
func (s *Store) RemoveTokens(ctx context.Context) error {
	if err := s.repo.Delete(ctx, KeyAccessToken); err != nil {
		return fmt.Errorf("delete access token: %w", err)
	}
	if err := s.repo.Delete(ctx, KeyRefreshToken); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	s.publishAccessToken("")
	return nil
}

// ClearAll signs the device out. The device id and the biometrics flag survive.
func (s *Store) ClearAll(ctx context.Context) error {
	s.log.Debug().Msg("Clearing stored credentials")
	return s.RemoveTokens(ctx)
}

func (s *Store) BiometricsEnabled(ctx context.Context) (bool, error) {
	v, err := s.get(ctx, KeyBiometricsEnabled)
	return v == "true", err
}

func (s *Store) SetBiometricsEnabled(ctx context.Context, enabled bool) error {
	v := "false"
	if enabled {
		v = "true"
	}
	return s.repo.Set(ctx, KeyBiometricsEnabled, v)
}

// DeviceID returns the install's stable device identifier, generating and
// persisting a random UUID on first use.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	s.deviceMu.Lock()
	defer s.deviceMu.Unlock()

	existing, err := s.get(ctx, KeyDeviceID)
	if err != nil {
		return "", err
	}
	if existing != "" {
		return existing, nil
	}

	id := uuid.NewString()
	if err := s.repo.Set(ctx, KeyDeviceID, id); err != nil {
		return "", fmt.Errorf("set device id: %w", err)
	}
	s.log.Info().Str("device_id", id).Msg("Generated device id")
	return id, nil
}

func (s *Store) ClearDeviceID(ctx context.Context) error {
	s.deviceMu.Lock()
	defer s.deviceMu.Unlock()
	return s.repo.Delete(ctx, KeyDeviceID)
}

// SubscribeAccessToken registers fn to receive every new access token ("" once
// cleared). fn runs synchronously on the writer's goroutine. The returned func
// unsubscribes and is safe to call more than once.
func (s *Store) SubscribeAccessToken(fn func(token string)) func() {
	s.subsMu.Lock()
	s.nextID++
	id := s.nextID
	// The bus matches handlers by code pointer; one topic per subscriber.
	topic := fmt.Sprintf("%s/%d", topicAccessToken, id)
	s.subs[id] = topic
	s.subsMu.Unlock()

	if err := s.bus.Subscribe(topic, fn); err != nil {
		s.log.Error().Err(err).Msg("Failed to subscribe to access token changes")
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
			_ = s.bus.Unsubscribe(topic, fn)
		})
	}
}

func (s *Store) Close(ctx context.Context) error {
	return s.repo.Close(ctx)
}

func (s *Store) publishAccessToken(token string) {
	s.subsMu.Lock()
	topics := make([]string, 0, len(s.subs))
	for _, t := range s.subs {
		topics = append(topics, t)
	}
	s.subsMu.Unlock()

	for _, t := range topics {
		s.bus.Publish(t, token)
	}
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	v, err := s.repo.Get(ctx, key)
	if errors.Is(err, errors.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}
