package token

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jrsteele09/izikwen-client/internal/errors"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "izikwen:secure:"

// RedisOptions captures connection options for the redis repo.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisRepo stores each key under a prefixed redis string key with no expiry.
type RedisRepo struct {
	client *redis.Client
	prefix string
}

var _ Repo = (*RedisRepo)(nil)

// NewRedisRepo connects and pings the server.
func NewRedisRepo(ctx context.Context, opts RedisOptions) (*RedisRepo, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis address required: %w", errors.ErrInvalidInput)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisRepo{client: client, prefix: prefix}, nil
}

func (r *RedisRepo) key(k string) string {
	return r.prefix + k
}

func (r *RedisRepo) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if stderrors.Is(err, redis.Nil) {
		return "", errors.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (r *RedisRepo) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, r.key(key), value, 0).Err()
}

func (r *RedisRepo) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

func (r *RedisRepo) Close(context.Context) error {
	return r.client.Close()
}
