package token

import "context"

// Repo is the persistent key-value store behind the credential Store.
// Every operation is atomic for a single key. Get returns errors.ErrNotFound
// when the key is absent.
type Repo interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close(ctx context.Context) error
}
