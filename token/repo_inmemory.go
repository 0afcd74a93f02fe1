package token

import (
	"context"
	"sync"

	"github.com/jrsteele09/izikwen-client/internal/errors"
)

// InMemoryRepo is a thread-safe in-memory implementation of Repo. Values do
// not survive the process.
type InMemoryRepo struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ Repo = (*InMemoryRepo)(nil)

// NewInMemoryRepo creates an empty in-memory repo
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		values: make(map[string]string),
	}
}

func (r *InMemoryRepo) Get(_ context.Context, key string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.values[key]
	if !ok {
		return "", errors.ErrNotFound
	}
	return v, nil
}

func (r *InMemoryRepo) Set(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.values[key] = value
	return nil
}

func (r *InMemoryRepo) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.values, key)
	return nil
}

func (r *InMemoryRepo) Close(context.Context) error {
	return nil
}
