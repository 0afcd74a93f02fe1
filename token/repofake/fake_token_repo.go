package tokenfakerepo

import (
	"context"
	"sync"

	"github.com/jrsteele09/izikwen-client/internal/errors"
	"github.com/jrsteele09/izikwen-client/token"
)

var _ token.Repo = (*FakeTokenRepo)(nil)

// FakeTokenRepo is an in-memory repo that counts operations per key and can be
// told to fail.
type FakeTokenRepo struct {
	lock    sync.RWMutex
	values  map[string]string
	gets    map[string]int
	sets    map[string]int
	deletes map[string]int

	FailGet error
	FailSet error
}

func NewFakeTokenRepo() *FakeTokenRepo {
	return &FakeTokenRepo{
		values:  make(map[string]string),
		gets:    make(map[string]int),
		sets:    make(map[string]int),
		deletes: make(map[string]int),
	}
}

func (tr *FakeTokenRepo) Get(_ context.Context, key string) (string, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	tr.gets[key]++
	if tr.FailGet != nil {
		return "", tr.FailGet
	}
	v, ok := tr.values[key]
	if !ok {
		return "", errors.ErrNotFound
	}
	return v, nil
}

func (tr *FakeTokenRepo) Set(_ context.Context, key, value string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	tr.sets[key]++
	if tr.FailSet != nil {
		return tr.FailSet
	}
	tr.values[key] = value
	return nil
}

func (tr *FakeTokenRepo) Delete(_ context.Context, key string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	tr.deletes[key]++
	delete(tr.values, key)
	return nil
}

func (tr *FakeTokenRepo) Close(context.Context) error {
	return nil
}

// Value returns the raw stored value and whether the key is present.
func (tr *FakeTokenRepo) Value(key string) (string, bool) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	v, ok := tr.values[key]
	return v, ok
}

func (tr *FakeTokenRepo) Gets(key string) int {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	return tr.gets[key]
}

func (tr *FakeTokenRepo) Sets(key string) int {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	return tr.sets[key]
}

func (tr *FakeTokenRepo) Deletes(key string) int {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	return tr.deletes[key]
}
