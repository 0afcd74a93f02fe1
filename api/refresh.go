package api

import (
	"context"
	"sync"

	"github.com/jrsteele09/izikwen-client/internal/errors"
)

// Coordinator guarantees at most one token refresh in flight. Callers that
// arrive while a refresh runs are parked as waiters and released, in
// registration order, with the refresher's result.
//
// One Coordinator is created per process and shared by every Client that
// talks to the same session.
type Coordinator struct {
	mu       sync.Mutex
	inFlight bool
	waiters  []chan string
}

func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Refresh runs fn if no refresh is in flight and hands its token to every
// waiter. Otherwise it blocks until the in-flight refresh settles. leader
// reports which of the two happened. A waiter whose refresh failed gets
// errors.ErrRefreshRejected.
//
// fn runs detached from ctx's cancellation; a waiter whose ctx ends stops
// waiting without affecting the refresh.
func (co *Coordinator) Refresh(ctx context.Context, fn func(context.Context) (string, error)) (token string, leader bool, err error) {
	co.mu.Lock()
	if co.inFlight {
		ch := make(chan string, 1)
		co.waiters = append(co.waiters, ch)
		co.mu.Unlock()

		select {
		case tok := <-ch:
			if tok == "" {
				return "", false, errors.ErrRefreshRejected
			}
			return tok, false, nil
		case <-ctx.Done():
			co.abandon(ch)
			return "", false, ctx.Err()
		}
	}
	co.inFlight = true
	co.mu.Unlock()

	token, err = fn(context.WithoutCancel(ctx))
	if err != nil {
		token = ""
	}
	co.release(token)
	return token, true, err
}

// InFlight reports whether a refresh is currently running.
func (co *Coordinator) InFlight() bool {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.inFlight
}

// Waiting returns the number of callers parked behind the in-flight refresh.
func (co *Coordinator) Waiting() int {
	co.mu.Lock()
	defer co.mu.Unlock()
	return len(co.waiters)
}

// release drains the waiter list and clears the in-flight flag in one step,
// so no caller can register between the two and be stranded.
func (co *Coordinator) release(token string) {
	co.mu.Lock()
	waiters := co.waiters
	co.waiters = nil
	co.inFlight = false
	co.mu.Unlock()

	for _, ch := range waiters {
		ch <- token
	}
}

func (co *Coordinator) abandon(ch chan string) {
	co.mu.Lock()
	defer co.mu.Unlock()
	for i, w := range co.waiters {
		if w == ch {
			co.waiters = append(co.waiters[:i], co.waiters[i+1:]...)
			return
		}
	}
}
