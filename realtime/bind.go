package realtime

import (
	"context"
	"fmt"
	"sync"
)

// TokenSource is the single accessor the realtime clients read the session
// token from.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	SubscribeAccessToken(fn func(token string)) (unsubscribe func())
}

// follower applies token changes to a client on its own goroutine, so the
// publisher never waits on the client. Only the latest token is kept.
type follower struct {
	client *Client

	mu     sync.Mutex
	latest string
	seen   bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

func (f *follower) publish(token string) {
	f.mu.Lock()
	f.latest, f.seen = token, true
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *follower) loop() {
	defer close(f.done)
	for {
		select {
		case <-f.quit:
			return
		case <-f.wake:
		}

		f.mu.Lock()
		token := f.latest
		f.mu.Unlock()
		f.client.SetToken(token)
	}
}

// Bind starts c with the current access token and keeps it following every
// later change. A change published while the current token is being read wins
// over the value read. The returned func unbinds and stops c.
func Bind(ctx context.Context, src TokenSource, c *Client) (func(), error) {
	f := &follower{
		client: c,
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	unsubscribe := src.SubscribeAccessToken(f.publish)

	tok, err := src.AccessToken(ctx)
	if err != nil {
		unsubscribe()
		return nil, fmt.Errorf("read access token: %w", err)
	}

	f.mu.Lock()
	if !f.seen {
		c.Start(tok)
	}
	f.mu.Unlock()
	go f.loop()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			close(f.quit)
			<-f.done
			c.Stop()
		})
	}, nil
}
