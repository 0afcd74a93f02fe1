package realtime_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/izikwen-client/api"
	"github.com/jrsteele09/izikwen-client/internal/config"
	"github.com/jrsteele09/izikwen-client/internal/fakeserver"
	"github.com/jrsteele09/izikwen-client/realtime"
	"github.com/jrsteele09/izikwen-client/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

type retry struct {
	attempt int
	delay   time.Duration
}

type inbox struct {
	mu      sync.Mutex
	msgs    []any
	retries []retry
}

func (in *inbox) handle(msg any) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.msgs = append(in.msgs, msg)
}

func (in *inbox) retry(attempt int, delay time.Duration) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.retries = append(in.retries, retry{attempt, delay})
}

func (in *inbox) messages() []any {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]any(nil), in.msgs...)
}

func (in *inbox) retryLog() []retry {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]retry(nil), in.retries...)
}

type fixture struct {
	server  *fakeserver.Server
	baseURL string
	wsURL   string
	userID  int64
	inbox   *inbox
	metrics *realtime.Metrics
}

func setup(t *testing.T) *fixture {
	t.Helper()
	srv, baseURL := fakeserver.Start(t)
	userID := srv.AddAccount(fakeserver.Account{Email: "rt@example.com", Password: "password123"})
	srv.SeedTokens(userID, "A1", "R1")
	return &fixture{
		server:  srv,
		baseURL: baseURL,
		wsURL:   config.WebsocketURL(baseURL),
		userID:  userID,
		inbox:   &inbox{},
		metrics: realtime.NewMetrics(prometheus.NewRegistry()),
	}
}

func (f *fixture) client(t *testing.T, options ...realtime.Option) *realtime.Client {
	t.Helper()
	options = append([]realtime.Option{
		realtime.WithBackoff(10*time.Millisecond, 30*time.Millisecond),
		realtime.WithMetrics(f.metrics),
		realtime.WithRetryNotify(f.inbox.retry),
	}, options...)
	c, err := realtime.New(f.wsURL, fakeserver.ChannelOrders, f.inbox.handle, options...)
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c
}

func (f *fixture) waitOpen(t *testing.T, c *realtime.Client, dials int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.State() == realtime.StateOpen &&
			f.server.Connections(fakeserver.ChannelOrders) == 1 &&
			len(f.server.Dials(fakeserver.ChannelOrders)) == dials
	}, waitFor, 5*time.Millisecond)
}

func TestBackoff(t *testing.T) {
	step, max := 500*time.Millisecond, 8*time.Second
	cases := map[int]time.Duration{
		0:  500 * time.Millisecond,
		1:  500 * time.Millisecond,
		2:  time.Second,
		3:  1500 * time.Millisecond,
		15: 7500 * time.Millisecond,
		16: 8 * time.Second,
		20: 8 * time.Second,
	}
	for attempt, want := range cases {
		require.Equal(t, want, realtime.Backoff(attempt, step, max), "attempt %d", attempt)
	}
}

func TestNew_RequiresWebsocketScheme(t *testing.T) {
	_, err := realtime.New("http://localhost:8080", "/ws/orders", func(any) {})
	require.Error(t, err)

	_, err = realtime.New("ws://localhost:8080", "/ws/orders", nil)
	require.Error(t, err)
}

func TestClient_EmptyTokenDoesNotConnect(t *testing.T) {
	f := setup(t)
	c := f.client(t)

	c.Start("")
	time.Sleep(30 * time.Millisecond)

	require.Equal(t, realtime.StateIdle, c.State())
	require.Empty(t, f.server.Dials(fakeserver.ChannelOrders))
}

func TestClient_TokenIsSentURLEncoded(t *testing.T) {
	f := setup(t)
	f.server.SeedTokens(f.userID, "a+b/c=d&e", "")
	c := f.client(t)

	c.Start("a+b/c=d&e")
	f.waitOpen(t, c, 1)
	require.Equal(t, []string{"a+b/c=d&e"}, f.server.Dials(fakeserver.ChannelOrders))
}

func TestClient_MalformedFramesAreDiscarded(t *testing.T) {
	f := setup(t)
	c := f.client(t)
	c.Start("A1")
	f.waitOpen(t, c, 1)

	require.Equal(t, 1, f.server.Broadcast(fakeserver.ChannelOrders, []byte("not json {")))
	require.Equal(t, 1, f.server.Broadcast(fakeserver.ChannelOrders, []byte(`{"type":"NEW_ORDER","data":{"id":7}}`)))

	require.Eventually(t, func() bool { return len(f.inbox.messages()) == 1 }, waitFor, 5*time.Millisecond)
	msg, ok := f.inbox.messages()[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "NEW_ORDER", msg["type"])
	require.Equal(t, map[string]any{"id": 7.0}, msg["data"])

	require.Equal(t, realtime.StateOpen, c.State())
	require.Equal(t, 1, f.server.Connections(fakeserver.ChannelOrders))
	require.Len(t, f.server.Dials(fakeserver.ChannelOrders), 1)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Discarded.WithLabelValues(fakeserver.ChannelOrders)))
}

func TestClient_ScalarFramesAreForwardedAsIs(t *testing.T) {
	f := setup(t)
	c := f.client(t)
	c.Start("A1")
	f.waitOpen(t, c, 1)

	f.server.Broadcast(fakeserver.ChannelOrders, []byte(`"ping"`))
	f.server.Broadcast(fakeserver.ChannelOrders, []byte(`[1,2]`))

	require.Eventually(t, func() bool { return len(f.inbox.messages()) == 2 }, waitFor, 5*time.Millisecond)
	require.Equal(t, []any{"ping", []any{1.0, 2.0}}, f.inbox.messages())
}

func TestClient_HandlerPanicKeepsConnection(t *testing.T) {
	f := setup(t)
	var mu sync.Mutex
	calls := 0
	c, err := realtime.New(f.wsURL, fakeserver.ChannelOrders, func(any) {
		mu.Lock()
		calls++
		mu.Unlock()
		panic("boom")
	}, realtime.WithMetrics(f.metrics))
	require.NoError(t, err)
	t.Cleanup(c.Stop)

	c.Start("A1")
	f.waitOpen(t, c, 1)
	f.server.Broadcast(fakeserver.ChannelOrders, []byte(`{}`))
	f.server.Broadcast(fakeserver.ChannelOrders, []byte(`{}`))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	}, waitFor, 5*time.Millisecond)
	require.Equal(t, realtime.StateOpen, c.State())
	require.Len(t, f.server.Dials(fakeserver.ChannelOrders), 1)
}

func TestClient_ReconnectCounterResetsAfterOpen(t *testing.T) {
	f := setup(t)
	c := f.client(t)
	c.Start("A1")
	f.waitOpen(t, c, 1)

	f.server.DropConnections(fakeserver.ChannelOrders)
	f.waitOpen(t, c, 2)
	require.Zero(t, c.Attempt())

	f.server.DropConnections(fakeserver.ChannelOrders)
	f.waitOpen(t, c, 3)

	require.Equal(t, []retry{
		{attempt: 1, delay: 10 * time.Millisecond},
		{attempt: 1, delay: 10 * time.Millisecond},
	}, f.inbox.retryLog())
}

func TestClient_BackoffGrowsLinearlyUntilCapped(t *testing.T) {
	f := setup(t)
	c := f.client(t)
	c.Start("A1")
	f.waitOpen(t, c, 1)

	f.server.RejectDials(fakeserver.ChannelOrders, true)
	f.server.DropConnections(fakeserver.ChannelOrders)

	require.Eventually(t, func() bool { return len(f.inbox.retryLog()) >= 5 }, waitFor, 5*time.Millisecond)
	f.server.RejectDials(fakeserver.ChannelOrders, false)

	require.Equal(t, []retry{
		{1, 10 * time.Millisecond},
		{2, 20 * time.Millisecond},
		{3, 30 * time.Millisecond},
		{4, 30 * time.Millisecond},
		{5, 30 * time.Millisecond},
	}, f.inbox.retryLog()[:5])

	require.Eventually(t, func() bool {
		return c.State() == realtime.StateOpen && f.server.Connections(fakeserver.ChannelOrders) == 1
	}, waitFor, 5*time.Millisecond)
	require.Zero(t, c.Attempt())
}

func TestClient_RejectedTokenKeepsRetrying(t *testing.T) {
	f := setup(t)
	c := f.client(t)
	c.Start("unknown")

	require.Eventually(t, func() bool {
		return len(f.server.Dials(fakeserver.ChannelOrders)) >= 3
	}, waitFor, 5*time.Millisecond)
	require.NotEqual(t, realtime.StateOpen, c.State())
	require.Zero(t, f.server.Connections(fakeserver.ChannelOrders))
}

func TestClient_StopIsIdempotentAndFinal(t *testing.T) {
	f := setup(t)
	c := f.client(t)

	c.Stop()
	c.Start("A1")
	f.waitOpen(t, c, 1)

	c.Stop()
	c.Stop()
	require.Equal(t, realtime.StateIdle, c.State())
	require.Eventually(t, func() bool {
		return f.server.Connections(fakeserver.ChannelOrders) == 0
	}, waitFor, 5*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	require.Len(t, f.server.Dials(fakeserver.ChannelOrders), 1)
	require.Empty(t, f.inbox.retryLog())
}

func TestClient_StopDuringBackoffCancelsReconnect(t *testing.T) {
	f := setup(t)
	c := f.client(t, realtime.WithBackoff(time.Hour, time.Hour))
	c.Start("A1")
	f.waitOpen(t, c, 1)

	f.server.DropConnections(fakeserver.ChannelOrders)
	require.Eventually(t, func() bool { return len(f.inbox.retryLog()) == 1 }, waitFor, 5*time.Millisecond)
	require.Equal(t, realtime.StateClosed, c.State())

	c.Stop()
	require.Equal(t, realtime.StateIdle, c.State())
	require.Len(t, f.server.Dials(fakeserver.ChannelOrders), 1)
}

func TestClient_SetTokenReopens(t *testing.T) {
	f := setup(t)
	f.server.SeedTokens(f.userID, "A2", "")
	c := f.client(t)

	c.SetToken("A1")
	f.waitOpen(t, c, 1)

	c.SetToken("A1")
	require.Len(t, f.server.Dials(fakeserver.ChannelOrders), 1)

	c.SetToken("A2")
	f.waitOpen(t, c, 2)
	require.Equal(t, []string{"A1", "A2"}, f.server.Dials(fakeserver.ChannelOrders))

	c.SetToken("")
	require.Equal(t, realtime.StateIdle, c.State())
}

func TestBind_FollowsStoredAccessToken(t *testing.T) {
	f := setup(t)
	f.server.SeedTokens(f.userID, "A2", "")
	ctx := context.Background()

	store := token.NewStore(token.NewInMemoryRepo())
	require.NoError(t, store.SetTokens(ctx, "A1", "R1"))

	c := f.client(t)
	unbind, err := realtime.Bind(ctx, store, c)
	require.NoError(t, err)
	f.waitOpen(t, c, 1)

	require.NoError(t, store.SetAccessToken(ctx, "A2"))
	f.waitOpen(t, c, 2)
	require.Equal(t, []string{"A1", "A2"}, f.server.Dials(fakeserver.ChannelOrders))

	require.NoError(t, store.ClearAll(ctx))
	require.Eventually(t, func() bool {
		return c.State() == realtime.StateIdle
	}, waitFor, 5*time.Millisecond)

	unbind()
	require.NoError(t, store.SetAccessToken(ctx, "A1"))
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, realtime.StateIdle, c.State())
	require.Len(t, f.server.Dials(fakeserver.ChannelOrders), 2)
}

func TestBind_SignedOutStoreStaysIdle(t *testing.T) {
	f := setup(t)
	store := token.NewStore(token.NewInMemoryRepo())
	c := f.client(t)

	unbind, err := realtime.Bind(context.Background(), store, c)
	require.NoError(t, err)
	defer unbind()

	require.Equal(t, realtime.StateIdle, c.State())
	require.Empty(t, f.server.Dials(fakeserver.ChannelOrders))
}

// racingSource publishes a token change from inside AccessToken, as a
// concurrent sign-in or sign-out would between subscribing and reading.
type racingSource struct {
	mu        sync.Mutex
	subs      []func(string)
	read      string
	published string
}

func (s *racingSource) SubscribeAccessToken(fn func(string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
	return func() {}
}

func (s *racingSource) AccessToken(context.Context) (string, error) {
	s.mu.Lock()
	subs := append(([]func(string))(nil), s.subs...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(s.published)
	}
	return s.read, nil
}

func TestBind_SignOutDuringReadStaysIdle(t *testing.T) {
	f := setup(t)
	c := f.client(t)

	unbind, err := realtime.Bind(context.Background(), &racingSource{read: "A1", published: ""}, c)
	require.NoError(t, err)
	defer unbind()

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, realtime.StateIdle, c.State())
	require.Empty(t, f.server.Dials(fakeserver.ChannelOrders))
}

func TestBind_RotationDuringReadWins(t *testing.T) {
	f := setup(t)
	f.server.SeedTokens(f.userID, "A2", "")
	c := f.client(t)

	unbind, err := realtime.Bind(context.Background(), &racingSource{read: "A1", published: "A2"}, c)
	require.NoError(t, err)
	defer unbind()

	f.waitOpen(t, c, 1)
	require.Equal(t, []string{"A2"}, f.server.Dials(fakeserver.ChannelOrders))
}

func TestBind_HandlerMayRefreshTheSession(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	store := token.NewStore(token.NewInMemoryRepo())
	require.NoError(t, store.SetTokens(ctx, "A1", "R1"))
	client, err := api.New(f.baseURL, store)
	require.NoError(t, err)

	results := make(chan error, 1)
	handler := func(any) {
		results <- client.Get(ctx, fakeserver.RouteMe, nil, nil)
	}
	c, err := realtime.New(f.wsURL, fakeserver.ChannelOrders, handler,
		realtime.WithBackoff(10*time.Millisecond, 30*time.Millisecond))
	require.NoError(t, err)

	unbind, err := realtime.Bind(ctx, store, c)
	require.NoError(t, err)
	defer unbind()
	f.waitOpen(t, c, 1)

	f.server.ExpireAccessToken("A1")
	f.server.QueueAccessTokens("A2")
	require.Equal(t, 1, f.server.Broadcast(fakeserver.ChannelOrders, []byte(`{"type":"ORDER_UPDATED","data":{"id":1}}`)))

	select {
	case err := <-results:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("handler's API call did not return")
	}

	access, err := store.AccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "A2", access)
	f.waitOpen(t, c, 2)
	require.Equal(t, []string{"A1", "A2"}, f.server.Dials(fakeserver.ChannelOrders))

	// Later token writes are not blocked either.
	require.NoError(t, store.ClearAll(ctx))
	require.Eventually(t, func() bool {
		return c.State() == realtime.StateIdle
	}, waitFor, 5*time.Millisecond)
}

func TestDecodeEvent(t *testing.T) {
	ev, err := realtime.DecodeEvent(map[string]any{"type": realtime.EventOrderUpdated, "data": map[string]any{"id": 3}})
	require.NoError(t, err)
	require.Equal(t, realtime.EventOrderUpdated, ev.Type)
	require.JSONEq(t, `{"id":3}`, string(ev.Data))

	_, err = realtime.DecodeEvent("ping")
	require.Error(t, err)

	_, err = realtime.DecodeEvent(map[string]any{"data": 1})
	require.Error(t, err)
}
