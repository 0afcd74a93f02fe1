package orders_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/izikwen-client/internal/config"
	"github.com/jrsteele09/izikwen-client/internal/fakeserver"
	"github.com/jrsteele09/izikwen-client/orders"
	"github.com/jrsteele09/izikwen-client/realtime"
	"github.com/stretchr/testify/require"
)

func frame(t *testing.T, eventType string, o orders.Order) any {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"type": eventType, "data": o})
	require.NoError(t, err)
	var msg any
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func ids(list []orders.Order) []int64 {
	out := make([]int64, 0, len(list))
	for _, o := range list {
		out = append(out, o.ID)
	}
	return out
}

func TestBoard_PendingMode(t *testing.T) {
	var changes atomic.Int32
	b := orders.NewBoard(orders.BoardPending, orders.WithOnChange(func([]orders.Order) { changes.Add(1) }))
	b.Reset([]orders.Order{{ID: 1, Status: orders.StatusPending}, {ID: 2, Status: orders.StatusPending}})

	b.Apply(frame(t, realtime.EventNewOrder, orders.Order{ID: 3, Status: orders.StatusPending}))
	require.Equal(t, []int64{3, 1, 2}, ids(b.Orders()))

	// A repeated NEW_ORDER moves the order to the top without duplicating it.
	b.Apply(frame(t, realtime.EventNewOrder, orders.Order{ID: 2, Status: orders.StatusPending}))
	require.Equal(t, []int64{2, 3, 1}, ids(b.Orders()))

	b.Apply(frame(t, realtime.EventOrderUpdated, orders.Order{ID: 3, Status: orders.StatusCompleted}))
	require.Equal(t, []int64{2, 1}, ids(b.Orders()))

	b.Remove(1)
	b.Remove(42)
	require.Equal(t, []int64{2}, ids(b.Orders()))
	require.EqualValues(t, 5, changes.Load())
}

func TestBoard_HistoryMode(t *testing.T) {
	b := orders.NewBoard(orders.BoardHistory)
	b.Reset([]orders.Order{{ID: 1, Status: orders.StatusPending, WalletAddress: "W1", AmountFiat: 10}})

	b.Apply(frame(t, realtime.EventOrderUpdated, orders.Order{ID: 1, Status: orders.StatusCompleted}))
	list := b.Orders()
	require.Len(t, list, 1)
	require.Equal(t, orders.StatusCompleted, list[0].Status)
	require.Equal(t, "W1", list[0].WalletAddress)
	require.Equal(t, 10.0, list[0].AmountFiat)

	// Updates for orders not yet loaded are kept.
	b.Apply(frame(t, realtime.EventOrderUpdated, orders.Order{ID: 7, Status: orders.StatusFailed}))
	require.Equal(t, []int64{7, 1}, ids(b.Orders()))
}

func TestBoard_IgnoresUnknownMessages(t *testing.T) {
	b := orders.NewBoard(orders.BoardPending)
	b.Reset([]orders.Order{{ID: 1}})

	b.Apply("ping")
	b.Apply(map[string]any{"type": "PRICE_TICK", "data": map[string]any{"id": 9}})
	b.Apply(map[string]any{"type": realtime.EventNewOrder, "data": "not an order"})
	b.Apply(map[string]any{"type": realtime.EventNewOrder})
	require.Equal(t, []int64{1}, ids(b.Orders()))
}

func TestBoard_SnapshotsAreCopies(t *testing.T) {
	b := orders.NewBoard(orders.BoardHistory)
	b.Reset([]orders.Order{{ID: 1}})
	list := b.Orders()
	list[0].ID = 99
	require.Equal(t, []int64{1}, ids(b.Orders()))
}

func TestBoard_FollowsAdminChannel(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	board := orders.NewBoard(orders.BoardPending)
	rt, err := realtime.New(config.WebsocketURL(f.baseURL), fakeserver.ChannelAdminOrders, board.Apply,
		realtime.WithBackoff(10*time.Millisecond, 50*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(rt.Stop)

	rt.Start("ADMIN-A")
	require.Eventually(t, func() bool {
		return f.server.Connections(fakeserver.ChannelAdminOrders) == 1
	}, 5*time.Second, 10*time.Millisecond)

	o, err := f.user.Create(ctx, orders.BuyRequest{AmountFiat: 25, WalletAddress: "W1"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		list := board.Orders()
		return len(list) == 1 && list[0].ID == o.ID
	}, 5*time.Second, 10*time.Millisecond)

	_, err = f.admin.UpdateStatus(ctx, o.ID, orders.StatusCompleted)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(board.Orders()) == 0
	}, 5*time.Second, 10*time.Millisecond)
}
