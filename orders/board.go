package orders

import (
	"encoding/json"
	"sync"

	"github.com/jrsteele09/izikwen-client/realtime"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// BoardMode decides what an ORDER_UPDATED event does to the list.
type BoardMode int

const (
	// BoardPending keeps only unsettled orders: an update removes the order.
	BoardPending BoardMode = iota
	// BoardHistory keeps every order: an update replaces it in place.
	BoardHistory
)

// Board is an order list kept current by realtime events. Apply is a
// realtime.Handler.
type Board struct {
	mode     BoardMode
	log      zerolog.Logger
	onChange func([]Order)

	mu     sync.Mutex
	orders []Order
}

type BoardOption func(*Board)

// WithOnChange registers fn to receive a snapshot after every change.
func WithOnChange(fn func([]Order)) BoardOption {
	return func(b *Board) {
		b.onChange = fn
	}
}

func WithBoardLogger(l zerolog.Logger) BoardOption {
	return func(b *Board) {
		b.log = l
	}
}

func NewBoard(mode BoardMode, options ...BoardOption) *Board {
	b := &Board{mode: mode, log: log.Logger}
	for _, opt := range options {
		opt(b)
	}
	return b
}

// Reset replaces the list, typically with a fresh load from the server.
func (b *Board) Reset(list []Order) {
	b.mu.Lock()
	b.orders = append([]Order(nil), list...)
	snapshot := b.snapshotLocked()
	b.mu.Unlock()
	b.changed(snapshot)
}

func (b *Board) Orders() []Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// Remove drops order id, as after settling it from this device.
func (b *Board) Remove(id int64) {
	b.mu.Lock()
	removed := b.removeLocked(id)
	snapshot := b.snapshotLocked()
	b.mu.Unlock()
	if removed {
		b.changed(snapshot)
	}
}

// Apply handles one realtime message. Unknown event types and payloads that do
// not decode are ignored.
func (b *Board) Apply(msg any) {
	ev, err := realtime.DecodeEvent(msg)
	if err != nil {
		b.log.Debug().Err(err).Msg("Ignoring realtime message")
		return
	}

	var o Order
	if err := json.Unmarshal(ev.Data, &o); err != nil || o.ID == 0 {
		b.log.Debug().Str("type", ev.Type).Msg("Ignoring realtime event without an order")
		return
	}

	b.mu.Lock()
	switch ev.Type {
	case realtime.EventNewOrder:
		b.removeLocked(o.ID)
		b.orders = append([]Order{o}, b.orders...)
	case realtime.EventOrderUpdated:
		if b.mode == BoardPending {
			b.removeLocked(o.ID)
		} else if !b.replaceLocked(o) {
			b.orders = append([]Order{o}, b.orders...)
		}
	default:
		b.mu.Unlock()
		b.log.Debug().Str("type", ev.Type).Msg("Ignoring unknown realtime event")
		return
	}
	snapshot := b.snapshotLocked()
	b.mu.Unlock()
	b.changed(snapshot)
}

func (b *Board) removeLocked(id int64) bool {
	for i, o := range b.orders {
		if o.ID == id {
			b.orders = append(b.orders[:i], b.orders[i+1:]...)
			return true
		}
	}
	return false
}

// replaceLocked merges the fields the event carries into the stored order.
func (b *Board) replaceLocked(update Order) bool {
	for i, o := range b.orders {
		if o.ID != update.ID {
			continue
		}
		if update.Status != "" {
			o.Status = update.Status
		}
		if update.AssetSymbol != "" {
			o.AssetSymbol = update.AssetSymbol
		}
		if update.AmountFiat != 0 {
			o.AmountFiat = update.AmountFiat
		}
		if update.WalletAddress != "" {
			o.WalletAddress = update.WalletAddress
		}
		b.orders[i] = o
		return true
	}
	return false
}

func (b *Board) snapshotLocked() []Order {
	return append([]Order(nil), b.orders...)
}

func (b *Board) changed(snapshot []Order) {
	if b.onChange != nil {
		b.onChange(snapshot)
	}
}
