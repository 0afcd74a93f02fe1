package orders

import (
	"fmt"
	"time"

	"github.com/jrsteele09/izikwen-client/internal/errors"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Statuses lists the order states in lifecycle order.
var Statuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Final reports whether the order can no longer change.
func (s Status) Final() bool {
	return s == StatusCompleted || s == StatusFailed
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown order status %q: %w", s, errors.ErrInvalidInput)
	}
	return st, nil
}

type Order struct {
	ID            int64     `json:"id"`
	AssetSymbol   string    `json:"assetSymbol"`
	AmountFiat    float64   `json:"amountFiat"`
	FiatCurrency  string    `json:"fiatCurrency"`
	WalletAddress string    `json:"walletAddress"`
	Network       string    `json:"network"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Filter returns the orders in status, or all of them for an empty status.
func Filter(list []Order, status Status) []Order {
	if status == "" {
		return list
	}
	out := make([]Order, 0, len(list))
	for _, o := range list {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}
