package orders

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jrsteele09/izikwen-client/api"
	"github.com/jrsteele09/izikwen-client/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	PathBuy         = "/orders/buy"
	PathOrders      = "/orders"
	PathAdminOrders = "/admin/orders"
)

// BuyRequest is a USDT purchase. Empty asset, currency and network take the
// app defaults.
type BuyRequest struct {
	AssetSymbol   string  `json:"assetSymbol"`
	AmountFiat    float64 `json:"amountFiat"`
	FiatCurrency  string  `json:"fiatCurrency"`
	WalletAddress string  `json:"walletAddress"`
	Network       string  `json:"network"`
}

func (r *BuyRequest) normalise() error {
	r.WalletAddress = strings.TrimSpace(r.WalletAddress)
	if r.AmountFiat <= 0 {
		return fmt.Errorf("amount must be positive: %w", errors.ErrInvalidInput)
	}
	if r.WalletAddress == "" {
		return fmt.Errorf("wallet address is required: %w", errors.ErrInvalidInput)
	}
	if r.AssetSymbol == "" {
		r.AssetSymbol = DefaultAsset
	}
	if r.FiatCurrency == "" {
		r.FiatCurrency = DefaultCurrency
	}
	if r.Network == "" {
		r.Network = DefaultNetwork
	}
	return nil
}

// Service is the signed-in user's view of their orders.
type Service struct {
	client *api.Client
	log    zerolog.Logger
}

func NewService(client *api.Client) *Service {
	return &Service{client: client, log: log.Logger}
}

func (s *Service) Create(ctx context.Context, req BuyRequest) (*Order, error) {
	if err := req.normalise(); err != nil {
		return nil, err
	}
	var o Order
	if err := s.client.Post(ctx, PathBuy, req, &o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.log.Info().Int64("order_id", o.ID).Float64("amount", o.AmountFiat).Msg("Order created")
	return &o, nil
}

// List returns the caller's orders, newest first.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	var list []Order
	if err := s.client.Get(ctx, PathOrders, nil, &list); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return list, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	var o Order
	if err := s.client.Get(ctx, orderPath(id), nil, &o); err != nil {
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}
	return &o, nil
}

func (s *Service) ListByUser(ctx context.Context, userID int64) ([]Order, error) {
	var list []Order
	if err := s.client.Get(ctx, PathOrders+"/user/"+strconv.FormatInt(userID, 10), nil, &list); err != nil {
		return nil, fmt.Errorf("list orders of user %d: %w", userID, err)
	}
	return list, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id int64, status Status) (*Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown order status %q: %w", status, errors.ErrInvalidInput)
	}
	var o Order
	if err := s.client.Put(ctx, orderPath(id)+"/status", map[string]Status{"status": status}, &o); err != nil {
		return nil, fmt.Errorf("update order %d: %w", id, err)
	}
	return &o, nil
}

func (s *Service) Cancel(ctx context.Context, id int64) (*Order, error) {
	var o Order
	if err := s.client.Put(ctx, orderPath(id)+"/cancel", nil, &o); err != nil {
		return nil, fmt.Errorf("cancel order %d: %w", id, err)
	}
	s.log.Info().Int64("order_id", id).Msg("Order cancelled")
	return &o, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.client.Delete(ctx, orderPath(id), nil); err != nil {
		return fmt.Errorf("delete order %d: %w", id, err)
	}
	return nil
}

// AdminService is the operator's queue of orders to settle.
type AdminService struct {
	client *api.Client
	log    zerolog.Logger
}

func NewAdminService(client *api.Client) *AdminService {
	return &AdminService{client: client, log: log.Logger}
}

// Pending returns the orders waiting for settlement.
func (s *AdminService) Pending(ctx context.Context) ([]Order, error) {
	var list []Order
	q := url.Values{"status": {string(StatusPending)}}
	if err := s.client.Get(ctx, PathAdminOrders, q, &list); err != nil {
		return nil, fmt.Errorf("list pending orders: %w", err)
	}
	return list, nil
}

// UpdateStatus settles an order as COMPLETED or FAILED.
func (s *AdminService) UpdateStatus(ctx context.Context, id int64, status Status) (*Order, error) {
	if !status.Final() {
		return nil, fmt.Errorf("admin status must be COMPLETED or FAILED, got %q: %w", status, errors.ErrInvalidInput)
	}
	var o Order
	path := PathAdminOrders + "/" + strconv.FormatInt(id, 10) + "/status"
	if err := s.client.Patch(ctx, path, map[string]Status{"status": status}, &o); err != nil {
		return nil, fmt.Errorf("settle order %d: %w", id, err)
	}
	s.log.Info().Int64("order_id", id).Str("status", string(status)).Msg("Order settled")
	return &o, nil
}

func orderPath(id int64) string {
	return PathOrders + "/" + strconv.FormatInt(id, 10)
}
