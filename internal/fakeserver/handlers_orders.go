package fakeserver

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

const (
	eventNewOrder     = "NEW_ORDER"
	eventOrderUpdated = "ORDER_UPDATED"
)

func (s *Server) CreateOrderHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AssetSymbol   string  `json:"assetSymbol"`
			AmountFiat    float64 `json:"amountFiat"`
			FiatCurrency  string  `json:"fiatCurrency"`
			WalletAddress string  `json:"walletAddress"`
			Network       string  `json:"network"`
		}
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid body")
			return
		}
		if req.AmountFiat <= 0 || req.WalletAddress == "" {
			writeError(w, http.StatusBadRequest, "Amount and wallet address are required")
			return
		}

		o := s.AddOrder(Order{
			UserID:        currentAccount(r).ID,
			AssetSymbol:   req.AssetSymbol,
			AmountFiat:    req.AmountFiat,
			FiatCurrency:  req.FiatCurrency,
			WalletAddress: req.WalletAddress,
			Network:       req.Network,
		})
		s.publish(eventNewOrder, o)
		writeJSON(w, http.StatusCreated, o)
	}
}

func (s *Server) ListOrdersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc := currentAccount(r)
		writeJSON(w, http.StatusOK, s.ordersWhere(func(o *Order) bool {
			return o.UserID == acc.ID
		}))
	}
}

func (s *Server) ListUserOrdersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc := currentAccount(r)
		userID, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if userID != acc.ID && acc.Role != RoleAdmin {
			writeError(w, http.StatusForbidden, "Forbidden")
			return
		}
		writeJSON(w, http.StatusOK, s.ordersWhere(func(o *Order) bool {
			return o.UserID == userID
		}))
	}
}

func (s *Server) GetOrderHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, ok := s.visibleOrder(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, o)
	}
}

func (s *Server) UpdateOrderStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Status string `json:"status"`
		}
		if err := readJSON(r, &req); err != nil || !validStatus(req.Status) {
			writeError(w, http.StatusBadRequest, "Invalid status")
			return
		}
		if _, ok := s.visibleOrder(w, r); !ok {
			return
		}
		s.setStatus(w, r, req.Status)
	}
}

func (s *Server) CancelOrderHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, ok := s.visibleOrder(w, r)
		if !ok {
			return
		}
		if o.Status != StatusPending {
			writeError(w, http.StatusConflict, "Only pending orders can be cancelled")
			return
		}
		s.setStatus(w, r, StatusFailed)
	}
}

func (s *Server) DeleteOrderHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, ok := s.visibleOrder(w, r)
		if !ok {
			return
		}
		s.mu.Lock()
		delete(s.orders, o.ID)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"message": "Deleted"})
	}
}

func (s *Server) AdminListOrdersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := r.URL.Query().Get("status")
		writeJSON(w, http.StatusOK, s.ordersWhere(func(o *Order) bool {
			return status == "" || o.Status == status
		}))
	}
}

func (s *Server) AdminUpdateStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Status string `json:"status"`
		}
		if err := readJSON(r, &req); err != nil || (req.Status != StatusCompleted && req.Status != StatusFailed) {
			writeError(w, http.StatusBadRequest, "Status must be COMPLETED or FAILED")
			return
		}
		s.setStatus(w, r, req.Status)
	}
}

func (s *Server) setStatus(w http.ResponseWriter, r *http.Request, status string) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	s.mu.Lock()
	o, ok := s.orders[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Order not found")
		return
	}
	o.Status = status
	updated := *o
	s.mu.Unlock()

	s.publish(eventOrderUpdated, updated)
	writeJSON(w, http.StatusOK, updated)
}

// visibleOrder loads the order named in the route, writing 404 when the
// caller may not see it.
func (s *Server) visibleOrder(w http.ResponseWriter, r *http.Request) (Order, bool) {
	acc := currentAccount(r)
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || (o.UserID != acc.ID && acc.Role != RoleAdmin) {
		writeError(w, http.StatusNotFound, "Order not found")
		return Order{}, false
	}
	return *o, true
}

// ordersWhere returns matching orders, newest first.
func (s *Server) ordersWhere(match func(*Order) bool) []Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Order{}
	for _, o := range s.orders {
		if match(o) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// publish pushes an order event to admins and to the order's owner.
func (s *Server) publish(eventType string, o Order) {
	frame, err := json.Marshal(map[string]any{"type": eventType, "data": o})
	if err != nil {
		s.log.Error().Err(err).Msg("fakeserver: encode event")
		return
	}
	s.hub.broadcast(ChannelAdminOrders, frame, nil)
	s.hub.broadcast(ChannelOrders, frame, func(userID int64) bool { return userID == o.UserID })
}

func validStatus(status string) bool {
	switch status {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// EchoHandler answers with the method and body it received.
func (s *Server) EchoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body json.RawMessage
		_ = readJSON(r, &body)
		writeJSON(w, http.StatusOK, map[string]any{
			"method": r.Method,
			"query":  r.URL.RawQuery,
			"body":   body,
			"userId": currentAccount(r).ID,
		})
	}
}

// SlowHandler waits for the duration in ?d= (default 1s) or until the client gives up.
func (s *Server) SlowHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := time.ParseDuration(r.URL.Query().Get("d"))
		if err != nil {
			d = time.Second
		}
		select {
		case <-time.After(d):
			writeJSON(w, http.StatusOK, map[string]string{"message": "done"})
		case <-r.Context().Done():
		}
	}
}

func (s *Server) FailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, _ := strconv.Atoi(mux.Vars(r)["status"])
		writeError(w, status, "Forced failure")
	}
}
