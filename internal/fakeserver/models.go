package fakeserver

import (
	"strings"
	"time"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"

	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Account seeds a user on the fake backend.
type Account struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Country   string
	Role      string
	TwoFA     bool
}

type account struct {
	Account
	ID           int64
	TokenVersion int
	Devices      []Device
}

// Device is a trusted device registered by a 2FA verification.
type Device struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	Platform   string `json:"platform"`
}

type userJSON struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Country   string `json:"country"`
	Role      string `json:"role"`
}

func (a *account) json() userJSON {
	return userJSON{
		ID:        a.ID,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Country:   a.Country,
		Role:      a.Role,
	}
}

type Order struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"userId"`
	AssetSymbol   string    `json:"assetSymbol"`
	AmountFiat    float64   `json:"amountFiat"`
	FiatCurrency  string    `json:"fiatCurrency"`
	WalletAddress string    `json:"walletAddress"`
	Network       string    `json:"network"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

// AddAccount registers acc and returns its id.
func (s *Server) AddAccount(acc Account) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addAccountLocked(acc)
}

func (s *Server) addAccountLocked(acc Account) int64 {
	if acc.Role == "" {
		acc.Role = RoleUser
	}
	acc.Email = strings.ToLower(strings.TrimSpace(acc.Email))
	s.nextUserID++
	s.accounts[s.nextUserID] = &account{Account: acc, ID: s.nextUserID}
	return s.nextUserID
}

func (s *Server) accountByEmailLocked(email string) *account {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, a := range s.accounts {
		if a.Email == email {
			return a
		}
	}
	return nil
}

// AddOrder stores o as-is, assigning an id and creation time when missing.
func (s *Server) AddOrder(o Order) Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == 0 {
		s.nextOrder++
		o.ID = s.nextOrder
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = NowTimeFunc().UTC()
	}
	if o.Status == "" {
		o.Status = StatusPending
	}
	stored := o
	s.orders[o.ID] = &stored
	return o
}

// Devices returns the trusted devices of account id.
func (s *Server) Devices(id int64) []Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[id]; ok {
		return append([]Device(nil), a.Devices...)
	}
	return nil
}
