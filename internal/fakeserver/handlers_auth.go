package fakeserver

import (
	"net/http"
	"strings"
)

type tokenPair struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken,omitempty"`
	User         userJSON `json:"user"`
}

func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email     string `json:"email"`
			Password  string `json:"password"`
			FirstName string `json:"firstName"`
			LastName  string `json:"lastName"`
			Country   string `json:"country"`
		}
		if err := readJSON(r, &req); err != nil || req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "Email and password are required")
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.accountByEmailLocked(req.Email) != nil {
			writeError(w, http.StatusConflict, "Email already registered")
			return
		}
		id := s.addAccountLocked(Account{
			Email:     req.Email,
			Password:  req.Password,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Country:   req.Country,
		})
		writeJSON(w, http.StatusCreated, map[string]any{
			"message": "Registered",
			"user":    s.accounts[id].json(),
		})
	}
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
			DeviceID string `json:"deviceId"`
		}
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid body")
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		acc := s.accountByEmailLocked(req.Email)
		if acc == nil || acc.Password != req.Password {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		if acc.TwoFA && !acc.trusts(req.DeviceID) {
			challenge := opaqueToken()
			s.twoFA[challenge] = acc.ID
			writeJSON(w, http.StatusOK, map[string]any{
				"requires2FA": true,
				"twoFaToken":  challenge,
			})
			return
		}

		pair, err := s.issuePairLocked(acc)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, pair)
	}
}

func (s *Server) Verify2FAHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Code       string `json:"code"`
			DeviceID   string `json:"deviceId"`
			DeviceName string `json:"deviceName"`
			Platform   string `json:"platform"`
		}
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid body")
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		challenge := bearerToken(r)
		id, ok := s.twoFA[challenge]
		if !ok {
			writeError(w, http.StatusUnauthorized, "Invalid 2FA session")
			return
		}
		if req.Code != s.twoFACode {
			writeError(w, http.StatusBadRequest, "Invalid code")
			return
		}
		delete(s.twoFA, challenge)

		acc := s.accounts[id]
		if req.DeviceID != "" && !acc.trusts(req.DeviceID) {
			acc.Devices = append(acc.Devices, Device{
				DeviceID:   req.DeviceID,
				DeviceName: req.DeviceName,
				Platform:   req.Platform,
			})
		}
		pair, err := s.issuePairLocked(acc)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, pair)
	}
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.refreshCalls++
		gate := s.refreshGate
		s.mu.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.refreshStatus != 0 {
			writeError(w, s.refreshStatus, "Refresh failed")
			return
		}
		id, ok := s.refresh[bearerToken(r)]
		if !ok {
			writeError(w, http.StatusUnauthorized, "Invalid refresh token")
			return
		}
		tok, err := s.issueAccessLocked(s.accounts[id])
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"accessToken": tok})
	}
}

// LogoutAllHandler revokes every token of the caller.
func (s *Server) LogoutAllHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc := currentAccount(r)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.revokeAllLocked(acc.ID)
		acc.TokenVersion++
		writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out everywhere"})
	}
}

func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, currentAccount(r).json())
	}
}

func (s *Server) ChangePasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CurrentPassword string `json:"currentPassword"`
			NewPassword     string `json:"newPassword"`
		}
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid body")
			return
		}

		acc := currentAccount(r)
		s.mu.Lock()
		defer s.mu.Unlock()
		if acc.Password != req.CurrentPassword {
			writeError(w, http.StatusBadRequest, "Current password is incorrect")
			return
		}
		if len(strings.TrimSpace(req.NewPassword)) < 8 {
			writeError(w, http.StatusBadRequest, "Password too short")
			return
		}
		acc.Password = req.NewPassword
		acc.TokenVersion++
		s.revokeAllLocked(acc.ID)

		pair, err := s.issuePairLocked(acc)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, pair)
	}
}

func (s *Server) issuePairLocked(acc *account) (tokenPair, error) {
	access, err := s.issueAccessLocked(acc)
	if err != nil {
		return tokenPair{}, err
	}
	refresh := opaqueToken()
	s.refresh[refresh] = acc.ID
	return tokenPair{AccessToken: access, RefreshToken: refresh, User: acc.json()}, nil
}

func (s *Server) revokeAllLocked(id int64) {
	for tok, owner := range s.access {
		if owner == id {
			delete(s.access, tok)
		}
	}
	for tok, owner := range s.refresh {
		if owner == id {
			delete(s.refresh, tok)
		}
	}
}

func (a *account) trusts(deviceID string) bool {
	if deviceID == "" {
		return false
	}
	for _, d := range a.Devices {
		if d.DeviceID == deviceID {
			return true
		}
	}
	return false
}
