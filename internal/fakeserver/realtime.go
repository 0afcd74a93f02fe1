package fakeserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

const writeTimeout = 2 * time.Second

type socket struct {
	conn   *websocket.Conn
	userID int64
}

type hub struct {
	log zerolog.Logger

	mu       sync.Mutex
	sockets  map[string]map[*socket]struct{}
	tokens   map[string][]string
	rejected map[string]bool
}

func newHub(l zerolog.Logger) *hub {
	return &hub{
		log:      l,
		sockets:  make(map[string]map[*socket]struct{}),
		tokens:   make(map[string][]string),
		rejected: make(map[string]bool),
	}
}

// SocketHandler upgrades authenticated requests on channel. The access token
// travels in the token query parameter.
func (s *Server) SocketHandler(channel string, adminOnly bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := r.URL.Query().Get("token")
		if s.hub.recordDial(channel, tok) {
			writeError(w, http.StatusServiceUnavailable, "Realtime unavailable")
			return
		}

		s.mu.Lock()
		var acc *account
		if id, ok := s.access[tok]; ok {
			acc = s.accounts[id]
		}
		s.mu.Unlock()
		if acc == nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if adminOnly && acc.Role != RoleAdmin {
			writeError(w, http.StatusForbidden, "Admin only")
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			s.log.Debug().Err(err).Msg("fakeserver: websocket accept")
			return
		}
		sock := &socket{conn: conn, userID: acc.ID}
		s.hub.add(channel, sock)
		defer s.hub.remove(channel, sock)

		// Inbound frames are ignored; the read side only detects the close.
		ctx := conn.CloseRead(context.Background())
		<-ctx.Done()
		_ = conn.CloseNow()
	}
}

func (h *hub) recordDial(channel, tok string) (rejected bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tokens[channel] = append(h.tokens[channel], tok)
	return h.rejected[channel]
}

func (h *hub) reject(channel string, on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rejected[channel] = on
}

func (h *hub) add(channel string, sock *socket) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sockets[channel] == nil {
		h.sockets[channel] = make(map[*socket]struct{})
	}
	h.sockets[channel][sock] = struct{}{}
}

func (h *hub) remove(channel string, sock *socket) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sockets[channel], sock)
}

func (h *hub) snapshot(channel string) []*socket {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*socket, 0, len(h.sockets[channel]))
	for sock := range h.sockets[channel] {
		out = append(out, sock)
	}
	return out
}

// broadcast writes frame to the sockets on channel accepted by match (all when
// match is nil) and returns how many were written.
func (h *hub) broadcast(channel string, frame []byte, match func(userID int64) bool) int {
	sent := 0
	for _, sock := range h.snapshot(channel) {
		if match != nil && !match(sock.userID) {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := sock.conn.Write(ctx, websocket.MessageText, frame)
		cancel()
		if err != nil {
			h.log.Debug().Err(err).Str("channel", channel).Msg("fakeserver: websocket write")
			continue
		}
		sent++
	}
	return sent
}

func (h *hub) drop(channel string) {
	for _, sock := range h.snapshot(channel) {
		_ = sock.conn.Close(websocket.StatusGoingAway, "server restart")
		h.remove(channel, sock)
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	channels := make([]string, 0, len(h.sockets))
	for ch := range h.sockets {
		channels = append(channels, ch)
	}
	h.mu.Unlock()
	for _, ch := range channels {
		for _, sock := range h.snapshot(ch) {
			_ = sock.conn.CloseNow()
			h.remove(ch, sock)
		}
	}
}

func (h *hub) count(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sockets[channel])
}

func (h *hub) dials(channel string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.tokens[channel]...)
}
