package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"docshub/api/internal/auth"
	"docshub/api/internal/metrics"
)

const (
	eventWriteWait  = 10 * time.Second
	eventPongWait   = 60 * time.Second
	eventPingPeriod = (eventPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleEvents streams the caller's change events over a websocket. The
// token comes from the Authorization header or the token query parameter.
func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Access denied. No token provided.", nil)
		return
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token", nil)
			return
		}
		s.writeMappedError(w, err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, unsubscribe, err := s.service.Subscribe(ctx, session)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	defer unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", session.UserID).Msg("event stream upgrade failed")
		return
	}
	defer conn.Close()
	defer metrics.StreamOpened()()

	// Clients never send anything meaningful; reading drives pong handling
	// and notices the close.
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(eventPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventPongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(eventPingPeriod)
	defer ticker.Stop()

	s.logger.Debug().Str("user_id", session.UserID).Msg("event stream opened")
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-stream:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(eventWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				s.logger.Debug().Err(err).Str("user_id", session.UserID).Msg("event stream write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteWait)); err != nil {
				return
			}
		}
	}
}
