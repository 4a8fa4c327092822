package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"github.com/saberesdafloresta/nina/internal/auth"
	"github.com/saberesdafloresta/nina/internal/session"
	"github.com/saberesdafloresta/nina/internal/transport"
)

// Authorizer validates the session token presented on /voice.
type Authorizer interface {
	Authorize(ctx context.Context, token string) (auth.Identity, error)
}

// handleVoice authenticates the request, upgrades it to a WebSocket, and runs
// one session until the client disconnects.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.authorize(w, r)
	if !ok {
		return
	}

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowedOrigins,
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	conn := transport.NewWebSocketConn(wsConn)
	defer conn.Close()

	s.sessions.Add(1)
	defer s.sessions.Done()

	// The session stops when the client goes away or when server shutdown
	// stops waiting for it.
	ctx, cancel := s.sessionContext(r.Context())
	defer cancel()

	id := fmt.Sprintf("sess-%d", s.nextSessionID.Add(1))
	log := s.log.With("session_id", id, "user_id", identity.UserID)

	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(ctx, -1)

	log.Info("session opened", "remote", r.RemoteAddr)
	sess := session.New(id, conn, s.cfg.Adapters, s.cfg.Session)
	if err := sess.Run(ctx); err != nil {
		log.Debug("session ended", "err", err)
	} else {
		log.Info("session closed")
	}
}

// authorize extracts and validates the session token. On failure it writes
// the response and returns ok=false. Without an Authorizer every request
// passes anonymously.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	if s.cfg.Authorizer == nil {
		return auth.Identity{}, true
	}

	identity, err := s.cfg.Authorizer.Authorize(r.Context(), bearerToken(r))
	switch {
	case err == nil:
		return identity, true
	case errors.Is(err, auth.ErrNoToken), errors.Is(err, auth.ErrInvalidToken):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	case errors.Is(err, auth.ErrNotEntitled):
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		s.log.Error("authorization failed", "err", err)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	}
	return auth.Identity{}, false
}

// bearerToken pulls the session token from the Authorization header, falling
// back to the token query parameter. Browser WebSocket clients cannot set
// request headers, so the query form carries the token for them.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return tok
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
