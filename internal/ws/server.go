package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/solmate-arena/internal/arena"
	"github.com/park285/solmate-arena/internal/obslog"
	"github.com/park285/solmate-arena/pkg/wire"
)

// TokenVerifier checks the identity claim presented at connect time.
type TokenVerifier interface {
	Verify(token string) (identity string, err error)
}

// Server exposes the arena over a websocket endpoint plus a status page.
type Server struct {
	svc      *arena.Service
	verifier TokenVerifier
}

func NewServer(svc *arena.Service, verifier TokenVerifier) *Server {
	return &Server{svc: svc, verifier: verifier}
}

// Handler builds the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// handleWS authenticates, upgrades and runs one connection until it drops.
// Unauthenticated connections are refused before any handler runs.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	identity, err := s.verifier.Verify(bearerToken(r))
	if err != nil {
		obslog.L().Warn("ws_auth_rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.Error(err))
		return
	}

	conn := newConn(identity, sock)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go conn.writeLoop(ctx)

	s.svc.Connect(identity, conn)
	obslog.L().Info("ws_connected", zap.String("identity", identity))

	s.readLoop(ctx, identity, conn, sock)

	conn.close()
	s.svc.Disconnect(identity, conn)
	_ = sock.Close(websocket.StatusNormalClosure, "bye")
	obslog.L().Info("ws_disconnected", zap.String("identity", identity))
}

func (s *Server) readLoop(ctx context.Context, identity string, conn *Conn, sock *websocket.Conn) {
	for {
		var env wire.Envelope
		if err := wsjson.Read(ctx, sock, &env); err != nil {
			return
		}

		handler, ok := handlers[env.Type]
		if !ok {
			conn.Send(wire.EvtError, wire.ErrorEvent{Message: errMessage(errUnknownMessage)})
			continue
		}
		data := env.Data
		if len(data) == 0 {
			data = json.RawMessage("{}")
		}
		if err := handler(ctx, s.svc, identity, data); err != nil {
			obslog.L().Debug("ws_handler_rejected",
				zap.String("identity", identity),
				zap.String("type", env.Type),
				zap.Error(err),
			)
			conn.Send(wire.EvtError, wire.ErrorEvent{Message: errMessage(err)})
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.svc.Status())
}

// bearerToken pulls the identity token from the Authorization header or,
// for browser clients that cannot set headers on websockets, the query
// string.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
