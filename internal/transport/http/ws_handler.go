package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/undercity-games/presence-server/internal/auth"
	"github.com/undercity-games/presence-server/internal/core"
	"github.com/undercity-games/presence-server/internal/log"
	"github.com/undercity-games/presence-server/internal/proto"
	"github.com/undercity-games/presence-server/internal/store"
)

// writeTimeout bounds a single frame write to a client socket.
const writeTimeout = 10 * time.Second

// WSHandler authenticates upgrade requests and bridges accepted sockets
// to the hub: one read loop feeding the dispatcher, one write loop
// draining the connection's send queue.
type WSHandler struct {
	hub      *core.Hub
	verifier *auth.Verifier
	dir      store.PlayerDirectory
	friends  store.FriendGraph
	log      *zerolog.Logger

	queueSize int
}

// NewWSHandler builds the /ws endpoint handler.
func NewWSHandler(hub *core.Hub, verifier *auth.Verifier, dir store.PlayerDirectory, friends store.FriendGraph, queueSize int, logger *zerolog.Logger) *WSHandler {
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &WSHandler{
		hub:       hub,
		verifier:  verifier,
		dir:       dir,
		friends:   friends,
		log:       logger,
		queueSize: queueSize,
	}
}

// Handle runs one connection's lifecycle: upgrade, handshake, frame
// loops, disconnect cleanup.
func (h *WSHandler) Handle(c *gin.Context) {
	ctx := c.Request.Context()

	sock, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("ws accept failed")
		return
	}

	conn, ws, ok := h.handshake(ctx, c.Request, sock)
	if !ok {
		return
	}

	// History rides behind the connected event, before any client frame
	// is served, so the client never sees its own chat ahead of it.
	if err := h.hub.SendHistory(ctx, conn, core.ChannelGlobal, 0); err != nil {
		h.log.Warn().Err(err).Str("user", conn.UserID).Msg("chat history load failed")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- h.readLoop(ctx, sock, conn) }()
	go func() { errCh <- h.writeLoop(ctx, sock, ws) }()

	err = <-errCh
	cancel()
	<-errCh

	h.hub.Disconnect(conn)
	ws.Close(int(websocket.StatusNormalClosure), "closing")

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		default:
			h.log.Debug().Err(err).Str("user", conn.UserID).Msg("ws session ended abnormally")
		}
	}
}

// handshake authenticates the socket and registers the connection. A
// failed step closes the socket with its distinct code and reports
// ok=false; the caller just returns.
func (h *WSHandler) handshake(ctx context.Context, r *stdhttp.Request, sock *websocket.Conn) (*core.Conn, *wsSocket, bool) {
	token := r.URL.Query().Get("token")
	if token == "" {
		_ = sock.Close(websocket.StatusCode(proto.CloseNoCredential), "missing token")
		return nil, nil, false
	}

	userID, _, err := h.verifier.Verify(token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws token rejected")
		_ = sock.Close(websocket.StatusCode(proto.CloseInvalidToken), "invalid token")
		return nil, nil, false
	}

	player, err := h.dir.GetPlayerInfo(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrPlayerNotFound) {
			_ = sock.Close(websocket.StatusCode(proto.ClosePlayerNotFound), "player not found")
		} else {
			h.log.Error().Err(err).Str("user", userID).Msg("player lookup failed")
			_ = sock.Close(websocket.StatusInternalError, "directory unavailable")
		}
		return nil, nil, false
	}

	// Friend snapshot loads before the connect critical section. A
	// failed load degrades to a session without friend notifications.
	friendIDs, err := h.friends.FriendsOf(ctx, userID)
	if err != nil {
		h.log.Warn().Err(err).Str("user", userID).Msg("friend snapshot load failed")
		friendIDs = nil
	}

	ws := newWSSocket(sock, h.queueSize)
	return h.hub.Connect(ws, player, friendIDs), ws, true
}

func (h *WSHandler) readLoop(ctx context.Context, sock *websocket.Conn, conn *core.Conn) error {
	for {
		typ, raw, err := sock.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		h.hub.HandleFrame(ctx, conn, raw)
	}
}

// writeLoop drains the send queue. A nil return means the queue was
// closed and the socket is already down.
func (h *WSHandler) writeLoop(ctx context.Context, sock *websocket.Conn, ws *wsSocket) error {
	for {
		select {
		case payload, ok := <-ws.queue:
			if !ok {
				return nil
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := sock.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
