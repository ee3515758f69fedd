// internal/handlers/ws.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mfigueroa/quizparty/internal/auth"
	"github.com/mfigueroa/quizparty/internal/middleware"
	"github.com/mfigueroa/quizparty/internal/registry"
	"github.com/mfigueroa/quizparty/internal/router"
)

const (
	writeTimeout = 3 * time.Second
	pingInterval = 30 * time.Second
)

// WSHandler upgrades the HTTP connection to WebSocket, registers it with
// the connection registry, and runs the read loop until the client goes
// away. A single /ws endpoint carries all commands; which match the
// connection belongs to is established by the commands themselves, not
// the URL.
func WSHandler(logger *logrus.Logger, reg *registry.Registry, rt *router.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Resolve the guest identity before the upgrade; cookies cannot
		// be set once the connection is hijacked.
		userID, err := auth.EnsureGuest(w, r)
		if err != nil {
			logger.Warnf("guest authentication failed: %v", err)
			http.Error(w, "Authentication failed", http.StatusInternalServerError)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"quiz"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("WebSocket accept error from %s: %v", r.RemoteAddr, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != "quiz" {
			logger.Warnf("Client %s connected with invalid subprotocol: %s", r.RemoteAddr, c.Subprotocol())
			c.Close(websocket.StatusPolicyViolation, "Client must use the 'quiz' subprotocol.")
			return
		}

		conn := reg.Register()
		defer reg.Remove(conn.ID)
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, conn.ID.String())
		logger.Debugf("guest %s assigned connection %s", userID, conn.ID)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		go writePump(ctx, c, conn, logger)

		readErr := readLoop(ctx, c, conn, rt)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, conn.ID.String(), readErr)
	}
}

// readLoop blocks reading frames from the client and hands each text
// frame to the router. Returns nil on a normal close.
func readLoop(ctx context.Context, c *websocket.Conn, conn *registry.Conn, rt *router.Router) error {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway ||
				errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if msgType != websocket.MessageText {
			continue
		}
		rt.Handle(ctx, conn, data)
	}
}

// writePump drains the connection's outbound queue onto the socket and
// keeps the connection alive with periodic pings. Exits when the queue
// is closed (registry removal) or the context is cancelled.
func writePump(ctx context.Context, c *websocket.Conn, conn *registry.Conn, logger *logrus.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-conn.Out():
			if !ok {
				c.Close(websocket.StatusNormalClosure, "Connection closed by server.")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("write to connection %s failed: %v", conn.ID, err)
				return
			}
		case <-ticker.C:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Ping(wctx)
			cancel()
			if err != nil {
				logger.Debugf("ping to connection %s failed: %v", conn.ID, err)
				return
			}
		}
	}
}
