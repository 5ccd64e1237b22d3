package server

import (
	"chat-core/infrastructure/ws"
	"context"
	"net/http"
	"time"
)

const deliveredTimeout = 10 * time.Second

// serveWS authenticates the handshake before upgrading: browsers can't set headers
// on a WebSocket request, so the token travels as a query parameter.
func (h *handler) serveWS(w http.ResponseWriter, r *http.Request) {
	userID, err := h.Authenticator.Authenticate(r.URL.Query().Get("token"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	conn, err := ws.Upgrade(h.Upgrader, w, r, userID, h.ConnectionBufferSize, h.Log)
	if err != nil {
		// The upgrader already wrote the HTTP error.
		h.Log.Debug("WebSocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	h.Hub.OnConnect(conn)
	go conn.WritePump()
	go conn.ReadPump(func() { h.Hub.OnDisconnect(conn) })

	// Anything queued while the user was away is now delivered.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), deliveredTimeout)
		defer cancel()
		if _, err := h.Reads.MarkDeliveredForUser(ctx, userID); err != nil {
			h.Log.Warn("Marking messages delivered", "user_id", userID, "error", err)
		}
	}()
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Health.Snapshot())
}
