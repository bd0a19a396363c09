package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// wsEvent is one change signal pushed to a websocket subscriber.
type wsEvent struct {
	Scope string `json:"scope"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 512,
	// Loopback-only server; the bearer token already gates the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS streams change signals to a connected local client. The scope
// query parameter selects what to listen for (default "links"). Delivery is
// best effort: a dropped connection just means the client falls back to its
// periodic drain.
func handleWS(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope := r.URL.Query().Get("scope")
		if scope == "" {
			scope = ScopeLinks
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			deps.Logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		events, cancel := deps.Notifier.Subscribe(scope)
		defer cancel()

		// Reader exists only to observe the close.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(wsPingPeriod)
		defer ping.Stop()

		for {
			select {
			case <-done:
				return
			case <-r.Context().Done():
				return
			case s := <-events:
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(wsEvent{Scope: s}); err != nil {
					return
				}
			case <-ping.C:
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}
