package handler

import (
	"net/http"
	"trafficmonitor/internal/logger"

	"github.com/gorilla/websocket"
)

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ClientRegistry tracks connected notification clients.
type ClientRegistry interface {
	Register(client *websocket.Conn)
	Unregister(client *websocket.Conn)
}

// NotificationsWebsocketHandler registers dashboard clients to receive
// incident notifications. Messages from the client are read and discarded
// until it disconnects.
func NotificationsWebsocketHandler(clients ClientRegistry, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		clients.Register(connection)
		defer clients.Unregister(connection)

		logger.Info("Notification client connected from %s", r.RemoteAddr)

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info("Notification client disconnected normally")
				} else {
					logger.Warning("Notification client disconnected with error: %v", err)
				}
				return
			}
		}
	}
}
