package handlers

import (
	"net/http"

	gorillaws "github.com/gorilla/websocket"

	"github.com/elax46/frigate/internal/logger"
	"github.com/elax46/frigate/internal/pipeline"
	"github.com/elax46/frigate/internal/services/websocket"
)

var upgrader = gorillaws.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// LiveWebsocketHandler serves GET /ws?camera=: a websocket subscription to
// the camera's live annotated frames, pushed by the hub.
func LiveWebsocketHandler(hub *websocket.HubService, frames *pipeline.FrameStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		camera := r.URL.Query().Get("camera")
		if !frames.HasCamera(camera) {
			cameraNotFound(w, camera)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("Websocket upgrade error: %v", err)
			return
		}

		client := hub.Register(conn, camera)
		defer hub.Unregister(client)

		// drain until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}
}
