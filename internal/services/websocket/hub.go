// Package websocket implements the live-view hub: browser clients
// subscribe to a camera over /ws and receive base64 encoded annotated
// frames pushed by the app's live publisher.
package websocket

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/elax46/frigate/internal/logger"
)

// Client is one connected live viewer, subscribed to a single camera.
type Client struct {
	ID     string
	Camera string
	conn   *websocket.Conn
}

type broadcastMessage struct {
	camera  string
	payload []byte
}

// HubService fans live frames out to connected clients. All client map
// mutation happens on the Run goroutine.
type HubService struct {
	clients    map[*Client]bool
	broadcast  chan broadcastMessage
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	logger     *logger.Logger
}

// NewHubService creates a hub; Run must be started before clients connect.
func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan broadcastMessage),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run processes registration and broadcast traffic for the lifetime of the
// process.
func (h *HubService) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			h.logger.Info("Live client %s connected for camera %s. Total: %d", client.ID, client.Camera, h.ClientCount())

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.conn.Close()
			}
			h.mutex.Unlock()
			h.logger.Info("Live client %s disconnected. Total: %d", client.ID, h.ClientCount())

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				if client.Camera != message.camera {
					continue
				}
				if err := client.conn.WriteMessage(websocket.TextMessage, message.payload); err != nil {
					h.logger.Error("Error sending frame to client %s: %v", client.ID, err)
					delete(h.clients, client)
					client.conn.Close()
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Register adds a connection subscribed to the given camera.
func (h *HubService) Register(conn *websocket.Conn, camera string) *Client {
	client := &Client{ID: uuid.NewString(), Camera: camera, conn: conn}
	h.register <- client
	return client
}

// Unregister removes and closes a client.
func (h *HubService) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast sends a payload to every client subscribed to the camera.
func (h *HubService) Broadcast(camera string, payload []byte) {
	h.broadcast <- broadcastMessage{camera: camera, payload: payload}
}

// ClientCount returns the number of connected clients.
func (h *HubService) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// SubscriberCount returns the number of clients subscribed to a camera.
func (h *HubService) SubscriberCount(camera string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	count := 0
	for client := range h.clients {
		if client.Camera == camera {
			count++
		}
	}
	return count
}
