package services

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Hub fans out game events to connected websocket clients. It implements the
// Broadcaster contract consumed by the engine; delivery is best-effort and
// slow clients get dropped rather than block a broadcast.
type Hub struct {
	clients     map[*Client]bool
	register    chan *Client
	unregister  chan *Client
	mutex       sync.RWMutex
	gameService *GameService
}

type Client struct {
	hub     *Hub
	id      string
	socket  *websocket.Conn
	send    chan []byte
	channel string
	gameID  uuid.UUID
	userID  uuid.UUID
}

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func NewHub(gameService *GameService) *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		gameService: gameService,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			log.Printf("Client registered: %s for game %s (user %s) - Total clients: %d", client.id, client.gameID, client.userID, len(h.clients))

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Printf("Client unregistered: %s for game %s (user %s) - Total clients: %d", client.id, client.gameID, client.userID, len(h.clients))
			}
			h.mutex.Unlock()
		}
	}
}

// Publish sends a named event to every client on a game channel.
func (h *Hub) Publish(channel, event string, payload interface{}) {
	message := Message{
		Type:    event,
		Payload: payload,
	}

	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling %s event: %v", event, err)
		return
	}

	h.mutex.Lock()
	sent := 0
	for client := range h.clients {
		if client.channel != channel {
			continue
		}
		select {
		case client.send <- data:
			sent++
		default:
			log.Printf("Client %s (user %s) send buffer full, closing connection", client.id, client.userID)
			close(client.send)
			delete(h.clients, client)
		}
	}
	h.mutex.Unlock()

	log.Printf("Broadcast %s to %d clients on %s", event, sent, channel)
}

// ConnectedUsers returns the user ids currently connected to a game.
func (h *Hub) ConnectedUsers(gameID uuid.UUID) []uuid.UUID {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	var users []uuid.UUID
	for client := range h.clients {
		if client.gameID == gameID {
			users = append(users, client.userID)
		}
	}
	return users
}

// RegisterClient attaches a websocket connection to a game channel and starts
// its read/write pumps.
func (h *Hub) RegisterClient(conn *websocket.Conn, gameID, userID uuid.UUID) *Client {
	client := &Client{
		hub:     h,
		id:      uuid.NewString(),
		socket:  conn,
		send:    make(chan []byte, 256),
		channel: "game-" + gameID.String(),
		gameID:  gameID,
		userID:  userID,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()

	return client
}

func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

func (c *Client) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.socket.Close()
	}()

	for {
		_, message, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling message: %v", err)
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	defer func() {
		c.socket.Close()
	}()

	for message := range c.send {
		w, err := c.socket.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}

		w.Write(message)

		if err := w.Close(); err != nil {
			return
		}
	}
	c.socket.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case "ping":
		response := Message{
			Type:    "pong",
			Payload: "pong",
		}
		data, _ := json.Marshal(response)
		c.send <- data

	case "request_game_state":
		c.sendStateSync()

	default:
		log.Printf("Unknown message type: %s from user %s in game %s", msg.Type, c.userID, c.gameID)
	}
}

// sendStateSync pushes the current live-state snapshot to a single client,
// used when a participant connects or reconnects mid-game.
func (c *Client) sendStateSync() {
	snapshot, err := c.hub.gameService.CurrentSnapshot(context.Background(), c.gameID)
	if err != nil {
		log.Printf("Error getting snapshot for client %s: %v", c.id, err)
		return
	}

	message := Message{
		Type:    "game_state_sync",
		Payload: snapshot,
	}

	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling state sync message: %v", err)
		return
	}

	select {
	case c.send <- data:
	default:
		log.Printf("Client %s send buffer full, dropping state sync", c.id)
	}
}
