package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Publisher pushes a named event to every subscriber of a game id.
type Publisher interface {
	Publish(ctx context.Context, gameID, event string, payload any) error
}

// Envelope is the unit delivered to subscribers.
type Envelope struct {
	GameID string          `json:"game_id"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
}

// NewEnvelope encodes payload for gameID.
func NewEnvelope(gameID, event string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return &Envelope{GameID: gameID, Event: event, Data: data}, nil
}

// frame is what a websocket client receives.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Frame encodes the envelope as a websocket message.
func (e *Envelope) Frame() ([]byte, error) {
	return json.Marshal(frame{Event: e.Event, Data: e.Data})
}

const clientBuffer = 32

// Client is a websocket subscriber. Writes go through a single pump so the
// connection never sees concurrent writers.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// Send queues a raw message. It reports false when the client is too slow
// and the message was dropped.
func (c *Client) Send(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

func (c *Client) writePump(log *zap.SugaredLogger) {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Debugw("websocket write failed", "error", err)
			for range c.send {
			}
			return
		}
	}
}

// Hub manages broadcasting game events to WebSocket and SSE clients of this
// process. It implements Publisher for single-node deployments.
type Hub struct {
	wsClients  map[string]map[*Client]bool
	sseClients map[string]map[chan *Envelope]bool
	log        *zap.SugaredLogger
	mu         sync.RWMutex
}

// NewHub creates a new broadcast hub.
func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		wsClients:  make(map[string]map[*Client]bool),
		sseClients: make(map[string]map[chan *Envelope]bool),
		log:        log,
	}
}

// RegisterWS adds a WebSocket connection for a game and starts its writer.
func (h *Hub) RegisterWS(gameID string, conn *websocket.Conn) *Client {
	c := &Client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	if h.wsClients[gameID] == nil {
		h.wsClients[gameID] = make(map[*Client]bool)
	}
	h.wsClients[gameID][c] = true
	h.mu.Unlock()

	go c.writePump(h.log)
	return c
}

// UnregisterWS removes a WebSocket client for a game and stops its writer.
func (h *Hub) UnregisterWS(gameID string, c *Client) {
	h.mu.Lock()
	delete(h.wsClients[gameID], c)
	if len(h.wsClients[gameID]) == 0 {
		delete(h.wsClients, gameID)
	}
	h.mu.Unlock()
	c.close()
}

// RegisterSSE adds an SSE channel for a game.
func (h *Hub) RegisterSSE(gameID string, ch chan *Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sseClients[gameID] == nil {
		h.sseClients[gameID] = make(map[chan *Envelope]bool)
	}
	h.sseClients[gameID][ch] = true
}

// UnregisterSSE removes an SSE channel for a game.
func (h *Hub) UnregisterSSE(gameID string, ch chan *Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sseClients[gameID], ch)
	if len(h.sseClients[gameID]) == 0 {
		delete(h.sseClients, gameID)
	}
	close(ch)
}

// Subscribers returns the number of listeners for a game.
func (h *Hub) Subscribers(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.wsClients[gameID]) + len(h.sseClients[gameID])
}

// Publish encodes payload and delivers it locally.
func (h *Hub) Publish(_ context.Context, gameID, event string, payload any) error {
	env, err := NewEnvelope(gameID, event, payload)
	if err != nil {
		return err
	}
	h.Deliver(env)
	return nil
}

// Deliver sends an envelope to all connected WebSocket and SSE clients of its
// game. Slow subscribers miss the message rather than block the publisher.
func (h *Hub) Deliver(env *Envelope) {
	msg, err := env.Frame()
	if err != nil {
		h.log.Errorw("encode frame", "game_id", env.GameID, "event", env.Event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.wsClients[env.GameID] {
		if !c.Send(msg) {
			h.log.Warnw("dropping event for slow websocket client", "game_id", env.GameID, "event", env.Event)
		}
	}
	for ch := range h.sseClients[env.GameID] {
		select {
		case ch <- env:
		default:
			h.log.Warnw("dropping event for slow sse client", "game_id", env.GameID, "event", env.Event)
		}
	}
}
