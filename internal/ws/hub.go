// Package ws implements the realtime notifier: an in-memory registry of
// WebSocket subscribers keyed by attempt id. Delivery is best-effort and
// at-most-once; clients catch up through a full state read on resume.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/convinceme/convince-server-go/internal/model"
)

const (
	writeTimeout   = 10 * time.Second
	readTimeout    = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 1024
	sendBufferSize = 32
)

// AuthorizeFunc checks that the convincer may subscribe to the attempt.
type AuthorizeFunc func(ctx context.Context, convincerID, attemptID string) error

type clientMessage struct {
	Type      string `json:"type"`
	AttemptID string `json:"attemptId"`
}

type attemptUpdatedEvent struct {
	Type            string `json:"type"`
	AttemptID       string `json:"attemptId"`
	ConvincingScore int    `json:"convincing_score"`
	Status          string `json:"status"`
}

type aiResponseCreatedEvent struct {
	Type            string `json:"type"`
	AttemptID       string `json:"attemptId"`
	AIResponseID    string `json:"aiResponseId"`
	AIResponse      string `json:"aiResponse"`
	ConvincingScore int    `json:"convincingScore"`
}

type subscribedEvent struct {
	Type      string `json:"type"`
	AttemptID string `json:"attemptId"`
}

type conn struct {
	id          string
	convincerID string
	ws          *websocket.Conn
	send        chan []byte
	hub         *Hub

	// guarded by hub.mu
	attempts map[string]bool
	closed   bool
}

// Hub owns the attempt id -> subscriber set registry. Entries are added on
// subscribe and pruned when the connection closes or the attempt reaches a
// terminal status, never lazily.
//
// All registry mutation and all sends to conn.send happen under mu, so a
// connection's send channel is never written after remove closes it.
type Hub struct {
	authorize AuthorizeFunc
	upgrader  websocket.Upgrader

	mu          sync.Mutex
	subscribers map[string]map[*conn]bool
}

func NewHub(authorize AuthorizeFunc) *Hub {
	return &Hub{
		authorize: authorize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subscribers: make(map[string]map[*conn]bool),
	}
}

// HandleConnection upgrades the request and serves the connection until it
// closes. The caller has already authenticated the convincer.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request, convincerID string) error {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &conn{
		id:          uuid.NewString(),
		convincerID: convincerID,
		ws:          wsConn,
		send:        make(chan []byte, sendBufferSize),
		hub:         h,
		attempts:    make(map[string]bool),
	}

	log.Info().
		Str("connectionId", c.id).
		Str("convincerId", convincerID).
		Msg("websocket connection established")

	go c.writePump()
	go c.readPump(context.WithoutCancel(r.Context()))

	return nil
}

func (h *Hub) subscribe(c *conn, attemptID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.closed {
		return
	}
	if h.subscribers[attemptID] == nil {
		h.subscribers[attemptID] = make(map[*conn]bool)
	}
	h.subscribers[attemptID][c] = true
	c.attempts[attemptID] = true

	log.Info().
		Str("connectionId", c.id).
		Str("attemptId", attemptID).
		Int("subscriberCount", len(h.subscribers[attemptID])).
		Msg("attempt subscribed")
}

// remove drops the connection from every attempt set it joined and closes
// its send channel. Safe to call more than once.
func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)

	for attemptID := range c.attempts {
		if conns, ok := h.subscribers[attemptID]; ok {
			delete(conns, c)
			if len(conns) == 0 {
				delete(h.subscribers, attemptID)
			}
		}
	}
	c.attempts = make(map[string]bool)

	log.Info().
		Str("connectionId", c.id).
		Msg("websocket connection removed")
}

// AttemptUpdated broadcasts a score/status change.
func (h *Hub) AttemptUpdated(attemptID string, score int, status model.AttemptStatus) {
	h.broadcast(attemptID, attemptUpdatedEvent{
		Type:            "attempt_updated",
		AttemptID:       attemptID,
		ConvincingScore: score,
		Status:          string(status),
	})
}

// AIResponseCreated broadcasts a newly recorded AI response.
func (h *Hub) AIResponseCreated(resp *model.AIResponse) {
	h.broadcast(resp.AttemptID, aiResponseCreatedEvent{
		Type:            "ai_response_created",
		AttemptID:       resp.AttemptID,
		AIResponseID:    resp.ID,
		AIResponse:      resp.Body,
		ConvincingScore: resp.ConvincingScoreSnapshot,
	})
}

// AttemptClosed drops every subscription for a terminated attempt. The
// connections themselves stay open; they may be watching other attempts.
func (h *Hub) AttemptClosed(attemptID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.subscribers[attemptID]
	delete(h.subscribers, attemptID)
	for c := range conns {
		delete(c.attempts, attemptID)
	}

	if len(conns) > 0 {
		log.Info().
			Str("attemptId", attemptID).
			Int("subscriberCount", len(conns)).
			Msg("attempt subscriptions closed")
	}
}

// SubscriberCount is used by tests and stats.
func (h *Hub) SubscriberCount(attemptID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[attemptID])
}

func (h *Hub) broadcast(attemptID string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.subscribers[attemptID] {
		select {
		case c.send <- data:
		default:
			log.Warn().
				Str("connectionId", c.id).
				Str("attemptId", attemptID).
				Msg("send buffer full, dropping event")
		}
	}
}

// sendDirect queues a frame for one connection, dropping it if the buffer
// is full or the connection already closed.
func (h *Hub) sendDirect(c *conn, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *conn) readPump(ctx context.Context) {
	defer func() {
		c.hub.remove(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("connectionId", c.id).Msg("websocket read error")
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Str("connectionId", c.id).Msg("malformed client frame, ignoring")
			continue
		}

		switch msg.Type {
		case "subscribe_attempt":
			if msg.AttemptID == "" {
				continue
			}
			if err := c.hub.authorize(ctx, c.convincerID, msg.AttemptID); err != nil {
				log.Warn().
					Str("connectionId", c.id).
					Str("attemptId", msg.AttemptID).
					Err(err).
					Msg("subscribe rejected")
				continue
			}
			c.hub.subscribe(c, msg.AttemptID)

			ack, _ := json.Marshal(subscribedEvent{Type: "subscribed", AttemptID: msg.AttemptID})
			c.hub.sendDirect(c, ack)
		default:
			log.Debug().
				Str("connectionId", c.id).
				Str("type", msg.Type).
				Msg("unknown client frame type")
		}
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
