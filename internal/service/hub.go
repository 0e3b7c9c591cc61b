package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	hubBacklog    = 256
	clientBacklog = 64
)

// Client is one websocket subscriber.
type Client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub fans snapshots out to every connected client. A client whose buffer
// is full is dropped rather than slowing the simulation down.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	quit       chan struct{}
	logger     *log.Entry
}

// NewHub creates a hub; call Run to start it.
func NewHub(logger *log.Entry) *Hub {
	return &Hub{
		clients:    map[*Client]bool{},
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, hubBacklog),
		quit:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.quit)
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
			h.logger.WithField("client", c.id).Debug("ws client connected")
		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
				h.logger.WithField("client", c.id).Debug("ws client left")
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					delete(h.clients, c)
					close(c.send)
					h.logger.WithField("client", c.id).Warn("ws client too slow, dropped")
				}
			}
		}
	}
}

// Broadcast queues msg for every client without blocking.
func (h *Hub) Broadcast(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws broadcast backlog full, frame dropped")
	}
}

// Attach registers conn and starts its pumps. first, if non-nil, is sent
// before any broadcast frame.
func (h *Hub) Attach(conn *websocket.Conn, first []byte) {
	c := &Client{id: uuid.New(), conn: conn, send: make(chan []byte, clientBacklog), hub: h}
	if first != nil {
		c.send <- first
	}
	select {
	case h.register <- c:
	case <-h.quit:
		conn.Close()
		return
	}
	go c.writer()
	go c.reader()
}

// reader drains control frames and detects the peer going away.
func (c *Client) reader() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writer() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.hub.logger.WithError(err).WithField("client", c.id).Debug("ws write failed")
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
