package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Debug feed is expected to sit behind a private network.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// TranscriptEvent is one transcript line pushed to feed subscribers.
type TranscriptEvent struct {
	RoomID      string    `json:"room_id"`
	Participant string    `json:"participant"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	Interrupted bool      `json:"interrupted,omitempty"`
}

// Feed broadcasts live transcript events to websocket subscribers, for
// dashboards and debugging.
type Feed struct {
	mu      sync.RWMutex
	clients map[*feedClient]bool

	register   chan *feedClient
	unregister chan *feedClient
	broadcast  chan TranscriptEvent

	logger *zap.Logger
}

// NewFeed creates a transcript feed hub.
func NewFeed(logger *zap.Logger) *Feed {
	return &Feed{
		clients:    make(map[*feedClient]bool),
		register:   make(chan *feedClient),
		unregister: make(chan *feedClient),
		broadcast:  make(chan TranscriptEvent, 64),
		logger:     logger,
	}
}

// Run starts the hub's main loop. It returns when ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			f.mu.Lock()
			for client := range f.clients {
				close(client.send)
				delete(f.clients, client)
			}
			f.mu.Unlock()
			return

		case client := <-f.register:
			f.mu.Lock()
			f.clients[client] = true
			f.mu.Unlock()
			f.logger.Debug("Feed subscriber registered")

		case client := <-f.unregister:
			f.mu.Lock()
			if _, ok := f.clients[client]; ok {
				delete(f.clients, client)
				close(client.send)
			}
			f.mu.Unlock()
			f.logger.Debug("Feed subscriber unregistered")

		case event := <-f.broadcast:
			payload, err := json.Marshal(event)
			if err != nil {
				f.logger.Error("Failed to encode transcript event", zap.Error(err))
				continue
			}
			f.mu.RLock()
			for client := range f.clients {
				select {
				case client.send <- payload:
				default:
					// Slow subscriber, drop the event for it.
				}
			}
			f.mu.RUnlock()
		}
	}
}

// Publish queues a transcript event for all subscribers. Never blocks.
func (f *Feed) Publish(event TranscriptEvent) {
	select {
	case f.broadcast <- event:
	default:
		f.logger.Warn("Transcript feed backlog full, dropping event")
	}
}

// SubscriberCount returns the number of connected subscribers.
func (f *Feed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// ServeWS upgrades an HTTP request to a feed subscription.
func (f *Feed) ServeWS(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		f.logger.Error("Failed to upgrade feed connection", zap.Error(err))
		return err
	}

	client := &feedClient{
		feed: f,
		conn: conn,
		send: make(chan []byte, 32),
	}
	f.register <- client

	go client.writePump()
	go client.readPump()
	return nil
}

// feedClient is a middleman between one websocket connection and the feed.
type feedClient struct {
	feed *Feed
	conn *websocket.Conn
	send chan []byte
}

// readPump drains inbound messages so pongs are processed. Subscribers are
// not expected to send anything.
func (c *feedClient) readPump() {
	defer func() {
		c.feed.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *feedClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
