package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// origin checks are done by the CORS wrapper in front of the router
		return true
	},
}

// Hub fans messages out to every connection subscribed to a topic.
// Topics look like "class#<class id>" or "operator#<operator id>".
type Hub struct {
	topics map[string]map[*Connection]bool

	register   chan *Connection
	unregister chan *Connection

	broadcast chan *Message

	log *zap.Logger
	mu  sync.RWMutex
}

type Connection struct {
	ws     *websocket.Conn
	topics []string
	send   chan *Message
	hub    *Hub
}

type Message struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Data  any    `json:"data"`
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		log:        logger.Named("ws"),
		topics:     make(map[string]map[*Connection]bool),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *Message, 256),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// close sockets outside the lock so the pumps can unregister
			h.mu.RLock()
			seen := make(map[*Connection]bool)
			for _, conns := range h.topics {
				for c := range conns {
					seen[c] = true
				}
			}
			h.mu.RUnlock()

			for c := range seen {
				_ = c.ws.Close()
			}
			return

		case conn := <-h.register:
			h.mu.Lock()
			for _, topic := range conn.topics {
				if h.topics[topic] == nil {
					h.topics[topic] = make(map[*Connection]bool)
				}
				h.topics[topic][conn] = true
			}
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			h.detach(conn)
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.topics[message.Topic] {
				select {
				case conn.send <- message:
				default:
					// slow consumer: drop it from every topic
					h.detach(conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// detach removes conn from all its topics and closes its send channel once.
// Callers hold h.mu.
func (h *Hub) detach(conn *Connection) {
	attached := false
	for _, topic := range conn.topics {
		conns, ok := h.topics[topic]
		if !ok {
			continue
		}
		if _, exists := conns[conn]; exists {
			attached = true
			delete(conns, conn)
		}
		if len(conns) == 0 {
			delete(h.topics, topic)
		}
	}
	if attached {
		close(conn.send)
	}
}

func (h *Hub) Broadcast(topic string, message *Message) {
	message.Topic = topic
	select {
	case h.broadcast <- message:
	default:
		h.log.Warn("broadcast channel is full, dropping message",
			zap.String("type", message.Type), zap.String("topic", topic))
	}
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, topics []string) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	conn := &Connection{
		ws:     ws,
		topics: topics,
		send:   make(chan *Message, 256),
		hub:    h,
	}

	h.register <- conn

	go conn.writePump()
	go conn.readPump()
}

const (
	writeWait = 10 * time.Second

	pongWait = 60 * time.Second

	pingPeriod = (pongWait * 9) / 10
)

func (c *Connection) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.ws.Close()
	}()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Info("connection closed unexpectedly", zap.Error(err))
			}
			return
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.ws.WriteJSON(message); err != nil {
				c.hub.log.Info("write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
