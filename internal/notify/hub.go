package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/cvrisk-engine/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Hub broadcasts evaluation events to connected websocket subscribers.
// Publish never blocks the evaluation pipeline: events go through a buffered
// channel and are dropped (with a log line) when the buffer is full.
type Hub struct {
	logger *logrus.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}

	events chan domain.Event
	done   chan struct{}
	once   sync.Once
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a new event hub. bufferSize bounds how many events can be
// pending broadcast before Publish starts dropping.
func NewHub(logger *logrus.Logger, bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	h := &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
		events:  make(chan domain.Event, bufferSize),
		done:    make(chan struct{}),
	}
	go h.run()
	return h
}

// Publish implements domain.Notifier.
func (h *Hub) Publish(event domain.Event) {
	select {
	case h.events <- event:
	case <-h.done:
	default:
		h.logger.WithField("type", event.Type).Warn("Event buffer full, dropping event")
	}
}

// Close stops the broadcast loop and disconnects all subscribers.
func (h *Hub) Close() {
	h.once.Do(func() { close(h.done) })
}

func (h *Hub) run() {
	for {
		select {
		case event := <-h.events:
			h.broadcast(event)
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) broadcast(event domain.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// Slow subscriber: skip, never stall the broadcast loop.
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades the request to a websocket subscription.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 16)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.WithField("remote", conn.RemoteAddr().String()).Debug("Websocket subscriber connected")

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

// readPump drains control frames and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
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

// LogNotifier is the fallback notifier when the websocket hub is disabled:
// events become structured log lines.
type LogNotifier struct {
	logger *logrus.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Publish implements domain.Notifier.
func (n *LogNotifier) Publish(event domain.Event) {
	n.logger.WithFields(logrus.Fields{
		"type":          event.Type,
		"evaluation_id": event.EvaluationID,
		"algorithm":     event.Algorithm.String(),
		"category":      event.Category.String(),
	}).Info("Evaluation event")
}
