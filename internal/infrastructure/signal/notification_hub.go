// Package signal pushes session notifications to connected UIs over WebSocket.
package signal

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"screencast/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Config configures the notification hub.
type Config struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration
	// SendBuffer is the per-client queue length. A client whose queue is
	// full is disconnected.
	SendBuffer int
	// AllowedOrigins restricts browser origins. Empty allows any.
	AllowedOrigins []string
}

func DefaultConfig() Config {
	return Config{
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		SendBuffer:   32,
	}
}

type client struct {
	conn *websocket.Conn
	send chan domain.Notification
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// NotificationHub implements ports.Notifier by broadcasting to every
// connected WebSocket client.
type NotificationHub struct {
	cfg      Config
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}

	logger *zap.SugaredLogger
}

func NewNotificationHub(cfg Config, logger *zap.SugaredLogger) *NotificationHub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	defaults := DefaultConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaults.PongTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaults.SendBuffer
	}

	h := &NotificationHub{
		cfg:     cfg,
		clients: make(map[*client]struct{}),
		logger:  logger,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:     h.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return h
}

func (h *NotificationHub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin || allowed == u.Host {
			return true
		}
	}
	return false
}

// Notify queues n for every client without blocking.
func (h *NotificationHub) Notify(n domain.Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- n:
		default:
			h.logger.Warnw("notification client too slow, disconnecting",
				"remote", c.conn.RemoteAddr().String(),
			)
			c.close()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *NotificationHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and streams notifications until the
// client disconnects.
func (h *NotificationHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := &client{
		conn: conn,
		send: make(chan domain.Notification, h.cfg.SendBuffer),
		done: make(chan struct{}),
	}
	h.register(c)
	defer h.unregister(c)

	h.logger.Infow("notification client connected", "remote", conn.RemoteAddr().String())

	conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
		return nil
	})

	// The feed is one-way; reads only drive pong and close handling.
	go func() {
		defer c.close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Infow("notification client read error", "error", err)
				}
				return
			}
		}
	}()

	pingTicker := time.NewTicker(h.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case n := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteJSON(n); err != nil {
				h.logger.Infow("error sending notification", "error", err)
				return
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Infow("error sending ping", "error", err)
				return
			}

		case <-c.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.cfg.WriteTimeout))
			h.logger.Infow("notification client disconnected", "remote", conn.RemoteAddr().String())
			return
		}
	}
}

// Close disconnects every client.
func (h *NotificationHub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.close()
	}
}

func (h *NotificationHub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *NotificationHub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}
