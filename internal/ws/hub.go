package ws

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"parley/internal/config"
	"parley/internal/logging"
)

// Hub owns every live notification connection and fans events out to them by
// user, by topic, or globally. Delivery is best-effort: clients that miss
// events reconcile by reading the persisted conversation state.
type Hub struct {
	cfg    config.WebSocket
	logger *slog.Logger

	upgrader     websocket.Upgrader
	pingInterval time.Duration
	writeTimeout time.Duration

	mu      sync.RWMutex
	running bool
	conns   map[*connection]struct{}
	byUser  map[string]map[*connection]struct{}
	byTopic map[string]map[*connection]struct{}
	topics  map[*connection]map[string]struct{}
	wg      sync.WaitGroup
}

// NewHub constructs a hub from configuration.
func NewHub(cfg config.WebSocket, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	pingInterval := 30 * time.Second
	if cfg.PingIntervalSecs > 0 {
		pingInterval = time.Duration(cfg.PingIntervalSecs) * time.Second
	}
	writeTimeout := 10 * time.Second
	if cfg.WriteTimeoutSecs > 0 {
		writeTimeout = time.Duration(cfg.WriteTimeoutSecs) * time.Second
	}
	return &Hub{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The browser client connects cross-origin from the app shell.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
		conns:        make(map[*connection]struct{}),
		byUser:       make(map[string]map[*connection]struct{}),
		byTopic:      make(map[string]map[*connection]struct{}),
		topics:       make(map[*connection]map[string]struct{}),
	}
}

// Start marks the hub accepting. Connections arriving before Start or after
// Stop are refused.
func (h *Hub) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return errors.New("hub already running")
	}
	h.running = true
	return nil
}

// Stop closes every live connection and waits for their loops to exit.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	conns := make([]*connection, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		h.drop(conn)
	}
	h.wg.Wait()
}

// ServeHTTP upgrades an incoming request into a notification connection. The
// credential token is read from the "token" query parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "ws_upgrade_failed"),
		)
		return
	}

	userID, err := VerifyToken(h.cfg.AuthSecret, r.URL.Query().Get("token"))
	if err != nil {
		h.logger.Warn("websocket auth rejected",
			logging.Error(err),
			logging.String("remote_addr", r.RemoteAddr),
			logging.String(logging.FieldEventType, "ws_auth_rejected"),
		)
		deadline := time.Now().Add(h.writeTimeout)
		_ = socket.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseUnauthorized, "invalid credential"),
			deadline,
		)
		_ = socket.Close()
		return
	}

	perMinute := h.cfg.RateLimitPerMinute
	if perMinute <= 0 {
		perMinute = 60
	}
	burst := h.cfg.RateLimitBurst
	if burst <= 0 {
		burst = 10
	}

	conn := &connection{
		hub:     h,
		socket:  socket,
		userID:  userID,
		send:    make(chan Frame, sendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst),
		logger:  h.logger.With(logging.String(logging.FieldUserID, userID)),
	}

	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		_ = socket.Close()
		return
	}
	h.conns[conn] = struct{}{}
	if h.byUser[userID] == nil {
		h.byUser[userID] = make(map[*connection]struct{})
	}
	h.byUser[userID][conn] = struct{}{}
	h.topics[conn] = make(map[string]struct{})
	h.wg.Add(2)
	h.mu.Unlock()

	conn.logger.Info("websocket connected",
		logging.String(logging.FieldEventType, "ws_connected"),
	)
	conn.enqueue(NewFrame(EventConnected, map[string]string{"user_id": userID}))

	go func() {
		defer h.wg.Done()
		conn.writeLoop()
	}()
	go func() {
		defer h.wg.Done()
		conn.readLoop()
	}()
}

func (h *Hub) subscribe(conn *connection, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, live := h.conns[conn]; !live {
		return
	}
	if h.byTopic[topic] == nil {
		h.byTopic[topic] = make(map[*connection]struct{})
	}
	h.byTopic[topic][conn] = struct{}{}
	h.topics[conn][topic] = struct{}{}
}

func (h *Hub) unsubscribe(conn *connection, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeTopicLocked(conn, topic)
}

func (h *Hub) removeTopicLocked(conn *connection, topic string) {
	if set, ok := h.byTopic[topic]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(h.byTopic, topic)
		}
	}
	if set, ok := h.topics[conn]; ok {
		delete(set, topic)
	}
}

func (h *Hub) subscribed(conn *connection, topic string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set, ok := h.topics[conn]
	if !ok {
		return false
	}
	_, subscribed := set[topic]
	return subscribed
}

// drop unregisters a connection and closes its socket. Safe to call more
// than once.
func (h *Hub) drop(conn *connection) {
	h.mu.Lock()
	if _, live := h.conns[conn]; !live {
		h.mu.Unlock()
		_ = conn.socket.Close()
		return
	}
	delete(h.conns, conn)
	if set, ok := h.byUser[conn.userID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(h.byUser, conn.userID)
		}
	}
	for topic := range h.topics[conn] {
		h.removeTopicLocked(conn, topic)
	}
	delete(h.topics, conn)
	h.mu.Unlock()

	close(conn.done)
	_ = conn.socket.Close()
	conn.logger.Info("websocket disconnected",
		logging.String(logging.FieldEventType, "ws_disconnected"),
	)
}

// SendToUser fans a frame out to every open connection owned by the user.
func (h *Hub) SendToUser(userID string, frame Frame) {
	h.mu.RLock()
	conns := make([]*connection, 0, len(h.byUser[userID]))
	for conn := range h.byUser[userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.enqueue(frame)
	}
}

// SendToTopic fans a frame out to every connection subscribed to the topic.
func (h *Hub) SendToTopic(topic string, frame Frame) {
	h.mu.RLock()
	conns := make([]*connection, 0, len(h.byTopic[topic]))
	for conn := range h.byTopic[topic] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.enqueue(frame)
	}
}

// Broadcast fans a frame out to every open connection.
func (h *Hub) Broadcast(frame Frame) {
	h.mu.RLock()
	conns := make([]*connection, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.enqueue(frame)
	}
}

// PublishConversationEvent delivers a stage-transition event to the
// conversation's topic subscribers and to the owning user's connections.
func (h *Hub) PublishConversationEvent(conversationID, userID, eventType string, payload any) {
	frame := NewFrame(eventType, payload)
	h.SendToTopic(ConversationTopic(conversationID), frame)
	if userID != "" {
		h.SendToUser(userID, frame)
	}
}

// ConnectionCount reports the number of open connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
