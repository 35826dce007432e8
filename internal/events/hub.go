// Package events доставляет события сценария сканирования клиентам по WebSocket.
package events

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mmeshcher/litterally/internal/model"
	"github.com/mmeshcher/litterally/internal/scanflow"
)

const sendBufferSize = 64

// Message описывает сообщение, отправляемое клиенту.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type eventData struct {
	Snapshot scanflow.Snapshot  `json:"snapshot"`
	Profile  *model.UserProfile `json:"profile,omitempty"`
}

// Hub хранит подключения клиентов, сгруппированные по профилю.
// Клиент, не успевающий читать сообщения, отключается.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]map[*Client]struct{}
	closed  bool
}

// NewHub создаёт пустой хаб.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[string]map[*Client]struct{}),
	}
}

// ServeWS переводит соединение на WebSocket и подписывает его на события профиля.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, profileID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(h, profileID, conn)
	if !h.register(c) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// Publish отправляет сообщение всем клиентам профиля.
func (h *Hub) Publish(profileID, msgType string, data any) {
	payload, err := json.Marshal(Message{Type: msgType, Data: data})
	if err != nil {
		h.logger.Error("marshal event", zap.String("type", msgType), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients[profileID] {
		select {
		case c.send <- payload:
		default:
			h.removeLocked(c)
			h.logger.Warn("client buffer full, disconnecting", zap.String("profile", profileID))
		}
	}
}

// Notifier возвращает получателя событий контроллера для профиля.
func (h *Hub) Notifier(profileID string) scanflow.Notifier {
	return profileNotifier{hub: h, profileID: profileID}
}

// clientCount возвращает число подключённых клиентов профиля.
func (h *Hub) clientCount(profileID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[profileID])
}

// Close отключает всех клиентов и запрещает новые подключения.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for _, set := range h.clients {
		for c := range set {
			h.removeLocked(c)
		}
	}
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	set, ok := h.clients[c.profileID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.profileID] = set
	}
	set[c] = struct{}{}
	h.logger.Debug("websocket client connected", zap.String("profile", c.profileID), zap.Int("clients", len(set)))
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	set, ok := h.clients[c.profileID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.profileID)
	}
	close(c.send)
	h.logger.Debug("websocket client disconnected", zap.String("profile", c.profileID))
}

type profileNotifier struct {
	hub       *Hub
	profileID string
}

func (n profileNotifier) Notify(ev scanflow.Event) {
	n.hub.Publish(n.profileID, string(ev.Type), eventData{Snapshot: ev.Snapshot, Profile: ev.Profile})
}
