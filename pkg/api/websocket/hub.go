package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/0xmhha/contractforge/internal/constants"
	"github.com/0xmhha/contractforge/pkg/metrics"
)

// Hub maintains the set of active clients and broadcasts events to them
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Event

	// done signals the Run goroutine to exit
	done     chan struct{}
	stopOnce sync.Once

	maxClients int
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewHub creates a new Hub. m may be nil.
func NewHub(maxClients int, m *metrics.Metrics, logger *zap.Logger) *Hub {
	if maxClients <= 0 {
		maxClients = constants.DefaultWSMaxClients
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Event, 256),
		done:       make(chan struct{}),
		maxClients: maxClients,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// Run runs the hub event loop. It exits when Stop() is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= h.maxClients {
				h.mu.Unlock()
				h.logger.Warn("max clients reached, rejecting connection",
					zap.Int("max_clients", h.maxClients))
				close(client.send)
				continue
			}
			h.clients[client] = true
			h.mu.Unlock()
			h.clientsChanged("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.clientsChanged("client unregistered")

		case event := <-h.broadcast:
			h.broadcastEvent(event)
		}
	}
}

func (h *Hub) clientsChanged(msg string) {
	n := h.ClientCount()
	if h.metrics != nil {
		h.metrics.UpdateWebSocketClients(n)
	}
	h.logger.Debug(msg, zap.Int("total_clients", n))
}

// broadcastEvent sends event to every subscribed client. A client whose
// buffer is full is dropped.
func (h *Hub) broadcastEvent(event *Event) {
	eventData, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal event", zap.Error(err))
		return
	}
	messageBytes, err := json.Marshal(Message{Type: "event", Payload: eventData})
	if err != nil {
		h.logger.Error("failed to marshal message", zap.Error(err))
		return
	}

	h.mu.Lock()
	sentCount, dropped := 0, 0
	for client := range h.clients {
		if !client.IsSubscribed(event.Type) {
			continue
		}
		select {
		case client.send <- messageBytes:
			sentCount++
		default:
			close(client.send)
			delete(h.clients, client)
			dropped++
		}
	}
	h.mu.Unlock()

	if dropped > 0 {
		h.logger.Warn("client buffer full, closed connections", zap.Int("dropped", dropped))
		h.clientsChanged("slow clients removed")
	}
	h.logger.Debug("event broadcasted",
		zap.String("id", event.ID),
		zap.String("type", string(event.Type)),
		zap.Int("recipients", sentCount))
}

// Publish queues an event for broadcast. Unknown event types and events
// arriving while the queue is full are dropped with a warning.
func (h *Hub) Publish(eventType string, data interface{}) {
	t := SubscriptionType(eventType)
	if !t.Valid() {
		h.logger.Warn("dropping event of unknown type", zap.String("type", eventType))
		return
	}

	event := &Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: h.now().UTC(),
		Data:      data,
	}

	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("broadcast channel full, dropping event", zap.String("type", eventType))
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop stops the hub and closes all client connections. It is safe to call
// more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
		h.mu.Unlock()

		if h.metrics != nil {
			h.metrics.UpdateWebSocketClients(0)
		}
		h.logger.Info("hub stopped")
	})
}
