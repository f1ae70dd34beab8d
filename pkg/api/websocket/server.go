// Package websocket streams contract and payment events to connected clients.
package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/0xmhha/contractforge/internal/constants"
	"github.com/0xmhha/contractforge/pkg/metrics"
)

// Server handles WebSocket connections
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewServer creates a WebSocket server and starts its hub. checkOrigin may be
// nil to accept every origin.
func NewServer(maxClients int, checkOrigin func(r *http.Request) bool, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	hub := NewHub(maxClients, m, logger)
	go hub.Run()

	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  constants.DefaultWSReadBufferSize,
			WriteBufferSize: constants.DefaultWSWriteBufferSize,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

// ServeHTTP handles WebSocket upgrade requests
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	client := NewClient(s.hub, conn, s.logger)
	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()

	s.logger.Debug("new websocket connection",
		zap.String("remote_addr", r.RemoteAddr))
}

// Hub returns the underlying hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Publish forwards to the hub
func (s *Server) Publish(eventType string, data interface{}) {
	s.hub.Publish(eventType, data)
}

// Stop stops the WebSocket server
func (s *Server) Stop() {
	s.hub.Stop()
}
