package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go-relayer/internal/utils"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Should check Origin in production environment
		return true
	},
}

// Connection one websocket subscriber, keyed by the wallet whose
// transactions it wants to follow
type Connection struct {
	ID       string          `json:"id"`
	Wallet   string          `json:"wallet"`
	Conn     *websocket.Conn `json:"-"`
	Send     chan []byte     `json:"-"`
	LastPing time.Time       `json:"last_ping"`
}

// PushMessage envelope for every frame sent to subscribers
type PushMessage struct {
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id"`
	Wallet    string      `json:"wallet"`
	Data      interface{} `json:"data"`
}

// WebSocketPushService fans transaction status updates out to websocket
// subscribers. Clients subscribe per wallet; every status transition for
// that wallet's queued transactions is pushed as it happens.
type WebSocketPushService struct {
	connections map[string]*Connection   // key: connectionID
	walletConns map[string][]*Connection // key: wallet address
	hub         chan PushMessage
	register    chan *Connection
	unregister  chan *Connection
	mutex       sync.RWMutex
}

// NewWebSocketPushService creates the push service and starts its hub loop
func NewWebSocketPushService() *WebSocketPushService {
	service := &WebSocketPushService{
		connections: make(map[string]*Connection),
		walletConns: make(map[string][]*Connection),
		hub:         make(chan PushMessage, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
	}

	go service.run()
	return service
}

func (s *WebSocketPushService) run() {
	for {
		select {
		case conn := <-s.register:
			s.handleRegister(conn)

		case conn := <-s.unregister:
			s.handleUnregister(conn)

		case message := <-s.hub:
			s.handleBroadcast(message)
		}
	}
}

func (s *WebSocketPushService) handleRegister(conn *Connection) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.connections[conn.ID] = conn
	s.walletConns[conn.Wallet] = append(s.walletConns[conn.Wallet], conn)

	logrus.WithFields(logrus.Fields{
		"wallet":  conn.Wallet,
		"conn_id": conn.ID,
	}).Info("WebSocket connection registered")

	if conn.Send != nil {
		s.sendToConnection(conn, PushMessage{
			Type:      "connection_established",
			Timestamp: time.Now().Format(time.RFC3339),
			MessageID: generateMessageID(),
			Wallet:    conn.Wallet,
			Data: map[string]interface{}{
				"wallet":        conn.Wallet,
				"connection_id": conn.ID,
			},
		})
	}
}

func (s *WebSocketPushService) handleUnregister(conn *Connection) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.connections[conn.ID]; !exists {
		return
	}
	delete(s.connections, conn.ID)

	if conns, exists := s.walletConns[conn.Wallet]; exists {
		for i, c := range conns {
			if c.ID == conn.ID {
				s.walletConns[conn.Wallet] = append(conns[:i], conns[i+1:]...)
				break
			}
		}
		if len(s.walletConns[conn.Wallet]) == 0 {
			delete(s.walletConns, conn.Wallet)
		}
	}

	if conn.Send != nil {
		close(conn.Send)
	}
	if conn.Conn != nil {
		conn.Conn.Close()
	}

	logrus.WithFields(logrus.Fields{
		"wallet":  conn.Wallet,
		"conn_id": conn.ID,
	}).Info("WebSocket connection unregistered")
}

func (s *WebSocketPushService) handleBroadcast(message PushMessage) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	conns, exists := s.walletConns[message.Wallet]
	if !exists {
		return
	}

	data, err := json.Marshal(message)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal push message")
		return
	}

	for _, conn := range conns {
		select {
		case conn.Send <- data:
		default:
			// channel full or closed, the read pump will unregister it
			logrus.WithField("conn_id", conn.ID).Warn("Dropped push message, send buffer full")
		}
	}
}

func (s *WebSocketPushService) sendToConnection(conn *Connection, message PushMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal push message")
		return
	}

	select {
	case conn.Send <- data:
	default:
		logrus.WithField("conn_id", conn.ID).Warn("Failed to send to connection")
	}
}

// PushTransactionUpdate queues a transaction status update for every
// subscriber of the given wallet. Non-blocking; slow consumers drop frames.
func (s *WebSocketPushService) PushTransactionUpdate(queueID, wallet string, payload interface{}) {
	s.hub <- PushMessage{
		Type:      "transaction_update",
		Timestamp: time.Now().Format(time.RFC3339),
		MessageID: generateMessageID(),
		Wallet:    utils.NormalizeAddress(wallet),
		Data:      payload,
	}
}

// HandleWebSocket upgrades the request and runs the connection pumps
func (s *WebSocketPushService) HandleWebSocket(w http.ResponseWriter, r *http.Request, wallet string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Error("WebSocket upgrade failed")
		return
	}

	connection := &Connection{
		ID:       generateConnectionID(),
		Wallet:   utils.NormalizeAddress(wallet),
		Conn:     conn,
		Send:     make(chan []byte, 256),
		LastPing: time.Now(),
	}

	s.register <- connection

	go s.handleConnectionWrite(connection)
	go s.handleConnectionRead(connection)
}

func (s *WebSocketPushService) handleConnectionWrite(conn *Connection) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithError(err).WithField("conn_id", conn.ID).Debug("WebSocket write failed")
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *WebSocketPushService) handleConnectionRead(conn *Connection) {
	defer func() {
		s.unregister <- conn
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.LastPing = time.Now()
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).WithField("conn_id", conn.ID).Debug("WebSocket read error")
			}
			break
		}
	}
}

// GetActiveConnections returns the number of live subscriber connections
func (s *WebSocketPushService) GetActiveConnections() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.connections)
}

// GetWalletConnections returns the number of connections following a wallet
func (s *WebSocketPushService) GetWalletConnections(wallet string) int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.walletConns[utils.NormalizeAddress(wallet)])
}

func generateConnectionID() string {
	return fmt.Sprintf("conn_%d", time.Now().UnixNano())
}

func generateMessageID() string {
	return fmt.Sprintf("msg_%d", time.Now().UnixNano())
}
