package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"iazeconnect/internal/services"
	"iazeconnect/internal/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// a autenticação é feita pelo token, não pela origem
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

var ErrHubClosed = errors.New("hub de websocket encerrado")

// Client is one staff websocket connection
type Client struct {
	ID       string
	TenantID string
	UserID   string
	Conn     *websocket.Conn
	Send     chan []byte
	Hub      *Hub
}

// Hub guarda as conexões de atendentes por tenant e entrega os eventos ao
// vivo. It implements services.Notifier.
type Hub struct {
	tenants    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	mutex      sync.RWMutex
}

// Message types sent by the hub itself
const (
	MessageTypeConnection = "connection"
	MessageTypePing       = "ping"
	MessageTypePong       = "pong"
)

type WSMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewHub() *Hub {
	return &Hub{
		tenants:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run processa entradas e saídas de clientes até Stop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			if h.tenants[client.TenantID] == nil {
				h.tenants[client.TenantID] = make(map[*Client]bool)
			}
			h.tenants[client.TenantID][client] = true
			h.mutex.Unlock()

			zap.L().Info("[WEBSOCKET] Cliente conectado",
				zap.String("client_id", client.ID), zap.String("tenant_id", client.TenantID))
			h.sendTo(client, WSMessage{
				Type:      MessageTypeConnection,
				Data:      map[string]string{"status": "connected"},
				Timestamp: time.Now().UTC(),
			})

		case client := <-h.unregister:
			h.remove(client)

		case <-h.done:
			h.mutex.Lock()
			for _, clients := range h.tenants {
				for client := range clients {
					close(client.Send)
				}
			}
			h.tenants = make(map[string]map[*Client]bool)
			h.mutex.Unlock()
			return
		}
	}
}

// Stop closes every connection and ends Run
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) remove(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	clients, ok := h.tenants[client.TenantID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.tenants, client.TenantID)
	}
	close(client.Send)
	zap.L().Info("[WEBSOCKET] Cliente desconectado",
		zap.String("client_id", client.ID), zap.String("tenant_id", client.TenantID))
}

// Notify broadcasts an event to every staff connection of the tenant. Slow
// clients are dropped instead of blocking the caller.
func (h *Hub) Notify(tenantID string, event interface{}) error {
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	var slow []*Client
	h.mutex.RLock()
	for client := range h.tenants[tenantID] {
		select {
		case client.Send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mutex.RUnlock()

	for _, client := range slow {
		zap.L().Warn("[WEBSOCKET] Cliente lento, desconectando", zap.String("client_id", client.ID))
		h.drop(client)
	}
	return nil
}

func (h *Hub) sendTo(client *Client, message WSMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		return
	}
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if !h.tenants[client.TenantID][client] {
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}

func (h *Hub) drop(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns how many connections a tenant has open
func (h *Hub) ClientCount(tenantID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.tenants[tenantID])
}

// HandleWebSocket autentica pelo ?token= (ou header Authorization) e registra
// a conexão no tenant do token.
func (h *Hub) HandleWebSocket(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token, _ = utils.BearerToken(c.GetHeader("Authorization"))
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token de autorização necessário"})
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			zap.L().Warn("[WEBSOCKET] Token inválido", zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token inválido"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			zap.L().Warn("[WEBSOCKET] Falha no upgrade", zap.Error(err))
			return
		}

		client := &Client{
			ID:       generateClientID(),
			TenantID: claims.TenantID,
			UserID:   claims.UserID,
			Conn:     conn,
			Send:     make(chan []byte, sendBuffer),
			Hub:      h,
		}

		select {
		case h.register <- client:
		case <-h.done:
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

// Read messages from WebSocket
func (c *Client) readPump() {
	defer func() {
		c.Hub.drop(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				zap.L().Debug("[WEBSOCKET] Conexão encerrada", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}

		var wsMsg WSMessage
		if err := json.Unmarshal(message, &wsMsg); err != nil {
			continue
		}
		if wsMsg.Type == MessageTypePing {
			c.Hub.sendTo(c, WSMessage{Type: MessageTypePong, Timestamp: time.Now().UTC()})
		}
	}
}

// Write messages to WebSocket
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Generate unique client ID
func generateClientID() string {
	return time.Now().Format("20060102150405") + "-" + utils.GenerateRandomString(8)
}
