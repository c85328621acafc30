package market

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lagrangedao/go-compute-market/internal/ledger"
)

const (
	pingInterval = 15 * time.Second
	pongWait     = 2 * pingInterval
	writeWait    = 10 * time.Second
	clientBuffer = 64
)

var upgrade = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans ledger events out to websocket subscribers. A subscriber that
// cannot keep up is disconnected rather than slowing the ledger down.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*WsClient
	closed  bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*WsClient)}
}

func (h *Hub) OnEvent(e ledger.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		logs.GetLogger().Errorf("encoding ledger event %s: %v", e.Type, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.message <- wsMessage{data: data, msgType: websocket.TextMessage}:
		default:
			logs.GetLogger().Warnf("event subscriber %s is too slow, disconnecting", client.id)
			go h.remove(client)
		}
	}
}

func (h *Hub) ServeWs(c *gin.Context) {
	conn, err := upgrade.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logs.GetLogger().Errorf("upgrading event subscriber: %v", err)
		return
	}

	client := NewWsClient(conn)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		client.Close()
		return
	}
	h.clients[client.id] = client
	h.mu.Unlock()
	logs.GetLogger().Infof("event subscriber %s connected from %s", client.id, c.ClientIP())

	go client.writeMessage()
	client.readMessage()
	h.remove(client)
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*WsClient)
	h.closed = true
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}

func (h *Hub) remove(client *WsClient) {
	h.mu.Lock()
	delete(h.clients, client.id)
	h.mu.Unlock()
	client.Close()
}

type WsClient struct {
	id        string
	client    *websocket.Conn
	message   chan wsMessage
	stopCh    chan struct{}
	closeOnce sync.Once
}

type wsMessage struct {
	data    []byte
	msgType int
}

func NewWsClient(client *websocket.Conn) *WsClient {
	return &WsClient{
		id:      uuid.NewString(),
		client:  client,
		message: make(chan wsMessage, clientBuffer),
		stopCh:  make(chan struct{}),
	}
}

func (ws *WsClient) Close() {
	ws.closeOnce.Do(func() {
		close(ws.stopCh)
		ws.client.Close()
	})
}

func (ws *WsClient) writeMessage() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case msg := <-ws.message:
			if err := ws.client.WriteMessage(msg.msgType, msg.data); err != nil {
				ws.Close()
				return
			}
		case <-ticker.C:
			if err := ws.client.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				ws.Close()
				return
			}
		case <-ws.stopCh:
			return
		}
	}
}

// readMessage blocks until the subscriber goes away. Pongs and anything
// else it sends only extend the read deadline.
func (ws *WsClient) readMessage() {
	ws.client.SetReadDeadline(time.Now().Add(pongWait))
	ws.client.SetPongHandler(func(string) error {
		return ws.client.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.client.ReadMessage(); err != nil {
			return
		}
		ws.client.SetReadDeadline(time.Now().Add(pongWait))
	}
}
