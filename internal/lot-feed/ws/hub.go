package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/bidwin/auction-core/pkg/contracts/events"
)

const writeWait = 5 * time.Second

// client serializa as escritas: gorilla/websocket não aceita writers concorrentes
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Hub gerencia conexões WebSocket e assinaturas por lote
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger
	mu       sync.RWMutex
	// lotID -> conexões inscritas
	subs map[string]map[*client]struct{}

	OnConnect    func() // métricas
	OnDisconnect func()
	OnSent       func()
}

// NewHub cria o Hub com política customizada de origem (CORS)
func NewHub(log *zap.Logger, allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		log:      log,
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão; cada cliente pode assinar vários lotes
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	if h.OnConnect != nil {
		h.OnConnect()
	}
	c := &client{conn: conn}

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			if msg.LotID == "" {
				continue
			}
			h.mu.Lock()
			if _, ok := h.subs[msg.LotID]; !ok {
				h.subs[msg.LotID] = make(map[*client]struct{})
			}
			h.subs[msg.LotID][c] = struct{}{}
			h.mu.Unlock()
			_ = c.write([]byte(`{"type":"subscribed","lotId":` + quote(msg.LotID) + `}`))
		case "unsubscribe":
			h.unsubscribe(msg.LotID, c)
		case "ping":
			_ = c.write([]byte(`{"type":"pong"}`))
		}
	}

	// remove a conexão de todas as assinaturas ao desconectar
	h.mu.Lock()
	for id, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, id)
		}
	}
	h.mu.Unlock()
	if h.OnDisconnect != nil {
		h.OnDisconnect()
	}
}

func (h *Hub) unsubscribe(lotID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.subs[lotID]; ok {
		delete(m, c)
		if len(m) == 0 {
			delete(h.subs, lotID)
		}
	}
}

// Subscribers retorna quantas conexões acompanham o lote
func (h *Hub) Subscribers(lotID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[lotID])
}

// Broadcast envia a atualização para os clientes inscritos no lote
func (h *Hub) Broadcast(update events.LotUpdate) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.subs[update.LotID]))
	for c := range h.subs[update.LotID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	b, err := json.Marshal(update)
	if err != nil {
		h.log.Warn("ws marshal failed", zap.Error(err))
		return
	}
	for _, c := range targets {
		if err := c.write(b); err != nil {
			h.log.Debug("ws write failed", zap.Error(err))
			continue
		}
		if h.OnSent != nil {
			h.OnSent()
		}
	}
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
