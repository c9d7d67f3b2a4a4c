package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rzzdr/credit-risk-pipeline/pkg/models"
	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/errors"
	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/logger"
)

// Message types
const (
	TypeSubscribe    = "subscribe"
	TypeUnsubscribe  = "unsubscribe"
	TypePing         = "ping"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypePong         = "pong"
	TypeSnapshot     = "risk_snapshot"
	TypeError        = "error"
)

// SnapshotSource refreshes a portfolio snapshot. The refreshed snapshot is
// expected to come back to the hub through PublishSnapshot.
type SnapshotSource interface {
	Snapshot(ctx context.Context, portfolioID string) (models.RiskSnapshot, error)
}

// Message is sent to clients
type Message struct {
	Type        string      `json:"type"`
	PortfolioID string      `json:"portfolioId,omitempty"`
	Data        interface{} `json:"data,omitempty"`
	Error       string      `json:"error,omitempty"`
	ID          string      `json:"id,omitempty"`
}

// Request is sent by clients
type Request struct {
	Type       string   `json:"type"`
	Portfolios []string `json:"portfolios"`
	ID         string   `json:"id,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
	refreshTimeout = 10 * time.Second
)

type outbound struct {
	portfolioID string // empty when targeted at a single client
	client      *Client
	data        []byte
}

type subscription struct {
	client     *Client
	portfolios []string
	add        bool
	requestID  string
}

// Hub fans risk snapshots out to the clients subscribed to each portfolio.
// All client and subscription state is owned by the Run goroutine.
type Hub struct {
	source        SnapshotSource
	clients       map[*Client]struct{}
	subscriptions map[string]map[*Client]struct{} // portfolio -> clients
	register      chan *Client
	unregister    chan *Client
	subscribe     chan subscription
	outbound      chan outbound
	done          chan struct{}
	connected     atomic.Int64
	log           *logger.Logger
}

// Client is a middleman between the websocket connection and the hub
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string
}

// NewHub creates a hub. source may be nil, in which case subscribing does not trigger a refresh.
func NewHub(source SnapshotSource) *Hub {
	return &Hub{
		source:        source,
		clients:       make(map[*Client]struct{}),
		subscriptions: make(map[string]map[*Client]struct{}),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		subscribe:     make(chan subscription),
		outbound:      make(chan outbound, 256),
		done:          make(chan struct{}),
		log:           logger.GetLogger("websocket.hub"),
	}
}

// SetSource sets the snapshot source; must be called before Run
func (h *Hub) SetSource(source SnapshotSource) {
	h.source = source
}

// Run owns the hub state until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("Starting WebSocket hub")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			h.log.Info("WebSocket hub shutting down")
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.connected.Add(1)
			h.log.Debugf("Client %s registered", client.id)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.log.Debugf("Client %s unregistered", client.id)
			}

		case sub := <-h.subscribe:
			h.applySubscription(sub)

		case msg := <-h.outbound:
			if msg.client != nil {
				h.deliver(msg.client, msg.data)
				continue
			}
			for client := range h.subscriptions[msg.portfolioID] {
				h.deliver(client, msg.data)
			}
		}
	}
}

// PublishSnapshot queues a snapshot for every subscriber of its portfolio
func (h *Hub) PublishSnapshot(ctx context.Context, snapshot models.RiskSnapshot) error {
	data, err := json.Marshal(Message{Type: TypeSnapshot, PortfolioID: snapshot.PortfolioID, Data: snapshot})
	if err != nil {
		return errors.Internal("marshal snapshot message", err)
	}

	select {
	case h.outbound <- outbound{portfolioID: snapshot.PortfolioID, data: data}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return errors.Unavailable("websocket hub is stopped")
	default:
		return errors.Unavailable("websocket hub backlog is full")
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	return int(h.connected.Load())
}

// HandleWebSocket upgrades the connection and starts the client pumps
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		id:   uuid.NewString(),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *Hub) applySubscription(sub subscription) {
	if _, ok := h.clients[sub.client]; !ok {
		return
	}

	for _, id := range sub.portfolios {
		if sub.add {
			if h.subscriptions[id] == nil {
				h.subscriptions[id] = make(map[*Client]struct{})
			}
			h.subscriptions[id][sub.client] = struct{}{}
			continue
		}
		if clients, ok := h.subscriptions[id]; ok {
			delete(clients, sub.client)
			if len(clients) == 0 {
				delete(h.subscriptions, id)
			}
		}
	}

	reply := TypeUnsubscribed
	if sub.add {
		reply = TypeSubscribed
	}
	if data, err := json.Marshal(Message{Type: reply, Data: sub.portfolios, ID: sub.requestID}); err == nil {
		h.deliver(sub.client, data)
	}
}

// deliver drops clients that cannot keep up
func (h *Hub) deliver(client *Client, data []byte) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	select {
	case client.send <- data:
	default:
		h.log.Warnf("Dropping slow client %s", client.id)
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	for id, clients := range h.subscriptions {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.subscriptions, id)
		}
	}
	delete(h.clients, client)
	close(client.send)
	h.connected.Add(-1)
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Errorf("WebSocket error: %v", err)
			}
			return
		}
		c.handleRequest(data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleRequest(data []byte) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply(Message{Type: TypeError, Error: "invalid message format"})
		return
	}

	switch req.Type {
	case TypeSubscribe, TypeUnsubscribe:
		if len(req.Portfolios) == 0 {
			c.reply(Message{Type: TypeError, Error: "no portfolios given", ID: req.ID})
			return
		}
		add := req.Type == TypeSubscribe
		select {
		case c.hub.subscribe <- subscription{client: c, portfolios: req.Portfolios, add: add, requestID: req.ID}:
		case <-c.hub.done:
			return
		}
		if add {
			c.refresh(req.Portfolios, req.ID)
		}
	case TypePing:
		c.reply(Message{Type: TypePong, ID: req.ID})
	default:
		c.reply(Message{Type: TypeError, Error: "unknown message type", ID: req.ID})
	}
}

// refresh asks the source for current snapshots so a new subscriber does not wait for the next cycle
func (c *Client) refresh(portfolios []string, requestID string) {
	if c.hub.source == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	for _, id := range portfolios {
		if _, err := c.hub.source.Snapshot(ctx, id); err != nil {
			c.reply(Message{Type: TypeError, PortfolioID: id, Error: err.Error(), ID: requestID})
		}
	}
}

func (c *Client) reply(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.log.Errorf("Failed to marshal message: %v", err)
		return
	}
	select {
	case c.hub.outbound <- outbound{client: c, data: data}:
	case <-c.hub.done:
	}
}
