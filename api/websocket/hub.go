// Package websocket fans engine events out to browser and bot
// sessions. The hub bridges bus channels to connected clients:
// the first subscriber to a channel opens one bus subscription,
// the last one out closes it.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"cosmossdk.io/log"
	"github.com/google/uuid"

	"github.com/gwrxuk/FastTrading/api/middleware"
	"github.com/gwrxuk/FastTrading/metrics"
	"github.com/gwrxuk/FastTrading/pubsub"
)

const (
	heartbeatInterval = 30 * time.Second

	// DefaultMaxClients caps concurrent sessions
	DefaultMaxClients = 10000
)

// Frame is one server-to-client message
type Frame struct {
	Type      string      `json:"type"`
	Channel   string      `json:"channel,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type subscriptionRequest struct {
	client  *Client
	channel string
}

// Hub owns the client set and the per-channel bus bridge
type Hub struct {
	bus     pubsub.Bus
	auth    middleware.Authenticator
	symbols map[string]bool
	logger  log.Logger

	clients  map[*Client]bool
	channels map[string]map[*Client]bool
	busSubs  map[string]pubsub.Subscription

	register    chan *Client
	unregister  chan *Client
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest
	deliveries  chan pubsub.Message
	done        chan struct{}

	maxClients int

	mu sync.RWMutex
}

func NewHub(bus pubsub.Bus, auth middleware.Authenticator, symbols []string, logger log.Logger) *Hub {
	listed := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		listed[s] = true
	}
	return &Hub{
		bus:         bus,
		auth:        auth,
		symbols:     listed,
		logger:      logger.With("component", "ws_hub"),
		clients:     make(map[*Client]bool),
		channels:    make(map[string]map[*Client]bool),
		busSubs:     make(map[string]pubsub.Subscription),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan *subscriptionRequest, 256),
		unsubscribe: make(chan *subscriptionRequest, 256),
		deliveries:  make(chan pubsub.Message, 1024),
		done:        make(chan struct{}),
		maxClients:  DefaultMaxClients,
	}
}

// SetMaxClients overrides the session ceiling. Call before Run.
func (h *Hub) SetMaxClients(n int) {
	if n > 0 {
		h.maxClients = n
	}
}

// Run drives registration, channel bridging, and the heartbeat. It
// returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(ctx, client)
		case req := <-h.subscribe:
			h.handleSubscribe(ctx, req)
		case req := <-h.unsubscribe:
			h.handleUnsubscribe(ctx, req)
		case msg := <-h.deliveries:
			h.fanOut(msg)
		case <-heartbeat.C:
			h.broadcastHeartbeat()
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	close(h.done)
	for channel, sub := range h.busSubs {
		_ = sub.Unsubscribe()
		delete(h.busSubs, channel)
	}
	for client := range h.clients {
		client.closeSend()
		delete(h.clients, client)
	}
	h.channels = make(map[string]map[*Client]bool)
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) >= h.maxClients {
		h.logger.Warn("session rejected, client ceiling reached", "max_clients", h.maxClients)
		client.conn.Close()
		return
	}
	h.clients[client] = true
	metrics.GetCollector().RecordWSConnection(1)
	client.sendFrame(&Frame{
		Type:      "connected",
		Data:      map[string]interface{}{"id": client.id.String()},
		Timestamp: time.Now().UnixMilli(),
	})
}

func (h *Hub) unregisterClient(ctx context.Context, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	client.closeSend()
	metrics.GetCollector().RecordWSConnection(-1)
	for channel, clients := range h.channels {
		if clients[client] {
			delete(clients, client)
			h.releaseChannelLocked(channel)
		}
	}
}

func (h *Hub) handleSubscribe(ctx context.Context, req *subscriptionRequest) {
	h.mu.Lock()
	if !h.clients[req.client] {
		h.mu.Unlock()
		return
	}
	clients, ok := h.channels[req.channel]
	if !ok {
		clients = make(map[*Client]bool)
		h.channels[req.channel] = clients
	}
	clients[req.client] = true
	needBridge := h.busSubs[req.channel] == nil
	h.mu.Unlock()

	if needBridge {
		channel := req.channel
		sub, err := h.bus.Subscribe(ctx, channel, func(msg pubsub.Message) {
			select {
			case h.deliveries <- msg:
			case <-h.done:
			default:
				// Fan-out queue is saturated; dropping beats stalling the bus
			}
		})
		if err != nil {
			h.logger.Error("bus subscribe failed", "channel", channel, "err", err)
			req.client.sendFrame(&Frame{
				Type:      "error",
				Message:   "subscription unavailable: " + channel,
				Timestamp: time.Now().UnixMilli(),
			})
			h.mu.Lock()
			delete(h.channels[channel], req.client)
			h.releaseChannelLocked(channel)
			h.mu.Unlock()
			return
		}
		h.mu.Lock()
		h.busSubs[channel] = sub
		h.mu.Unlock()
	}

	req.client.sendFrame(&Frame{
		Type:      "subscribed",
		Channel:   req.channel,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (h *Hub) handleUnsubscribe(ctx context.Context, req *subscriptionRequest) {
	h.mu.Lock()
	if !h.clients[req.client] {
		// The session was unregistered before its unsubscribe was
		// processed; its channels are already released.
		h.mu.Unlock()
		return
	}
	if clients, ok := h.channels[req.channel]; ok {
		delete(clients, req.client)
		h.releaseChannelLocked(req.channel)
	}
	h.mu.Unlock()

	req.client.sendFrame(&Frame{
		Type:      "unsubscribed",
		Channel:   req.channel,
		Timestamp: time.Now().UnixMilli(),
	})
}

// releaseChannelLocked drops the bus bridge once a channel has no
// subscribers left. Caller holds h.mu.
func (h *Hub) releaseChannelLocked(channel string) {
	if len(h.channels[channel]) > 0 {
		return
	}
	delete(h.channels, channel)
	if sub, ok := h.busSubs[channel]; ok {
		_ = sub.Unsubscribe()
		delete(h.busSubs, channel)
	}
}

func (h *Hub) fanOut(msg pubsub.Message) {
	h.mu.RLock()
	clients, ok := h.channels[msg.Channel]
	if !ok || len(clients) == 0 {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(clients))
	for client := range clients {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	frame := &Frame{
		Type:      "data",
		Channel:   msg.Channel,
		Data:      decodePayload(msg.Channel, msg.Payload),
		Timestamp: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	metrics.GetCollector().RecordWSMessage(msg.Channel)
	for _, client := range targets {
		client.enqueue(data)
	}
}

func (h *Hub) broadcastHeartbeat() {
	frame := &Frame{
		Type:      "heartbeat",
		Timestamp: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		targets = append(targets, client)
	}
	h.mu.RUnlock()
	for _, client := range targets {
		client.enqueue(data)
	}
}

// decodePayload expands a pipe-delimited bus payload into the JSON
// object sessions receive. Unknown channels pass the payload through
// verbatim.
func decodePayload(channel, payload string) interface{} {
	fields := pubsub.SplitPayload(payload)
	switch {
	case strings.HasPrefix(channel, "prices:"):
		if len(fields) != 4 {
			return payload
		}
		return map[string]interface{}{
			"last": fields[0],
			"bid":  emptyToNil(fields[1]),
			"ask":  emptyToNil(fields[2]),
			"time": fields[3],
		}
	case strings.HasPrefix(channel, "trades:"):
		if len(fields) != 4 {
			return payload
		}
		tradeID, _ := strconv.ParseInt(fields[0], 10, 64)
		return map[string]interface{}{
			"trade_id": tradeID,
			"price":    fields[1],
			"quantity": fields[2],
			"side":     fields[3],
		}
	case strings.HasPrefix(channel, "book:"):
		if len(fields) != 3 {
			return payload
		}
		seq, _ := strconv.ParseUint(fields[0], 10, 64)
		return map[string]interface{}{
			"sequence": seq,
			"bids":     decodeLevels(fields[1]),
			"asks":     decodeLevels(fields[2]),
		}
	case strings.HasPrefix(channel, "orders:"):
		if len(fields) != 4 {
			return payload
		}
		return map[string]interface{}{
			"order_id":       fields[0],
			"status":         fields[1],
			"filled_qty":     fields[2],
			"avg_fill_price": emptyToNil(fields[3]),
		}
	}
	return payload
}

type levelView struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

func decodeLevels(encoded string) []levelView {
	if encoded == "" {
		return []levelView{}
	}
	parts := strings.Split(encoded, ",")
	out := make([]levelView, 0, len(parts))
	for _, part := range parts {
		price, qty, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		out = append(out, levelView{Price: price, Quantity: qty})
	}
	return out
}

func emptyToNil(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// ClientCount reports connected sessions
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ChannelCount reports channels with at least one subscriber
func (h *Hub) ChannelCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels)
}

// ServeWS upgrades an HTTP request into a session. A bearer token in
// the Authorization header or token query parameter authenticates the
// session; absent or empty means a public-only session.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	var principal uuid.UUID
	authenticated := false
	if token := middleware.BearerToken(r); token != "" {
		p, err := h.auth.Authenticate(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		principal = p
		authenticated = true
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := newClient(h, conn, principal, authenticated)
	h.register <- client

	go client.writePump()
	go client.readPump()
}
