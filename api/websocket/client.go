package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gwrxuk/FastTrading/pubsub"
)

const (
	// Time allowed to write a frame to the peer
	writeWait = 5 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Size of the send buffer
	sendBufferSize = 256

	// Client messages per second before throttling
	messageRateLimit = 100

	// Channels one session may hold
	maxSubscriptions = 50
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one live session
type Client struct {
	id   uuid.UUID
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	principal     uuid.UUID
	authenticated bool

	subscriptions map[string]bool
	subMu         sync.Mutex

	sendMu     sync.Mutex
	sendClosed bool

	messageCount int
	lastReset    time.Time
}

// clientMessage is one action frame from the peer
type clientMessage struct {
	Action  string `json:"action"`
	Channel string `json:"channel,omitempty"`
}

func newClient(hub *Hub, conn *websocket.Conn, principal uuid.UUID, authenticated bool) *Client {
	return &Client{
		id:            uuid.New(),
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		principal:     principal,
		authenticated: authenticated,
		subscriptions: make(map[string]bool),
		lastReset:     time.Now(),
	}
}

// readPump pumps action frames from the connection into the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("session read error", "err", err)
			}
			break
		}

		if !c.checkRateLimit() {
			c.sendError("Too many messages, slow down")
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.sendError("Malformed frame")
			continue
		}
		c.handleMessage(&msg)
	}
}

// writePump pumps frames from the hub to the connection
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

func (c *Client) handleMessage(msg *clientMessage) {
	switch msg.Action {
	case "subscribe":
		c.handleSubscribe(msg.Channel)
	case "unsubscribe":
		c.handleUnsubscribe(msg.Channel)
	case "ping":
		c.handlePing()
	default:
		c.sendError("Unknown action: " + msg.Action)
	}
}

func (c *Client) handleSubscribe(channel string) {
	resolved, err := c.resolveChannel(channel)
	if err != "" {
		c.sendError(err)
		return
	}

	c.subMu.Lock()
	if len(c.subscriptions) >= maxSubscriptions {
		c.subMu.Unlock()
		c.sendError("Subscription limit reached")
		return
	}
	if c.subscriptions[resolved] {
		c.subMu.Unlock()
		c.sendFrame(&Frame{
			Type:      "subscribed",
			Channel:   resolved,
			Timestamp: time.Now().UnixMilli(),
		})
		return
	}
	c.subscriptions[resolved] = true
	c.subMu.Unlock()

	c.hub.subscribe <- &subscriptionRequest{client: c, channel: resolved}
}

func (c *Client) handleUnsubscribe(channel string) {
	resolved, errMsg := c.resolveChannel(channel)
	if errMsg != "" {
		c.sendError(errMsg)
		return
	}

	c.subMu.Lock()
	subscribed := c.subscriptions[resolved]
	delete(c.subscriptions, resolved)
	c.subMu.Unlock()
	if !subscribed {
		c.sendError("Not subscribed to channel: " + resolved)
		return
	}

	c.hub.unsubscribe <- &subscriptionRequest{client: c, channel: resolved}
}

func (c *Client) handlePing() {
	c.sendFrame(&Frame{
		Type:      "pong",
		Data:      map[string]int64{"ts": time.Now().UnixMilli()},
		Timestamp: time.Now().UnixMilli(),
	})
}

// resolveChannel validates a requested channel and maps the private
// "orders" alias onto the session principal's own channel. The second
// return is an error message, empty on success.
func (c *Client) resolveChannel(channel string) (string, string) {
	if channel == "" {
		return "", "Channel is required"
	}
	if channel == "orders" {
		if !c.authenticated {
			return "", "Channel orders requires authentication"
		}
		return pubsub.OrdersChannel(c.principal), ""
	}
	prefix, symbol, ok := strings.Cut(channel, ":")
	if !ok {
		return "", "Unknown channel: " + channel
	}
	switch prefix {
	case "prices", "trades", "book":
		if !c.hub.symbols[symbol] {
			return "", "Unknown symbol: " + symbol
		}
		return channel, ""
	case "orders":
		if !c.authenticated || symbol != c.principal.String() {
			return "", "Channel " + channel + " requires authentication"
		}
		return channel, ""
	}
	return "", "Unknown channel: " + channel
}

func (c *Client) checkRateLimit() bool {
	now := time.Now()
	if now.Sub(c.lastReset) >= time.Second {
		c.messageCount = 0
		c.lastReset = now
	}
	c.messageCount++
	return c.messageCount <= messageRateLimit
}

func (c *Client) sendError(message string) {
	c.sendFrame(&Frame{
		Type:      "error",
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (c *Client) sendFrame(frame *Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	c.enqueue(data)
}

// enqueue queues a frame for the write pump. A session whose buffer
// is saturated has fallen behind and gets disconnected. Closed
// sessions swallow the frame.
func (c *Client) enqueue(data []byte) {
	c.sendMu.Lock()
	if c.sendClosed {
		c.sendMu.Unlock()
		return
	}
	select {
	case c.send <- data:
		c.sendMu.Unlock()
	default:
		c.sendClosed = true
		close(c.send)
		c.sendMu.Unlock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}
}

// closeSend releases the write pump. Safe to call more than once.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.send)
}
