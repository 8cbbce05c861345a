package websocket

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"cosmossdk.io/log"

	"github.com/gwrxuk/FastTrading/pubsub"
)

type staticAuth struct {
	principal uuid.UUID
}

func (a staticAuth) Authenticate(string) (uuid.UUID, error) {
	return a.principal, nil
}

func newTestClient(t *testing.T, authenticated bool) *Client {
	t.Helper()
	principal := uuid.New()
	hub := NewHub(pubsub.NewMemoryBus(), staticAuth{principal: principal}, []string{"ETH-USDT", "BTC-USDT"}, log.NewNopLogger())
	return &Client{
		hub:           hub,
		send:          make(chan []byte, sendBufferSize),
		principal:     principal,
		authenticated: authenticated,
		subscriptions: make(map[string]bool),
	}
}

func TestResolveChannelPublic(t *testing.T) {
	c := newTestClient(t, false)

	for _, channel := range []string{"prices:ETH-USDT", "trades:BTC-USDT", "book:ETH-USDT"} {
		resolved, errMsg := c.resolveChannel(channel)
		if errMsg != "" {
			t.Fatalf("resolveChannel(%q) error %q", channel, errMsg)
		}
		if resolved != channel {
			t.Errorf("resolveChannel(%q) = %q", channel, resolved)
		}
	}
}

func TestResolveChannelUnknownSymbol(t *testing.T) {
	c := newTestClient(t, false)

	if _, errMsg := c.resolveChannel("prices:DOGE-USDT"); errMsg == "" {
		t.Error("expected error for unlisted symbol")
	}
	if _, errMsg := c.resolveChannel("nonsense"); errMsg == "" {
		t.Error("expected error for malformed channel")
	}
}

func TestResolveChannelOrdersAlias(t *testing.T) {
	c := newTestClient(t, true)

	resolved, errMsg := c.resolveChannel("orders")
	if errMsg != "" {
		t.Fatalf("resolveChannel error %q", errMsg)
	}
	want := pubsub.OrdersChannel(c.principal)
	if resolved != want {
		t.Errorf("resolved = %q, want %q", resolved, want)
	}
}

func TestResolveChannelOrdersRequiresAuth(t *testing.T) {
	c := newTestClient(t, false)

	if _, errMsg := c.resolveChannel("orders"); errMsg == "" {
		t.Error("expected error for anonymous orders subscription")
	}
	if _, errMsg := c.resolveChannel("orders:" + uuid.NewString()); errMsg == "" {
		t.Error("expected error for another principal's channel")
	}
}

func TestResolveChannelOrdersOwnPrincipal(t *testing.T) {
	c := newTestClient(t, true)

	channel := "orders:" + c.principal.String()
	resolved, errMsg := c.resolveChannel(channel)
	if errMsg != "" {
		t.Fatalf("resolveChannel error %q", errMsg)
	}
	if resolved != channel {
		t.Errorf("resolved = %q, want %q", resolved, channel)
	}
}

func TestDecodePricePayload(t *testing.T) {
	data := decodePayload("prices:ETH-USDT", "2000.5|2000|2001|2025-06-15T12:00:00Z")
	fields, ok := data.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map, got %T", data)
	}
	if fields["last"] != "2000.5" || fields["bid"] != "2000" || fields["ask"] != "2001" {
		t.Errorf("unexpected fields %v", fields)
	}
}

func TestDecodePricePayloadEmptyQuote(t *testing.T) {
	data := decodePayload("prices:ETH-USDT", "2000.5|||2025-06-15T12:00:00Z")
	fields := data.(map[string]interface{})
	if fields["bid"] != nil || fields["ask"] != nil {
		t.Errorf("empty quote fields should decode to nil, got %v", fields)
	}
}

func TestDecodeTradePayload(t *testing.T) {
	data := decodePayload("trades:ETH-USDT", "42|2000|1.5|buy")
	fields := data.(map[string]interface{})
	if fields["trade_id"] != int64(42) {
		t.Errorf("trade_id = %v", fields["trade_id"])
	}
	if fields["side"] != "buy" {
		t.Errorf("side = %v", fields["side"])
	}
}

func TestDecodeBookPayload(t *testing.T) {
	data := decodePayload("book:ETH-USDT", "7|2000:1.5,1999:2|2001:0.5")
	fields := data.(map[string]interface{})
	if fields["sequence"] != uint64(7) {
		t.Errorf("sequence = %v", fields["sequence"])
	}
	bids := fields["bids"].([]levelView)
	if len(bids) != 2 || bids[0].Price != "2000" || bids[0].Quantity != "1.5" {
		t.Errorf("bids = %v", bids)
	}
	asks := fields["asks"].([]levelView)
	if len(asks) != 1 || asks[0].Price != "2001" {
		t.Errorf("asks = %v", asks)
	}
}

func TestDecodeUnknownChannelPassthrough(t *testing.T) {
	if got := decodePayload("misc", "raw|payload"); got != "raw|payload" {
		t.Errorf("passthrough = %v", got)
	}
}

// A session may queue an unsubscribe and then disconnect; the hub can
// process the unregister first. The late unsubscribe must be a no-op,
// not a send on the released session.
func TestUnsubscribeAfterUnregister(t *testing.T) {
	ctx := context.Background()
	bus := pubsub.NewMemoryBus()
	defer bus.Close()
	hub := NewHub(bus, staticAuth{}, []string{"ETH-USDT"}, log.NewNopLogger())

	client := newClient(hub, nil, uuid.Nil, false)
	hub.registerClient(client)
	hub.handleSubscribe(ctx, &subscriptionRequest{client: client, channel: "prices:ETH-USDT"})
	hub.unregisterClient(ctx, client)

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("unsubscribe after unregister panicked: %v", r)
		}
	}()
	hub.handleUnsubscribe(ctx, &subscriptionRequest{client: client, channel: "prices:ETH-USDT"})

	if n := hub.ChannelCount(); n != 0 {
		t.Errorf("channels = %d, want 0", n)
	}
}

func TestSlowSessionDisconnected(t *testing.T) {
	c := newTestClient(t, false)

	for i := 0; i < sendBufferSize; i++ {
		c.enqueue([]byte("frame"))
	}
	c.enqueue([]byte("overflow"))

	received := 0
	for range c.send {
		received++
	}
	if received != sendBufferSize {
		t.Errorf("buffered frames = %d, want %d", received, sendBufferSize)
	}

	// The session is closed; later frames are swallowed.
	c.enqueue([]byte("late"))
	c.sendFrame(&Frame{Type: "heartbeat"})
}
