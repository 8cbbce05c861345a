package pubsub

import (
	"context"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/gwrxuk/FastTrading/engine/types"
)

func TestMemoryBusFanOut(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ctx := context.Background()
	got1 := make(chan Message, 1)
	got2 := make(chan Message, 1)

	if _, err := bus.Subscribe(ctx, "trades:BTC-USDT", func(m Message) { got1 <- m }); err != nil {
		t.Fatal(err)
	}
	if _, err := bus.Subscribe(ctx, "trades:BTC-USDT", func(m Message) { got2 <- m }); err != nil {
		t.Fatal(err)
	}

	if err := bus.Publish(ctx, "trades:BTC-USDT", "1|50000|0.5|buy"); err != nil {
		t.Fatal(err)
	}

	for i, ch := range []chan Message{got1, got2} {
		select {
		case m := <-ch:
			if m.Payload != "1|50000|0.5|buy" {
				t.Errorf("subscriber %d: unexpected payload %q", i, m.Payload)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timed out", i)
		}
	}
}

func TestMemoryBusChannelIsolation(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ctx := context.Background()
	got := make(chan Message, 1)
	if _, err := bus.Subscribe(ctx, "prices:ETH-USDT", func(m Message) { got <- m }); err != nil {
		t.Fatal(err)
	}

	bus.Publish(ctx, "prices:BTC-USDT", "should not arrive")
	bus.Publish(ctx, "prices:ETH-USDT", "3000|2999|3001|2026-01-01T00:00:00Z")

	select {
	case m := <-got:
		if m.Channel != "prices:ETH-USDT" {
			t.Errorf("got message from wrong channel %s", m.Channel)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ctx := context.Background()
	got := make(chan Message, 4)
	sub, err := bus.Subscribe(ctx, "depth:BTC-USDT", func(m Message) { got <- m })
	if err != nil {
		t.Fatal(err)
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatal(err)
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Errorf("second unsubscribe should be a no-op, got %v", err)
	}

	bus.Publish(ctx, "depth:BTC-USDT", "after")
	select {
	case m := <-got:
		t.Errorf("unexpected delivery after unsubscribe: %q", m.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPayloadFormats(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := PricePayload(math.LegacyNewDec(50000), math.LegacyNewDec(49999), math.LegacyNewDec(50001), ts)
	fields := SplitPayload(p)
	if len(fields) != 4 {
		t.Fatalf("expected 4 fields, got %d", len(fields))
	}
	if fields[3] != "2026-03-01T12:00:00Z" {
		t.Errorf("unexpected timestamp field %q", fields[3])
	}

	// one-sided book: empty bid field
	p = PricePayload(math.LegacyNewDec(50000), math.LegacyDec{}, math.LegacyNewDec(50001), ts)
	if fields := SplitPayload(p); fields[1] != "" {
		t.Errorf("expected empty bid field, got %q", fields[1])
	}

	trade := &types.Trade{
		TradeID:  7,
		Price:    math.LegacyNewDec(50000),
		Quantity: math.LegacyMustNewDecFromStr("0.5"),
		Side:     types.SideBuy,
	}
	if fields := SplitPayload(TradePayload(trade)); fields[0] != "7" || fields[3] != "buy" {
		t.Errorf("unexpected trade payload %v", fields)
	}

	o := types.NewOrder(uuid.New(), "", "BTC-USDT", types.SideSell, types.OrderTypeLimit,
		types.TimeInForceGTC, math.LegacyNewDec(50000), math.LegacyDec{}, math.LegacyNewDec(1))
	if fields := SplitPayload(OrderPayload(o)); fields[1] != "pending" || fields[3] != "" {
		t.Errorf("unexpected order payload %v", fields)
	}
}
