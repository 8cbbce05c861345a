package pubsub

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/gwrxuk/FastTrading/engine/types"
)

// Message is one fan-out event on a named channel
type Message struct {
	Channel string
	Payload string
}

// Handler receives messages for a subscription. Delivery is at most
// once; slow handlers may have messages dropped.
type Handler func(msg Message)

// Subscription is an active channel subscription
type Subscription interface {
	// Unsubscribe stops delivery. Safe to call more than once.
	Unsubscribe() error
}

// Bus is the fan-out transport between the engine and sessions
type Bus interface {
	Publish(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channel string, h Handler) (Subscription, error)
	Close() error
}

// Channel name helpers. Channels are flat strings so the Redis and
// in-memory transports treat them identically.

func PricesChannel(symbol string) string { return "prices:" + symbol }
func TradesChannel(symbol string) string { return "trades:" + symbol }
func BookChannel(symbol string) string   { return "book:" + symbol }

// OrdersChannel is per principal so order updates stay private
func OrdersChannel(principal uuid.UUID) string { return "orders:" + principal.String() }

// PricePayload encodes a price tick as <last>|<bid>|<ask>|<iso_ts>.
// Missing bid or ask is encoded as an empty field.
func PricePayload(last, bid, ask math.LegacyDec, ts time.Time) string {
	return fmt.Sprintf("%s|%s|%s|%s", decField(last), decField(bid), decField(ask), ts.UTC().Format(time.RFC3339))
}

// TradePayload encodes an execution as <trade_id>|<price>|<qty>|<side>
func TradePayload(t *types.Trade) string {
	return fmt.Sprintf("%d|%s|%s|%s", t.TradeID, t.Price, t.Quantity, t.Side)
}

// OrderPayload encodes an order update as <order_id>|<status>|<filled>|<avg_price>
func OrderPayload(o *types.Order) string {
	return fmt.Sprintf("%s|%s|%s|%s", o.ID, o.Status, o.FilledQty, decField(o.AvgFillPrice))
}

// BookPayload encodes a sequence-tagged depth snapshot as
// <seq>|<bid levels>|<ask levels>, levels as price:qty pairs joined
// with commas, best first.
func BookPayload(seq uint64, bids, asks []types.DepthLevel) string {
	return fmt.Sprintf("%d|%s|%s", seq, encodeLevels(bids), encodeLevels(asks))
}

func encodeLevels(levels []types.DepthLevel) string {
	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = l.Price.String() + ":" + l.Quantity.String()
	}
	return strings.Join(parts, ",")
}

func decField(d math.LegacyDec) string {
	if d.IsNil() {
		return ""
	}
	return d.String()
}

// SplitPayload splits a pipe-delimited payload into its fields
func SplitPayload(payload string) []string {
	return strings.Split(payload, "|")
}
