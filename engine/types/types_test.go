package types

import (
	"testing"

	"cosmossdk.io/math"
	"github.com/google/uuid"
)

func TestOrderFillConservesQuantity(t *testing.T) {
	o := NewOrder(uuid.New(), "", "BTC-USDT", SideBuy, OrderTypeLimit, TimeInForceGTC,
		math.LegacyNewDec(50000), math.LegacyDec{}, math.LegacyNewDec(10))

	o.Fill(math.LegacyNewDec(3), math.LegacyNewDec(49900))
	if o.Status != OrderStatusPartial {
		t.Errorf("expected partial, got %s", o.Status)
	}
	if !o.FilledQty.Add(o.RemainingQty).Equal(o.Quantity) {
		t.Errorf("filled+remaining != quantity: %s + %s != %s", o.FilledQty, o.RemainingQty, o.Quantity)
	}

	o.Fill(math.LegacyNewDec(7), math.LegacyNewDec(50000))
	if o.Status != OrderStatusFilled {
		t.Errorf("expected filled, got %s", o.Status)
	}
	if !o.RemainingQty.IsZero() {
		t.Errorf("expected zero remaining, got %s", o.RemainingQty)
	}
}

func TestOrderAvgFillPrice(t *testing.T) {
	o := NewOrder(uuid.New(), "", "ETH-USDT", SideSell, OrderTypeLimit, TimeInForceGTC,
		math.LegacyNewDec(3000), math.LegacyDec{}, math.LegacyNewDec(4))

	o.Fill(math.LegacyNewDec(1), math.LegacyNewDec(3000))
	o.Fill(math.LegacyNewDec(3), math.LegacyNewDec(3100))

	// (1*3000 + 3*3100) / 4 = 3075
	if !o.AvgFillPrice.Equal(math.LegacyNewDec(3075)) {
		t.Errorf("expected avg 3075, got %s", o.AvgFillPrice)
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []OrderStatus{OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	active := []OrderStatus{OrderStatusPending, OrderStatusOpen, OrderStatusPartial}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestValidSymbol(t *testing.T) {
	cases := map[string]bool{
		"BTC-USDT": true,
		"ETH-USDC": true,
		"W3X-USDT": true,
		"btc-usdt": false,
		"BTCUSDT":  false,
		"BTC-":     false,
		"-USDT":    false,
		"BTC_USDT": false,
	}
	for sym, want := range cases {
		if got := ValidSymbol(sym); got != want {
			t.Errorf("ValidSymbol(%q) = %v, want %v", sym, got, want)
		}
	}
}

func TestRoundTripEnums(t *testing.T) {
	for _, s := range []Side{SideBuy, SideSell} {
		if SideFromString(s.String()) != s {
			t.Errorf("side round trip failed for %s", s)
		}
	}
	for _, typ := range []OrderType{OrderTypeMarket, OrderTypeLimit, OrderTypeStopLimit, OrderTypeStopMarket} {
		if OrderTypeFromString(typ.String()) != typ {
			t.Errorf("order type round trip failed for %s", typ)
		}
	}
	for _, tif := range []TimeInForce{TimeInForceGTC, TimeInForceIOC, TimeInForceFOK, TimeInForceGTD} {
		if TimeInForceFromString(tif.String()) != tif {
			t.Errorf("tif round trip failed for %s", tif)
		}
	}
}
