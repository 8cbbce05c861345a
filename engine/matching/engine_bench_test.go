package matching

import (
	"context"
	"fmt"
	"testing"

	"cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/gwrxuk/FastTrading/engine/types"
)

// seedBook rests n levels on each side around 3000 with one order per level.
func seedBook(b *testing.B, f *fixture, maker uuid.UUID, n int) {
	b.Helper()
	for i := 0; i < n; i++ {
		bid := fmt.Sprintf("%d", 2999-i)
		ask := fmt.Sprintf("%d", 3001+i)
		f.place(b, limit(maker, types.SideBuy, bid, "10"))
		f.place(b, limit(maker, types.SideSell, ask, "10"))
	}
}

func BenchmarkPlaceResting(b *testing.B) {
	f := newFixture(b)
	maker := uuid.New()
	f.fund(b, maker, "USDT", "10000000000000000")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		price := fmt.Sprintf("%d", 1000+i%1000)
		if _, err := f.engine.PlaceOrder(context.Background(), limit(maker, types.SideBuy, price, "1")); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPlaceMatching(b *testing.B) {
	f := newFixture(b)
	maker := uuid.New()
	taker := uuid.New()
	f.fund(b, maker, "ETH", "10000000000000000")
	f.fund(b, taker, "USDT", "100000000000000000000")

	for i := 0; i < b.N; i++ {
		if _, err := f.engine.PlaceOrder(context.Background(), limit(maker, types.SideSell, "3000", "1")); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		order := types.NewOrder(taker, "", "ETH-USDT", types.SideBuy, types.OrderTypeLimit,
			types.TimeInForceIOC, dec("3000"), math.LegacyDec{}, dec("1"))
		if _, err := f.engine.PlaceOrder(context.Background(), order); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDepthDeepBook(b *testing.B) {
	f := newFixture(b)
	maker := uuid.New()
	f.fund(b, maker, "USDT", "10000000000000000")
	f.fund(b, maker, "ETH", "10000000000000000")
	seedBook(b, f, maker, 500)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = f.engine.Depth("ETH-USDT", 20)
	}
}

func BenchmarkCancel(b *testing.B) {
	f := newFixture(b)
	maker := uuid.New()
	f.fund(b, maker, "USDT", "10000000000000000")

	ids := make([]uuid.UUID, b.N)
	for i := 0; i < b.N; i++ {
		price := fmt.Sprintf("%d", 1000+i%1000)
		res := f.place(b, limit(maker, types.SideBuy, price, "1"))
		ids[i] = res.Order.ID
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := f.engine.Cancel(context.Background(), maker, ids[i]); err != nil {
			b.Fatal(err)
		}
	}
}
