package orderbook

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"fenrir/domain/asset"
	"fenrir/domain/order"
)

var seqCounter int64

func bookPair() asset.Pair {
	var a asset.Asset
	a[0] = 0xAA
	return asset.NewPair(a, asset.Native)
}

func mkOrder(t *testing.T, seed byte, side order.Side, price, amount int64) *order.Order {
	t.Helper()
	key := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{seed}, ed25519.SeedSize))
	seqCounter++
	o := &order.Order{
		Pair:       bookPair(),
		Side:       side,
		Price:      price,
		Amount:     amount,
		Timestamp:  seqCounter, // distinct content per order
		Expiration: seqCounter + 1,
		MatcherFee: 300_000,
	}
	copy(o.SenderPK[:], key.Public().(ed25519.PublicKey))
	o.Sign(key)
	return o
}

func rest(t *testing.T, b *OrderBook, o *order.Order) LimitOrder {
	t.Helper()
	lo := NewLimitOrder(o)
	ev := b.MatchStep(lo)
	added, ok := ev.(OrderAdded)
	if !ok {
		t.Fatalf("expected OrderAdded, got %T", ev)
	}
	b.ApplyEvent(added)
	return lo
}

func TestMatchStepIsPure(t *testing.T) {
	b := NewOrderBook()
	lo := NewLimitOrder(mkOrder(t, 1, order.Buy, 10*order.PriceConstant, 100))
	_ = b.MatchStep(lo)
	if b.Size() != 0 {
		t.Fatal("MatchStep must not mutate the book")
	}
}

func TestFullMatch(t *testing.T) {
	b := NewOrderBook()
	rest(t, b, mkOrder(t, 1, order.Sell, 10*order.PriceConstant, 100))

	incoming := NewLimitOrder(mkOrder(t, 2, order.Buy, 10*order.PriceConstant, 100))
	ev := b.MatchStep(incoming)
	ex, ok := ev.(OrderExecuted)
	if !ok {
		t.Fatalf("expected OrderExecuted, got %T", ev)
	}
	if ex.Amount != 100 {
		t.Errorf("traded amount: want 100, got %d", ex.Amount)
	}
	if ex.Price() != 10*order.PriceConstant {
		t.Errorf("execution price must be the counter's")
	}

	b.ApplyEvent(ex)
	if b.Size() != 0 {
		t.Error("book must be empty after a full match")
	}
	if ex.SubmittedRemaining() != 0 || ex.CounterRemaining() != 0 {
		t.Error("both remainings must reach zero")
	}
}

func TestPartialThenCompletion(t *testing.T) {
	b := NewOrderBook()
	rest(t, b, mkOrder(t, 1, order.Sell, 10*order.PriceConstant, 100))

	buy1 := NewLimitOrder(mkOrder(t, 2, order.Buy, 10*order.PriceConstant, 40))
	ex := b.MatchStep(buy1).(OrderExecuted)
	if ex.Amount != 40 {
		t.Fatalf("want 40 traded, got %d", ex.Amount)
	}
	b.ApplyEvent(ex)

	if best := b.BestAsk(); best == nil || best.TotalAmount != 60 {
		t.Fatalf("best ask remaining must be 60")
	}

	buy2 := NewLimitOrder(mkOrder(t, 3, order.Buy, 10*order.PriceConstant, 60))
	ex2 := b.MatchStep(buy2).(OrderExecuted)
	if ex2.Amount != 60 {
		t.Fatalf("want 60 traded, got %d", ex2.Amount)
	}
	b.ApplyEvent(ex2)

	if b.Size() != 0 {
		t.Error("book must be empty after completion")
	}
}

func TestNonCrossingRests(t *testing.T) {
	b := NewOrderBook()
	rest(t, b, mkOrder(t, 1, order.Buy, 10*order.PriceConstant, 100))

	sell := NewLimitOrder(mkOrder(t, 2, order.Sell, 11*order.PriceConstant, 100))
	ev := b.MatchStep(sell)
	added, ok := ev.(OrderAdded)
	if !ok {
		t.Fatalf("non-crossing sell must rest, got %T", ev)
	}
	b.ApplyEvent(added)

	if b.BestBid().Price != 10*order.PriceConstant || b.BestAsk().Price != 11*order.PriceConstant {
		t.Error("best bid 10, best ask 11 expected")
	}
	if b.BestBid().Price >= b.BestAsk().Price {
		t.Error("book must not cross")
	}
}

func TestPriceTimePriority(t *testing.T) {
	b := NewOrderBook()
	first := mkOrder(t, 1, order.Sell, 10*order.PriceConstant, 50)
	second := mkOrder(t, 2, order.Sell, 10*order.PriceConstant, 50)
	cheaper := mkOrder(t, 3, order.Sell, 9*order.PriceConstant, 50)
	rest(t, b, first)
	rest(t, b, second)
	rest(t, b, cheaper)

	// Best price first.
	buy := NewLimitOrder(mkOrder(t, 4, order.Buy, 10*order.PriceConstant, 10))
	ex := b.MatchStep(buy).(OrderExecuted)
	if ex.Counter.Order.ID != cheaper.ID {
		t.Fatal("lowest ask must match first")
	}
	b.ApplyEvent(ex)

	// Exhaust the cheap level, then FIFO within the 10-level.
	buy2 := NewLimitOrder(mkOrder(t, 5, order.Buy, 10*order.PriceConstant, 40))
	ex2 := b.MatchStep(buy2).(OrderExecuted)
	if ex2.Counter.Order.ID != cheaper.ID {
		t.Fatal("cheap level must drain before the next price")
	}
	b.ApplyEvent(ex2)

	buy3 := NewLimitOrder(mkOrder(t, 6, order.Buy, 10*order.PriceConstant, 10))
	ex3 := b.MatchStep(buy3).(OrderExecuted)
	if ex3.Counter.Order.ID != first.ID {
		t.Fatal("FIFO within a level: earliest arrival first")
	}
}

func TestCancel(t *testing.T) {
	b := NewOrderBook()
	o := mkOrder(t, 1, order.Buy, 10*order.PriceConstant, 100)
	rest(t, b, o)

	ev, ok := b.Cancel(o.ID)
	if !ok {
		t.Fatal("resident order must cancel")
	}
	if ev.LO.Order.ID != o.ID || ev.LO.Remaining != 100 {
		t.Error("cancel event carries the removed limit order")
	}
	if b.Size() != 0 || b.BestBid() != nil {
		t.Error("level must be excised with its last order")
	}

	if _, ok := b.Cancel(o.ID); ok {
		t.Error("cancelling an absent id must report absence")
	}
}

func TestNoDuplicateResidency(t *testing.T) {
	b := NewOrderBook()
	o := mkOrder(t, 1, order.Buy, 10*order.PriceConstant, 100)
	rest(t, b, o)
	b.ApplyEvent(OrderAdded{LO: NewLimitOrder(o)})
	if b.Size() != 1 {
		t.Error("same id must not be resident twice")
	}
}

func TestExecutedReducesCounterInPlace(t *testing.T) {
	b := NewOrderBook()
	sell := mkOrder(t, 1, order.Sell, 10*order.PriceConstant, 100)
	rest(t, b, sell)

	buy := NewLimitOrder(mkOrder(t, 2, order.Buy, 10*order.PriceConstant, 30))
	ex := b.MatchStep(buy).(OrderExecuted)
	b.ApplyEvent(ex)

	if !b.Contains(sell.ID) {
		t.Fatal("partially filled counter stays resident")
	}
	if b.BestAsk().TotalAmount != 70 {
		t.Errorf("level total must shrink to 70, got %d", b.BestAsk().TotalAmount)
	}

	// The next fill sees the reduced remaining.
	buy2 := NewLimitOrder(mkOrder(t, 3, order.Buy, 10*order.PriceConstant, 100))
	ex2 := b.MatchStep(buy2).(OrderExecuted)
	if ex2.Counter.Remaining != 70 || ex2.Amount != 70 {
		t.Errorf("counter remaining 70 expected, got %d/%d", ex2.Counter.Remaining, ex2.Amount)
	}
}

func TestDustResidual(t *testing.T) {
	// price 1 means one price-asset base unit per 10^8 amount units;
	// any remaining below 10^8 cannot settle.
	lo := LimitOrder{Order: mkOrder(t, 1, order.Buy, 1, 3*order.PriceConstant), Remaining: 50}
	if lo.SettleableRemaining() {
		t.Error("sub-unit residual must be dust")
	}
	whole := lo.Partial(2 * order.PriceConstant)
	if !whole.SettleableRemaining() {
		t.Error("whole residual must stay settleable")
	}
}

func TestDepthViewsTruncate(t *testing.T) {
	b := NewOrderBook()
	for i := int64(0); i < 60; i++ {
		rest(t, b, mkOrder(t, byte(i%7+1), order.Buy, (i+1)*order.PriceConstant, 10))
	}
	views := b.BidViews(50)
	if len(views) != 50 {
		t.Fatalf("want 50 levels, got %d", len(views))
	}
	if views[0].Price != 60*order.PriceConstant {
		t.Error("bids must come best-first")
	}
}

func TestEventReplayRebuildsIdenticalBook(t *testing.T) {
	orders := []*order.Order{
		mkOrder(t, 1, order.Sell, 10*order.PriceConstant, 100),
		mkOrder(t, 2, order.Buy, 10*order.PriceConstant, 40),
		mkOrder(t, 3, order.Buy, 9*order.PriceConstant, 30),
	}

	// Drive a live book, recording committed events.
	live := NewOrderBook()
	var log []Event
	commit := func(ev Event) {
		data, err := EncodeEvent(ev)
		if err != nil {
			t.Fatal(err)
		}
		decoded, err := DecodeEvent(data)
		if err != nil {
			t.Fatal(err)
		}
		log = append(log, decoded)
		live.ApplyEvent(ev)
	}
	for _, o := range orders {
		lo := NewLimitOrder(o)
		for {
			ev := live.MatchStep(lo)
			commit(ev)
			ex, isExec := ev.(OrderExecuted)
			if !isExec {
				break
			}
			if ex.SubmittedRemaining() == 0 {
				break
			}
			lo = lo.Partial(ex.SubmittedRemaining())
		}
	}

	// Replay the decoded log into a fresh book.
	replayed := NewOrderBook()
	for _, ev := range log {
		replayed.ApplyEvent(ev)
	}

	var liveState, replayState []LimitOrder
	live.WalkResident(func(lo LimitOrder) { liveState = append(liveState, lo) })
	replayed.WalkResident(func(lo LimitOrder) { replayState = append(replayState, lo) })

	if len(liveState) != len(replayState) {
		t.Fatalf("resident counts differ: %d vs %d", len(liveState), len(replayState))
	}
	for i := range liveState {
		if liveState[i].Order.ID != replayState[i].Order.ID ||
			liveState[i].Remaining != replayState[i].Remaining {
			t.Errorf("resident order %d differs after replay", i)
		}
	}
}
