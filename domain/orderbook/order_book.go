package orderbook

import (
	"fenrir/domain/order"
)

// entryRef locates a resident order for O(1) cancellation.
type entryRef struct {
	side  order.Side
	price int64
	node  *levelNode
}

// OrderBook holds the resident orders of one asset pair. All
// transformations are deterministic and free of I/O; mutation goes
// through ApplyEvent so that WAL replay and live matching share one
// code path.
type OrderBook struct {
	Bids *RBTree
	Asks *RBTree

	index map[order.ID]entryRef
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		Bids:  NewRBTree(),
		Asks:  NewRBTree(),
		index: make(map[order.ID]entryRef),
	}
}

func (b *OrderBook) tree(s order.Side) *RBTree {
	if s == order.Buy {
		return b.Bids
	}
	return b.Asks
}

// Contains reports whether the order is resident on either side.
func (b *OrderBook) Contains(id order.ID) bool {
	_, ok := b.index[id]
	return ok
}

// Size is the number of resident orders across both sides.
func (b *OrderBook) Size() int {
	return len(b.index)
}

func (b *OrderBook) BestBid() *PriceLevel { return b.Bids.BestMax() }
func (b *OrderBook) BestAsk() *PriceLevel { return b.Asks.BestMin() }

// MatchStep is the single-step matcher. It inspects the best
// opposite level and returns either OrderAdded (no crossing) or one
// OrderExecuted fill. It never mutates the book; the caller applies
// the returned event via ApplyEvent once it has been persisted.
func (b *OrderBook) MatchStep(incoming LimitOrder) Event {
	var best *PriceLevel
	if incoming.Order.Side == order.Buy {
		best = b.BestAsk()
		if best == nil || best.Price > incoming.Order.Price {
			return OrderAdded{LO: incoming}
		}
	} else {
		best = b.BestBid()
		if best == nil || best.Price < incoming.Order.Price {
			return OrderAdded{LO: incoming}
		}
	}

	head := best.Head()
	traded := min(incoming.Remaining, head.lo.Remaining)
	return OrderExecuted{
		Submitted: incoming,
		Counter:   head.lo,
		Amount:    traded,
	}
}

// Cancel removes the order if resident and returns the cancellation
// event carrying its current remaining amount.
func (b *OrderBook) Cancel(id order.ID) (OrderCanceled, bool) {
	ref, ok := b.index[id]
	if !ok {
		return OrderCanceled{}, false
	}
	ev := OrderCanceled{LO: ref.node.lo}
	b.remove(ref, id)
	return ev, true
}

// ApplyEvent transitions the book. OrderExecuted touches only the
// resident counter; the submitted side is the incoming order the
// controller is still driving and is never resident mid-match.
func (b *OrderBook) ApplyEvent(e Event) {
	switch ev := e.(type) {
	case OrderAdded:
		b.add(ev.LO)
	case OrderExecuted:
		ref, ok := b.index[ev.Counter.Order.ID]
		if !ok {
			return
		}
		lvl := b.tree(ref.side).Find(ref.price)
		lvl.reduce(ref.node, ev.Amount)
		if ref.node.lo.Remaining == 0 {
			b.remove(ref, ev.Counter.Order.ID)
		}
	case OrderCanceled:
		if ref, ok := b.index[ev.LO.Order.ID]; ok {
			b.remove(ref, ev.LO.Order.ID)
		}
	}
}

func (b *OrderBook) add(lo LimitOrder) {
	id := lo.Order.ID
	if _, dup := b.index[id]; dup {
		return
	}
	lvl := b.tree(lo.Order.Side).GetOrCreate(lo.Order.Price)
	n := lvl.Enqueue(lo)
	b.index[id] = entryRef{side: lo.Order.Side, price: lo.Order.Price, node: n}
}

func (b *OrderBook) remove(ref entryRef, id order.ID) {
	tree := b.tree(ref.side)
	lvl := tree.Find(ref.price)
	lvl.unlink(ref.node)
	if lvl.Empty() {
		tree.Delete(ref.price)
	}
	delete(b.index, id)
}

// ---- views ----

// LevelView is one aggregated price level of a depth response.
type LevelView struct {
	Price  int64 `json:"price"`
	Amount int64 `json:"amount"`
}

// BidViews returns up to max aggregated bid levels, best first.
func (b *OrderBook) BidViews(max int) []LevelView {
	return collectViews(b.Bids.WalkDesc, max)
}

// AskViews returns up to max aggregated ask levels, best first.
func (b *OrderBook) AskViews(max int) []LevelView {
	return collectViews(b.Asks.WalkAsc, max)
}

func collectViews(walk func(func(*PriceLevel) bool), max int) []LevelView {
	out := make([]LevelView, 0, max)
	walk(func(lvl *PriceLevel) bool {
		out = append(out, LevelView{Price: lvl.Price, Amount: lvl.TotalAmount})
		return len(out) < max
	})
	return out
}

// WalkResident visits every resident order: bids best-first, then
// asks best-first, queue order within each level. Snapshot writes
// and history recovery both rely on this order.
func (b *OrderBook) WalkResident(fn func(LimitOrder)) {
	walkSide := func(walk func(func(*PriceLevel) bool)) {
		walk(func(lvl *PriceLevel) bool {
			for n := lvl.Head(); n != nil; n = n.next {
				fn(n.lo)
			}
			return true
		})
	}
	walkSide(b.Bids.WalkDesc)
	walkSide(b.Asks.WalkAsc)
}

func min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
