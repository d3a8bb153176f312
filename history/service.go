package history

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"fenrir/domain/asset"
	"fenrir/domain/order"
	"fenrir/domain/orderbook"
	"fenrir/settlement"
)

// Config tunes the history service actor.
type Config struct {
	Validation   ValidationConfig
	RequestTTL   time.Duration
	ReleaseDelay time.Duration
	MailboxSize  int
}

// Entry is one row of an order-history response.
type Entry struct {
	Order  order.Order `json:"order"`
	Info   OrderInfo   `json:"info"`
	Status Status      `json:"status"`
}

type task struct {
	posted time.Time
	query  bool
	fn     func()
}

// delayedDelta is an execution release waiting out the settlement
// confirmation window.
type delayedDelta struct {
	due   time.Time
	addr  order.Address
	delta Portfolio
}

// Service is the order-history projection actor: the only writer of
// the history store. It consumes the event stream from every
// controller, answers status/history/balance queries, and runs
// pre-trade validation so the balance check always sees its own
// latest projection.
type Service struct {
	log    *zap.Logger
	store  *Store
	val    *validator
	cfg    Config
	inbox  chan task
	timers []delayedDelta
	now    func() time.Time
}

func NewService(log *zap.Logger, store *Store, ledger settlement.Ledger, cfg Config) *Service {
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = 4096
	}
	return &Service{
		log:   log.Named("history"),
		store: store,
		val:   &validator{cfg: cfg.Validation, ledger: ledger, store: store},
		cfg:   cfg,
		inbox: make(chan task, cfg.MailboxSize),
		now:   time.Now,
	}
}

// Run drains the mailbox until done closes. One goroutine only.
func (s *Service) Run(done <-chan struct{}) {
	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-done:
			return
		case t := <-s.inbox:
			if t.query && s.cfg.RequestTTL > 0 && s.now().Sub(t.posted) > s.cfg.RequestTTL {
				continue // stale request, drop silently
			}
			t.fn()
		case <-tick.C:
			s.applyDueReleases()
		}
	}
}

func (s *Service) post(query bool, fn func()) {
	select {
	case s.inbox <- task{posted: s.now(), query: query, fn: fn}:
	default:
		s.log.Warn("mailbox full, dropping request")
	}
}

func (s *Service) applyDueReleases() {
	now := s.now()
	kept := s.timers[:0]
	for _, d := range s.timers {
		if d.due.After(now) {
			kept = append(kept, d)
			continue
		}
		if err := s.store.CombinePortfolio(d.addr, d.delta); err != nil {
			s.log.Warn("release failed", zap.Error(err))
		}
	}
	s.timers = kept
}

// -------------------- commands --------------------

// ValidateOrder runs the pre-trade checks. Blocks until the actor
// serves it; callers bound the wait themselves.
func (s *Service) ValidateOrder(o *order.Order, now time.Time) error {
	reply := make(chan error, 1)
	s.post(false, func() { reply <- s.val.validateOrder(o, now) })
	return <-reply
}

// ValidateCancel resolves and authorizes a cancellation request.
func (s *Service) ValidateCancel(req *order.CancelRequest) (*order.Order, error) {
	type res struct {
		o   *order.Order
		err error
	}
	reply := make(chan res, 1)
	s.post(false, func() {
		o, err := s.val.validateCancel(req)
		reply <- res{o, err}
	})
	r := <-reply
	return r.o, r.err
}

// Apply folds one book event into the projection. Fire-and-forget:
// controllers never wait on the projection.
func (s *Service) Apply(ev orderbook.Event) {
	s.post(false, func() { s.apply(ev) })
}

// RecoverFromOrderBook re-seeds the projection from a restored
// book. Orders that already hold a reserve marker are skipped, so
// re-application is idempotent.
func (s *Service) RecoverFromOrderBook(book *orderbook.OrderBook) {
	s.post(false, func() {
		book.WalkResident(func(lo orderbook.LimitOrder) {
			s.apply(orderbook.OrderAdded{LO: lo})
		})
	})
}

func (s *Service) apply(ev orderbook.Event) {
	switch e := ev.(type) {
	case orderbook.OrderAdded:
		s.applyAdded(e.LO)
	case orderbook.OrderExecuted:
		s.applyExecutedSide(e.Submitted, e.Amount)
		s.applyExecutedSide(e.Counter, e.Amount)
	case orderbook.OrderCanceled:
		s.applyCanceled(e.LO)
	}
}

func (s *Service) applyAdded(lo orderbook.LimitOrder) {
	o := lo.Order
	// The marker, not bare existence, decides idempotence: an order
	// first seen through an execution is stored but holds no reserve
	// yet, and its residual must still reserve when it rests.
	if s.store.IsReserved(o.ID) {
		return
	}
	if !s.store.HasOrder(o.ID) {
		if err := s.store.PutOrder(o); err != nil {
			s.log.Error("store order", zap.Error(err))
			return
		}
		_ = s.store.AppendIndex(o.SenderAddress(), o.Pair, o.ID)
	}
	if _, err := s.store.CombineInfo(o.ID, OrderInfo{Amount: o.Amount}); err != nil {
		s.log.Error("combine info", zap.Error(err))
	}

	// Reserve for the resting portion only; taker fills before the
	// residual rested never held open volume.
	reserve, err := Reservation(lo, lo.Remaining)
	if err != nil {
		s.log.Error("reservation", zap.Error(err))
		return
	}
	if err := s.store.CombinePortfolio(o.SenderAddress(), reserve); err != nil {
		s.log.Error("combine portfolio", zap.Error(err))
		return
	}
	_ = s.store.SetReserved(o.ID)
}

func (s *Service) applyExecutedSide(lo orderbook.LimitOrder, traded int64) {
	o := lo.Order
	if !s.store.HasOrder(o.ID) {
		_ = s.store.PutOrder(o)
		_ = s.store.AppendIndex(o.SenderAddress(), o.Pair, o.ID)
	}
	info, err := s.store.CombineInfo(o.ID, OrderInfo{Amount: o.Amount, Filled: traded})
	if err != nil {
		s.log.Error("combine info", zap.Error(err))
		return
	}

	if s.store.IsReserved(o.ID) {
		release, err := Reservation(lo, traded)
		if err != nil {
			s.log.Error("release", zap.Error(err))
			return
		}
		s.scheduleRelease(o.SenderAddress(), release.Negate())
		if info.Filled >= info.Amount {
			_ = s.store.ClearReserved(o.ID)
		}
	}
}

func (s *Service) applyCanceled(lo orderbook.LimitOrder) {
	o := lo.Order
	if !s.store.HasOrder(o.ID) {
		_ = s.store.PutOrder(o)
		_ = s.store.AppendIndex(o.SenderAddress(), o.Pair, o.ID)
	}
	if _, err := s.store.CombineInfo(o.ID, OrderInfo{Amount: o.Amount, Canceled: true}); err != nil {
		s.log.Error("combine info", zap.Error(err))
	}

	if s.store.IsReserved(o.ID) {
		release, err := Reservation(lo, lo.Remaining)
		if err == nil {
			if err := s.store.CombinePortfolio(o.SenderAddress(), release.Negate()); err != nil {
				s.log.Warn("cancel release", zap.Error(err))
			}
		}
		_ = s.store.ClearReserved(o.ID)
	}
}

// scheduleRelease defers an execution release for the settlement
// confirmation window; trades stay provisional until then.
func (s *Service) scheduleRelease(addr order.Address, delta Portfolio) {
	if s.cfg.ReleaseDelay <= 0 {
		if err := s.store.CombinePortfolio(addr, delta); err != nil {
			s.log.Warn("release failed", zap.Error(err))
		}
		return
	}
	s.timers = append(s.timers, delayedDelta{
		due:   s.now().Add(s.cfg.ReleaseDelay),
		addr:  addr,
		delta: delta,
	})
}

// -------------------- queries --------------------

func (s *Service) Status(id order.ID) Status {
	reply := make(chan Status, 1)
	s.post(true, func() {
		info, ok := s.store.GetInfo(id)
		if !ok {
			reply <- Status{Kind: StatusNotFound}
			return
		}
		reply <- info.Status()
	})
	return <-reply
}

// OrderHistory lists the address's orders, pair-scoped when pair is
// non-nil, sorted by order timestamp ascending.
func (s *Service) OrderHistory(addr order.Address, pair *asset.Pair) []Entry {
	reply := make(chan []Entry, 1)
	s.post(true, func() {
		var ids []order.ID
		if pair != nil {
			ids = s.store.IndexIDs(addr, *pair)
		} else {
			ids = s.store.AllIndexIDs(addr)
		}

		out := make([]Entry, 0, len(ids))
		for _, id := range ids {
			o, ok := s.store.GetOrder(id)
			if !ok {
				continue
			}
			info, _ := s.store.GetInfo(id)
			out = append(out, Entry{Order: *o, Info: info, Status: info.Status()})
		}
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Order.Timestamp < out[j].Order.Timestamp
		})
		reply <- out
	})
	return <-reply
}

func (s *Service) OpenVolume(addr order.Address, a asset.Asset) int64 {
	reply := make(chan int64, 1)
	s.post(true, func() { reply <- s.store.OpenVolume(addr, a) })
	return <-reply
}

// TradableBalance reports settlement balance minus open volume for
// both legs of the pair, floored at zero.
func (s *Service) TradableBalance(addr order.Address, pair asset.Pair) (amountBal, priceBal int64) {
	type balances struct{ amount, price int64 }
	reply := make(chan balances, 1)
	s.post(true, func() {
		tradable := func(a asset.Asset) int64 {
			v := s.val.ledger.BalanceOf(addr, a) - s.store.OpenVolume(addr, a)
			if v < 0 {
				return 0
			}
			return v
		}
		reply <- balances{tradable(pair.AmountAsset), tradable(pair.PriceAsset)}
	})
	r := <-reply
	return r.amount, r.price
}

// DeleteFromHistory removes a terminal order from the address's
// history.
func (s *Service) DeleteFromHistory(addr order.Address, pair asset.Pair, id order.ID) error {
	reply := make(chan error, 1)
	s.post(false, func() {
		info, ok := s.store.GetInfo(id)
		if !ok || !info.Status().Kind.Terminal() {
			reply <- ErrNotDeletable
			return
		}
		if err := s.store.RemoveFromIndex(addr, pair, id); err != nil {
			reply <- err
			return
		}
		reply <- s.store.DeleteOrder(id)
	})
	return <-reply
}
