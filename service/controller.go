package service

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"go.uber.org/zap"

	"fenrir/domain/asset"
	"fenrir/domain/order"
	"fenrir/domain/orderbook"
	"fenrir/history"
	"fenrir/infra/outbox"
	"fenrir/infra/sequence"
	"fenrir/infra/wal"
	"fenrir/settlement"
	"fenrir/snapshot"
)

// MaxDepth caps order-book depth responses.
const MaxDepth = 50

// ControllerConfig tunes one pair's controller.
type ControllerConfig struct {
	ValidationTimeout time.Duration
	SnapshotInterval  time.Duration
	OrderMatchTxFee   int64
	MailboxSize       int
}

type ctlState uint8

const (
	stateReady ctlState = iota
	stateAwaitingValidation
)

// controller messages

type submitMsg struct {
	order *order.Order
	reply chan Response
}

type cancelMsg struct {
	req   *order.CancelRequest
	reply chan Response
}

type depthMsg struct {
	depth int
	reply chan OrderBookView
}

type validatedMsg struct {
	token  uint64
	submit *order.Order         // set for submissions
	cancel *order.CancelRequest // set for cancellations
	err    error
	reply  chan Response
}

type stopMsg struct {
	wipe bool
	done chan struct{}
}

// Controller serializes all writes for one asset pair: validation,
// matching, event persistence, settlement submission, snapshots,
// recovery. It is a single-goroutine state machine; while a
// validation round-trip is outstanding, reads are still served and
// writes are stashed.
type Controller struct {
	pair       asset.Pair
	cfg        ControllerConfig
	log        *zap.Logger
	book       *orderbook.OrderBook
	journalDir string
	wal        *wal.WAL
	seq        *sequence.Sequencer
	snaps      *snapshot.Store
	hist       *history.Service
	ledger     settlement.Ledger
	signer     *settlement.Signer
	relay      *outbox.Outbox
	events     Publisher

	inbox   chan any
	stash   []any
	state   ctlState
	stopped bool

	valToken uint64

	fatal func(msg string, fields ...zap.Field)
}

func NewController(
	pair asset.Pair,
	cfg ControllerConfig,
	log *zap.Logger,
	journalDir string,
	snaps *snapshot.Store,
	hist *history.Service,
	ledger settlement.Ledger,
	signer *settlement.Signer,
	relay *outbox.Outbox,
	events Publisher,
) (*Controller, error) {
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = 1024
	}
	w, err := wal.Open(wal.Config{
		Dir:         journalDir,
		SegmentSize: 4 << 20,
	})
	if err != nil {
		return nil, err
	}

	log = log.Named("controller").With(zap.String("pair", pair.String()))
	c := &Controller{
		pair:       pair,
		cfg:        cfg,
		log:        log,
		book:       orderbook.NewOrderBook(),
		journalDir: journalDir,
		wal:        w,
		seq:        sequence.New(0),
		snaps:      snaps,
		hist:       hist,
		ledger:     ledger,
		signer:     signer,
		relay:      relay,
		events:     events,
		inbox:      make(chan any, cfg.MailboxSize),
		fatal:      log.Fatal,
	}

	if err := c.restore(); err != nil {
		return nil, err
	}
	return c, nil
}

// restore rebuilds the book from the latest snapshot plus the WAL
// tail. Replayed events are authoritative: no validation, no
// settlement submission, no publication.
func (c *Controller) restore() error {
	book, snapSeq, err := c.snaps.Load(c.pair)
	if err != nil {
		return err
	}
	if book != nil {
		c.book = book
	}

	last, err := wal.Replay(c.journalDir, snapSeq, func(rec *wal.Record) error {
		ev, err := orderbook.DecodeEvent(rec.Data)
		if err != nil {
			return err
		}
		c.book.ApplyEvent(ev)
		return nil
	})
	if err != nil {
		return err
	}
	c.seq.Reset(last)

	// The projection skips orders that already hold a reserve, so
	// re-seeding is idempotent.
	c.hist.RecoverFromOrderBook(c.book)
	return nil
}

// Run drains the mailbox until ctx is done. One goroutine only.
func (c *Controller) Run(ctx context.Context) {
	snapTick := time.NewTicker(c.snapInterval())
	defer snapTick.Stop()

	var deadline *time.Timer
	var deadlineC <-chan time.Time
	armDeadline := func() {
		deadline = time.NewTimer(c.cfg.ValidationTimeout)
		deadlineC = deadline.C
	}
	stopDeadline := func() {
		if deadline != nil {
			deadline.Stop()
			deadline = nil
			deadlineC = nil
		}
	}

	for {
		if c.stopped {
			return
		}

		// Drain stashed writes as soon as we are Ready again.
		if c.state == stateReady && len(c.stash) > 0 {
			m := c.stash[0]
			c.stash = c.stash[1:]
			if c.handleReady(m) {
				armDeadline()
			}
			continue
		}

		select {
		case <-ctx.Done():
			_ = c.wal.Close()
			return

		case m := <-c.inbox:
			switch c.state {
			case stateReady:
				if c.handleReady(m) {
					armDeadline()
				}
			case stateAwaitingValidation:
				if c.handleAwaiting(m) {
					stopDeadline()
				}
			}

		case <-deadlineC:
			c.log.Warn("validation timed out, dropping request")
			c.valToken++
			c.state = stateReady
			stopDeadline()

		case <-snapTick.C:
			c.saveSnapshot()
		}
	}
}

func (c *Controller) snapInterval() time.Duration {
	if c.cfg.SnapshotInterval <= 0 {
		return time.Minute
	}
	return c.cfg.SnapshotInterval
}

// enqueue posts to the bounded mailbox, dropping on overflow.
func (c *Controller) enqueue(m any) {
	select {
	case c.inbox <- m:
	default:
		c.log.Warn("mailbox full, dropping message")
	}
}

// -------------------- public API (called by the dispatcher) --------------------

func (c *Controller) Submit(o *order.Order, reply chan Response) {
	c.enqueue(submitMsg{order: o, reply: reply})
}

func (c *Controller) Cancel(req *order.CancelRequest, reply chan Response) {
	c.enqueue(cancelMsg{req: req, reply: reply})
}

func (c *Controller) Depth(depth int, reply chan OrderBookView) {
	c.enqueue(depthMsg{depth: depth, reply: reply})
}

// Stop shuts the controller down; wipe also deletes its journal and
// snapshots.
func (c *Controller) Stop(wipe bool) <-chan struct{} {
	done := make(chan struct{})
	c.enqueue(stopMsg{wipe: wipe, done: done})
	return done
}

// -------------------- state handlers --------------------

// handleReady processes one message in the Ready state. Returns true
// when a validation round-trip started and the controller is now
// AwaitingValidation.
func (c *Controller) handleReady(m any) bool {
	switch msg := m.(type) {
	case depthMsg:
		c.serveDepth(msg)

	case submitMsg:
		c.valToken++
		tok := c.valToken
		c.state = stateAwaitingValidation
		o := msg.order
		reply := msg.reply
		go func() {
			err := c.hist.ValidateOrder(o, time.Now())
			c.enqueue(validatedMsg{token: tok, submit: o, err: err, reply: reply})
		}()
		return true

	case cancelMsg:
		c.valToken++
		tok := c.valToken
		c.state = stateAwaitingValidation
		req := msg.req
		reply := msg.reply
		go func() {
			_, err := c.hist.ValidateCancel(req)
			c.enqueue(validatedMsg{token: tok, cancel: req, err: err, reply: reply})
		}()
		return true

	case validatedMsg:
		// Result of a timed-out round; nothing is waiting for it.

	case stopMsg:
		c.shutdown(msg)
	}
	return false
}

// handleAwaiting processes one message while a validation is
// outstanding. Returns true once the controller is Ready again.
func (c *Controller) handleAwaiting(m any) bool {
	switch msg := m.(type) {
	case depthMsg:
		// Reads never wait.
		c.serveDepth(msg)
		return false

	case submitMsg, cancelMsg, stopMsg:
		c.stash = append(c.stash, m)
		return false

	case validatedMsg:
		if msg.token != c.valToken {
			return false // belongs to a dropped round
		}
		c.state = stateReady

		switch {
		case msg.err != nil && msg.submit != nil:
			msg.reply <- OrderRejected{Message: msg.err.Error()}
		case msg.err != nil:
			msg.reply <- OrderCancelRejected{Message: msg.err.Error()}
		case msg.submit != nil:
			msg.reply <- OrderAccepted{Order: msg.submit}
			c.match(msg.submit)
		default:
			c.processCancel(msg.cancel, msg.reply)
		}
		return true
	}
	return false
}

func (c *Controller) serveDepth(msg depthMsg) {
	depth := msg.depth
	if depth <= 0 || depth > MaxDepth {
		depth = MaxDepth
	}
	msg.reply <- OrderBookView{
		Pair: c.pair,
		Bids: c.book.BidViews(depth),
		Asks: c.book.AskViews(depth),
	}
}

// -------------------- matching --------------------

// match drives the single-step matcher until the incoming order is
// filled, rests, or its residual turns to dust.
func (c *Controller) match(o *order.Order) {
	lo := orderbook.NewLimitOrder(o)
	for {
		ev := c.book.MatchStep(lo)
		switch e := ev.(type) {
		case orderbook.OrderAdded:
			c.commit(e)
			return

		case orderbook.OrderExecuted:
			buy, sell := participants(e)
			tx := c.signer.BuildExchangeTx(buy, sell, e.Price(), e.Amount, c.cfg.OrderMatchTxFee)

			if !c.ledger.SubmitExchangeTransaction(tx) {
				// The resident counter went stale; cancel it and
				// retry against the next-best counter with the full
				// pre-step remaining.
				c.log.Info("settlement rejected exchange tx",
					zap.String("counter", e.Counter.Order.ID.String()))
				c.commit(orderbook.OrderCanceled{LO: e.Counter})
				continue
			}

			c.commit(e)
			c.relayTx(tx)

			rem := e.SubmittedRemaining()
			if rem == 0 {
				return
			}
			lo = lo.Partial(rem)
			if !lo.SettleableRemaining() {
				c.commit(orderbook.OrderCanceled{LO: lo})
				return
			}
		}
	}
}

func participants(e orderbook.OrderExecuted) (buy, sell *order.Order) {
	if e.Submitted.Order.Side == order.Buy {
		return e.Submitted.Order, e.Counter.Order
	}
	return e.Counter.Order, e.Submitted.Order
}

func (c *Controller) processCancel(req *order.CancelRequest, reply chan Response) {
	ev, ok := c.book.Cancel(req.OrderID)
	if !ok {
		reply <- OrderCancelRejected{Message: "Order not found"}
		return
	}
	// Cancel already removed the order; journal and project the event.
	c.persist(ev)
	c.hist.Apply(ev)
	c.publish(ev)
	reply <- OrderCanceled{OrderID: req.OrderID}
}

// commit persists an event, applies it to the book, projects it, and
// publishes it. WAL failure is fatal: the process must restart and
// recover from the last snapshot rather than diverge.
func (c *Controller) commit(ev orderbook.Event) {
	c.persist(ev)
	c.book.ApplyEvent(ev)
	c.hist.Apply(ev)
	c.publish(ev)
}

func (c *Controller) persist(ev orderbook.Event) {
	data, err := orderbook.EncodeEvent(ev)
	if err != nil {
		c.fatal("encode event", zap.Error(err))
		return
	}
	rec := wal.NewRecord(recordType(ev), c.seq.Next(), data)
	if err := c.wal.Append(rec); err != nil {
		c.fatal("event log append failed", zap.Error(err))
	}
}

func recordType(ev orderbook.Event) wal.RecordType {
	switch ev.(type) {
	case orderbook.OrderAdded:
		return wal.RecordOrderAdded
	case orderbook.OrderExecuted:
		return wal.RecordOrderExecuted
	default:
		return wal.RecordOrderCanceled
	}
}

func (c *Controller) publish(ev orderbook.Event) {
	if c.events == nil {
		return
	}
	data, err := orderbook.EncodeEvent(ev)
	if err != nil {
		return
	}
	if err := c.events.Send(context.Background(), []byte(c.pair.Key()), data); err != nil {
		c.log.Warn("event publish failed", zap.Error(err))
	}
}

// relayTx journals the accepted transaction for at-least-once
// publication and announces it on the event stream.
func (c *Controller) relayTx(tx *settlement.ExchangeTransaction) {
	payload, err := json.Marshal(tx)
	if err != nil {
		c.log.Error("encode exchange tx", zap.Error(err))
		return
	}
	if c.relay != nil {
		if err := c.relay.Enqueue(tx.ID[:], payload); err != nil {
			c.log.Warn("outbox enqueue failed", zap.Error(err))
		}
	}
	if c.events != nil {
		ann, _ := json.Marshal(map[string]json.RawMessage{"exchangeTransaction": payload})
		_ = c.events.Send(context.Background(), []byte(c.pair.Key()), ann)
	}
}

// -------------------- snapshots & shutdown --------------------

func (c *Controller) saveSnapshot() {
	seq := c.seq.Current()
	if err := c.snaps.Write(c.pair, seq, c.book); err != nil {
		c.log.Warn("snapshot failed", zap.Error(err))
		return
	}
	if err := c.wal.TruncateBefore(seq); err != nil {
		c.log.Warn("wal truncate failed", zap.Error(err))
	}
}

func (c *Controller) shutdown(msg stopMsg) {
	_ = c.wal.Close()
	if msg.wipe {
		if err := c.snaps.Delete(c.pair); err != nil {
			c.log.Warn("snapshot delete failed", zap.Error(err))
		}
		if err := os.RemoveAll(c.journalDir); err != nil {
			c.log.Warn("journal delete failed", zap.Error(err))
		}
	}
	c.stopped = true
	close(msg.done)
}
