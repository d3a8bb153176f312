package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"fenrir/domain/asset"
	"fenrir/domain/order"
	"fenrir/history"
	"fenrir/infra/outbox"
	"fenrir/infra/sequence"
	"fenrir/infra/wal"
	"fenrir/settlement"
	"fenrir/snapshot"
)

// DispatcherConfig wires the pair router.
type DispatcherConfig struct {
	PriceAssets     []asset.Asset
	PredefinedPairs []asset.Pair
	JournalRoot     string
	PairsLogDir     string
	Controller      ControllerConfig
	MailboxSize     int
	RequestTimeout  time.Duration
}

// pairRecord is the payload of the dispatcher's lifecycle stream.
type pairRecord struct {
	Pair    asset.Pair `json:"pair"`
	Created int64      `json:"created"`
}

// dispatcher messages

type routeSubmitMsg struct {
	order *order.Order
	reply chan Response
}

type routeCancelMsg struct {
	pair  asset.Pair
	req   *order.CancelRequest
	reply chan Response
}

type routeDepthMsg struct {
	pair  asset.Pair
	depth int
	reply chan Response
}

type deleteBookMsg struct {
	pair  asset.Pair
	reply chan Response
}

type marketsMsg struct {
	reply chan Response
}

// Dispatcher owns the set of known pairs and routes every request to
// the controller owning its pair. Controllers are created lazily on
// the first accepted submission and reconstituted from the pair
// lifecycle stream on startup.
type Dispatcher struct {
	cfg    DispatcherConfig
	log    *zap.Logger
	hist   *history.Service
	ledger settlement.Ledger
	signer *settlement.Signer
	relay  *outbox.Outbox
	events Publisher
	snaps  *snapshot.Store

	pairsLog *wal.WAL
	seq      *sequence.Sequencer

	ctx         context.Context
	known       map[string]asset.Pair
	controllers map[string]*Controller
	markets     []Market

	inbox chan any
}

func NewDispatcher(
	ctx context.Context,
	cfg DispatcherConfig,
	log *zap.Logger,
	snaps *snapshot.Store,
	hist *history.Service,
	ledger settlement.Ledger,
	signer *settlement.Signer,
	relay *outbox.Outbox,
	events Publisher,
) (*Dispatcher, error) {
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = 4096
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	pairsLog, err := wal.Open(wal.Config{Dir: cfg.PairsLogDir, SegmentSize: 1 << 20})
	if err != nil {
		return nil, err
	}

	d := &Dispatcher{
		cfg:         cfg,
		log:         log.Named("dispatcher"),
		hist:        hist,
		ledger:      ledger,
		signer:      signer,
		relay:       relay,
		events:      events,
		snaps:       snaps,
		pairsLog:    pairsLog,
		seq:         sequence.New(0),
		ctx:         ctx,
		known:       make(map[string]asset.Pair),
		controllers: make(map[string]*Controller),
		inbox:       make(chan any, cfg.MailboxSize),
	}

	if err := d.recover(); err != nil {
		return nil, err
	}
	for _, p := range cfg.PredefinedPairs {
		if _, ok := d.known[p.Key()]; ok {
			continue
		}
		if _, ok := d.known[p.Reverse().Key()]; ok {
			return nil, fmt.Errorf("predefined pair %s conflicts with known reverse", p)
		}
		if _, err := d.createController(p); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// recover replays the pair lifecycle stream and respawns a
// controller for every pair still alive at the end of it.
func (d *Dispatcher) recover() error {
	type lifecycle struct {
		pair  asset.Pair
		alive bool
	}
	state := make(map[string]lifecycle)

	last, err := wal.Replay(d.cfg.PairsLogDir, 0, func(rec *wal.Record) error {
		var pr pairRecord
		if err := json.Unmarshal(rec.Data, &pr); err != nil {
			return err
		}
		switch rec.Type {
		case wal.RecordBookCreated:
			state[pr.Pair.Key()] = lifecycle{pair: pr.Pair, alive: true}
		case wal.RecordBookDeleted:
			state[pr.Pair.Key()] = lifecycle{pair: pr.Pair, alive: false}
		}
		return nil
	})
	if err != nil {
		return err
	}
	d.seq.Reset(last)

	for _, lc := range state {
		if !lc.alive {
			continue
		}
		if _, err := d.spawn(lc.pair); err != nil {
			return err
		}
	}
	return nil
}

// Run drains the mailbox until ctx is done. One goroutine only.
func (d *Dispatcher) Run() {
	for {
		select {
		case <-d.ctx.Done():
			_ = d.pairsLog.Close()
			return
		case m := <-d.inbox:
			d.handle(m)
		}
	}
}

func (d *Dispatcher) post(m any) {
	select {
	case d.inbox <- m:
	default:
		d.log.Warn("mailbox full, dropping request")
	}
}

func (d *Dispatcher) await(reply chan Response) Response {
	select {
	case r := <-reply:
		return r
	case <-time.After(d.cfg.RequestTimeout):
		return nil
	}
}

// -------------------- public API --------------------

// SubmitOrder routes a new order. A nil response means the engine
// dropped or timed out the request.
func (d *Dispatcher) SubmitOrder(o *order.Order) Response {
	reply := make(chan Response, 1)
	d.post(routeSubmitMsg{order: o, reply: reply})
	return d.await(reply)
}

func (d *Dispatcher) CancelOrder(pair asset.Pair, req *order.CancelRequest) Response {
	reply := make(chan Response, 1)
	d.post(routeCancelMsg{pair: pair, req: req, reply: reply})
	return d.await(reply)
}

func (d *Dispatcher) OrderBook(pair asset.Pair, depth int) Response {
	reply := make(chan Response, 1)
	d.post(routeDepthMsg{pair: pair, depth: depth, reply: reply})
	return d.await(reply)
}

func (d *Dispatcher) DeleteOrderBook(pair asset.Pair) Response {
	reply := make(chan Response, 1)
	d.post(deleteBookMsg{pair: pair, reply: reply})
	return d.await(reply)
}

func (d *Dispatcher) Markets() Response {
	reply := make(chan Response, 1)
	d.post(marketsMsg{reply: reply})
	return d.await(reply)
}

// -------------------- routing --------------------

func (d *Dispatcher) handle(m any) {
	switch msg := m.(type) {
	case routeSubmitMsg:
		pair := msg.order.Pair
		if rej := d.admit(pair); rej != nil {
			msg.reply <- rej
			return
		}
		ctl, err := d.controllerFor(pair, true)
		if err != nil {
			d.log.Error("controller create failed", zap.Error(err))
			msg.reply <- OrderRejected{Message: "internal error"}
			return
		}
		ctl.Submit(msg.order, msg.reply)

	case routeCancelMsg:
		if rej := d.admit(msg.pair); rej != nil {
			msg.reply <- rej
			return
		}
		ctl, _ := d.controllerFor(msg.pair, false)
		if ctl == nil {
			msg.reply <- OrderCancelRejected{Message: "Order not found"}
			return
		}
		ctl.Cancel(msg.req, msg.reply)

	case routeDepthMsg:
		if rej := d.admit(msg.pair); rej != nil {
			msg.reply <- rej
			return
		}
		ctl, _ := d.controllerFor(msg.pair, false)
		if ctl == nil {
			// Unknown pair reads as an empty book.
			msg.reply <- OrderBookView{Pair: msg.pair}
			return
		}
		depthReply := make(chan OrderBookView, 1)
		ctl.Depth(msg.depth, depthReply)
		go func() {
			msg.reply <- <-depthReply
		}()

	case deleteBookMsg:
		d.deleteBook(msg)

	case marketsMsg:
		msg.reply <- MarketsView{
			MatcherPublicKey: d.signer.PublicKey(),
			Markets:          append([]Market(nil), d.markets...),
		}
	}
}

// admit applies the canonical-orientation and asset-existence rules.
// nil means the pair may be routed.
func (d *Dispatcher) admit(p asset.Pair) Response {
	if !p.Valid() {
		return PairRejected{Message: "Invalid asset pair: identical assets"}
	}
	for _, a := range []asset.Asset{p.AmountAsset, p.PriceAsset} {
		if !a.IsNative() && d.ledger.TotalSupply(a) <= 0 {
			return PairRejected{Message: fmt.Sprintf("Unknown asset: %s", a)}
		}
	}

	if _, ok := d.known[p.Key()]; ok {
		return nil
	}
	rev := p.Reverse()
	reject := PairReversed{
		Message:   fmt.Sprintf("Invalid AssetPair ordering, should be reversed: %s", rev),
		Canonical: rev,
	}
	if _, ok := d.known[rev.Key()]; ok {
		return reject
	}

	priceListed := d.isPriceAsset(p.PriceAsset)
	amountListed := d.isPriceAsset(p.AmountAsset)
	switch {
	case priceListed && !amountListed:
		return nil
	case amountListed && !priceListed:
		return reject
	}

	if p.CanonicalByBytes() {
		return nil
	}
	return reject
}

func (d *Dispatcher) isPriceAsset(a asset.Asset) bool {
	for _, pa := range d.cfg.PriceAssets {
		if pa == a {
			return true
		}
	}
	return false
}

// controllerFor returns the pair's controller, creating it when
// create is set.
func (d *Dispatcher) controllerFor(p asset.Pair, create bool) (*Controller, error) {
	if ctl, ok := d.controllers[p.Key()]; ok {
		return ctl, nil
	}
	if !create {
		return nil, nil
	}
	return d.createController(p)
}

// createController persists the lifecycle record first, then spawns;
// recovery replays the record even if the spawn is interrupted.
func (d *Dispatcher) createController(p asset.Pair) (*Controller, error) {
	if err := d.appendPairRecord(wal.RecordBookCreated, p); err != nil {
		return nil, err
	}
	return d.spawn(p)
}

func (d *Dispatcher) spawn(p asset.Pair) (*Controller, error) {
	ctl, err := NewController(
		p,
		d.cfg.Controller,
		d.log,
		filepath.Join(d.cfg.JournalRoot, p.Key()),
		d.snaps,
		d.hist,
		d.ledger,
		d.signer,
		d.relay,
		d.events,
	)
	if err != nil {
		return nil, err
	}
	go ctl.Run(d.ctx)

	d.known[p.Key()] = p
	d.controllers[p.Key()] = ctl
	d.markets = append(d.markets, d.marketFor(p))
	d.log.Info("order book created", zap.String("pair", p.String()))
	return ctl, nil
}

func (d *Dispatcher) marketFor(p asset.Pair) Market {
	name := func(a asset.Asset) (string, uint8) {
		if info, ok := d.ledger.AssetInfo(a); ok {
			return info.Name, info.Decimals
		}
		return a.String(), 8
	}
	an, ad := name(p.AmountAsset)
	pn, pd := name(p.PriceAsset)
	return Market{
		Pair:                p,
		AmountAssetName:     an,
		PriceAssetName:      pn,
		AmountAssetDecimals: ad,
		PriceAssetDecimals:  pd,
		CreatedAt:           time.Now().UnixMilli(),
	}
}

func (d *Dispatcher) appendPairRecord(t wal.RecordType, p asset.Pair) error {
	data, err := json.Marshal(pairRecord{Pair: p, Created: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	return d.pairsLog.Append(wal.NewRecord(t, d.seq.Next(), data))
}

func (d *Dispatcher) deleteBook(msg deleteBookMsg) {
	key := msg.pair.Key()
	ctl, ok := d.controllers[key]
	if !ok {
		msg.reply <- OrderBookView{Pair: msg.pair}
		return
	}

	if err := d.appendPairRecord(wal.RecordBookDeleted, msg.pair); err != nil {
		d.log.Error("tombstone append failed", zap.Error(err))
	}
	done := ctl.Stop(true)
	delete(d.controllers, key)
	delete(d.known, key)
	for i, m := range d.markets {
		if m.Pair.Key() == key {
			d.markets = append(d.markets[:i], d.markets[i+1:]...)
			break
		}
	}

	go func() {
		<-done
		msg.reply <- OrderBookView{Pair: msg.pair}
	}()
}
