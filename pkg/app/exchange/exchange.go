// Package exchange is the order submission pipeline.
//
// Each instrument has one worker goroutine that owns its order book. A
// submission is validated, queued on the worker's channel (queue order is
// matching order), planned against the book, settled as one durable unit and
// only then applied to the book. Submissions on different instruments run in
// parallel; the ledger serializes balances they share.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/uhyunpark/hyperspot/pkg/app/core"
	"github.com/uhyunpark/hyperspot/pkg/app/core/ledger"
	"github.com/uhyunpark/hyperspot/pkg/app/core/market"
	"github.com/uhyunpark/hyperspot/pkg/app/core/matching"
	"github.com/uhyunpark/hyperspot/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperspot/pkg/app/core/settlement"
	"github.com/uhyunpark/hyperspot/pkg/metrics"
	"github.com/uhyunpark/hyperspot/pkg/util"
)

// ErrClosed is returned for submissions after Close
var ErrClosed = errors.New("exchange closed")

// Store is the durable state behind the exchange
type Store interface {
	ledger.Store
	settlement.Store

	LoadRestingOrders(instrument string) ([]core.Order, error)
	LoadSequence(instrument string) (orderSeq, tradeSeq uint64, err error)
	LoadOrder(orderID string) (core.Order, bool, error)
	LoadOrdersByOwner(owner string, limit int) ([]core.Order, error)
	LoadRecentTrades(instrument string, limit int) ([]core.Trade, error)
	LoadTradesByOwner(owner string, limit int) ([]core.Trade, error)
}

type Config struct {
	PricePolicy matching.PricePolicy
	QueueDepth  int        // per-instrument submission buffer
	Clock       util.Clock // defaults to util.RealClock
	Metrics     *metrics.Metrics
}

// Request is an order submission
type Request struct {
	Instrument string
	Owner      string
	Side       core.Side
	Price      int64 // quote minor units per lot
	Qty        int64 // lots
}

// Outcome reports the incoming order's final state and the trades it produced
type Outcome struct {
	Order  core.Order
	Trades []core.Trade
}

// Snapshot is a read-only view of one book
type Snapshot struct {
	Instrument string
	Bids       []core.Order // best first
	Asks       []core.Order
	BidLevels  []orderbook.PriceLevel
	AskLevels  []orderbook.PriceLevel
}

type Exchange struct {
	registry *market.Registry
	ledger   *ledger.Ledger
	matcher  *matching.Engine
	settler  *settlement.Engine
	store    Store
	metrics  *metrics.Metrics
	log      *zap.SugaredLogger

	workers map[string]*worker

	mu     sync.RWMutex // guards closed against queue sends
	closed bool
	wg     sync.WaitGroup
}

// New loads balances, rebuilds every registered instrument's book from the
// store and starts the instrument workers.
func New(cfg Config, registry *market.Registry, store Store, log *zap.SugaredLogger) (*Exchange, error) {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 1024
	}
	if cfg.Clock == nil {
		cfg.Clock = util.RealClock{}
	}
	clock := cfg.Clock

	l := ledger.New(store)
	if err := l.Load(); err != nil {
		return nil, err
	}

	matcher := matching.NewEngine(cfg.PricePolicy, func() int64 { return clock.Now().UnixNano() })

	e := &Exchange{
		registry: registry,
		ledger:   l,
		matcher:  matcher,
		settler:  settlement.NewEngine(l, store, log),
		store:    store,
		metrics:  cfg.Metrics,
		log:      log,
		workers:  make(map[string]*worker),
	}

	for _, inst := range registry.List() {
		w, err := e.rebuild(inst, cfg.QueueDepth)
		if err != nil {
			return nil, err
		}
		e.workers[inst.ID] = w
	}

	if err := e.Audit(); err != nil {
		log.Warnw("startup_audit_failed", "err", err)
	}

	for _, w := range e.workers {
		e.wg.Add(1)
		go w.run(&e.wg)
	}

	log.Infow("exchange_started",
		"instruments", len(e.workers),
		"price_policy", cfg.PricePolicy.String(),
		"queue_depth", cfg.QueueDepth)
	return e, nil
}

func (e *Exchange) rebuild(inst market.Instrument, queueDepth int) (*worker, error) {
	resting, err := e.store.LoadRestingOrders(inst.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: load resting orders for %s: %v", core.ErrPersistence, inst.ID, err)
	}
	orderSeq, tradeSeq, err := e.store.LoadSequence(inst.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: load sequence for %s: %v", core.ErrPersistence, inst.ID, err)
	}

	book := orderbook.NewOrderBook(inst.ID)
	for _, o := range resting {
		if err := o.Validate(); err != nil {
			return nil, err
		}
		if o.Instrument != inst.ID || o.IsFilled() || o.Seq > orderSeq {
			return nil, fmt.Errorf("%w: stored resting order %s does not belong on %s book (seq %d, last %d)",
				core.ErrInvariantViolation, o.ID, inst.ID, o.Seq, orderSeq)
		}
		if _, dup := book.Get(o.ID); dup {
			return nil, fmt.Errorf("%w: duplicate resting order %s", core.ErrInvariantViolation, o.ID)
		}
		book.Insert(o)
	}

	e.log.Infow("book_rebuilt",
		"instrument", inst.ID,
		"bids", book.Len(core.Buy),
		"asks", book.Len(core.Sell),
		"order_seq", orderSeq,
		"trade_seq", tradeSeq)

	w := &worker{
		ex:       e,
		id:       inst.ID,
		book:     book,
		jobs:     make(chan job, queueDepth),
		orderSeq: orderSeq,
		tradeSeq: tradeSeq,
	}
	w.reportBook()
	return w, nil
}

// SubmitOrder validates req, waits for admission to the instrument's queue and
// returns once the submission is committed or rejected. ctx bounds admission;
// an admitted submission whose ctx is done before it is dequeued is dropped
// without side effects.
func (e *Exchange) SubmitOrder(ctx context.Context, req Request) (Outcome, error) {
	w, err := e.validate(req)
	if err != nil {
		e.metrics.Submission(req.Instrument, metrics.ResultInvalid)
		return Outcome{}, err
	}

	j := job{ctx: ctx, req: req, reply: make(chan result, 1)}

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return Outcome{}, ErrClosed
	}
	select {
	case w.jobs <- j:
		e.mu.RUnlock()
	case <-ctx.Done():
		e.mu.RUnlock()
		return Outcome{}, ctx.Err()
	}
	e.metrics.QueueDepth(w.id, len(w.jobs))

	r := <-j.reply
	return r.out, r.err
}

func (e *Exchange) validate(req Request) (*worker, error) {
	inst, err := e.registry.Get(req.Instrument)
	if err != nil {
		return nil, err
	}
	if err := market.ValidateID(req.Owner); err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}
	if err := inst.ValidateOrder(req.Side, req.Price, req.Qty); err != nil {
		return nil, err
	}
	w, ok := e.workers[inst.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s registered after startup", core.ErrUnknownInstrument, inst.ID)
	}
	return w, nil
}

// BookSnapshot returns resting orders per side, best first
func (e *Exchange) BookSnapshot(instrument string) (Snapshot, error) {
	w, ok := e.workers[instrument]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", core.ErrUnknownInstrument, instrument)
	}
	return Snapshot{
		Instrument: instrument,
		Bids:       w.book.Orders(core.Buy),
		Asks:       w.book.Orders(core.Sell),
		BidLevels:  w.book.Levels(core.Buy),
		AskLevels:  w.book.Levels(core.Sell),
	}, nil
}

// Instruments lists registered instruments sorted by id
func (e *Exchange) Instruments() []market.Instrument {
	return e.registry.List()
}

// Instrument returns one registered instrument
func (e *Exchange) Instrument(id string) (market.Instrument, error) {
	return e.registry.Get(id)
}

// Close stops admitting submissions, drains the queues and waits for the
// workers. The store stays open.
func (e *Exchange) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for _, w := range e.workers {
		close(w.jobs)
	}
	e.mu.Unlock()

	e.wg.Wait()
	e.log.Infow("exchange_stopped")
}
