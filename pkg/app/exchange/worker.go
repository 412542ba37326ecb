package exchange

import (
	"context"
	"errors"
	"sync"

	"github.com/uhyunpark/hyperspot/pkg/app/core"
	"github.com/uhyunpark/hyperspot/pkg/app/core/matching"
	"github.com/uhyunpark/hyperspot/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperspot/pkg/app/core/settlement"
	"github.com/uhyunpark/hyperspot/pkg/metrics"
)

type job struct {
	ctx   context.Context
	req   Request
	reply chan result
}

type result struct {
	out Outcome
	err error
}

// worker is the single writer of one instrument's book and sequences
type worker struct {
	ex   *Exchange
	id   string
	book *orderbook.OrderBook
	jobs chan job

	// last committed sequences; only touched by run
	orderSeq uint64
	tradeSeq uint64
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()
	for j := range w.jobs {
		out, err := w.process(j.ctx, j.req)
		j.reply <- result{out: out, err: err}
	}
}

func (w *worker) process(ctx context.Context, req Request) (Outcome, error) {
	e := w.ex
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	// Status may have changed while queued
	inst, err := e.registry.Get(w.id)
	if err != nil {
		return Outcome{}, err
	}
	if err := inst.ValidateOrder(req.Side, req.Price, req.Qty); err != nil {
		e.metrics.Submission(w.id, metrics.ResultInvalid)
		return Outcome{}, err
	}

	timer := e.metrics.StartTimer(w.id)
	defer timer.ObserveDuration()

	incoming := core.Order{
		ID:         e.matcher.NewID(),
		Instrument: w.id,
		Owner:      req.Owner,
		Side:       req.Side,
		Price:      req.Price,
		Qty:        req.Qty,
		Status:     core.OrderPending,
		Seq:        w.orderSeq + 1,
		CreatedAt:  e.matcher.Now(),
	}

	// Early rejection; settlement repeats the check under the balance lock
	if err := matching.Precheck(incoming, inst, e.ledger); err != nil {
		e.metrics.Submission(w.id, metrics.ResultInsufficientFunds)
		e.log.Infow("order_rejected",
			"instrument", w.id,
			"owner", req.Owner,
			"side", req.Side.String(),
			"price", req.Price,
			"qty", req.Qty,
			"err", err)
		return Outcome{}, err
	}

	plan := e.matcher.Match(incoming, w.book, w.tradeSeq)
	unit := settlement.Unit{
		Instrument: inst,
		Taker:      plan.Taker,
		Makers:     plan.Makers(),
		Trades:     plan.Trades,
		OrderSeq:   incoming.Seq,
		TradeSeq:   w.tradeSeq + uint64(len(plan.Trades)),
	}
	if err := e.settler.Settle(unit); err != nil {
		e.metrics.Submission(w.id, resultOf(err))
		return Outcome{}, err
	}

	// Durable from here on
	matching.Apply(plan, w.book)
	w.orderSeq, w.tradeSeq = unit.OrderSeq, unit.TradeSeq

	e.metrics.Submission(w.id, metrics.ResultAccepted)
	for _, t := range plan.Trades {
		e.metrics.Trade(w.id, t.Qty)
	}
	w.reportBook()

	fields := []any{
		"instrument", w.id,
		"order_id", plan.Taker.ID,
		"owner", plan.Taker.Owner,
		"side", plan.Taker.Side.String(),
		"price", plan.Taker.Price,
		"qty", plan.Taker.Qty,
		"filled", plan.Taker.Filled,
		"status", plan.Taker.Status.String(),
		"trades", len(plan.Trades),
	}
	if plan.Skipped > 0 {
		fields = append(fields, "self_skipped", plan.Skipped)
	}
	if len(plan.Trades) > 0 {
		e.log.Infow("order_matched", fields...)
	} else {
		e.log.Debugw("order_rested", fields...)
	}

	return Outcome{Order: plan.Taker, Trades: plan.Trades}, nil
}

func (w *worker) reportBook() {
	m := w.ex.metrics
	m.Resting(w.id, core.Buy.String(), w.book.Len(core.Buy))
	m.Resting(w.id, core.Sell.String(), w.book.Len(core.Sell))
	m.QueueDepth(w.id, len(w.jobs))
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return metrics.ResultAccepted
	case core.IsValidation(err):
		return metrics.ResultInvalid
	case errors.Is(err, core.ErrInsufficientFunds):
		return metrics.ResultInsufficientFunds
	case errors.Is(err, core.ErrPersistence):
		return metrics.ResultPersistence
	default:
		return metrics.ResultInvariant
	}
}
