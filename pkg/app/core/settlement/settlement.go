// Package settlement turns planned trades into balance transfers and commits
// them, together with the order and trade records, as one durable unit.
package settlement

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/uhyunpark/hyperspot/pkg/app/core"
	"github.com/uhyunpark/hyperspot/pkg/app/core/ledger"
	"github.com/uhyunpark/hyperspot/pkg/app/core/market"
)

// Batch is an atomic write: nothing is visible until Commit succeeds
type Batch interface {
	PutBalance(b ledger.Balance) error
	PutOrder(o core.Order) error
	PutTrade(t core.Trade) error
	PutSequence(instrument string, orderSeq, tradeSeq uint64) error
	Commit() error
	Close() error
}

// Store opens batches
type Store interface {
	NewBatch() Batch
}

// Unit is everything one submission changes
type Unit struct {
	Instrument market.Instrument
	Taker      core.Order   // final state of the incoming order
	Makers     []core.Order // final state of every touched resting order
	Trades     []core.Trade
	OrderSeq   uint64 // instrument sequences after this unit
	TradeSeq   uint64
}

type Engine struct {
	ledger *ledger.Ledger
	store  Store
	log    *zap.SugaredLogger
}

func NewEngine(l *ledger.Ledger, store Store, log *zap.SugaredLogger) *Engine {
	return &Engine{ledger: l, store: store, log: log}
}

// HoldDelta locks what a new order may consume
func HoldDelta(inst market.Instrument, o core.Order) (ledger.Delta, error) {
	asset, amount, err := inst.Hold(o.Side, o.Price, o.Qty)
	if err != nil {
		return ledger.Delta{}, err
	}
	return ledger.Delta{Owner: o.Owner, Asset: asset, Locked: amount}, nil
}

// TradeDeltas returns the transfers of one trade: quote moves buyer to
// seller by qty × price, base moves seller to buyer by qty. The buyer's hold
// is released at buyLimit (the buy order's limit), the seller's at qty.
func TradeDeltas(inst market.Instrument, t core.Trade, buyLimit int64) ([]ledger.Delta, error) {
	if t.Buyer == t.Seller {
		return nil, fmt.Errorf("%w: trade %s matches %s against itself", core.ErrInvariantViolation, t.ID, t.Buyer)
	}
	if t.Qty <= 0 || t.Price <= 0 || t.Price > buyLimit {
		return nil, fmt.Errorf("%w: trade %s qty=%d price=%d buy limit=%d", core.ErrInvariantViolation, t.ID, t.Qty, t.Price, buyLimit)
	}
	notional, err := t.Notional()
	if err != nil {
		return nil, err
	}
	held, err := core.Mul(t.Qty, buyLimit)
	if err != nil {
		return nil, err
	}

	return []ledger.Delta{
		{Owner: t.Buyer, Asset: inst.QuoteAsset, Total: -notional, Locked: -held},
		{Owner: t.Seller, Asset: inst.QuoteAsset, Total: notional},
		{Owner: t.Seller, Asset: inst.BaseAsset, Total: -t.Qty, Locked: -t.Qty},
		{Owner: t.Buyer, Asset: inst.BaseAsset, Total: t.Qty},
	}, nil
}

// deltas builds the hold for the taker followed by every trade's transfers
func (u *Unit) deltas() ([]ledger.Delta, error) {
	hold, err := HoldDelta(u.Instrument, u.Taker)
	if err != nil {
		return nil, err
	}
	out := []ledger.Delta{hold}

	limits := map[string]int64{u.Taker.ID: u.Taker.Price}
	for _, m := range u.Makers {
		limits[m.ID] = m.Price
	}
	for _, t := range u.Trades {
		limit, ok := limits[t.BuyOrderID]
		if !ok {
			return nil, fmt.Errorf("%w: trade %s references unknown buy order %s", core.ErrInvariantViolation, t.ID, t.BuyOrderID)
		}
		ds, err := TradeDeltas(u.Instrument, t, limit)
		if err != nil {
			return nil, err
		}
		out = append(out, ds...)
	}
	return out, nil
}

// Settle applies a unit all-or-nothing:
//  1. lock every touched balance key
//  2. check the taker can fund its hold (ErrInsufficientFunds)
//  3. stage the hold and every trade's deltas (ErrInvariantViolation)
//  4. write balances, orders, trades and sequences in one batch (ErrPersistence)
//  5. publish the staged balances
//
// Any error leaves ledger and store as they were.
func (e *Engine) Settle(u Unit) error {
	if err := u.Taker.Validate(); err != nil {
		return err
	}
	for i := range u.Makers {
		if err := u.Makers[i].Validate(); err != nil {
			return err
		}
	}

	deltas, err := u.deltas()
	if err != nil {
		return err
	}
	keys := make([]ledger.Key, len(deltas))
	for i, d := range deltas {
		keys[i] = d.Key()
	}

	tx := e.ledger.Begin(keys...)
	defer tx.Release()

	// Authoritative funds check, under the key lock
	hold := deltas[0]
	if avail := tx.Get(hold.Key()).Available(); avail < hold.Locked {
		return fmt.Errorf("%w: %s has %d %s available, order needs %d", core.ErrInsufficientFunds, hold.Owner, avail, hold.Asset, hold.Locked)
	}

	for _, d := range deltas {
		if err := tx.Apply(d); err != nil {
			e.log.Errorw("settlement_invariant_violation",
				"instrument", u.Instrument.ID,
				"order_id", u.Taker.ID,
				"owner", d.Owner,
				"asset", d.Asset,
				"err", err)
			return err
		}
	}

	if err := e.write(tx, u); err != nil {
		e.log.Errorw("settlement_persist_failed",
			"instrument", u.Instrument.ID,
			"order_id", u.Taker.ID,
			"trades", len(u.Trades),
			"err", err)
		return fmt.Errorf("%w: %v", core.ErrPersistence, err)
	}

	tx.Commit()
	return nil
}

func (e *Engine) write(tx *ledger.Tx, u Unit) error {
	b := e.store.NewBatch()
	defer b.Close()

	for _, bal := range tx.Changes() {
		if err := b.PutBalance(bal); err != nil {
			return err
		}
	}
	if err := b.PutOrder(u.Taker); err != nil {
		return err
	}
	for _, m := range u.Makers {
		if err := b.PutOrder(m); err != nil {
			return err
		}
	}
	for _, t := range u.Trades {
		if err := b.PutTrade(t); err != nil {
			return err
		}
	}
	if err := b.PutSequence(u.Instrument.ID, u.OrderSeq, u.TradeSeq); err != nil {
		return err
	}
	return b.Commit()
}
