package matching

import (
	"errors"
	"fmt"
	"testing"

	"github.com/uhyunpark/hyperspot/pkg/app/core"
	"github.com/uhyunpark/hyperspot/pkg/app/core/market"
	"github.com/uhyunpark/hyperspot/pkg/app/core/orderbook"
)

func newTestEngine(policy PricePolicy) *Engine {
	n := 0
	e := NewEngine(policy, func() int64 { return 1_000 })
	e.NewID = func() string {
		n++
		return fmt.Sprintf("t%d", n)
	}
	return e
}

func resting(id, owner string, side core.Side, price, qty int64, seq uint64) core.Order {
	return core.Order{ID: id, Instrument: "btc", Owner: owner, Side: side, Price: price, Qty: qty, Seq: seq}
}

func TestMatchEmptyBook(t *testing.T) {
	book := orderbook.NewOrderBook("btc")
	e := newTestEngine(MakerPrice)

	plan := e.Match(resting("b", "B", core.Buy, 500, 10, 1), book, 0)
	if len(plan.Trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(plan.Trades))
	}
	if plan.Taker.Status != core.OrderPending || !plan.Rests() {
		t.Errorf("taker = %+v, want pending and resting", plan.Taker)
	}
}

func TestMatchMakerPriceImprovement(t *testing.T) {
	book := orderbook.NewOrderBook("btc")
	book.Insert(resting("s", "S", core.Sell, 400, 5, 1))
	e := newTestEngine(MakerPrice)

	plan := e.Match(resting("b", "B", core.Buy, 500, 10, 2), book, 7)
	if len(plan.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(plan.Trades))
	}
	tr := plan.Trades[0]
	if tr.Qty != 5 || tr.Price != 400 || tr.Buyer != "B" || tr.Seller != "S" || tr.Seq != 8 {
		t.Errorf("trade = %+v", tr)
	}
	if tr.BuyOrderID != "b" || tr.SellOrderID != "s" || tr.TakerSide != core.Buy {
		t.Errorf("trade order refs = %+v", tr)
	}
	if plan.Taker.Status != core.OrderPartiallyFilled || plan.Taker.Remaining() != 5 {
		t.Errorf("taker = %+v", plan.Taker)
	}
	if plan.Fills[0].Maker.Status != core.OrderFilled {
		t.Errorf("maker status = %s", plan.Fills[0].Maker.Status)
	}

	// Planning does not touch the book
	if o, ok := book.Get("s"); !ok || o.Filled != 0 {
		t.Errorf("book mutated by Match: %+v %v", o, ok)
	}
}

func TestMatchTakerPricePolicy(t *testing.T) {
	book := orderbook.NewOrderBook("btc")
	book.Insert(resting("s", "S", core.Sell, 400, 5, 1))
	e := newTestEngine(TakerPrice)

	plan := e.Match(resting("b", "B", core.Buy, 500, 5, 2), book, 0)
	if len(plan.Trades) != 1 || plan.Trades[0].Price != 500 {
		t.Fatalf("trades = %+v, want one at 500", plan.Trades)
	}
}

func TestMatchTimePriority(t *testing.T) {
	book := orderbook.NewOrderBook("btc")
	book.Insert(resting("s1", "S1", core.Sell, 400, 3, 1))
	book.Insert(resting("s2", "S2", core.Sell, 400, 3, 2))
	e := newTestEngine(MakerPrice)

	plan := e.Match(resting("b", "B", core.Buy, 500, 5, 3), book, 0)
	if len(plan.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(plan.Trades))
	}
	if plan.Trades[0].SellOrderID != "s1" || plan.Trades[0].Qty != 3 {
		t.Errorf("trade 1 = %+v, want s1 x3", plan.Trades[0])
	}
	if plan.Trades[1].SellOrderID != "s2" || plan.Trades[1].Qty != 2 {
		t.Errorf("trade 2 = %+v, want s2 x2", plan.Trades[1])
	}
	if plan.Taker.Status != core.OrderFilled || plan.Rests() {
		t.Errorf("taker = %+v, want filled", plan.Taker)
	}

	Apply(plan, book)
	if _, ok := book.Get("s1"); ok {
		t.Error("s1 should be removed")
	}
	s2, ok := book.Get("s2")
	if !ok || s2.Remaining() != 1 || s2.Status != core.OrderPartiallyFilled {
		t.Errorf("s2 = %+v, %v", s2, ok)
	}
	if _, ok := book.Get("b"); ok {
		t.Error("filled taker must not rest")
	}
}

func TestMatchSkipsSelfOrders(t *testing.T) {
	book := orderbook.NewOrderBook("btc")
	book.Insert(resting("own", "A", core.Sell, 400, 5, 1))
	book.Insert(resting("other", "C", core.Sell, 450, 2, 2))
	e := newTestEngine(MakerPrice)

	plan := e.Match(resting("b", "A", core.Buy, 500, 5, 3), book, 0)
	if plan.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", plan.Skipped)
	}
	if len(plan.Trades) != 1 || plan.Trades[0].SellOrderID != "other" {
		t.Fatalf("trades = %+v, want only other", plan.Trades)
	}

	Apply(plan, book)
	if o, ok := book.Get("own"); !ok || o.Filled != 0 {
		t.Errorf("self order touched: %+v %v", o, ok)
	}
	if o, ok := book.Get("b"); !ok || o.Remaining() != 3 {
		t.Errorf("taker should rest with 3, got %+v %v", o, ok)
	}
}

func TestMatchStopsAtLimit(t *testing.T) {
	book := orderbook.NewOrderBook("btc")
	book.Insert(resting("b1", "B1", core.Buy, 500, 2, 1))
	book.Insert(resting("b2", "B2", core.Buy, 450, 2, 2))
	book.Insert(resting("b3", "B3", core.Buy, 300, 2, 3))
	e := newTestEngine(MakerPrice)

	plan := e.Match(resting("s", "S", core.Sell, 450, 10, 4), book, 0)
	if len(plan.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(plan.Trades))
	}
	if plan.Trades[0].Price != 500 || plan.Trades[1].Price != 450 {
		t.Errorf("prices = %d, %d", plan.Trades[0].Price, plan.Trades[1].Price)
	}
	if plan.Taker.Remaining() != 6 {
		t.Errorf("remaining = %d, want 6", plan.Taker.Remaining())
	}
}

type fundsMap map[string]int64

func (f fundsMap) Available(owner, asset string) int64 { return f[owner+"/"+asset] }

func TestPrecheck(t *testing.T) {
	inst, _ := market.NewInstrument("btc", "btc", "usd", 0, 2)
	funds := fundsMap{"B/usd": 4999, "S/btc": 5}

	err := Precheck(resting("b", "B", core.Buy, 500, 10, 1), *inst, funds)
	if !errors.Is(err, core.ErrInsufficientFunds) {
		t.Errorf("buy precheck: got %v", err)
	}
	funds["B/usd"] = 5000
	if err := Precheck(resting("b", "B", core.Buy, 500, 10, 1), *inst, funds); err != nil {
		t.Errorf("buy precheck with exact funds: %v", err)
	}
	if err := Precheck(resting("s", "S", core.Sell, 1, 5, 1), *inst, funds); err != nil {
		t.Errorf("sell precheck: %v", err)
	}
	if err := Precheck(resting("s", "S", core.Sell, 1, 6, 1), *inst, funds); !errors.Is(err, core.ErrInsufficientFunds) {
		t.Errorf("sell precheck over balance: got %v", err)
	}
}
