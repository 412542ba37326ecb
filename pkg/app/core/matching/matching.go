// Package matching plans price-time priority matches against an order book.
//
// Matching is split in two: Match computes a Plan without touching the book,
// and Apply commits a Plan to the book once settlement has been made durable.
// A failed settlement therefore never leaves a partially matched book behind.
package matching

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/uhyunpark/hyperspot/pkg/app/core"
	"github.com/uhyunpark/hyperspot/pkg/app/core/market"
	"github.com/uhyunpark/hyperspot/pkg/app/core/orderbook"
)

// PricePolicy selects which order's limit becomes the trade price
type PricePolicy int8

const (
	// MakerPrice trades at the resting order's price (taker gets price improvement)
	MakerPrice PricePolicy = iota
	// TakerPrice trades at the incoming order's limit
	TakerPrice
)

func (p PricePolicy) String() string {
	switch p {
	case MakerPrice:
		return "maker"
	case TakerPrice:
		return "taker"
	default:
		return "unknown"
	}
}

func ParsePricePolicy(s string) (PricePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "maker":
		return MakerPrice, nil
	case "taker":
		return TakerPrice, nil
	default:
		return 0, fmt.Errorf("unknown price policy %q", s)
	}
}

// Fill is one planned match against a resting order
type Fill struct {
	Maker core.Order // maker state after the fill
	Qty   int64
	Price int64
}

// Plan is the full outcome of matching one incoming order
type Plan struct {
	Taker   core.Order   // final state of the incoming order
	Fills   []Fill       // in production order
	Trades  []core.Trade // one per fill, same order
	Skipped int          // self-owned candidates passed over
}

// Rests reports whether the incoming order goes on the book
func (p *Plan) Rests() bool {
	return p.Taker.Remaining() > 0
}

// Makers returns the final state of every touched resting order
func (p *Plan) Makers() []core.Order {
	out := make([]core.Order, len(p.Fills))
	for i, f := range p.Fills {
		out[i] = f.Maker
	}
	return out
}

// Funds reads available balances
type Funds interface {
	Available(owner, asset string) int64
}

// Engine plans matches. It holds no book state and is safe to share.
type Engine struct {
	Policy PricePolicy
	NewID  func() string
	Now    func() int64 // Unix nanoseconds
}

func NewEngine(policy PricePolicy, now func() int64) *Engine {
	return &Engine{
		Policy: policy,
		NewID:  uuid.NewString,
		Now:    now,
	}
}

// Precheck rejects an order whose owner cannot cover it: a Buy needs
// qty × limit of the quote asset available, a Sell needs qty of the base asset.
func Precheck(o core.Order, inst market.Instrument, funds Funds) error {
	asset, need, err := inst.Hold(o.Side, o.Price, o.Qty)
	if err != nil {
		return err
	}
	if have := funds.Available(o.Owner, asset); have < need {
		return fmt.Errorf("%w: %s has %d %s available, order needs %d", core.ErrInsufficientFunds, o.Owner, have, asset, need)
	}
	return nil
}

// crosses reports whether a resting price satisfies the incoming limit
func crosses(taker *core.Order, makerPrice int64) bool {
	if taker.Side == core.Buy {
		return makerPrice <= taker.Price
	}
	return makerPrice >= taker.Price
}

// Match plans the incoming order against the opposite side of the book.
// Resting orders owned by the incoming order's owner are skipped, not
// matched. lastTradeSeq is the instrument's last committed trade sequence.
// The book is only read.
func (e *Engine) Match(incoming core.Order, book *orderbook.OrderBook, lastTradeSeq uint64) Plan {
	plan := Plan{Taker: incoming}
	taker := &plan.Taker
	now := e.Now()

	for maker := range book.BestCandidates(incoming.Side.Opposite()) {
		if taker.Remaining() == 0 {
			break
		}
		// Candidates are in price order: the first one that does not cross
		// means no later one does either
		if !crosses(taker, maker.Price) {
			break
		}
		if maker.Owner == taker.Owner {
			plan.Skipped++
			continue
		}

		qty := core.Min(taker.Remaining(), maker.Remaining())
		price := maker.Price
		if e.Policy == TakerPrice {
			price = taker.Price
		}

		m := *maker
		m.Filled += qty
		m.Status = core.StatusOf(m.Filled, m.Qty)
		taker.Filled += qty
		taker.Status = core.StatusOf(taker.Filled, taker.Qty)

		plan.Fills = append(plan.Fills, Fill{Maker: m, Qty: qty, Price: price})
		plan.Trades = append(plan.Trades, e.trade(taker, &m, qty, price, lastTradeSeq+uint64(len(plan.Trades))+1, now))
	}

	return plan
}

func (e *Engine) trade(taker, maker *core.Order, qty, price int64, seq uint64, ts int64) core.Trade {
	t := core.Trade{
		ID:         e.NewID(),
		Instrument: taker.Instrument,
		Seq:        seq,
		TakerSide:  taker.Side,
		Price:      price,
		Qty:        qty,
		Timestamp:  ts,
	}
	buy, sell := taker, maker
	if taker.Side == core.Sell {
		buy, sell = maker, taker
	}
	t.Buyer, t.BuyOrderID = buy.Owner, buy.ID
	t.Seller, t.SellOrderID = sell.Owner, sell.ID
	return t
}

// Apply commits a plan to the book: makers are filled (and removed when
// filled), and a taker with remaining quantity is inserted as resting.
func Apply(plan Plan, book *orderbook.OrderBook) {
	for _, f := range plan.Fills {
		got := book.Fill(f.Maker.ID, f.Qty)
		if got.Filled != f.Maker.Filled {
			panic(fmt.Sprintf("matching: maker %s filled %d after apply, plan says %d", f.Maker.ID, got.Filled, f.Maker.Filled))
		}
	}
	if plan.Rests() {
		book.Insert(plan.Taker)
	}
}
