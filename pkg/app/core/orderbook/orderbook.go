package orderbook

import (
	"fmt"
	"iter"
	"sync"

	"github.com/google/btree"

	"github.com/uhyunpark/hyperspot/pkg/app/core"
)

type PriceLevel struct {
	Price  int64
	Qty    int64 // total remaining qty at this price level
	Orders int
}

// OrderBook holds the resting orders of one instrument.
//
// The book has a single writer (the instrument's worker). Mutators take the
// write lock so that snapshot readers on other goroutines stay consistent;
// BestCandidates is only valid on the writer's goroutine.
type OrderBook struct {
	mu sync.RWMutex

	instrument string
	bids       *btree.BTreeG[*level]
	asks       *btree.BTreeG[*level]

	index map[string]*core.Order // order ID -> resting order
}

func NewOrderBook(instrument string) *OrderBook {
	return &OrderBook{
		instrument: instrument,
		bids:       newSide(core.Buy),
		asks:       newSide(core.Sell),
		index:      make(map[string]*core.Order),
	}
}

func (ob *OrderBook) Instrument() string { return ob.instrument }

func (ob *OrderBook) side(s core.Side) *btree.BTreeG[*level] {
	if s == core.Buy {
		return ob.bids
	}
	return ob.asks
}

// Insert adds a Pending or PartiallyFilled order to its side.
// The book keeps its own copy.
func (ob *OrderBook) Insert(o core.Order) {
	if o.Instrument != ob.instrument {
		panic(fmt.Sprintf("orderbook %s: insert of order %s for instrument %s", ob.instrument, o.ID, o.Instrument))
	}
	if o.Remaining() <= 0 || o.Status == core.OrderFilled {
		panic(fmt.Sprintf("orderbook %s: insert of filled order %s", ob.instrument, o.ID))
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	if _, exists := ob.index[o.ID]; exists {
		panic(fmt.Sprintf("orderbook %s: duplicate order %s", ob.instrument, o.ID))
	}

	cp := o
	tree := ob.side(o.Side)
	lvl, ok := tree.Get(&level{price: o.Price})
	if !ok {
		// New price level
		lvl = &level{price: o.Price}
		tree.ReplaceOrInsert(lvl)
	}
	lvl.enqueue(&cp)
	ob.index[o.ID] = &cp
}

// Remove deletes a resting order. An unknown id is a contract violation.
func (ob *OrderBook) Remove(id string) core.Order {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.removeLocked(id)
}

func (ob *OrderBook) removeLocked(id string) core.Order {
	o, ok := ob.index[id]
	if !ok {
		panic(fmt.Sprintf("orderbook %s: remove of unknown order %s", ob.instrument, id))
	}

	tree := ob.side(o.Side)
	lvl, ok := tree.Get(&level{price: o.Price})
	if !ok || !lvl.remove(id) {
		panic(fmt.Sprintf("orderbook %s: order %s indexed but missing from level %d", ob.instrument, id, o.Price))
	}
	// If price level is now empty, drop it from the tree
	if len(lvl.orders) == 0 {
		tree.Delete(lvl)
	}
	delete(ob.index, id)
	return *o
}

// Fill applies a planned fill of qty to a resting order and returns the
// order's new state. A fully filled order is removed from the book.
func (ob *OrderBook) Fill(id string, qty int64) core.Order {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	o, ok := ob.index[id]
	if !ok {
		panic(fmt.Sprintf("orderbook %s: fill of unknown order %s", ob.instrument, id))
	}
	if qty <= 0 || qty > o.Remaining() {
		panic(fmt.Sprintf("orderbook %s: fill of %d exceeds remaining %d of order %s", ob.instrument, qty, o.Remaining(), id))
	}

	o.Filled += qty
	o.Status = core.StatusOf(o.Filled, o.Qty)
	if o.Status == core.OrderFilled {
		return ob.removeLocked(id)
	}
	return *o
}

// Get returns a copy of a resting order
func (ob *OrderBook) Get(id string) (core.Order, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	o, ok := ob.index[id]
	if !ok {
		return core.Order{}, false
	}
	return *o, true
}

// BestCandidates yields resting orders on side s in price-time priority:
// best price first, then ascending sequence, then id. The sequence is lazy
// and can be ranged over again from the start. Orders must not be modified
// through the yielded pointers, and the book must not change during ranging.
func (ob *OrderBook) BestCandidates(s core.Side) iter.Seq[*core.Order] {
	tree := ob.side(s)
	return func(yield func(*core.Order) bool) {
		tree.Ascend(func(lvl *level) bool {
			for _, o := range lvl.orders {
				if !yield(o) {
					return false
				}
			}
			return true
		})
	}
}

// Orders returns copies of the resting orders on side s in priority order
func (ob *OrderBook) Orders(s core.Side) []core.Order {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	var out []core.Order
	for o := range ob.BestCandidates(s) {
		out = append(out, *o)
	}
	return out
}

// Levels returns aggregated price levels on side s, best price first
func (ob *OrderBook) Levels(s core.Side) []PriceLevel {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	var levels []PriceLevel
	ob.side(s).Ascend(func(lvl *level) bool {
		levels = append(levels, PriceLevel{Price: lvl.price, Qty: lvl.qty(), Orders: len(lvl.orders)})
		return true
	})
	return levels
}

// BestBid returns the highest bid price
func (ob *OrderBook) BestBid() (int64, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	lvl, ok := ob.bids.Min()
	if !ok {
		return 0, false
	}
	return lvl.price, true
}

// BestAsk returns the lowest ask price
func (ob *OrderBook) BestAsk() (int64, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	lvl, ok := ob.asks.Min()
	if !ok {
		return 0, false
	}
	return lvl.price, true
}

// Len returns the number of resting orders on side s
func (ob *OrderBook) Len(s core.Side) int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	n := 0
	ob.side(s).Ascend(func(lvl *level) bool {
		n += len(lvl.orders)
		return true
	})
	return n
}

// Validate checks that every level is sorted in time priority and every
// indexed order is where the index says. Used after rebuilds and in tests.
func (ob *OrderBook) Validate() error {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	seen := 0
	var err error
	for _, s := range []core.Side{core.Buy, core.Sell} {
		ob.side(s).Ascend(func(lvl *level) bool {
			for i, o := range lvl.orders {
				if o.Price != lvl.price || o.Side != s {
					err = fmt.Errorf("%w: order %s misplaced at level %d", core.ErrInvariantViolation, o.ID, lvl.price)
					return false
				}
				if i > 0 && !before(lvl.orders[i-1], o) {
					err = fmt.Errorf("%w: level %d out of time priority at %s", core.ErrInvariantViolation, lvl.price, o.ID)
					return false
				}
				if ob.index[o.ID] != o {
					err = fmt.Errorf("%w: order %s not indexed", core.ErrInvariantViolation, o.ID)
					return false
				}
				seen++
			}
			return true
		})
		if err != nil {
			return err
		}
	}
	if seen != len(ob.index) {
		return fmt.Errorf("%w: index holds %d orders, levels hold %d", core.ErrInvariantViolation, len(ob.index), seen)
	}
	return nil
}
