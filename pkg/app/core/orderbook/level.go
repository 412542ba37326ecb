package orderbook

import (
	"sort"

	"github.com/google/btree"

	"github.com/uhyunpark/hyperspot/pkg/app/core"
)

// level is a FIFO queue of resting orders at one price
type level struct {
	price  int64
	orders []*core.Order
}

// before reports whether a has time priority over b within a level.
// Seq is monotonic per instrument; the id makes the order total.
func before(a, b *core.Order) bool {
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.ID < b.ID
}

// enqueue keeps the level in time priority. Live submissions always append;
// out of order inserts only happen while rebuilding from the store.
func (l *level) enqueue(o *core.Order) {
	n := len(l.orders)
	if n == 0 || before(l.orders[n-1], o) {
		l.orders = append(l.orders, o)
		return
	}
	i := sort.Search(n, func(i int) bool { return before(o, l.orders[i]) })
	l.orders = append(l.orders, nil)
	copy(l.orders[i+1:], l.orders[i:])
	l.orders[i] = o
}

func (l *level) remove(id string) bool {
	for i, o := range l.orders {
		if o.ID == id {
			l.orders = append(l.orders[:i], l.orders[i+1:]...)
			return true
		}
	}
	return false
}

func (l *level) qty() int64 {
	var total int64
	for _, o := range l.orders {
		total += o.Remaining()
	}
	return total
}

// Asks ascend by price, bids descend, so Ascend always walks best first
func newSide(side core.Side) *btree.BTreeG[*level] {
	if side == core.Buy {
		return btree.NewG(8, func(a, b *level) bool { return a.price > b.price })
	}
	return btree.NewG(8, func(a, b *level) bool { return a.price < b.price })
}
