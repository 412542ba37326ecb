package exchange

import (
	"fmt"

	"github.com/uhyunpark/hyperspot/pkg/app/core"
	"github.com/uhyunpark/hyperspot/pkg/app/core/ledger"
)

// Audit checks every book's internal ordering and that each balance's Locked
// equals the holds of its owner's resting orders. Run it between submissions;
// a concurrent submission can make it report a transient mismatch.
func (e *Exchange) Audit() error {
	holds := make(map[ledger.Key]int64)
	for id, w := range e.workers {
		if err := w.book.Validate(); err != nil {
			return fmt.Errorf("book %s: %w", id, err)
		}
		inst, err := e.registry.Get(id)
		if err != nil {
			return err
		}
		for _, side := range []core.Side{core.Buy, core.Sell} {
			for _, o := range w.book.Orders(side) {
				asset, amount, err := inst.Hold(o.Side, o.Price, o.Remaining())
				if err != nil {
					return err
				}
				holds[ledger.Key{Owner: o.Owner, Asset: asset}] += amount
			}
		}
	}

	for k, want := range holds {
		if got := e.ledger.BalanceOf(k.Owner, k.Asset).Locked; got != want {
			return fmt.Errorf("%w: %s locked %d, resting orders hold %d", core.ErrInvariantViolation, k, got, want)
		}
	}
	for _, b := range e.ledger.All() {
		if b.Locked != 0 && holds[b.Key()] != b.Locked {
			return fmt.Errorf("%w: %s locked %d, resting orders hold %d", core.ErrInvariantViolation, b.Key(), b.Locked, holds[b.Key()])
		}
	}
	return nil
}
