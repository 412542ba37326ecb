package ledger

import (
	"fmt"
	"sort"
	"sync"

	"github.com/uhyunpark/hyperspot/pkg/app/core"
)

// Tx stages balance changes over a locked set of keys
type Tx struct {
	ledger *Ledger
	owned  []Key
	locks  []*sync.Mutex
	staged map[Key]Balance

	committed bool
	released  bool
}

func (tx *Tx) owns(k Key) bool {
	for _, o := range tx.owned {
		if o == k {
			return true
		}
	}
	return false
}

// Get returns the staged balance, or the committed one if untouched
func (tx *Tx) Get(k Key) Balance {
	if b, ok := tx.staged[k]; ok {
		return b
	}
	tx.ledger.mu.RLock()
	defer tx.ledger.mu.RUnlock()
	return tx.ledger.get(k)
}

// Apply stages d. A delta that would break a balance invariant is refused and
// leaves the staged state unchanged.
func (tx *Tx) Apply(d Delta) error {
	k := d.Key()
	if !tx.owns(k) {
		return fmt.Errorf("%w: delta on %s outside transaction keys", core.ErrInvariantViolation, k)
	}
	if tx.committed || tx.released {
		return fmt.Errorf("%w: apply on finished transaction", core.ErrInvariantViolation)
	}

	b := tx.Get(k)
	total, err := core.Add(b.Total, d.Total)
	if err != nil {
		return err
	}
	locked, err := core.Add(b.Locked, d.Locked)
	if err != nil {
		return err
	}
	b.Total, b.Locked = total, locked
	if err := b.Validate(); err != nil {
		return err
	}
	tx.staged[k] = b
	return nil
}

// Changes returns every staged balance sorted by key
func (tx *Tx) Changes() []Balance {
	out := make([]Balance, 0, len(tx.staged))
	for _, b := range tx.staged {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i].Key(), out[j].Key()) })
	return out
}

// Commit publishes all staged balances at once. Call it only after the
// changes are durable.
func (tx *Tx) Commit() {
	if tx.committed || tx.released {
		panic("ledger: commit on finished transaction")
	}
	tx.ledger.mu.Lock()
	for k, b := range tx.staged {
		tx.ledger.balances[k] = b
	}
	tx.ledger.mu.Unlock()
	tx.committed = true
}

// Release unlocks the keys. Uncommitted changes are discarded. Safe to call twice.
func (tx *Tx) Release() {
	if tx.released {
		return
	}
	tx.released = true
	for i := len(tx.locks) - 1; i >= 0; i-- {
		tx.locks[i].Unlock()
	}
}
