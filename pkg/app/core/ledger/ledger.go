// Package ledger is the per-owner, per-asset balance store.
//
// Balances only change through a Tx. A Tx locks the keys it touches in sorted
// order, so transactions on different instruments that share an owner's asset
// serialize without deadlocking, and all of a Tx's changes become visible to
// readers in one step on Commit.
package ledger

import (
	"fmt"
	"sort"
	"sync"

	"github.com/uhyunpark/hyperspot/pkg/app/core"
)

// Store persists balances
type Store interface {
	LoadBalances() ([]Balance, error)
	SaveBalances(bs []Balance) error
}

type Ledger struct {
	mu       sync.RWMutex // guards balances; held for writing only inside Commit
	balances map[Key]Balance

	keysMu sync.Mutex
	keys   map[Key]*sync.Mutex // per-key transaction locks

	store Store
}

// New creates an empty ledger backed by store
func New(store Store) *Ledger {
	return &Ledger{
		balances: make(map[Key]Balance),
		keys:     make(map[Key]*sync.Mutex),
		store:    store,
	}
}

// Load replaces in-memory balances with the store's
func (l *Ledger) Load() error {
	bs, err := l.store.LoadBalances()
	if err != nil {
		return fmt.Errorf("%w: load balances: %v", core.ErrPersistence, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances = make(map[Key]Balance, len(bs))
	for _, b := range bs {
		if err := b.Validate(); err != nil {
			return err
		}
		l.balances[b.Key()] = b
	}
	return nil
}

// BalanceOf returns the committed balance; zero if the owner never held the asset
func (l *Ledger) BalanceOf(owner, asset string) Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.get(Key{Owner: owner, Asset: asset})
}

// Available returns the committed available balance
func (l *Ledger) Available(owner, asset string) int64 {
	return l.BalanceOf(owner, asset).Available()
}

// Balances returns all balances of an owner sorted by asset
func (l *Ledger) Balances(owner string) []Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Balance
	for k, b := range l.balances {
		if k.Owner == owner {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

// All returns every balance sorted by owner, then asset
func (l *Ledger) All() []Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Balance, 0, len(l.balances))
	for _, b := range l.balances {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i].Key(), out[j].Key()) })
	return out
}

// Totals sums Total per asset across all owners
func (l *Ledger) Totals() map[string]int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]int64)
	for k, b := range l.balances {
		out[k.Asset] += b.Total
	}
	return out
}

// get assumes mu is held
func (l *Ledger) get(k Key) Balance {
	if b, ok := l.balances[k]; ok {
		return b
	}
	return Balance{Owner: k.Owner, Asset: k.Asset}
}

func (l *Ledger) keyLock(k Key) *sync.Mutex {
	l.keysMu.Lock()
	defer l.keysMu.Unlock()
	m, ok := l.keys[k]
	if !ok {
		m = &sync.Mutex{}
		l.keys[k] = m
	}
	return m
}

// Begin opens a transaction over keys, blocking until every key is free.
// Callers must Release the transaction.
func (l *Ledger) Begin(keys ...Key) *Tx {
	sorted := make([]Key, 0, len(keys))
	seen := make(map[Key]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		sorted = append(sorted, k)
	}
	sort.Slice(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })

	tx := &Tx{ledger: l, staged: make(map[Key]Balance, len(sorted))}
	for _, k := range sorted {
		m := l.keyLock(k)
		m.Lock()
		tx.locks = append(tx.locks, m)
		tx.owned = append(tx.owned, k)
	}
	return tx
}

// Deposit credits an owner's asset and persists it
func (l *Ledger) Deposit(owner, asset string, amount int64) (Balance, error) {
	if amount <= 0 {
		return Balance{}, fmt.Errorf("%w: deposit amount must be positive: %d", core.ErrValidation, amount)
	}
	return l.transfer(owner, asset, amount)
}

// Withdraw debits an owner's available asset and persists it
func (l *Ledger) Withdraw(owner, asset string, amount int64) (Balance, error) {
	if amount <= 0 {
		return Balance{}, fmt.Errorf("%w: withdraw amount must be positive: %d", core.ErrValidation, amount)
	}
	return l.transfer(owner, asset, -amount)
}

func (l *Ledger) transfer(owner, asset string, amount int64) (Balance, error) {
	k := Key{Owner: owner, Asset: asset}
	tx := l.Begin(k)
	defer tx.Release()

	cur := tx.Get(k)
	if amount < 0 && cur.Available() < -amount {
		return cur, fmt.Errorf("%w: have %d, need %d (locked: %d)", core.ErrInsufficientFunds, cur.Available(), -amount, cur.Locked)
	}
	if err := tx.Apply(Delta{Owner: owner, Asset: asset, Total: amount}); err != nil {
		return cur, err
	}
	if err := l.store.SaveBalances(tx.Changes()); err != nil {
		return cur, fmt.Errorf("%w: save balance: %v", core.ErrPersistence, err)
	}
	tx.Commit()
	return tx.Get(k), nil
}
