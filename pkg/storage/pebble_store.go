package storage

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/uhyunpark/hyperspot/pkg/app/core"
	"github.com/uhyunpark/hyperspot/pkg/app/core/ledger"
	"github.com/uhyunpark/hyperspot/pkg/app/core/settlement"
)

// PebbleStore persists balances, orders, trades and sequences.
// Writes that belong together go through one Batch.
type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens a Pebble database at the given path
func NewPebbleStore(path string) (*PebbleStore, error) {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(64 << 20), // 64MB cache
		MemTableSize:             32 << 20,
		MaxConcurrentCompactions: func() int { return 2 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10,
	}
	defer opts.Cache.Unref()

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

// NewInMemoryPebbleStore opens a Pebble database on an in-memory filesystem
func NewInMemoryPebbleStore() (*PebbleStore, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory pebble db: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

var (
	_ ledger.Store     = (*PebbleStore)(nil)
	_ settlement.Store = (*PebbleStore)(nil)
)

// ============================================================================
// Batches
// ============================================================================

// Batch collects writes and applies them atomically on Commit
type Batch struct {
	batch *pebble.Batch
}

// NewBatch creates a new batch writer
func (s *PebbleStore) NewBatch() settlement.Batch {
	return &Batch{batch: s.db.NewBatch()}
}

func (b *Batch) PutBalance(bal ledger.Balance) error {
	data, err := encodeJSON(bal)
	if err != nil {
		return fmt.Errorf("failed to marshal balance: %w", err)
	}
	return b.batch.Set(balanceKey(bal.Owner, bal.Asset), data, nil)
}

// PutOrder writes the order's latest state and keeps the resting index in
// step: present while the order has remaining quantity, gone once filled.
func (b *Batch) PutOrder(o core.Order) error {
	data, err := encodeJSON(o)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	if err := b.batch.Set(orderKey(o.ID), data, nil); err != nil {
		return err
	}
	if err := b.batch.Set(ownerOrderKey(o.Owner, o.ID), nil, nil); err != nil {
		return err
	}
	rk := restingKey(o.Instrument, o.Seq, o.ID)
	if o.IsFilled() {
		return b.batch.Delete(rk, nil)
	}
	return b.batch.Set(rk, data, nil)
}

// PutTrade writes the trade under the instrument and under both owners
func (b *Batch) PutTrade(t core.Trade) error {
	data, err := encodeJSON(t)
	if err != nil {
		return fmt.Errorf("failed to marshal trade: %w", err)
	}
	if err := b.batch.Set(tradeKey(t.Instrument, t.Seq), data, nil); err != nil {
		return err
	}
	if err := b.batch.Set(ownerTradeKey(t.Buyer, t.Instrument, t.Seq), data, nil); err != nil {
		return err
	}
	return b.batch.Set(ownerTradeKey(t.Seller, t.Instrument, t.Seq), data, nil)
}

func (b *Batch) PutSequence(instrument string, orderSeq, tradeSeq uint64) error {
	return b.batch.Set(sequenceKey(instrument), encodeSequences(orderSeq, tradeSeq), nil)
}

// Commit writes the batch to Pebble atomically
func (b *Batch) Commit() error {
	return b.batch.Commit(pebble.Sync)
}

// Close releases the batch; uncommitted writes are dropped
func (b *Batch) Close() error {
	return b.batch.Close()
}

// ============================================================================
// Balances
// ============================================================================

// SaveBalances persists balances in one synced batch
func (s *PebbleStore) SaveBalances(bs []ledger.Balance) error {
	b := s.NewBatch()
	defer b.Close()
	for _, bal := range bs {
		if err := b.PutBalance(bal); err != nil {
			return err
		}
	}
	return b.Commit()
}

// LoadBalances loads every balance
func (s *PebbleStore) LoadBalances() ([]ledger.Balance, error) {
	var out []ledger.Balance
	err := s.scan([]byte(prefixBalance), false, func(_, v []byte) (bool, error) {
		var bal ledger.Balance
		if err := decodeJSON(v, &bal); err != nil {
			return false, fmt.Errorf("failed to unmarshal balance: %w", err)
		}
		out = append(out, bal)
		return true, nil
	})
	return out, err
}

// ============================================================================
// Orders
// ============================================================================

// LoadOrder loads an order by id. Returns false if it does not exist.
func (s *PebbleStore) LoadOrder(orderID string) (core.Order, bool, error) {
	data, closer, err := s.db.Get(orderKey(orderID))
	if errors.Is(err, pebble.ErrNotFound) {
		return core.Order{}, false, nil
	}
	if err != nil {
		return core.Order{}, false, fmt.Errorf("failed to get order: %w", err)
	}
	defer closer.Close()

	var o core.Order
	if err := decodeJSON(data, &o); err != nil {
		return core.Order{}, false, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return o, true, nil
}

// LoadRestingOrders loads an instrument's resting orders in admission order
func (s *PebbleStore) LoadRestingOrders(instrument string) ([]core.Order, error) {
	var out []core.Order
	err := s.scan(restingPrefix(instrument), false, func(_, v []byte) (bool, error) {
		var o core.Order
		if err := decodeJSON(v, &o); err != nil {
			return false, fmt.Errorf("failed to unmarshal resting order: %w", err)
		}
		out = append(out, o)
		return true, nil
	})
	return out, err
}

// LoadOrdersByOwner loads an owner's orders, newest first. limit <= 0 means all.
func (s *PebbleStore) LoadOrdersByOwner(owner string, limit int) ([]core.Order, error) {
	prefix := ownerOrderPrefix(owner)
	var ids []string
	err := s.scan(prefix, false, func(k, _ []byte) (bool, error) {
		ids = append(ids, string(k[len(prefix):]))
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]core.Order, 0, len(ids))
	for _, id := range ids {
		o, ok, err := s.LoadOrder(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("owner index for %s points at missing order %s", owner, id)
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ============================================================================
// Trades and sequences
// ============================================================================

// LoadRecentTrades loads the most recent trades of an instrument, newest first
func (s *PebbleStore) LoadRecentTrades(instrument string, limit int) ([]core.Trade, error) {
	var out []core.Trade
	err := s.scan(tradePrefix(instrument), true, func(_, v []byte) (bool, error) {
		var t core.Trade
		if err := decodeJSON(v, &t); err != nil {
			return false, fmt.Errorf("failed to unmarshal trade: %w", err)
		}
		out = append(out, t)
		return limit <= 0 || len(out) < limit, nil
	})
	return out, err
}

// LoadTradesByOwner loads trades where the owner was buyer or seller,
// newest first across instruments
func (s *PebbleStore) LoadTradesByOwner(owner string, limit int) ([]core.Trade, error) {
	var out []core.Trade
	err := s.scan(ownerTradePrefix(owner), false, func(_, v []byte) (bool, error) {
		var t core.Trade
		if err := decodeJSON(v, &t); err != nil {
			return false, fmt.Errorf("failed to unmarshal trade: %w", err)
		}
		out = append(out, t)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].Seq > out[j].Seq
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LoadSequence returns an instrument's last order and trade sequence; zero if unseen
func (s *PebbleStore) LoadSequence(instrument string) (orderSeq, tradeSeq uint64, err error) {
	data, closer, err := s.db.Get(sequenceKey(instrument))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get sequence: %w", err)
	}
	defer closer.Close()
	return decodeSequences(data)
}

// scan visits every key under prefix, in reverse when reverse is set, until
// fn returns false or an error
func (s *PebbleStore) scan(prefix []byte, reverse bool, fn func(k, v []byte) (bool, error)) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	valid := iter.First()
	step := iter.Next
	if reverse {
		valid = iter.Last()
		step = iter.Prev
	}
	for ; valid; valid = step() {
		more, err := fn(iter.Key(), iter.Value())
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return iter.Error()
}
