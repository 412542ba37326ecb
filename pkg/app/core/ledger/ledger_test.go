package ledger

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/uhyunpark/hyperspot/pkg/app/core"
)

type memStore struct {
	mu   sync.Mutex
	data map[Key]Balance
	fail error
}

func newMemStore() *memStore { return &memStore{data: make(map[Key]Balance)} }

func (s *memStore) LoadBalances() ([]Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Balance
	for _, b := range s.data {
		out = append(out, b)
	}
	return out, nil
}

func (s *memStore) SaveBalances(bs []Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	for _, b := range bs {
		s.data[b.Key()] = b
	}
	return nil
}

func TestDepositWithdraw(t *testing.T) {
	store := newMemStore()
	l := New(store)

	if _, err := l.Deposit("alice", "usd", 10000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := l.Available("alice", "usd"); got != 10000 {
		t.Errorf("available = %d, want 10000", got)
	}

	if _, err := l.Withdraw("alice", "usd", 4000); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if _, err := l.Withdraw("alice", "usd", 6001); !errors.Is(err, core.ErrInsufficientFunds) {
		t.Errorf("overdraw: got %v", err)
	}
	if _, err := l.Deposit("alice", "usd", -1); !errors.Is(err, core.ErrValidation) {
		t.Errorf("negative deposit: got %v", err)
	}

	if got := store.data[Key{"alice", "usd"}].Total; got != 6000 {
		t.Errorf("persisted total = %d, want 6000", got)
	}

	// Reload from store
	l2 := New(store)
	if err := l2.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := l2.BalanceOf("alice", "usd").Total; got != 6000 {
		t.Errorf("reloaded total = %d, want 6000", got)
	}
}

func TestDepositPersistenceFailure(t *testing.T) {
	store := newMemStore()
	store.fail = errors.New("disk full")
	l := New(store)

	if _, err := l.Deposit("alice", "usd", 100); !errors.Is(err, core.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if got := l.BalanceOf("alice", "usd").Total; got != 0 {
		t.Errorf("failed deposit became visible: %d", got)
	}
}

func TestTxRefusesNegative(t *testing.T) {
	l := New(newMemStore())
	l.Deposit("alice", "usd", 100)

	k := Key{"alice", "usd"}
	tx := l.Begin(k)
	defer tx.Release()

	if err := tx.Apply(Delta{Owner: "alice", Asset: "usd", Total: -101}); !errors.Is(err, core.ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	if err := tx.Apply(Delta{Owner: "alice", Asset: "usd", Locked: 101}); !errors.Is(err, core.ErrInvariantViolation) {
		t.Fatalf("lock beyond balance: got %v", err)
	}
	// Refused deltas leave the staged view untouched
	if got := tx.Get(k); got.Total != 100 || got.Locked != 0 {
		t.Errorf("staged = %+v", got)
	}
	if err := tx.Apply(Delta{Owner: "bob", Asset: "usd", Total: 1}); !errors.Is(err, core.ErrInvariantViolation) {
		t.Errorf("delta outside keys: got %v", err)
	}
}

func TestTxAtomicVisibility(t *testing.T) {
	l := New(newMemStore())
	l.Deposit("alice", "usd", 500)

	a, b := Key{"alice", "usd"}, Key{"bob", "usd"}
	tx := l.Begin(b, a)
	if err := tx.Apply(Delta{Owner: "alice", Asset: "usd", Total: -500}); err != nil {
		t.Fatal(err)
	}
	if err := tx.Apply(Delta{Owner: "bob", Asset: "usd", Total: 500}); err != nil {
		t.Fatal(err)
	}

	// Not visible before commit
	if got := l.BalanceOf("alice", "usd").Total; got != 500 {
		t.Errorf("alice visible before commit: %d", got)
	}
	tx.Commit()
	tx.Release()

	if l.BalanceOf("alice", "usd").Total != 0 || l.BalanceOf("bob", "usd").Total != 500 {
		t.Errorf("after commit: alice=%+v bob=%+v", l.BalanceOf("alice", "usd"), l.BalanceOf("bob", "usd"))
	}
	if totals := l.Totals(); totals["usd"] != 500 {
		t.Errorf("usd total = %d, want 500", totals["usd"])
	}
}

func TestTxReleaseDiscards(t *testing.T) {
	l := New(newMemStore())
	k := Key{"alice", "btc"}
	tx := l.Begin(k)
	tx.Apply(Delta{Owner: "alice", Asset: "btc", Total: 5})
	tx.Release()
	tx.Release()

	if got := l.BalanceOf("alice", "btc").Total; got != 0 {
		t.Errorf("released tx leaked %d", got)
	}
}

func TestBeginSerializesSharedKeys(t *testing.T) {
	l := New(newMemStore())
	usd := Key{"alice", "usd"}

	first := l.Begin(usd, Key{"alice", "btc"})

	acquired := make(chan struct{})
	go func() {
		// Reverse key order must not deadlock
		second := l.Begin(Key{"alice", "eth"}, usd)
		close(acquired)
		second.Release()
	}()

	select {
	case <-acquired:
		t.Fatal("second tx acquired a held key")
	case <-time.After(50 * time.Millisecond):
	}

	first.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second tx never acquired the key")
	}
}

func TestBalancesSorted(t *testing.T) {
	l := New(newMemStore())
	l.Deposit("alice", "usd", 1)
	l.Deposit("alice", "btc", 2)
	l.Deposit("bob", "eth", 3)

	got := l.Balances("alice")
	if len(got) != 2 || got[0].Asset != "btc" || got[1].Asset != "usd" {
		t.Errorf("Balances(alice) = %+v", got)
	}
}
