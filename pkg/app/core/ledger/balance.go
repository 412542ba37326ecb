package ledger

import (
	"fmt"

	"github.com/uhyunpark/hyperspot/pkg/app/core"
)

// Key identifies one balance
type Key struct {
	Owner string
	Asset string
}

func (k Key) String() string { return k.Owner + "/" + k.Asset }

func less(a, b Key) bool {
	if a.Owner != b.Owner {
		return a.Owner < b.Owner
	}
	return a.Asset < b.Asset
}

// Balance of one asset held by one owner, in the asset's minor units.
// Locked is the part held for resting orders.
type Balance struct {
	Owner  string `json:"owner"`
	Asset  string `json:"asset"`
	Total  int64  `json:"total"`
	Locked int64  `json:"locked"`
}

func (b Balance) Key() Key { return Key{Owner: b.Owner, Asset: b.Asset} }

// Available returns the part of the balance free for new orders
func (b Balance) Available() int64 {
	return b.Total - b.Locked
}

// Validate checks Total >= 0 and 0 <= Locked <= Total
func (b Balance) Validate() error {
	if b.Total < 0 {
		return fmt.Errorf("%w: %s balance would be negative: %d", core.ErrInvariantViolation, b.Key(), b.Total)
	}
	if b.Locked < 0 {
		return fmt.Errorf("%w: %s locked would be negative: %d", core.ErrInvariantViolation, b.Key(), b.Locked)
	}
	if b.Locked > b.Total {
		return fmt.Errorf("%w: %s locked (%d) would exceed balance (%d)", core.ErrInvariantViolation, b.Key(), b.Locked, b.Total)
	}
	return nil
}

// Delta is a signed change to one balance
type Delta struct {
	Owner  string
	Asset  string
	Total  int64
	Locked int64
}

func (d Delta) Key() Key { return Key{Owner: d.Owner, Asset: d.Asset} }
