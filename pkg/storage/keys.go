package storage

import (
	"fmt"
)

// Key schema for Pebble storage:
//
//   bal:<owner>:<asset>                   → Balance
//   ord:<orderID>                         → Order (latest state)
//   rest:<instrument>:<seq>:<orderID>     → Order (resting only)
//   own:<owner>:<orderID>                 → empty (owner index)
//   trade:<instrument>:<seq>              → Trade
//   utrade:<owner>:<instrument>:<seq>     → Trade (owner index)
//   seq:<instrument>                      → order seq, trade seq (16 bytes)
//
// Sequences are zero-padded to 20 digits so keys sort numerically.
// Ids never contain ':'.

const (
	prefixBalance    = "bal:"
	prefixOrder      = "ord:"
	prefixResting    = "rest:"
	prefixOwnerOrder = "own:"
	prefixTrade      = "trade:"
	prefixOwnerTrade = "utrade:"
	prefixSequence   = "seq:"
)

func balanceKey(owner, asset string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, owner, asset))
}

func orderKey(orderID string) []byte {
	return []byte(prefixOrder + orderID)
}

func restingKey(instrument string, seq uint64, orderID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixResting, instrument, seq, orderID))
}

func restingPrefix(instrument string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixResting, instrument))
}

func ownerOrderKey(owner, orderID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixOwnerOrder, owner, orderID))
}

func ownerOrderPrefix(owner string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixOwnerOrder, owner))
}

func tradeKey(instrument string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixTrade, instrument, seq))
}

func tradePrefix(instrument string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTrade, instrument))
}

func ownerTradeKey(owner, instrument string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%020d", prefixOwnerTrade, owner, instrument, seq))
}

func ownerTradePrefix(owner string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixOwnerTrade, owner))
}

func sequenceKey(instrument string) []byte {
	return []byte(prefixSequence + instrument)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
