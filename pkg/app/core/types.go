package core

import (
	"fmt"
	"strings"
)

type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Opposite returns the side an order of this side matches against
func (s Side) Opposite() Side {
	return -s
}

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// ParseSide accepts "buy"/"sell" in any case
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	default:
		return 0, fmt.Errorf("%w: unknown side %q", ErrValidation, s)
	}
}

// OrderStatus represents the lifecycle state of an order
type OrderStatus int8

const (
	OrderPending OrderStatus = iota
	OrderPartiallyFilled
	OrderFilled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderPending:
		return "pending"
	case OrderPartiallyFilled:
		return "partially_filled"
	case OrderFilled:
		return "filled"
	default:
		return "unknown"
	}
}

// StatusOf derives the status from the filled amount.
// Status is never stored independently of Filled.
func StatusOf(filled, qty int64) OrderStatus {
	switch {
	case filled == 0:
		return OrderPending
	case filled == qty:
		return OrderFilled
	default:
		return OrderPartiallyFilled
	}
}

// Order is a limit order. Price is in quote minor units per lot, Qty and
// Filled are in lots (base minor units).
type Order struct {
	ID         string      `json:"id"`
	Instrument string      `json:"instrument"`
	Owner      string      `json:"owner"`
	Side       Side        `json:"side"`
	Price      int64       `json:"price"`
	Qty        int64       `json:"qty"`
	Filled     int64       `json:"filled"`
	Status     OrderStatus `json:"status"`

	// Seq is the per-instrument admission sequence; it breaks price ties.
	Seq       uint64 `json:"seq"`
	CreatedAt int64  `json:"createdAt"` // Unix nanoseconds
}

// Remaining returns unfilled quantity
func (o *Order) Remaining() int64 {
	return o.Qty - o.Filled
}

func (o *Order) IsFilled() bool {
	return o.Filled == o.Qty
}

// Validate checks 0 <= filled <= qty and that Status agrees with Filled
func (o *Order) Validate() error {
	if o.Qty <= 0 || o.Price <= 0 {
		return fmt.Errorf("%w: order %s has non-positive price or qty", ErrInvariantViolation, o.ID)
	}
	if o.Filled < 0 || o.Filled > o.Qty {
		return fmt.Errorf("%w: order %s filled %d outside [0, %d]", ErrInvariantViolation, o.ID, o.Filled, o.Qty)
	}
	if o.Status != StatusOf(o.Filled, o.Qty) {
		return fmt.Errorf("%w: order %s status %s does not match filled %d/%d", ErrInvariantViolation, o.ID, o.Status, o.Filled, o.Qty)
	}
	return nil
}

// Trade is an immutable fill between a buy and a sell order
type Trade struct {
	ID          string `json:"id"`
	Instrument  string `json:"instrument"`
	Seq         uint64 `json:"seq"` // per-instrument trade sequence
	Buyer       string `json:"buyer"`
	Seller      string `json:"seller"`
	BuyOrderID  string `json:"buyOrderId"`
	SellOrderID string `json:"sellOrderId"`
	TakerSide   Side   `json:"takerSide"`
	Price       int64  `json:"price"`
	Qty         int64  `json:"qty"`
	Timestamp   int64  `json:"timestamp"` // Unix nanoseconds
}

// Notional returns qty × price in quote minor units
func (t *Trade) Notional() (int64, error) {
	return Mul(t.Qty, t.Price)
}
