package core

import (
	"errors"
	"math"
	"testing"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		filled, qty int64
		want        OrderStatus
	}{
		{0, 10, OrderPending},
		{3, 10, OrderPartiallyFilled},
		{10, 10, OrderFilled},
	}
	for _, tt := range tests {
		if got := StatusOf(tt.filled, tt.qty); got != tt.want {
			t.Errorf("StatusOf(%d, %d) = %s, want %s", tt.filled, tt.qty, got, tt.want)
		}
	}
}

func TestOrderValidate(t *testing.T) {
	ok := Order{ID: "a", Price: 500, Qty: 10, Filled: 4, Status: OrderPartiallyFilled}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid order rejected: %v", err)
	}

	bad := []Order{
		{ID: "overfill", Price: 500, Qty: 10, Filled: 11, Status: OrderFilled},
		{ID: "status", Price: 500, Qty: 10, Filled: 10, Status: OrderPartiallyFilled},
		{ID: "zero", Price: 0, Qty: 10},
	}
	for _, o := range bad {
		if err := o.Validate(); !errors.Is(err, ErrInvariantViolation) {
			t.Errorf("order %s: expected invariant violation, got %v", o.ID, err)
		}
	}
}

func TestMulOverflow(t *testing.T) {
	if got, err := Mul(10, 500); err != nil || got != 5000 {
		t.Fatalf("Mul(10, 500) = %d, %v", got, err)
	}
	if _, err := Mul(math.MaxInt64/2, 3); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("expected overflow error, got %v", err)
	}
	if _, err := Add(math.MaxInt64, 1); err == nil {
		t.Error("expected overflow error for Add")
	}
}

func TestParseSide(t *testing.T) {
	if s, err := ParseSide("BUY"); err != nil || s != Buy {
		t.Fatalf("ParseSide(BUY) = %v, %v", s, err)
	}
	if s, _ := ParseSide("sell"); s.Opposite() != Buy {
		t.Errorf("sell opposite = %s", s.Opposite())
	}
	if _, err := ParseSide("hold"); !IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}
