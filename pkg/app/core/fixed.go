package core

import (
	"fmt"
	"math"
)

// Mul returns a×b for non-negative fixed-point integers, failing on overflow
func Mul(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, fmt.Errorf("%w: negative operand %d × %d", ErrInvariantViolation, a, b)
	}
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a > math.MaxInt64/b {
		return 0, fmt.Errorf("%w: %d × %d overflows int64", ErrInvariantViolation, a, b)
	}
	return a * b, nil
}

// Add returns a+b, failing on overflow
func Add(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, fmt.Errorf("%w: %d + %d overflows int64", ErrInvariantViolation, a, b)
	}
	return a + b, nil
}

// Min returns the smaller of two quantities
func Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
