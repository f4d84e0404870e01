// Package money defines the smallest-unit balance type shared by wallets,
// credits and debits. A Money value is always non-negative: arithmetic that
// would go below zero saturates at zero instead of wrapping or panicking.
package money

import "fmt"

// Money is a non-negative amount expressed in nano units (10^-9 of a coin).
type Money uint64

// Zero is the additive identity.
const Zero Money = 0

// FromNano constructs a Money value directly from a nano-unit count.
func FromNano(nano uint64) Money {
	return Money(nano)
}

// AsNano returns the amount as a raw nano-unit count.
func (m Money) AsNano() uint64 {
	return uint64(m)
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m == 0
}

// Add returns m + other. Saturates at the maximum uint64 value on overflow,
// which in practice never triggers given real transfer amounts.
func (m Money) Add(other Money) Money {
	sum := m + other
	if sum < m {
		return Money(^uint64(0))
	}
	return sum
}

// Sub returns m - other, saturating at Zero rather than underflowing.
func (m Money) Sub(other Money) Money {
	if other >= m {
		return Zero
	}
	return m - other
}

// String renders the amount in whole-and-nano form, e.g. "1.000000000".
func (m Money) String() string {
	whole := uint64(m) / 1_000_000_000
	frac := uint64(m) % 1_000_000_000
	return fmt.Sprintf("%d.%09d", whole, frac)
}
