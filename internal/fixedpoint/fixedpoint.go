package fixedpoint

import (
	"math/big"
	"sync"
)

// Fund amounts are int64 fixed-point with AssetScale decimals. Fee rates are
// expressed in basis points and prorated by whole days over a 365-day year.
const (
	// BpsDenominator is the basis-point divisor (1 bps = 1/10000).
	BpsDenominator = 10_000

	// DaysPerYear is the accrual year used for prorated fee components.
	DaysPerYear = 365

	// PricePrecision scales price-per-share. With zero share supply the
	// price is exactly PricePrecision (1 share == 1 asset unit).
	PricePrecision = 1_000_000
)

// int128Pool recycles big.Int intermediates for multiply-then-divide chains.
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0)
	int128Pool.Put(v)
}

// MulDivFloor computes a * b / den with an int128 intermediate and floor
// rounding. All callers pass non-negative operands; the quotient therefore
// truncates toward zero, which is the documented floor semantics for every
// fee component (dust is lost per component, never redistributed).
func MulDivFloor(a, b, den int64) int64 {
	if den == 0 {
		panic("fixedpoint: division by zero")
	}

	num := getInt128()
	num.Mul(big.NewInt(a), big.NewInt(b))

	quo := getInt128()
	quo.Quo(num, big.NewInt(den))

	result := quo.Int64()

	putInt128(num)
	putInt128(quo)

	return result
}

// MulDiv3Floor computes a * b * c / den with an int128 intermediate and
// floor rounding.
func MulDiv3Floor(a, b, c, den int64) int64 {
	if den == 0 {
		panic("fixedpoint: division by zero")
	}

	num := getInt128()
	num.Mul(big.NewInt(a), big.NewInt(b))
	num.Mul(num, big.NewInt(c))

	quo := getInt128()
	quo.Quo(num, big.NewInt(den))

	result := quo.Int64()

	putInt128(num)
	putInt128(quo)

	return result
}

// BpsOf returns amount * bps / 10000, floored.
func BpsOf(amount, bps int64) int64 {
	return MulDivFloor(amount, bps, BpsDenominator)
}

// ProratedBpsOf returns amount * bps * days / (10000 * 365), floored.
// Accrual is in whole-day steps: days == 0 always yields 0.
func ProratedBpsOf(amount, bps, days int64) int64 {
	return MulDiv3Floor(amount, bps, days, BpsDenominator*DaysPerYear)
}
