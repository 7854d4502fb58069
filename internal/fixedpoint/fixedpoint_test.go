package fixedpoint_test

import (
	"FactorVault/internal/fixedpoint"
	"math"
	"testing"
)

func TestMulDivFloor_Floors(t *testing.T) {
	if got := fixedpoint.MulDivFloor(7, 3, 4); got != 5 {
		t.Errorf("7*3/4: got %d, want 5", got)
	}
	if got := fixedpoint.MulDivFloor(1, 1, 3); got != 0 {
		t.Errorf("1/3: got %d, want 0", got)
	}
}

func TestMulDivFloor_NoInt64Overflow(t *testing.T) {
	// a*b overflows int64 but the quotient fits.
	a := int64(math.MaxInt64 / 2)
	got := fixedpoint.MulDivFloor(a, 4, 2)
	if got != a*2 {
		t.Errorf("overflow-safe muldiv: got %d, want %d", got, a*2)
	}
}

func TestMulDivFloor_PanicsOnZeroDenominator(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on zero denominator")
		}
	}()
	fixedpoint.MulDivFloor(1, 1, 0)
}

func TestBpsOf(t *testing.T) {
	if got := fixedpoint.BpsOf(1_000_000, 8_000); got != 800_000 {
		t.Errorf("80%% of 1_000_000: got %d, want 800_000", got)
	}
	if got := fixedpoint.BpsOf(1_000_000, 10_000); got != 1_000_000 {
		t.Errorf("100%%: got %d, want 1_000_000", got)
	}
	if got := fixedpoint.BpsOf(1, 9_999); got != 0 {
		t.Errorf("dust floors to zero: got %d", got)
	}
}

func TestProratedBpsOf(t *testing.T) {
	// 80_000_000 at 10% annual over 30 days.
	if got := fixedpoint.ProratedBpsOf(80_000_000, 1_000, 30); got != 657_534 {
		t.Errorf("prorated: got %d, want 657_534", got)
	}
	if got := fixedpoint.ProratedBpsOf(80_000_000, 1_000, 0); got != 0 {
		t.Errorf("zero days accrues nothing: got %d", got)
	}
	// A full year at 100% reproduces the amount exactly.
	if got := fixedpoint.ProratedBpsOf(12_345, 10_000, 365); got != 12_345 {
		t.Errorf("full year at 100%%: got %d, want 12_345", got)
	}
}
