// Package fees implements the fund's fee arithmetic: target fees fixed at
// approval/funding time and the actual (kickback) settlement computed when a
// receivable pays out. All components use explicit floor division; remainders
// are never shared across components.
package fees

import (
	"fmt"

	"FactorVault/internal/fixedpoint"
)

// Terms are the bps parameters a receivable was approved under.
type Terms struct {
	TargetYieldBps  int64
	SpreadBps       int64
	AdminFeeBps     int64
	ProtocolFeeBps  int64
	UpfrontBps      int64
	MinInterestDays int64

	// InterestCapBps bounds total periodic accrual: once the combined
	// yield+spread+admin accrual reaches this fraction of gross, elapsed
	// days stop counting. Protects the payer from unbounded penalty growth.
	InterestCapBps int64
}

// TargetFees are the components fixed at funding time.
type TargetFees struct {
	GrossFunded int64
	Interest    int64
	Spread      int64
	AdminFee    int64
	ProtocolFee int64
	NetFunded   int64
}

// SettlementFees are the components recomputed at settlement with actual
// elapsed days and actual principal paid since funding.
type SettlementFees struct {
	TrueInterest int64
	TrueSpread   int64
	TrueAdminFee int64
	TrueDays     int64

	// Kickback is the rebate returned to the original creditor: principal
	// received minus the pool's advance minus the true periodic fees.
	// Never negative. The upfront protocol fee is not refunded here.
	Kickback int64
}

// ValidateUpfrontBps checks the chosen upfront fraction against configured
// bounds. Bounds themselves must sit inside [1, 9999].
func ValidateUpfrontBps(upfrontBps, minBps, maxBps int64) error {
	if upfrontBps < minBps || upfrontBps > maxBps {
		return fmt.Errorf("upfront bps %d outside allowed range [%d, %d]", upfrontBps, minBps, maxBps)
	}
	return nil
}

// AccrualDays clamps elapsed whole days into the accruable window:
// at least MinInterestDays, at most the cap implied by InterestCapBps.
func (t Terms) AccrualDays(elapsedDays int64) int64 {
	days := elapsedDays
	if days < t.MinInterestDays {
		days = t.MinInterestDays
	}
	periodicBps := t.TargetYieldBps + t.SpreadBps + t.AdminFeeBps
	if t.InterestCapBps > 0 && periodicBps > 0 {
		capDays := t.InterestCapBps * fixedpoint.DaysPerYear / periodicBps
		if days > capDays {
			days = capDays
		}
	}
	return days
}

// CalculateTargetFees computes the fee schedule for advancing against a
// receivable of the given face value, with daysUntilDue whole days to its
// due date. Interest, spread and admin fee accrue per whole day; the
// protocol fee is a flat cut of gross, collected upfront at funding.
func CalculateTargetFees(faceValue int64, t Terms, daysUntilDue int64) TargetFees {
	gross := fixedpoint.BpsOf(faceValue, t.UpfrontBps)
	days := t.AccrualDays(daysUntilDue)

	interest := fixedpoint.ProratedBpsOf(gross, t.TargetYieldBps, days)
	spread := fixedpoint.ProratedBpsOf(gross, t.SpreadBps, days)
	adminFee := fixedpoint.ProratedBpsOf(gross, t.AdminFeeBps, days)
	protocolFee := fixedpoint.BpsOf(gross, t.ProtocolFeeBps)

	return TargetFees{
		GrossFunded: gross,
		Interest:    interest,
		Spread:      spread,
		AdminFee:    adminFee,
		ProtocolFee: protocolFee,
		NetFunded:   gross - interest - spread - adminFee - protocolFee,
	}
}

// CalculateSettlementFees recomputes periodic fees with actual elapsed whole
// days and derives the kickback owed to the original creditor.
//
// advance is the cash that left the pool at funding (netFunded + upfront
// protocol fee). paidSinceFunding is the receivable's paid amount minus the
// initial paid amount captured at funding, so pre-funding partial payments
// never count as pool principal.
func CalculateSettlementFees(gross, advance int64, t Terms, elapsedDays, paidSinceFunding int64) SettlementFees {
	days := t.AccrualDays(elapsedDays)

	trueInterest := fixedpoint.ProratedBpsOf(gross, t.TargetYieldBps, days)
	trueSpread := fixedpoint.ProratedBpsOf(gross, t.SpreadBps, days)
	trueAdminFee := fixedpoint.ProratedBpsOf(gross, t.AdminFeeBps, days)

	kickback := paidSinceFunding - advance - trueInterest - trueSpread - trueAdminFee
	if kickback < 0 {
		kickback = 0
	}

	return SettlementFees{
		TrueInterest: trueInterest,
		TrueSpread:   trueSpread,
		TrueAdminFee: trueAdminFee,
		TrueDays:     days,
		Kickback:     kickback,
	}
}

// UnfactorPrice is what the financed party pays to buy the receivable back:
// the outstanding advance plus periodic fees accrued to this instant, less
// any principal the pool already received. The upfront protocol fee is part
// of the advance and therefore not refunded.
func UnfactorPrice(gross, advance int64, t Terms, elapsedDays, paidSinceFunding int64) (price int64, s SettlementFees) {
	days := t.AccrualDays(elapsedDays)

	s = SettlementFees{
		TrueInterest: fixedpoint.ProratedBpsOf(gross, t.TargetYieldBps, days),
		TrueSpread:   fixedpoint.ProratedBpsOf(gross, t.SpreadBps, days),
		TrueAdminFee: fixedpoint.ProratedBpsOf(gross, t.AdminFeeBps, days),
		TrueDays:     days,
	}

	price = advance + s.TrueInterest + s.TrueSpread + s.TrueAdminFee - paidSinceFunding
	if price < 0 {
		price = 0
	}
	return price, s
}
