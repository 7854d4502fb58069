package fees_test

import (
	"FactorVault/internal/fees"
	"testing"
)

// 100.000000 face value at 6 decimals.
const faceValue = 100_000_000

func standardTerms() fees.Terms {
	return fees.Terms{
		TargetYieldBps:  1_000, // 10% annual
		SpreadBps:       0,
		AdminFeeBps:     0,
		ProtocolFeeBps:  0,
		UpfrontBps:      8_000, // 80% advance rate
		MinInterestDays: 30,
	}
}

// ============================================================================
// Test: ValidateUpfrontBps
// ============================================================================

func TestValidateUpfrontBps_InsideRange(t *testing.T) {
	if err := fees.ValidateUpfrontBps(8_000, 1_000, 9_500); err != nil {
		t.Errorf("8000 bps inside [1000, 9500] should be valid: %v", err)
	}
}

func TestValidateUpfrontBps_AtBounds(t *testing.T) {
	if err := fees.ValidateUpfrontBps(1_000, 1_000, 9_500); err != nil {
		t.Errorf("lower bound should be inclusive: %v", err)
	}
	if err := fees.ValidateUpfrontBps(9_500, 1_000, 9_500); err != nil {
		t.Errorf("upper bound should be inclusive: %v", err)
	}
}

func TestValidateUpfrontBps_OutsideRange(t *testing.T) {
	if err := fees.ValidateUpfrontBps(999, 1_000, 9_500); err == nil {
		t.Error("below minimum should be rejected")
	}
	if err := fees.ValidateUpfrontBps(9_501, 1_000, 9_500); err == nil {
		t.Error("above maximum should be rejected")
	}
}

// ============================================================================
// Test: AccrualDays
// ============================================================================

func TestAccrualDays_MinimumFloor(t *testing.T) {
	terms := standardTerms()

	if got := terms.AccrualDays(5); got != 30 {
		t.Errorf("5 elapsed days with 30-day minimum: got %d, want 30", got)
	}
	if got := terms.AccrualDays(0); got != 30 {
		t.Errorf("0 elapsed days with 30-day minimum: got %d, want 30", got)
	}
	if got := terms.AccrualDays(45); got != 45 {
		t.Errorf("45 elapsed days above minimum: got %d, want 45", got)
	}
}

func TestAccrualDays_InterestCap(t *testing.T) {
	terms := standardTerms()
	terms.InterestCapBps = 500 // accrual stops at 5% of gross

	// capDays = 500 * 365 / 1000 = 182 (floored)
	if got := terms.AccrualDays(1_000); got != 182 {
		t.Errorf("capped days: got %d, want 182", got)
	}
	if got := terms.AccrualDays(100); got != 100 {
		t.Errorf("under the cap: got %d, want 100", got)
	}
}

func TestAccrualDays_NoCapWhenZero(t *testing.T) {
	terms := standardTerms()
	terms.InterestCapBps = 0

	if got := terms.AccrualDays(10_000); got != 10_000 {
		t.Errorf("uncapped: got %d, want 10000", got)
	}
}

// ============================================================================
// Test: CalculateTargetFees
// ============================================================================

func TestCalculateTargetFees_StandardAdvance(t *testing.T) {
	tf := fees.CalculateTargetFees(faceValue, standardTerms(), 30)

	if tf.GrossFunded != 80_000_000 {
		t.Errorf("gross: got %d, want 80_000_000", tf.GrossFunded)
	}
	// 80_000_000 * 1000 * 30 / (10000 * 365) = 657534 (floored)
	if tf.Interest != 657_534 {
		t.Errorf("interest: got %d, want 657_534", tf.Interest)
	}
	if tf.Spread != 0 || tf.AdminFee != 0 || tf.ProtocolFee != 0 {
		t.Errorf("zero-rate components should be zero: spread=%d admin=%d protocol=%d",
			tf.Spread, tf.AdminFee, tf.ProtocolFee)
	}
	if tf.NetFunded != 80_000_000-657_534 {
		t.Errorf("net: got %d, want %d", tf.NetFunded, 80_000_000-657_534)
	}
}

func TestCalculateTargetFees_AllComponents(t *testing.T) {
	terms := fees.Terms{
		TargetYieldBps:  1_200,
		SpreadBps:       300,
		AdminFeeBps:     100,
		ProtocolFeeBps:  50,
		UpfrontBps:      9_000,
		MinInterestDays: 0,
	}
	tf := fees.CalculateTargetFees(faceValue, terms, 60)

	gross := int64(90_000_000)
	if tf.GrossFunded != gross {
		t.Fatalf("gross: got %d, want %d", tf.GrossFunded, gross)
	}

	// Each component floors independently.
	wantInterest := gross * 1_200 * 60 / (10_000 * 365)
	wantSpread := gross * 300 * 60 / (10_000 * 365)
	wantAdmin := gross * 100 * 60 / (10_000 * 365)
	wantProtocol := gross * 50 / 10_000

	if tf.Interest != wantInterest {
		t.Errorf("interest: got %d, want %d", tf.Interest, wantInterest)
	}
	if tf.Spread != wantSpread {
		t.Errorf("spread: got %d, want %d", tf.Spread, wantSpread)
	}
	if tf.AdminFee != wantAdmin {
		t.Errorf("admin: got %d, want %d", tf.AdminFee, wantAdmin)
	}
	if tf.ProtocolFee != wantProtocol {
		t.Errorf("protocol: got %d, want %d", tf.ProtocolFee, wantProtocol)
	}
	if tf.NetFunded != gross-wantInterest-wantSpread-wantAdmin-wantProtocol {
		t.Errorf("net does not reconcile: got %d", tf.NetFunded)
	}
}

func TestCalculateTargetFees_DustFlooredPerComponent(t *testing.T) {
	// Tiny face value: every prorated component floors to zero, so the
	// full gross goes out as net.
	terms := standardTerms()
	tf := fees.CalculateTargetFees(100, terms, 30)

	if tf.GrossFunded != 80 {
		t.Fatalf("gross: got %d, want 80", tf.GrossFunded)
	}
	if tf.Interest != 0 {
		t.Errorf("interest on dust should floor to zero, got %d", tf.Interest)
	}
	if tf.NetFunded != 80 {
		t.Errorf("net: got %d, want 80", tf.NetFunded)
	}
}

func TestCalculateTargetFees_MinDaysApplied(t *testing.T) {
	// Due in 5 days but minimum accrual is 30: fees price the full 30.
	short := fees.CalculateTargetFees(faceValue, standardTerms(), 5)
	full := fees.CalculateTargetFees(faceValue, standardTerms(), 30)

	if short.Interest != full.Interest {
		t.Errorf("minimum days should equalize: got %d vs %d", short.Interest, full.Interest)
	}
}

// ============================================================================
// Test: CalculateSettlementFees
// ============================================================================

func TestCalculateSettlementFees_PaidAtDueDate(t *testing.T) {
	terms := standardTerms()
	tf := fees.CalculateTargetFees(faceValue, terms, 30)
	advance := tf.NetFunded + tf.ProtocolFee

	sf := fees.CalculateSettlementFees(tf.GrossFunded, advance, terms, 30, faceValue)

	if sf.TrueDays != 30 {
		t.Errorf("true days: got %d, want 30", sf.TrueDays)
	}
	if sf.TrueInterest != tf.Interest {
		t.Errorf("same elapsed days should reproduce target interest: got %d, want %d",
			sf.TrueInterest, tf.Interest)
	}
	// When actual days match the target schedule, the creditor gets back
	// exactly the unadvanced portion of face value.
	wantKickback := faceValue - tf.GrossFunded
	if sf.Kickback != wantKickback {
		t.Errorf("kickback: got %d, want %d", sf.Kickback, wantKickback)
	}
}

func TestCalculateSettlementFees_EarlyPaymentLargerKickback(t *testing.T) {
	terms := standardTerms()
	terms.MinInterestDays = 0
	tf := fees.CalculateTargetFees(faceValue, terms, 60)
	advance := tf.NetFunded + tf.ProtocolFee

	early := fees.CalculateSettlementFees(tf.GrossFunded, advance, terms, 10, faceValue)
	onTime := fees.CalculateSettlementFees(tf.GrossFunded, advance, terms, 60, faceValue)

	if early.Kickback <= onTime.Kickback {
		t.Errorf("early payment should yield a larger kickback: %d vs %d",
			early.Kickback, onTime.Kickback)
	}
	if early.TrueInterest >= onTime.TrueInterest {
		t.Errorf("fewer days should accrue less interest: %d vs %d",
			early.TrueInterest, onTime.TrueInterest)
	}
}

func TestCalculateSettlementFees_LatePaymentSmallerKickback(t *testing.T) {
	terms := standardTerms()
	tf := fees.CalculateTargetFees(faceValue, terms, 30)
	advance := tf.NetFunded + tf.ProtocolFee

	onTime := fees.CalculateSettlementFees(tf.GrossFunded, advance, terms, 30, faceValue)
	late := fees.CalculateSettlementFees(tf.GrossFunded, advance, terms, 90, faceValue)

	if late.Kickback >= onTime.Kickback {
		t.Errorf("late payment should shrink the kickback: %d vs %d",
			late.Kickback, onTime.Kickback)
	}
}

func TestCalculateSettlementFees_KickbackFlooredAtZero(t *testing.T) {
	terms := standardTerms()
	tf := fees.CalculateTargetFees(faceValue, terms, 30)
	advance := tf.NetFunded + tf.ProtocolFee

	// Only half the advance ever came back.
	sf := fees.CalculateSettlementFees(tf.GrossFunded, advance, terms, 30, advance/2)
	if sf.Kickback != 0 {
		t.Errorf("underpayment kickback should floor at zero, got %d", sf.Kickback)
	}
}

func TestCalculateSettlementFees_CapBoundsLateAccrual(t *testing.T) {
	terms := standardTerms()
	terms.InterestCapBps = 200 // capDays = 200*365/1000 = 73

	tf := fees.CalculateTargetFees(faceValue, terms, 30)
	advance := tf.NetFunded + tf.ProtocolFee

	atCap := fees.CalculateSettlementFees(tf.GrossFunded, advance, terms, 73, faceValue)
	wayLate := fees.CalculateSettlementFees(tf.GrossFunded, advance, terms, 500, faceValue)

	if wayLate.TrueDays != 73 {
		t.Errorf("true days should stop at the cap: got %d, want 73", wayLate.TrueDays)
	}
	if wayLate.TrueInterest != atCap.TrueInterest {
		t.Errorf("interest past the cap should not grow: %d vs %d",
			wayLate.TrueInterest, atCap.TrueInterest)
	}
	if wayLate.Kickback != atCap.Kickback {
		t.Errorf("kickback past the cap should not shrink: %d vs %d",
			wayLate.Kickback, atCap.Kickback)
	}
}

// ============================================================================
// Test: UnfactorPrice
// ============================================================================

func TestUnfactorPrice_NoPayments(t *testing.T) {
	terms := standardTerms()
	tf := fees.CalculateTargetFees(faceValue, terms, 30)
	advance := tf.NetFunded + tf.ProtocolFee

	price, sf := fees.UnfactorPrice(tf.GrossFunded, advance, terms, 30, 0)

	want := advance + sf.TrueInterest + sf.TrueSpread + sf.TrueAdminFee
	if price != want {
		t.Errorf("price: got %d, want %d", price, want)
	}
}

func TestUnfactorPrice_PartialPaymentReducesPrice(t *testing.T) {
	terms := standardTerms()
	tf := fees.CalculateTargetFees(faceValue, terms, 30)
	advance := tf.NetFunded + tf.ProtocolFee

	full, _ := fees.UnfactorPrice(tf.GrossFunded, advance, terms, 15, 0)
	partial, _ := fees.UnfactorPrice(tf.GrossFunded, advance, terms, 15, 10_000_000)

	if partial != full-10_000_000 {
		t.Errorf("payments should reduce price one-for-one: got %d, want %d",
			partial, full-10_000_000)
	}
}

func TestUnfactorPrice_FlooredAtZero(t *testing.T) {
	terms := standardTerms()
	tf := fees.CalculateTargetFees(faceValue, terms, 30)
	advance := tf.NetFunded + tf.ProtocolFee

	price, _ := fees.UnfactorPrice(tf.GrossFunded, advance, terms, 30, faceValue*2)
	if price != 0 {
		t.Errorf("overpaid receivable should price at zero, got %d", price)
	}
}
