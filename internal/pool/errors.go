package pool

import "errors"

// Named failures surfaced to callers. Every operation is all-or-nothing:
// an error means no state was mutated and no transfer happened.
var (
	// Authorization
	ErrNotAuthorized = errors.New("caller lacks the required role")

	// Validation
	ErrZeroAddress   = errors.New("zero address")
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrInvalidBps    = errors.New("bps value out of range")

	// State
	ErrInvoiceNotApproved    = errors.New("invoice is not approved")
	ErrInvoiceAlreadyFunded  = errors.New("invoice is already funded")
	ErrInvoiceNotFunded      = errors.New("invoice is not funded")
	ErrApprovalExpired       = errors.New("approval has expired")
	ErrInvoiceCanceled       = errors.New("invoice was canceled")
	ErrInvoicePaid           = errors.New("invoice is already paid")
	ErrCreditorChanged       = errors.New("invoice creditor changed since approval")
	ErrAmountChanged         = errors.New("invoice amount changed since approval")
	ErrTokenMismatch         = errors.New("invoice token does not match pool asset")
	ErrAlreadyImpaired       = errors.New("invoice is already impaired")
	ErrGracePeriodNotElapsed = errors.New("impairment grace period has not elapsed")
	ErrNotFactorer           = errors.New("caller is not the financed party")

	// Resource
	ErrInsufficientLiquidity = errors.New("insufficient pool liquidity")
	ErrInsufficientShares    = errors.New("insufficient share balance")
	ErrInsufficientFees      = errors.New("insufficient fee balance")
)
