package invoice

import (
	"time"

	"github.com/google/uuid"
)

// State is the per-receivable lifecycle state.
// Unapproved → Approved → Funded → {Paid, Impaired, Unfactored}.
// Impaired may still transition to Paid later: a debtor paying after
// impairment is treated as recovery.
type State int32

const (
	StateUnapproved State = iota
	StateApproved
	StateFunded
	StatePaid
	StateImpaired
	StateUnfactored
)

func (s State) String() string {
	switch s {
	case StateUnapproved:
		return "Unapproved"
	case StateApproved:
		return "Approved"
	case StateFunded:
		return "Funded"
	case StatePaid:
		return "Paid"
	case StateImpaired:
		return "Impaired"
	case StateUnfactored:
		return "Unfactored"
	default:
		return "Unknown"
	}
}

// CanTransitionTo reports whether the lifecycle permits moving to next.
func (s State) CanTransitionTo(next State) bool {
	switch s {
	case StateUnapproved:
		return next == StateApproved
	case StateApproved:
		return next == StateFunded
	case StateFunded:
		return next == StatePaid || next == StateImpaired || next == StateUnfactored
	case StateImpaired:
		// Late payment after impairment is a recovery.
		return next == StatePaid
	default:
		return false
	}
}

// Details is the provider-reported view of a receivable.
type Details struct {
	InvoiceID     uuid.UUID
	Creditor      uuid.UUID
	Debtor        uuid.UUID
	TokenID       uuid.UUID
	InvoiceAmount int64
	PaidAmount    int64
	DueDate       time.Time
	IsPaid        bool
	IsCanceled    bool
}

// ApprovalRecord captures the terms under which a receivable was approved
// and, after funding, the amounts actually advanced. Immutable after funding
// except for the impairment flag tracked alongside in ImpairmentRecord.
type ApprovalRecord struct {
	InvoiceID         uuid.UUID
	Approved          bool
	ValidUntil        time.Time
	TargetYieldBps    int64
	SpreadBps         int64
	ProtocolFeeBps    int64
	AdminFeeBps       int64
	UpfrontBps        int64
	MinInterestDays   int64
	FundedAmountGross int64
	FundedAmountNet   int64
	TargetInterest    int64
	TargetSpread      int64
	TargetAdminFee    int64
	TargetProtocolFee int64
	InitialPaidAmount int64
	FundedAt          time.Time

	// Snapshot taken at approval time so funding can detect that the
	// receivable changed hands or amount after approval.
	CreditorAtApproval uuid.UUID
	AmountAtApproval   int64
}

// Funded reports whether the receivable has been advanced against.
func (a *ApprovalRecord) Funded() bool {
	return a.FundedAmountGross > 0
}

// Advance is the cash that left the pool at funding time: the net payment
// to the creditor plus the upfront protocol fee paid to the sink.
func (a *ApprovalRecord) Advance() int64 {
	return a.FundedAmountNet + a.TargetProtocolFee
}

// ImpairmentRecord is written once when a receivable is marked impaired and
// never reverted.
type ImpairmentRecord struct {
	InvoiceID  uuid.UUID
	GainAmount int64 // covered from impair reserve + spread gains
	LossAmount int64 // realized against the pool
	IsImpaired bool
	ImpairedAt time.Time
}
