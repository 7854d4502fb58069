// Package audit defines the append-only audit log: every externally
// observable state transition of the fund is emitted as a typed event,
// wrapped in an envelope carrying a monotonic sequence and a state-hash
// chain. The wire shape of these events is a stable contract for external
// indexers.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType discriminates audit event payloads.
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeInvoiceApproved
	EventTypeInvoiceFunded
	EventTypeInvoicePaid
	EventTypeInvoiceImpaired
	EventTypeInvoiceUnfactored
	EventTypeKickbackSent
	EventTypeDeposit
	EventTypeRedemptionQueued
	EventTypeRedemptionCancelled
	EventTypeRedemptionProcessed
	EventTypeFeeConfigChanged
	EventTypeFeesWithdrawn
	EventTypeImpairReserveChanged
	EventTypeSharesTransferred
)

func (et EventType) String() string {
	switch et {
	case EventTypeInvoiceApproved:
		return "InvoiceApproved"
	case EventTypeInvoiceFunded:
		return "InvoiceFunded"
	case EventTypeInvoicePaid:
		return "InvoicePaid"
	case EventTypeInvoiceImpaired:
		return "InvoiceImpaired"
	case EventTypeInvoiceUnfactored:
		return "InvoiceUnfactored"
	case EventTypeKickbackSent:
		return "KickbackSent"
	case EventTypeDeposit:
		return "Deposit"
	case EventTypeRedemptionQueued:
		return "RedemptionQueued"
	case EventTypeRedemptionCancelled:
		return "RedemptionCancelled"
	case EventTypeRedemptionProcessed:
		return "RedemptionProcessed"
	case EventTypeFeeConfigChanged:
		return "FeeConfigChanged"
	case EventTypeFeesWithdrawn:
		return "FeesWithdrawn"
	case EventTypeImpairReserveChanged:
		return "ImpairReserveChanged"
	case EventTypeSharesTransferred:
		return "SharesTransferred"
	default:
		return "Unknown"
	}
}

// Envelope wraps every audit event in the log.
type Envelope struct {
	// Monotonic sequence assigned by the engine.
	Sequence int64 `json:"sequence"`

	EventType EventType `json:"event_type"`

	// Invoice context, nil for pool-level events.
	InvoiceID *uuid.UUID `json:"invoice_id,omitempty"`

	// Actor that triggered the operation.
	Actor uuid.UUID `json:"actor"`

	// Engine-clock timestamp of the operation.
	Timestamp time.Time `json:"timestamp"`

	// Event-specific payload.
	Payload interface{} `json:"payload"`

	// SHA-256 of pool state after applying this event.
	StateHash [32]byte `json:"state_hash"`

	// Previous envelope's state hash (chain integrity).
	PrevHash [32]byte `json:"prev_hash"`
}

// --- Payloads ---

type InvoiceApproved struct {
	InvoiceID      uuid.UUID `json:"invoice_id"`
	UpfrontBps     int64     `json:"upfront_bps"`
	TargetYieldBps int64     `json:"target_yield_bps"`
	SpreadBps      int64     `json:"spread_bps"`
	AdminFeeBps    int64     `json:"admin_fee_bps"`
	ProtocolFeeBps int64     `json:"protocol_fee_bps"`
	ValidUntil     time.Time `json:"valid_until"`
}

type InvoiceFunded struct {
	InvoiceID         uuid.UUID `json:"invoice_id"`
	FundedAmountGross int64     `json:"funded_amount_gross"`
	FundedAmountNet   int64     `json:"funded_amount_net"`
	TargetInterest    int64     `json:"target_interest"`
	TargetSpread      int64     `json:"target_spread"`
	TargetAdminFee    int64     `json:"target_admin_fee"`
	TargetProtocolFee int64     `json:"target_protocol_fee"`
	Creditor          uuid.UUID `json:"creditor"`
}

type InvoicePaid struct {
	InvoiceID    uuid.UUID `json:"invoice_id"`
	TrueInterest int64     `json:"true_interest"`
	TrueSpread   int64     `json:"true_spread"`
	TrueAdminFee int64     `json:"true_admin_fee"`
	TrueDays     int64     `json:"true_days"`
	Recovery     bool      `json:"recovery"`
}

type InvoiceImpaired struct {
	InvoiceID  uuid.UUID `json:"invoice_id"`
	GainAmount int64     `json:"gain_amount"`
	LossAmount int64     `json:"loss_amount"`
}

type InvoiceUnfactored struct {
	InvoiceID    uuid.UUID `json:"invoice_id"`
	BuybackPrice int64     `json:"buyback_price"`
	TrueInterest int64     `json:"true_interest"`
	TrueSpread   int64     `json:"true_spread"`
	TrueAdminFee int64     `json:"true_admin_fee"`
}

type KickbackSent struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
	Creditor  uuid.UUID `json:"creditor"`
	Amount    int64     `json:"amount"`
}

type Deposit struct {
	Depositor uuid.UUID `json:"depositor"`
	Assets    int64     `json:"assets"`
	Shares    int64     `json:"shares"`
}

type RedemptionQueued struct {
	Owner    uuid.UUID `json:"owner"`
	Receiver uuid.UUID `json:"receiver"`
	Shares   int64     `json:"shares"`
	Assets   int64     `json:"assets"`
	Index    int       `json:"index"`
}

type RedemptionCancelled struct {
	Owner  uuid.UUID `json:"owner"`
	Index  int       `json:"index"`
	Reason string    `json:"reason"`
}

type RedemptionProcessed struct {
	Owner     uuid.UUID `json:"owner"`
	Receiver  uuid.UUID `json:"receiver"`
	Shares    int64     `json:"shares"`
	Assets    int64     `json:"assets"`
	Remaining int64     `json:"remaining"`
	Queued    bool      `json:"queued"`
}

type FeeConfigChanged struct {
	TargetYieldBps int64 `json:"target_yield_bps"`
	SpreadBps      int64 `json:"spread_bps"`
	AdminFeeBps    int64 `json:"admin_fee_bps"`
	ProtocolFeeBps int64 `json:"protocol_fee_bps"`
	MinUpfrontBps  int64 `json:"min_upfront_bps"`
	MaxUpfrontBps  int64 `json:"max_upfront_bps"`
}

type FeesWithdrawn struct {
	Kind      string    `json:"kind"` // "admin" or "protocol"
	Recipient uuid.UUID `json:"recipient"`
	Amount    int64     `json:"amount"`
}

type ImpairReserveChanged struct {
	OldReserve int64 `json:"old_reserve"`
	NewReserve int64 `json:"new_reserve"`
}

type SharesTransferred struct {
	From   uuid.UUID `json:"from"`
	To     uuid.UUID `json:"to"`
	Shares int64     `json:"shares"`
}
