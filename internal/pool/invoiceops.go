package pool

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"FactorVault/internal/audit"
	"FactorVault/internal/fees"
	"FactorVault/internal/invoice"
)

// termsFor reconstructs fee terms from an approval record. The interest cap
// is a pool-level parameter, not locked per approval.
func (e *Engine) termsFor(rec *invoice.ApprovalRecord) fees.Terms {
	return fees.Terms{
		TargetYieldBps:  rec.TargetYieldBps,
		SpreadBps:       rec.SpreadBps,
		AdminFeeBps:     rec.AdminFeeBps,
		ProtocolFeeBps:  rec.ProtocolFeeBps,
		UpfrontBps:      rec.UpfrontBps,
		MinInterestDays: rec.MinInterestDays,
		InterestCapBps:  e.cfg.InterestCapBps,
	}
}

// ApproveInvoice records an approval under the current fee schedule with
// the chosen upfront fraction. Re-approving an unfunded receivable
// overwrites the earlier approval, locking in the schedule as of now.
func (e *Engine) ApproveInvoice(actor, invoiceID uuid.UUID, upfrontBps int64) (rec *invoice.ApprovalRecord, err error) {
	defer e.instrument("approve_invoice", time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err = e.access.Require(actor, RoleUnderwriter); err != nil {
		return nil, err
	}
	if verr := fees.ValidateUpfrontBps(upfrontBps, e.cfg.Fees.MinUpfrontBps, e.cfg.Fees.MaxUpfrontBps); verr != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBps, verr)
	}

	details, err := e.invoices.GetInvoiceDetails(invoiceID)
	if err != nil {
		return nil, err
	}
	if details.IsCanceled {
		return nil, ErrInvoiceCanceled
	}
	if details.IsPaid {
		return nil, ErrInvoicePaid
	}
	if details.TokenID != e.tokenID {
		return nil, ErrTokenMismatch
	}
	if details.InvoiceAmount <= 0 {
		return nil, ErrInvalidAmount
	}

	switch e.store.State(invoiceID) {
	case invoice.StateUnapproved, invoice.StateApproved:
	default:
		return nil, ErrInvoiceAlreadyFunded
	}

	now := e.clock.Now()
	locked := e.cfg.terms(upfrontBps)
	rec = &invoice.ApprovalRecord{
		InvoiceID:          invoiceID,
		Approved:           true,
		ValidUntil:         now.Add(e.cfg.ApprovalDuration),
		TargetYieldBps:     locked.TargetYieldBps,
		SpreadBps:          locked.SpreadBps,
		ProtocolFeeBps:     locked.ProtocolFeeBps,
		AdminFeeBps:        locked.AdminFeeBps,
		UpfrontBps:         locked.UpfrontBps,
		MinInterestDays:    locked.MinInterestDays,
		CreditorAtApproval: details.Creditor,
		AmountAtApproval:   details.InvoiceAmount,
	}
	e.store.setApproval(rec)

	e.emit(audit.EventTypeInvoiceApproved, &invoiceID, actor, now, audit.InvoiceApproved{
		InvoiceID:      invoiceID,
		UpfrontBps:     upfrontBps,
		TargetYieldBps: rec.TargetYieldBps,
		SpreadBps:      rec.SpreadBps,
		AdminFeeBps:    rec.AdminFeeBps,
		ProtocolFeeBps: rec.ProtocolFeeBps,
		ValidUntil:     rec.ValidUntil,
	})
	if e.metrics != nil {
		e.metrics.InvoicesApproved.Inc()
	}
	e.updateGauges()
	return rec, nil
}

// FundInvoice advances cash against an approved receivable: the creditor
// receives the net amount, the upfront protocol fee accrues to the protocol
// sink, and the claim transfers to the pool. Funding is capital-neutral;
// the pool exchanges cash for a receivable carried at the advance.
func (e *Engine) FundInvoice(actor, invoiceID uuid.UUID) (rec *invoice.ApprovalRecord, err error) {
	defer e.instrument("fund_invoice", time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err = e.access.Require(actor, RoleOperator); err != nil {
		return nil, err
	}

	rec, ok := e.store.Approval(invoiceID)
	if !ok || !rec.Approved {
		return nil, ErrInvoiceNotApproved
	}
	if e.store.State(invoiceID) != invoice.StateApproved {
		return nil, ErrInvoiceAlreadyFunded
	}

	now := e.clock.Now()
	if now.After(rec.ValidUntil) {
		return nil, ErrApprovalExpired
	}

	details, err := e.invoices.GetInvoiceDetails(invoiceID)
	if err != nil {
		return nil, err
	}
	if details.IsCanceled {
		return nil, ErrInvoiceCanceled
	}
	if details.IsPaid {
		return nil, ErrInvoicePaid
	}
	if details.TokenID != e.tokenID {
		return nil, ErrTokenMismatch
	}
	if details.Creditor != rec.CreditorAtApproval {
		return nil, ErrCreditorChanged
	}
	if details.InvoiceAmount != rec.AmountAtApproval {
		return nil, ErrAmountChanged
	}

	target := fees.CalculateTargetFees(details.InvoiceAmount, e.termsFor(rec), wholeDaysBetween(now, details.DueDate))
	if target.NetFunded <= 0 {
		return nil, ErrInvalidAmount
	}

	advance := target.NetFunded + target.ProtocolFee
	if advance > e.AvailableLiquidity() {
		return nil, ErrInsufficientLiquidity
	}

	if err = e.assets.TransferOut(details.Creditor, target.NetFunded); err != nil {
		return nil, err
	}
	if err = e.invoices.TransferOwnership(invoiceID, e.poolID); err != nil {
		// Undo the payout; the claim never moved.
		if rerr := e.assets.TransferIn(details.Creditor, target.NetFunded); rerr != nil {
			e.log.Error().Err(rerr).
				Str("invoice_id", invoiceID.String()).
				Msg("failed to roll back funding payout")
		}
		return nil, err
	}

	rec.FundedAmountGross = target.GrossFunded
	rec.FundedAmountNet = target.NetFunded
	rec.TargetInterest = target.Interest
	rec.TargetSpread = target.Spread
	rec.TargetAdminFee = target.AdminFee
	rec.TargetProtocolFee = target.ProtocolFee
	rec.InitialPaidAmount = details.PaidAmount
	rec.FundedAt = now

	// The upfront protocol fee never leaves the pool account here; it is
	// earmarked for the sink and withdrawable only by it.
	e.store.protocolFeeBalance += target.ProtocolFee
	e.store.deployedCapital += advance
	e.store.markFunded(invoiceID)

	e.emit(audit.EventTypeInvoiceFunded, &invoiceID, actor, now, audit.InvoiceFunded{
		InvoiceID:         invoiceID,
		FundedAmountGross: target.GrossFunded,
		FundedAmountNet:   target.NetFunded,
		TargetInterest:    target.Interest,
		TargetSpread:      target.Spread,
		TargetAdminFee:    target.AdminFee,
		TargetProtocolFee: target.ProtocolFee,
		Creditor:          details.Creditor,
	})

	e.log.Info().
		Str("invoice_id", invoiceID.String()).
		Int64("gross", target.GrossFunded).
		Int64("net", target.NetFunded).
		Int64("advance", advance).
		Msg("invoice funded")

	if e.metrics != nil {
		e.metrics.InvoicesFunded.Inc()
		e.metrics.AdvanceTotal.Add(float64(advance))
	}
	e.updateGauges()
	return rec, nil
}

// UnfactorInvoice sells the receivable back to the financed party for the
// outstanding advance plus fees accrued to this instant. The upfront
// protocol fee is not refunded. Buyback cash frees liquidity, so the queue
// drains afterwards.
func (e *Engine) UnfactorInvoice(actor, invoiceID uuid.UUID) (price int64, err error) {
	defer e.instrument("unfactor_invoice", time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.store.Approval(invoiceID)
	if !ok || !rec.Funded() {
		return 0, ErrInvoiceNotFunded
	}
	if !e.store.State(invoiceID).CanTransitionTo(invoice.StateUnfactored) {
		return 0, ErrInvoiceNotFunded
	}
	if actor != rec.CreditorAtApproval {
		return 0, ErrNotFactorer
	}

	details, err := e.invoices.GetInvoiceDetails(invoiceID)
	if err != nil {
		return 0, err
	}
	if details.IsPaid {
		return 0, ErrInvoicePaid
	}

	now := e.clock.Now()
	paidSince := details.PaidAmount - rec.InitialPaidAmount
	price, s := fees.UnfactorPrice(
		rec.FundedAmountGross, rec.Advance(), e.termsFor(rec),
		wholeDaysBetween(rec.FundedAt, now), paidSince,
	)

	if price > 0 {
		if err = e.assets.TransferIn(actor, price); err != nil {
			return 0, err
		}
	}
	if err = e.invoices.TransferOwnership(invoiceID, actor); err != nil {
		if price > 0 {
			if rerr := e.assets.TransferOut(actor, price); rerr != nil {
				e.log.Error().Err(rerr).
					Str("invoice_id", invoiceID.String()).
					Msg("failed to roll back unfactor payment")
			}
		}
		return 0, err
	}

	e.store.deployedCapital -= rec.Advance()
	e.store.spreadGainsBalance += s.TrueSpread
	e.store.adminFeeBalance += s.TrueAdminFee
	e.store.realizedGain += s.TrueInterest
	e.store.states[invoiceID] = invoice.StateUnfactored
	e.store.removeFromActive(invoiceID)

	e.emit(audit.EventTypeInvoiceUnfactored, &invoiceID, actor, now, audit.InvoiceUnfactored{
		InvoiceID:    invoiceID,
		BuybackPrice: price,
		TrueInterest: s.TrueInterest,
		TrueSpread:   s.TrueSpread,
		TrueAdminFee: s.TrueAdminFee,
	})

	e.log.Info().
		Str("invoice_id", invoiceID.String()).
		Int64("price", price).
		Int64("true_days", s.TrueDays).
		Msg("invoice unfactored")

	if e.metrics != nil {
		e.metrics.InvoicesSettled.WithLabelValues("unfactored").Inc()
	}
	e.drainQueue(actor, now)
	e.updateGauges()
	return price, nil
}

// ImpairInvoice writes a funded receivable down after its grace period
// elapses unpaid. Coverage draws from the impair reserve first, then
// accumulated spread gains; only the uncovered remainder hits depositors.
// The receivable leaves the active set but a later debtor payment is still
// honored as a recovery.
func (e *Engine) ImpairInvoice(actor, invoiceID uuid.UUID) (imp *invoice.ImpairmentRecord, err error) {
	defer e.instrument("impair_invoice", time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err = e.access.Require(actor, RoleOperator); err != nil {
		return nil, err
	}

	rec, ok := e.store.Approval(invoiceID)
	if !ok || !rec.Funded() {
		return nil, ErrInvoiceNotFunded
	}
	switch e.store.State(invoiceID) {
	case invoice.StateFunded:
	case invoice.StateImpaired:
		return nil, ErrAlreadyImpaired
	default:
		return nil, ErrInvoiceNotFunded
	}

	details, err := e.invoices.GetInvoiceDetails(invoiceID)
	if err != nil {
		return nil, err
	}
	if details.IsPaid {
		return nil, ErrInvoicePaid
	}

	now := e.clock.Now()
	graceEnd := details.DueDate.Add(time.Duration(e.cfg.GracePeriodDays) * 24 * time.Hour)
	if !now.After(graceEnd) {
		return nil, ErrGracePeriodNotElapsed
	}

	paidSince := details.PaidAmount - rec.InitialPaidAmount
	outstanding := rec.Advance() - paidSince
	if outstanding < 0 {
		outstanding = 0
	}

	coverage := e.store.impairReserve + e.store.spreadGainsBalance
	if coverage > outstanding {
		coverage = outstanding
	}
	reserveDraw := coverage
	if reserveDraw > e.store.impairReserve {
		reserveDraw = e.store.impairReserve
	}
	spreadDraw := coverage - reserveDraw
	loss := outstanding - coverage

	e.store.deployedCapital -= rec.Advance()
	e.store.impairReserve -= reserveDraw
	e.store.spreadGainsBalance -= spreadDraw
	e.store.realizedLoss += loss

	imp = &invoice.ImpairmentRecord{
		InvoiceID:  invoiceID,
		GainAmount: coverage,
		LossAmount: loss,
		IsImpaired: true,
		ImpairedAt: now,
	}
	e.store.markImpaired(imp)
	e.store.removeFromActive(invoiceID)

	e.emit(audit.EventTypeInvoiceImpaired, &invoiceID, actor, now, audit.InvoiceImpaired{
		InvoiceID:  invoiceID,
		GainAmount: coverage,
		LossAmount: loss,
	})

	e.log.Warn().
		Str("invoice_id", invoiceID.String()).
		Int64("outstanding", outstanding).
		Int64("covered", coverage).
		Int64("loss", loss).
		Msg("invoice impaired")

	if e.metrics != nil {
		e.metrics.InvoicesSettled.WithLabelValues("impaired").Inc()
		e.metrics.ImpairLossTotal.Add(float64(loss))
	}
	e.updateGauges()
	return imp, nil
}

// --- Reads ---

// PreviewTargetFees computes the fee schedule an approved receivable would
// be funded under right now.
func (e *Engine) PreviewTargetFees(invoiceID uuid.UUID) (fees.TargetFees, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.store.Approval(invoiceID)
	if !ok || !rec.Approved {
		return fees.TargetFees{}, ErrInvoiceNotApproved
	}
	details, err := e.invoices.GetInvoiceDetails(invoiceID)
	if err != nil {
		return fees.TargetFees{}, err
	}
	return fees.CalculateTargetFees(
		details.InvoiceAmount, e.termsFor(rec),
		wholeDaysBetween(e.clock.Now(), details.DueDate),
	), nil
}

// CalculateKickbackAmount computes the settlement a funded receivable would
// produce if the provider reported it paid right now.
func (e *Engine) CalculateKickbackAmount(invoiceID uuid.UUID) (fees.SettlementFees, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.store.Approval(invoiceID)
	if !ok || !rec.Funded() {
		return fees.SettlementFees{}, ErrInvoiceNotFunded
	}
	details, err := e.invoices.GetInvoiceDetails(invoiceID)
	if err != nil {
		return fees.SettlementFees{}, err
	}
	return fees.CalculateSettlementFees(
		rec.FundedAmountGross, rec.Advance(), e.termsFor(rec),
		wholeDaysBetween(rec.FundedAt, e.clock.Now()),
		details.PaidAmount-rec.InitialPaidAmount,
	), nil
}

// PreviewUnfactorPrice quotes the buyback price as of now.
func (e *Engine) PreviewUnfactorPrice(invoiceID uuid.UUID) (int64, fees.SettlementFees, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.store.Approval(invoiceID)
	if !ok || !rec.Funded() {
		return 0, fees.SettlementFees{}, ErrInvoiceNotFunded
	}
	if e.store.State(invoiceID) != invoice.StateFunded {
		return 0, fees.SettlementFees{}, ErrInvoiceNotFunded
	}
	details, err := e.invoices.GetInvoiceDetails(invoiceID)
	if err != nil {
		return 0, fees.SettlementFees{}, err
	}
	price, s := fees.UnfactorPrice(
		rec.FundedAmountGross, rec.Advance(), e.termsFor(rec),
		wholeDaysBetween(rec.FundedAt, e.clock.Now()),
		details.PaidAmount-rec.InitialPaidAmount,
	)
	return price, s, nil
}

// Approval returns the approval record for a receivable.
func (e *Engine) Approval(invoiceID uuid.UUID) (*invoice.ApprovalRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Approval(invoiceID)
}

// Impairment returns the impairment record for a receivable.
func (e *Engine) Impairment(invoiceID uuid.UUID) (*invoice.ImpairmentRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Impairment(invoiceID)
}

// InvoiceState returns the engine's lifecycle state for a receivable.
func (e *Engine) InvoiceState(invoiceID uuid.UUID) invoice.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.State(invoiceID)
}

// ActiveInvoices lists funded, unsettled receivables in funding order.
func (e *Engine) ActiveInvoices() []uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.ActiveInvoices()
}
