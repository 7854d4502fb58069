package pool

import (
	"time"

	"github.com/google/uuid"

	"FactorVault/internal/audit"
	"FactorVault/internal/fees"
	"FactorVault/internal/invoice"
)

// ReconcileActivePaidInvoices scans the active set for receivables the
// provider reports paid and settles each one: true fees replace target
// fees, the kickback rebates to the original creditor, and the receivable
// leaves the active set. Impaired receivables that later show paid settle
// as recoveries. The scan is idempotent; settled invoices are no longer
// scanned. Permissionless by design, so anyone can keep the fund current.
//
// Debtor payments land on the pool's asset ledger account out of band; this
// operation only recognizes them.
func (e *Engine) ReconcileActivePaidInvoices(actor uuid.UUID) (settled []uuid.UUID, err error) {
	defer e.instrument("reconcile", time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()

	for _, id := range e.store.ActiveInvoices() {
		details, derr := e.invoices.GetInvoiceDetails(id)
		if derr != nil {
			e.log.Error().Err(derr).Str("invoice_id", id.String()).Msg("reconcile: provider lookup failed")
			continue
		}
		if !details.IsPaid {
			continue
		}
		if serr := e.settlePaid(actor, id, details, now); serr != nil {
			e.log.Error().Err(serr).Str("invoice_id", id.String()).Msg("reconcile: settlement failed")
			continue
		}
		settled = append(settled, id)
	}

	// Recoveries: impaired receivables the debtor eventually paid, scanned
	// in impairment order so settlement order is reproducible on replay.
	for _, id := range e.store.ImpairedInvoices() {
		imp, ok := e.store.Impairment(id)
		if !ok || !imp.IsImpaired || e.store.State(id) != invoice.StateImpaired {
			continue
		}
		details, derr := e.invoices.GetInvoiceDetails(id)
		if derr != nil || !details.IsPaid {
			continue
		}
		if serr := e.settleRecovery(actor, id, details, now); serr != nil {
			e.log.Error().Err(serr).Str("invoice_id", id.String()).Msg("reconcile: recovery failed")
			continue
		}
		settled = append(settled, id)
	}

	if len(settled) > 0 {
		e.drainQueue(actor, now)
		e.updateGauges()
	}
	return settled, nil
}

// settlePaid settles an active receivable reported paid. The pool keeps the
// advance plus true fees; the excess principal rebates to the creditor.
// Capital gains exactly the true interest; spread and admin components
// accrue to their buffers.
func (e *Engine) settlePaid(actor, id uuid.UUID, details invoice.Details, now time.Time) error {
	rec, ok := e.store.Approval(id)
	if !ok || !rec.Funded() {
		return ErrInvoiceNotFunded
	}
	if !e.store.State(id).CanTransitionTo(invoice.StatePaid) {
		return ErrInvoiceNotFunded
	}

	paidSince := details.PaidAmount - rec.InitialPaidAmount
	s := fees.CalculateSettlementFees(
		rec.FundedAmountGross, rec.Advance(), e.termsFor(rec),
		wholeDaysBetween(rec.FundedAt, now), paidSince,
	)

	if s.Kickback > 0 {
		if err := e.assets.TransferOut(rec.CreditorAtApproval, s.Kickback); err != nil {
			return err
		}
	}

	e.store.deployedCapital -= rec.Advance()
	e.store.spreadGainsBalance += s.TrueSpread
	e.store.adminFeeBalance += s.TrueAdminFee
	e.store.realizedGain += s.TrueInterest
	e.store.states[id] = invoice.StatePaid
	e.store.removeFromActive(id)

	e.emit(audit.EventTypeInvoicePaid, &id, actor, now, audit.InvoicePaid{
		InvoiceID:    id,
		TrueInterest: s.TrueInterest,
		TrueSpread:   s.TrueSpread,
		TrueAdminFee: s.TrueAdminFee,
		TrueDays:     s.TrueDays,
	})
	if s.Kickback > 0 {
		e.emit(audit.EventTypeKickbackSent, &id, actor, now, audit.KickbackSent{
			InvoiceID: id,
			Creditor:  rec.CreditorAtApproval,
			Amount:    s.Kickback,
		})
	}

	e.log.Info().
		Str("invoice_id", id.String()).
		Int64("true_interest", s.TrueInterest).
		Int64("true_days", s.TrueDays).
		Int64("kickback", s.Kickback).
		Msg("invoice settled")

	if e.metrics != nil {
		e.metrics.InvoicesSettled.WithLabelValues("paid").Inc()
		e.metrics.KickbackTotal.Add(float64(s.Kickback))
	}
	return nil
}

// settleRecovery handles a debtor paying after impairment. The write-down
// already happened, so the cash the pool keeps is recorded as realized
// gain; spread and admin take their cut only from what the cash covers.
// The creditor's kickback is honored exactly as in a normal settlement.
func (e *Engine) settleRecovery(actor, id uuid.UUID, details invoice.Details, now time.Time) error {
	rec, ok := e.store.Approval(id)
	if !ok || !rec.Funded() {
		return ErrInvoiceNotFunded
	}
	if !e.store.State(id).CanTransitionTo(invoice.StatePaid) {
		return ErrInvoiceNotFunded
	}

	paidSince := details.PaidAmount - rec.InitialPaidAmount
	s := fees.CalculateSettlementFees(
		rec.FundedAmountGross, rec.Advance(), e.termsFor(rec),
		wholeDaysBetween(rec.FundedAt, now), paidSince,
	)

	if s.Kickback > 0 {
		if err := e.assets.TransferOut(rec.CreditorAtApproval, s.Kickback); err != nil {
			return err
		}
	}

	poolKeeps := paidSince - s.Kickback
	if poolKeeps < 0 {
		poolKeeps = 0
	}
	spreadTake := s.TrueSpread
	if spreadTake > poolKeeps {
		spreadTake = poolKeeps
	}
	adminTake := s.TrueAdminFee
	if adminTake > poolKeeps-spreadTake {
		adminTake = poolKeeps - spreadTake
	}
	gainTake := poolKeeps - spreadTake - adminTake

	e.store.spreadGainsBalance += spreadTake
	e.store.adminFeeBalance += adminTake
	e.store.realizedGain += gainTake
	e.store.states[id] = invoice.StatePaid
	e.store.removeFromImpaired(id)

	// The payload carries the amounts actually booked, which the recovered
	// cash caps; the accrual schedule is irrelevant once written down.
	e.emit(audit.EventTypeInvoicePaid, &id, actor, now, audit.InvoicePaid{
		InvoiceID:    id,
		TrueInterest: gainTake,
		TrueSpread:   spreadTake,
		TrueAdminFee: adminTake,
		TrueDays:     s.TrueDays,
		Recovery:     true,
	})
	if s.Kickback > 0 {
		e.emit(audit.EventTypeKickbackSent, &id, actor, now, audit.KickbackSent{
			InvoiceID: id,
			Creditor:  rec.CreditorAtApproval,
			Amount:    s.Kickback,
		})
	}

	e.log.Info().
		Str("invoice_id", id.String()).
		Int64("recovered", poolKeeps).
		Msg("impaired invoice recovered")

	if e.metrics != nil {
		e.metrics.InvoicesSettled.WithLabelValues("recovery").Inc()
		e.metrics.KickbackTotal.Add(float64(s.Kickback))
	}
	return nil
}
