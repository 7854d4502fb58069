package pool

import (
	"time"

	"github.com/google/uuid"

	"FactorVault/internal/audit"
	"FactorVault/internal/fixedpoint"
	"FactorVault/internal/queue"
)

// drainQueue is the liquidity gate: whenever liquidity frees up (deposit,
// settlement, unfactoring, reserve decrease) the queue pays out strictly in
// FIFO order. The head is never skipped; if it cannot be satisfied in full
// the gate pays what it can against it and stops. Entries whose owner no
// longer holds the queued shares are cancelled without payment.
//
// Callers hold the operation lock.
func (e *Engine) drainQueue(actor uuid.UUID, now time.Time) {
	if e.queue.IsEmpty() {
		return
	}
	if e.metrics != nil {
		e.metrics.DrainRuns.Inc()
	}

	for !e.queue.IsEmpty() {
		head := e.queue.Next()
		index := e.queue.HeadIndex()

		requiredShares := head.Shares
		if head.Assets > 0 {
			requiredShares = e.sharesForAssets(head.Assets)
		}
		if e.store.SharesOf(head.Owner) < requiredShares {
			e.cancelHead(head.Owner, index, "insufficient share balance", now)
			continue
		}

		available := e.AvailableLiquidity()
		if available <= 0 {
			return
		}

		if head.Shares > 0 {
			if !e.drainShareEntry(head, available, now) {
				return
			}
			continue
		}
		if !e.drainAssetEntry(head, available, now) {
			return
		}
	}
}

// drainShareEntry pays a share-denominated head entry. Returns false when
// the gate must stop (head only partially satisfiable or a payout failed).
func (e *Engine) drainShareEntry(head queue.QueuedRedemption, available int64, now time.Time) bool {
	fullAssets := e.ConvertToAssets(head.Shares)
	if fullAssets <= 0 {
		// Shares queued against a written-down pool convert to nothing;
		// cancel rather than wedge the head forever.
		e.cancelHead(head.Owner, e.queue.HeadIndex(), "zero redemption value", now)
		return true
	}

	if fullAssets <= available {
		if err := e.payoutShares(head.Owner, head.Receiver, head.Shares, fullAssets); err != nil {
			e.log.Error().Err(err).Str("owner", head.Owner.String()).Msg("queue payout failed")
			return false
		}
		if _, err := e.queue.RemoveAmountFromFirstOwner(head.Shares); err != nil {
			e.log.Error().Err(err).Msg("queue head removal failed")
			return false
		}
		e.recordDrainPayout(head, head.Shares, fullAssets, 0, now)
		return true
	}

	partialShares := fixedpoint.MulDivFloor(head.Shares, available, fullAssets)
	if partialShares <= 0 {
		return false
	}
	partialAssets := e.ConvertToAssets(partialShares)
	if partialAssets > available {
		partialAssets = available
	}
	if err := e.payoutShares(head.Owner, head.Receiver, partialShares, partialAssets); err != nil {
		e.log.Error().Err(err).Str("owner", head.Owner.String()).Msg("queue payout failed")
		return false
	}
	if _, err := e.queue.RemoveAmountFromFirstOwner(partialShares); err != nil {
		e.log.Error().Err(err).Msg("queue head removal failed")
		return false
	}
	e.recordDrainPayout(head, partialShares, partialAssets, head.Shares-partialShares, now)
	return false
}

// drainAssetEntry pays an asset-denominated head entry up to available
// liquidity. Returns false when the gate must stop.
func (e *Engine) drainAssetEntry(head queue.QueuedRedemption, available int64, now time.Time) bool {
	payAssets := head.Assets
	if payAssets > available {
		payAssets = available
	}
	burn := e.sharesForAssets(payAssets)
	if payAssets <= 0 || burn <= 0 {
		return false
	}
	if burn > e.store.SharesOf(head.Owner) {
		e.cancelHead(head.Owner, e.queue.HeadIndex(), "insufficient share balance", now)
		return true
	}
	if err := e.payoutShares(head.Owner, head.Receiver, burn, payAssets); err != nil {
		e.log.Error().Err(err).Str("owner", head.Owner.String()).Msg("queue payout failed")
		return false
	}
	if _, err := e.queue.RemoveAmountFromFirstOwner(payAssets); err != nil {
		e.log.Error().Err(err).Msg("queue head removal failed")
		return false
	}
	e.recordDrainPayout(head, burn, payAssets, head.Assets-payAssets, now)
	return payAssets == head.Assets
}

func (e *Engine) cancelHead(owner uuid.UUID, index int, reason string, now time.Time) {
	if err := e.queue.Cancel(index); err != nil {
		e.log.Error().Err(err).Int("index", index).Msg("queue head cancel failed")
		return
	}
	e.emit(audit.EventTypeRedemptionCancelled, nil, owner, now, audit.RedemptionCancelled{
		Owner:  owner,
		Index:  index,
		Reason: reason,
	})
	if e.metrics != nil {
		e.metrics.RedemptionsCancelled.WithLabelValues("undercollateralized").Inc()
	}
	e.log.Warn().
		Str("owner", owner.String()).
		Int("index", index).
		Str("reason", reason).
		Msg("queued redemption cancelled by gate")
}

func (e *Engine) recordDrainPayout(head queue.QueuedRedemption, shares, assets, remaining int64, now time.Time) {
	e.emit(audit.EventTypeRedemptionProcessed, nil, head.Owner, now, audit.RedemptionProcessed{
		Owner:     head.Owner,
		Receiver:  head.Receiver,
		Shares:    shares,
		Assets:    assets,
		Remaining: remaining,
		Queued:    remaining > 0,
	})
	if e.metrics != nil {
		e.metrics.RedemptionsProcessed.WithLabelValues("drain").Inc()
		e.metrics.DrainPayoutTotal.Add(float64(assets))
	}
}
