// Package pool implements the fund engine: share accounting, receivable
// funding and settlement, the deferred-redemption queue and its liquidity
// gate, and the audit event stream. All mutating operations serialize on a
// single lock; the engine is deterministic given the same operation order
// and clock readings.
package pool

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"FactorVault/internal/asset"
	"FactorVault/internal/audit"
	"FactorVault/internal/fixedpoint"
	"FactorVault/internal/invoice"
	"FactorVault/internal/observability"
	"FactorVault/internal/queue"
)

// Engine is the fund's single writer. External surfaces (HTTP API,
// reconcile loop) call into it; it owns the store, the redemption queue,
// and the audit sequence.
type Engine struct {
	mu sync.Mutex

	cfg      Config
	store    *Store
	queue    *queue.RedemptionQueue
	assets   asset.LedgerAdapter
	invoices invoice.Provider
	access   *AccessControl
	clock    Clock

	// poolID is the pool's own account on the asset ledger and the owner
	// of record for funded receivables.
	poolID uuid.UUID

	// tokenID is the reference asset; invoices denominated in anything
	// else are rejected at approval and funding.
	tokenID uuid.UUID

	sequence int64
	hasher   *audit.StateHasher

	// persistChan blocks when full: the durable audit log must not lose
	// events. publishChan drops when full: live subscribers can refetch.
	persistChan chan<- audit.Envelope
	publishChan chan<- audit.Envelope

	metrics *observability.Metrics
	log     zerolog.Logger
}

// Deps bundles the engine's collaborators. Channels and metrics may be nil
// (tests run without persistence or a registry).
type Deps struct {
	Store    *Store
	Queue    *queue.RedemptionQueue
	Assets   asset.LedgerAdapter
	Invoices invoice.Provider
	Access   *AccessControl
	Clock    Clock

	PoolID  uuid.UUID
	TokenID uuid.UUID

	StartSequence int64
	PersistChan   chan<- audit.Envelope
	PublishChan   chan<- audit.Envelope

	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

func NewEngine(cfg Config, d Deps) *Engine {
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	return &Engine{
		cfg:         cfg,
		store:       d.Store,
		queue:       d.Queue,
		assets:      d.Assets,
		invoices:    d.Invoices,
		access:      d.Access,
		clock:       d.Clock,
		poolID:      d.PoolID,
		tokenID:     d.TokenID,
		sequence:    d.StartSequence,
		hasher:      audit.NewStateHasher(),
		persistChan: d.PersistChan,
		publishChan: d.PublishChan,
		metrics:     d.Metrics,
		log:         d.Logger,
	}
}

// Sequence returns the last assigned audit sequence.
func (e *Engine) Sequence() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequence
}

// Config returns the current operational parameters.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Access exposes role lookups for the API layer.
func (e *Engine) Access() *AccessControl {
	return e.access
}

// emit appends one envelope to the audit log: assigns the next sequence,
// folds the post-state digest into the hash chain, then hands the envelope
// to the durable writer (blocking) and the live publisher (best effort).
// Callers hold the operation lock.
func (e *Engine) emit(eventType audit.EventType, invoiceID *uuid.UUID, actor uuid.UUID, now time.Time, payload interface{}) {
	e.sequence++

	hashStart := time.Now()
	prev := e.hasher.PrevHash()
	hash := e.hasher.ComputeHash(e.sequence, e.store.DigestBytes())
	if e.metrics != nil {
		e.metrics.StateHashDur.Observe(time.Since(hashStart).Seconds())
		e.metrics.AuditSeq.Set(float64(e.sequence))
	}

	env := audit.Envelope{
		Sequence:  e.sequence,
		EventType: eventType,
		InvoiceID: invoiceID,
		Actor:     actor,
		Timestamp: now,
		Payload:   payload,
		StateHash: hash,
		PrevHash:  prev,
	}

	if e.persistChan != nil {
		select {
		case e.persistChan <- env:
		default:
			if e.metrics != nil {
				e.metrics.PersistBackpressure.Inc()
			}
			e.persistChan <- env
		}
	}

	if e.publishChan != nil {
		select {
		case e.publishChan <- env:
		default:
			if e.metrics != nil {
				e.metrics.PublishDrops.Inc()
			}
			e.log.Warn().
				Int64("sequence", env.Sequence).
				Str("event_type", eventType.String()).
				Msg("publish channel full, dropping audit event")
		}
	}
}

// instrument records operation metrics. Used via defer with a named error
// return so both outcomes are counted once.
func (e *Engine) instrument(op string, start time.Time, errp *error) {
	if e.metrics == nil {
		return
	}
	e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if *errp != nil {
		e.metrics.OpsRejected.WithLabelValues(op, rejectReason(*errp)).Inc()
		return
	}
	e.metrics.OpsApplied.WithLabelValues(op).Inc()
}

// rejectReason maps errors to a low-cardinality metric label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNotAuthorized):
		return "unauthorized"
	case errors.Is(err, ErrInsufficientLiquidity):
		return "liquidity"
	case errors.Is(err, ErrInsufficientShares),
		errors.Is(err, ErrInsufficientFees):
		return "balance"
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidBps),
		errors.Is(err, ErrZeroAddress):
		return "validation"
	default:
		return "state"
	}
}

// updateGauges refreshes fund-level gauges after a mutating operation.
// Callers hold the operation lock.
func (e *Engine) updateGauges() {
	if e.metrics == nil {
		return
	}
	stats := e.queue.GetStats()
	e.metrics.CapitalAccount.Set(float64(e.CalculateCapitalAccount()))
	e.metrics.PricePerShare.Set(float64(e.PricePerShare()))
	e.metrics.TotalShares.Set(float64(e.store.totalShares))
	e.metrics.LiquidAssets.Set(float64(e.assets.PoolBalance()))
	e.metrics.AvailableLiquidity.Set(float64(e.AvailableLiquidity()))
	e.metrics.DeployedCapital.Set(float64(e.store.deployedCapital))
	e.metrics.AdminFeeBalance.Set(float64(e.store.adminFeeBalance))
	e.metrics.ProtocolFeeBalance.Set(float64(e.store.protocolFeeBalance))
	e.metrics.SpreadGainsBalance.Set(float64(e.store.spreadGainsBalance))
	e.metrics.ImpairReserve.Set(float64(e.store.impairReserve))
	e.metrics.ActiveInvoices.Set(float64(len(e.store.active)))
	e.metrics.QueueLength.Set(float64(stats.Length))
	e.metrics.QueueShares.Set(float64(stats.TotalShares))
	e.metrics.QueueAssets.Set(float64(stats.TotalAssets))
	e.metrics.QueueArenaLength.Set(float64(e.queue.ArenaLength()))
}

// wholeDaysBetween counts complete 24h periods from from to to, never
// negative. All accrual math runs on whole days.
func wholeDaysBetween(from, to time.Time) int64 {
	if !to.After(from) {
		return 0
	}
	return int64(to.Sub(from) / (24 * time.Hour))
}

// sharesForAssets converts an asset amount into shares to burn, rounding
// against the redeemer so the pool never pays out more value than burned.
func (e *Engine) sharesForAssets(assets int64) int64 {
	shares := e.ConvertToShares(assets)
	if e.ConvertToAssets(shares) < assets {
		shares++
	}
	return shares
}

// --- Deposits ---

// Deposit pulls assets from the depositor and mints shares to the receiver
// at the current price. A deposit raises liquidity, so the redemption queue
// drains afterwards.
func (e *Engine) Deposit(actor, receiver uuid.UUID, assets int64) (shares int64, err error) {
	defer e.instrument("deposit", time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	if receiver == uuid.Nil {
		return 0, ErrZeroAddress
	}
	if assets <= 0 {
		return 0, ErrInvalidAmount
	}

	shares = e.ConvertToShares(assets)
	if shares <= 0 {
		return 0, ErrInvalidAmount
	}

	if err = e.assets.TransferIn(actor, assets); err != nil {
		return 0, err
	}
	e.store.mintShares(receiver, shares)

	now := e.clock.Now()
	e.emit(audit.EventTypeDeposit, nil, actor, now, audit.Deposit{
		Depositor: receiver,
		Assets:    assets,
		Shares:    shares,
	})

	e.log.Info().
		Str("depositor", receiver.String()).
		Int64("assets", assets).
		Int64("shares", shares).
		Msg("deposit")

	e.drainQueue(actor, now)
	e.updateGauges()
	return shares, nil
}

// --- Redemptions ---

// RedeemResult reports how a redemption request split between an immediate
// payout and a queued remainder.
type RedeemResult struct {
	DirectShares int64
	DirectAssets int64
	QueuedShares int64
	QueuedAssets int64
	QueueIndex   int
	Queued       bool
}

// Redeem burns up to shares from the actor, paying the receiver what
// current liquidity allows and queuing the remainder share-denominated.
// Queuing replaces any earlier active entry the actor holds.
func (e *Engine) Redeem(actor, receiver uuid.UUID, shares int64) (res RedeemResult, err error) {
	defer e.instrument("redeem", time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	if receiver == uuid.Nil {
		return res, ErrZeroAddress
	}
	if shares <= 0 {
		return res, ErrInvalidAmount
	}
	if e.store.SharesOf(actor) < shares {
		return res, ErrInsufficientShares
	}

	assetsOut := e.ConvertToAssets(shares)
	if assetsOut <= 0 {
		return res, ErrInvalidAmount
	}

	now := e.clock.Now()
	available := e.AvailableLiquidity()

	if assetsOut <= available {
		if err = e.payoutShares(actor, receiver, shares, assetsOut); err != nil {
			return res, err
		}
		e.emit(audit.EventTypeRedemptionProcessed, nil, actor, now, audit.RedemptionProcessed{
			Owner:    actor,
			Receiver: receiver,
			Shares:   shares,
			Assets:   assetsOut,
		})
		if e.metrics != nil {
			e.metrics.RedemptionsProcessed.WithLabelValues("direct").Inc()
		}
		e.updateGauges()
		return RedeemResult{DirectShares: shares, DirectAssets: assetsOut}, nil
	}

	directShares := fixedpoint.MulDivFloor(shares, available, assetsOut)
	directAssets := e.ConvertToAssets(directShares)
	if directAssets > available {
		directAssets = available
	}
	if directShares > 0 {
		if err = e.payoutShares(actor, receiver, directShares, directAssets); err != nil {
			return res, err
		}
	}

	queuedShares := shares - directShares
	index, qerr := e.enqueue(actor, receiver, queuedShares, 0, now)
	if qerr != nil {
		return res, qerr
	}

	if directShares > 0 {
		e.emit(audit.EventTypeRedemptionProcessed, nil, actor, now, audit.RedemptionProcessed{
			Owner:     actor,
			Receiver:  receiver,
			Shares:    directShares,
			Assets:    directAssets,
			Remaining: queuedShares,
			Queued:    true,
		})
		if e.metrics != nil {
			e.metrics.RedemptionsProcessed.WithLabelValues("direct").Inc()
		}
	}

	e.log.Info().
		Str("owner", actor.String()).
		Int64("direct_shares", directShares).
		Int64("queued_shares", queuedShares).
		Int("queue_index", index).
		Msg("redemption partially queued")

	e.updateGauges()
	return RedeemResult{
		DirectShares: directShares,
		DirectAssets: directAssets,
		QueuedShares: queuedShares,
		QueueIndex:   index,
		Queued:       true,
	}, nil
}

// Withdraw pays the receiver an exact asset amount, burning shares at the
// current price and queuing any shortfall asset-denominated.
func (e *Engine) Withdraw(actor, receiver uuid.UUID, assets int64) (res RedeemResult, err error) {
	defer e.instrument("withdraw", time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	if receiver == uuid.Nil {
		return res, ErrZeroAddress
	}
	if assets <= 0 {
		return res, ErrInvalidAmount
	}

	totalShares := e.sharesForAssets(assets)
	if e.store.SharesOf(actor) < totalShares {
		return res, ErrInsufficientShares
	}

	now := e.clock.Now()
	available := e.AvailableLiquidity()

	if assets <= available {
		if err = e.payoutShares(actor, receiver, totalShares, assets); err != nil {
			return res, err
		}
		e.emit(audit.EventTypeRedemptionProcessed, nil, actor, now, audit.RedemptionProcessed{
			Owner:    actor,
			Receiver: receiver,
			Shares:   totalShares,
			Assets:   assets,
		})
		if e.metrics != nil {
			e.metrics.RedemptionsProcessed.WithLabelValues("direct").Inc()
		}
		e.updateGauges()
		return RedeemResult{DirectShares: totalShares, DirectAssets: assets}, nil
	}

	directAssets := available
	directShares := e.sharesForAssets(directAssets)
	if directShares > 0 {
		if err = e.payoutShares(actor, receiver, directShares, directAssets); err != nil {
			return res, err
		}
	}

	queuedAssets := assets - directAssets
	index, qerr := e.enqueue(actor, receiver, 0, queuedAssets, now)
	if qerr != nil {
		return res, qerr
	}

	if directAssets > 0 {
		e.emit(audit.EventTypeRedemptionProcessed, nil, actor, now, audit.RedemptionProcessed{
			Owner:     actor,
			Receiver:  receiver,
			Shares:    directShares,
			Assets:    directAssets,
			Remaining: queuedAssets,
			Queued:    true,
		})
		if e.metrics != nil {
			e.metrics.RedemptionsProcessed.WithLabelValues("direct").Inc()
		}
	}

	e.updateGauges()
	return RedeemResult{
		DirectShares: directShares,
		DirectAssets: directAssets,
		QueuedAssets: queuedAssets,
		QueueIndex:   index,
		Queued:       true,
	}, nil
}

// payoutShares burns the owner's shares and pays assets to the receiver.
// Callers hold the operation lock and have validated balances.
func (e *Engine) payoutShares(owner, receiver uuid.UUID, shares, assets int64) error {
	if err := e.store.burnShares(owner, shares); err != nil {
		return err
	}
	if err := e.assets.TransferOut(receiver, assets); err != nil {
		// Roll the burn back so a failed transfer leaves no trace.
		e.store.mintShares(owner, shares)
		return err
	}
	return nil
}

// enqueue adds a queue entry, emitting a cancellation event if the owner's
// earlier entry was replaced.
func (e *Engine) enqueue(owner, receiver uuid.UUID, shares, assets int64, now time.Time) (int, error) {
	prior := e.queue.IndexesForOwner(owner)
	index, err := e.queue.Queue(owner, receiver, shares, assets)
	if err != nil {
		return 0, err
	}
	for _, p := range prior {
		e.emit(audit.EventTypeRedemptionCancelled, nil, owner, now, audit.RedemptionCancelled{
			Owner:  owner,
			Index:  p,
			Reason: "replaced by re-queue",
		})
		if e.metrics != nil {
			e.metrics.RedemptionsCancelled.WithLabelValues("replaced").Inc()
		}
	}
	e.emit(audit.EventTypeRedemptionQueued, nil, owner, now, audit.RedemptionQueued{
		Owner:    owner,
		Receiver: receiver,
		Shares:   shares,
		Assets:   assets,
		Index:    index,
	})
	return index, nil
}

// CancelQueuedRedemption cancels the entry at index. Permitted for the
// entry's owner or the operator.
func (e *Engine) CancelQueuedRedemption(actor uuid.UUID, index int) (err error) {
	defer e.instrument("cancel_redemption", time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	owner, err := e.queue.Owner(index)
	if err != nil {
		return err
	}
	if actor != owner && !e.access.Has(actor, RoleOperator) {
		return ErrNotAuthorized
	}
	if err = e.queue.Cancel(index); err != nil {
		return err
	}

	e.emit(audit.EventTypeRedemptionCancelled, nil, actor, e.clock.Now(), audit.RedemptionCancelled{
		Owner:  owner,
		Index:  index,
		Reason: "cancelled",
	})
	if e.metrics != nil {
		e.metrics.RedemptionsCancelled.WithLabelValues("cancelled").Inc()
	}
	e.updateGauges()
	return nil
}

// CompactQueue rewrites the queue arena without cancelled holes. Operator
// only; previously handed-out indexes may be invalidated.
func (e *Engine) CompactQueue(actor uuid.UUID) (err error) {
	defer e.instrument("compact_queue", time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err = e.access.Require(actor, RoleOperator); err != nil {
		return err
	}
	e.queue.Compact()
	e.updateGauges()
	return nil
}

// ClearQueue drops every queued redemption. Emergency use, operator only;
// each dropped entry is audited.
func (e *Engine) ClearQueue(actor uuid.UUID) (err error) {
	defer e.instrument("clear_queue", time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err = e.access.Require(actor, RoleOperator); err != nil {
		return err
	}

	now := e.clock.Now()
	for i := e.queue.HeadIndex(); i < e.queue.ArenaLength(); i++ {
		entry, gerr := e.queue.Get(i)
		if gerr != nil {
			continue
		}
		e.emit(audit.EventTypeRedemptionCancelled, nil, actor, now, audit.RedemptionCancelled{
			Owner:  entry.Owner,
			Index:  i,
			Reason: "queue cleared",
		})
		if e.metrics != nil {
			e.metrics.RedemptionsCancelled.WithLabelValues("cleared").Inc()
		}
	}
	e.queue.Clear()
	e.updateGauges()
	return nil
}

// --- Share transfers ---

// TransferShares moves shares between holders. Queued entries are not
// adjusted here; the liquidity gate re-validates balances at drain time and
// cancels entries the owner can no longer cover.
func (e *Engine) TransferShares(actor, to uuid.UUID, shares int64) (err error) {
	defer e.instrument("transfer_shares", time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	if to == uuid.Nil {
		return ErrZeroAddress
	}
	if shares <= 0 {
		return ErrInvalidAmount
	}
	if err = e.store.transferShares(actor, to, shares); err != nil {
		return err
	}

	e.emit(audit.EventTypeSharesTransferred, nil, actor, e.clock.Now(), audit.SharesTransferred{
		From:   actor,
		To:     to,
		Shares: shares,
	})
	e.updateGauges()
	return nil
}

// --- Fund management ---

// SetFeeConfig replaces the fee schedule for future approvals. Terms locked
// into existing approvals are untouched.
func (e *Engine) SetFeeConfig(actor uuid.UUID, fc FeeConfig) (err error) {
	defer e.instrument("set_fee_config", time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err = e.access.Require(actor, RoleOperator); err != nil {
		return err
	}
	if err = validateFeeConfig(fc); err != nil {
		return err
	}

	e.cfg.Fees = fc
	e.emit(audit.EventTypeFeeConfigChanged, nil, actor, e.clock.Now(), audit.FeeConfigChanged{
		TargetYieldBps: fc.TargetYieldBps,
		SpreadBps:      fc.SpreadBps,
		AdminFeeBps:    fc.AdminFeeBps,
		ProtocolFeeBps: fc.ProtocolFeeBps,
		MinUpfrontBps:  fc.MinUpfrontBps,
		MaxUpfrontBps:  fc.MaxUpfrontBps,
	})

	e.log.Info().
		Int64("target_yield_bps", fc.TargetYieldBps).
		Int64("spread_bps", fc.SpreadBps).
		Int64("admin_fee_bps", fc.AdminFeeBps).
		Int64("protocol_fee_bps", fc.ProtocolFeeBps).
		Msg("fee config changed")
	return nil
}

func validateFeeConfig(fc FeeConfig) error {
	for _, bps := range []int64{fc.TargetYieldBps, fc.SpreadBps, fc.AdminFeeBps, fc.ProtocolFeeBps} {
		if bps < 0 || bps > fixedpoint.BpsDenominator {
			return ErrInvalidBps
		}
	}
	if fc.MinUpfrontBps < 1 || fc.MaxUpfrontBps >= fixedpoint.BpsDenominator || fc.MinUpfrontBps > fc.MaxUpfrontBps {
		return ErrInvalidBps
	}
	return nil
}

// SetImpairReserve re-earmarks pool cash against future impairment losses.
// The reserve can never exceed the cash not already owed as fees. Lowering
// the reserve frees liquidity, so the queue drains afterwards.
func (e *Engine) SetImpairReserve(actor uuid.UUID, reserve int64) (err error) {
	defer e.instrument("set_impair_reserve", time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err = e.access.Require(actor, RoleOperator); err != nil {
		return err
	}
	if reserve < 0 {
		return ErrInvalidAmount
	}
	maxReserve := e.assets.PoolBalance() - e.store.adminFeeBalance - e.store.protocolFeeBalance
	if reserve > maxReserve {
		return ErrInsufficientLiquidity
	}

	old := e.store.impairReserve
	e.store.impairReserve = reserve

	now := e.clock.Now()
	e.emit(audit.EventTypeImpairReserveChanged, nil, actor, now, audit.ImpairReserveChanged{
		OldReserve: old,
		NewReserve: reserve,
	})

	if reserve < old {
		e.drainQueue(actor, now)
	}
	e.updateGauges()
	return nil
}

// WithdrawAdminFees pays accrued admin fees to the admin recipient.
func (e *Engine) WithdrawAdminFees(actor uuid.UUID, amount int64) (err error) {
	defer e.instrument("withdraw_admin_fees", time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err = e.access.Require(actor, RoleAdminRecipient); err != nil {
		return err
	}
	return e.withdrawFees(actor, amount, "admin", &e.store.adminFeeBalance)
}

// WithdrawProtocolFees pays accrued protocol fees to the protocol sink.
func (e *Engine) WithdrawProtocolFees(actor uuid.UUID, amount int64) (err error) {
	defer e.instrument("withdraw_protocol_fees", time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err = e.access.Require(actor, RoleProtocolSink); err != nil {
		return err
	}
	return e.withdrawFees(actor, amount, "protocol", &e.store.protocolFeeBalance)
}

func (e *Engine) withdrawFees(recipient uuid.UUID, amount int64, kind string, balance *int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if amount > *balance {
		return ErrInsufficientFees
	}
	if err := e.assets.TransferOut(recipient, amount); err != nil {
		return err
	}
	*balance -= amount

	e.emit(audit.EventTypeFeesWithdrawn, nil, recipient, e.clock.Now(), audit.FeesWithdrawn{
		Kind:      kind,
		Recipient: recipient,
		Amount:    amount,
	})
	e.updateGauges()
	return nil
}

// --- Queue reads ---

// QueueStats summarizes the active queue.
func (e *Engine) QueueStats() queue.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.GetStats()
}

// QueuedRedemption returns the entry at index.
func (e *Engine) QueuedRedemption(index int) (queue.QueuedRedemption, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Get(index)
}

// QueuedForOwner returns the owner's active entry indexes and totals.
func (e *Engine) QueuedForOwner(owner uuid.UUID) (indexes []int, shares, assets int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	indexes = e.queue.IndexesForOwner(owner)
	shares, assets = e.queue.TotalForOwner(owner)
	return indexes, shares, assets
}

// SharesOf returns a holder's share balance.
func (e *Engine) SharesOf(holder uuid.UUID) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.SharesOf(holder)
}
