package pool

import (
	"github.com/google/uuid"

	"FactorVault/internal/fixedpoint"
	"FactorVault/internal/queue"
)

// The capital account is the fund's total economic value and the basis for
// price-per-share:
//
//	capital = liquidAssets + deployedCapital − feesOwed − provisions
//
// where feesOwed = admin + protocol fee balances (cash held in the pool but
// owed to their recipients) and provisions = impair reserve + spread gains
// (buffers that absorb impairment losses before depositors do). Deployed
// receivables are carried at cost; gains realize at settlement.

// LiquidAssets is the pool's current cash balance on the asset ledger.
func (e *Engine) LiquidAssets() int64 {
	return e.assets.PoolBalance()
}

// AvailableLiquidity is the cash usable for funding and redemptions: liquid
// assets minus fee balances and the impair reserve. Spread gains remain
// spendable; the reserve does not.
func (e *Engine) AvailableLiquidity() int64 {
	available := e.assets.PoolBalance() -
		e.store.adminFeeBalance -
		e.store.protocolFeeBalance -
		e.store.impairReserve
	if available < 0 {
		return 0
	}
	return available
}

// CalculateCapitalAccount derives the pool's total value. Never negative in
// practice: impairment losses cap against the reserve and spread gains.
func (e *Engine) CalculateCapitalAccount() int64 {
	capital := e.assets.PoolBalance() +
		e.store.deployedCapital -
		e.store.adminFeeBalance -
		e.store.protocolFeeBalance -
		e.store.impairReserve -
		e.store.spreadGainsBalance
	if capital < 0 {
		return 0
	}
	return capital
}

// CalculateRealizedGainLoss nets accumulated settlement gains and
// recoveries against impairment losses.
func (e *Engine) CalculateRealizedGainLoss() int64 {
	return e.store.realizedGain - e.store.realizedLoss
}

// PricePerShare returns capital / supply scaled by PricePrecision. With
// zero supply the price is exactly PricePrecision (bootstrap invariant).
func (e *Engine) PricePerShare() int64 {
	if e.store.totalShares == 0 {
		return fixedpoint.PricePrecision
	}
	return fixedpoint.MulDivFloor(e.CalculateCapitalAccount(), fixedpoint.PricePrecision, e.store.totalShares)
}

// ConvertToShares values a deposit in shares at the current price. At zero
// supply (or a fully written-down pool) shares mint 1:1.
func (e *Engine) ConvertToShares(assets int64) int64 {
	capital := e.CalculateCapitalAccount()
	if e.store.totalShares == 0 || capital <= 0 {
		return assets
	}
	return fixedpoint.MulDivFloor(assets, e.store.totalShares, capital)
}

// ConvertToAssets values shares in asset units at the current price.
func (e *Engine) ConvertToAssets(shares int64) int64 {
	if e.store.totalShares == 0 {
		return shares
	}
	return fixedpoint.MulDivFloor(shares, e.CalculateCapitalAccount(), e.store.totalShares)
}

// MaxRedeem returns the most shares the owner could redeem right now
// without queuing: bounded by the owner's balance and current liquidity.
func (e *Engine) MaxRedeem(owner uuid.UUID) int64 {
	balance := e.store.SharesOf(owner)
	liquidityShares := e.ConvertToShares(e.AvailableLiquidity())
	if balance < liquidityShares {
		return balance
	}
	return liquidityShares
}

// FundInfo is the fund-level snapshot exposed on the read API.
type FundInfo struct {
	Name               string
	CapitalAccount     int64
	LiquidAssets       int64
	AvailableLiquidity int64
	DeployedCapital    int64
	PricePerShare      int64
	TotalShares        int64
	AdminFeeBalance    int64
	ProtocolFeeBalance int64
	SpreadGainsBalance int64
	ImpairReserve      int64
	RealizedGainLoss   int64
	Fees               FeeConfig
	Queue              queue.Stats
}

// HolderInfo is the per-holder snapshot exposed on the read API.
type HolderInfo struct {
	Holder          uuid.UUID
	Shares          int64
	AssetValue      int64
	MaxRedeemShares int64
	QueueIndexes    []int
	QueuedShares    int64
	QueuedAssets    int64
}

// GetHolderInfo assembles a holder snapshot under the op lock.
func (e *Engine) GetHolderInfo(holder uuid.UUID) HolderInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	info := HolderInfo{
		Holder:          holder,
		Shares:          e.store.SharesOf(holder),
		MaxRedeemShares: e.MaxRedeem(holder),
	}
	info.AssetValue = e.ConvertToAssets(info.Shares)
	info.QueueIndexes = e.queue.IndexesForOwner(holder)
	info.QueuedShares, info.QueuedAssets = e.queue.TotalForOwner(holder)
	return info
}

// GetFundInfo assembles the snapshot. Read-only; taken under the op lock so
// the numbers are mutually consistent.
func (e *Engine) GetFundInfo() FundInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	return FundInfo{
		Name:               e.cfg.Name,
		CapitalAccount:     e.CalculateCapitalAccount(),
		LiquidAssets:       e.LiquidAssets(),
		AvailableLiquidity: e.AvailableLiquidity(),
		DeployedCapital:    e.store.deployedCapital,
		PricePerShare:      e.PricePerShare(),
		TotalShares:        e.store.totalShares,
		AdminFeeBalance:    e.store.adminFeeBalance,
		ProtocolFeeBalance: e.store.protocolFeeBalance,
		SpreadGainsBalance: e.store.spreadGainsBalance,
		ImpairReserve:      e.store.impairReserve,
		RealizedGainLoss:   e.CalculateRealizedGainLoss(),
		Fees:               e.cfg.Fees,
		Queue:              e.queue.GetStats(),
	}
}
