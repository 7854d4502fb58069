package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for FactorVault.
type Metrics struct {
	// --- Engine ---
	OpsApplied   *prometheus.CounterVec
	OpsRejected  *prometheus.CounterVec
	OpDuration   *prometheus.HistogramVec
	AuditSeq     prometheus.Gauge
	StateHashDur prometheus.Histogram

	// --- Fund accounting ---
	CapitalAccount     prometheus.Gauge
	PricePerShare      prometheus.Gauge
	TotalShares        prometheus.Gauge
	LiquidAssets       prometheus.Gauge
	AvailableLiquidity prometheus.Gauge
	DeployedCapital    prometheus.Gauge
	AdminFeeBalance    prometheus.Gauge
	ProtocolFeeBalance prometheus.Gauge
	SpreadGainsBalance prometheus.Gauge
	ImpairReserve      prometheus.Gauge
	ActiveInvoices     prometheus.Gauge

	// --- Receivable lifecycle ---
	InvoicesApproved prometheus.Counter
	InvoicesFunded   prometheus.Counter
	InvoicesSettled  *prometheus.CounterVec
	AdvanceTotal     prometheus.Counter
	KickbackTotal    prometheus.Counter
	ImpairLossTotal  prometheus.Counter

	// --- Redemption queue ---
	QueueLength          prometheus.Gauge
	QueueShares          prometheus.Gauge
	QueueAssets          prometheus.Gauge
	QueueArenaLength     prometheus.Gauge
	RedemptionsProcessed *prometheus.CounterVec
	RedemptionsCancelled *prometheus.CounterVec
	DrainRuns            prometheus.Counter
	DrainPayoutTotal     prometheus.Counter

	// --- Channel & backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistBatchSize     prometheus.Histogram
	PersistBatchDur      prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistRetry         prometheus.Counter
	PersistLastSequence  prometheus.Gauge

	// --- HTTP API ---
	APIRequests *prometheus.CounterVec
	APIDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		// Engine
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "factor_ops_applied_total",
			Help: "Operations successfully applied by the engine",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "factor_ops_rejected_total",
			Help: "Operations rejected (validation, authorization, liquidity)",
		}, []string{"op", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "factor_op_duration_seconds",
			Help:    "Time to apply a single operation",
			Buckets: latencyBuckets,
		}, []string{"op"}),

		AuditSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "factor_audit_sequence",
			Help: "Current audit log sequence number",
		}),

		StateHashDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "factor_state_hash_duration_seconds",
			Help:    "Time to compute the state hash",
			Buckets: latencyBuckets,
		}),

		// Fund accounting
		CapitalAccount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "factor_capital_account",
			Help: "Current capital account value",
		}),

		PricePerShare: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "factor_price_per_share",
			Help: "Current price per share (scaled by price precision)",
		}),

		TotalShares: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "factor_total_shares",
			Help: "Total share supply",
		}),

		LiquidAssets: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "factor_liquid_assets",
			Help: "Pool cash balance on the asset ledger",
		}),

		AvailableLiquidity: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "factor_available_liquidity",
			Help: "Cash usable for funding and redemptions",
		}),

		DeployedCapital: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "factor_deployed_capital",
			Help: "Sum of outstanding advances",
		}),

		AdminFeeBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "factor_admin_fee_balance",
			Help: "Accrued admin fees awaiting withdrawal",
		}),

		ProtocolFeeBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "factor_protocol_fee_balance",
			Help: "Accrued protocol fees awaiting withdrawal",
		}),

		SpreadGainsBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "factor_spread_gains_balance",
			Help: "Accumulated spread buffer",
		}),

		ImpairReserve: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "factor_impair_reserve",
			Help: "Cash earmarked against impairment losses",
		}),

		ActiveInvoices: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "factor_active_invoices",
			Help: "Funded receivables awaiting settlement",
		}),

		// Receivable lifecycle
		InvoicesApproved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "factor_invoices_approved_total",
			Help: "Approvals recorded",
		}),

		InvoicesFunded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "factor_invoices_funded_total",
			Help: "Receivables funded",
		}),

		InvoicesSettled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "factor_invoices_settled_total",
			Help: "Receivables leaving the active set",
		}, []string{"outcome"}),

		AdvanceTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "factor_advance_total",
			Help: "Total advances paid out (asset units)",
		}),

		KickbackTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "factor_kickback_total",
			Help: "Total kickbacks rebated to creditors (asset units)",
		}),

		ImpairLossTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "factor_impair_loss_total",
			Help: "Total uncovered impairment losses (asset units)",
		}),

		// Redemption queue
		QueueLength: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "factor_queue_length",
			Help: "Active entries in the redemption queue",
		}),

		QueueShares: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "factor_queue_shares",
			Help: "Total share-denominated amount queued",
		}),

		QueueAssets: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "factor_queue_assets",
			Help: "Total asset-denominated amount queued",
		}),

		QueueArenaLength: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "factor_queue_arena_length",
			Help: "Raw queue slot count including cancelled holes",
		}),

		RedemptionsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "factor_redemptions_processed_total",
			Help: "Redemption payouts (direct or drained from the queue)",
		}, []string{"mode"}),

		RedemptionsCancelled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "factor_redemptions_cancelled_total",
			Help: "Queued redemptions cancelled",
		}, []string{"reason"}),

		DrainRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "factor_drain_runs_total",
			Help: "Liquidity gate drain passes",
		}),

		DrainPayoutTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "factor_drain_payout_total",
			Help: "Assets paid out by the liquidity gate (asset units)",
		}),

		// Channel & backpressure
		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "factor_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "factor_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "factor_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "factor_publish_drops_total",
			Help: "Audit events dropped due to full publish channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "factor_persist_backpressure_total",
			Help: "Times the engine blocked on the persist channel",
		}),

		// Persistence
		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "factor_persist_events_written_total",
			Help: "Audit events written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "factor_persist_batch_size",
			Help:    "Events per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "factor_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "factor_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "factor_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "factor_persist_last_sequence",
			Help: "Last persisted audit sequence",
		}),

		// HTTP API
		APIRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "factor_api_requests_total",
			Help: "API requests",
		}, []string{"endpoint", "status"}),

		APIDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "factor_api_duration_seconds",
			Help:    "API request latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	if m == nil {
		return
	}
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
