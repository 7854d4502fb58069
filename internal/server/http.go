// Package server exposes the fund over HTTP: a JSON read surface and the
// role-gated management operations. Callers identify themselves with the
// X-Actor-ID header; authorization itself happens inside the engine, so the
// API layer never second-guesses role assignments.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"FactorVault/internal/observability"
	"FactorVault/internal/pool"
	"FactorVault/internal/query"
	"FactorVault/internal/queue"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Engine  *pool.Engine
	Health  *observability.HealthChecker
	Metrics *observability.Metrics

	// Query serves audit history from Postgres. Optional; history routes
	// return 503 when absent.
	Query *query.Service

	// AssetDecimals scales base units into human-readable decimal strings
	// in responses. 6 for USDC-style assets.
	AssetDecimals int32

	Logger zerolog.Logger
}

// Server encapsulates dependencies for the HTTP API.
type Server struct {
	engine        *pool.Engine
	health        *observability.HealthChecker
	metrics       *observability.Metrics
	query         *query.Service
	assetDecimals int32
	log           zerolog.Logger

	router http.Handler
}

func New(cfg Config) *Server {
	s := &Server{
		engine:        cfg.Engine,
		health:        cfg.Health,
		metrics:       cfg.Metrics,
		query:         cfg.Query,
		assetDecimals: cfg.AssetDecimals,
		log:           cfg.Logger,
	}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Get("/fund", s.getFund)
		api.Get("/fund/capital-account", s.getCapitalAccount)
		api.Get("/fund/price-per-share", s.getPricePerShare)
		api.Put("/fund/fees", s.putFeeConfig)
		api.Put("/fund/impair-reserve", s.putImpairReserve)

		api.Get("/invoices/{id}", s.getInvoice)
		api.Post("/invoices/{id}/approve", s.approveInvoice)
		api.Post("/invoices/{id}/fund", s.fundInvoice)
		api.Post("/invoices/{id}/impair", s.impairInvoice)
		api.Post("/invoices/{id}/unfactor", s.unfactorInvoice)
		api.Get("/invoices/{id}/kickback", s.getKickback)
		api.Get("/invoices/{id}/unfactor-price", s.getUnfactorPrice)

		api.Post("/deposits", s.postDeposit)
		api.Post("/redemptions", s.postRedemption)

		api.Get("/queue", s.getQueue)
		api.Get("/queue/{index}", s.getQueueEntry)
		api.Delete("/queue/{index}", s.deleteQueueEntry)
		api.Post("/queue/compact", s.compactQueue)
		api.Post("/queue/clear", s.clearQueue)

		api.Post("/shares/transfer", s.transferShares)
		api.Post("/fees/admin/withdraw", s.withdrawAdminFees)
		api.Post("/fees/protocol/withdraw", s.withdrawProtocolFees)

		api.Get("/holders/{id}", s.getHolder)
		api.Post("/reconcile", s.reconcile)

		api.Get("/audit/events", s.getAuditEvents)
		api.Get("/audit/integrity", s.getAuditIntegrity)
	})

	return r
}

// observe records request metrics and an access log line.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := r.Method + " " + r.URL.Path
		if s.metrics != nil {
			s.metrics.APIRequests.WithLabelValues(endpoint, strconv.Itoa(ww.Status())).Inc()
			s.metrics.APIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// actor extracts the caller identity. Mutating handlers treat a missing or
// malformed header as unauthenticated.
func actor(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get("X-Actor-ID")
	if raw == "" {
		return uuid.Nil, errors.New("missing X-Actor-ID header")
	}
	return uuid.Parse(raw)
}

// Amount renders an asset or share quantity in base units alongside a
// decimal string scaled by the configured asset decimals.
type Amount struct {
	BaseUnits int64  `json:"base_units"`
	Decimal   string `json:"decimal"`
}

func (s *Server) amount(v int64) Amount {
	return Amount{
		BaseUnits: v,
		Decimal:   decimal.New(v, -s.assetDecimals).String(),
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, httpStatus(err), map[string]string{"error": err.Error()})
}

// httpStatus maps engine errors onto response codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, pool.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, pool.ErrZeroAddress),
		errors.Is(err, pool.ErrInvalidAmount),
		errors.Is(err, pool.ErrInvalidBps):
		return http.StatusBadRequest
	case errors.Is(err, queue.ErrInvalidQueueIndex),
		errors.Is(err, queue.ErrQueueEmpty):
		return http.StatusNotFound
	case errors.Is(err, pool.ErrInsufficientLiquidity),
		errors.Is(err, pool.ErrInsufficientShares),
		errors.Is(err, pool.ErrInsufficientFees):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pool.ErrInvoiceNotApproved),
		errors.Is(err, pool.ErrInvoiceAlreadyFunded),
		errors.Is(err, pool.ErrInvoiceNotFunded),
		errors.Is(err, pool.ErrApprovalExpired),
		errors.Is(err, pool.ErrInvoiceCanceled),
		errors.Is(err, pool.ErrInvoicePaid),
		errors.Is(err, pool.ErrCreditorChanged),
		errors.Is(err, pool.ErrAmountChanged),
		errors.Is(err, pool.ErrTokenMismatch),
		errors.Is(err, pool.ErrAlreadyImpaired),
		errors.Is(err, pool.ErrGracePeriodNotElapsed),
		errors.Is(err, pool.ErrNotFactorer):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func pathUUID(r *http.Request, key string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, key))
}

// --- Fund reads ---

func (s *Server) getFund(w http.ResponseWriter, r *http.Request) {
	info := s.engine.GetFundInfo()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":                 info.Name,
		"capital_account":      s.amount(info.CapitalAccount),
		"liquid_assets":        s.amount(info.LiquidAssets),
		"available_liquidity":  s.amount(info.AvailableLiquidity),
		"deployed_capital":     s.amount(info.DeployedCapital),
		"price_per_share":      info.PricePerShare,
		"total_shares":         info.TotalShares,
		"admin_fee_balance":    s.amount(info.AdminFeeBalance),
		"protocol_fee_balance": s.amount(info.ProtocolFeeBalance),
		"spread_gains_balance": s.amount(info.SpreadGainsBalance),
		"impair_reserve":       s.amount(info.ImpairReserve),
		"realized_gain_loss":   s.amount(info.RealizedGainLoss),
		"fees":                 info.Fees,
		"queue": map[string]interface{}{
			"length":       info.Queue.Length,
			"total_shares": info.Queue.TotalShares,
			"total_assets": s.amount(info.Queue.TotalAssets),
		},
	})
}

func (s *Server) getCapitalAccount(w http.ResponseWriter, r *http.Request) {
	info := s.engine.GetFundInfo()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"capital_account":    s.amount(info.CapitalAccount),
		"realized_gain_loss": s.amount(info.RealizedGainLoss),
	})
}

func (s *Server) getPricePerShare(w http.ResponseWriter, r *http.Request) {
	info := s.engine.GetFundInfo()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"price_per_share": info.PricePerShare,
		"total_shares":    info.TotalShares,
	})
}

func (s *Server) putFeeConfig(w http.ResponseWriter, r *http.Request) {
	who, err := actor(r)
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}
	var req pool.FeeConfig
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if err := s.engine.SetFeeConfig(who, req); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) putImpairReserve(w http.ResponseWriter, r *http.Request) {
	who, err := actor(r)
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}
	var req struct {
		Reserve int64 `json:"reserve"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if err := s.engine.SetImpairReserve(who, req.Reserve); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Invoices ---

func (s *Server) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid invoice id"})
		return
	}

	resp := map[string]interface{}{
		"invoice_id": id,
		"state":      s.engine.InvoiceState(id).String(),
	}
	if rec, ok := s.engine.Approval(id); ok {
		resp["approval"] = rec
	}
	if imp, ok := s.engine.Impairment(id); ok {
		resp["impairment"] = imp
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) approveInvoice(w http.ResponseWriter, r *http.Request) {
	who, err := actor(r)
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid invoice id"})
		return
	}
	var req struct {
		UpfrontBps int64 `json:"upfront_bps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	rec, err := s.engine.ApproveInvoice(who, id, req.UpfrontBps)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) fundInvoice(w http.ResponseWriter, r *http.Request) {
	who, err := actor(r)
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid invoice id"})
		return
	}

	rec, err := s.engine.FundInvoice(who, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"invoice_id":   id,
		"gross_funded": s.amount(rec.FundedAmountGross),
		"net_funded":   s.amount(rec.FundedAmountNet),
		"advance":      s.amount(rec.Advance()),
		"funded_at":    rec.FundedAt,
	})
}

func (s *Server) impairInvoice(w http.ResponseWriter, r *http.Request) {
	who, err := actor(r)
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid invoice id"})
		return
	}

	imp, err := s.engine.ImpairInvoice(who, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"invoice_id":  id,
		"covered":     s.amount(imp.GainAmount),
		"loss":        s.amount(imp.LossAmount),
		"impaired_at": imp.ImpairedAt,
	})
}

func (s *Server) unfactorInvoice(w http.ResponseWriter, r *http.Request) {
	who, err := actor(r)
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid invoice id"})
		return
	}

	price, err := s.engine.UnfactorInvoice(who, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"invoice_id":    id,
		"buyback_price": s.amount(price),
	})
}

func (s *Server) getKickback(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid invoice id"})
		return
	}
	settle, err := s.engine.CalculateKickbackAmount(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"invoice_id":     id,
		"true_interest":  s.amount(settle.TrueInterest),
		"true_spread":    s.amount(settle.TrueSpread),
		"true_admin_fee": s.amount(settle.TrueAdminFee),
		"true_days":      settle.TrueDays,
		"kickback":       s.amount(settle.Kickback),
	})
}

func (s *Server) getUnfactorPrice(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid invoice id"})
		return
	}
	price, settle, err := s.engine.PreviewUnfactorPrice(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"invoice_id":    id,
		"buyback_price": s.amount(price),
		"true_days":     settle.TrueDays,
	})
}

// --- Deposits & redemptions ---

func (s *Server) postDeposit(w http.ResponseWriter, r *http.Request) {
	who, err := actor(r)
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}
	var req struct {
		Assets   int64      `json:"assets"`
		Receiver *uuid.UUID `json:"receiver,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	receiver := who
	if req.Receiver != nil {
		receiver = *req.Receiver
	}

	shares, err := s.engine.Deposit(who, receiver, req.Assets)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"assets": s.amount(req.Assets),
		"shares": shares,
	})
}

func (s *Server) postRedemption(w http.ResponseWriter, r *http.Request) {
	who, err := actor(r)
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}
	var req struct {
		Shares   int64      `json:"shares,omitempty"`
		Assets   int64      `json:"assets,omitempty"`
		Receiver *uuid.UUID `json:"receiver,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	receiver := who
	if req.Receiver != nil {
		receiver = *req.Receiver
	}

	var res pool.RedeemResult
	switch {
	case req.Shares > 0 && req.Assets == 0:
		res, err = s.engine.Redeem(who, receiver, req.Shares)
	case req.Assets > 0 && req.Shares == 0:
		res, err = s.engine.Withdraw(who, receiver, req.Assets)
	default:
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "specify exactly one of shares or assets"})
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"direct_shares": res.DirectShares,
		"direct_assets": s.amount(res.DirectAssets),
		"queued_shares": res.QueuedShares,
		"queued_assets": s.amount(res.QueuedAssets),
		"queue_index":   res.QueueIndex,
		"queued":        res.Queued,
	})
}

// --- Queue ---

func (s *Server) getQueue(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.QueueStats()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"length":       stats.Length,
		"total_shares": stats.TotalShares,
		"total_assets": s.amount(stats.TotalAssets),
	})
}

func (s *Server) getQueueEntry(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid queue index"})
		return
	}
	entry, err := s.engine.QueuedRedemption(index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"index":    index,
		"owner":    entry.Owner,
		"receiver": entry.Receiver,
		"shares":   entry.Shares,
		"assets":   s.amount(entry.Assets),
	})
}

func (s *Server) deleteQueueEntry(w http.ResponseWriter, r *http.Request) {
	who, err := actor(r)
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid queue index"})
		return
	}
	if err := s.engine.CancelQueuedRedemption(who, index); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) compactQueue(w http.ResponseWriter, r *http.Request) {
	who, err := actor(r)
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}
	if err := s.engine.CompactQueue(who); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "compacted"})
}

func (s *Server) clearQueue(w http.ResponseWriter, r *http.Request) {
	who, err := actor(r)
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}
	if err := s.engine.ClearQueue(who); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// --- Shares & fees ---

func (s *Server) transferShares(w http.ResponseWriter, r *http.Request) {
	who, err := actor(r)
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}
	var req struct {
		To     uuid.UUID `json:"to"`
		Shares int64     `json:"shares"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if err := s.engine.TransferShares(who, req.To, req.Shares); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) withdrawAdminFees(w http.ResponseWriter, r *http.Request) {
	s.withdrawFees(w, r, s.engine.WithdrawAdminFees)
}

func (s *Server) withdrawProtocolFees(w http.ResponseWriter, r *http.Request) {
	s.withdrawFees(w, r, s.engine.WithdrawProtocolFees)
}

func (s *Server) withdrawFees(w http.ResponseWriter, r *http.Request, op func(uuid.UUID, int64) error) {
	who, err := actor(r)
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if err := op(who, req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"withdrawn": s.amount(req.Amount),
	})
}

// --- Holders & reconcile ---

func (s *Server) getHolder(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid holder id"})
		return
	}
	info := s.engine.GetHolderInfo(id)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"holder":            info.Holder,
		"shares":            info.Shares,
		"asset_value":       s.amount(info.AssetValue),
		"max_redeem_shares": info.MaxRedeemShares,
		"queue_indexes":     info.QueueIndexes,
		"queued_shares":     info.QueuedShares,
		"queued_assets":     s.amount(info.QueuedAssets),
	})
}

func (s *Server) reconcile(w http.ResponseWriter, r *http.Request) {
	who, err := actor(r)
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}
	settled, err := s.engine.ReconcileActivePaidInvoices(who)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"settled": settled,
	})
}

// --- Audit history ---

func (s *Server) getAuditEvents(w http.ResponseWriter, r *http.Request) {
	if s.query == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "audit history not configured"})
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be in [1, 500]"})
			return
		}
		limit = n
	}

	var invoiceID *uuid.UUID
	if raw := r.URL.Query().Get("invoice_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid invoice_id"})
			return
		}
		invoiceID = &id
	}

	var before *int64
	if raw := r.URL.Query().Get("before"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid before cursor"})
			return
		}
		before = &n
	}

	events, err := s.query.Events(r.Context(), invoiceID, limit, before)
	if err != nil {
		s.log.Error().Err(err).Msg("audit event query failed")
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
	})
}

func (s *Server) getAuditIntegrity(w http.ResponseWriter, r *http.Request) {
	if s.query == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "audit history not configured"})
		return
	}

	var from int64
	if raw := r.URL.Query().Get("from"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid from sequence"})
			return
		}
		from = n
	}

	report, err := s.query.VerifyIntegrity(r.Context(), from)
	if err != nil {
		s.log.Error().Err(err).Msg("integrity verification failed")
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "verification failed"})
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}
