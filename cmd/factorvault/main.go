// FactorVault service entrypoint: wires the fund engine to Postgres (audit
// log), NATS JetStream (audit publishing, payment notifications), and the
// HTTP API, then runs until interrupted.
package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"FactorVault/internal/asset"
	"FactorVault/internal/audit"
	"FactorVault/internal/config"
	"FactorVault/internal/feed"
	"FactorVault/internal/invoice"
	"FactorVault/internal/observability"
	"FactorVault/internal/persistence"
	"FactorVault/internal/pool"
	"FactorVault/internal/query"
	"FactorVault/internal/queue"
	"FactorVault/internal/server"
)

func main() {
	log := observability.NewLogger("main")
	log.Info().Msg("FactorVault starting")

	cfg, err := config.Load(os.Getenv("FACTOR_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("postgres ping")
	}
	log.Info().Msg("Postgres connected")

	migrator := persistence.NewMigrator(db, cfg.Postgres.MigrationsDir, observability.NewLogger("migrator"))
	if err := migrator.Up(ctx); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	// --- Audit sequence recovery ---
	writer := persistence.NewAuditLogWriter(db)
	startSequence, err := writer.LastSequence(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("recover audit sequence")
	}
	log.Info().Int64("sequence", startSequence).Msg("resuming audit log")

	// --- NATS ---
	nc, js, err := feed.Connect(cfg.NATS.URL, observability.NewLogger("nats"))
	if err != nil {
		log.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()

	if err := audit.EnsureAuditStream(ctx, js); err != nil {
		log.Fatal().Err(err).Msg("ensure audit stream")
	}
	if err := feed.EnsurePaymentStream(ctx, js); err != nil {
		log.Fatal().Err(err).Msg("ensure payment stream")
	}

	// --- Engine wiring ---
	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker()

	persistChan := make(chan audit.Envelope, cfg.Channels.PersistBuffer)
	publishChan := make(chan audit.Envelope, cfg.Channels.PublishBuffer)

	operator, err := config.RoleID(cfg.Roles.Operator)
	if err != nil {
		log.Fatal().Err(err).Msg("parse operator role")
	}
	underwriter, err := config.RoleID(cfg.Roles.Underwriter)
	if err != nil {
		log.Fatal().Err(err).Msg("parse underwriter role")
	}
	adminRecipient, err := config.RoleID(cfg.Roles.AdminRecipient)
	if err != nil {
		log.Fatal().Err(err).Msg("parse admin recipient role")
	}
	protocolSink, err := config.RoleID(cfg.Roles.ProtocolSink)
	if err != nil {
		log.Fatal().Err(err).Msg("parse protocol sink role")
	}

	tokenID := uuid.Nil
	if cfg.Asset.TokenID != "" {
		tokenID, err = uuid.Parse(cfg.Asset.TokenID)
		if err != nil {
			log.Fatal().Err(err).Msg("parse asset token id")
		}
	}
	if tokenID == uuid.Nil {
		tokenID = uuid.New()
		log.Warn().Str("token_id", tokenID.String()).Msg("no asset token configured, minted ephemeral id")
	}

	// In-process adapters. A deployment against a real asset ledger or
	// receivable registry swaps these for RPC-backed implementations of
	// the same interfaces.
	poolID := uuid.New()
	ledger := asset.NewMemoryLedger(poolID)
	registry := invoice.NewMemoryProvider()

	engine := pool.NewEngine(pool.DefaultConfig(), pool.Deps{
		Store:         pool.NewStore(),
		Queue:         queue.NewRedemptionQueue(),
		Assets:        ledger,
		Invoices:      registry,
		Access:        pool.NewAccessControl(operator, underwriter, adminRecipient, protocolSink),
		PoolID:        poolID,
		TokenID:       tokenID,
		StartSequence: startSequence,
		PersistChan:   persistChan,
		PublishChan:   publishChan,
		Metrics:       metrics,
		Logger:        observability.NewLogger("engine"),
	})

	// --- Workers ---
	persistWorker := persistence.NewWorker(
		db, persistChan,
		cfg.Persistence.BatchSize, cfg.Persistence.FlushTimeout,
		metrics, observability.NewLogger("persistence"),
	)
	go func() {
		if err := persistWorker.Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("persistence worker exited")
		}
	}()

	publisher := audit.NewPublisher(js, publishChan, observability.NewLogger("publisher"))
	go func() {
		if err := publisher.Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("audit publisher exited")
		}
	}()

	listener := feed.NewListener(js, engine, operator, observability.NewLogger("feed"))
	if err := listener.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start payment feed")
	}
	defer listener.Stop()

	// Periodic reconcile as a backstop for missed payment notices.
	go func() {
		ticker := time.NewTicker(cfg.Reconcile.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := engine.ReconcileActivePaidInvoices(operator); err != nil {
					log.Error().Err(err).Msg("periodic reconcile failed")
				}
			}
		}
	}()

	// --- HTTP ---
	api := server.New(server.Config{
		Engine:        engine,
		Health:        health,
		Metrics:       metrics,
		Query:         query.NewService(db),
		AssetDecimals: cfg.Asset.Decimals,
		Logger:        observability.NewLogger("http"),
	})

	httpServer := &http.Server{
		Addr:    cfg.HTTP.ListenAddr,
		Handler: api.Handler(),
	}
	go func() {
		log.Info().Str("addr", cfg.HTTP.ListenAddr).Msg("HTTP listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http serve")
		}
	}()

	health.SetReady(true)
	log.Info().Msg("FactorVault ready")

	<-sigChan
	log.Info().Msg("shutting down")
	health.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}

	cancel()
	// Give the persistence worker a moment to flush its final batch.
	time.Sleep(200 * time.Millisecond)
	log.Info().Msg("FactorVault stopped")
}
