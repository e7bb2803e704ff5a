package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ledgerops/shadow-ledger/internal/config"
	"github.com/ledgerops/shadow-ledger/internal/drift"
	"github.com/ledgerops/shadow-ledger/internal/events/kafka"
	"github.com/ledgerops/shadow-ledger/internal/ingest"
	"github.com/ledgerops/shadow-ledger/internal/interfaces"
	"github.com/ledgerops/shadow-ledger/internal/ledger"
	"github.com/ledgerops/shadow-ledger/internal/server"
	"github.com/ledgerops/shadow-ledger/internal/storage/memory"
	"github.com/ledgerops/shadow-ledger/internal/storage/postgres"
	"github.com/ledgerops/shadow-ledger/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	store, cleanup, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer cleanup()

	publisher := kafka.NewPublisher(cfg.KafkaBrokers)
	defer func() { _ = publisher.Close() }()

	ledgerSvc := ledger.NewLedger(store, logger)
	reconciler := drift.NewReconciler(ledgerSvc, publisher, cfg.CorrectionsTopic, cfg.DriftThreshold, logger)
	ingestSvc := ingest.NewService(store, publisher, cfg.RawTopic, logger)

	rawConsumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:         cfg.KafkaBrokers,
		Topic:           cfg.RawTopic,
		GroupID:         cfg.KafkaGroupID,
		DeadLetterTopic: cfg.DeadLetterTopic,
	}, ledgerSvc, publisher, logger)
	if err != nil {
		logger.Fatal("raw consumer init failed", zap.Error(err))
	}
	defer func() { _ = rawConsumer.Close() }()

	corrConsumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:         cfg.KafkaBrokers,
		Topic:           cfg.CorrectionsTopic,
		GroupID:         cfg.KafkaGroupID,
		IsCorrection:    true,
		DeadLetterTopic: cfg.DeadLetterTopic,
	}, ledgerSvc, publisher, logger)
	if err != nil {
		logger.Fatal("corrections consumer init failed", zap.Error(err))
	}
	defer func() { _ = corrConsumer.Close() }()

	auth := server.NewAuth(cfg.JWTSecret, cfg.TokenTTL)
	httpServer := server.New(ledgerSvc, ingestSvc, reconciler, auth, logger)
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: otelhttp.NewHandler(httpServer.Router(), "http.server"),
	}

	var wg sync.WaitGroup
	runConsumer := func(name string, c *kafka.Consumer) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Run(ctx); err != nil {
				logger.Error("consumer stopped", zap.String("consumer", name), zap.Error(err))
				stop()
			}
		}()
	}
	runConsumer("raw", rawConsumer)
	runConsumer("corrections", corrConsumer)

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("starting http server", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	wg.Wait()
}

func buildLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (interfaces.LedgerStore, func(), error) {
	if cfg.PostgresDSN == "" {
		logger.Warn("POSTGRES_DSN not set, using in-memory ledger store")
		return memory.NewMemoryLedgerStore(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return postgres.NewPostgresLedgerStore(db), func() { _ = db.Close() }, nil
}
