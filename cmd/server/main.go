package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/marketplace/internal/adapter/handler"
	"github.com/rl1809/marketplace/internal/adapter/messaging"
	"github.com/rl1809/marketplace/internal/adapter/storage"
	"github.com/rl1809/marketplace/internal/config"
	"github.com/rl1809/marketplace/internal/core/service"
	"github.com/rl1809/marketplace/internal/pkg/logging"
	"github.com/rl1809/marketplace/internal/pkg/metrics"
	"github.com/rl1809/marketplace/internal/pkg/telemetry"
	"github.com/rl1809/marketplace/internal/port"
)

const (
	mysqlMaxOpenConns    = 50
	mysqlMaxIdleConns    = 25
	mysqlConnMaxLifetime = 5 * time.Minute
	redisPoolSize        = 100
	readHeaderTimeout    = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.MustNewLogger(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server_failed", zap.Error(err))
	}
}

// backends holds the adapters selected by configuration and the connections
// that must be closed on exit.
type backends struct {
	store       service.Store
	ledger      port.InventoryLedger
	idempotency port.IdempotencyStore
	closers     []func() error
}

func (b *backends) close(logger *zap.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			logger.Warn("close_failed", zap.Error(err))
		}
	}
}

func openBackends(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backends, error) {
	b := &backends{}

	memory := storage.NewMemoryStore()
	b.store, b.ledger, b.idempotency = memory, memory, memory

	if cfg.StoreBackend == config.StoreMySQL {
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		db.SetMaxOpenConns(mysqlMaxOpenConns)
		db.SetMaxIdleConns(mysqlMaxIdleConns)
		db.SetConnMaxLifetime(mysqlConnMaxLifetime)
		b.closers = append(b.closers, db.Close)

		if err := db.PingContext(ctx); err != nil {
			b.close(logger)
			return nil, fmt.Errorf("ping mysql: %w", err)
		}
		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.Migrate(ctx); err != nil {
			b.close(logger)
			return nil, err
		}
		b.store, b.ledger = adapter, adapter
		logger.Info("mysql_connected")
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, PoolSize: redisPoolSize})
		b.closers = append(b.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			b.close(logger)
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		adapter := storage.NewRedisAdapter(rdb)
		b.idempotency = adapter
		if cfg.LedgerBackend == config.LedgerRedis {
			b.ledger = adapter
		}
		logger.Info("redis_connected")
	}

	logger.Info("backends_ready",
		zap.String("store", cfg.StoreBackend),
		zap.String("ledger", cfg.LedgerBackend),
	)
	return b, nil
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TracingConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: config.ServiceVersion,
		Endpoint:       cfg.OtelEndpoint,
		Insecure:       cfg.OtelInsecure,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing_shutdown_failed", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mx := metrics.New(reg)

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.close(logger)

	var publisher port.EventPublisher = messaging.NewLogPublisher(logger)
	if len(cfg.KafkaBrokers) > 0 {
		kp := messaging.NewKafkaPublisher(messaging.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		defer kp.Close()
		publisher = kp
		logger.Info("kafka_publisher_enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	m := service.New(b.store, b.ledger, b.idempotency, service.Options{
		Logger:                 logger,
		Metrics:                mx,
		Publisher:              publisher,
		StoreTimeout:           cfg.StoreTimeout,
		RetryMaxElapsed:        cfg.RetryMaxElapsed,
		CompensationMaxElapsed: cfg.CompensationMaxElapsed,
		ReconcileWorkers:       cfg.ReconcileWorkers,
		ReconcileQueueSize:     cfg.ReconcileQueueSize,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewHTTPHandler(m, logger, mx, reg).Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.UnaryServerInterceptor(logger)))
	handler.RegisterOrderServiceServer(grpcServer, handler.NewGRPCHandler(m))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	// The reconciler outlives the servers so releases queued by in-flight
	// requests are still drained.
	reconcileCtx, stopReconciler := context.WithCancel(context.WithoutCancel(ctx))
	defer stopReconciler()

	g.Go(func() error {
		logger.Info("http_server_listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("grpc_server_listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	if m.Reconciler != nil {
		g.Go(func() error {
			return m.Reconciler.Run(reconcileCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting_down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http_shutdown_failed", zap.Error(err))
		}
		grpcServer.GracefulStop()
		stopReconciler()
		return nil
	})

	return g.Wait()
}
