package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/banking/verification-service/internal/api"
	"github.com/banking/verification-service/internal/config"
	"github.com/banking/verification-service/internal/events"
	"github.com/banking/verification-service/internal/geo"
	"github.com/banking/verification-service/internal/metrics"
	"github.com/banking/verification-service/internal/pkg/logger"
	"github.com/banking/verification-service/internal/pkg/telemetry"
	"github.com/banking/verification-service/internal/reconciliation"
	"github.com/banking/verification-service/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "verification-service: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// 2. Initialize Logger
	log, err := logger.New(cfg.Telemetry.ServiceName, cfg.Telemetry.Environment, cfg.Debug)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Tracing
	tp, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:   cfg.Telemetry.ServiceName,
		Environment:   cfg.Telemetry.Environment,
		OTLPEndpoint:  cfg.Telemetry.OTLPEndpoint,
		SamplingRatio: cfg.Telemetry.SamplingRatio,
	})
	if err != nil {
		return err
	}

	// 4. Persistence
	backend, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	st := store.New(backend, store.Options{DebounceInterval: cfg.Persistence.DebounceInterval}, log)

	// 5. Events
	publisher, err := openPublisher(cfg, log)
	if err != nil {
		_ = st.Close(ctx)
		return err
	}

	policy := reconciliation.DefaultPolicy()
	if cfg.Persistence.PolicyFile != "" {
		if policy, err = reconciliation.LoadPolicy(cfg.Persistence.PolicyFile); err != nil {
			_ = st.Close(ctx)
			return err
		}
	}

	registry := geo.NewRegistry()
	svc := reconciliation.NewService(st, registry, publisher, log, reconciliation.Options{
		DefaultThreshold: cfg.Verification.DefaultThreshold,
		Policy:           policy,
		Tracer:           tp.Tracer("verification-service"),
	})

	restored, err := svc.Restore(ctx)
	if err != nil {
		_ = st.Close(ctx)
		return fmt.Errorf("restore investigations: %w", err)
	}
	log.Info("investigations restored",
		logger.IntField("count", restored),
		logger.StringField("backend", cfg.Persistence.Backend),
	)

	// 6. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(reg); err != nil {
		_ = st.Close(ctx)
		return fmt.Errorf("register metrics: %w", err)
	}
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	}

	// 7. HTTP
	e := api.NewServer(svc, registry, api.Config{
		JWTSecret:      cfg.Security.JWTSecret,
		AllowedOrigins: cfg.Security.AllowedOrigins,
		BodyLimit:      cfg.Server.MaxRequestSize,
	}, log)
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	e.Server.IdleTimeout = cfg.Server.IdleTimeout
	addr := fmt.Sprintf(":%d", cfg.Server.Port)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server started", logger.StringField("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	// Wait for a signal or a server failure, then shut down in dependency order
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := e.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
		}
		if err := st.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("final flush: %w", err))
		}
		if err := publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
		if err := tp.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", logger.ErrorField(err))
		return err
	}
	log.Info("server exited properly")
	return nil
}

func openBackend(ctx context.Context, cfg *config.Config, log *logger.Logger) (store.Backend, error) {
	var (
		backend store.Backend
		err     error
	)

	p := cfg.Persistence
	switch p.Backend {
	case "memory":
		return store.NewMemoryBackend(), nil
	case "file":
		backend, err = store.NewFileBackend(p.FilePath)
	case "redis":
		backend, err = store.NewRedisBackend(ctx, store.RedisConfig{
			Addr:         cfg.Redis.Addr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			Key:          p.RedisKey,
			LockTTL:      p.LockTTL,
		})
	case "postgres":
		backend, err = store.NewPostgresBackend(ctx, cfg.Database.DSN(), p.DocumentID)
	default:
		return nil, fmt.Errorf("unknown persistence backend %q", p.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", p.Backend, err)
	}

	return store.WithBreaker(p.Backend, backend, store.BreakerConfig{
		MaxRequests:         p.Breaker.MaxRequests,
		Interval:            p.Breaker.Interval,
		Timeout:             p.Breaker.Timeout,
		ConsecutiveFailures: p.Breaker.ConsecutiveFailures,
	}, log), nil
}

func openPublisher(cfg *config.Config, log *logger.Logger) (events.Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka brokers not configured, events are not published")
		return events.Noop{}, nil
	}
	producer, err := events.NewProducer(events.KafkaConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.EventsTopic,
		ClientID: cfg.Kafka.ClientID,
	})
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return events.NewKafkaPublisher(producer, cfg.Kafka.EventsTopic, log), nil
}
