package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"tokenmeta/internal/audit"
	"tokenmeta/internal/metadata/handler"
	metadataMetrics "tokenmeta/internal/metadata/metrics"
	"tokenmeta/internal/metadata/service"
	"tokenmeta/internal/metadata/store"
	"tokenmeta/internal/platform/config"
	"tokenmeta/internal/platform/health"
	"tokenmeta/internal/platform/httpserver"
	"tokenmeta/internal/platform/kafka"
	"tokenmeta/internal/platform/logger"
	"tokenmeta/internal/platform/metrics"
	"tokenmeta/internal/platform/postgres"
	platformRedis "tokenmeta/internal/platform/redis"
	"tokenmeta/pkg/platform/circuit"
)

// main wires configuration, storage, the optional cache and change feed, and
// the HTTP surface. Business logic lives in internal/metadata.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("metadata server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics := metrics.New(reg)
	domainMetrics := metadataMetrics.New(reg)

	backend, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	checks := []health.Check{{Name: "store", Ping: backend.Ping}}

	redisClient, err := platformRedis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		backend = store.NewCached(backend, redisClient, cfg.Redis.CacheTTL,
			store.WithCacheLogger(log),
			store.WithCacheMetrics(domainMetrics),
			store.WithCacheBreaker(circuit.New("redis-cache")),
		)
		checks = append(checks, health.Check{Name: "cache", Ping: redisClient.Health})
		log.Info("redis cache enabled", "ttl", cfg.Redis.CacheTTL)
	}

	g, gctx := errgroup.WithContext(ctx)

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(domainMetrics),
	}
	kafkaClient, err := kafka.NewClient(cfg.Kafka)
	if err != nil {
		return err
	}
	if kafkaClient != nil {
		defer kafkaClient.Close()
		if err := kafka.EnsureTopic(ctx, kafkaClient, cfg.Kafka); err != nil {
			return err
		}
		worker := audit.NewWorker(audit.NewKafkaPublisher(kafkaClient, cfg.Kafka.Topic), cfg.Kafka.QueueSize, log)
		g.Go(func() error {
			if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		opts = append(opts, service.WithPublisher(worker))
		checks = append(checks, health.Check{Name: "kafka", Ping: func(ctx context.Context) error {
			return kafka.Health(ctx, kafkaClient)
		}})
		log.Info("change events enabled", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	}

	svc := service.New(backend, opts...)

	router := chi.NewRouter()
	health.New(log, checks...).Register(router)
	handler.New(svc, log, httpMetrics, cfg.Server.RequestTimeout).Register(router)
	if cfg.Metrics.Enabled {
		router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	srv := httpserver.New(cfg.Server.Addr, router, cfg.Server.RequestTimeout)
	g.Go(func() error {
		log.Info("starting metadata server", "addr", cfg.Server.Addr, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down metadata server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// openStore returns the configured backend and a function releasing it.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store.Backend, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.Store.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		pg := store.NewPostgres(db)
		if err := pg.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return pg, func() { _ = db.Close() }, nil
	case config.DriverBadger:
		b, err := store.OpenBadger(store.BadgerOptions{Dir: cfg.Store.BadgerDir, Logger: log})
		if err != nil {
			return nil, nil, err
		}
		return b, func() {
			if err := b.Close(); err != nil {
				log.Error("failed to close badger", "error", err)
			}
		}, nil
	default:
		log.Warn("using in-memory store; data is lost on restart")
		return store.NewInMemory(), func() {}, nil
	}
}
