package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/bidwin/auction-core/internal/lot/repo"
	"github.com/bidwin/auction-core/internal/notify"
	"github.com/bidwin/auction-core/internal/payments"
	"github.com/bidwin/auction-core/internal/publisher"
	shttp "github.com/bidwin/auction-core/internal/settlement-worker/http"
	"github.com/bidwin/auction-core/internal/settlement-worker/scheduler"
	"github.com/bidwin/auction-core/internal/settlement-worker/settle"
	"github.com/bidwin/auction-core/internal/settlement-worker/sweep"
	"github.com/bidwin/auction-core/internal/shared/cache"
	"github.com/bidwin/auction-core/internal/shared/config"
	"github.com/bidwin/auction-core/internal/shared/db"
	"github.com/bidwin/auction-core/internal/shared/kafka"
	"github.com/bidwin/auction-core/internal/shared/logger"
	"github.com/bidwin/auction-core/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "settlement-worker"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	if cfg.CronSecret == "" {
		log.Warn("CRON_SECRET not set, batch endpoints will reject every call")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicAuctionEvents)
	pub := publisher.NewKafkaPublisher(writer, log)
	defer pub.Close()

	store := repo.NewPostgres(pg)
	sink := notify.NewSink(store, pub, log)
	am := metrics.NewAuction(prometheus.DefaultRegisterer)
	charger := payments.FromKey(cfg.StripeSecretKey, cfg.SimulatorSuccess)

	closer := &sweep.Closer{
		Store:     store,
		Publisher: pub,
		Notifier:  sink,
		Metrics:   am,
		Log:       log.Named("sweep"),
		BatchSize: cfg.BatchSize,
		Currency:  cfg.PaymentCurrency,
	}
	processor := &settle.Processor{
		Store:     store,
		Charger:   charger,
		Notifier:  sink,
		Publisher: pub,
		Metrics:   am,
		Log:       log.Named("settle"),
		Currency:  cfg.PaymentCurrency,
		BatchSize: cfg.BatchSize,
	}

	checks := []metrics.HealthCheck{{Name: "postgres", Check: pg.PingContext}}

	// ticker interno opcional, com lock no Redis para rodar em uma réplica só
	if cfg.SweepInterval > 0 {
		rdb, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal("failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()
		checks = append(checks, metrics.HealthCheck{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }})

		tk := &scheduler.Ticker{
			Interval: cfg.SweepInterval,
			Lock:     &scheduler.RedisLock{R: rdb},
			Sweeper:  closer,
			Settler:  processor,
			Log:      log.Named("ticker"),
		}
		go func() { _ = tk.Run(ctx) }()
	}

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, log, checks...)

	api := &shttp.API{Log: log, Secret: cfg.CronSecret, Sweeper: closer, Settler: processor}
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("settlement-worker listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("api", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = msrv.Shutdown(shutdownCtx)
}
