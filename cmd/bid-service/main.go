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

	bhttp "github.com/bidwin/auction-core/internal/bid-service/http"
	"github.com/bidwin/auction-core/internal/bid-service/service"
	"github.com/bidwin/auction-core/internal/lot/repo"
	"github.com/bidwin/auction-core/internal/payments"
	"github.com/bidwin/auction-core/internal/publisher"
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
		cfg.ServiceName = "bid-service"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Postgres
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	// Redis (cache da visão do lote)
	rdb, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka writer (auction_events)
	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicAuctionEvents)
	pub := publisher.NewKafkaPublisher(writer, log)
	defer pub.Close()

	// deps
	store := repo.NewPostgres(pg)
	lotCache := cache.NewLotCache(rdb, 30*time.Second)
	am := metrics.NewAuction(prometheus.DefaultRegisterer)
	charger := payments.FromKey(cfg.StripeSecretKey, cfg.SimulatorSuccess)
	if cfg.StripeSecretKey == "" {
		log.Warn("STRIPE_SECRET_KEY not set, using payment simulator", zap.Int("success_pct", cfg.SimulatorSuccess))
	}

	placer := &service.Placer{
		Store:     store,
		Charger:   charger,
		Cache:     lotCache,
		Publisher: pub,
		Metrics:   am,
		Log:       log,
		Increment: cfg.MinIncrementCents,
		Currency:  cfg.PaymentCurrency,
	}
	api := &bhttp.API{
		Log:       log,
		Placer:    placer,
		Lots:      store,
		Cache:     lotCache,
		Increment: cfg.MinIncrementCents,
	}

	// metrics/health
	msrv := metrics.StartMetricsServer(cfg.MetricsPort, log,
		metrics.HealthCheck{Name: "postgres", Check: pg.PingContext},
		metrics.HealthCheck{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)

	// HTTP público
	apiSrv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("bid-service listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("api", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = msrv.Shutdown(shutdownCtx)
}
