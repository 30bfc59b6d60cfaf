package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/bidwin/auction-core/internal/notification-worker/consumer"
	"github.com/bidwin/auction-core/internal/notification-worker/pubsub"
	"github.com/bidwin/auction-core/internal/shared/cache"
	"github.com/bidwin/auction-core/internal/shared/config"
	"github.com/bidwin/auction-core/internal/shared/kafka"
	"github.com/bidwin/auction-core/internal/shared/logger"
	"github.com/bidwin/auction-core/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "notification-worker"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// consumer group próprio: cada réplica recebe uma fatia das partições
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicAuctionEvents, "notification-worker")
	defer reader.Close()
	dlq := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicAuctionEventsDLQ)
	defer dlq.Close()

	// Métricas Prometheus do processamento
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "notification_worker_messages_consumed_total", Help: "mensagens consumidas"})
	relayed := prometheus.NewCounter(prometheus.CounterOpts{Name: "notification_worker_messages_relayed_total", Help: "atualizações publicadas no Redis"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "notification_worker_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, relayed, errorsBy)

	proc := &consumer.Processor{
		Log:         log,
		Reader:      reader,
		DLQ:         dlq,
		Broadcaster: pubsub.NewRedisBroadcaster(redisClient),
		Channel:     cfg.RedisPubSubChannel,
		Cache:       cache.NewLotCache(redisClient, 30*time.Second),
		OnConsumed:  consumed.Inc,
		OnRelayed:   relayed.Inc,
		OnError:     func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, log,
		metrics.HealthCheck{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
	)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = msrv.Shutdown(ctx)
	}()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("notification-worker started", zap.String("topic", cfg.TopicAuctionEvents))
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor stopped with error", zap.Error(err))
	}
	log.Info(fmt.Sprintf("%s stopped", cfg.ServiceName))
}
