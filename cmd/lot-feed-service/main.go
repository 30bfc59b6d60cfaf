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

	"github.com/bidwin/auction-core/internal/lot-feed/ws"
	"github.com/bidwin/auction-core/internal/shared/cache"
	"github.com/bidwin/auction-core/internal/shared/config"
	"github.com/bidwin/auction-core/internal/shared/logger"
	"github.com/bidwin/auction-core/internal/shared/metrics"
)

var (
	wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lot_feed_ws_connections", Help: "conexões WebSocket abertas",
	})
	wsMessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lot_feed_ws_messages_sent_total", Help: "mensagens enviadas aos clientes",
	})
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "lot-feed-service"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	prometheus.MustRegister(wsConnections, wsMessagesSent)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()

	// TODO: restringir origens quando houver domínio público definido
	hub := ws.NewHub(log, func(*http.Request) bool { return true })
	hub.OnConnect = wsConnections.Inc
	hub.OnDisconnect = wsConnections.Dec
	hub.OnSent = wsMessagesSent.Inc

	ws.StartRedisSubscriber(ctx, rdb, cfg.RedisPubSubChannel, hub, log)

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, log,
		metrics.HealthCheck{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWS)
	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("lot-feed-service listening", zap.String("addr", srv.Addr), zap.String("channel", cfg.RedisPubSubChannel))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("ws server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = msrv.Shutdown(shutdownCtx)
}
