package main

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/bidwin/auction-core/internal/gateway"
	"github.com/bidwin/auction-core/internal/shared/config"
	"github.com/bidwin/auction-core/internal/shared/logger"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "api-gateway"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	h, err := gateway.Router(gateway.Targets{BidService: cfg.BidServiceURL, LotFeed: cfg.LotFeedURL})
	if err != nil {
		log.Fatal("gateway targets", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("api-gateway listening", zap.String("addr", srv.Addr),
		zap.String("bid_service", cfg.BidServiceURL), zap.String("lot_feed", cfg.LotFeedURL))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("gateway failed", zap.Error(err))
	}
}
