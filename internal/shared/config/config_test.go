package config

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/check"
)

func TestLoad_DefaultsPerService(t *testing.T) {
	t.Setenv("SERVICE_NAME", "settlement-worker")
	t.Setenv("CRON_SECRET", "s3cret")
	t.Setenv("SWEEP_INTERVAL", "30s")

	cfg := Load()
	check.Equal(t, "8084", cfg.HTTPPort)
	check.Equal(t, "9098", cfg.MetricsPort)
	check.Equal(t, "s3cret", cfg.CronSecret)
	check.Equal(t, 30*time.Second, cfg.SweepInterval)
	check.Equal(t, int64(100), cfg.MinIncrementCents)
	check.Equal(t, "auction_events", cfg.TopicAuctionEvents)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("SERVICE_NAME", "bid-service")
	t.Setenv("BID_MIN_INCREMENT_CENTS", "abc")
	t.Setenv("SWEEP_INTERVAL", "soon")

	cfg := Load()
	check.Equal(t, "8083", cfg.HTTPPort)
	check.Equal(t, int64(100), cfg.MinIncrementCents)
	check.Equal(t, time.Duration(0), cfg.SweepInterval)
}

func TestLoad_RedisAndLogLevel(t *testing.T) {
	t.Setenv("SERVICE_NAME", "lot-feed-service")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()
	check.Equal(t, 2, cfg.RedisDB)
	check.Equal(t, "", cfg.RedisPassword)
	check.Equal(t, "debug", cfg.LogLevel)
	check.Equal(t, "8080", cfg.HTTPPort)
}
