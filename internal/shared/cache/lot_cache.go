package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// LotCache guarda a visão pública de um lote (lance atual, mínimo seguinte, status).
// É só leitura rápida: a autoridade continua sendo o Postgres.
type LotCache struct {
	R   *redis.Client
	TTL time.Duration
}

// NewLotCache cria o cache com TTL configurável (padrão 30s)
func NewLotCache(r *redis.Client, ttl time.Duration) *LotCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &LotCache{R: r, TTL: ttl}
}

func lotKey(lotID string) string { return "lot:view:" + lotID }

// Get lê a visão do lote; false quando não está em cache
func (c *LotCache) Get(ctx context.Context, lotID string, dst any) (bool, error) {
	b, err := c.R.Get(ctx, lotKey(lotID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(b, dst)
}

func (c *LotCache) Set(ctx context.Context, lotID string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.R.Set(ctx, lotKey(lotID), b, c.TTL).Err()
}

// Invalidate remove a visão após lance aceito, fechamento ou liquidação
func (c *LotCache) Invalidate(ctx context.Context, lotID string) error {
	return c.R.Del(ctx, lotKey(lotID)).Err()
}
