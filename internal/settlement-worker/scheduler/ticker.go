package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bidwin/auction-core/internal/settlement-worker/settle"
	"github.com/bidwin/auction-core/internal/settlement-worker/sweep"
)

const lockKey = "bidwin:settlement-worker:pass"

type Sweeper interface {
	CloseExpired(ctx context.Context, now time.Time) (sweep.Report, error)
}

type Settler interface {
	SettleEnded(ctx context.Context) (settle.Report, error)
}

// Ticker roda fechamento e depois liquidação a cada Interval.
// Alternativa ao cron externo; os dois caminhos podem coexistir porque cada lote tem o seu próprio gate.
type Ticker struct {
	Interval time.Duration
	Lock     Locker
	Sweeper  Sweeper
	Settler  Settler
	Log      *zap.Logger
	Now      func() time.Time
}

// Run bloqueia até o contexto ser cancelado
func (t *Ticker) Run(ctx context.Context) error {
	tk := time.NewTicker(t.Interval)
	defer tk.Stop()
	t.Log.Info("settlement ticker started", zap.Duration("interval", t.Interval))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tk.C:
			if _, err := t.RunOnce(ctx); err != nil {
				t.Log.Warn("settlement pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce executa uma passada se conseguir o lock; ran=false quando outra réplica já está rodando
func (t *Ticker) RunOnce(ctx context.Context) (ran bool, err error) {
	// a trava expira sozinha se o processo morrer no meio
	token, ok, err := t.Lock.Acquire(ctx, lockKey, 2*t.Interval+time.Minute)
	if err != nil {
		return false, err
	}
	if !ok {
		t.Log.Debug("settlement pass already running elsewhere")
		return false, nil
	}
	defer func() {
		if rerr := t.Lock.Release(context.WithoutCancel(ctx), lockKey, token); rerr != nil {
			t.Log.Warn("release settlement lock", zap.Error(rerr))
		}
	}()

	now := time.Now()
	if t.Now != nil {
		now = t.Now()
	}
	closed, err := t.Sweeper.CloseExpired(ctx, now)
	if err != nil {
		return true, err
	}
	settled, err := t.Settler.SettleEnded(ctx)
	if err != nil {
		return true, err
	}
	t.Log.Info("settlement pass finished",
		zap.Int("closed", closed.Processed),
		zap.Int("settled", settled.Processed),
	)
	return true, nil
}
