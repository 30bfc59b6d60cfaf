package payments

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bidwin/auction-core/internal/lot"
)

// Simulator é o provedor mock usado em ambiente local (sem STRIPE_SECRET_KEY).
// Aprova SuccessPct% das cobranças e responde igual para a mesma chave de idempotência.
type Simulator struct {
	SuccessPct int
	Latency    time.Duration

	mu       sync.Mutex
	rnd      *rand.Rand
	byKey    map[string]ChargeResult
	refunded map[string]bool
}

func NewSimulator(successPct int, seed int64) *Simulator {
	return &Simulator{
		SuccessPct: successPct,
		rnd:        rand.New(rand.NewSource(seed)),
		byKey:      make(map[string]ChargeResult),
		refunded:   make(map[string]bool),
	}
}

func (s *Simulator) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if s.Latency > 0 {
		select {
		case <-time.After(s.Latency):
		case <-ctx.Done():
			return ChargeResult{}, ctx.Err()
		}
	}
	if req.Amount <= 0 {
		return ChargeResult{}, fmt.Errorf("simulator: invalid amount %d", req.Amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.IdempotencyKey != "" {
		if prev, ok := s.byKey[req.IdempotencyKey]; ok {
			return prev, nil
		}
	}

	res := ChargeResult{Status: StatusSucceeded, ChargeRef: "sim_pi_" + uuid.NewString()}
	if s.rnd.Intn(100) >= s.SuccessPct {
		res.Status = StatusFailed
		res.FailureReason = lot.ReasonDeclined
	}
	if req.IdempotencyKey != "" {
		s.byKey[req.IdempotencyKey] = res
	}
	return res, nil
}

func (s *Simulator) Refund(_ context.Context, chargeRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refunded[chargeRef] = true
	return nil
}

// Refunded informa se a cobrança foi estornada
func (s *Simulator) Refunded(chargeRef string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refunded[chargeRef]
}
