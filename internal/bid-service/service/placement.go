package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bidwin/auction-core/internal/lot"
	"github.com/bidwin/auction-core/internal/lot/repo"
	"github.com/bidwin/auction-core/internal/payments"
	"github.com/bidwin/auction-core/internal/shared/metrics"
	"github.com/bidwin/auction-core/pkg/contracts/events"
)

// Store define as operações de persistência usadas na colocação de lances
type Store interface {
	Resolve(ctx context.Context, id string) (*lot.Lot, error)
	InstrumentFor(ctx context.Context, userID string) (*lot.Instrument, error)
	CommitBid(ctx context.Context, ref lot.Ref, in repo.BidInput) (*lot.Bid, error)
	InsertPayment(ctx context.Context, p lot.Payment) error
}

// Invalidator remove a visão em cache de um lote após um lance aceito
type Invalidator interface {
	Invalidate(ctx context.Context, lotID string) error
}

type Publisher interface {
	Publish(ctx context.Context, ref lot.Ref, e events.Envelope) error
}

// commitTimeout limita o que roda depois de uma cobrança aprovada, já desligado da requisição
const commitTimeout = 10 * time.Second

// Accepted é o retorno de um lance aceito
type Accepted struct {
	Bid         lot.Bid
	ChargeRef   string
	MinimumNext int64
}

// Placer implementa o fluxo "cartão salvo": valida, cobra, e só então grava o lance.
// Se a gravação perder a corrida para outro lance, a cobrança é estornada.
type Placer struct {
	Store     Store
	Charger   payments.Charger
	Cache     Invalidator // opcional
	Publisher Publisher   // opcional
	Metrics   *metrics.Auction
	Log       *zap.Logger

	Increment int64
	Currency  string
	Now       func() time.Time
}

func (p *Placer) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Placer) increment() int64 {
	if p.Increment > 0 {
		return p.Increment
	}
	return lot.DefaultMinIncrement
}

// PlaceBid valida e registra um lance. Erros possíveis: lot.ErrNotFound, lot.ErrNotActive,
// *lot.BidTooLowError, lot.ErrNoPaymentMethod, *lot.ChargeError. Em erro nada fica gravado.
func (p *Placer) PlaceBid(ctx context.Context, lotID, bidderID string, amount int64) (*Accepted, error) {
	if amount <= 0 {
		return nil, lot.ErrInvalidAmount
	}

	l, err := p.Store.Resolve(ctx, lotID)
	if err != nil {
		return nil, p.reject(reasonOf(err), err)
	}
	ref := l.Ref()
	log := p.Log.With(zap.String("lot", ref.String()), zap.String("bidder", bidderID), zap.Int64("amount", amount))

	// pré-checagem sem lock: evita cobrar um lance que já nasce inválido
	if err := lot.CheckBid(l, amount, p.increment(), p.now(), p.Currency); err != nil {
		return nil, p.reject(reasonOf(err), err)
	}

	inst, err := p.Store.InstrumentFor(ctx, bidderID)
	if err != nil {
		return nil, fmt.Errorf("load payment instrument: %w", err)
	}
	if !inst.Chargeable() {
		return nil, p.reject("no_payment_method", lot.ErrNoPaymentMethod)
	}

	bidID := uuid.NewString()
	res, err := p.Charger.Charge(ctx, payments.ChargeRequest{
		CustomerRef:    inst.CustomerRef,
		MethodRef:      inst.MethodRef,
		Amount:         amount,
		Currency:       p.Currency,
		IdempotencyKey: "bid:" + bidID,
		Metadata: map[string]string{
			"bid_id":    bidID,
			"lot_id":    ref.ID,
			"lot_kind":  string(ref.Kind),
			"bidder_id": bidderID,
		},
	})
	if err != nil {
		// resultado desconhecido: fica no log para conciliação manual, o lance não é gravado
		log.Error("bid charge failed unexpectedly", zap.String("bid", bidID), zap.Error(err))
		return nil, p.reject("charge_failed", &lot.ChargeError{Reason: lot.ReasonProcessingError, Err: err})
	}
	if cerr := res.AsError(); cerr != nil {
		return nil, p.reject("charge_failed", cerr)
	}

	// cartão cobrado: gravar ou estornar não pode depender do cliente continuar conectado
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()

	bid, err := p.Store.CommitBid(ctx, ref, repo.BidInput{
		ID:        bidID,
		BidderID:  bidderID,
		Amount:    amount,
		Increment: p.increment(),
		Currency:  p.Currency,
		Now:       p.now(),
	})
	if err != nil {
		p.compensate(ctx, log, res.ChargeRef)
		return nil, p.reject(reasonOf(err), err)
	}

	if err := p.Store.InsertPayment(ctx, lot.Payment{
		LotRef:    ref,
		UserID:    bidderID,
		Amount:    amount,
		Currency:  p.Currency,
		Status:    string(payments.StatusSucceeded),
		ChargeRef: res.ChargeRef,
		Purpose:   "bid",
	}); err != nil {
		log.Warn("payment ledger insert failed", zap.String("charge", res.ChargeRef), zap.Error(err))
	}

	minNext := amount + p.increment()
	p.afterAccept(ctx, log, ref, bid, minNext)
	if p.Metrics != nil {
		p.Metrics.BidsAccepted.Inc()
	}
	log.Info("bid accepted", zap.String("bid", bid.ID))

	return &Accepted{Bid: *bid, ChargeRef: res.ChargeRef, MinimumNext: minNext}, nil
}

// compensate estorna a cobrança de um lance que não entrou no ledger
func (p *Placer) compensate(ctx context.Context, log *zap.Logger, chargeRef string) {
	if err := p.Charger.Refund(ctx, chargeRef); err != nil {
		// No mundo real, seria interessante uma fila de compensação
		log.Error("refund after lost bid failed", zap.String("charge", chargeRef), zap.Error(err))
		return
	}
	if p.Metrics != nil {
		p.Metrics.BidRefunds.Inc()
	}
	log.Info("charge refunded after lost bid", zap.String("charge", chargeRef))
}

func (p *Placer) afterAccept(ctx context.Context, log *zap.Logger, ref lot.Ref, bid *lot.Bid, minNext int64) {
	if p.Cache != nil {
		if err := p.Cache.Invalidate(ctx, ref.ID); err != nil {
			log.Warn("lot cache invalidate failed", zap.Error(err))
		}
	}
	if p.Publisher != nil {
		_ = p.Publisher.Publish(ctx, ref, events.Envelope{
			Type: events.TypeBidPlaced,
			BidPlaced: &events.BidPlaced{
				BidID:       bid.ID,
				BidderID:    bid.BidderID,
				AmountCents: bid.Amount,
				MinimumNext: minNext,
			},
		})
	}
}

func (p *Placer) reject(reason string, err error) error {
	if p.Metrics != nil {
		p.Metrics.BidsRejected.WithLabelValues(reason).Inc()
	}
	return err
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, lot.ErrNotFound):
		return "not_found"
	case errors.Is(err, lot.ErrNotActive):
		return "not_active"
	case errors.Is(err, lot.ErrBidTooLow):
		return "too_low"
	default:
		return "error"
	}
}
