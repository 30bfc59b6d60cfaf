package settle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bidwin/auction-core/internal/lot"
	"github.com/bidwin/auction-core/internal/lot/repo"
	"github.com/bidwin/auction-core/internal/payments"
	"github.com/bidwin/auction-core/internal/shared/metrics"
	"github.com/bidwin/auction-core/pkg/contracts/events"
)

// Store é o subconjunto do repositório usado na liquidação
type Store interface {
	ListSettleable(ctx context.Context, limit int) ([]lot.Lot, error)
	ClaimSettlement(ctx context.Context, ref lot.Ref) (bool, error)
	HighestBid(ctx context.Context, ref lot.Ref) (*lot.Bid, error)
	InstrumentFor(ctx context.Context, userID string) (*lot.Instrument, error)
	RecordSettlement(ctx context.Context, ref lot.Ref, winnerID string, s lot.Settlement) error
	InsertPayment(ctx context.Context, p lot.Payment) error
}

type Publisher interface {
	Publish(ctx context.Context, ref lot.Ref, e events.Envelope) error
}

type Notifier interface {
	Notify(ctx context.Context, n lot.Notification)
}

// settleTimeout limita o trabalho de um lote já reivindicado, que roda desligado do contexto do chamador
const settleTimeout = 30 * time.Second

// Outcomes de cada lote no relatório
const (
	OutcomeSucceeded       = "succeeded"
	OutcomeNoPaymentMethod = "no_payment_method"
	OutcomeChargeFailed    = "charge_failed"
	OutcomeSkipped         = "skipped" // outra execução reivindicou o lote
	OutcomeError           = "error"
)

type Result struct {
	LotID     string `json:"lotId"`
	Kind      string `json:"kind"`
	Outcome   string `json:"outcome"`
	WinnerID  string `json:"winnerId,omitempty"`
	ChargeRef string `json:"chargeRef,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
}

type Report struct {
	Processed int      `json:"processed"`
	Results   []Result `json:"results"`
}

// Processor cobra o vencedor de cada lote encerrado.
// Cada lote é reivindicado (pending -> processing) antes da cobrança e sai da seleção.
// Toda tentativa termina num estado terminal: succeeded, no_payment_method ou charge_failed
// (inclusive erro ambíguo do provedor, gravado como processing_error), e nenhuma é repetida
// automaticamente. Só uma falha ao gravar deixa o lote em processing para conciliação manual.
type Processor struct {
	Store     Store
	Charger   payments.Charger
	Notifier  Notifier
	Publisher Publisher // opcional
	Metrics   *metrics.Auction
	Log       *zap.Logger
	Currency  string
	BatchSize int
	Now       func() time.Time
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// SettleEnded processa um lote de leilões encerrados. Só retorna erro quando a seleção falha.
func (p *Processor) SettleEnded(ctx context.Context) (Report, error) {
	start := time.Now()
	defer func() {
		if p.Metrics != nil {
			p.Metrics.BatchDuration.WithLabelValues("settle_ended").Observe(time.Since(start).Seconds())
		}
	}()

	limit := p.BatchSize
	if limit <= 0 {
		limit = 100
	}
	lots, err := p.Store.ListSettleable(ctx, limit)
	if err != nil {
		return Report{}, fmt.Errorf("list settleable lots: %w", err)
	}

	rep := Report{Processed: len(lots), Results: make([]Result, 0, len(lots))}
	for i := range lots {
		r := p.settleOne(ctx, &lots[i])
		if p.Metrics != nil {
			p.Metrics.SettlementOutcomes.WithLabelValues(r.Outcome).Inc()
		}
		rep.Results = append(rep.Results, r)
	}
	return rep, nil
}

func (p *Processor) settleOne(ctx context.Context, l *lot.Lot) Result {
	ref := l.Ref()
	res := Result{LotID: ref.ID, Kind: string(ref.Kind)}
	log := p.Log.With(zap.String("lot", ref.String()))

	claimed, err := p.Store.ClaimSettlement(ctx, ref)
	if err != nil {
		// nada foi cobrado: o lote continua pending e volta na próxima execução
		log.Error("settlement claim failed", zap.Error(err))
		res.Outcome, res.Error = OutcomeError, err.Error()
		return res
	}
	if !claimed {
		res.Outcome = OutcomeSkipped
		return res
	}

	// a partir daqui toda saída grava um estado terminal, mesmo que o chamador cancele
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	winnerID, amount, err := p.winner(ctx, l)
	if err != nil {
		return p.fail(ctx, log, l, "", amount, res, lot.ChargeFailed(lot.ReasonProcessingError, ""), err)
	}
	res.WinnerID = winnerID
	log = log.With(zap.String("winner", winnerID), zap.Int64("amount", amount))

	inst, err := p.Store.InstrumentFor(ctx, winnerID)
	if err != nil {
		return p.fail(ctx, log, l, winnerID, amount, res, lot.ChargeFailed(lot.ReasonProcessingError, ""), err)
	}
	if !inst.Chargeable() {
		res.Outcome = OutcomeNoPaymentMethod
		if err := p.record(ctx, ref, winnerID, lot.NoPaymentMethod()); err != nil {
			log.Error("record no_payment_method failed", zap.Error(err))
			res.Outcome, res.Error = OutcomeError, err.Error()
			return res
		}
		p.notify(ctx, winnerID, ref, lot.NotificationPaymentFailed, "Payment method required",
			fmt.Sprintf("You won %s with a bid of %s. Add a payment method to complete your purchase.",
				title(l), lot.FormatMinor(amount, p.Currency)))
		log.Warn("winner has no payment method")
		return res
	}

	charge, err := p.Charger.Charge(ctx, payments.ChargeRequest{
		CustomerRef:    inst.CustomerRef,
		MethodRef:      inst.MethodRef,
		Amount:         amount,
		Currency:       p.Currency,
		IdempotencyKey: fmt.Sprintf("settle:%s:%s", ref.Kind, ref.ID),
		Metadata: map[string]string{
			"lot_id":    ref.ID,
			"lot_kind":  string(ref.Kind),
			"winner_id": winnerID,
		},
	})
	if err != nil {
		// resultado ambíguo: pode ter cobrado. Fica registrado e sai da fila para conciliação manual.
		return p.fail(ctx, log, l, winnerID, amount, res, lot.ChargeFailed(lot.ReasonProcessingError, charge.ChargeRef), err)
	}
	res.ChargeRef = charge.ChargeRef

	if cerr := charge.AsError(); cerr != nil {
		var ce *lot.ChargeError
		reason := lot.ReasonProcessingError
		if errors.As(cerr, &ce) {
			reason = ce.Reason
		}
		return p.fail(ctx, log, l, winnerID, amount, res, lot.ChargeFailed(reason, charge.ChargeRef), nil)
	}

	res.Outcome = OutcomeSucceeded
	if err := p.record(ctx, ref, winnerID, lot.Succeeded(charge.ChargeRef, p.now())); err != nil {
		// cobrado mas não gravado: o lote fica em processing e não será cobrado de novo
		log.Error("charge succeeded but settlement record failed", zap.String("charge", charge.ChargeRef), zap.Error(err))
		res.Outcome, res.Error = OutcomeError, err.Error()
		return res
	}
	p.ledger(ctx, log, ref, winnerID, amount, charge.ChargeRef)
	p.notify(ctx, winnerID, ref, lot.NotificationPaymentSucceeded, "Payment successful",
		fmt.Sprintf("Your card was charged %s for %s.", lot.FormatMinor(amount, p.Currency), title(l)))
	log.Info("lot settled", zap.String("charge", charge.ChargeRef))
	return res
}

// winner usa o vencedor denormalizado pela varredura; sem ele, deriva do ledger de lances
func (p *Processor) winner(ctx context.Context, l *lot.Lot) (string, int64, error) {
	var amount int64
	if l.CurrentBid != nil {
		amount = *l.CurrentBid
	}
	if l.WinnerID != nil && *l.WinnerID != "" {
		return *l.WinnerID, amount, nil
	}
	top, err := p.Store.HighestBid(ctx, l.Ref())
	if err != nil {
		return "", amount, fmt.Errorf("highest bid: %w", err)
	}
	if top == nil {
		return "", amount, errors.New("lot has current bid but no bids in ledger")
	}
	return top.BidderID, top.Amount, nil
}

// fail grava a falha como estado terminal e avisa o vencedor, quando conhecido
func (p *Processor) fail(ctx context.Context, log *zap.Logger, l *lot.Lot, winnerID string, amount int64, res Result, s lot.Settlement, cause error) Result {
	ref := l.Ref()
	res.Outcome = OutcomeChargeFailed
	res.Reason = s.Reason
	if cause != nil {
		res.Error = cause.Error()
		log.Error("settlement attempt failed", zap.Error(cause))
	} else {
		log.Warn("settlement charge not completed", zap.String("reason", s.Reason), zap.String("charge", s.ChargeRef))
	}

	if err := p.record(ctx, ref, winnerID, s); err != nil {
		log.Error("record charge_failed failed", zap.Error(err))
		res.Outcome, res.Error = OutcomeError, err.Error()
		return res
	}
	if winnerID != "" {
		msg := (&lot.ChargeError{Reason: s.Reason}).UserMessage()
		p.notify(ctx, winnerID, ref, lot.NotificationPaymentFailed, "Payment failed",
			fmt.Sprintf("We could not charge %s for %s. %s Please update your payment method.",
				lot.FormatMinor(amount, p.Currency), title(l), msg))
	}
	return res
}

func (p *Processor) record(ctx context.Context, ref lot.Ref, winnerID string, s lot.Settlement) error {
	if err := p.Store.RecordSettlement(ctx, ref, winnerID, s); err != nil {
		return err
	}
	if p.Publisher != nil {
		_ = p.Publisher.Publish(ctx, ref, events.Envelope{
			Type: events.TypeSettlementRecorded,
			Settlement: &events.SettlementRecorded{
				State:     string(s.State),
				WinnerID:  winnerID,
				ChargeRef: s.ChargeRef,
				Reason:    s.Reason,
			},
		})
	}
	return nil
}

func (p *Processor) ledger(ctx context.Context, log *zap.Logger, ref lot.Ref, winnerID string, amount int64, chargeRef string) {
	err := p.Store.InsertPayment(ctx, lot.Payment{
		LotRef:    ref,
		UserID:    winnerID,
		Amount:    amount,
		Currency:  p.Currency,
		Status:    string(payments.StatusSucceeded),
		ChargeRef: chargeRef,
		Purpose:   "settlement",
	})
	switch {
	case errors.Is(err, repo.ErrDuplicatePayment):
		log.Warn("settlement payment already in ledger", zap.String("charge", chargeRef))
	case err != nil:
		log.Error("payment ledger insert failed", zap.String("charge", chargeRef), zap.Error(err))
	}
}

func (p *Processor) notify(ctx context.Context, userID string, ref lot.Ref, kind, title, msg string) {
	if p.Notifier == nil {
		return
	}
	p.Notifier.Notify(ctx, lot.Notification{UserID: userID, Type: kind, Title: title, Message: msg, LotRef: ref})
}

func title(l *lot.Lot) string {
	if l.Title == "" {
		return "your lot"
	}
	return fmt.Sprintf("%q", l.Title)
}
