package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/bidwin/auction-core/pkg/contracts/events"
)

// ErrUndecodable marca mensagens que vão para a DLQ
var ErrUndecodable = errors.New("undecodable auction event")

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Broadcaster interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Invalidator remove a visão em cache do lote (bid-service)
type Invalidator interface {
	Invalidate(ctx context.Context, lotID string) error
}

// Processor consome auction_events, invalida o cache do lote e repassa para o feed via Redis Pub/Sub.
// Mensagens que não decodificam vão para a DLQ e não bloqueiam a partição.
type Processor struct {
	Log         *zap.Logger
	Reader      MessageReader
	DLQ         MessageWriter // opcional
	Broadcaster Broadcaster
	Channel     string
	Cache       Invalidator // opcional

	OnConsumed func()       // métricas (counter++)
	OnRelayed  func()       // métricas
	OnError    func(string) // métricas por fase
}

// Run inicia o loop principal de consumo
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.fail("read")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		if err := p.Handle(ctx, m); err != nil {
			if errors.Is(err, ErrUndecodable) {
				p.deadLetter(ctx, m, err)
				continue
			}
			p.Log.Warn("auction event relay failed", zap.Error(err))
		}
	}
}

// Handle trata uma mensagem: invalida o cache e publica a atualização do lote
func (p *Processor) Handle(ctx context.Context, m kafka.Message) error {
	var ev events.Envelope
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		return errors.Join(ErrUndecodable, err)
	}
	if ev.Type == "" || ev.LotID == "" {
		return ErrUndecodable
	}
	log := p.Log.With(zap.String("type", ev.Type), zap.String("lot", ev.LotID))

	// notificações são por usuário, não vão para o feed público do lote
	if ev.Type == events.TypeNotification {
		return nil
	}

	if p.Cache != nil {
		if err := p.Cache.Invalidate(ctx, ev.LotID); err != nil {
			log.Warn("lot cache invalidate failed", zap.Error(err))
			p.fail("cache")
			// não bloqueia o broadcast se o cache falhar
		}
	}

	b, err := json.Marshal(events.LotUpdate{LotID: ev.LotID, Type: ev.Type, Payload: m.Value})
	if err != nil {
		return err
	}
	pctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := p.Broadcaster.Publish(pctx, p.Channel, b); err != nil {
		p.fail("broadcast")
		return err
	}
	if p.OnRelayed != nil {
		p.OnRelayed()
	}
	return nil
}

func (p *Processor) deadLetter(ctx context.Context, m kafka.Message, cause error) {
	p.Log.Warn("invalid message, sending to dlq", zap.Int64("offset", m.Offset), zap.Error(cause))
	p.fail("decode")
	if p.DLQ == nil {
		return
	}
	err := p.DLQ.WriteMessages(ctx, kafka.Message{
		Key:   m.Key,
		Value: m.Value,
		Headers: append(m.Headers,
			kafka.Header{Key: "dlq_reason", Value: []byte(cause.Error())},
			kafka.Header{Key: "source_topic", Value: []byte(m.Topic)},
		),
	})
	if err != nil {
		p.Log.Error("dlq write failed", zap.Error(err))
		p.fail("dlq")
	}
}

func (p *Processor) fail(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}
