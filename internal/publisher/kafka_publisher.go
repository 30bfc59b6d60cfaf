package publisher

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/bidwin/auction-core/internal/lot"
	skafka "github.com/bidwin/auction-core/internal/shared/kafka"
	"github.com/bidwin/auction-core/pkg/contracts/events"
)

// KafkaPublisher envia eventos de leilão para o tópico auction_events.
// A chave da mensagem é o id do lote, garantindo ordem por lote dentro da partição.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

func NewKafkaPublisher(w *kafka.Writer, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, log: log}
}

// Publish preenche o envelope e grava no Kafka
func (p *KafkaPublisher) Publish(ctx context.Context, ref lot.Ref, e events.Envelope) error {
	e.LotKind = string(ref.Kind)
	e.LotID = ref.ID
	if e.Ts.IsZero() {
		e.Ts = time.Now().UTC()
	}
	if err := skafka.WriteJSON(ctx, p.writer, ref.ID, e); err != nil {
		p.log.Error("failed to publish auction event", zap.String("type", e.Type), zap.String("lot", ref.String()), zap.Error(err))
		return err
	}
	p.log.Debug("published auction event", zap.String("type", e.Type), zap.String("lot", ref.String()))
	return nil
}

// Close finaliza o writer e libera recursos associados.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
