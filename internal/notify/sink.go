package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bidwin/auction-core/internal/lot"
	"github.com/bidwin/auction-core/pkg/contracts/events"
)

// Store grava a notificação que a UI lê
type Store interface {
	InsertNotification(ctx context.Context, n lot.Notification) error
}

// Publisher repassa o evento para o tópico auction_events
type Publisher interface {
	Publish(ctx context.Context, ref lot.Ref, e events.Envelope) error
}

// Sink é fire-and-forget: falhas são logadas e nunca voltam para quem chamou,
// então uma notificação perdida não desfaz uma mudança de estado já gravada.
type Sink struct {
	store Store
	pub   Publisher
	log   *zap.Logger
}

func NewSink(store Store, pub Publisher, log *zap.Logger) *Sink {
	return &Sink{store: store, pub: pub, log: log}
}

func (s *Sink) Notify(ctx context.Context, n lot.Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	log := s.log.With(zap.String("user", n.UserID), zap.String("type", n.Type), zap.String("lot", n.LotRef.String()))

	if err := s.store.InsertNotification(ctx, n); err != nil {
		log.Error("notification insert failed", zap.Error(err))
		return
	}

	if s.pub == nil {
		return
	}
	err := s.pub.Publish(ctx, n.LotRef, events.Envelope{
		Type: events.TypeNotification,
		Notification: &events.Notification{
			ID:      n.ID,
			UserID:  n.UserID,
			Kind:    n.Type,
			Title:   n.Title,
			Message: n.Message,
		},
	})
	if err != nil {
		log.Warn("notification publish failed", zap.Error(err))
	}
}
