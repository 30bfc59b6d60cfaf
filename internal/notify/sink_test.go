package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/peterldowns/testy/check"
	"go.uber.org/zap"

	"github.com/bidwin/auction-core/internal/lot"
	"github.com/bidwin/auction-core/pkg/contracts/events"
)

type memStore struct {
	rows []lot.Notification
	err  error
}

func (m *memStore) InsertNotification(_ context.Context, n lot.Notification) error {
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, n)
	return nil
}

type memPub struct {
	envs []events.Envelope
	err  error
}

func (m *memPub) Publish(_ context.Context, _ lot.Ref, e events.Envelope) error {
	m.envs = append(m.envs, e)
	return m.err
}

func TestSink_WritesAndPublishes(t *testing.T) {
	st, pub := &memStore{}, &memPub{}
	s := NewSink(st, pub, zap.NewNop())

	s.Notify(context.Background(), lot.Notification{
		UserID: "u1", Type: lot.NotificationPaymentFailed, Title: "t", Message: "m",
		LotRef: lot.Ref{Kind: lot.KindItem, ID: "l1"},
	})

	check.Equal(t, 1, len(st.rows))
	check.NotEqual(t, "", st.rows[0].ID)
	check.Equal(t, 1, len(pub.envs))
	check.Equal(t, events.TypeNotification, pub.envs[0].Type)
	check.Equal(t, st.rows[0].ID, pub.envs[0].Notification.ID)
}

func TestSink_StoreFailureSkipsPublish(t *testing.T) {
	st, pub := &memStore{err: errors.New("db down")}, &memPub{}
	s := NewSink(st, pub, zap.NewNop())

	s.Notify(context.Background(), lot.Notification{UserID: "u1"})
	check.Equal(t, 0, len(pub.envs))
}

func TestSink_PublishFailureIsSwallowed(t *testing.T) {
	st, pub := &memStore{}, &memPub{err: errors.New("kafka down")}
	s := NewSink(st, pub, zap.NewNop())

	s.Notify(context.Background(), lot.Notification{UserID: "u1"})
	check.Equal(t, 1, len(st.rows))
}
